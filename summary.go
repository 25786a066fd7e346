package backtest

import (
	"iter"
	"slices"

	"github.com/etnz/backtest/date"
)

// TickerSummary is the performance of all positions of a portfolio in one ticker.
type TickerSummary struct {
	Ticker     Ticker
	Price      Money // last known close
	TotalCost  Money // cost of open and closed positions, lots retired by a split excepted
	OpenValue  Money
	OpenCost   Money
	Realized   Money // realized P&L of closed positions plus dividends
	Dividends  Money
	Unrealized Money
	Net        Money
	NetPct     Percent // Net relative to TotalCost
}

// Summary is a valuation snapshot of a portfolio.
//
// Valuations use the last known close. When PeriodStart is set, realized P&L,
// dividends, deposits and taxes only count ledger rows and closed positions
// dated within the period.
type Summary struct {
	Portfolio   PortfolioID
	Owner       string
	PeriodStart date.Date // zero for the whole history
	PeriodEnd   date.Date

	Balance       Money
	Contribution  Money
	OpenValue     Money
	Equity        Money // Balance + OpenValue
	NetChange     Money // Balance - Contribution
	NetChangePct  Percent
	NetPL         Money // Equity - Contribution
	NetPLPct      Percent
	Realized      Money
	RealizedPct   Percent
	Unrealized    Money
	UnrealizedPct Percent
	Dividends     Money
	Deposits      Money // within the period
	TaxesPaid     Money // within the period
	TaxLiability  Money

	Tickers []TickerSummary // sorted by ticker
	Best    *TickerSummary  // highest Net, nil without tickers
	Worst   *TickerSummary  // lowest Net, nil without tickers
}

// period returns the range covered by a summary.
func period(start *date.Date, end date.Date) date.Range {
	r := date.Range{To: end}
	if start != nil {
		r.From = *start
	}
	return r
}

// Summarize builds the Summary of p valued at prices, using rows for
// period figures.
func Summarize(p *Portfolio, rows iter.Seq[Transaction], prices map[Ticker]Money, periodEnd date.Date, periodStart *date.Date) Summary {
	r := period(periodStart, periodEnd)
	s := Summary{
		Portfolio:    p.ID(),
		Owner:        p.Owner(),
		PeriodStart:  r.From,
		PeriodEnd:    periodEnd,
		Balance:      p.Balance(),
		Contribution: p.Contribution(),
		TaxLiability: p.TaxLiability(),
	}

	dividends := make(map[Ticker]Money)
	replaced := make(map[PositionID]bool) // their cost moved to the replacement lot
	for tx := range rows {
		if tx.Portfolio != p.ID() {
			continue
		}
		if tx.Type == Split {
			replaced[tx.Replaces] = true
		}
		if !r.Contains(tx.Date) {
			continue
		}
		switch tx.Type {
		case Dividend:
			dividends[tx.Ticker] = dividends[tx.Ticker].Add(tx.Amount())
		case Deposit:
			s.Deposits = s.Deposits.Add(tx.Amount())
		case Tax:
			s.TaxesPaid = s.TaxesPaid.Add(tx.Amount())
		}
	}

	for _, t := range p.Tickers() {
		ts := TickerSummary{Ticker: t, Price: prices[t], Dividends: dividends[t]}
		for _, pos := range p.OpenPositionsByTicker(t) {
			ts.TotalCost = ts.TotalCost.Add(pos.Cost())
			ts.OpenCost = ts.OpenCost.Add(pos.Cost())
			ts.OpenValue = ts.OpenValue.Add(pos.CurrentValue(ts.Price))
			ts.Unrealized = ts.Unrealized.Add(pos.UnrealizedPL(ts.Price))
		}
		for _, pos := range p.ClosedPositions() {
			if pos.Ticker() != t {
				continue
			}
			if !replaced[pos.ID()] {
				ts.TotalCost = ts.TotalCost.Add(pos.Cost())
			}
			if r.Contains(pos.ExitDate()) {
				ts.Realized = ts.Realized.Add(pos.RealizedPL())
			}
		}
		ts.Realized = ts.Realized.Add(ts.Dividends)
		ts.Net = ts.Realized.Add(ts.Unrealized)
		ts.NetPct = PercentOf(ts.Net, ts.TotalCost)
		s.Tickers = append(s.Tickers, ts)

		s.OpenValue = s.OpenValue.Add(ts.OpenValue)
		s.Realized = s.Realized.Add(ts.Realized)
		s.Unrealized = s.Unrealized.Add(ts.Unrealized)
		s.Dividends = s.Dividends.Add(ts.Dividends)
	}

	for i := range s.Tickers {
		ts := &s.Tickers[i]
		if s.Best == nil || ts.Net.GreaterThan(s.Best.Net) {
			s.Best = ts
		}
		if s.Worst == nil || ts.Net.LessThan(s.Worst.Net) {
			s.Worst = ts
		}
	}

	s.Equity = s.Balance.Add(s.OpenValue)
	s.NetChange = s.Balance.Sub(s.Contribution)
	s.NetChangePct = PercentOf(s.NetChange, s.Contribution)
	s.NetPL = s.Equity.Sub(s.Contribution)
	s.NetPLPct = PercentOf(s.NetPL, s.Contribution)
	s.RealizedPct = PercentOf(s.Realized, s.Contribution)
	s.UnrealizedPct = PercentOf(s.Unrealized, s.Contribution)
	return s
}

// CreateSummary builds the Summary of a portfolio as of periodEnd. A nil
// periodStart covers the whole history. Rows of the open session count.
func (b *Broker) CreateSummary(id PortfolioID, periodEnd date.Date, periodStart *date.Date) (Summary, error) {
	p, err := b.Portfolio(id)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(p, b.history(id), b.lastClose, periodEnd, periodStart), nil
}

// BestTickers returns the ticker summaries sorted by decreasing Net.
func (s Summary) BestTickers() []TickerSummary {
	return slices.SortedStableFunc(slices.Values(s.Tickers), func(a, b TickerSummary) int {
		return b.Net.Decimal().Cmp(a.Net.Decimal())
	})
}

package backtest

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// processCorporateActions pays today's dividends and applies today's splits
// to every open position, ticker by ticker.
func (b *Broker) processCorporateActions(ctx context.Context) error {
	for _, t := range slices.Sorted(maps.Keys(b.rows)) {
		row := b.rows[t]
		if row.HasDividend() {
			if err := b.payDividends(ctx, t, row); err != nil {
				return err
			}
		}
		if row.HasSplit() {
			if err := b.applySplit(ctx, t, row); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Broker) payDividends(ctx context.Context, ticker Ticker, row Row) error {
	for _, p := range b.Portfolios() {
		for _, pos := range p.OpenPositionsByTicker(ticker) {
			total, err := p.PayDividend(row.Dividend, pos)
			if err != nil {
				return b.fail(p.ID(), ticker, err)
			}
			b.log.Info().
				Str("date", b.today.String()).
				Int64("portfolio", int64(p.ID())).
				Int64("position", int64(pos.ID())).
				Str("ticker", string(ticker)).
				Stringer("per_share", row.Dividend).
				Stringer("total", total).
				Msg(string(Dividend))
			tx := newTransaction(Dividend, p.ID(), pos.ID(), ticker, pos.Quantity(), row.Dividend, b.today)
			if err := b.record(ctx, tx); err != nil {
				return b.fail(p.ID(), ticker, err)
			}
		}
	}
	return nil
}

// applySplit adjusts every open position in ticker.
//
// The fractional share is settled in cash. A position left with less than one
// share is closed. Otherwise the lot is replaced by a new lot of whole shares
// at the adjusted price, dated today: the old lot closes at break-even.
func (b *Broker) applySplit(ctx context.Context, ticker Ticker, row Row) error {
	for _, p := range b.Portfolios() {
		for _, pos := range p.OpenPositionsByTicker(ticker) {
			if err := b.splitPosition(ctx, p, pos, row); err != nil {
				return b.fail(p.ID(), ticker, err)
			}
		}
	}
	return nil
}

func (b *Broker) splitPosition(ctx context.Context, p *Portfolio, pos *Position, row Row) error {
	closePrice := AdjustedPrice(pos.EntryPrice(), row.Split)
	if b.splitClose == SplitCloseAtMarket {
		closePrice = row.Close
	}
	adj, err := p.SplitPosition(pos, row.Split, closePrice, b.today)
	if err != nil {
		return err
	}
	b.log.Info().
		Str("date", b.today.String()).
		Int64("portfolio", int64(p.ID())).
		Int64("position", int64(pos.ID())).
		Str("ticker", string(pos.Ticker())).
		Stringer("coefficient", row.Split).
		Int("before", adj.Previous).
		Int("after", adj.Whole).
		Stringer("settlement", adj.CashSettlement).
		Msg(string(Split))

	var rows []Transaction
	if adj.CashSettlement.IsPositive() {
		if err := p.PayCashSettlement(adj.CashSettlement, pos); err != nil {
			return err
		}
		rows = append(rows, newTransaction(CashSettlement, p.ID(), pos.ID(), pos.Ticker(), 1, adj.CashSettlement, b.today))
	}

	if adj.Closed {
		rows = append(rows, newTransaction(Sell, p.ID(), pos.ID(), pos.Ticker(), 0, closePrice, b.today))
		return b.record(ctx, rows...)
	}

	// Closing at the adjusted price instead of the entry price realizes no
	// gain: the cost basis moves to the replacement lot and the settlement.
	repl, err := p.ReplacePosition(pos, b.ids.newPosition(), adj.AdjustedPrice, b.today)
	if err != nil {
		return fmt.Errorf("cannot replace %v after split: %w", pos, err)
	}
	tx := newTransaction(Split, p.ID(), repl.ID(), repl.Ticker(), repl.Quantity(), repl.EntryPrice(), b.today)
	tx.Replaces = pos.ID()
	rows = append(rows, tx)
	return b.record(ctx, rows...)
}

// processTaxes deducts last year's taxes on the first Update of a year, and
// any outstanding liability on other days.
func (b *Broker) processTaxes(ctx context.Context, newYear bool) error {
	for _, p := range b.Portfolios() {
		var amount Money
		if newYear {
			report, err := b.GenerateTaxReport(p.ID(), b.yesterday.EndOfYear())
			if err != nil {
				return b.fail(p.ID(), "", err)
			}
			b.log.Info().
				Int64("portfolio", int64(p.ID())).
				Int("year", report.Year).
				Stringer("short_term_gains", report.ShortTermGains).
				Stringer("long_term_gains", report.LongTermGains).
				Stringer("total", report.Total).
				Msg("tax report")
			amount = report.Due().Add(p.TaxLiability())
		} else if p.TaxLiability().IsPositive() && p.Balance().IsPositive() {
			amount = p.TaxLiability()
		}
		if amount.IsZero() {
			continue
		}
		paid, err := p.DeductTaxes(amount)
		if err != nil {
			return b.fail(p.ID(), "", err)
		}
		if p.TaxLiability().IsPositive() {
			b.log.Warn().Int64("portfolio", int64(p.ID())).Stringer("liability", p.TaxLiability()).Msg("tax liability carried forward")
		}
		if paid.IsZero() {
			continue
		}
		if err := b.record(ctx, newTransaction(Tax, p.ID(), 0, "", 1, paid, b.today)); err != nil {
			return b.fail(p.ID(), "", err)
		}
	}
	return nil
}

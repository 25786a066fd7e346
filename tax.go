package backtest

import (
	"cmp"
	"iter"
	"slices"

	"github.com/etnz/backtest/date"
	"github.com/shopspring/decimal"
)

const (
	// longTermDays is the holding period above which a gain is long-term.
	longTermDays = 365
	// qualifyingDays is the number of days a position must be held on each
	// side of a dividend date for the dividend to be qualified.
	qualifyingDays = 60
)

// Bracket is a marginal tax rate applied to the part of a gain above Threshold.
type Bracket struct {
	Threshold Money
	Rate      decimal.Decimal
}

// TaxPolicy holds the bracket tables and options of the tax engine.
type TaxPolicy struct {
	ShortTerm        []Bracket // also used for ordinary dividends
	LongTerm         []Bracket // also used for qualified dividends
	LossDeductionCap Money
	// FloorAtZero prevents the loss deduction from making the total negative.
	FloorAtZero bool
}

func bracket(threshold int, rate string) Bracket {
	return Bracket{Threshold: M(threshold), Rate: decimal.RequireFromString(rate)}
}

// DefaultTaxPolicy returns US 2020 single-filer tables with a $3,000 loss
// deduction and no floor.
func DefaultTaxPolicy() TaxPolicy {
	return TaxPolicy{
		ShortTerm: []Bracket{
			bracket(0, "0.10"),
			bracket(9875, "0.12"),
			bracket(40125, "0.22"),
			bracket(85525, "0.24"),
			bracket(163300, "0.32"),
			bracket(207350, "0.35"),
			bracket(518400, "0.37"),
		},
		LongTerm: []Bracket{
			bracket(0, "0"),
			bracket(40000, "0.15"),
			bracket(441450, "0.20"),
		},
		LossDeductionCap: M(3000),
	}
}

// ProgressiveTax walks table from the highest threshold down and taxes each
// slice of gain above a threshold at its rate.
func ProgressiveTax(gain Money, table []Bracket) Money {
	brackets := slices.SortedFunc(slices.Values(table), func(a, b Bracket) int {
		return b.Threshold.Decimal().Cmp(a.Threshold.Decimal())
	})
	var tax Money
	residual := gain
	for _, br := range brackets {
		if !residual.GreaterThan(br.Threshold) {
			continue
		}
		taxable := residual.Sub(br.Threshold)
		tax = tax.Add(taxable.Mul(br.Rate))
		residual = residual.Sub(taxable)
	}
	return tax
}

// TaxReport is the tax computation of a portfolio for one tax year, as of a day.
type TaxReport struct {
	Portfolio PortfolioID
	Year      int
	AsOf      date.Date

	ShortTermGains     Money
	LongTermGains      Money
	QualifiedDividends Money
	OrdinaryDividends  Money

	ShortTermTax  Money
	LongTermTax   Money
	NetGains      Money // short + long term capital gains
	LossDeduction Money
	Total         Money

	Positions []*Position // positions closed in the tax year, by exit date
}

// Due is the amount to deduct for this report: never negative.
func (r TaxReport) Due() Money { return MaxMoney(r.Total, Money{}) }

// IsQualified reports whether a dividend paid on day to pos is qualified:
// pos was opened at least 60 days before and not closed within 60 days after.
func IsQualified(pos *Position, day date.Date) bool {
	if pos.EntryDate().After(day.Add(-qualifyingDays)) {
		return false
	}
	return !pos.IsClosed() || !pos.ExitDate().Before(day.Add(qualifyingDays))
}

// Report computes the tax of p for the calendar year of asOf, counting
// positions closed and dividends paid from January 1st to asOf.
func (tp TaxPolicy) Report(p *Portfolio, dividends iter.Seq[Transaction], asOf date.Date) TaxReport {
	period := date.Range{From: asOf.StartOfYear(), To: asOf}
	r := TaxReport{Portfolio: p.ID(), Year: asOf.Year(), AsOf: asOf}

	for _, pos := range p.ClosedPositions() {
		if !period.Contains(pos.ExitDate()) {
			continue
		}
		r.Positions = append(r.Positions, pos)
		if pos.HoldingDays(asOf) > longTermDays {
			r.LongTermGains = r.LongTermGains.Add(pos.RealizedPL())
		} else {
			r.ShortTermGains = r.ShortTermGains.Add(pos.RealizedPL())
		}
	}
	slices.SortStableFunc(r.Positions, func(a, b *Position) int {
		return cmp.Or(a.ExitDate().Compare(b.ExitDate()), cmp.Compare(a.ID(), b.ID()))
	})

	for tx := range dividends {
		if tx.Type != Dividend || tx.Portfolio != p.ID() || !period.Contains(tx.Date) {
			continue
		}
		if pos, ok := p.Position(tx.Position); ok && IsQualified(pos, tx.Date) {
			r.QualifiedDividends = r.QualifiedDividends.Add(tx.Amount())
		} else {
			r.OrdinaryDividends = r.OrdinaryDividends.Add(tx.Amount())
		}
	}

	r.ShortTermTax = ProgressiveTax(r.ShortTermGains.Add(r.OrdinaryDividends), tp.ShortTerm)
	r.LongTermTax = ProgressiveTax(r.LongTermGains.Add(r.QualifiedDividends), tp.LongTerm)
	r.NetGains = r.ShortTermGains.Add(r.LongTermGains)
	r.LossDeduction = MinMoney(tp.LossDeductionCap, MinMoney(r.NetGains, Money{}).Abs())
	r.Total = r.ShortTermTax.Add(r.LongTermTax).Sub(r.LossDeduction)
	if tp.FloorAtZero {
		r.Total = MaxMoney(r.Total, Money{})
	}
	return r
}

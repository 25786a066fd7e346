package backtest

import (
	"fmt"

	"github.com/etnz/backtest/date"
	"github.com/shopspring/decimal"
)

// PortfolioID identifies a portfolio within a Broker. Zero means none.
type PortfolioID int64

// PositionID identifies a position within a Broker. Zero means none.
type PositionID int64

// Position is a single lot of a security: bought once, at one price, on one day.
//
// A position is open until Close is called; afterwards it is immutable and only
// kept for historical queries.
type Position struct {
	portfolio  PortfolioID
	id         PositionID
	ticker     Ticker
	quantity   int
	entryPrice Money
	entryDate  date.Date
	cost       Money // cost basis, fixed at open

	exitPrice   Money
	exitDate    date.Date
	dividends   Money
	settlements Money
	closed      bool
}

// OpenPosition creates a new open position of quantity shares of ticker bought at price.
func OpenPosition(portfolio PortfolioID, id PositionID, ticker Ticker, price Money, quantity int, on date.Date) (*Position, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: cannot open a position with less than one share, got %d", ErrInvalidState, quantity)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: entry price must be positive, got %v", ErrInvalidState, price)
	}
	return &Position{
		portfolio:  portfolio,
		id:         id,
		ticker:     ticker,
		quantity:   quantity,
		entryPrice: price,
		entryDate:  on,
		cost:       price.Times(quantity),
	}, nil
}

func (p *Position) ID() PositionID { return p.id }
func (p *Position) Portfolio() PortfolioID { return p.portfolio }
func (p *Position) Ticker() Ticker { return p.ticker }
func (p *Position) Quantity() int { return p.quantity }
func (p *Position) EntryPrice() Money { return p.entryPrice }
func (p *Position) EntryDate() date.Date { return p.entryDate }
func (p *Position) ExitPrice() Money { return p.exitPrice }
func (p *Position) ExitDate() date.Date { return p.exitDate }
func (p *Position) Dividends() Money { return p.dividends }
func (p *Position) CashSettlements() Money { return p.settlements }
func (p *Position) IsClosed() bool { return p.closed }

func (p *Position) String() string {
	return fmt.Sprintf("Position(#%d %s %d@%v)", p.id, p.ticker, p.quantity, p.entryPrice)
}

// Cost is the cost basis of the lot: quantity times entry price at open.
// A split changes the quantity of a lot but never its cost basis.
func (p *Position) Cost() Money { return p.cost }

// ExitValue is quantity times exit price. It is zero while the position is open.
func (p *Position) ExitValue() Money {
	if !p.closed {
		return Money{}
	}
	return p.exitPrice.Times(p.quantity)
}

// RealizedPL is (exit value - cost) + cash settlements received.
// It is zero while the position is open.
func (p *Position) RealizedPL() Money {
	if !p.closed {
		return Money{}
	}
	return p.ExitValue().Sub(p.cost).Add(p.settlements)
}

// UnrealizedPL is quantity*(price - entry price). It is zero once the position is closed.
func (p *Position) UnrealizedPL(price Money) Money {
	if p.closed {
		return Money{}
	}
	return price.Sub(p.entryPrice).Times(p.quantity)
}

// CurrentValue is quantity times price.
func (p *Position) CurrentValue(price Money) Money { return price.Times(p.quantity) }

// HoldingDays is the number of days the position was (or has been, as of asOf) held.
func (p *Position) HoldingDays(asOf date.Date) int {
	if p.closed {
		return p.exitDate.DaysSince(p.entryDate)
	}
	return asOf.DaysSince(p.entryDate)
}

// HeldOn reports whether the position was open at the end of day on.
func (p *Position) HeldOn(on date.Date) bool {
	if on.Before(p.entryDate) {
		return false
	}
	return !p.closed || p.exitDate.After(on)
}

// AdjustForDividend records a dividend of perShare for every share held and
// returns the total. It does not move cash: the owning Portfolio does.
func (p *Position) AdjustForDividend(perShare Money) (Money, error) {
	if p.closed {
		return Money{}, fmt.Errorf("%w: cannot pay a dividend to closed %v", ErrInvalidState, p)
	}
	if !perShare.IsPositive() {
		return Money{}, fmt.Errorf("%w: dividend per share must be positive, got %v", ErrInvalidState, perShare)
	}
	total := perShare.Times(p.quantity)
	p.dividends = p.dividends.Add(total)
	return total, nil
}

// PricePlaces is the number of decimal places of a split-adjusted price.
const PricePlaces = 8

// AdjustedPrice is price / coefficient truncated to PricePlaces, so it never
// exceeds the exact quotient.
func AdjustedPrice(price Money, coefficient decimal.Decimal) Money {
	return Money{value: price.value.Div(coefficient).Truncate(PricePlaces)}
}

// SplitAdjustment is the outcome of a stock split on a lot.
type SplitAdjustment struct {
	Previous       int             // quantity before the split
	Whole          int             // whole shares after the split
	Fraction       decimal.Decimal // fractional share paid out in cash
	AdjustedPrice  Money           // AdjustedPrice(entry price, coefficient)
	CashSettlement Money           // cost - Whole * AdjustedPrice
	Closed         bool            // true when Whole < 1 closed the position
}

// AdjustForSplit applies a split of the given coefficient (2 for a 2-for-1 split,
// 0.5 for a 1-for-2 reverse split).
//
// The quantity becomes the whole part of quantity*coefficient. The cost not
// carried by the whole shares at the adjusted price is settled in cash and
// accumulated in CashSettlements: the fractional share plus the truncation
// remainder of the adjusted price, so the lot splits at exact break-even.
// If less than one whole share remains, the position is closed at closePrice on day on.
func (p *Position) AdjustForSplit(coefficient decimal.Decimal, closePrice Money, on date.Date) (SplitAdjustment, error) {
	if p.closed {
		return SplitAdjustment{}, fmt.Errorf("%w: cannot split closed %v", ErrInvalidState, p)
	}
	if !coefficient.IsPositive() {
		return SplitAdjustment{}, fmt.Errorf("%w: split coefficient must be positive, got %v", ErrInvalidState, coefficient)
	}

	shares := decimal.NewFromInt(int64(p.quantity)).Mul(coefficient)
	whole := shares.Floor()
	adj := SplitAdjustment{
		Previous:      p.quantity,
		Whole:         int(whole.IntPart()),
		Fraction:      shares.Sub(whole),
		AdjustedPrice: AdjustedPrice(p.entryPrice, coefficient),
	}
	adj.CashSettlement = p.cost.Sub(adj.AdjustedPrice.Times(adj.Whole))

	p.quantity = adj.Whole
	p.settlements = p.settlements.Add(adj.CashSettlement)

	if adj.Whole < 1 {
		if _, err := p.Close(closePrice, on); err != nil {
			return adj, err
		}
		adj.Closed = true
	}
	return adj, nil
}

// Close closes the position at price and returns its exit value.
func (p *Position) Close(price Money, on date.Date) (Money, error) {
	if p.closed {
		return Money{}, fmt.Errorf("%w: attempt to close %v that has already been closed", ErrInvalidState, p)
	}
	p.exitPrice = price
	p.exitDate = on
	p.closed = true
	return p.ExitValue(), nil
}

// clone returns a copy of the position.
func (p *Position) clone() *Position {
	c := *p
	return &c
}

package backtest

import (
	"fmt"
	"maps"
	"slices"

	"github.com/etnz/backtest/date"
	"github.com/shopspring/decimal"
)

// Portfolio is the cash balance and the positions of one owner.
//
// The balance never goes negative: every debit checks it first and fails with
// ErrInsufficientFunds before any mutation.
type Portfolio struct {
	id      PortfolioID
	owner   string
	created date.Date

	balance      Money
	contribution Money
	taxesPaid    Money
	taxLiability Money

	tickers  map[Ticker]struct{}
	open     map[PositionID]*Position
	closed   map[PositionID]*Position
	byTicker map[Ticker][]PositionID // open positions only
}

// NewPortfolio creates an empty portfolio.
func NewPortfolio(id PortfolioID, owner string, created date.Date) *Portfolio {
	return &Portfolio{
		id:       id,
		owner:    owner,
		created:  created,
		tickers:  make(map[Ticker]struct{}),
		open:     make(map[PositionID]*Position),
		closed:   make(map[PositionID]*Position),
		byTicker: make(map[Ticker][]PositionID),
	}
}

func (p *Portfolio) ID() PortfolioID { return p.id }
func (p *Portfolio) Owner() string { return p.owner }
func (p *Portfolio) Created() date.Date { return p.created }
func (p *Portfolio) Balance() Money { return p.balance }
func (p *Portfolio) Contribution() Money { return p.contribution }
func (p *Portfolio) TaxesPaid() Money { return p.taxesPaid }
func (p *Portfolio) TaxLiability() Money { return p.taxLiability }

func (p *Portfolio) String() string {
	return fmt.Sprintf("Portfolio(#%d %s balance=%v)", p.id, p.owner, p.balance)
}

// debit removes amount from the balance, or fails without any change.
func (p *Portfolio) debit(amount Money) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative debit %v", ErrInvalidState, amount)
	}
	if p.balance.LessThan(amount) {
		return fmt.Errorf("%w: cannot debit %v from %v of portfolio #%d", ErrInsufficientFunds, amount, p.balance, p.id)
	}
	p.balance = p.balance.Sub(amount)
	return nil
}

func (p *Portfolio) credit(amount Money) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative credit %v", ErrInvalidState, amount)
	}
	p.balance = p.balance.Add(amount)
	return nil
}

// owns returns an error if pos is not a position of this portfolio.
func (p *Portfolio) owns(pos *Position) error {
	if pos == nil || pos.Portfolio() != p.id {
		return fmt.Errorf("%w: %v does not belong to portfolio #%d", ErrInvalidReference, pos, p.id)
	}
	if _, ok := p.open[pos.ID()]; ok {
		return nil
	}
	if _, ok := p.closed[pos.ID()]; ok {
		return nil
	}
	return fmt.Errorf("%w: %v is not registered in portfolio #%d", ErrInvalidReference, pos, p.id)
}

// OpenPosition buys quantity shares of ticker at price. The cost is debited
// first so an ErrInsufficientFunds leaves the portfolio untouched.
func (p *Portfolio) OpenPosition(id PositionID, ticker Ticker, price Money, quantity int, on date.Date) (*Position, error) {
	pos, err := OpenPosition(p.id, id, ticker, price, quantity, on)
	if err != nil {
		return nil, err
	}
	if err := p.debit(pos.Cost()); err != nil {
		return nil, err
	}
	p.register(pos)
	return pos, nil
}

func (p *Portfolio) register(pos *Position) {
	p.open[pos.ID()] = pos
	p.byTicker[pos.Ticker()] = append(p.byTicker[pos.Ticker()], pos.ID())
	p.tickers[pos.Ticker()] = struct{}{}
}

// retire moves pos from the open to the closed set.
func (p *Portfolio) retire(pos *Position) {
	delete(p.open, pos.ID())
	ids := slices.DeleteFunc(p.byTicker[pos.Ticker()], func(id PositionID) bool { return id == pos.ID() })
	if len(ids) == 0 {
		delete(p.byTicker, pos.Ticker())
	} else {
		p.byTicker[pos.Ticker()] = ids
	}
	p.closed[pos.ID()] = pos
}

// ClosePosition sells pos at price and credits its exit value.
func (p *Portfolio) ClosePosition(pos *Position, price Money, on date.Date) (Money, error) {
	if err := p.owns(pos); err != nil {
		return Money{}, err
	}
	value, err := pos.Close(price, on)
	if err != nil {
		return Money{}, err
	}
	p.retire(pos)
	if err := p.credit(value); err != nil {
		return Money{}, err
	}
	return value, nil
}

// Deposit adds cash to the portfolio and counts it as a contribution.
func (p *Portfolio) Deposit(amount Money) error {
	if err := p.credit(amount); err != nil {
		return err
	}
	p.contribution = p.contribution.Add(amount)
	return nil
}

// Withdraw removes cash from the portfolio.
func (p *Portfolio) Withdraw(amount Money) error { return p.debit(amount) }

// PayDividend credits a dividend of perShare to pos and returns the total paid.
func (p *Portfolio) PayDividend(perShare Money, pos *Position) (Money, error) {
	if err := p.owns(pos); err != nil {
		return Money{}, err
	}
	total, err := pos.AdjustForDividend(perShare)
	if err != nil {
		return Money{}, err
	}
	return total, p.credit(total)
}

// SplitPosition applies a split to pos. A position left with less than one
// share is closed at closePrice. The cash settlement is not credited: see
// PayCashSettlement.
func (p *Portfolio) SplitPosition(pos *Position, coefficient decimal.Decimal, closePrice Money, on date.Date) (SplitAdjustment, error) {
	if err := p.owns(pos); err != nil {
		return SplitAdjustment{}, err
	}
	adj, err := pos.AdjustForSplit(coefficient, closePrice, on)
	if err != nil {
		return adj, err
	}
	if adj.Closed {
		p.retire(pos)
	}
	return adj, nil
}

// PayCashSettlement credits the cash paid for the fractional share of a split
// of pos. The amount itself is recorded on pos by SplitPosition.
func (p *Portfolio) PayCashSettlement(amount Money, pos *Position) error {
	if err := p.owns(pos); err != nil {
		return err
	}
	return p.credit(amount)
}

// ReplacePosition closes old at price and opens a new lot of the same
// quantity at price, without any cash movement.
func (p *Portfolio) ReplacePosition(old *Position, id PositionID, price Money, on date.Date) (*Position, error) {
	if err := p.owns(old); err != nil {
		return nil, err
	}
	pos, err := OpenPosition(p.id, id, old.Ticker(), price, old.Quantity(), on)
	if err != nil {
		return nil, err
	}
	if _, err := old.Close(price, on); err != nil {
		return nil, err
	}
	p.retire(old)
	p.register(pos)
	return pos, nil
}

// DeductTaxes pays as much of amount as the balance allows. The shortfall is
// carried as tax liability. It returns the amount paid.
func (p *Portfolio) DeductTaxes(amount Money) (Money, error) {
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("%w: negative tax %v", ErrInvalidState, amount)
	}
	paid := MinMoney(MaxMoney(p.balance, Money{}), amount)
	if err := p.debit(paid); err != nil {
		return Money{}, err
	}
	p.taxesPaid = p.taxesPaid.Add(paid)
	p.taxLiability = amount.Sub(paid)
	return paid, nil
}

// PayForBuyOrder reserves the cost of a queued buy order.
func (p *Portfolio) PayForBuyOrder(amount Money) error { return p.debit(amount) }

// RefundUnfilledBuyOrder gives back a reservation made by PayForBuyOrder.
func (p *Portfolio) RefundUnfilledBuyOrder(amount Money) error { return p.credit(amount) }

// Position returns a position by id, open or closed.
func (p *Portfolio) Position(id PositionID) (*Position, bool) {
	if pos, ok := p.open[id]; ok {
		return pos, true
	}
	pos, ok := p.closed[id]
	return pos, ok
}

// OpenPositions returns open positions by ascending id.
func (p *Portfolio) OpenPositions() []*Position { return sortedPositions(p.open) }

// ClosedPositions returns closed positions by ascending id.
func (p *Portfolio) ClosedPositions() []*Position { return sortedPositions(p.closed) }

// OpenPositionsByTicker returns the open positions of ticker by ascending id.
func (p *Portfolio) OpenPositionsByTicker(ticker Ticker) []*Position {
	ids := slices.Sorted(slices.Values(p.byTicker[ticker]))
	positions := make([]*Position, 0, len(ids))
	for _, id := range ids {
		positions = append(positions, p.open[id])
	}
	return positions
}

// Tickers returns every ticker ever traded, sorted.
func (p *Portfolio) Tickers() []Ticker { return slices.Sorted(maps.Keys(p.tickers)) }

// Clone returns a deep copy of the portfolio.
func (p *Portfolio) Clone() *Portfolio {
	c := *p
	c.tickers = maps.Clone(p.tickers)
	c.open = make(map[PositionID]*Position, len(p.open))
	for id, pos := range p.open {
		c.open[id] = pos.clone()
	}
	c.closed = make(map[PositionID]*Position, len(p.closed))
	for id, pos := range p.closed {
		c.closed[id] = pos.clone()
	}
	c.byTicker = make(map[Ticker][]PositionID, len(p.byTicker))
	for t, ids := range p.byTicker {
		c.byTicker[t] = slices.Clone(ids)
	}
	return &c
}

// restore sets p back to snapshot, a Clone of p. Positions known to both are
// overwritten in place.
func (p *Portfolio) restore(snapshot *Portfolio) {
	live := maps.Clone(p.open)
	maps.Copy(live, p.closed)
	keep := func(saved map[PositionID]*Position) map[PositionID]*Position {
		m := make(map[PositionID]*Position, len(saved))
		for id, pos := range saved {
			if cur, ok := live[id]; ok {
				*cur = *pos
				pos = cur
			}
			m[id] = pos
		}
		return m
	}
	open, closed := keep(snapshot.open), keep(snapshot.closed)
	*p = *snapshot
	p.open, p.closed = open, closed
}

func sortedPositions(m map[PositionID]*Position) []*Position {
	positions := make([]*Position, 0, len(m))
	for _, id := range slices.Sorted(maps.Keys(m)) {
		positions = append(positions, m[id])
	}
	return positions
}

package backtest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/etnz/backtest/date"
	"github.com/rs/zerolog"
)

// SplitClosePolicy chooses the exit price recorded when a split leaves a
// position with less than one whole share.
type SplitClosePolicy int

const (
	// SplitCloseAtAdjustedPrice closes at entry price / coefficient.
	SplitCloseAtAdjustedPrice SplitClosePolicy = iota
	// SplitCloseAtMarket closes at the day's close.
	SplitCloseAtMarket
)

func (p SplitClosePolicy) String() string {
	switch p {
	case SplitCloseAtAdjustedPrice:
		return "adjusted"
	case SplitCloseAtMarket:
		return "market"
	default:
		return "unknown"
	}
}

// ParseSplitClosePolicy parses "adjusted" or "market".
func ParseSplitClosePolicy(s string) (SplitClosePolicy, error) {
	switch s {
	case "adjusted", "":
		return SplitCloseAtAdjustedPrice, nil
	case "market":
		return SplitCloseAtMarket, nil
	default:
		return 0, fmt.Errorf("unknown split close policy: %q", s)
	}
}

// Observer is notified of the Broker's activity.
type Observer interface {
	// Committed is called with every batch of rows appended to the ledger.
	Committed(rows []Transaction)
	// RolledBack is called when a session is discarded.
	RolledBack()
	// Skipped is called when an operation fails with an expected error
	// (insufficient funds or data gap).
	Skipped(portfolio PortfolioID, ticker Ticker, err error)
	// Updated is called at the end of each Update.
	Updated(day date.Date)
}

type nopObserver struct{}

func (nopObserver) Committed([]Transaction) {}
func (nopObserver) RolledBack() {}
func (nopObserver) Skipped(PortfolioID, Ticker, error) {}
func (nopObserver) Updated(date.Date) {}

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the logger of the Broker.
func WithLogger(log zerolog.Logger) Option { return func(b *Broker) { b.log = log } }

// WithStore adds a durable sink receiving every committed batch of rows.
func WithStore(store LedgerStore) Option { return func(b *Broker) { b.store = store } }

// WithTaxPolicy replaces DefaultTaxPolicy.
func WithTaxPolicy(policy TaxPolicy) Option { return func(b *Broker) { b.tax = policy } }

// WithSplitClosePolicy sets the SplitClosePolicy.
func WithSplitClosePolicy(policy SplitClosePolicy) Option {
	return func(b *Broker) { b.splitClose = policy }
}

// WithObserver sets the Observer.
func WithObserver(o Observer) Option { return func(b *Broker) { b.observer = o } }

// idAllocator hands out monotonic portfolio and position ids starting at 1.
type idAllocator struct {
	portfolio int64
	position  int64
}

func (a *idAllocator) newPortfolio() PortfolioID { a.portfolio++; return PortfolioID(a.portfolio) }
func (a *idAllocator) newPosition() PositionID { a.position++; return PositionID(a.position) }

// Price is the price of an order.
type Price struct {
	value Money
}

// AtMarket is the last known close of the ticker.
var AtMarket = Price{}

// At is a fixed price.
func At(m Money) Price { return Price{value: m} }

// IsMarket reports whether p is the market price.
func (p Price) IsMarket() bool { return p.value.IsZero() }

func (p Price) String() string {
	if p.IsMarket() {
		return "market"
	}
	return p.value.String()
}

// Broker simulates a brokerage account manager over daily market data.
//
// It owns the portfolios, the ledger, the simulation clock and the id
// allocator. It is not safe for concurrent use.
type Broker struct {
	market     MarketData
	log        zerolog.Logger
	store      LedgerStore
	tax        TaxPolicy
	splitClose SplitClosePolicy
	observer   Observer

	ids        idAllocator
	ledger     *Ledger
	portfolios map[PortfolioID]*Portfolio

	tickers   map[Ticker]struct{} // tickers loaded at each Update
	today     date.Date
	yesterday date.Date
	rows      map[Ticker]Row   // today
	prevRows  map[Ticker]Row   // yesterday
	lastClose map[Ticker]Money // last known close

	session *Session
}

// NewBroker creates a Broker reading market data from market.
func NewBroker(market MarketData, opts ...Option) *Broker {
	b := &Broker{
		market:     market,
		log:        zerolog.Nop(),
		tax:        DefaultTaxPolicy(),
		observer:   nopObserver{},
		ledger:     NewLedger(),
		portfolios: make(map[PortfolioID]*Portfolio),
		tickers:    make(map[Ticker]struct{}),
		rows:       make(map[Ticker]Row),
		prevRows:   make(map[Ticker]Row),
		lastClose:  make(map[Ticker]Money),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Ledger returns the in-memory ledger.
func (b *Broker) Ledger() *Ledger { return b.ledger }

// Today returns the current simulation day.
func (b *Broker) Today() date.Date { return b.today }

// Yesterday returns the previous simulation day.
func (b *Broker) Yesterday() date.Date { return b.yesterday }

// Watch adds tickers to the set loaded at each Update.
func (b *Broker) Watch(tickers ...Ticker) {
	for _, t := range tickers {
		b.tickers[t] = struct{}{}
	}
}

// Tickers returns the watched tickers, sorted.
func (b *Broker) Tickers() []Ticker { return slices.Sorted(maps.Keys(b.tickers)) }

// Quote returns today's and yesterday's rows of ticker. ok is false if
// today's row is missing.
func (b *Broker) Quote(ticker Ticker) (today, yesterday Row, ok bool) {
	today, ok = b.rows[ticker]
	yesterday = b.prevRows[ticker]
	return today, yesterday, ok
}

// LastClose returns the last known close of ticker.
func (b *Broker) LastClose(ticker Ticker) (Money, bool) {
	m, ok := b.lastClose[ticker]
	return m, ok
}

// Prices returns the last known close of every ticker.
func (b *Broker) Prices() map[Ticker]Money { return maps.Clone(b.lastClose) }

// Portfolio returns a portfolio by id.
func (b *Broker) Portfolio(id PortfolioID) (*Portfolio, error) {
	p, ok := b.portfolios[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown portfolio #%d", ErrInvalidReference, id)
	}
	return p, nil
}

// Portfolios returns every portfolio by ascending id.
func (b *Broker) Portfolios() []*Portfolio {
	ps := make([]*Portfolio, 0, len(b.portfolios))
	for _, id := range slices.Sorted(maps.Keys(b.portfolios)) {
		ps = append(ps, b.portfolios[id])
	}
	return ps
}

// Balance returns the cash balance of a portfolio.
func (b *Broker) Balance(id PortfolioID) (Money, error) {
	p, err := b.Portfolio(id)
	if err != nil {
		return Money{}, err
	}
	return p.Balance(), nil
}

// OpenPositions returns the open positions of a portfolio.
func (b *Broker) OpenPositions(id PortfolioID) ([]*Position, error) {
	p, err := b.Portfolio(id)
	if err != nil {
		return nil, err
	}
	return p.OpenPositions(), nil
}

// OpenPositionsByTicker returns the open positions of a portfolio in ticker.
func (b *Broker) OpenPositionsByTicker(id PortfolioID, ticker Ticker) ([]*Position, error) {
	p, err := b.Portfolio(id)
	if err != nil {
		return nil, err
	}
	return p.OpenPositionsByTicker(ticker), nil
}

// fail classifies err: fatal errors poison the open session, expected ones
// are reported to the observer.
func (b *Broker) fail(portfolio PortfolioID, ticker Ticker, err error) error {
	if err == nil {
		return nil
	}
	if IsFatal(err) {
		if b.session != nil && b.session.err == nil {
			b.session.err = err
		}
		return err
	}
	b.log.Info().Err(err).Int64("portfolio", int64(portfolio)).Str("ticker", string(ticker)).Msg("skipped")
	b.observer.Skipped(portfolio, ticker, err)
	return err
}

// atomic runs op in the open session, or in a session of its own committed
// at once: portfolios never change without their ledger rows.
func (b *Broker) atomic(ctx context.Context, op func() error) error {
	if b.session != nil {
		return op()
	}
	sess, err := b.Begin()
	if err != nil {
		return err
	}
	sess.implicit = true
	defer sess.Rollback()
	if err := op(); err != nil {
		return err
	}
	return sess.Commit(ctx)
}

// history returns the rows of a portfolio: the ledger, then the rows held by
// the open session.
func (b *Broker) history(id PortfolioID) iter.Seq[Transaction] {
	return func(yield func(Transaction) bool) {
		for tx := range b.ledger.ByPortfolio(id) {
			if !yield(tx) {
				return
			}
		}
		if b.session == nil {
			return
		}
		for _, tx := range b.session.rows {
			if tx.Portfolio == id && !yield(tx) {
				return
			}
		}
	}
}

// record appends rows to the ledger, or queues them in the open session.
func (b *Broker) record(ctx context.Context, rows ...Transaction) error {
	if b.session != nil {
		b.session.rows = append(b.session.rows, rows...)
		return nil
	}
	return b.appendRows(ctx, rows)
}

// appendRows writes rows to the store and the ledger as one batch.
func (b *Broker) appendRows(ctx context.Context, rows []Transaction) error {
	if len(rows) == 0 {
		return nil
	}
	for _, tx := range rows {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("invalid ledger row %v: %w", tx, err)
		}
	}
	if b.store != nil {
		if err := b.store.AppendBatch(ctx, rows); err != nil {
			return fmt.Errorf("cannot store ledger rows: %w", err)
		}
	}
	if err := b.ledger.AppendBatch(ctx, rows); err != nil {
		return err
	}
	b.observer.Committed(rows)
	return nil
}

// CreatePortfolio registers a new portfolio funded with initial.
func (b *Broker) CreatePortfolio(ctx context.Context, owner string, initial Money) (PortfolioID, error) {
	if initial.IsNegative() {
		return 0, b.fail(0, "", fmt.Errorf("%w: negative initial contribution %v", ErrInvalidState, initial))
	}
	var id PortfolioID
	err := b.atomic(ctx, func() error {
		p := NewPortfolio(b.ids.newPortfolio(), owner, b.today)
		b.portfolios[p.ID()] = p
		id = p.ID()
		if initial.IsZero() {
			return nil
		}
		return b.AddContribution(ctx, id, initial)
	})
	if err != nil {
		return 0, err
	}
	b.log.Info().Int64("portfolio", int64(id)).Str("owner", owner).Stringer("initial", initial).Msg("portfolio created")
	return id, nil
}

// AddContribution deposits amount into a portfolio.
func (b *Broker) AddContribution(ctx context.Context, id PortfolioID, amount Money) error {
	p, err := b.Portfolio(id)
	if err != nil {
		return b.fail(id, "", err)
	}
	return b.fail(id, "", b.atomic(ctx, func() error {
		if err := p.Deposit(amount); err != nil {
			return err
		}
		return b.record(ctx, newTransaction(Deposit, id, 0, "", 1, amount, b.today))
	}))
}

// Withdraw removes amount from a portfolio.
func (b *Broker) Withdraw(ctx context.Context, id PortfolioID, amount Money) error {
	p, err := b.Portfolio(id)
	if err != nil {
		return b.fail(id, "", err)
	}
	return b.fail(id, "", b.atomic(ctx, func() error {
		if err := p.Withdraw(amount); err != nil {
			return err
		}
		return b.record(ctx, newTransaction(Withdrawal, id, 0, "", 1, amount, b.today))
	}))
}

// resolve returns the price of an order on ticker. A ticker without a known
// close yet is loaded for today.
func (b *Broker) resolve(ctx context.Context, ticker Ticker, price Price) (Money, error) {
	if !price.IsMarket() {
		return price.value, nil
	}
	if last, ok := b.lastClose[ticker]; ok {
		return last, nil
	}
	if b.today.IsZero() {
		return Money{}, fmt.Errorf("%w: no price for %s before the first Update", ErrDataGap, ticker)
	}
	row, err := b.market.Row(ctx, ticker, b.today)
	if err != nil {
		return Money{}, fmt.Errorf("no price for %s as of %s: %w", ticker, b.today, err)
	}
	b.rows[ticker] = row
	b.lastClose[ticker] = row.Close
	return row.Close, nil
}

// ExecuteBuyOrder buys quantity shares of ticker for a portfolio.
//
// Inside a Session the cost is reserved and the order is filled on Commit: the
// returned position is nil. Otherwise the position is opened at once.
func (b *Broker) ExecuteBuyOrder(ctx context.Context, id PortfolioID, ticker Ticker, quantity int, price Price) (*Position, error) {
	p, err := b.Portfolio(id)
	if err != nil {
		return nil, b.fail(id, ticker, err)
	}
	if ticker == "" || quantity <= 0 {
		return nil, b.fail(id, ticker, fmt.Errorf("%w: buy order of %d shares of %q", ErrInvalidState, quantity, ticker))
	}
	b.Watch(ticker)
	unit, err := b.resolve(ctx, ticker, price)
	if err != nil {
		return nil, b.fail(id, ticker, err)
	}

	if b.session != nil {
		cost := unit.Times(quantity)
		if err := p.PayForBuyOrder(cost); err != nil {
			return nil, b.fail(id, ticker, err)
		}
		b.session.orders = append(b.session.orders, buyOrder{
			portfolio: id,
			ticker:    ticker,
			quantity:  quantity,
			price:     unit,
			day:       b.today,
			reserved:  cost,
		})
		b.log.Debug().Int64("portfolio", int64(id)).Str("ticker", string(ticker)).Int("quantity", quantity).Stringer("price", unit).Msg("buy order queued")
		return nil, nil
	}

	var pos *Position
	err = b.atomic(ctx, func() error {
		var err error
		pos, err = p.OpenPosition(b.ids.newPosition(), ticker, unit, quantity, b.today)
		if err != nil {
			return err
		}
		return b.record(ctx, newTransaction(Buy, id, pos.ID(), ticker, quantity, unit, b.today))
	})
	if err != nil {
		return nil, b.fail(id, ticker, err)
	}
	b.logTrade(Buy, pos, unit)
	return pos, nil
}

// ClosePosition sells pos.
func (b *Broker) ClosePosition(ctx context.Context, pos *Position, price Price) (Money, error) {
	if pos == nil {
		return Money{}, b.fail(0, "", fmt.Errorf("%w: nil position", ErrInvalidReference))
	}
	p, err := b.Portfolio(pos.Portfolio())
	if err != nil {
		return Money{}, b.fail(pos.Portfolio(), pos.Ticker(), err)
	}
	unit, err := b.resolve(ctx, pos.Ticker(), price)
	if err != nil {
		return Money{}, b.fail(p.ID(), pos.Ticker(), err)
	}
	var value Money
	err = b.atomic(ctx, func() error {
		var err error
		if value, err = p.ClosePosition(pos, unit, b.today); err != nil {
			return err
		}
		return b.record(ctx, newTransaction(Sell, p.ID(), pos.ID(), pos.Ticker(), pos.Quantity(), unit, b.today))
	})
	if err != nil {
		return Money{}, b.fail(p.ID(), pos.Ticker(), err)
	}
	b.logTrade(Sell, pos, unit)
	return value, nil
}

func (b *Broker) logTrade(typ TransactionType, pos *Position, price Money) {
	e := b.log.Info().
		Str("date", b.today.String()).
		Int64("portfolio", int64(pos.Portfolio())).
		Int64("position", int64(pos.ID())).
		Str("ticker", string(pos.Ticker())).
		Int("quantity", pos.Quantity()).
		Stringer("price", price)
	if typ == Sell {
		e = e.Stringer("realized", pos.RealizedPL())
	}
	e.Msg(string(typ))
}

// Update advances the clock to today, loads the day's rows of every watched
// ticker and processes corporate actions and taxes.
//
// A missing row is logged and the ticker is skipped for the day.
func (b *Broker) Update(ctx context.Context, today date.Date) error {
	if b.session != nil {
		return fmt.Errorf("%w: Update during an open session", ErrInvalidState)
	}
	if !b.today.IsZero() && !today.After(b.today) {
		return fmt.Errorf("%w: Update to %s is not after %s", ErrInvalidState, today, b.today)
	}
	newYear := !b.today.IsZero() && today.Year() != b.today.Year()

	rows := make(map[Ticker]Row, len(b.tickers))
	for _, t := range b.Tickers() {
		row, err := b.market.Row(ctx, t, today)
		if errors.Is(err, ErrDataGap) {
			b.log.Warn().Str("date", today.String()).Str("ticker", string(t)).Msg("missing market data")
			b.observer.Skipped(0, t, err)
			continue
		}
		if err != nil {
			return fmt.Errorf("cannot load %s on %s: %w", t, today, err)
		}
		rows[t] = row
	}

	b.yesterday, b.today = b.today, today
	b.prevRows, b.rows = b.rows, rows
	for t, row := range rows {
		b.lastClose[t] = row.Close
	}

	sess, err := b.Begin()
	if err != nil {
		return err
	}
	defer sess.Rollback()
	if err := b.processCorporateActions(ctx); err != nil {
		return err
	}
	if err := b.processTaxes(ctx, newYear); err != nil {
		return err
	}
	if err := sess.Commit(ctx); err != nil {
		return err
	}
	b.observer.Updated(today)
	return nil
}

// GenerateTaxReport computes the tax of a portfolio for the year of asOf,
// counting the rows of the open session.
func (b *Broker) GenerateTaxReport(id PortfolioID, asOf date.Date) (TaxReport, error) {
	p, err := b.Portfolio(id)
	if err != nil {
		return TaxReport{}, err
	}
	return b.tax.Report(p, b.history(id), asOf), nil
}

package backtest

import (
	"context"
	"fmt"

	"github.com/etnz/backtest/date"
)

// buyOrder is a buy queued in a Session.
type buyOrder struct {
	portfolio PortfolioID
	ticker    Ticker
	quantity  int
	price     Money
	day       date.Date
	reserved  Money
}

// Session is a batch of Broker operations committed atomically.
//
// Buy orders issued during the session reserve their cost at once and are
// filled on Commit. Other operations take effect at once but their ledger rows
// are held until Commit. Rollback restores the portfolios as they were on
// Begin, in place: positions held before Begin keep their identity.
//
//	sess, err := b.Begin()
//	if err != nil {
//		return err
//	}
//	defer sess.Rollback()
//	... issue orders ...
//	return sess.Commit(ctx)
type Session struct {
	b          *Broker
	portfolios map[PortfolioID]*Portfolio
	ids        idAllocator

	orders []buyOrder
	rows   []Transaction
	err    error // first fatal error of the session
	done   bool

	implicit bool // opened by the Broker for a single operation
}

// Begin opens a Session. Only one session can be open at a time.
func (b *Broker) Begin() (*Session, error) {
	if b.session != nil {
		return nil, fmt.Errorf("%w: a session is already open", ErrInvalidState)
	}
	snapshot := make(map[PortfolioID]*Portfolio, len(b.portfolios))
	for id, p := range b.portfolios {
		snapshot[id] = p.Clone()
	}
	b.session = &Session{b: b, portfolios: snapshot, ids: b.ids}
	return b.session, nil
}

// Pending returns the number of queued buy orders.
func (s *Session) Pending() int { return len(s.orders) }

// Commit fills the queued buy orders in order and appends every row of the
// session to the ledger as one batch. On any error the session is rolled back.
func (s *Session) Commit(ctx context.Context) error {
	if s.done {
		return fmt.Errorf("%w: session already closed", ErrInvalidState)
	}
	if s.err != nil {
		err := s.err
		s.Rollback()
		return fmt.Errorf("session rolled back: %w", err)
	}

	b := s.b
	rows := s.rows
	for _, o := range s.orders {
		p, err := b.Portfolio(o.portfolio)
		if err != nil {
			s.Rollback()
			return err
		}
		if err := p.RefundUnfilledBuyOrder(o.reserved); err != nil {
			s.Rollback()
			return err
		}
		pos, err := p.OpenPosition(b.ids.newPosition(), o.ticker, o.price, o.quantity, o.day)
		if err != nil {
			s.Rollback()
			return fmt.Errorf("cannot fill buy order of %d %s: %w", o.quantity, o.ticker, err)
		}
		b.logTrade(Buy, pos, o.price)
		rows = append(rows, newTransaction(Buy, o.portfolio, pos.ID(), o.ticker, o.quantity, o.price, o.day))
	}

	// the session must be closed for appendRows to write through
	b.session = nil
	if err := b.appendRows(ctx, rows); err != nil {
		b.session = s
		s.Rollback()
		return err
	}
	s.done = true
	return nil
}

// Rollback discards the session and restores the state of Begin. It does
// nothing once the session is committed or rolled back.
func (s *Session) Rollback() {
	if s.done {
		return
	}
	s.done = true
	b := s.b
	for id, p := range b.portfolios {
		if saved, ok := s.portfolios[id]; ok {
			p.restore(saved)
		} else {
			delete(b.portfolios, id)
		}
	}
	b.ids = s.ids
	if b.session == s {
		b.session = nil
	}
	if s.implicit {
		return
	}
	b.log.Debug().Int("orders", len(s.orders)).Int("rows", len(s.rows)).Msg("session rolled back")
	b.observer.RolledBack()
}

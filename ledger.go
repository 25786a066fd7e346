package backtest

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/etnz/backtest/date"
)

// LedgerStore is a durable sink for ledger rows.
type LedgerStore interface {
	// AppendBatch stores rows atomically: all of them or none.
	AppendBatch(ctx context.Context, rows []Transaction) error
}

// Ledger is the append-only, in-memory list of transactions of a Broker.
//
// Rows are kept in the order they were appended, which is chronological for a
// backtest.
type Ledger struct {
	transactions []Transaction
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{transactions: make([]Transaction, 0)}
}

// AppendBatch validates every row then appends them all. Nothing is appended
// if one row is invalid.
func (l *Ledger) AppendBatch(ctx context.Context, rows []Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, tx := range rows {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("invalid ledger row %v: %w", tx, err)
		}
	}
	l.transactions = append(l.transactions, rows...)
	return nil
}

// Len returns the number of rows.
func (l *Ledger) Len() int { return len(l.transactions) }

// Transactions returns a copy of all rows.
func (l *Ledger) Transactions() []Transaction { return slices.Clone(l.transactions) }

// All iterates over all rows in order.
func (l *Ledger) All() iter.Seq2[int, Transaction] { return slices.All(l.transactions) }

// Filter iterates over rows matching keep.
func (l *Ledger) Filter(keep func(Transaction) bool) iter.Seq[Transaction] {
	return func(yield func(Transaction) bool) {
		for _, tx := range l.transactions {
			if keep(tx) && !yield(tx) {
				return
			}
		}
	}
}

// ByPortfolio iterates over the rows of a portfolio.
func (l *Ledger) ByPortfolio(id PortfolioID) iter.Seq[Transaction] {
	return l.Filter(func(tx Transaction) bool { return tx.Portfolio == id })
}

// ByPosition iterates over the rows referencing a position.
func (l *Ledger) ByPosition(id PositionID) iter.Seq[Transaction] {
	return l.Filter(func(tx Transaction) bool { return tx.Position == id })
}

// ByType iterates over the rows of a portfolio with the given type.
func (l *Ledger) ByType(id PortfolioID, typ TransactionType) iter.Seq[Transaction] {
	return l.Filter(func(tx Transaction) bool { return tx.Portfolio == id && tx.Type == typ })
}

// Between iterates over the rows of a portfolio dated within r.
func (l *Ledger) Between(id PortfolioID, r date.Range) iter.Seq[Transaction] {
	return l.Filter(func(tx Transaction) bool { return tx.Portfolio == id && r.Contains(tx.Date) })
}

// Balance replays the cash flows of a portfolio.
func (l *Ledger) Balance(id PortfolioID) Money {
	var total Money
	for tx := range l.ByPortfolio(id) {
		total = total.Add(tx.CashFlow())
	}
	return total
}

// Sum adds the amounts of rows.
func Sum(rows iter.Seq[Transaction]) Money {
	var total Money
	for tx := range rows {
		total = total.Add(tx.Amount())
	}
	return total
}

package backtest

import (
	"encoding/json"
	"fmt"

	"github.com/etnz/backtest/date"
	"github.com/google/uuid"
)

// TransactionType is the kind of a ledger row.
type TransactionType string

// Transaction types.
const (
	Deposit        TransactionType = "DEPOSIT"
	Withdrawal     TransactionType = "WITHDRAWAL"
	Buy            TransactionType = "BUY"
	Sell           TransactionType = "SELL"
	Dividend       TransactionType = "DIVIDEND"
	CashSettlement TransactionType = "CASH_SETTLEMENT"
	Tax            TransactionType = "TAX"
	// Split records the replacement of a lot after a stock split. It carries no cash.
	Split TransactionType = "SPLIT"
)

var transactionTypes = []TransactionType{Deposit, Withdrawal, Buy, Sell, Dividend, CashSettlement, Tax, Split}

// ParseTransactionType validates s as a TransactionType.
func ParseTransactionType(s string) (TransactionType, error) {
	for _, t := range transactionTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

// needsPosition reports whether rows of that type must reference a position.
func (t TransactionType) needsPosition() bool {
	switch t {
	case Buy, Sell, Dividend, CashSettlement, Split:
		return true
	}
	return false
}

// Transaction is an immutable ledger row.
//
// Cash rows (DEPOSIT, WITHDRAWAL, TAX) use a quantity of 1 and the amount as price.
type Transaction struct {
	ID        string
	Portfolio PortfolioID
	Position  PositionID // zero when the row is not about a position
	Type      TransactionType
	Ticker    Ticker
	Quantity  int
	Price     Money
	Date      date.Date
	Replaces  PositionID // the lot a SPLIT row replaces
}

// newTransaction returns a transaction with a fresh id.
func newTransaction(typ TransactionType, portfolio PortfolioID, position PositionID, ticker Ticker, quantity int, price Money, on date.Date) Transaction {
	return Transaction{
		ID:        uuid.NewString(),
		Portfolio: portfolio,
		Position:  position,
		Type:      typ,
		Ticker:    ticker,
		Quantity:  quantity,
		Price:     price,
		Date:      on,
	}
}

// Amount is quantity times price.
func (t Transaction) Amount() Money { return t.Price.Times(t.Quantity) }

// CashFlow is the signed effect of the row on the portfolio balance.
func (t Transaction) CashFlow() Money {
	switch t.Type {
	case Deposit, Sell, Dividend, CashSettlement:
		return t.Amount()
	case Withdrawal, Buy, Tax:
		return t.Amount().Neg()
	}
	return Money{}
}

// Validate checks the row is well formed.
func (t Transaction) Validate() error {
	if _, err := ParseTransactionType(string(t.Type)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if t.Portfolio <= 0 {
		return fmt.Errorf("%w: %s transaction without portfolio", ErrInvalidReference, t.Type)
	}
	if t.Type.needsPosition() {
		if t.Position <= 0 {
			return fmt.Errorf("%w: %s transaction without position", ErrInvalidReference, t.Type)
		}
		if t.Ticker == "" {
			return fmt.Errorf("%w: %s transaction without ticker", ErrInvalidState, t.Type)
		}
	}
	if t.Type == Buy && t.Quantity <= 0 {
		return fmt.Errorf("%w: BUY of %d shares of %s", ErrInvalidState, t.Quantity, t.Ticker)
	}
	if t.Quantity < 0 || t.Price.IsNegative() {
		return fmt.Errorf("%w: negative %s transaction", ErrInvalidState, t.Type)
	}
	return nil
}

func (t Transaction) String() string {
	if t.Ticker == "" {
		return fmt.Sprintf("%s %s %s", t.Date, t.Type, t.Amount())
	}
	return fmt.Sprintf("%s %s %d %s @ %s", t.Date, t.Type, t.Quantity, t.Ticker, t.Price)
}

// MarshalJSON writes fields in a fixed order.
func (t Transaction) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("id", t.ID)
	w.Append("date", t.Date)
	w.Append("type", t.Type)
	w.Append("portfolio", t.Portfolio)
	w.Optional("position", t.Position)
	w.Optional("ticker", t.Ticker)
	w.Append("quantity", t.Quantity)
	w.Append("price", t.Price)
	w.Optional("replaces", t.Replaces)
	return w.MarshalJSON()
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	var temp struct {
		ID        string          `json:"id"`
		Portfolio PortfolioID     `json:"portfolio"`
		Position  PositionID      `json:"position"`
		Type      TransactionType `json:"type"`
		Ticker    Ticker          `json:"ticker"`
		Quantity  int             `json:"quantity"`
		Price     Money           `json:"price"`
		Date      date.Date       `json:"date"`
		Replaces  PositionID      `json:"replaces"`
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}
	*t = Transaction(temp)
	return nil
}

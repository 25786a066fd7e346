package backtest

import "errors"

// The error taxonomy of the ledger core.
//
// ErrInsufficientFunds and ErrDataGap are expected outcomes of a backtest and are
// handled next to the call site (a strategy skips the order, the broker skips the
// ticker for the day). ErrInvalidReference and ErrInvalidState reveal a broken
// invariant and must abort the run.
var (
	// ErrInsufficientFunds is returned when a debit exceeds the available balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrDataGap is returned when market data is missing for a ticker on a day.
	ErrDataGap = errors.New("missing market data")
	// ErrInvalidReference is returned for unknown portfolio or position ids.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrInvalidState is returned for operations the current state forbids.
	ErrInvalidState = errors.New("invalid state")
)

// IsFatal reports whether err reveals a broken invariant rather than a normal
// backtest outcome.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrInsufficientFunds) && !errors.Is(err, ErrDataGap)
}

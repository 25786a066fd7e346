package backtest

import (
	"context"

	"github.com/etnz/backtest/date"
	"github.com/shopspring/decimal"
)

// splitTolerance is how far from 1 a split coefficient must be to count as a split.
var splitTolerance = decimal.New(1, -9)

// Row is the market data of a ticker for one trading day.
type Row struct {
	Close    Money
	Dividend Money           // per share, zero when none
	Split    decimal.Decimal // coefficient, zero or one when none
}

// HasDividend reports whether the row pays a dividend.
func (r Row) HasDividend() bool { return r.Dividend.IsPositive() }

// HasSplit reports whether the row carries a split coefficient other than 1.
func (r Row) HasSplit() bool {
	return r.Split.IsPositive() && r.Split.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(splitTolerance)
}

// MarketData serves daily rows to the Broker.
type MarketData interface {
	// Row returns the row of ticker on day. A missing row is an ErrDataGap.
	Row(ctx context.Context, ticker Ticker, day date.Date) (Row, error)
	// TradingDays returns the days in r with at least one row, in ascending order.
	TradingDays(ctx context.Context, r date.Range) ([]date.Date, error)
}

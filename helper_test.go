package backtest

import (
	"context"
	"fmt"
	"slices"

	"github.com/etnz/backtest/date"
	"github.com/shopspring/decimal"
)

// fakeMarket is a MarketData backed by maps, for tests.
type fakeMarket map[Ticker]map[date.Date]Row

// set records a row, parsing day.
func (m fakeMarket) set(ticker Ticker, day string, row Row) fakeMarket {
	if m[ticker] == nil {
		m[ticker] = make(map[date.Date]Row)
	}
	m[ticker][date.MustParse(day)] = row
	return m
}

func (m fakeMarket) close(ticker Ticker, day string, price float64) fakeMarket {
	return m.set(ticker, day, Row{Close: M(price)})
}

func (m fakeMarket) Row(_ context.Context, ticker Ticker, day date.Date) (Row, error) {
	row, ok := m[ticker][day]
	if !ok {
		return Row{}, fmt.Errorf("%w: %s on %s", ErrDataGap, ticker, day)
	}
	return row, nil
}

func (m fakeMarket) TradingDays(_ context.Context, r date.Range) ([]date.Date, error) {
	var days []date.Date
	for _, rows := range m {
		for day := range rows {
			if r.Contains(day) && !slices.Contains(days, day) {
				days = append(days, day)
			}
		}
	}
	slices.SortFunc(days, date.Date.Compare)
	return days, nil
}

func split(coefficient string) decimal.Decimal { return decimal.RequireFromString(coefficient) }

// recorder is an Observer keeping everything it sees.
type recorder struct {
	committed  []Transaction
	rolledBack int
	skipped    []error
	updated    []date.Date
}

func (r *recorder) Committed(rows []Transaction) { r.committed = append(r.committed, rows...) }
func (r *recorder) RolledBack() { r.rolledBack++ }
func (r *recorder) Skipped(_ PortfolioID, _ Ticker, err error) { r.skipped = append(r.skipped, err) }
func (r *recorder) Updated(day date.Date) { r.updated = append(r.updated, day) }

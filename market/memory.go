// Package market provides daily market data to the backtest Broker.
//
// Memory holds the rows of every ticker in memory and implements
// backtest.MarketData. It is filled from a JSONL file (Decode, LoadFile) or
// from any Loader, such as Postgres, possibly behind a Redis Cache.
package market

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/etnz/backtest"
	"github.com/etnz/backtest/date"
)

// Series is the daily rows of one ticker.
type Series = date.History[backtest.Row]

// Loader loads the full daily series of a ticker.
type Loader interface {
	LoadSeries(ctx context.Context, ticker backtest.Ticker) (*Series, error)
}

// Memory is an in-memory market data provider.
type Memory struct {
	series map[backtest.Ticker]*Series
}

// NewMemory returns an empty Memory.
func NewMemory() *Memory {
	return &Memory{series: make(map[backtest.Ticker]*Series)}
}

// Load builds a Memory with the series of tickers read from loader.
func Load(ctx context.Context, loader Loader, tickers ...backtest.Ticker) (*Memory, error) {
	m := NewMemory()
	for _, t := range tickers {
		s, err := loader.LoadSeries(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("cannot load %s: %w", t, err)
		}
		m.series[t] = s
	}
	return m, nil
}

// Append records the row of ticker on day, replacing any previous one.
func (m *Memory) Append(ticker backtest.Ticker, day date.Date, row backtest.Row) *Memory {
	s, ok := m.series[ticker]
	if !ok {
		s = &Series{}
		m.series[ticker] = s
	}
	s.Append(day, row)
	return m
}

// Tickers returns the known tickers, sorted.
func (m *Memory) Tickers() []backtest.Ticker { return slices.Sorted(maps.Keys(m.series)) }

// LoadSeries returns the series of ticker. Memory is itself a Loader.
func (m *Memory) LoadSeries(_ context.Context, ticker backtest.Ticker) (*Series, error) {
	s, ok := m.series[ticker]
	if !ok {
		return nil, fmt.Errorf("%w: unknown ticker %s", backtest.ErrDataGap, ticker)
	}
	return s, nil
}

// Row implements backtest.MarketData.
func (m *Memory) Row(_ context.Context, ticker backtest.Ticker, day date.Date) (backtest.Row, error) {
	if s, ok := m.series[ticker]; ok {
		if row, ok := s.Get(day); ok {
			return row, nil
		}
	}
	return backtest.Row{}, fmt.Errorf("%w: %s on %s", backtest.ErrDataGap, ticker, day)
}

// TradingDays implements backtest.MarketData: the days in r with a row for at
// least one ticker.
func (m *Memory) TradingDays(_ context.Context, r date.Range) ([]date.Date, error) {
	series := make([][]date.Date, 0, len(m.series))
	for _, t := range m.Tickers() {
		series = append(series, m.series[t].Days())
	}
	var days []date.Date
	for day := range date.Merge(series...) {
		if r.Contains(day) {
			days = append(days, day)
		}
	}
	return days, nil
}

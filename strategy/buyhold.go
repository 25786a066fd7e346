// Package strategy provides trading strategies for backtest bots.
package strategy

import (
	"context"
	"fmt"

	"github.com/etnz/backtest"
	"github.com/etnz/backtest/date"
	"github.com/rs/zerolog"
)

// BuyAndHold invests all available cash in a single ticker on the first
// trading day of every period, and never sells.
type BuyAndHold struct {
	Ticker backtest.Ticker
	Period date.Period
	Log    zerolog.Logger

	last date.Date // last day an order was attempted
}

// NewBuyAndHold returns a BuyAndHold strategy.
func NewBuyAndHold(ticker backtest.Ticker, period date.Period) *BuyAndHold {
	return &BuyAndHold{Ticker: ticker, Period: period, Log: zerolog.Nop()}
}

func (s *BuyAndHold) Name() string { return fmt.Sprintf("buy-and-hold %s %s", s.Ticker, s.Period) }

// Tickers implements backtest.Watcher.
func (s *BuyAndHold) Tickers() []backtest.Ticker { return []backtest.Ticker{s.Ticker} }

// OnDay implements backtest.Strategy. A day without a quote postpones the
// purchase to the next trading day.
func (s *BuyAndHold) OnDay(ctx context.Context, day date.Date, b *backtest.Broker, id backtest.PortfolioID) error {
	if !s.Period.NewPeriod(s.last, day) {
		return nil
	}
	row, _, ok := b.Quote(s.Ticker)
	if !ok {
		return nil
	}
	s.last = day

	balance, err := b.Balance(id)
	if err != nil {
		return err
	}
	quantity := int(balance.Ratio(row.Close).IntPart())
	if quantity < 1 {
		return nil
	}
	if _, err := b.ExecuteBuyOrder(ctx, id, s.Ticker, quantity, backtest.AtMarket); err != nil {
		if backtest.IsFatal(err) {
			return err
		}
		s.Log.Info().Err(err).Str("ticker", string(s.Ticker)).Msg("buy skipped")
	}
	return nil
}

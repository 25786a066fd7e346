package strategy

import (
	"context"
	"fmt"
	"slices"

	"github.com/etnz/backtest"
	"github.com/etnz/backtest/date"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ema is an exponential moving average seeded with its first value.
type ema struct {
	alpha float64
	value float64
	set   bool
}

func newEMA(span int) ema { return ema{alpha: 2 / float64(span+1)} }

func (e *ema) update(x float64) float64 {
	if !e.set {
		e.value, e.set = x, true
		return x
	}
	e.value += e.alpha * (x - e.value)
	return e.value
}

// indicator computes the MACD line and its signal line over daily closes.
type indicator struct {
	fast, slow, signal ema
	days               int
	line, sig          float64 // today
	prevLine, prevSig  float64 // previous day
}

func (in *indicator) update(price float64) {
	in.prevLine, in.prevSig = in.line, in.sig
	in.line = in.fast.update(price) - in.slow.update(price)
	in.sig = in.signal.update(in.line)
	in.days++
}

func (in *indicator) histogram() float64 { return in.line - in.sig }

// bullish reports a crossover of the MACD line above its signal.
func (in *indicator) bullish() bool {
	return in.histogram() > 0 && in.line > in.sig && in.prevLine <= in.prevSig
}

// bearish reports a crossover of the MACD line below its signal.
func (in *indicator) bearish() bool {
	return in.histogram() < 0 && in.line < in.sig && in.prevLine >= in.prevSig
}

// MACD trades crossovers of the Moving Average Convergence Divergence.
//
// On a bullish crossover below zero it buys shares for Allocation of the
// balance. On a bearish crossover above zero it closes every open lot of the
// ticker bought below the market price.
type MACD struct {
	Watch              []backtest.Ticker
	Fast, Slow, Signal int
	Allocation         decimal.Decimal
	Log                zerolog.Logger

	indicators map[backtest.Ticker]*indicator
}

// NewMACD returns a MACD strategy with the usual 12/26/9 spans and a 1%
// allocation per buy.
func NewMACD(tickers ...backtest.Ticker) *MACD {
	return &MACD{
		Watch:      tickers,
		Fast:       12,
		Slow:       26,
		Signal:     9,
		Allocation: decimal.New(1, -2),
		Log:        zerolog.Nop(),
	}
}

func (s *MACD) Name() string { return fmt.Sprintf("macd %d/%d/%d", s.Fast, s.Slow, s.Signal) }

// Tickers implements backtest.Watcher.
func (s *MACD) Tickers() []backtest.Ticker { return slices.Clone(s.Watch) }

func (s *MACD) indicator(t backtest.Ticker) *indicator {
	if s.indicators == nil {
		s.indicators = make(map[backtest.Ticker]*indicator)
	}
	in, ok := s.indicators[t]
	if !ok {
		in = &indicator{fast: newEMA(s.Fast), slow: newEMA(s.Slow), signal: newEMA(s.Signal)}
		s.indicators[t] = in
	}
	return in
}

// OnDay implements backtest.Strategy. Tickers without a quote today are left
// untouched, their indicator included.
func (s *MACD) OnDay(ctx context.Context, day date.Date, b *backtest.Broker, id backtest.PortfolioID) error {
	for _, t := range s.Watch {
		row, _, ok := b.Quote(t)
		if !ok {
			continue
		}
		in := s.indicator(t)
		in.update(row.Close.Decimal().InexactFloat64())
		if in.days < 2 {
			continue
		}
		var err error
		switch {
		case in.bullish() && in.line < 0:
			err = s.buy(ctx, day, b, id, t, row.Close)
		case in.bearish() && in.line > 0:
			err = s.sell(ctx, day, b, id, t, row.Close)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *MACD) buy(ctx context.Context, day date.Date, b *backtest.Broker, id backtest.PortfolioID, t backtest.Ticker, price backtest.Money) error {
	balance, err := b.Balance(id)
	if err != nil {
		return err
	}
	quantity := int(balance.Mul(s.Allocation).Ratio(price).IntPart())
	if quantity < 1 {
		return nil
	}
	s.Log.Debug().Str("date", day.String()).Str("ticker", string(t)).Msg("bullish crossover")
	if _, err := b.ExecuteBuyOrder(ctx, id, t, quantity, backtest.AtMarket); backtest.IsFatal(err) {
		return err
	}
	return nil
}

func (s *MACD) sell(ctx context.Context, day date.Date, b *backtest.Broker, id backtest.PortfolioID, t backtest.Ticker, price backtest.Money) error {
	open, err := b.OpenPositionsByTicker(id, t)
	if err != nil {
		return err
	}
	s.Log.Debug().Str("date", day.String()).Str("ticker", string(t)).Msg("bearish crossover")
	var realized backtest.Money
	closed := 0
	for _, pos := range open {
		if !pos.EntryPrice().LessThan(price) {
			continue
		}
		if _, err := b.ClosePosition(ctx, pos, backtest.AtMarket); err != nil {
			if backtest.IsFatal(err) {
				return err
			}
			continue
		}
		realized = realized.Add(pos.RealizedPL())
		closed++
	}
	if closed > 0 {
		s.Log.Info().
			Str("date", day.String()).
			Str("ticker", string(t)).
			Int("positions", closed).
			Stringer("realized", realized).
			Msg("closed on bearish crossover")
	}
	return nil
}

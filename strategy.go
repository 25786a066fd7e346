package backtest

import (
	"context"
	"fmt"

	"github.com/etnz/backtest/date"
	"github.com/rs/zerolog"
)

// Strategy decides the trades of one portfolio, one day at a time.
//
// OnDay runs inside a Session that is committed when it returns nil. Expected
// errors (ErrInsufficientFunds, ErrDataGap) should be handled by the strategy;
// any other error aborts the simulation.
type Strategy interface {
	Name() string
	OnDay(ctx context.Context, day date.Date, b *Broker, portfolio PortfolioID) error
}

// Watcher is implemented by strategies that trade a known set of tickers.
type Watcher interface {
	Tickers() []Ticker
}

// Bot runs a Strategy on its own portfolio.
type Bot struct {
	Name               string
	Strategy           Strategy
	Initial            Money
	YearlyContribution Money // deposited on the first trading day of every new year

	portfolio PortfolioID
}

// Portfolio returns the portfolio of the bot, zero before the simulation starts.
func (bot *Bot) Portfolio() PortfolioID { return bot.portfolio }

// Simulation drives a Broker and its bots over the trading days of a range.
type Simulation struct {
	Broker *Broker
	Market MarketData
	Range  date.Range
	Bots   []*Bot
	Log    zerolog.Logger
}

// Run simulates every trading day of the range and returns the final summary
// of each bot.
//
// Each day the broker is updated first, then each bot trades in its own
// session. A yearly summary of every bot is logged at each year end.
func (s *Simulation) Run(ctx context.Context) ([]Summary, error) {
	days, err := s.Market.TradingDays(ctx, s.Range)
	if err != nil {
		return nil, fmt.Errorf("cannot list trading days in %v: %w", s.Range, err)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("no trading days in %v", s.Range)
	}
	for _, bot := range s.Bots {
		if w, ok := bot.Strategy.(Watcher); ok {
			s.Broker.Watch(w.Tickers()...)
		}
	}

	var prev date.Date
	for i, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.Broker.Update(ctx, day); err != nil {
			return nil, fmt.Errorf("update on %s: %w", day, err)
		}
		switch {
		case i == 0:
			if err := s.open(ctx); err != nil {
				return nil, err
			}
		case day.Year() != prev.Year():
			s.logYear(prev)
			if err := s.contribute(ctx); err != nil {
				return nil, err
			}
		}
		for _, bot := range s.Bots {
			if err := s.trade(ctx, day, bot); err != nil {
				return nil, err
			}
		}
		prev = day
	}
	s.logYear(prev)

	summaries := make([]Summary, 0, len(s.Bots))
	for _, bot := range s.Bots {
		summary, err := s.Broker.CreateSummary(bot.portfolio, prev, nil)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *Simulation) open(ctx context.Context) error {
	for _, bot := range s.Bots {
		id, err := s.Broker.CreatePortfolio(ctx, bot.Name, bot.Initial)
		if err != nil {
			return fmt.Errorf("cannot create portfolio of %s: %w", bot.Name, err)
		}
		bot.portfolio = id
	}
	return nil
}

func (s *Simulation) contribute(ctx context.Context) error {
	for _, bot := range s.Bots {
		if !bot.YearlyContribution.IsPositive() {
			continue
		}
		if err := s.Broker.AddContribution(ctx, bot.portfolio, bot.YearlyContribution); err != nil {
			return fmt.Errorf("cannot add contribution of %s: %w", bot.Name, err)
		}
	}
	return nil
}

// trade runs one day of bot in its own session.
func (s *Simulation) trade(ctx context.Context, day date.Date, bot *Bot) error {
	sess, err := s.Broker.Begin()
	if err != nil {
		return err
	}
	defer sess.Rollback()
	if err := bot.Strategy.OnDay(ctx, day, s.Broker, bot.portfolio); err != nil {
		if IsFatal(err) {
			return fmt.Errorf("%s on %s: %w", bot.Name, day, err)
		}
		s.Log.Info().Err(err).Str("bot", bot.Name).Str("date", day.String()).Msg("skipped")
	}
	if err := sess.Commit(ctx); err != nil {
		return fmt.Errorf("%s on %s: %w", bot.Name, day, err)
	}
	return nil
}

func (s *Simulation) logYear(end date.Date) {
	start := end.StartOfYear()
	for _, bot := range s.Bots {
		summary, err := s.Broker.CreateSummary(bot.portfolio, end, &start)
		if err != nil {
			continue
		}
		s.Log.Info().
			Str("bot", bot.Name).
			Int("year", end.Year()).
			Stringer("balance", summary.Balance).
			Stringer("equity", summary.Equity).
			Stringer("realized", summary.Realized).
			Stringer("unrealized", summary.Unrealized).
			Stringer("taxes", summary.TaxesPaid).
			Stringer("net_pl_pct", summary.NetPLPct).
			Msg("yearly summary")
	}
}

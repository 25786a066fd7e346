// Package config loads the configuration of a backtest run from a YAML file
// and the environment.
//
// Secrets are read from the environment, optionally populated from a .env
// file:
//
//	BACKTEST_DATABASE_URL  PostgreSQL connection string (market data, ledger)
//	BACKTEST_REDIS_ADDR    Redis address of the market data cache
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/etnz/backtest"
	"github.com/etnz/backtest/date"
	"github.com/etnz/backtest/strategy"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	EnvDatabaseURL = "BACKTEST_DATABASE_URL"
	EnvRedisAddr   = "BACKTEST_REDIS_ADDR"
)

// Market selects the market data source.
type Market struct {
	File     string        `yaml:"file"`     // JSONL daily rows
	Postgres bool          `yaml:"postgres"` // daily_prices table
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Ledger selects where committed ledger rows are stored.
type Ledger struct {
	File     string `yaml:"file"`
	Postgres bool   `yaml:"postgres"`
}

// Tax overrides the default tax policy.
type Tax struct {
	FloorAtZero      bool            `yaml:"floor_at_zero"`
	LossDeductionCap *backtest.Money `yaml:"loss_deduction_cap"`
}

// Bot configures one simulated bot.
type Bot struct {
	Name               string            `yaml:"name"`
	Strategy           string            `yaml:"strategy"` // "buy-and-hold" or "macd"
	Ticker             backtest.Ticker   `yaml:"ticker"`
	Tickers            []backtest.Ticker `yaml:"tickers"`
	Period             date.Period       `yaml:"period"`
	Initial            backtest.Money    `yaml:"initial"`
	YearlyContribution backtest.Money    `yaml:"yearly_contribution"`
}

// Config is a backtest run.
type Config struct {
	From       date.Date `yaml:"from"`
	To         date.Date `yaml:"to"`
	SplitClose string    `yaml:"split_close"`
	Market     Market    `yaml:"market"`
	Ledger     Ledger    `yaml:"ledger"`
	Tax        Tax       `yaml:"tax"`
	Metrics    string    `yaml:"metrics"` // textfile path
	Bots       []Bot     `yaml:"bots"`

	DatabaseURL string `yaml:"-"`
	RedisAddr   string `yaml:"-"`
}

// Load reads the YAML file name, then the environment. A .env file in the
// working directory is loaded first when present.
func Load(name string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", name, err)
	}
	return cfg, nil
}

// DatabaseURL returns the PostgreSQL connection string of the environment,
// after loading .env.
func DatabaseURL() (string, error) {
	if err := loadDotEnv(); err != nil {
		return "", err
	}
	url := os.Getenv(EnvDatabaseURL)
	if url == "" {
		return "", fmt.Errorf("%s is not set", EnvDatabaseURL)
	}
	return url, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot load .env: %w", err)
	}
	return nil
}

// Parse decodes and validates a YAML configuration, completing it from the
// environment.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{Market: Market{CacheTTL: 24 * time.Hour}}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.DatabaseURL = os.Getenv(EnvDatabaseURL)
	cfg.RedisAddr = os.Getenv(EnvRedisAddr)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration is complete.
func (c *Config) Validate() error {
	if c.From.IsZero() || c.To.IsZero() || c.To.Before(c.From) {
		return fmt.Errorf("invalid range %s..%s", c.From, c.To)
	}
	if _, err := backtest.ParseSplitClosePolicy(c.SplitClose); err != nil {
		return err
	}
	if (c.Market.File == "") == !c.Market.Postgres {
		return errors.New("market: exactly one of file or postgres is required")
	}
	if (c.Market.Postgres || c.Ledger.Postgres) && c.DatabaseURL == "" {
		return fmt.Errorf("postgres enabled but %s is not set", EnvDatabaseURL)
	}
	if len(c.Bots) == 0 {
		return errors.New("no bots")
	}
	names := make(map[string]bool)
	for i, b := range c.Bots {
		if b.Name == "" || names[b.Name] {
			return fmt.Errorf("bot #%d: missing or duplicate name %q", i+1, b.Name)
		}
		names[b.Name] = true
		if _, err := b.NewStrategy(zerolog.Nop()); err != nil {
			return fmt.Errorf("bot %s: %w", b.Name, err)
		}
	}
	return nil
}

// Range returns the simulated range.
func (c *Config) Range() date.Range { return date.Range{From: c.From, To: c.To} }

// TaxPolicy returns the default tax policy with the configured overrides.
func (c *Config) TaxPolicy() backtest.TaxPolicy {
	tp := backtest.DefaultTaxPolicy()
	tp.FloorAtZero = c.Tax.FloorAtZero
	if c.Tax.LossDeductionCap != nil {
		tp.LossDeductionCap = *c.Tax.LossDeductionCap
	}
	return tp
}

// Tickers returns every ticker traded by the bots.
func (c *Config) Tickers() []backtest.Ticker {
	var tickers []backtest.Ticker
	seen := make(map[backtest.Ticker]bool)
	for _, b := range c.Bots {
		for _, t := range append([]backtest.Ticker{b.Ticker}, b.Tickers...) {
			if t != "" && !seen[t] {
				seen[t] = true
				tickers = append(tickers, t)
			}
		}
	}
	return tickers
}

// NewStrategy creates the strategy of the bot, logging to log.
func (b Bot) NewStrategy(log zerolog.Logger) (backtest.Strategy, error) {
	switch b.Strategy {
	case "buy-and-hold":
		if _, err := backtest.ParseTicker(string(b.Ticker)); err != nil {
			return nil, err
		}
		s := strategy.NewBuyAndHold(b.Ticker, b.Period)
		s.Log = log
		return s, nil
	case "macd":
		if len(b.Tickers) == 0 {
			return nil, errors.New("macd needs tickers")
		}
		for _, t := range b.Tickers {
			if _, err := backtest.ParseTicker(string(t)); err != nil {
				return nil, err
			}
		}
		s := strategy.NewMACD(b.Tickers...)
		s.Log = log
		return s, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", b.Strategy)
	}
}

// NewBots creates the bots of the run. Each strategy logs with a "bot" field.
func (c *Config) NewBots(log zerolog.Logger) ([]*backtest.Bot, error) {
	bots := make([]*backtest.Bot, 0, len(c.Bots))
	for _, b := range c.Bots {
		s, err := b.NewStrategy(log.With().Str("bot", b.Name).Logger())
		if err != nil {
			return nil, fmt.Errorf("bot %s: %w", b.Name, err)
		}
		bots = append(bots, &backtest.Bot{
			Name:               b.Name,
			Strategy:           s,
			Initial:            b.Initial,
			YearlyContribution: b.YearlyContribution,
		})
	}
	return bots, nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/etnz/backtest"
	"github.com/etnz/backtest/date"
	"github.com/etnz/backtest/strategy"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
from: 2015-01-02
to: 2020-12-31
split_close: market
market:
  file: data/prices.jsonl
ledger:
  file: out/ledger.jsonl
tax:
  floor_at_zero: true
  loss_deduction_cap: 1500
metrics: out/backtest.prom
bots:
  - name: spy-weekly
    strategy: buy-and-hold
    ticker: SPY
    period: weekly
    initial: 100000
    yearly_contribution: "10000.50"
  - name: macd
    strategy: macd
    tickers: [AAPL, MSFT, SPY]
    initial: 100000
`

func TestParse(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "")
	t.Setenv(EnvRedisAddr, "localhost:6379")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, date.Range{From: date.MustParse("2015-01-02"), To: date.MustParse("2020-12-31")}, cfg.Range())
	assert.Equal(t, "data/prices.jsonl", cfg.Market.File)
	assert.Equal(t, 24*time.Hour, cfg.Market.CacheTTL)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, []backtest.Ticker{"SPY", "AAPL", "MSFT"}, cfg.Tickers())

	tp := cfg.TaxPolicy()
	assert.True(t, tp.FloorAtZero)
	assert.True(t, tp.LossDeductionCap.Equal(backtest.M(1500)))
	assert.Len(t, tp.ShortTerm, len(backtest.DefaultTaxPolicy().ShortTerm))

	bots, err := cfg.NewBots(zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, bots, 2)
	assert.Equal(t, "spy-weekly", bots[0].Name)
	assert.True(t, bots[0].YearlyContribution.Equal(backtest.M(10000.5)))
	bh, ok := bots[0].Strategy.(*strategy.BuyAndHold)
	require.True(t, ok, "strategy is %T", bots[0].Strategy)
	assert.Equal(t, date.Weekly, bh.Period)
	_, ok = bots[1].Strategy.(*strategy.MACD)
	assert.True(t, ok, "strategy is %T", bots[1].Strategy)
}

func TestParse_Invalid(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "")
	tests := []struct {
		name, yaml string
	}{
		{"reversed range", "from: 2020-01-02\nto: 2019-01-02\nmarket: {file: a}\nbots: [{name: a, strategy: macd, tickers: [SPY]}]"},
		{"no market", "from: 2019-01-02\nto: 2020-01-02\nbots: [{name: a, strategy: macd, tickers: [SPY]}]"},
		{"two markets", "from: 2019-01-02\nto: 2020-01-02\nmarket: {file: a, postgres: true}\nbots: [{name: a, strategy: macd, tickers: [SPY]}]"},
		{"postgres without url", "from: 2019-01-02\nto: 2020-01-02\nmarket: {postgres: true}\nbots: [{name: a, strategy: macd, tickers: [SPY]}]"},
		{"no bots", "from: 2019-01-02\nto: 2020-01-02\nmarket: {file: a}"},
		{"duplicate bot", "from: 2019-01-02\nto: 2020-01-02\nmarket: {file: a}\nbots: [{name: a, strategy: macd, tickers: [SPY]}, {name: a, strategy: macd, tickers: [SPY]}]"},
		{"unknown strategy", "from: 2019-01-02\nto: 2020-01-02\nmarket: {file: a}\nbots: [{name: a, strategy: hodl}]"},
		{"bad ticker", "from: 2019-01-02\nto: 2020-01-02\nmarket: {file: a}\nbots: [{name: a, strategy: buy-and-hold, ticker: spy}]"},
		{"bad split policy", "from: 2019-01-02\nto: 2020-01-02\nsplit_close: never\nmarket: {file: a}\nbots: [{name: a, strategy: macd, tickers: [SPY]}]"},
		{"bad period", "from: 2019-01-02\nto: 2020-01-02\nmarket: {file: a}\nbots: [{name: a, strategy: buy-and-hold, ticker: SPY, period: hourly}]"},
	}
	for _, tt := range tests {
		if _, err := Parse([]byte(tt.yaml)); err == nil {
			t.Errorf("Parse(%s) succeeded, want an error", tt.name)
		}
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	// godotenv does not override variables already set.
	t.Setenv(EnvDatabaseURL, "")
	os.Unsetenv(EnvDatabaseURL)
	require.NoError(t, os.WriteFile(".env", []byte(EnvDatabaseURL+"=postgres://localhost/backtest\n"), 0o600))
	require.NoError(t, os.WriteFile("run.yaml", []byte("from: 2019-01-02\nto: 2020-01-02\nmarket: {postgres: true}\nbots: [{name: a, strategy: macd, tickers: [SPY]}]"), 0o600))

	cfg, err := Load(filepath.Join(dir, "run.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/backtest", cfg.DatabaseURL)

	url, err := DatabaseURL()
	require.NoError(t, err)
	assert.Equal(t, cfg.DatabaseURL, url)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestDatabaseURL_Unset(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	t.Setenv(EnvDatabaseURL, "")
	_, err = DatabaseURL()
	assert.Error(t, err)
}

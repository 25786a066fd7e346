package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/etnz/backtest"
	"github.com/etnz/backtest/date"
	"github.com/etnz/backtest/market"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	m := market.NewMemory().
		Append("AAPL", date.MustParse("2020-01-02"), backtest.Row{Close: backtest.M(50)}).
		Append("AAPL", date.MustParse("2020-01-03"), backtest.Row{Close: backtest.M(60), Dividend: backtest.M(1)})
	rec := NewRecorder("test")
	b := backtest.NewBroker(m, backtest.WithObserver(rec))
	b.Watch("AAPL", "MSFT")

	require.NoError(t, b.Update(ctx, date.MustParse("2020-01-02")))
	id, err := b.CreatePortfolio(ctx, "alice", backtest.M(1000))
	require.NoError(t, err)
	_, err = b.ExecuteBuyOrder(ctx, id, "AAPL", 10, backtest.AtMarket)
	require.NoError(t, err)
	_, err = b.ExecuteBuyOrder(ctx, id, "AAPL", 100, backtest.AtMarket)
	require.ErrorIs(t, err, backtest.ErrInsufficientFunds)

	sess, err := b.Begin()
	require.NoError(t, err)
	require.NoError(t, b.Withdraw(ctx, id, backtest.M(1)))
	sess.Rollback()

	require.NoError(t, b.Update(ctx, date.MustParse("2020-01-03")))
	rec.Observe(b)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Transactions.WithLabelValues("DEPOSIT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Transactions.WithLabelValues("BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Transactions.WithLabelValues("DIVIDEND")))
	assert.Equal(t, 500.0, testutil.ToFloat64(rec.CashFlow.WithLabelValues("BUY")))
	assert.Equal(t, 10.0, testutil.ToFloat64(rec.CashFlow.WithLabelValues("DIVIDEND")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Rollbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Skips.WithLabelValues("insufficient_funds")))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.Skips.WithLabelValues("data_gap")))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.Days))
	assert.Equal(t, float64(date.MustParse("2020-01-03").Time().Unix()), testutil.ToFloat64(rec.Day))
	assert.Equal(t, 510.0, testutil.ToFloat64(rec.Balance.WithLabelValues("1")))
	assert.Equal(t, 1110.0, testutil.ToFloat64(rec.Equity.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.OpenPositions.WithLabelValues("1")))
}

func TestRecorder_WriteToTextfile(t *testing.T) {
	rec := NewRecorder("abc")
	rec.RolledBack()
	name := filepath.Join(t.TempDir(), "backtest.prom")
	require.NoError(t, rec.WriteToTextfile(name))

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `backtest_rollbacks_total{run="abc"} 1`), "textfile:\n%s", data)

	expected := `
# HELP backtest_rollbacks_total Number of discarded sessions
# TYPE backtest_rollbacks_total counter
backtest_rollbacks_total{run="abc"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(expected), "backtest_rollbacks_total"))
}

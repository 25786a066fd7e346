// Package metrics provides Prometheus instrumentation for backtest runs.
package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/etnz/backtest"
	"github.com/etnz/backtest/date"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is a backtest.Observer exporting the activity of a Broker.
//
// Metrics are registered on a registry of their own, so several runs can be
// recorded in the same process.
type Recorder struct {
	reg *prometheus.Registry

	// Transactions counts committed ledger rows, by type.
	Transactions *prometheus.CounterVec
	// CashFlow sums the absolute cash flow of committed rows, by type.
	CashFlow *prometheus.CounterVec
	// Rollbacks counts discarded sessions.
	Rollbacks prometheus.Counter
	// Skips counts operations failing with an expected error, by reason.
	Skips *prometheus.CounterVec
	// Days counts processed trading days.
	Days prometheus.Counter
	// Day is the last processed day, as a unix timestamp.
	Day prometheus.Gauge
	// Balance is the cash balance, by portfolio.
	Balance *prometheus.GaugeVec
	// Equity is the balance plus the value of open positions, by portfolio.
	Equity *prometheus.GaugeVec
	// OpenPositions is the number of open positions, by portfolio.
	OpenPositions *prometheus.GaugeVec
}

// NewRecorder creates a Recorder. run is attached to every metric as a
// constant label.
func NewRecorder(run string) *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	labels := prometheus.Labels{"run": run}
	return &Recorder{
		reg: reg,
		Transactions: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "backtest_transactions_total",
			Help:        "Total number of committed ledger rows",
			ConstLabels: labels,
		}, []string{"type"}),
		CashFlow: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "backtest_cash_flow_dollars_total",
			Help:        "Absolute cash flow of committed ledger rows",
			ConstLabels: labels,
		}, []string{"type"}),
		Rollbacks: f.NewCounter(prometheus.CounterOpts{
			Name:        "backtest_rollbacks_total",
			Help:        "Number of discarded sessions",
			ConstLabels: labels,
		}),
		Skips: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "backtest_skipped_total",
			Help:        "Operations skipped on an expected error",
			ConstLabels: labels,
		}, []string{"reason"}),
		Days: f.NewCounter(prometheus.CounterOpts{
			Name:        "backtest_days_total",
			Help:        "Number of processed trading days",
			ConstLabels: labels,
		}),
		Day: f.NewGauge(prometheus.GaugeOpts{
			Name:        "backtest_day_timestamp_seconds",
			Help:        "Last processed trading day",
			ConstLabels: labels,
		}),
		Balance: f.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "backtest_balance_dollars",
			Help:        "Cash balance of a portfolio",
			ConstLabels: labels,
		}, []string{"portfolio"}),
		Equity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "backtest_equity_dollars",
			Help:        "Balance plus open positions value of a portfolio",
			ConstLabels: labels,
		}, []string{"portfolio"}),
		OpenPositions: f.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "backtest_open_positions",
			Help:        "Number of open positions of a portfolio",
			ConstLabels: labels,
		}, []string{"portfolio"}),
	}
}

// Registry returns the registry of the Recorder.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler returns the Prometheus metrics HTTP handler.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// WriteToTextfile writes the metrics in the node exporter textfile format.
func (r *Recorder) WriteToTextfile(name string) error {
	return prometheus.WriteToTextfile(name, r.reg)
}

// Committed implements backtest.Observer.
func (r *Recorder) Committed(rows []backtest.Transaction) {
	for _, tx := range rows {
		r.Transactions.WithLabelValues(string(tx.Type)).Inc()
		r.CashFlow.WithLabelValues(string(tx.Type)).Add(tx.CashFlow().Abs().Decimal().InexactFloat64())
	}
}

// RolledBack implements backtest.Observer.
func (r *Recorder) RolledBack() { r.Rollbacks.Inc() }

// Skipped implements backtest.Observer.
func (r *Recorder) Skipped(_ backtest.PortfolioID, _ backtest.Ticker, err error) {
	r.Skips.WithLabelValues(reason(err)).Inc()
}

// Updated implements backtest.Observer.
func (r *Recorder) Updated(day date.Date) {
	r.Days.Inc()
	r.Day.Set(float64(day.Time().Unix()))
}

// Observe sets the portfolio gauges from the current state of b.
func (r *Recorder) Observe(b *backtest.Broker) {
	prices := b.Prices()
	for _, p := range b.Portfolios() {
		label := strconv.FormatInt(int64(p.ID()), 10)
		equity := p.Balance()
		open := p.OpenPositions()
		for _, pos := range open {
			equity = equity.Add(pos.CurrentValue(prices[pos.Ticker()]))
		}
		r.Balance.WithLabelValues(label).Set(p.Balance().Decimal().InexactFloat64())
		r.Equity.WithLabelValues(label).Set(equity.Decimal().InexactFloat64())
		r.OpenPositions.WithLabelValues(label).Set(float64(len(open)))
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, backtest.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, backtest.ErrDataGap):
		return "data_gap"
	default:
		return "other"
	}
}

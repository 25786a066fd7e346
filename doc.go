// Package backtest provides the accounting core of a daily backtesting engine
// for equity trading strategies.
//
// A Broker owns a set of portfolios and an append-only Ledger. It advances a
// simulation clock one trading day at a time, loads daily market rows
// (close, dividend, split) for the watched tickers and applies corporate
// actions and taxes to every open position.
//
// The core concepts are:
//   - Position: a single lot of shares with its entry, exit, dividends and
//     split cash settlements. Cost basis is fixed at entry.
//   - Portfolio: a cash balance and its positions. A debit never makes the
//     balance negative.
//   - Ledger: the chronological record of every cash-affecting event. Replaying
//     it yields the balance of each portfolio.
//   - Session: a batch of Broker operations committed atomically. Buy orders
//     reserve their cost and are filled on Commit.
//   - TaxPolicy: progressive short-term and long-term brackets, qualified
//     dividends and a capped loss deduction, applied at each year end.
//   - Summary: a valuation snapshot of a portfolio, over its whole history or
//     a period.
//
// A Simulation drives a Broker and a set of bots, each running a Strategy on
// its own portfolio.
//
// Subpackages provide market data providers (market), durable ledger stores
// (store), strategies (strategy), metrics (metrics), run configuration
// (config), markdown reports (renderer) and the user manual (docs). The bt
// command ties them together.
package backtest

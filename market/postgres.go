package market

import (
	"context"
	"fmt"
	"time"

	"github.com/etnz/backtest"
	"github.com/etnz/backtest/date"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Schema creates the table read by Postgres. Prices are NUMERIC for exact
// decimal precision.
const Schema = `CREATE TABLE IF NOT EXISTS daily_prices (
	ticker   TEXT    NOT NULL,
	day      DATE    NOT NULL,
	close    NUMERIC NOT NULL,
	dividend NUMERIC NOT NULL DEFAULT 0,
	split    NUMERIC NOT NULL DEFAULT 1,
	PRIMARY KEY (ticker, day)
)`

// Querier is the subset of *pgxpool.Pool and pgx.Tx used by Postgres.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres loads daily series from the daily_prices table.
type Postgres struct {
	db Querier
}

// NewPostgres creates a Loader reading from db.
func NewPostgres(db Querier) *Postgres {
	return &Postgres{db: db}
}

// LoadSeries implements Loader.
func (p *Postgres) LoadSeries(ctx context.Context, ticker backtest.Ticker) (*Series, error) {
	rows, err := p.db.Query(ctx,
		`SELECT day, close::TEXT, dividend::TEXT, split::TEXT
		 FROM daily_prices WHERE ticker = $1 ORDER BY day`, string(ticker))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", ticker, err)
	}
	defer rows.Close()

	s := &Series{}
	for rows.Next() {
		var day time.Time
		var closeTxt, dividendTxt, splitTxt string
		if err := rows.Scan(&day, &closeTxt, &dividendTxt, &splitTxt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", ticker, err)
		}
		row, err := parseRow(closeTxt, dividendTxt, splitTxt)
		if err != nil {
			return nil, fmt.Errorf("%s on %s: %w", ticker, date.FromTime(day), err)
		}
		s.Append(date.FromTime(day), row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if s.Len() == 0 {
		return nil, fmt.Errorf("%w: no rows for %s", backtest.ErrDataGap, ticker)
	}
	return s, nil
}

// Tickers lists the tickers in the daily_prices table.
func (p *Postgres) Tickers(ctx context.Context) ([]backtest.Ticker, error) {
	rows, err := p.db.Query(ctx, `SELECT DISTINCT ticker FROM daily_prices ORDER BY ticker`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tickers []backtest.Ticker
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tickers = append(tickers, backtest.Ticker(t))
	}
	return tickers, rows.Err()
}

func parseRow(closeTxt, dividendTxt, splitTxt string) (backtest.Row, error) {
	c, err := backtest.ParseMoney(closeTxt)
	if err != nil {
		return backtest.Row{}, fmt.Errorf("invalid close: %w", err)
	}
	d, err := backtest.ParseMoney(dividendTxt)
	if err != nil {
		return backtest.Row{}, fmt.Errorf("invalid dividend: %w", err)
	}
	split, err := decimal.NewFromString(splitTxt)
	if err != nil {
		return backtest.Row{}, fmt.Errorf("invalid split: %w", err)
	}
	return backtest.Row{Close: c, Dividend: d, Split: split}, nil
}

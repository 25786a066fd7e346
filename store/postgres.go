package store

import (
	"context"
	"fmt"
	"time"

	"github.com/etnz/backtest"
	"github.com/etnz/backtest/date"
	"github.com/jackc/pgx/v5"
)

// Schema creates the ledger table. Amounts are NUMERIC for exact decimal
// precision; seq keeps the append order within a run.
const Schema = `CREATE TABLE IF NOT EXISTS ledger (
	seq       BIGSERIAL PRIMARY KEY,
	run       UUID    NOT NULL,
	id        UUID    NOT NULL UNIQUE,
	day       DATE    NOT NULL,
	type      TEXT    NOT NULL,
	portfolio BIGINT  NOT NULL,
	position  BIGINT  NOT NULL DEFAULT 0,
	ticker    TEXT    NOT NULL DEFAULT '',
	quantity  INTEGER NOT NULL,
	price     NUMERIC NOT NULL,
	replaces  BIGINT  NOT NULL DEFAULT 0
)`

// DB is the subset of *pgxpool.Pool used by Postgres.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres stores the ledger rows of one run in PostgreSQL. Every batch is
// written in a single database transaction.
type Postgres struct {
	db  DB
	run string
}

// NewPostgres creates a store writing the rows of run to db.
func NewPostgres(db DB, run string) *Postgres {
	return &Postgres{db: db, run: run}
}

// Run returns the run id.
func (s *Postgres) Run() string { return s.run }

// AppendBatch implements backtest.LedgerStore.
func (s *Postgres) AppendBatch(ctx context.Context, rows []backtest.Transaction) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger batch: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(
			`INSERT INTO ledger (run, id, day, type, portfolio, position, ticker, quantity, price, replaces)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::NUMERIC, $10)`,
			s.run, r.ID, r.Date.Time(), string(r.Type), int64(r.Portfolio), int64(r.Position),
			string(r.Ticker), r.Quantity, r.Price.Decimal().String(), int64(r.Replaces),
		)
	}
	br := tx.SendBatch(ctx, batch)
	for _, r := range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert ledger row %s: %w", r.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Load reads the rows of the run in append order.
func (s *Postgres) Load(ctx context.Context) ([]backtest.Transaction, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id::TEXT, day, type, portfolio, position, ticker, quantity, price::TEXT, replaces
		 FROM ledger WHERE run = $1 ORDER BY seq`, s.run)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []backtest.Transaction
	for rows.Next() {
		var (
			tx                            backtest.Transaction
			day                           time.Time
			typ, ticker, price            string
			portfolio, position, replaces int64
		)
		if err := rows.Scan(&tx.ID, &day, &typ, &portfolio, &position, &ticker, &tx.Quantity, &price, &replaces); err != nil {
			return nil, err
		}
		if tx.Type, err = backtest.ParseTransactionType(typ); err != nil {
			return nil, err
		}
		if tx.Price, err = backtest.ParseMoney(price); err != nil {
			return nil, fmt.Errorf("ledger row %s: %w", tx.ID, err)
		}
		tx.Date = date.FromTime(day)
		tx.Portfolio = backtest.PortfolioID(portfolio)
		tx.Position = backtest.PositionID(position)
		tx.Replaces = backtest.PositionID(replaces)
		tx.Ticker = backtest.Ticker(ticker)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/backtest"
	"github.com/etnz/backtest/config"
	"github.com/etnz/backtest/renderer"
	"github.com/etnz/backtest/store"
	"github.com/google/subcommands"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ledgerCmd holds the flags for the 'ledger' subcommand.
type ledgerCmd struct {
	file      string
	run       string
	portfolio int64
	jsonl     bool
	raw       bool
}

func (*ledgerCmd) Name() string     { return "ledger" }
func (*ledgerCmd) Synopsis() string { return "list the ledger of a run" }
func (*ledgerCmd) Usage() string {
	return `bt [-config <file>] ledger [-file <ledger>] [-run <uuid>] [-p <portfolio>] [-jsonl] [-raw]

  Lists the ledger rows of a run, with the running balance of each portfolio.
  Rows are read from -file, or from the ledger configured in -config. A
  PostgreSQL ledger needs the -run id.
`
}

func (c *ledgerCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "file", "", "Ledger file (JSONL). Defaults to the ledger of the configuration.")
	f.StringVar(&c.run, "run", "", "Run id of a PostgreSQL ledger.")
	f.Int64Var(&c.portfolio, "p", 0, "Only list the rows of this portfolio.")
	f.BoolVar(&c.jsonl, "jsonl", false, "Print the rows as JSONL instead of markdown.")
	f.BoolVar(&c.raw, "raw", false, "Print raw markdown.")
}

func (c *ledgerCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	rows, err := c.load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading ledger: %v\n", err)
		return subcommands.ExitFailure
	}
	if c.portfolio != 0 {
		var kept []backtest.Transaction
		for _, tx := range rows {
			if tx.Portfolio == backtest.PortfolioID(c.portfolio) {
				kept = append(kept, tx)
			}
		}
		rows = kept
	}

	if c.jsonl {
		for _, tx := range rows {
			if err := backtest.EncodeTransaction(stdout, tx); err != nil {
				fmt.Fprintf(os.Stderr, "Error encoding transaction: %v\n", err)
				return subcommands.ExitFailure
			}
		}
		return subcommands.ExitSuccess
	}
	printMarkdown(renderer.RenderLedger(rows), c.raw)
	return subcommands.ExitSuccess
}

func (c *ledgerCmd) load(ctx context.Context) ([]backtest.Transaction, error) {
	if c.file != "" {
		return loadFile(c.file)
	}
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}
	switch {
	case cfg.Ledger.File != "":
		return loadFile(cfg.Ledger.File)
	case cfg.Ledger.Postgres:
		if _, err := uuid.Parse(c.run); err != nil {
			return nil, fmt.Errorf("invalid run id %q: %w", c.run, err)
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("cannot connect to postgres: %w", err)
		}
		defer pool.Close()
		return store.NewPostgres(pool, c.run).Load(ctx)
	default:
		return nil, errors.New("no ledger configured")
	}
}

func loadFile(name string) ([]backtest.Transaction, error) {
	if _, err := os.Stat(name); err != nil {
		return nil, err
	}
	f, err := store.NewFile(name)
	if err != nil {
		return nil, err
	}
	ledger, err := f.Load()
	if err != nil {
		return nil, err
	}
	return ledger.Transactions(), nil
}

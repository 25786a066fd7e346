package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/backtest/config"
	"github.com/etnz/backtest/market"
	"github.com/etnz/backtest/store"
	"github.com/google/subcommands"
	"github.com/jackc/pgx/v5/pgxpool"
)

type schemaCmd struct{}

func (*schemaCmd) Name() string     { return "schema" }
func (*schemaCmd) Synopsis() string { return "create the PostgreSQL tables" }
func (*schemaCmd) Usage() string {
	return `bt schema

  Creates the daily_prices and ledger tables in the database of
  ` + config.EnvDatabaseURL + `, if they do not exist.
`
}

func (*schemaCmd) SetFlags(*flag.FlagSet) {}

func (*schemaCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	url, err := config.DatabaseURL()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
		return subcommands.ExitFailure
	}
	defer pool.Close()

	for _, schema := range []string{market.Schema, store.Schema} {
		if _, err := pool.Exec(ctx, schema); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating schema: %v\n", err)
			return subcommands.ExitFailure
		}
	}
	fmt.Fprintln(stdout, "Schema created.")
	return subcommands.ExitSuccess
}

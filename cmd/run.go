package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/etnz/backtest"
	"github.com/etnz/backtest/config"
	"github.com/etnz/backtest/market"
	"github.com/etnz/backtest/metrics"
	"github.com/etnz/backtest/renderer"
	"github.com/etnz/backtest/store"
	"github.com/google/subcommands"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// runCmd holds the flags for the 'run' subcommand.
type runCmd struct {
	run    string
	force  bool
	tax    bool
	raw    bool
	listen string
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "simulate the bots of a configuration" }
func (*runCmd) Usage() string {
	return `bt [-config <file>] run [-tax] [-force] [-raw] [-listen <addr>] [-run <uuid>]

  Simulates every trading day of the configured range and prints the final
  summary of each bot.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.run, "run", "", "Run id (UUID). Defaults to a new random id.")
	f.BoolVar(&c.force, "force", false, "Overwrite an existing ledger file.")
	f.BoolVar(&c.tax, "tax", false, "Print the tax report of the last year of each bot.")
	f.BoolVar(&c.raw, "raw", false, "Print raw markdown.")
	f.StringVar(&c.listen, "listen", "", "Serve Prometheus metrics on this address during the run, e.g. :9090")
}

func (c *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	log := newLogger()

	run := uuid.New()
	if c.run != "" {
		var err error
		if run, err = uuid.Parse(c.run); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing run id: %v\n", err)
			return subcommands.ExitUsageError
		}
	}
	log = log.With().Str("run", run.String()).Logger()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := prepareLedgerFile(cfg.Ledger.File, c.force); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	rec := metrics.NewRecorder(run.String())
	if c.listen != "" {
		srv := &http.Server{Addr: c.listen, Handler: rec.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server")
			}
		}()
		defer srv.Close()
	}

	res, err := simulate(ctx, cfg, run, rec, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running backtest: %v\n", err)
		return subcommands.ExitFailure
	}

	var b strings.Builder
	b.WriteString(renderer.RenderSummaries(res.summaries))
	if c.tax {
		for _, bot := range res.bots {
			report, err := res.broker.GenerateTaxReport(bot.Portfolio(), res.broker.Today())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error generating tax report of %s: %v\n", bot.Name, err)
				return subcommands.ExitFailure
			}
			b.WriteString("\n")
			b.WriteString(renderer.RenderTaxReport(report))
		}
	}
	printMarkdown(b.String(), c.raw)
	return subcommands.ExitSuccess
}

// prepareLedgerFile refuses to append a run to an existing ledger file,
// unless force is set, in which case the file is removed.
func prepareLedgerFile(name string, force bool) error {
	if name == "" {
		return nil
	}
	if force {
		if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	if _, err := os.Stat(name); err == nil {
		return fmt.Errorf("ledger file %q already exists, use -force to overwrite it", name)
	}
	return nil
}

// result is the outcome of a simulation.
type result struct {
	broker    *backtest.Broker
	bots      []*backtest.Bot
	summaries []backtest.Summary
}

// simulate wires the market, the ledger store and the bots of cfg into a
// Broker and runs the simulation.
func simulate(ctx context.Context, cfg *config.Config, run uuid.UUID, rec *metrics.Recorder, log zerolog.Logger) (*result, error) {
	var pool *pgxpool.Pool
	if cfg.Market.Postgres || cfg.Ledger.Postgres {
		p, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("cannot connect to postgres: %w", err)
		}
		defer p.Close()
		pool = p
	}

	mkt, err := openMarket(ctx, cfg, pool, log)
	if err != nil {
		return nil, err
	}
	log.Info().Int("tickers", len(mkt.Tickers())).Msg("market data loaded")

	split, err := backtest.ParseSplitClosePolicy(cfg.SplitClose)
	if err != nil {
		return nil, err
	}
	opts := []backtest.Option{
		backtest.WithLogger(log),
		backtest.WithTaxPolicy(cfg.TaxPolicy()),
		backtest.WithSplitClosePolicy(split),
		backtest.WithObserver(rec),
	}
	switch {
	case cfg.Ledger.File != "":
		f, err := store.NewFile(cfg.Ledger.File)
		if err != nil {
			return nil, err
		}
		opts = append(opts, backtest.WithStore(f))
	case cfg.Ledger.Postgres:
		opts = append(opts, backtest.WithStore(store.NewPostgres(pool, run.String())))
	}
	broker := backtest.NewBroker(mkt, opts...)

	bots, err := cfg.NewBots(log)
	if err != nil {
		return nil, err
	}
	sim := &backtest.Simulation{Broker: broker, Market: mkt, Range: cfg.Range(), Bots: bots, Log: log}
	summaries, err := sim.Run(ctx)
	if err != nil {
		return nil, err
	}

	rec.Observe(broker)
	if cfg.Metrics != "" {
		if err := rec.WriteToTextfile(cfg.Metrics); err != nil {
			return nil, fmt.Errorf("cannot write metrics: %w", err)
		}
	}
	log.Info().Int("transactions", broker.Ledger().Len()).Msg("backtest done")
	return &result{broker: broker, bots: bots, summaries: summaries}, nil
}

// openMarket loads the market data of every configured ticker in memory.
func openMarket(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, log zerolog.Logger) (*market.Memory, error) {
	if cfg.Market.File != "" {
		return market.LoadFile(cfg.Market.File)
	}
	var loader market.Loader = market.NewPostgres(pool)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		loader = market.NewCache(loader, rdb, cfg.Market.CacheTTL, log)
	}
	return market.Load(ctx, loader, cfg.Tickers()...)
}

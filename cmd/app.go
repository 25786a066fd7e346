// Package cmd implements the CLI application to run backtests.
package cmd

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"
)

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&runCmd{}, "backtest")
	c.Register(&ledgerCmd{}, "backtest")
	c.Register(&schemaCmd{}, "database")
	c.Register(&topicCmd{}, "help")
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var (
	Verbose    = flag.Bool("v", false, "Log debug events")
	configFile = flag.String("config", "backtest.yaml", "Path to the run configuration (YAML)")
)

// stdout receives the reports, replaced in tests.
var stdout io.Writer = os.Stdout

// newLogger returns the console logger of the commands.
func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if *Verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().
		Logger()
}

// printMarkdown writes md to stdout, styled for the terminal unless raw is set.
func printMarkdown(md string, raw bool) {
	if raw {
		fmt.Fprint(stdout, md)
		return
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err != nil {
		fmt.Fprint(stdout, md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Fprint(stdout, md)
		return
	}
	fmt.Fprint(stdout, out)
}

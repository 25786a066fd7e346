// Command bt runs backtests.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"

	"github.com/etnz/backtest/cmd"
	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	cmd.Register(commander)

	// Answers shell completion requests, then exits.
	complete.Complete("bt", cmd.Completion(commander))

	flag.Parse()
	if name := flag.Arg(0); name != "" && !cmd.HasCommand(commander, name) {
		if found, code := cmd.RunExtension(name, flag.Args()[1:]); found {
			os.Exit(code)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}

package cmd

import (
	"flag"

	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

// Completion returns the shell completion of the commands registered in c,
// with their flags.
func Completion(c *subcommands.Commander) *complete.Command {
	root := &complete.Command{
		Sub:   make(map[string]*complete.Command),
		Flags: predictFlags(flag.CommandLine),
	}
	c.VisitCommands(func(_ *subcommands.CommandGroup, cmd subcommands.Command) {
		f := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
		cmd.SetFlags(f)
		sub := &complete.Command{Flags: predictFlags(f)}
		if a, ok := cmd.(interface{ Args() complete.Predictor }); ok {
			sub.Args = a.Args()
		}
		root.Sub[cmd.Name()] = sub
	})
	return root
}

// HasCommand reports whether c has a command called name.
func HasCommand(c *subcommands.Commander, name string) bool {
	found := false
	c.VisitCommands(func(_ *subcommands.CommandGroup, cmd subcommands.Command) {
		found = found || cmd.Name() == name
	})
	return found
}

func predictFlags(f *flag.FlagSet) map[string]complete.Predictor {
	flags := make(map[string]complete.Predictor)
	f.VisitAll(func(fl *flag.Flag) {
		switch {
		case isBool(fl):
			flags[fl.Name] = predict.Nothing
		case fl.Name == "config":
			flags[fl.Name] = predict.Files("*.yaml")
		case fl.Name == "file":
			flags[fl.Name] = predict.Files("*.jsonl")
		default:
			flags[fl.Name] = predict.Something
		}
	})
	return flags
}

func isBool(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/backtest/docs"
	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

type topicCmd struct {
	raw bool
}

func (*topicCmd) Name() string     { return "topic" }
func (*topicCmd) Synopsis() string { return "show a topic of the user manual" }
func (*topicCmd) Usage() string {
	return `bt topic [-raw] [<topic>...]

  Shows the user manual topics. Without topic, shows the list of topics.
  The topic '*' shows them all.
`
}

func (c *topicCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.raw, "raw", false, "Print raw markdown.")
}

// Args predicts the topic names.
func (*topicCmd) Args() complete.Predictor {
	topics, _ := docs.GetAllTopics()
	return predict.Set(topics)
}

func (c *topicCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	topics := f.Args()
	if len(topics) == 0 {
		topics = []string{"readme"}
	}
	content, err := docs.GetTopics(topics...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	printMarkdown(content, c.raw)
	return subcommands.ExitSuccess
}

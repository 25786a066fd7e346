package cmd

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/subcommands"
)

const prices = `{"date":"2020-01-02","ticker":"SPY","close":100}
{"date":"2020-01-03","ticker":"SPY","close":100,"dividend":1}
{"date":"2020-01-06","ticker":"SPY","close":110}
`

// setupRun writes a market file and a configuration in a temporary
// directory and points the -config flag to it.
func setupRun(t *testing.T) (dir string) {
	t.Helper()
	t.Setenv("BACKTEST_DATABASE_URL", "")
	dir = t.TempDir()
	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	write("prices.jsonl", prices)
	write("backtest.yaml", strings.NewReplacer("$DIR", dir).Replace(`
from: 2020-01-01
to: 2020-01-31
market:
  file: $DIR/prices.jsonl
ledger:
  file: $DIR/out/ledger.jsonl
metrics: $DIR/out/backtest.prom
bots:
  - name: spy
    strategy: buy-and-hold
    ticker: SPY
    period: weekly
    initial: 1050
`))
	old := *configFile
	*configFile = filepath.Join(dir, "backtest.yaml")
	t.Cleanup(func() { *configFile = old })
	return dir
}

func execute(t *testing.T, c subcommands.Command, args ...string) subcommands.ExitStatus {
	t.Helper()
	f := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	c.SetFlags(f)
	if err := f.Parse(args); err != nil {
		t.Fatalf("Failed to parse %v: %v", args, err)
	}
	return c.Execute(context.Background(), f)
}

func TestRunCmd(t *testing.T) {
	dir := setupRun(t)
	out := captureStdout(t)

	if status := execute(t, &runCmd{}, "-raw", "-tax"); status != subcommands.ExitSuccess {
		t.Fatalf("run returned %v, want success", status)
	}
	for _, want := range []string{
		"# Portfolio 1 (spy)",
		"| Balance | $60.00 | |",
		"| Equity | $1,160.00 | |",
		"# Taxes 2020, portfolio 1",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("run output does not contain %q\n%s", want, out)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "out", "backtest.prom"))
	if err != nil {
		t.Fatalf("Failed to read metrics: %v", err)
	}
	if !strings.Contains(string(data), `backtest_transactions_total{run=`) {
		t.Errorf("metrics textfile does not contain transactions:\n%s", data)
	}

	// The ledger file exists: a second run needs -force.
	if status := execute(t, &runCmd{}, "-raw"); status != subcommands.ExitFailure {
		t.Errorf("second run returned %v, want failure", status)
	}
	if status := execute(t, &runCmd{}, "-raw", "-force"); status != subcommands.ExitSuccess {
		t.Errorf("forced run returned %v, want success", status)
	}
}

func TestRunCmd_InvalidRunID(t *testing.T) {
	setupRun(t)
	if status := execute(t, &runCmd{}, "-run", "not-a-uuid"); status != subcommands.ExitUsageError {
		t.Errorf("run returned %v, want usage error", status)
	}
}

func TestLedgerCmd(t *testing.T) {
	setupRun(t)
	captureStdout(t)
	if status := execute(t, &runCmd{}, "-raw"); status != subcommands.ExitSuccess {
		t.Fatalf("run returned %v, want success", status)
	}

	out := captureStdout(t)
	if status := execute(t, &ledgerCmd{}, "-raw"); status != subcommands.ExitSuccess {
		t.Fatalf("ledger returned %v, want success", status)
	}
	for _, want := range []string{
		"## Portfolio 1",
		"| 2020-01-02 | BUY | 1 | Bought 10 SPY at $100.00 for $1,000.00 | -$1,000.00 | $50.00 |",
		"| | | | **Total** | | **$60.00** |",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("ledger output does not contain %q\n%s", want, out)
		}
	}

	out = captureStdout(t)
	if status := execute(t, &ledgerCmd{}, "-jsonl", "-p", "1"); status != subcommands.ExitSuccess {
		t.Fatalf("ledger -jsonl returned %v, want success", status)
	}
	if lines := strings.Split(strings.TrimSpace(out.String()), "\n"); len(lines) != 3 {
		t.Errorf("ledger -jsonl printed %d rows, want 3:\n%s", len(lines), out)
	}

	out = captureStdout(t)
	if status := execute(t, &ledgerCmd{}, "-jsonl", "-p", "2"); status != subcommands.ExitSuccess {
		t.Fatalf("ledger -jsonl -p 2 returned %v, want success", status)
	}
	if out.Len() != 0 {
		t.Errorf("ledger -p 2 printed rows of another portfolio:\n%s", out)
	}
}

func TestLedgerCmd_MissingFile(t *testing.T) {
	if status := execute(t, &ledgerCmd{}, "-file", filepath.Join(t.TempDir(), "none.jsonl")); status != subcommands.ExitFailure {
		t.Errorf("ledger returned %v, want failure", status)
	}
}

func TestPrepareLedgerFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "ledger.jsonl")
	if err := prepareLedgerFile(name, false); err != nil {
		t.Errorf("prepareLedgerFile(missing) unexpected error: %v", err)
	}
	if err := os.WriteFile(name, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := prepareLedgerFile(name, false); err == nil {
		t.Error("prepareLedgerFile(existing) succeeded, want an error")
	}
	if err := prepareLedgerFile(name, true); err != nil {
		t.Errorf("prepareLedgerFile(existing, force) unexpected error: %v", err)
	}
	if _, err := os.Stat(name); !os.IsNotExist(err) {
		t.Errorf("prepareLedgerFile(force) kept the file: %v", err)
	}
	if err := prepareLedgerFile("", false); err != nil {
		t.Errorf("prepareLedgerFile(\"\") unexpected error: %v", err)
	}
}

func TestTopicCmd(t *testing.T) {
	out := captureStdout(t)
	if status := execute(t, &topicCmd{}, "-raw", "splits"); status != subcommands.ExitSuccess {
		t.Fatalf("topic returned %v, want success", status)
	}
	if !strings.HasPrefix(out.String(), "# Splits") {
		t.Errorf("topic splits = %q, want the splits topic", out)
	}
	if status := execute(t, &topicCmd{}, "-raw", "nope"); status != subcommands.ExitFailure {
		t.Errorf("topic nope returned %v, want failure", status)
	}
}

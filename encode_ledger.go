package backtest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// DecodeLedger reads a stream of JSONL rows into a new Ledger.
func DecodeLedger(r io.Reader) (*Ledger, error) {
	rows, err := DecodeTransactions(r)
	if err != nil {
		return nil, err
	}
	ledger := NewLedger()
	if err := ledger.AppendBatch(context.Background(), rows); err != nil {
		return nil, err
	}
	return ledger, nil
}

// DecodeTransactions reads a stream of JSONL rows. Empty lines are skipped.
func DecodeTransactions(r io.Reader) ([]Transaction, error) {
	var rows []Transaction
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		lineBytes := scanner.Bytes()
		if len(lineBytes) == 0 {
			continue
		}
		var tx Transaction
		if err := json.Unmarshal(lineBytes, &tx); err != nil {
			return nil, fmt.Errorf("could not decode ledger line %d %q: %w", line, string(lineBytes), err)
		}
		rows = append(rows, tx)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading from input: %w", err)
	}
	return rows, nil
}

// EncodeTransaction writes tx as a single JSON line.
func EncodeTransaction(w io.Writer, tx Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write transaction: %w", err)
	}
	return nil
}

// EncodeLedger writes all rows of ledger in JSONL format, in ledger order.
func EncodeLedger(w io.Writer, ledger *Ledger) error {
	for _, tx := range ledger.All() {
		if err := EncodeTransaction(w, tx); err != nil {
			return err
		}
	}
	return nil
}

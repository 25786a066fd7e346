// Package store provides durable sinks for the ledger rows committed by the
// backtest Broker.
package store

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/etnz/backtest"
)

// File appends ledger rows to a JSONL file, one row per line. A batch is
// written with a single write and synced before AppendBatch returns.
type File struct {
	mu   sync.Mutex
	name string
}

// NewFile returns a File writing to name. Parent directories are created.
func NewFile(name string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create ledger directory: %w", err)
	}
	return &File{name: name}, nil
}

// Name returns the file name.
func (f *File) Name() string { return f.name }

// AppendBatch implements backtest.LedgerStore.
func (f *File) AppendBatch(ctx context.Context, rows []backtest.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, tx := range rows {
		if err := backtest.EncodeTransaction(&buf, tx); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := os.OpenFile(f.name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open ledger %q: %w", f.name, err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		w.Close()
		return fmt.Errorf("cannot write ledger %q: %w", f.name, err)
	}
	if err := w.Sync(); err != nil {
		w.Close()
		return fmt.Errorf("cannot sync ledger %q: %w", f.name, err)
	}
	return w.Close()
}

// Load reads the file back into a Ledger. A missing file is an empty ledger.
func (f *File) Load() (*backtest.Ledger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := os.Open(f.name)
	if os.IsNotExist(err) {
		return backtest.NewLedger(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot open ledger %q: %w", f.name, err)
	}
	defer r.Close()
	return backtest.DecodeLedger(r)
}

package backtest

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/etnz/backtest/date"
)

func TestEncodeTransaction(t *testing.T) {
	tx := Transaction{
		ID:        "b1",
		Portfolio: 1,
		Position:  7,
		Type:      Buy,
		Ticker:    "AAPL",
		Quantity:  10,
		Price:     M(195.5),
		Date:      date.New(2025, 8, 1),
	}
	var buf bytes.Buffer
	if err := EncodeTransaction(&buf, tx); err != nil {
		t.Fatalf("EncodeTransaction() unexpected error: %v", err)
	}
	want := `{"id":"b1","date":"2025-08-01","type":"BUY","portfolio":1,"position":7,"ticker":"AAPL","quantity":10,"price":195.5}` + "\n"
	if got := buf.String(); got != want {
		t.Errorf("EncodeTransaction() = %q, want %q", got, want)
	}
}

func TestDecodeLedger(t *testing.T) {
	jsonlStream := `
{"id":"d1","date":"2025-08-01","type":"DEPOSIT","portfolio":1,"quantity":1,"price":5000}
{"id":"b1","date":"2025-08-01","type":"BUY","portfolio":1,"position":1,"ticker":"AAPL","quantity":10,"price":195.5}

{"id":"s1","date":"2025-08-04","type":"SPLIT","portfolio":1,"position":2,"ticker":"AAPL","quantity":20,"price":97.75,"replaces":1}
`
	ledger, err := DecodeLedger(strings.NewReader(jsonlStream))
	if err != nil {
		t.Fatalf("DecodeLedger() unexpected error: %v", err)
	}
	rows := ledger.Transactions()
	if len(rows) != 3 {
		t.Fatalf("DecodeLedger() decoded %d rows, want 3", len(rows))
	}
	if got, want := rows[1].Amount(), M(1955); !got.Equal(want) {
		t.Errorf("rows[1].Amount() = %v, want %v", got, want)
	}
	if got, want := rows[2].Replaces, PositionID(1); got != want {
		t.Errorf("rows[2].Replaces = %v, want %v", got, want)
	}
	if got := rows[2].CashFlow(); !got.IsZero() {
		t.Errorf("SPLIT CashFlow() = %v, want 0", got)
	}
}

func TestDecodeLedger_Invalid(t *testing.T) {
	for _, stream := range []string{
		`{"id":"x","date":"2025-08-01","type":"SELL","portfolio":1,"ticker":"AAPL","quantity":1,"price":1}`,
		`{not json}`,
	} {
		if _, err := DecodeLedger(strings.NewReader(stream)); err == nil {
			t.Errorf("DecodeLedger(%q) succeeded, want an error", stream)
		}
	}
}

func TestEncodeLedger_RoundTrip(t *testing.T) {
	l := NewLedger()
	if err := l.AppendBatch(context.Background(), sampleRows()); err != nil {
		t.Fatalf("AppendBatch() unexpected error: %v", err)
	}
	var first bytes.Buffer
	if err := EncodeLedger(&first, l); err != nil {
		t.Fatalf("EncodeLedger() unexpected error: %v", err)
	}
	decoded, err := DecodeLedger(bytes.NewReader(first.Bytes()))
	if err != nil {
		t.Fatalf("DecodeLedger() unexpected error: %v", err)
	}
	var second bytes.Buffer
	if err := EncodeLedger(&second, decoded); err != nil {
		t.Fatalf("EncodeLedger() unexpected error: %v", err)
	}
	if first.String() != second.String() {
		t.Errorf("EncodeLedger() is not stable:\n%s\nvs\n%s", first.String(), second.String())
	}
}

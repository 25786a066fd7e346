package market

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/etnz/backtest"
	"github.com/etnz/backtest/date"
	"github.com/shopspring/decimal"
)

// jrow is the JSON form of a daily row. Dividend and split are omitted when
// there are none.
type jrow struct {
	Date     date.Date        `json:"date"`
	Ticker   backtest.Ticker  `json:"ticker,omitempty"`
	Close    backtest.Money   `json:"close"`
	Dividend *backtest.Money  `json:"dividend,omitempty"`
	Split    *decimal.Decimal `json:"split,omitempty"`
}

func toJSON(ticker backtest.Ticker, day date.Date, row backtest.Row) jrow {
	j := jrow{Date: day, Ticker: ticker, Close: row.Close}
	if row.HasDividend() {
		j.Dividend = &row.Dividend
	}
	if row.HasSplit() {
		j.Split = &row.Split
	}
	return j
}

func (j jrow) row() backtest.Row {
	r := backtest.Row{Close: j.Close}
	if j.Dividend != nil {
		r.Dividend = *j.Dividend
	}
	if j.Split != nil {
		r.Split = *j.Split
	}
	return r
}

// Decode reads JSONL daily rows into m. Each line holds one ticker on one day:
//
//	{"date":"2020-01-02","ticker":"AAPL","close":75.09,"dividend":0.77,"split":4}
//
// Empty lines are skipped.
func (m *Memory) Decode(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		txt := scanner.Bytes()
		if len(txt) == 0 {
			continue
		}
		var j jrow
		if err := json.Unmarshal(txt, &j); err != nil {
			return fmt.Errorf("parse error on line %d: %w", line, err)
		}
		ticker, err := backtest.ParseTicker(string(j.Ticker))
		if err != nil {
			return fmt.Errorf("parse error on line %d: %w", line, err)
		}
		if j.Date.IsZero() {
			return fmt.Errorf("parse error on line %d: missing date", line)
		}
		if !j.Close.IsPositive() {
			return fmt.Errorf("parse error on line %d: close must be positive, got %v", line, j.Close)
		}
		m.Append(ticker, j.Date, j.row())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading market data: %w", err)
	}
	return nil
}

// Encode writes every row of m as JSONL, ticker by ticker, in date order.
func (m *Memory) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, t := range m.Tickers() {
		for day, row := range m.series[t].Values() {
			if err := enc.Encode(toJSON(t, day, row)); err != nil {
				return fmt.Errorf("cannot encode %s on %s: %w", t, day, err)
			}
		}
	}
	return nil
}

// LoadFile reads a JSONL market data file.
func LoadFile(name string) (*Memory, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("cannot open market data %q: %w", name, err)
	}
	defer f.Close()
	m := NewMemory()
	if err := m.Decode(f); err != nil {
		return nil, fmt.Errorf("cannot read market data %q: %w", name, err)
	}
	return m, nil
}

// marshalSeries encodes s as a JSON array, without tickers.
func marshalSeries(s *Series) ([]byte, error) {
	rows := make([]jrow, 0, s.Len())
	for day, row := range s.Values() {
		rows = append(rows, toJSON("", day, row))
	}
	return json.Marshal(rows)
}

func unmarshalSeries(data []byte) (*Series, error) {
	var rows []jrow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	s := &Series{}
	for _, j := range rows {
		s.Append(j.Date, j.row())
	}
	return s, nil
}

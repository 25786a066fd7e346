package backtest

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoney_String(t *testing.T) {
	tests := []struct {
		m    Money
		want string
	}{
		{M(1234.56), "$1,234.56"},
		{M(0), "$0.00"},
		{M(0.125), "$0.13"},
	}
	for _, tt := range tests {
		if got := tt.m.String(); got != tt.want {
			t.Errorf("Money(%v).String() = %q, want %q", tt.m.Decimal(), got, tt.want)
		}
	}
}

func TestMoney_SignedString(t *testing.T) {
	if got, want := M(0).SignedString(), "-"; got != want {
		t.Errorf("SignedString() = %q, want %q", got, want)
	}
	if got, want := M(10).SignedString(), "+$10.00"; got != want {
		t.Errorf("SignedString() = %q, want %q", got, want)
	}
}

func TestMoney_Arithmetic(t *testing.T) {
	price := M(19.99)
	if got, want := price.Times(3), M(59.97); !got.Equal(want) {
		t.Errorf("Times(3) = %v, want %v", got, want)
	}
	if got, want := M(30).Div(decimal.NewFromFloat(1.5)), M(20); !got.Equal(want) {
		t.Errorf("Div(1.5) = %v, want %v", got, want)
	}
	if got := M(10).Ratio(Money{}); !got.IsZero() {
		t.Errorf("Ratio(0) = %v, want 0", got)
	}
	if got, want := MinMoney(M(1), M(2)), M(1); !got.Equal(want) {
		t.Errorf("MinMoney() = %v, want %v", got, want)
	}
	if got, want := MaxMoney(M(1), M(2)), M(2); !got.Equal(want) {
		t.Errorf("MaxMoney() = %v, want %v", got, want)
	}
	if got, want := PercentOf(M(1100), M(100000)), Percent(1.1); !got.Equal(want) {
		t.Errorf("PercentOf() = %v, want %v", got, want)
	}
}

func TestParseMoney(t *testing.T) {
	m, err := ParseMoney("1500.50")
	if err != nil {
		t.Fatalf("ParseMoney() unexpected error: %v", err)
	}
	if want := M(1500.5); !m.Equal(want) {
		t.Errorf("ParseMoney() = %v, want %v", m, want)
	}
	if _, err := ParseMoney("abc"); err == nil {
		t.Error("ParseMoney(abc) succeeded, want an error")
	}
}

func TestParseTicker(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
	}{
		{"AAPL", true},
		{"BRK-B", true},
		{"A", true},
		{"GOOGLE", true},
		{"GOOGLES", false},
		{"aapl", false},
		{"BRK-", false},
		{"-B", false},
		{"A-B-C", false},
		{"", false},
	}
	for _, tt := range tests {
		_, err := ParseTicker(tt.in)
		if (err == nil) != tt.valid {
			t.Errorf("ParseTicker(%q) error = %v, want valid=%v", tt.in, err, tt.valid)
		}
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrInsufficientFunds, false},
		{ErrDataGap, false},
		{ErrInvalidReference, true},
		{ErrInvalidState, true},
	}
	for _, tt := range tests {
		if got := IsFatal(tt.err); got != tt.want {
			t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

package backtest

import (
	"encoding/json"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// currencyCode is the single accounting currency of a backtest.
const currencyCode = money.USD

// Money represents a monetary value in the accounting currency.
type Money struct {
	value decimal.Decimal // as major unit value
}

// M creates Money from any numeric value.
func M[T float32 | float64 | int | int32 | int64 | uint | uint32 | uint64 | decimal.Decimal](value T) Money {
	return Money{value: newDecimal(value)}
}

// ParseMoney parses a decimal string such as "1234.56".
func ParseMoney(s string) (Money, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{value: v}, nil
}

// String returns the string representation of the money value, e.g. "$1,234.56".
func (m Money) String() string {
	cur := money.GetCurrency(currencyCode)
	dec := m.value.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(dec.IntPart())
}

// SignedString returns the string representation of the money value with a sign.
// 0 is represented as a "-"
func (m Money) SignedString() string {
	if m.value.IsZero() {
		return "-"
	}
	if m.value.IsPositive() {
		return "+" + m.String()
	}
	return m.String()
}

func (m Money) Decimal() decimal.Decimal        { return m.value }
func (m Money) Equal(n Money) bool              { return m.value.Equal(n.value) }
func (m Money) IsZero() bool                    { return m.value.IsZero() }
func (m Money) IsPositive() bool                { return m.value.IsPositive() }
func (m Money) IsNegative() bool                { return m.value.IsNegative() }
func (m Money) LessThan(n Money) bool           { return m.value.LessThan(n.value) }
func (m Money) LessThanOrEqual(n Money) bool    { return m.value.LessThanOrEqual(n.value) }
func (m Money) GreaterThan(n Money) bool        { return m.value.GreaterThan(n.value) }
func (m Money) GreaterThanOrEqual(n Money) bool { return m.value.GreaterThanOrEqual(n.value) }
func (m Money) Neg() Money                      { return Money{value: m.value.Neg()} }
func (m Money) Abs() Money                      { return Money{value: m.value.Abs()} }
func (m Money) Add(n Money) Money               { return Money{value: m.value.Add(n.value)} }
func (m Money) Sub(n Money) Money               { return Money{value: m.value.Sub(n.value)} }
func (m Money) Mul(d decimal.Decimal) Money     { return Money{value: m.value.Mul(d)} }
func (m Money) Div(d decimal.Decimal) Money     { return Money{value: m.value.Div(d)} }

// Times multiplies a per-share price by a number of shares.
func (m Money) Times(shares int) Money { return Money{value: m.value.Mul(decimal.NewFromInt(int64(shares)))} }

// Ratio returns m/n as a plain decimal, zero when n is zero.
func (m Money) Ratio(n Money) decimal.Decimal {
	if n.value.IsZero() {
		return decimal.Zero
	}
	return m.value.Div(n.value)
}

// Round rounds to the currency's minor unit.
func (m Money) Round() Money {
	return Money{value: m.value.Round(int32(money.GetCurrency(currencyCode).Fraction))}
}

// MinMoney returns the smallest of a and b.
func MinMoney(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxMoney returns the largest of a and b.
func MaxMoney(a, b Money) Money {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

func (m Money) MarshalJSON() ([]byte, error) { return m.value.MarshalJSON() }

func (m *Money) UnmarshalJSON(b []byte) error { return m.value.UnmarshalJSON(b) }

// UnmarshalYAML reads plain numbers like 100000 or "1500.50".
func (m *Money) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

var _ json.Marshaler = Money{}

// newDecimal is a convenient factory for decimal.Decimal
func newDecimal[T float32 | float64 | int | int32 | int64 | uint | uint32 | uint64 | decimal.Decimal](value T) decimal.Decimal {
	switch v := any(value).(type) {
	case decimal.Decimal:
		return v
	case float32:
		return decimal.NewFromFloat32(v)
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt32(v)
	case int64:
		return decimal.NewFromInt(v)
	case uint:
		return decimal.NewFromUint64(uint64(v))
	case uint32:
		return decimal.NewFromUint64(uint64(v))
	case uint64:
		return decimal.NewFromUint64(v)
	default:
		panic("unsupported type")
	}
}

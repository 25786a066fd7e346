package backtest

import "fmt"

// Percent is a ratio expressed in percent, for display.
type Percent float64

// PercentOf returns m as a percentage of base, zero when base is zero.
func PercentOf(m, base Money) Percent {
	return Percent(m.Ratio(base).Shift(2).InexactFloat64())
}

func (p Percent) Equal(q Percent) bool {
	// it has to be compared with some precision
	const precision = 0.0001
	diff := p - q
	if diff < 0 {
		diff = -diff
	}
	return diff < precision
}

func (p Percent) String() string {
	return fmt.Sprintf("%.2f%%", p)
}

func (p Percent) SignedString() string {
	res := fmt.Sprintf("%+.2f%%", p)
	if res == "+0.00%" {
		return "-"
	}
	return res
}

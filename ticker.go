package backtest

import (
	"fmt"
	"regexp"
)

// Ticker identifies a security: uppercase letters with an optional single
// hyphen for share-class suffixes (e.g. "BRK-B"), at most 6 characters.
type Ticker string

var tickerRE = regexp.MustCompile(`^[A-Z]+(-[A-Z]+)?$`)

// ParseTicker validates s as a Ticker.
func ParseTicker(s string) (Ticker, error) {
	if len(s) == 0 || len(s) > 6 || !tickerRE.MatchString(s) {
		return "", fmt.Errorf("invalid ticker %q", s)
	}
	return Ticker(s), nil
}

// MustTicker is like ParseTicker but panics on error.
func MustTicker(s string) Ticker {
	t, err := ParseTicker(s)
	if err != nil {
		panic(err.Error())
	}
	return t
}

func (t Ticker) String() string { return string(t) }

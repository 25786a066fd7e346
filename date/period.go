package date

import (
	"fmt"
	"strings"
	"time"
)

// Period is a calendar cadence, used to schedule recurring actions.
type Period int

const (
	Daily Period = iota
	Weekly
	Monthly
	Quarterly
	Yearly
)

func (p Period) String() string {
	switch p {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case Quarterly:
		return "quarterly"
	case Yearly:
		return "yearly"
	default:
		panic(fmt.Sprintf("unknown period %d", p))
	}
}

// ParsePeriod parses a period name, singular or adjective form.
func ParsePeriod(p string) (Period, error) {
	switch strings.ToLower(p) {
	case "daily", "day":
		return Daily, nil
	case "weekly", "week":
		return Weekly, nil
	case "monthly", "month":
		return Monthly, nil
	case "quarterly", "quarter":
		return Quarterly, nil
	case "yearly", "year", "annual":
		return Yearly, nil
	default:
		return Daily, fmt.Errorf("unknown period %q", p)
	}
}

// UnmarshalYAML parses a period name.
func (p *Period) UnmarshalYAML(unmarshal func(any) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	v, err := ParsePeriod(str)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// StartOf returns the first day of the period containing d. Weeks start on Monday.
func (d Date) StartOf(p Period) Date {
	switch p {
	case Daily:
		return d
	case Weekly:
		offset := (int(d.Weekday()) + 6) % 7
		return d.Add(-offset)
	case Monthly:
		return New(d.y, d.m, 1)
	case Quarterly:
		return New(d.y, ((d.m-1)/3)*3+1, 1)
	case Yearly:
		return New(d.y, time.January, 1)
	default:
		panic(fmt.Sprintf("unknown period %d", p))
	}
}

// EndOf returns the last day of the period containing d.
func (d Date) EndOf(p Period) Date {
	switch p {
	case Daily:
		return d
	case Weekly:
		return d.StartOf(Weekly).Add(6)
	case Monthly:
		return New(d.y, d.m+1, 0)
	case Quarterly:
		return New(d.y, ((d.m-1)/3)*3+4, 0)
	case Yearly:
		return New(d.y, time.December, 31)
	default:
		panic(fmt.Sprintf("unknown period %d", p))
	}
}

// NewPeriod reports whether prev and d fall in different periods.
// A zero prev always starts a new period.
func (p Period) NewPeriod(prev, d Date) bool {
	if prev.IsZero() {
		return true
	}
	return prev.StartOf(p) != d.StartOf(p)
}

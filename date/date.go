// Package date provides a day-granularity Date type used to index trading days.
package date

import (
	"encoding/json"
	"fmt"
	"time"
)

const readDateFormat = "2006-1-2" // Permissive read date format (allows single-digit month/day).

// DateFormat is the format used to represent dates as strings in ISO-8601 format.
const DateFormat = "2006-01-02"

// Day is the duration of a calendar day.
const Day = 24 * time.Hour

// Date represents a date with day-level granularity.
type Date struct {
	y int
	m time.Month
	d int
}

// time returns a time.Time that is a canonical representation of that day (at midnight UTC).
func (d Date) time() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

// New returns a normalized Date for the given year, month, and day.
func New(year int, month time.Month, day int) Date {
	d := Date{year, month, day}
	d.y, d.m, d.d = d.time().Date()
	return d
}

// FromTime returns the date of t in t's location.
func FromTime(t time.Time) Date { return New(t.Date()) }

// Time returns the date at midnight UTC.
func (d Date) Time() time.Time { return d.time() }

// Year returns current year.
func (d Date) Year() int { return d.y }

// Month returns the month of the date.
func (d Date) Month() time.Month { return d.m }

// Day returns current day of the month.
func (d Date) Day() int { return d.d }

// Weekday returns the day of the week for the date.
func (d Date) Weekday() time.Weekday { return d.time().Weekday() }

// ISOWeek returns the ISO 8601 year and week number in which d occurs.
func (d Date) ISOWeek() (year, week int) { return d.time().ISOWeek() }

// IsZero returns true if the date is the zero value.
func (d Date) IsZero() bool { return d == Date{} }

// Before reports whether the day d is before x.
func (d Date) Before(x Date) bool { return d.time().Before(x.time()) }

// After reports whether the day d is after x.
func (d Date) After(x Date) bool { return d.time().After(x.time()) }

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after x.
func (d Date) Compare(x Date) int { return d.time().Compare(x.time()) }

// Add returns a new Date with the given number of days added.
func (d Date) Add(days int) Date { return New(d.y, d.m, d.d+days) }

// DaysSince returns the number of calendar days from x to d (negative if d is before x).
func (d Date) DaysSince(x Date) int { return int(d.time().Sub(x.time()) / Day) }

// StartOfYear returns January 1st of d's year.
func (d Date) StartOfYear() Date { return New(d.y, time.January, 1) }

// EndOfYear returns December 31st of d's year.
func (d Date) EndOfYear() Date { return New(d.y, time.December, 31) }

// String format the date in its standard format.
func (d Date) String() string { return d.time().Format(DateFormat) }

// Today returns the current date.
func Today() Date { return FromTime(time.Now()) }

// Parse parses a Date from a string. It is lenient and accepts formats like "2025-7-1".
func Parse(str string) (Date, error) {
	on, err := time.Parse(readDateFormat, str)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q want format %q: %w", str, readDateFormat, err)
	}
	return New(on.Date()), nil
}

// MustParse is like Parse but panics on error.
func MustParse(str string) Date {
	d, err := Parse(str)
	if err != nil {
		panic(err.Error())
	}
	return d
}

// UnmarshalJSON implements the json specific way to unmarshall a date from a json string.
func (d *Date) UnmarshalJSON(bytes []byte) error {
	var str string
	if err := json.Unmarshal(bytes, &str); err != nil {
		return err
	}
	on, err := Parse(str)
	if err != nil {
		return err
	}
	*d = on
	return nil
}

// MarshalJSON writes the date as an ISO-8601 string.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalYAML lets config files carry plain "2020-01-02" dates.
func (d *Date) UnmarshalYAML(unmarshal func(any) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	on, err := Parse(str)
	if err != nil {
		return err
	}
	*d = on
	return nil
}

var _ json.Marshaler = (*Date)(nil)
var _ json.Unmarshaler = (*Date)(nil)

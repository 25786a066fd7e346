package date

import "iter"

// Range represents a range of dates, boundaries included.
type Range struct{ From, To Date }

// Contains return true date is included in the range (boundaries included)
func (r Range) Contains(d Date) bool { return !d.Before(r.From) && !d.After(r.To) }

// Year returns the calendar year as a range.
func Year(year int) Range {
	d := New(year, 1, 1)
	return Range{From: d, To: d.EndOfYear()}
}

// Days iterates over every calendar day of the range in order.
func (r Range) Days() iter.Seq[Date] {
	return func(yield func(Date) bool) {
		for d := r.From; !d.After(r.To); d = d.Add(1) {
			if !yield(d) {
				return
			}
		}
	}
}

// Weekdays iterates over the Monday-Friday days of the range.
func (r Range) Weekdays() iter.Seq[Date] {
	return func(yield func(Date) bool) {
		for d := range r.Days() {
			if wd := d.Weekday(); wd == 0 || wd == 6 {
				continue
			}
			if !yield(d) {
				return
			}
		}
	}
}

func (r Range) String() string { return r.From.String() + ".." + r.To.String() }

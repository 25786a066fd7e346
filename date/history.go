package date

import (
	"iter"
	"slices"
)

// History stores a chronological series of values, each associated with a specific date.
// It ensures that dates are unique and the series is always sorted.
type History[T any] struct {
	days   []Date
	values []T
}

// Len returns the number of items in the history.
func (h *History[T]) Len() int { return len(h.days) }

func (h *History[T]) search(day Date) (int, bool) {
	return slices.BinarySearchFunc(h.days, day, func(d, t Date) int { return d.Compare(t) })
}

// Append adds a point to the history.
//
// Existing value at that date are overwritten.
func (h *History[T]) Append(on Date, v T) *History[T] {
	i, found := h.search(on)
	if found {
		h.values[i] = v
		return h
	}
	h.days = slices.Insert(h.days, i, on)
	h.values = slices.Insert(h.values, i, v)
	return h
}

// Get returns the value at 'day' and true or zero value and false.
func (h *History[T]) Get(day Date) (T, bool) {
	if i, found := h.search(day); found {
		return h.values[i], true
	}
	var zero T
	return zero, false
}

// ValueAsOf returns the value on a given day, or the most recent value before it.
func (h *History[T]) ValueAsOf(day Date) (T, bool) {
	i, found := h.search(day)
	if found {
		return h.values[i], true
	}
	if i == 0 {
		var zero T
		return zero, false
	}
	return h.values[i-1], true
}

// Latest returns the latest date and value in the history.
func (h *History[T]) Latest() (Date, T) {
	last := len(h.days) - 1
	if last < 0 {
		var zero T
		return Date{}, zero
	}
	return h.days[last], h.values[last]
}

// Days returns the dates of the history in chronological order.
func (h *History[T]) Days() []Date { return slices.Clone(h.days) }

// Values returns an iterator over all date/value pairs in the history, in chronological order.
func (h *History[T]) Values() iter.Seq2[Date, T] {
	return func(yield func(Date, T) bool) {
		for i, on := range h.days {
			if !yield(on, h.values[i]) {
				return
			}
		}
	}
}

// Merge returns an iterator over all unique dates of several sorted date series, in order.
func Merge(series ...[]Date) iter.Seq[Date] {
	return func(yield func(Date) bool) {
		indexes := make([]int, len(series))
		for {
			var m Date
			found := false
			for i, index := range indexes {
				if index < len(series[i]) {
					if on := series[i][index]; !found || on.Before(m) {
						m, found = on, true
					}
				}
			}
			if !found {
				return
			}
			// consume every series positioned on the min
			for i, index := range indexes {
				if index < len(series[i]) && series[i][index] == m {
					indexes[i]++
				}
			}
			if !yield(m) {
				return
			}
		}
	}
}

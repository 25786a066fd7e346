package date

import (
	"slices"
	"testing"
)

func TestAppend(t *testing.T) {
	h := new(History[string])
	d1, v1 := New(2025, 07, 01), "25 Jul 1"
	d2, v2 := New(2024, 07, 01), "24 Jul 1"

	// Test is about appending two values in reverse order and checking that everything is
	// as expected at every step of the way.

	if h.Len() != 0 {
		t.Errorf("History.Len() = %v want 0", h.Len())
	}

	h.Append(d1, v1)
	if h.Len() != 1 {
		t.Errorf("Append(d1, v1).Len() = %v want 1", h.Len())
	}

	h.Append(d2, v2)
	if h.Len() != 2 {
		t.Errorf("Append(d2, v2).Len() = %v want 2", h.Len())
	}

	if h.days[1] != d1 || h.days[0] != d2 {
		t.Errorf("history days = %v want [%v %v]", h.days, d2, d1)
	}
	if h.values[1] != v1 || h.values[0] != v2 {
		t.Errorf("history values = %v want [%v %v]", h.values, v2, v1)
	}

	h.Append(d1, "replaced")
	if got, _ := h.Get(d1); got != "replaced" || h.Len() != 2 {
		t.Errorf("Append(d1) on existing day: Get() = %q, Len() = %d", got, h.Len())
	}
}

func TestValueAsOf(t *testing.T) {
	h := new(History[float64])
	h.Append(MustParse("2025-01-10"), 10)
	h.Append(MustParse("2025-01-20"), 20)

	testCases := []struct {
		on     string
		want   float64
		wantOK bool
	}{
		{"2025-01-09", 0, false},
		{"2025-01-10", 10, true},
		{"2025-01-15", 10, true},
		{"2025-01-20", 20, true},
		{"2025-02-01", 20, true},
	}
	for _, tc := range testCases {
		got, ok := h.ValueAsOf(MustParse(tc.on))
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("ValueAsOf(%s) = %v, %v, want %v, %v", tc.on, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestMerge(t *testing.T) {
	a := []Date{MustParse("2025-01-01"), MustParse("2025-01-03")}
	b := []Date{MustParse("2025-01-02"), MustParse("2025-01-03"), MustParse("2025-01-04")}

	got := slices.Collect(Merge(a, b))
	want := []Date{MustParse("2025-01-01"), MustParse("2025-01-02"), MustParse("2025-01-03"), MustParse("2025-01-04")}
	if !slices.Equal(got, want) {
		t.Errorf("Merge() = %v, want %v", got, want)
	}
}

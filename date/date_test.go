package date

import (
	"encoding/json"
	"testing"
	"time"
)

// TestTime assert that the time() is cannonical and gives comparable times.
func TestTime(t *testing.T) {
	d1 := New(2025, 7, 31)
	d2 := New(2025, 7, 31)

	if d1.time() != d2.time() {
		t.Errorf("invalid time() function same day gives two different time")
	}
}

func TestNew_Normalizes(t *testing.T) {
	got := New(2024, time.February, 30)
	if want := MustParse("2024-03-01"); got != want {
		t.Errorf("New(2024, 2, 30) = %v, want %v", got, want)
	}
}

func TestParse(t *testing.T) {
	testCases := []struct {
		in      string
		want    Date
		wantErr bool
	}{
		{in: "2025-07-01", want: New(2025, time.July, 1)},
		{in: "2025-7-1", want: New(2025, time.July, 1)},
		{in: "01/07/2025", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range testCases {
		got, err := Parse(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDaysSince(t *testing.T) {
	testCases := []struct {
		from, to string
		want     int
	}{
		{"2020-01-01", "2020-01-01", 0},
		{"2020-01-01", "2020-12-31", 365}, // leap year
		{"2021-01-01", "2022-01-01", 365},
		{"2020-03-10", "2020-03-01", -9},
	}
	for _, tc := range testCases {
		if got := MustParse(tc.to).DaysSince(MustParse(tc.from)); got != tc.want {
			t.Errorf("%s.DaysSince(%s) = %d, want %d", tc.to, tc.from, got, tc.want)
		}
	}
}

func TestDate_JSON(t *testing.T) {
	d := New(2021, time.March, 4)
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if string(b) != `"2021-03-04"` {
		t.Errorf("json.Marshal() = %s, want %q", b, "2021-03-04")
	}
	var got Date
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got != d {
		t.Errorf("json.Unmarshal() = %v, want %v", got, d)
	}
}

package backtest

import (
	"math"
	"testing"
)

func TestJsonObjectWriter(t *testing.T) {
	t.Run("empty object", func(t *testing.T) {
		var w jsonObjectWriter
		got, err := w.MarshalJSON()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := "{}"; string(got) != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("field order is kept", func(t *testing.T) {
		var w jsonObjectWriter
		w.Append("z", 1)
		w.Append("a", "hello")
		got, err := w.MarshalJSON()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := `{"z":1,"a":"hello"}`
		if string(got) != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("optional fields", func(t *testing.T) {
		var w jsonObjectWriter
		w.Append("a", 0) // a zero value is still added by Append.
		w.Optional("b", "")
		w.Optional("c", 0)
		w.Optional("d", "hello")
		got, err := w.MarshalJSON()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := `{"a":0,"d":"hello"}`
		if string(got) != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("marshal error sticks", func(t *testing.T) {
		var w jsonObjectWriter
		w.Append("nan", math.NaN())
		w.Append("b", 2)
		if _, err := w.MarshalJSON(); err == nil {
			t.Error("MarshalJSON() succeeded, want an error for NaN")
		}
	})
}

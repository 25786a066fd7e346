package backtest

import (
	"slices"
	"testing"

	"github.com/etnz/backtest/date"
)

func TestProgressiveTax(t *testing.T) {
	policy := DefaultTaxPolicy()
	tests := []struct {
		name  string
		gain  Money
		table []Bracket
		want  Money
	}{
		{"zero", M(0), policy.ShortTerm, M(0)},
		{"loss", M(-1000), policy.ShortTerm, M(0)},
		{"first bracket", M(5000), policy.ShortTerm, M(500)},
		{"second bracket", M(10000), policy.ShortTerm, M(1002.5)},
		{"long term zero rate", M(40000), policy.LongTerm, M(0)},
		{"long term", M(50000), policy.LongTerm, M(1500)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProgressiveTax(tt.gain, tt.table); !got.Equal(tt.want) {
				t.Errorf("ProgressiveTax(%v) = %v, want %v", tt.gain, got, tt.want)
			}
		})
	}
}

func TestProgressiveTax_Monotonic(t *testing.T) {
	policy := DefaultTaxPolicy()
	for _, table := range [][]Bracket{policy.ShortTerm, policy.LongTerm} {
		prev := ProgressiveTax(M(-10000), table)
		for g := -10000; g <= 700000; g += 2500 {
			got := ProgressiveTax(M(g), table)
			if got.LessThan(prev) {
				t.Fatalf("ProgressiveTax(%d) = %v < ProgressiveTax(%d) = %v", g, got, g-2500, prev)
			}
			prev = got
		}
	}
}

func TestProgressiveTax_UnsortedTable(t *testing.T) {
	table := slices.Clone(DefaultTaxPolicy().ShortTerm)
	slices.Reverse(table)
	if got, want := ProgressiveTax(M(10000), table), M(1002.5); !got.Equal(want) {
		t.Errorf("ProgressiveTax() = %v, want %v", got, want)
	}
}

func TestIsQualified(t *testing.T) {
	div := date.MustParse("2020-06-01")
	tests := []struct {
		name  string
		entry string
		exit  string // empty when still open
		want  bool
	}{
		{"held long before and still open", "2020-01-02", "", true},
		{"bought 60 days before", "2020-04-02", "", true},
		{"bought 59 days before", "2020-04-03", "", false},
		{"sold 60 days after", "2020-01-02", "2020-07-31", true},
		{"sold 59 days after", "2020-01-02", "2020-07-30", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, _ := OpenPosition(1, 1, "KO", M(10), 1, date.MustParse(tt.entry))
			if tt.exit != "" {
				pos.Close(M(10), date.MustParse(tt.exit))
			}
			if got := IsQualified(pos, div); got != tt.want {
				t.Errorf("IsQualified() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTaxPolicy_Report(t *testing.T) {
	d := date.MustParse
	p := NewPortfolio(1, "alice", d("2019-01-02"))
	p.Deposit(M(100000))

	long, _ := p.OpenPosition(1, "AAPL", M(100), 100, d("2019-01-02"))
	short, _ := p.OpenPosition(2, "MSFT", M(100), 100, d("2020-01-02"))
	if _, err := p.OpenPosition(3, "KO", M(50), 100, d("2019-06-03")); err != nil {
		t.Fatal(err)
	}
	old, _ := p.OpenPosition(4, "IBM", M(100), 10, d("2019-01-02"))
	p.ClosePosition(old, M(110), d("2019-12-31")) // previous tax year

	p.ClosePosition(long, M(200), d("2020-03-02"))  // +10,000 long term
	p.ClosePosition(short, M(150), d("2020-03-02")) // +5,000 short term

	dividends := []Transaction{
		newTransaction(Dividend, 1, 3, "KO", 100, M(1), d("2020-04-01")), // qualified
		newTransaction(Dividend, 1, 2, "MSFT", 100, M(1), d("2020-02-03")), // ordinary
		newTransaction(Dividend, 1, 3, "KO", 100, M(1), d("2019-12-02")), // previous year
	}

	r := DefaultTaxPolicy().Report(p, slices.Values(dividends), d("2020-12-31"))
	checks := []struct {
		name      string
		got, want Money
	}{
		{"LongTermGains", r.LongTermGains, M(10000)},
		{"ShortTermGains", r.ShortTermGains, M(5000)},
		{"QualifiedDividends", r.QualifiedDividends, M(100)},
		{"OrdinaryDividends", r.OrdinaryDividends, M(100)},
		{"ShortTermTax", r.ShortTermTax, M(510)},
		{"LongTermTax", r.LongTermTax, M(0)},
		{"LossDeduction", r.LossDeduction, M(0)},
		{"Total", r.Total, M(510)},
	}
	for _, c := range checks {
		if !c.got.Equal(c.want) {
			t.Errorf("Report().%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if len(r.Positions) != 2 {
		t.Errorf("Report().Positions = %v, want 2 positions", r.Positions)
	}
}

func TestTaxPolicy_Report_Losses(t *testing.T) {
	d := date.MustParse
	newLossPortfolio := func() *Portfolio {
		p := NewPortfolio(1, "bob", d("2020-01-02"))
		p.Deposit(M(10000))
		pos, _ := p.OpenPosition(1, "GME", M(100), 50, d("2020-01-02"))
		p.ClosePosition(pos, M(0.01), d("2020-02-03")) // about -5,000
		return p
	}

	policy := DefaultTaxPolicy()
	r := policy.Report(newLossPortfolio(), slices.Values([]Transaction(nil)), d("2020-12-31"))
	if got, want := r.LossDeduction, M(3000); !got.Equal(want) {
		t.Errorf("LossDeduction = %v, want %v", got, want)
	}
	if got, want := r.Total, M(-3000); !got.Equal(want) {
		t.Errorf("Total = %v, want %v", got, want)
	}
	if !r.Due().IsZero() {
		t.Errorf("Due() = %v, want 0", r.Due())
	}

	policy.FloorAtZero = true
	r = policy.Report(newLossPortfolio(), slices.Values([]Transaction(nil)), d("2020-12-31"))
	if !r.Total.IsZero() {
		t.Errorf("Total with FloorAtZero = %v, want 0", r.Total)
	}
}

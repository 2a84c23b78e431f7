package market

import (
	"errors"
	"math"
	"testing"
)

func TestTickMid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		bid      float64
		ask      float64
		expected float64
	}{
		{"simple", 1.0, 3.0, 2.0},
		{"same", 2.5, 2.5, 2.5},
		{"zero", 0.0, 0.0, 0.0},
		{"fractional", 1.1, 1.3, 1.2},
	}

	const tol = 1e-9

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := Tick{Bid: tt.bid, Ask: tt.ask}
			got := p.Mid()
			if math.Abs(got-tt.expected) > tol {
				t.Fatalf("Mid() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestTickSides(t *testing.T) {
	t.Parallel()

	tk := Tick{Bid: 1.1000, Ask: 1.1002}
	if tk.Exit(1) != tk.Bid || tk.Exit(-1) != tk.Ask {
		t.Fatalf("exit side wrong: long=%v short=%v", tk.Exit(1), tk.Exit(-1))
	}
	if tk.Entry(1) != tk.Ask || tk.Entry(-1) != tk.Bid {
		t.Fatalf("entry side wrong: long=%v short=%v", tk.Entry(1), tk.Entry(-1))
	}
	if math.Abs(tk.Spread()-0.0002) > 1e-12 {
		t.Fatalf("spread = %v", tk.Spread())
	}
}

func TestTickStore(t *testing.T) {
	t.Parallel()

	ts := NewTickStore()
	if _, err := ts.Get("EUR_USD"); !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	ts.Set(Tick{Instrument: "EUR_USD", Bid: 1, Ask: 2})
	got, err := ts.Get("EUR_USD")
	if err != nil || got.Ask != 2 {
		t.Fatalf("get: %v %v", got, err)
	}
}

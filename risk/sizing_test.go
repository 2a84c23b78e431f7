package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/autotrader/position"
)

func TestPipSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		loc  int
		want float64
	}{
		{"zero", 0, 1},
		{"negative2", -2, 0.01},
		{"positive1", 1, 10},
		{"negative4", -4, 0.0001},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, PipSize(tt.loc), 1e-12)
		})
	}
}

func TestCalculate_SimpleUSDQuote(t *testing.T) {
	t.Parallel()

	got, err := Calculate(Inputs{
		Equity:         10000,
		RiskPct:        0.01,
		EntryPrice:     1.2000,
		StopPrice:      1.1900,
		PipLocation:    -4,
		QuoteToAccount: 1.0,
	})
	require.NoError(t, err)

	assert.InDelta(t, 100.0, got.StopPips, 1e-9)
	assert.InDelta(t, 100.0, got.RiskAmount, 1e-9)
	assert.InDelta(t, 10000.0, got.Units, 1.0)
}

func TestCalculate_NonUSDQuoteConversion(t *testing.T) {
	t.Parallel()

	got, err := Calculate(Inputs{
		Equity:         5000,
		RiskPct:        0.02,
		EntryPrice:     150.00,
		StopPrice:      149.50,
		PipLocation:    -2,
		QuoteToAccount: 0.0091,
	})
	require.NoError(t, err)

	assert.InDelta(t, 50.0, got.StopPips, 1e-9)
	assert.InDelta(t, 21978.0, got.Units, 1.0)
}

func TestCalculate_ZeroStop(t *testing.T) {
	t.Parallel()

	_, err := Calculate(Inputs{Equity: 1000, RiskPct: 0.01, EntryPrice: 1.1, StopPrice: 1.1, PipLocation: -4, QuoteToAccount: 1})
	assert.ErrorIs(t, err, ErrInvalidStop)
}

func TestSize_Clamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		balance  float64
		min, max float64
		want     float64
	}{
		{"unclamped", 1000, 1, 100000, 1666},
		{"min", 1, 100, 0, 100},
		{"max", 1000000, 0, 5000, 5000},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Size(tt.balance, 30, 0.05, 0.001, tt.min, tt.max)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Size(1000, 0, 0.05, 0.001, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidStop)
}

func TestPnLFrom(t *testing.T) {
	t.Parallel()
	wed := time.Date(2024, 5, 8, 15, 0, 0, 0, time.UTC)

	hist := []position.Position{
		{Direction: position.Long, EntryPrice: 1.0, ClosePrice: 0.99, Size: 1000, CloseTime: wed.Add(-time.Hour)},
		{Direction: position.Short, EntryPrice: 1.0, ClosePrice: 1.02, Size: 1000, CloseTime: wed.AddDate(0, 0, -1)},
		{Direction: position.Long, EntryPrice: 1.0, ClosePrice: 2.0, Size: 1000, CloseTime: wed.AddDate(0, 0, -7)},
	}

	pnl := PnLFrom(hist, wed, 1)
	assert.InDelta(t, -10.0, pnl.DayRealized, 1e-9)
	assert.InDelta(t, -30.0, pnl.WeekRealized, 1e-9)
}

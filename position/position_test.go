package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPositionDerivedValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pos      Position
		wantPnL  float64
		wantPips float64
	}{
		{
			name:     "long in profit",
			pos:      Position{Direction: Long, EntryPrice: 100, CurrentPrice: 100.025, Size: 1, Point: 0.0001},
			wantPnL:  250,
			wantPips: 25,
		},
		{
			name:     "short in profit",
			pos:      Position{Direction: Short, EntryPrice: 1.2, CurrentPrice: 1.199, Size: 2, Point: 0.00001},
			wantPnL:  200,
			wantPips: 10,
		},
		{
			name:     "long in loss",
			pos:      Position{Direction: Long, EntryPrice: 1.2, CurrentPrice: 1.199, Size: 1, Point: 0.00001},
			wantPnL:  -100,
			wantPips: -10,
		},
		{
			name: "no point",
			pos:  Position{Direction: Long, EntryPrice: 1, CurrentPrice: 2, Size: 1},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.wantPnL, tt.pos.UnrealizedPnL(), 1e-6)
			assert.InDelta(t, tt.wantPips, tt.pos.UnrealizedPips(), 1e-6)
		})
	}
}

func TestPositionTimeout(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	p := Position{EntryTime: start, Timeout: 5 * time.Minute}

	assert.Equal(t, 3*time.Minute, p.Age(start.Add(3*time.Minute)))
	assert.False(t, p.TimedOut(start.Add(5*time.Minute)))
	assert.True(t, p.TimedOut(start.Add(5*time.Minute+time.Second)))

	p.Timeout = 0
	assert.False(t, p.TimedOut(start.Add(24*time.Hour)))
}

func TestDirectionOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Long, DirectionOf(10))
	assert.Equal(t, Short, DirectionOf(-0.5))
	assert.Equal(t, Flat, DirectionOf(0))
	assert.Equal(t, "SHORT", Short.String())
}

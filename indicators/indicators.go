// Package indicators provides technical analysis indicators for trading
package indicators

import "github.com/rustyeddy/autotrader/market"

// Indicator computes a single streaming value from candles.
// It is deterministic and safe to use on live or replayed data.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)" or "RSI(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next candle and updates internal state.
	Update(c market.Candle)

	// Ready reports whether Value() is meaningful (warmup completed).
	Ready() bool

	// Value returns the current indicator value, or 0 before Ready.
	Value() float64
}

// Run feeds candles through ind and returns its final value.
func Run(ind Indicator, candles []market.Candle) float64 {
	for _, c := range candles {
		ind.Update(c)
	}
	return ind.Value()
}

// Closes extracts the close prices of candles.
func Closes(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

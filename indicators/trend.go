package indicators

import (
	"math"
	"sort"

	"github.com/rustyeddy/autotrader/market"
)

// Slope fits a least squares line through v against its index and returns
// the slope divided by the mean of v, so series at different price levels
// compare. It is 0 for fewer than two values or a zero mean.
func Slope(v []float64) float64 {
	n := float64(len(v))
	if n < 2 {
		return 0
	}
	var sx, sy, sxy, sxx float64
	for i, y := range v {
		x := float64(i)
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
	}
	den := n*sxx - sx*sx
	mean := sy / n
	if den == 0 || mean == 0 {
		return 0
	}
	return (n*sxy - sx*sy) / den / mean
}

// Quantile returns the q-th quantile of v with linear interpolation.
func Quantile(v []float64, q float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	if q <= 0 {
		return s[0]
	}
	if q >= 1 {
		return s[len(s)-1]
	}
	pos := q * float64(len(s)-1)
	lo := math.Floor(pos)
	frac := pos - lo
	i := int(lo)
	if i+1 >= len(s) {
		return s[i]
	}
	return s[i] + frac*(s[i+1]-s[i])
}

// VWAP is the volume weighted mean close. ok is false when the candles
// carry no volume.
func VWAP(candles []market.Candle) (vwap float64, ok bool) {
	var pv, vol float64
	for _, c := range candles {
		pv += c.Close * c.Volume
		vol += c.Volume
	}
	if vol == 0 {
		return 0, false
	}
	return pv / vol, true
}

package market

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rangeCandles(closes ...float64) []Candle {
	out := make([]Candle, len(closes))
	for i, c := range closes {
		out[i] = Candle{Time: int64(i) * 60, Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	return out
}

func TestTrueRange(t *testing.T) {
	t.Parallel()

	prev := Candle{Close: 10}
	assert.Equal(t, 2.0, TrueRange(Candle{High: 11, Low: 9}, prev))
	assert.Equal(t, 5.0, TrueRange(Candle{High: 15, Low: 12}, prev))
	assert.Equal(t, 4.0, TrueRange(Candle{High: 8, Low: 6}, prev))
}

func TestATRTooFewCandles(t *testing.T) {
	t.Parallel()

	assert.Zero(t, ATR(rangeCandles(1, 2, 3), 14, 0))
	assert.Zero(t, ATR(nil, 14, 0))
	assert.Zero(t, ATR(rangeCandles(1, 2, 3), 0, 0))
}

func TestATRFlatClosesHalved(t *testing.T) {
	t.Parallel()

	// no close dispersion drives the ratio to zero, leaving half the mean range
	cs := rangeCandles(5, 5, 5, 5, 5, 5)
	assert.InDelta(t, 1.0, ATR(cs, 5, 0), 1e-9)
}

func TestATRShortWindowUnscaled(t *testing.T) {
	t.Parallel()

	// under 20 closes the recent window is the whole window, so the ratio is ~1
	cs := rangeCandles(100, 101, 100, 101, 100, 101, 100, 101)
	assert.InDelta(t, 2.0, ATR(cs, 7, 0), 1e-6)
	assert.InDelta(t, 2.0, ATR(cs, 7, 4), 1e-6)
}

func TestWeightedRecentFavoursNewest(t *testing.T) {
	t.Parallel()

	v := []float64{1, 2, 3}
	got := weightedRecent(v, 3)
	assert.Greater(t, got, 2.0)
	assert.Less(t, got, 3.0)

	w0, w1, w2 := 1.0, math.Exp(-0.5), math.Exp(-1)
	assert.InDelta(t, (3*w0+2*w1+1*w2)/(w0+w1+w2), got, 1e-12)

	assert.Equal(t, 3.0, weightedRecent(v, 1))
	assert.InDelta(t, got, weightedRecent(v, 10), 1e-12)
}

func TestATRNonNegative(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	cs := make([]Candle, 200)
	price := 1.1
	for i := range cs {
		o := price
		price += rng.NormFloat64() * 0.001
		hi := math.Max(o, price) + rng.Float64()*0.0005
		lo := math.Min(o, price) - rng.Float64()*0.0005
		cs[i] = Candle{Time: int64(i) * 60, Open: o, High: hi, Low: lo, Close: price}
	}

	for _, lookback := range []int{1, 5, 14, 50, 199} {
		for _, smoothing := range []int{0, 1, 14, 30} {
			assert.GreaterOrEqual(t, ATR(cs, lookback, smoothing), 0.0)
		}
	}
}

func TestStoreATRAndVolatility(t *testing.T) {
	t.Parallel()

	src := newFakeBars()
	for i, c := range []float64{100, 110, 100} {
		src.bars[H1] = append(src.bars[H1], bar(int64(i)*3600, c))
	}
	s := NewStore(src, []Timeframe{H1})
	require.NoError(t, s.Initialize(context.Background(), H1))

	assert.Zero(t, s.ATR(H1, 14, 0))
	assert.Greater(t, s.ATR(H1, 2, 0), 0.0)

	r := math.Log(1.1)
	assert.InDelta(t, r*math.Sqrt(3), s.Volatility(H1), 1e-9)
	assert.Zero(t, s.Volatility(D1))
}

func TestVolatility(t *testing.T) {
	t.Parallel()

	assert.Zero(t, Volatility(rangeCandles(1)))
	assert.Zero(t, Volatility(rangeCandles(3, 3, 3, 3)))
	assert.Greater(t, Volatility(rangeCandles(1, 2, 1, 2)), 0.0)
}

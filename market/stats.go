package market

import "math"

const (
	atrRecentCloses = 20
	epsilon         = 1e-10
)

// ATR averages true range over the last lookback candles of tf.
//
// With smoothing > 0 the average is exponentially weighted over the newest
// smoothing true ranges, the newest weighted highest. The average is then
// scaled by 0.5 + 0.5*(stdev of the last 20 closes / stdev of all window
// closes), which damps the value in quiet markets. ATR is 0 when the series
// holds fewer than lookback candles.
func (s *Store) ATR(tf Timeframe, lookback, smoothing int) float64 {
	ser, ok := s.series[tf]
	if !ok || lookback <= 0 || ser.Len() < lookback {
		return 0
	}
	return ATR(ser.Tail(lookback+1), lookback, smoothing)
}

// ATR computes the scaled average true range of candles; see Store.ATR.
func ATR(candles []Candle, lookback, smoothing int) float64 {
	if lookback <= 0 || len(candles) < lookback {
		return 0
	}
	if len(candles) > lookback+1 {
		candles = candles[len(candles)-lookback-1:]
	}

	tr := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		tr = append(tr, TrueRange(candles[i], candles[i-1]))
	}
	if len(tr) == 0 {
		return 0
	}

	var avg float64
	if smoothing > 0 {
		avg = weightedRecent(tr, smoothing)
	} else {
		n := lookback
		if n > len(tr) {
			n = len(tr)
		}
		avg = mean(tr[len(tr)-n:])
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	recent := closes
	if len(recent) > atrRecentCloses {
		recent = recent[len(recent)-atrRecentCloses:]
	}
	ratio := stdev(recent) / (stdev(closes) + epsilon)

	return avg * (0.5 + 0.5*ratio)
}

// weightedRecent is an exponentially weighted mean over the newest n values.
// Weight k (0 = newest) is exp(-k/(n-1)), normalised to sum to one.
func weightedRecent(v []float64, n int) float64 {
	if n > len(v) {
		n = len(v)
	}
	if n == 1 {
		return v[len(v)-1]
	}
	var sum, wsum float64
	for k := 0; k < n; k++ {
		w := math.Exp(-float64(k) / float64(n-1))
		sum += w * v[len(v)-1-k]
		wsum += w
	}
	return sum / wsum
}

// Volatility is the stdev of close-to-close log returns over the whole
// series of tf, scaled by the square root of the series length.
func (s *Store) Volatility(tf Timeframe) float64 {
	ser, ok := s.series[tf]
	if !ok || ser.Len() < 2 {
		return 0
	}
	return Volatility(ser.Candles())
}

func Volatility(candles []Candle) float64 {
	if len(candles) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev, cur := candles[i-1].Close, candles[i].Close
		if prev <= 0 || cur <= 0 {
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}
	if len(returns) == 0 {
		return 0
	}
	return stdev(returns) * math.Sqrt(float64(len(candles)))
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// stdev is the population standard deviation.
func stdev(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	m := mean(v)
	var ss float64
	for _, x := range v {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(v)))
}

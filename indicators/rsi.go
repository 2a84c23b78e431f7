package indicators

import (
	"fmt"

	"github.com/rustyeddy/autotrader/market"
)

// RSI is a streaming Relative Strength Index with Wilder's smoothing.
// Values run from 0 to 100.
type RSI struct {
	period    int
	count     int
	prevClose float64
	hasPrev   bool
	avgGain   float64
	avgLoss   float64
}

func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI(%d)", r.period)
}

func (r *RSI) Warmup() int {
	return r.period + 1
}

func (r *RSI) Reset() {
	*r = RSI{period: r.period}
}

func (r *RSI) Update(c market.Candle) {
	if !r.hasPrev {
		r.prevClose = c.Close
		r.hasPrev = true
		return
	}

	change := c.Close - r.prevClose
	r.prevClose = c.Close
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	if r.count < r.period {
		r.avgGain += gain / float64(r.period)
		r.avgLoss += loss / float64(r.period)
		r.count++
		return
	}
	n := float64(r.period)
	r.avgGain = (r.avgGain*(n-1) + gain) / n
	r.avgLoss = (r.avgLoss*(n-1) + loss) / n
}

func (r *RSI) Ready() bool {
	return r.count >= r.period
}

func (r *RSI) Value() float64 {
	if !r.Ready() {
		return 0
	}
	if r.avgLoss == 0 {
		if r.avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}

// RSIFunc computes the RSI over candles.
func RSIFunc(candles []market.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(candles) < period+1 {
		return 0, fmt.Errorf("not enough candles: need %d, got %d", period+1, len(candles))
	}
	return Run(NewRSI(period), candles), nil
}

package indicators

import (
	"fmt"

	"github.com/rustyeddy/autotrader/market"
)

// ATRFunc calculates Wilder's Average True Range for the given period.
// Returns an error if there aren't enough candles for the period.
func ATRFunc(candles []market.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(candles) < period+1 {
		return 0, fmt.Errorf("not enough candles: need %d, got %d", period+1, len(candles))
	}
	return Run(NewATR(period), candles), nil
}

// ATR is a streaming Average True Range indicator using Wilder's smoothing.
type ATR struct {
	period      int
	atr         float64
	count       int
	warmupSum   float64
	prevCandle  market.Candle
	hasPrevious bool
}

// NewATR creates a new Average True Range indicator with the given period
func NewATR(period int) *ATR {
	return &ATR{
		period: period,
	}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR(%d)", a.period)
}

func (a *ATR) Warmup() int {
	// TR needs the previous candle
	return a.period + 1
}

func (a *ATR) Reset() {
	a.atr = 0
	a.count = 0
	a.warmupSum = 0
	a.hasPrevious = false
}

func (a *ATR) Update(c market.Candle) {
	if !a.hasPrevious {
		a.prevCandle = c
		a.hasPrevious = true
		return
	}

	tr := market.TrueRange(c, a.prevCandle)

	if a.count < a.period {
		a.warmupSum += tr
		a.count++
		if a.count == a.period {
			a.atr = a.warmupSum / float64(a.period)
		}
	} else {
		a.atr = (a.atr*float64(a.period-1) + tr) / float64(a.period)
	}

	a.prevCandle = c
}

func (a *ATR) Ready() bool {
	return a.count >= a.period
}

func (a *ATR) Value() float64 {
	if !a.Ready() {
		return 0
	}
	return a.atr
}

package indicators

import (
	"fmt"

	"github.com/rustyeddy/autotrader/market"
)

// MA calculates the Simple Moving Average of the last period closes.
func MA(candles []market.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(candles) < period {
		return 0, fmt.Errorf("not enough candles: need %d, got %d", period, len(candles))
	}
	return Run(NewMA(period), candles[len(candles)-period:]), nil
}

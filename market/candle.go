package market

import (
	"math"
	"time"
)

// Bar is a raw OHLCV record as delivered by a bar source.
// Time is the bar open in unix seconds.
type Bar struct {
	Time   int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Candle is a Bar held in a Series. The newest candle of a series stays open
// and may be merged with fresher data for the same period; it is sealed as
// soon as a bar for a later period arrives.
type Candle struct {
	Time      int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timeframe Timeframe
	Sealed    bool
}

// CandleFromBar builds an open candle for tf.
func CandleFromBar(b Bar, tf Timeframe) Candle {
	return Candle{
		Time:      b.Time,
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
		Timeframe: tf,
	}
}

// Timestamp returns the candle open time in UTC.
func (c Candle) Timestamp() time.Time {
	return time.Unix(c.Time, 0).UTC()
}

func (c Candle) Body() float64 {
	return math.Abs(c.Close - c.Open)
}

func (c Candle) Range() float64 {
	return c.High - c.Low
}

func (c Candle) Bullish() bool { return c.Close > c.Open }
func (c Candle) Bearish() bool { return c.Close < c.Open }

// merge folds a bar for the same period into the open candle. Open is kept,
// the range only widens, close is replaced and volume accumulates.
func (c *Candle) merge(b Bar) {
	c.High = math.Max(c.High, b.High)
	c.Low = math.Min(c.Low, b.Low)
	c.Close = b.Close
	c.Volume += b.Volume
}

// seal freezes the candle. High and Low are widened if the source reported
// an inconsistent bar so a sealed candle always brackets its open and close.
func (c *Candle) seal() {
	c.High = math.Max(c.High, math.Max(c.Open, c.Close))
	c.Low = math.Min(c.Low, math.Min(c.Open, c.Close))
	c.Sealed = true
}

// flatCandle is the synthetic candle used to fill a gap: no range, no volume.
func flatCandle(t int64, price float64, tf Timeframe) Candle {
	return Candle{
		Time:      t,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Timeframe: tf,
		Sealed:    true,
	}
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(cur, prev Candle) float64 {
	highLow := cur.High - cur.Low
	highClose := math.Abs(cur.High - prev.Close)
	lowClose := math.Abs(cur.Low - prev.Close)
	return math.Max(highLow, math.Max(highClose, lowClose))
}

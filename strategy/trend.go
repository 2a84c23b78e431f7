package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/rustyeddy/autotrader/indicators"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/position"
)

type weightedFrame struct {
	tf        market.Timeframe
	weight    float64
	volTarget float64
	barsYear  float64
	maxBars   int
}

var trendFrames = []weightedFrame{
	{market.D1, 7, 0.15, 252, 90},
	{market.H4, 4, 0.25, 6 * 252, 60},
	{market.H1, 2, 0.40, 24 * 252, 90},
}

// TrendConfidence blends per-timeframe trend reads into one weighted score
// and sizes by how strong the agreement is.
type TrendConfidence struct {
	StopPips float64

	market Market
	exec   *Executor
}

func NewTrendConfidence(m Market, exec *Executor) *TrendConfidence {
	return &TrendConfidence{StopPips: 30, market: m, exec: exec}
}

func (t *TrendConfidence) Name() string { return "MTC" }

// FrameTrend is one timeframe's read: trend is -1, 0 or +1, confidence 0..1.
type FrameTrend struct {
	Timeframe  market.Timeframe
	Trend      int
	Confidence float64
}

func (t *TrendConfidence) Detect(ctx context.Context) (Signal, error) {
	var sum, total float64
	for _, f := range trendFrames {
		ft := FrameTrend{Timeframe: f.tf}
		bars := lookbackBars(t.market.Candles(f.tf, 300), f)
		if candles := t.market.Candles(f.tf, bars); len(candles) >= bars {
			ft = ReadTrend(f.tf, candles)
		}
		if f.tf == market.H1 && t.inChop(f.tf) {
			ft.Confidence *= 0.4
		}
		sum += float64(ft.Trend) * ft.Confidence * f.weight
		total += f.weight
	}

	composite := sum / total
	conf := math.Abs(composite)
	alloc := Allocation(conf)

	sig := Signal{
		Reason:    fmt.Sprintf("composite %.2f allocation %.0f%%", composite, alloc*100),
		RiskScale: alloc,
	}
	if alloc == 0 {
		return sig, nil
	}
	switch {
	case composite > 0:
		sig.Direction = position.Long
	case composite < 0:
		sig.Direction = position.Short
	}
	return sig, nil
}

func (t *TrendConfidence) inChop(tf market.Timeframe) bool {
	short := t.market.ATR(tf, 14, 14)
	long := t.market.ATR(tf, 14, 30)
	return short > 0 && long > 0 && short < 0.5*long
}

func (t *TrendConfidence) Execute(ctx context.Context, sig Signal) error {
	_, err := t.exec.Place(ctx, Order{
		Direction:    sig.Direction,
		StopDistance: t.StopPips * t.exec.PipSize(),
		RiskScale:    sig.RiskScale,
		Tag:          t.Name(),
	})
	return err
}

// Allocation maps composite confidence to a share of the base risk.
func Allocation(conf float64) float64 {
	switch {
	case conf >= 0.85:
		return 0.65
	case conf >= 0.70:
		return 0.40
	case conf >= 0.60:
		return 0.25
	}
	return 0
}

// ReadTrend scores one timeframe from its closes and volume.
func ReadTrend(tf market.Timeframe, candles []market.Candle) FrameTrend {
	out := FrameTrend{Timeframe: tf}
	if len(candles) < 3 {
		return out
	}
	closes := indicators.Closes(candles)
	slope := indicators.Slope(closes)

	median := indicators.Quantile(closes, 0.5)
	p40 := indicators.Quantile(closes, 0.4)
	var above, below float64
	for _, c := range closes[len(closes)-3:] {
		if c > median {
			above++
		}
		if c < p40 {
			below++
		}
	}
	bull, bear := above/3, below/3

	vwap, ok := indicators.VWAP(candles)
	if !ok {
		vwap, _ = indicators.MA(candles, len(candles))
	}
	var dev float64
	if vwap != 0 {
		dev = (closes[len(closes)-1] - vwap) / vwap
	}

	switch {
	case slope > 0 && bull > 0.7 && dev > 0:
		out.Trend = 1
	case slope < 0 && bear > 0.7 && dev < 0:
		out.Trend = -1
	}
	out.Confidence = math.Min(1,
		0.5*math.Min(math.Abs(slope)*100, 1)+
			0.3*math.Max(bull, bear)+
			0.2*math.Min(math.Abs(dev)*10, 1))
	return out
}

// lookbackBars scales the trend window inversely with realized volatility:
// 30 bars at the frame's volatility target, bounded to [10, maxBars].
func lookbackBars(candles []market.Candle, f weightedFrame) int {
	const defaultBars = 20
	if len(candles) < 30 {
		return defaultBars
	}

	returns := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		if candles[i-1].Close <= 0 || candles[i].Close <= 0 {
			continue
		}
		returns = append(returns, math.Log(candles[i].Close/candles[i-1].Close))
	}
	if len(returns) == 0 {
		return defaultBars
	}

	// EWMA weights, newest highest, lambda 0.94
	const lambda = 0.94
	n := len(returns)
	w := make([]float64, n)
	var wsum float64
	for i := range w {
		w[i] = math.Pow(lambda, float64(n-1-i))
		wsum += w[i]
	}
	var mean float64
	for i, r := range returns {
		mean += w[i] / wsum * r
	}
	var variance float64
	for i, r := range returns {
		d := r - mean
		variance += w[i] / wsum * d * d
	}
	realized := math.Sqrt(variance) * math.Sqrt(f.barsYear)

	ratio := math.Max(0.5, math.Min(2.0, realized/f.volTarget))
	bars := int(30 / math.Sqrt(ratio))
	if bars < 10 {
		bars = 10
	}
	if bars > f.maxBars {
		bars = f.maxBars
	}
	return bars
}

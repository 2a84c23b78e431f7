package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/position"
)

// Breakout trades a daily range break. The range runs from the previous
// day's extreme to today's open; price must clear it by Threshold times its
// width, widened by 0.2 times daily volatility.
type Breakout struct {
	Threshold float64
	StopPips  float64

	market Market
	ticks  market.TickSource
	exec   *Executor
}

func NewBreakout(m Market, ticks market.TickSource, exec *Executor) *Breakout {
	return &Breakout{
		Threshold: 0.65,
		StopPips:  30,
		market:    m,
		ticks:     ticks,
		exec:      exec,
	}
}

func (b *Breakout) Name() string { return "D1 BREAKOUT" }

func (b *Breakout) Detect(ctx context.Context) (Signal, error) {
	candles := b.market.Candles(market.D1, 5)
	if len(candles) < 2 {
		return Signal{Reason: "not enough daily candles"}, nil
	}
	prev, cur := candles[len(candles)-2], candles[len(candles)-1]

	threshold := b.Threshold + 0.2*b.market.Volatility(market.D1)
	resistance := math.Max(prev.High, cur.Open)
	support := math.Min(prev.Low, cur.Open)
	width := resistance - support

	tick, err := b.ticks.LatestTick(ctx)
	if err != nil {
		if errors.Is(err, market.ErrDataUnavailable) {
			return Signal{Reason: "no tick"}, nil
		}
		return Signal{}, err
	}

	switch {
	case tick.Bid > resistance+threshold*width:
		return Signal{
			Direction: position.Long,
			Reason:    fmt.Sprintf("bid %.5f above resistance %.5f", tick.Bid, resistance),
		}, nil
	case tick.Ask < support-threshold*width:
		return Signal{
			Direction: position.Short,
			Reason:    fmt.Sprintf("ask %.5f below support %.5f", tick.Ask, support),
		}, nil
	}
	return Signal{Reason: "inside range"}, nil
}

func (b *Breakout) Execute(ctx context.Context, sig Signal) error {
	_, err := b.exec.Place(ctx, Order{
		Direction:    sig.Direction,
		StopDistance: b.StopPips * b.exec.PipSize(),
		RiskScale:    sig.RiskScale,
		Tag:          b.Name(),
	})
	return err
}

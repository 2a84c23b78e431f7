package sim

import (
	"context"

	"github.com/rustyeddy/autotrader/market"
)

// Paper fills orders on the simulated engine while bars and quotes come
// from a live feed. Every quote read through LatestTick is applied to the
// engine first, so stops and targets fire against real prices.
type Paper struct {
	*Engine
	bars  market.BarSource
	ticks market.TickSource
}

func NewPaper(e *Engine, bars market.BarSource, ticks market.TickSource) *Paper {
	return &Paper{Engine: e, bars: bars, ticks: ticks}
}

func (p *Paper) RecentBars(ctx context.Context, tf market.Timeframe, count int) ([]market.Bar, error) {
	return p.bars.RecentBars(ctx, tf, count)
}

func (p *Paper) LatestTick(ctx context.Context) (market.Tick, error) {
	t, err := p.ticks.LatestTick(ctx)
	if err != nil {
		return market.Tick{}, err
	}
	if t.Instrument == "" {
		t.Instrument = p.Instrument()
	}
	if err := p.UpdatePrice(t); err != nil {
		return market.Tick{}, err
	}
	return t, nil
}

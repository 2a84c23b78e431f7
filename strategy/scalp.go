package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/autotrader/indicators"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/position"
)

const (
	scalpCandles   = 30
	scalpATRPeriod = 14
)

// Scalp trades a one minute EMA5/EMA13 crossover confirmed by RSI14, with
// ATR based stops and a short timeout. One scalp is open at a time.
type Scalp struct {
	Fast, Slow, RSIPeriod int
	Timeout               time.Duration

	market Market
	exec   *Executor
}

func NewScalp(m Market, exec *Executor) *Scalp {
	return &Scalp{
		Fast:      5,
		Slow:      13,
		RSIPeriod: 14,
		Timeout:   180 * time.Second,
		market:    m,
		exec:      exec,
	}
}

func (s *Scalp) Name() string { return "M1 SCALP" }

func (s *Scalp) Detect(ctx context.Context) (Signal, error) {
	if s.exec.Holding(s.Name()) {
		return Signal{Reason: "scalp already open"}, nil
	}
	candles := s.market.Candles(market.M1, scalpCandles)
	if len(candles) < scalpCandles {
		return Signal{Reason: fmt.Sprintf("insufficient candles %d/%d", len(candles), scalpCandles)}, nil
	}

	fast := indicators.NewEMA(s.Fast)
	slow := indicators.NewEMA(s.Slow)
	emas := []indicators.Indicator{fast, slow}
	for _, c := range candles {
		for _, ind := range emas {
			ind.Update(c)
		}
	}
	r, err := indicators.RSIFunc(candles, s.RSIPeriod)
	if err != nil {
		return Signal{Reason: err.Error()}, nil
	}
	if !slow.Ready() {
		return Signal{Reason: fmt.Sprintf("%s warming up", slow.Name())}, nil
	}

	last := candles[len(candles)-1].Close
	f, sl := fast.Value(), slow.Value()
	pf, ps := fast.Previous(), slow.Previous()

	crossUp := f > sl && pf <= ps
	crossDown := f < sl && pf >= ps
	reason := fmt.Sprintf("ema%d %.5f ema%d %.5f rsi %.1f", s.Fast, f, s.Slow, sl, r)

	switch {
	case crossUp && last > f && r > 50 && r < 70:
		return Signal{Direction: position.Long, Reason: reason}, nil
	case crossDown && last < f && r > 30 && r < 50:
		return Signal{Direction: position.Short, Reason: reason}, nil
	}
	return Signal{Reason: reason}, nil
}

func (s *Scalp) Execute(ctx context.Context, sig Signal) error {
	atr := s.stopATR()
	if atr <= 0 {
		return fmt.Errorf("%w: no ATR for %s stop", ErrSkipped, s.Name())
	}
	_, err := s.exec.Place(ctx, Order{
		Direction:          sig.Direction,
		StopDistance:       1.5 * atr,
		TakeProfitDistance: 3 * atr,
		RiskScale:          0.5,
		Timeout:            s.Timeout,
		Tag:                s.Name(),
	})
	return err
}

// stopATR is the store's scaled ATR(14) on M1, or Wilder's ATR(14) over the
// same candles when the store cannot provide one.
func (s *Scalp) stopATR() float64 {
	if atr := s.market.ATR(market.M1, scalpATRPeriod, 0); atr > 0 {
		return atr
	}
	atr, err := indicators.ATRFunc(s.market.Candles(market.M1, scalpCandles), scalpATRPeriod)
	if err != nil {
		return 0
	}
	return atr
}

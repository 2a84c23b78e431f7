// Package strategy detects entry signals and turns them into orders.
//
// Each Strategy pairs a detector with an execution rule. The trading loop
// only sees the interface; concrete strategies are built by name from
// configuration.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/position"
)

// Signal is a detector's verdict. A Flat direction means no trade.
type Signal struct {
	Direction position.Direction
	Reason    string
	// RiskScale multiplies the base risk per trade; 0 is treated as 1.
	RiskScale float64
}

func (s Signal) Active() bool { return s.Direction != position.Flat }

type Strategy interface {
	Name() string
	Detect(ctx context.Context) (Signal, error)
	Execute(ctx context.Context, sig Signal) error
}

// Market is the read side of the market data store a detector needs.
type Market interface {
	Candles(tf market.Timeframe, count int) []market.Candle
	ATR(tf market.Timeframe, lookback, smoothing int) float64
	Volatility(tf market.Timeframe) float64
}

// Run detects once and executes an active signal. Skipped executions are
// not errors.
func Run(ctx context.Context, s Strategy, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	sig, err := s.Detect(ctx)
	if err != nil {
		return fmt.Errorf("%s detect: %w", s.Name(), err)
	}
	if !sig.Active() {
		log.Debug("no signal", slog.String("strategy", s.Name()), slog.String("reason", sig.Reason))
		return nil
	}

	log.Info("signal",
		slog.String("strategy", s.Name()),
		slog.String("direction", sig.Direction.String()),
		slog.String("reason", sig.Reason),
	)
	if err := s.Execute(ctx, sig); err != nil {
		if errors.Is(err, ErrSkipped) {
			log.Info("execution skipped", slog.String("strategy", s.Name()), slog.Any("err", err))
			return nil
		}
		return fmt.Errorf("%s execute: %w", s.Name(), err)
	}
	return nil
}

// Deps are the collaborators every strategy is built from.
type Deps struct {
	Market   Market
	Ticks    market.TickSource
	Executor *Executor
}

// Params tune a strategy; zero values take the strategy's defaults.
type Params struct {
	Threshold float64
	StopPips  float64
}

// New builds a strategy by its configuration name.
func New(name string, d Deps, p Params) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "breakout", "d1-breakout":
		b := NewBreakout(d.Market, d.Ticks, d.Executor)
		if p.Threshold > 0 {
			b.Threshold = p.Threshold
		}
		if p.StopPips > 0 {
			b.StopPips = p.StopPips
		}
		return b, nil
	case "trend", "mtc", "trend-confidence":
		tc := NewTrendConfidence(d.Market, d.Executor)
		if p.StopPips > 0 {
			tc.StopPips = p.StopPips
		}
		return tc, nil
	case "scalp", "m1-scalp":
		return NewScalp(d.Market, d.Executor), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (supported: breakout, trend, scalp)", name)
	}
}

package broker

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/jpillora/backoff"
)

const (
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 500 * time.Millisecond
)

// Retrying wraps an OrderVenue and repeats calls that fail with ErrTransient.
// Any other failure is returned at once. The wait between attempts starts at
// the delay and grows by the backoff factor up to the max delay; the default
// factor of 1 keeps it fixed.
type Retrying struct {
	venue    OrderVenue
	attempts int
	delay    time.Duration
	factor   float64
	maxDelay time.Duration
	log      *slog.Logger
	sleep    func(context.Context, time.Duration) error
}

type RetryOption func(*Retrying)

func WithAttempts(n int) RetryOption {
	return func(r *Retrying) {
		if n > 0 {
			r.attempts = n
		}
	}
}

func WithDelay(d time.Duration) RetryOption {
	return func(r *Retrying) {
		if d >= 0 {
			r.delay = d
		}
	}
}

// WithBackoff grows the wait by factor after every attempt, capped at max
// when max > 0. A factor below 1 is ignored.
func WithBackoff(factor float64, max time.Duration) RetryOption {
	return func(r *Retrying) {
		if factor >= 1 {
			r.factor = factor
		}
		if max > 0 {
			r.maxDelay = max
		}
	}
}

func WithRetryLogger(l *slog.Logger) RetryOption {
	return func(r *Retrying) {
		if l != nil {
			r.log = l
		}
	}
}

func NewRetrying(v OrderVenue, opts ...RetryOption) *Retrying {
	r := &Retrying{
		venue:    v,
		attempts: DefaultRetryAttempts,
		delay:    DefaultRetryDelay,
		factor:   1,
		log:      slog.Default(),
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Retrying) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	var res OrderResult
	err := r.do(ctx, "submit order", func() error {
		var err error
		res, err = r.venue.SubmitOrder(ctx, req)
		return err
	})
	return res, err
}

func (r *Retrying) ModifyPosition(ctx context.Context, id string, stopLoss, takeProfit float64) error {
	return r.do(ctx, "modify position", func() error {
		return r.venue.ModifyPosition(ctx, id, stopLoss, takeProfit)
	})
}

func (r *Retrying) ClosePosition(ctx context.Context, id string) error {
	return r.do(ctx, "close position", func() error {
		return r.venue.ClosePosition(ctx, id)
	})
}

func (r *Retrying) do(ctx context.Context, op string, fn func() error) error {
	b := r.backoff()

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !IsTransient(err) || attempt >= r.attempts {
			return err
		}

		wait := time.Duration(0)
		if r.delay > 0 {
			wait = b.Duration()
		}
		r.log.Warn("retrying venue call",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", r.attempts),
			slog.Duration("wait", wait),
			slog.Any("err", err),
		)
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (r *Retrying) backoff() *backoff.Backoff {
	max := r.maxDelay
	if max <= 0 {
		max = time.Duration(float64(r.delay) * math.Pow(r.factor, float64(r.attempts)))
	}
	if max < r.delay {
		max = r.delay
	}
	return &backoff.Backoff{Min: r.delay, Max: max, Factor: r.factor}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Package engine drives one instrument on one venue: each cycle refreshes
// market data, reconciles and marks the ledger, runs due strategy jobs and
// lets the risk engine manage what is open.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/events"
	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/ledger"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/position"
	"github.com/rustyeddy/autotrader/risk"
	"github.com/rustyeddy/autotrader/scheduler"
	"github.com/rustyeddy/autotrader/strategy"
)

const DefaultInterval = 10 * time.Second

// Trader owns the cycle. Only the loop goroutine touches the store, ledger
// and risk engine; other goroutines read through Positions, Account and
// Halted.
type Trader struct {
	venue   broker.Venue
	store   *market.Store
	ledger  *ledger.Ledger
	risk    *risk.Engine
	sched   *scheduler.Scheduler
	journal journal.Journal

	interval        time.Duration
	haltOnViolation bool
	log             *slog.Logger
	now             func() time.Time

	mu        sync.Mutex
	positions []position.Position
	account   broker.Account
	haveAcct  bool
	halted    bool
	cycles    int
}

type Option func(*Trader)

func WithInterval(d time.Duration) Option {
	return func(t *Trader) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithHaltOnViolation stops strategies from opening positions while a
// circuit breaker is tripped. Open positions are still managed.
func WithHaltOnViolation(on bool) Option {
	return func(t *Trader) { t.haltOnViolation = on }
}

func WithJournal(j journal.Journal) Option {
	return func(t *Trader) {
		if j != nil {
			t.journal = j
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Trader) {
		if l != nil {
			t.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Trader) {
		if now != nil {
			t.now = now
		}
	}
}

func New(
	venue broker.Venue,
	store *market.Store,
	l *ledger.Ledger,
	r *risk.Engine,
	sched *scheduler.Scheduler,
	opts ...Option,
) *Trader {
	t := &Trader{
		venue:    venue,
		store:    store,
		ledger:   l,
		risk:     r,
		sched:    sched,
		journal:  journal.Nop{},
		interval: DefaultInterval,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Watch logs risk violations from bus at error level.
func (t *Trader) Watch(bus *events.Bus) {
	bus.Subscribe(events.RiskViolation, func(e events.Event) error {
		t.log.Error("risk violation",
			slog.String("code", e.Violation.Code),
			slog.String("msg", e.Violation.Msg),
		)
		return nil
	})
	bus.Subscribe(events.OrderFailed, func(e events.Event) error {
		t.log.Warn("order failed",
			slog.String("position_id", e.Position.ID),
			slog.Any("err", e.Err),
		)
		return nil
	})
}

// Schedule runs s every interval, first one interval from now.
func (t *Trader) Schedule(s strategy.Strategy, interval time.Duration) error {
	return t.sched.Every(s.Name(), interval, t.job(s))
}

// ScheduleHourly runs s once an hour at minute past the hour.
func (t *Trader) ScheduleHourly(s strategy.Strategy, minute int) error {
	return t.sched.At(s.Name(), scheduler.NextAtMinute(t.now(), minute), time.Hour, t.job(s))
}

func (t *Trader) job(s strategy.Strategy) scheduler.Job {
	return func(ctx context.Context) error {
		if t.Halted() {
			t.log.Info("strategy skipped, trading halted", slog.String("strategy", s.Name()))
			return nil
		}
		return strategy.Run(ctx, s, t.log)
	}
}

// Cycle runs one pass. Steps that fail are logged and skipped; the
// returned error joins them.
func (t *Trader) Cycle(ctx context.Context) error {
	var errs []error

	acct, err := t.venue.Account(ctx)
	haveAcct := err == nil
	if err != nil {
		errs = append(errs, fmt.Errorf("account: %w", err))
		acct, haveAcct = t.lastAccount()
	}

	if err := t.store.RefreshAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("refresh: %w", err))
	}

	ext, err := t.venue.OpenPositions(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("reconcile skipped: %w", err))
	} else if res := t.ledger.Reconcile(ext); res.Changed() {
		t.log.Info("ledger reconciled",
			slog.Any("adopted", res.Adopted),
			slog.Any("finalized", res.Finalized),
		)
	}

	tick, err := t.venue.LatestTick(ctx)
	switch {
	case err == nil:
		t.ledger.MarkPrices(tick)
	case !errors.Is(err, market.ErrDataUnavailable):
		errs = append(errs, fmt.Errorf("tick: %w", err))
	}

	if n := t.sched.RunPending(ctx, t.now()); n > 0 {
		t.log.Debug("jobs ran", slog.Int("count", n))
	}

	// No account snapshot yet: manage positions, skip the breaker.
	var rep risk.Report
	if haveAcct {
		rep = t.risk.Evaluate(ctx, acct)
		if err := t.journal.RecordEquity(journal.EquityFromAccount(t.now(), acct)); err != nil {
			errs = append(errs, fmt.Errorf("journal equity: %w", err))
		}
	} else {
		rep = t.risk.Manage(ctx)
	}
	halt := t.haltOnViolation && rep.Halt()
	errs = append(errs, rep.Errors...)

	t.mu.Lock()
	if halt != t.halted {
		t.log.Warn("trading halt changed", slog.Bool("halted", halt))
	}
	t.halted = halt
	if haveAcct {
		t.account = acct
		t.haveAcct = true
	}
	t.positions = t.ledger.Snapshot()
	t.cycles++
	t.mu.Unlock()

	return errors.Join(errs...)
}

// Run loads history and then cycles every interval until ctx is done.
// A panicking cycle is logged and the loop carries on.
func (t *Trader) Run(ctx context.Context) error {
	if err := t.store.InitializeAll(ctx); err != nil {
		t.log.Warn("initial load incomplete", slog.Any("err", err))
	}

	t.log.Info("trader started",
		slog.Duration("interval", t.interval),
		slog.Any("jobs", t.sched.Names()),
	)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		t.safeCycle(ctx)
		select {
		case <-ctx.Done():
			t.log.Info("trader stopped", slog.Int("cycles", t.Cycles()))
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *Trader) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("cycle panicked", slog.Any("panic", r))
		}
	}()
	if err := t.Cycle(ctx); err != nil {
		t.log.Warn("cycle completed with errors", slog.Any("err", err))
	}
}

// Positions is a copy of the open positions as of the last cycle.
func (t *Trader) Positions() []position.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]position.Position, len(t.positions))
	copy(out, t.positions)
	return out
}

func (t *Trader) Account() broker.Account {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.account
}

func (t *Trader) lastAccount() (broker.Account, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.account, t.haveAcct
}

func (t *Trader) Halted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.halted
}

func (t *Trader) Cycles() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cycles
}

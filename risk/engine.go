// Package risk manages open positions and guards the account.
//
// Engine.Evaluate runs once per cycle: it closes timed out positions,
// ratchets stops with a trailing or breakeven rule and reports account level
// circuit breaker violations. CheckTrade and Size gate and size new orders.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/events"
	"github.com/rustyeddy/autotrader/position"
)

// Violation codes raised by the circuit breaker.
const (
	CodeBalanceFloor      = "BALANCE_FLOOR"
	CodeConsecutiveLosses = "CONSECUTIVE_LOSSES"
	CodeMaxDrawdown       = "MAX_DRAWDOWN"
)

// Book is the slice of the position ledger the engine works on.
type Book interface {
	Snapshot() []position.Position
	Close(ctx context.Context, id, reason string) error
	SetStopLoss(id string, price float64) error
	ConsecutiveLosses() int
}

type Rule string

const (
	RuleTrailing  Rule = "trailing"
	RuleBreakeven Rule = "breakeven"
)

type StopChange struct {
	ID   string
	Rule Rule
	From float64
	To   float64
}

// Report lists what one Evaluate pass did.
type Report struct {
	Closed     []string
	Adjusted   []StopChange
	Violations []events.Violation
	Errors     []error
}

func (r Report) Halt() bool { return len(r.Violations) > 0 }

type Engine struct {
	policy Policy
	book   Book
	venue  broker.OrderVenue
	pub    events.Publisher
	log    *slog.Logger
	now    func() time.Time
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(policy Policy, book Book, venue broker.OrderVenue, pub events.Publisher, opts ...Option) *Engine {
	if pub == nil {
		pub = events.Nop{}
	}
	e := &Engine{
		policy: policy,
		book:   book,
		venue:  venue,
		pub:    pub,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Policy() Policy { return e.policy }

// Evaluate manages every non-exempt open position and then checks the
// account. Violations are published and returned; halting is up to the
// caller.
func (e *Engine) Evaluate(ctx context.Context, acct broker.Account) Report {
	rep := e.Manage(ctx)
	rep.Violations = e.CircuitBreaker(acct)
	for _, v := range rep.Violations {
		e.log.Error("risk violation", slog.String("code", v.Code), slog.String("msg", v.Msg))
		e.pub.Publish(events.ViolationEvent(v))
	}
	return rep
}

// Manage closes timed out positions and ratchets stops without looking at
// the account.
func (e *Engine) Manage(ctx context.Context) Report {
	var rep Report
	now := e.now()

	for _, p := range e.book.Snapshot() {
		if e.policy.exempt(p.Tag) {
			continue
		}

		if p.TimedOut(now) {
			if err := e.book.Close(ctx, p.ID, position.ReasonTimeout); err != nil {
				rep.Errors = append(rep.Errors, err)
				continue
			}
			rep.Closed = append(rep.Closed, p.ID)
			continue
		}

		rule, stop, ok := e.candidateStop(p)
		if !ok || !improves(p, stop) {
			continue
		}
		if err := e.moveStop(ctx, p, stop); err != nil {
			rep.Errors = append(rep.Errors, err)
			continue
		}
		rep.Adjusted = append(rep.Adjusted, StopChange{ID: p.ID, Rule: rule, From: p.StopLoss, To: stop})
		e.log.Info("stop adjusted",
			slog.String("id", p.ID),
			slog.String("rule", string(rule)),
			slog.Float64("from", p.StopLoss),
			slog.Float64("to", stop),
		)
	}
	return rep
}

// candidateStop picks the trailing stop when profit passed the trail start,
// otherwise the breakeven stop when profit passed the breakeven distance.
func (e *Engine) candidateStop(p position.Position) (Rule, float64, bool) {
	pips := p.UnrealizedPips()
	dir := float64(p.Direction)
	pip := p.PipSize()

	switch {
	case pips > e.policy.TrailStartPips:
		return RuleTrailing, p.CurrentPrice - dir*e.policy.TrailDistancePips*pip, true
	case pips > e.policy.BreakevenPips:
		return RuleBreakeven, p.EntryPrice + dir*pip, true
	}
	return "", 0, false
}

// improves reports whether stop is strictly tighter than the current one in
// the position's favour. An unset stop is improved by any candidate.
func improves(p position.Position, stop float64) bool {
	if !p.HasStop() {
		return true
	}
	if p.Direction == position.Short {
		return stop < p.StopLoss
	}
	return stop > p.StopLoss
}

func (e *Engine) moveStop(ctx context.Context, p position.Position, stop float64) error {
	if err := e.venue.ModifyPosition(ctx, p.ID, stop, p.TakeProfit); err != nil {
		e.log.Warn("modify failed", slog.String("id", p.ID), slog.Any("err", err))
		e.pub.Publish(events.Event{Kind: events.OrderFailed, Position: p, Err: err})
		return fmt.Errorf("move stop %s: %w", p.ID, err)
	}
	if err := e.book.SetStopLoss(p.ID, stop); err != nil {
		return err
	}
	p.StopLoss = stop
	e.pub.Publish(events.PositionEvent(events.StopAdjusted, p))
	return nil
}

// CircuitBreaker checks the account limits. A balance at or below the floor
// is reported alone.
func (e *Engine) CircuitBreaker(acct broker.Account) []events.Violation {
	var out []events.Violation

	if acct.Balance <= e.policy.BalanceFloor {
		return append(out, events.Violation{
			Code: CodeBalanceFloor,
			Msg:  fmt.Sprintf("balance %.2f <= floor %.2f", acct.Balance, e.policy.BalanceFloor),
		})
	}

	if losses := e.book.ConsecutiveLosses(); losses > e.policy.MaxConsecutiveLosses {
		out = append(out, events.Violation{
			Code: CodeConsecutiveLosses,
			Msg:  fmt.Sprintf("%d consecutive losses > max %d", losses, e.policy.MaxConsecutiveLosses),
		})
	}

	if acct.Balance > 0 {
		dd := (acct.Balance - acct.Equity) / acct.Balance
		if dd > e.policy.MaxDrawdown {
			out = append(out, events.Violation{
				Code: CodeMaxDrawdown,
				Msg:  fmt.Sprintf("drawdown %.2f%% > max %.2f%%", 100*dd, 100*e.policy.MaxDrawdown),
			})
		}
	}
	return out
}

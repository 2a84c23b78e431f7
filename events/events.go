// Package events is the in-process notification bus. Publishers never see
// subscriber failures.
package events

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rustyeddy/autotrader/position"
)

type Kind string

const (
	PositionOpened Kind = "position.opened"
	PositionClosed Kind = "position.closed"
	StopAdjusted   Kind = "position.stop_adjusted"
	RiskViolation  Kind = "risk.violation"
	OrderFailed    Kind = "order.failed"
)

// Violation is a breached account limit.
type Violation struct {
	Code string
	Msg  string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Code, v.Msg)
}

type Event struct {
	ID        string
	Kind      Kind
	Time      time.Time
	Position  position.Position
	Violation Violation
	Err       error
}

func PositionEvent(kind Kind, p position.Position) Event {
	return Event{Kind: kind, Position: p}
}

func ViolationEvent(v Violation) Event {
	return Event{Kind: RiskViolation, Violation: v}
}

// Publisher is the sink the core writes to.
type Publisher interface {
	Publish(Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

type Handler func(Event) error

// Bus fans events out to subscribers synchronously, in subscription order.
// A handler that errors or panics is logged and skipped.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	all      []Handler
	log      *slog.Logger
	now      func() time.Time
}

func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		handlers: make(map[Kind][]Handler),
		log:      log,
		now:      time.Now,
	}
}

func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// SubscribeAll registers h for every kind.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

func (b *Bus) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = b.now()
	}

	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[e.Kind])+len(b.all))
	hs = append(hs, b.handlers[e.Kind]...)
	hs = append(hs, b.all...)
	b.mu.RUnlock()

	for _, h := range hs {
		b.deliver(h, e)
	}
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				slog.String("kind", string(e.Kind)),
				slog.String("event_id", e.ID),
				slog.Any("panic", r),
			)
		}
	}()
	if err := h(e); err != nil {
		b.log.Error("event handler failed",
			slog.String("kind", string(e.Kind)),
			slog.String("event_id", e.ID),
			slog.Any("err", err),
		)
	}
}

// Package ledger tracks open positions against the venue's own view of them.
//
// The ledger has no internal locking. One goroutine drives it; observers on
// other goroutines work from a Snapshot taken by that goroutine.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/events"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/position"
)

var (
	ErrPositionNotFound = errors.New("position not found")
	// ErrReconciliationConflict means the venue reported the same id twice
	// or an explicit open reused a known id.
	ErrReconciliationConflict = errors.New("reconciliation conflict")
)

// Result summarises one Reconcile call.
type Result struct {
	Adopted   []string
	Finalized []string
	Conflicts int
}

func (r Result) Changed() bool {
	return len(r.Adopted) > 0 || len(r.Finalized) > 0
}

type Ledger struct {
	venue broker.OrderVenue
	pub   events.Publisher
	log   *slog.Logger
	now   func() time.Time
	point float64

	open    map[string]*position.Position
	history []position.Position
	losses  int
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

// WithPoint sets the point value given to adopted positions, which the venue
// does not report.
func WithPoint(point float64) Option {
	return func(l *Ledger) { l.point = point }
}

func NewLedger(venue broker.OrderVenue, pub events.Publisher, opts ...Option) *Ledger {
	if pub == nil {
		pub = events.Nop{}
	}
	l := &Ledger{
		venue: venue,
		pub:   pub,
		log:   slog.Default(),
		now:   time.Now,
		point: 0.00001,
		open:  make(map[string]*position.Position),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Reconcile diffs the open set against the venue's list. Unknown ids are
// adopted, locally open ids the venue no longer reports are finalized as
// closed externally. Calling it again with the same list changes nothing.
func (l *Ledger) Reconcile(ext []broker.ExternalPosition) Result {
	var res Result

	seen := make(map[string]bool, len(ext))
	for _, ep := range ext {
		if seen[ep.ID] {
			res.Conflicts++
			l.log.Error("duplicate position id from venue",
				slog.String("id", ep.ID),
				slog.Any("err", ErrReconciliationConflict),
			)
			continue
		}
		seen[ep.ID] = true

		if _, ok := l.open[ep.ID]; ok {
			continue
		}
		p := l.adopt(ep)
		l.open[p.ID] = &p
		res.Adopted = append(res.Adopted, p.ID)
		l.log.Info("position adopted", slog.String("id", p.ID), slog.String("direction", p.Direction.String()))
		l.pub.Publish(events.PositionEvent(events.PositionOpened, p))
	}

	for _, p := range l.Snapshot() {
		if seen[p.ID] {
			continue
		}
		closed := l.finalize(p.ID, p.CurrentPrice, position.ReasonClosedExternally)
		res.Finalized = append(res.Finalized, closed.ID)
	}
	return res
}

func (l *Ledger) adopt(ep broker.ExternalPosition) position.Position {
	opened := ep.OpenTime
	if opened.IsZero() {
		opened = l.now()
	}
	current := ep.CurrentPrice
	if current == 0 {
		current = ep.EntryPrice
	}
	return position.Position{
		ID:           ep.ID,
		Symbol:       ep.Symbol,
		Direction:    ep.Direction,
		EntryPrice:   ep.EntryPrice,
		StopLoss:     ep.StopLoss,
		TakeProfit:   ep.TakeProfit,
		Size:         ep.Size,
		Point:        l.point,
		EntryTime:    opened,
		Tag:          ep.Tag,
		CurrentPrice: current,
		State:        position.StateOpen,
	}
}

// MarkPrices sets every open position's mark to the side of the spread it
// would close on: bid for longs, ask for shorts.
func (l *Ledger) MarkPrices(tick market.Tick) {
	for _, p := range l.open {
		if px := tick.Exit(int(p.Direction)); px > 0 {
			p.CurrentPrice = px
		}
	}
}

// Open records a position after its order filled.
func (l *Ledger) Open(p position.Position) error {
	if p.ID == "" {
		return fmt.Errorf("open: empty position id")
	}
	if _, ok := l.open[p.ID]; ok {
		return fmt.Errorf("open %s: %w", p.ID, ErrReconciliationConflict)
	}
	p.State = position.StateOpen
	if p.Point == 0 {
		p.Point = l.point
	}
	if p.EntryTime.IsZero() {
		p.EntryTime = l.now()
	}
	if p.CurrentPrice == 0 {
		p.CurrentPrice = p.EntryPrice
	}
	l.open[p.ID] = &p
	l.log.Info("position opened", slog.String("id", p.ID), slog.String("tag", p.Tag))
	l.pub.Publish(events.PositionEvent(events.PositionOpened, p))
	return nil
}

// Close asks the venue to close id and finalizes it only once the venue
// confirms. A failed venue call leaves the ledger untouched.
func (l *Ledger) Close(ctx context.Context, id, reason string) error {
	p, ok := l.open[id]
	if !ok {
		return fmt.Errorf("close %s: %w", id, ErrPositionNotFound)
	}
	if err := l.venue.ClosePosition(ctx, id); err != nil {
		l.log.Warn("close failed", slog.String("id", id), slog.String("reason", reason), slog.Any("err", err))
		return fmt.Errorf("close %s: %w", id, err)
	}
	l.finalize(id, p.CurrentPrice, reason)
	return nil
}

func (l *Ledger) finalize(id string, price float64, reason string) position.Position {
	p := l.open[id]
	delete(l.open, id)

	if p.UnrealizedPnL() < 0 {
		l.losses++
	} else {
		l.losses = 0
	}

	p.State = position.StateClosed
	p.ClosePrice = price
	p.CloseTime = l.now()
	p.CloseReason = reason
	l.history = append(l.history, *p)

	l.log.Info("position closed",
		slog.String("id", p.ID),
		slog.String("reason", reason),
		slog.Float64("close_price", price),
		slog.Float64("pnl", p.UnrealizedPnL()),
		slog.Int("consecutive_losses", l.losses),
	)
	l.pub.Publish(events.PositionEvent(events.PositionClosed, *p))
	return *p
}

// SetStopLoss records a stop the venue has already accepted.
func (l *Ledger) SetStopLoss(id string, price float64) error {
	p, ok := l.open[id]
	if !ok {
		return fmt.Errorf("set stop %s: %w", id, ErrPositionNotFound)
	}
	p.StopLoss = price
	return nil
}

func (l *Ledger) Get(id string) (position.Position, bool) {
	p, ok := l.open[id]
	if !ok {
		return position.Position{}, false
	}
	return *p, true
}

// Snapshot copies the open positions, oldest first.
func (l *Ledger) Snapshot() []position.Position {
	out := make([]position.Position, 0, len(l.open))
	for _, p := range l.open {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].EntryTime.Before(out[j].EntryTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// History returns a copy of the closed positions in close order.
func (l *Ledger) History() []position.Position {
	out := make([]position.Position, len(l.history))
	copy(out, l.history)
	return out
}

func (l *Ledger) ConsecutiveLosses() int { return l.losses }

func (l *Ledger) Len() int { return len(l.open) }

// HasOpen reports whether any open position points in d.
func (l *Ledger) HasOpen(d position.Direction) bool {
	for _, p := range l.open {
		if p.Direction == d {
			return true
		}
	}
	return false
}

// HasTag reports whether any open position carries tag.
func (l *Ledger) HasTag(tag string) bool {
	for _, p := range l.open {
		if p.Tag == tag {
			return true
		}
	}
	return false
}

package events

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/autotrader/position"
)

func quietBus() *Bus {
	return NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBusDeliversByKind(t *testing.T) {
	t.Parallel()

	b := quietBus()
	var opened, closed, all []Event
	b.Subscribe(PositionOpened, func(e Event) error { opened = append(opened, e); return nil })
	b.Subscribe(PositionClosed, func(e Event) error { closed = append(closed, e); return nil })
	b.SubscribeAll(func(e Event) error { all = append(all, e); return nil })

	b.Publish(PositionEvent(PositionOpened, position.Position{ID: "1"}))
	b.Publish(ViolationEvent(Violation{Code: "BALANCE_FLOOR"}))

	require.Len(t, opened, 1)
	assert.Equal(t, "1", opened[0].Position.ID)
	assert.NotEmpty(t, opened[0].ID)
	assert.False(t, opened[0].Time.IsZero())
	assert.Empty(t, closed)
	assert.Len(t, all, 2)
	assert.Equal(t, RiskViolation, all[1].Kind)
}

func TestBusIsolatesFailingHandlers(t *testing.T) {
	t.Parallel()

	b := quietBus()
	calls := 0
	b.Subscribe(PositionClosed, func(Event) error { return errors.New("disk full") })
	b.Subscribe(PositionClosed, func(Event) error { panic("boom") })
	b.Subscribe(PositionClosed, func(Event) error { calls++; return nil })

	assert.NotPanics(t, func() {
		b.Publish(PositionEvent(PositionClosed, position.Position{ID: "9"}))
	})
	assert.Equal(t, 1, calls)
}

func TestBusKeepsGivenID(t *testing.T) {
	t.Parallel()

	b := quietBus()
	var got Event
	b.SubscribeAll(func(e Event) error { got = e; return nil })
	b.Publish(Event{ID: "fixed", Kind: OrderFailed})
	assert.Equal(t, "fixed", got.ID)

	Nop{}.Publish(Event{})
}

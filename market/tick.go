package market

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TickSource returns the latest quote, or ErrDataUnavailable when there is none.
type TickSource interface {
	LatestTick(ctx context.Context) (Tick, error)
}

type Tick struct {
	Instrument string
	Time       time.Time
	Bid        float64
	Ask        float64
}

func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// Exit returns the side a position of the given direction closes on:
// longs sell at the bid, shorts buy back at the ask.
func (t Tick) Exit(direction int) float64 {
	if direction < 0 {
		return t.Ask
	}
	return t.Bid
}

// Entry returns the side a position of the given direction opens on.
func (t Tick) Entry(direction int) float64 {
	if direction < 0 {
		return t.Bid
	}
	return t.Ask
}

// TickStore holds the latest tick per instrument.
type TickStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewTickStore() *TickStore {
	return &TickStore{ticks: make(map[string]Tick)}
}

func (ps *TickStore) Set(p Tick) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.ticks[p.Instrument] = p
}

func (ps *TickStore) Get(instr string) (Tick, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.ticks[instr]
	if !ok {
		return Tick{}, fmt.Errorf("tick %s: %w", instr, ErrDataUnavailable)
	}
	return p, nil
}

// Package position holds the record of a single venue position and the
// values derived from it.
package position

import (
	"fmt"
	"time"
)

type Direction int

const (
	Flat  Direction = 0
	Long  Direction = 1
	Short Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// DirectionOf returns the direction of a signed unit count.
func DirectionOf(units float64) Direction {
	switch {
	case units > 0:
		return Long
	case units < 0:
		return Short
	default:
		return Flat
	}
}

type State string

const (
	StateOpen   State = "OPEN"
	StateClosed State = "CLOSED"
)

// Close reasons recorded by the ledger and risk engine.
const (
	ReasonClosedExternally = "Closed externally"
	ReasonTimeout          = "Timeout"
	ReasonManual           = "Manual"
)

// Position is one open or closed venue position.
//
// Point is the price value of the smallest quoted step; one pip is ten
// points. CurrentPrice is the last mark, taken on the side of the spread
// the position would close on.
type Position struct {
	ID         string
	Symbol     string
	Direction  Direction
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Size       float64
	Point      float64
	Timeout    time.Duration
	EntryTime  time.Time
	Tag        string

	CurrentPrice float64

	State       State
	ClosePrice  float64
	CloseTime   time.Time
	CloseReason string
}

func (p Position) IsOpen() bool { return p.State != StateClosed }

// Age is how long the position has been open at now.
func (p Position) Age(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// TimedOut reports whether a timeout is set and has elapsed.
func (p Position) TimedOut(now time.Time) bool {
	return p.Timeout > 0 && p.Age(now) > p.Timeout
}

// PipSize is the price value of one pip.
func (p Position) PipSize() float64 {
	return p.Point * 10
}

// UnrealizedPnL is the mark-to-market result in points times size.
func (p Position) UnrealizedPnL() float64 {
	if p.Point == 0 {
		return 0
	}
	return (p.CurrentPrice - p.EntryPrice) * p.Size * float64(p.Direction) / p.Point
}

// UnrealizedPips is the favourable price move in pips.
func (p Position) UnrealizedPips() float64 {
	if p.Point == 0 {
		return 0
	}
	return (p.CurrentPrice - p.EntryPrice) * float64(p.Direction) / p.PipSize()
}

// HasStop reports whether a stop loss is set.
func (p Position) HasStop() bool { return p.StopLoss != 0 }

func (p Position) String() string {
	return fmt.Sprintf("%s %s %s %.2f @ %.5f", p.ID, p.Symbol, p.Direction, p.Size, p.EntryPrice)
}

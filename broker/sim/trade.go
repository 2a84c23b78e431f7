package sim

import (
	"time"

	"github.com/rustyeddy/autotrader/position"
)

// Trade is a simulated venue position. Units are signed: positive is long.
type Trade struct {
	ID         string
	Instrument string
	Units      float64
	EntryPrice float64
	OpenTime   time.Time
	Tag        string

	// zero means unset
	StopLoss   float64
	TakeProfit float64

	// Realized
	ClosePrice float64
	CloseTime  time.Time
	RealizedPL float64 // account currency
	Reason     string
	Open       bool
}

func (t *Trade) Direction() position.Direction {
	return position.DirectionOf(t.Units)
}

func (t *Trade) Size() float64 {
	return abs(t.Units)
}

func (t *Trade) triggerStopLoss(price float64) bool {
	if t.StopLoss == 0 {
		return false
	}
	if t.Units > 0 {
		return price <= t.StopLoss
	}
	return price >= t.StopLoss
}

func (t *Trade) triggerTakeProfit(price float64) bool {
	if t.TakeProfit == 0 {
		return false
	}
	if t.Units > 0 {
		return price >= t.TakeProfit
	}
	return price <= t.TakeProfit
}

// UnrealizedPL values the trade at currentPrice in account currency.
func (t *Trade) UnrealizedPL(currentPrice, quoteToAccount float64) float64 {
	plQuote := t.Units * (currentPrice - t.EntryPrice)
	return plQuote * quoteToAccount
}

// Package broker defines what the trading core needs from an execution venue
// and how venue failures are classified.
package broker

import (
	"context"
	"time"

	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/position"
)

// ExternalPosition is a position as the venue reports it. The venue is the
// source of truth for which positions exist.
type ExternalPosition struct {
	ID           string
	Symbol       string
	Direction    position.Direction
	EntryPrice   float64
	StopLoss     float64
	TakeProfit   float64
	Size         float64
	OpenTime     time.Time
	CurrentPrice float64
	Tag          string
}

type OrderRequest struct {
	Symbol     string
	Direction  position.Direction
	Size       float64
	StopLoss   float64
	TakeProfit float64
	Tag        string
}

type OrderResult struct {
	ID         string
	Symbol     string
	Direction  position.Direction
	Size       float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Time       time.Time
}

type Account struct {
	ID          string
	Currency    string
	Balance     float64
	Equity      float64
	MarginUsed  float64
	FreeMargin  float64
	MarginLevel float64
}

type PositionSource interface {
	OpenPositions(ctx context.Context) ([]ExternalPosition, error)
}

type OrderVenue interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	ModifyPosition(ctx context.Context, id string, stopLoss, takeProfit float64) error
	ClosePosition(ctx context.Context, id string) error
}

type AccountSource interface {
	Account(ctx context.Context) (Account, error)
}

// Venue is everything a live trading loop talks to.
type Venue interface {
	market.BarSource
	market.TickSource
	PositionSource
	OrderVenue
	AccountSource
}

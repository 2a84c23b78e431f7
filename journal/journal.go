// Package journal persists closed trades and account equity.
package journal

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/position"
)

// TradeRecord is one closed position.
type TradeRecord struct {
	TradeID    string
	Instrument string
	Direction  position.Direction
	Units      float64
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	RealizedPL float64
	Reason     string
	Tag        string
}

// Pips is the signed move in the trade's favour, given the pip size.
func (t TradeRecord) Pips(pip float64) float64 {
	if pip <= 0 {
		return 0
	}
	return (t.ExitPrice - t.EntryPrice) * float64(t.Direction) / pip
}

// TradeFromPosition converts a closed position. RealizedPL is in quote
// currency.
func TradeFromPosition(p position.Position) TradeRecord {
	exit := p.ClosePrice
	if exit == 0 {
		exit = p.CurrentPrice
	}
	closed := p.CloseTime
	if closed.IsZero() {
		closed = time.Now()
	}
	return TradeRecord{
		TradeID:    p.ID,
		Instrument: p.Symbol,
		Direction:  p.Direction,
		Units:      p.Size,
		EntryPrice: p.EntryPrice,
		ExitPrice:  exit,
		OpenTime:   p.EntryTime.UTC(),
		CloseTime:  closed.UTC(),
		RealizedPL: (exit - p.EntryPrice) * p.Size * float64(p.Direction),
		Reason:     p.CloseReason,
		Tag:        p.Tag,
	}
}

type EquitySnapshot struct {
	Time        time.Time
	Balance     float64
	Equity      float64
	MarginUsed  float64
	FreeMargin  float64
	MarginLevel float64
}

func EquityFromAccount(now time.Time, a broker.Account) EquitySnapshot {
	return EquitySnapshot{
		Time:        now.UTC(),
		Balance:     a.Balance,
		Equity:      a.Equity,
		MarginUsed:  a.MarginUsed,
		FreeMargin:  a.FreeMargin,
		MarginLevel: a.MarginLevel,
	}
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Nop drops everything.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error     { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) Close() error                      { return nil }

// Open builds the journal named by kind. CSV journals write trades.csv and
// equity.csv under path; SQLite uses path as the database file.
func Open(kind, path string) (Journal, error) {
	switch strings.ToLower(kind) {
	case "", "none":
		return Nop{}, nil
	case "csv":
		return NewCSV(filepath.Join(path, "trades.csv"), filepath.Join(path, "equity.csv"))
	case "sqlite":
		return NewSQLite(path)
	default:
		return nil, fmt.Errorf("unknown journal %q (want csv|sqlite|none)", kind)
	}
}

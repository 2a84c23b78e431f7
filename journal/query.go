package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/autotrader/position"
)

var ErrTradeNotFound = errors.New("trade not found")

const tradeColumns = `trade_id, instrument, direction, units, entry_price, exit_price, open_time, close_time, realized_pl, reason, tag`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var (
		rec TradeRecord
		dir int
	)
	err := s.Scan(
		&rec.TradeID,
		&rec.Instrument,
		&dir,
		&rec.Units,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.OpenTime,
		&rec.CloseTime,
		&rec.RealizedPL,
		&rec.Reason,
		&rec.Tag,
	)
	rec.Direction = position.Direction(dir)
	return rec, err
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID)

	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q: %w", tradeID, ErrTradeNotFound)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTradesClosedBetween returns trades whose close_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`SELECT `+tradeColumns+` FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquityBetween returns snapshots taken within [start, end).
func (j *SQLite) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT time, balance, equity, margin_used, free_margin, margin_level
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.Time, &e.Balance, &e.Equity, &e.MarginUsed, &e.FreeMargin, &e.MarginLevel); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Summary aggregates a set of closed trades.
type Summary struct {
	Trades       int
	Wins         int
	Losses       int
	GrossProfit  float64
	GrossLoss    float64
	NetPL        float64
	ProfitFactor float64
}

func (s Summary) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}

func Summarize(trades []TradeRecord) Summary {
	var s Summary
	for _, t := range trades {
		s.Trades++
		s.NetPL += t.RealizedPL
		switch {
		case t.RealizedPL > 0:
			s.Wins++
			s.GrossProfit += t.RealizedPL
		case t.RealizedPL < 0:
			s.Losses++
			s.GrossLoss -= t.RealizedPL
		}
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	}
	return s
}

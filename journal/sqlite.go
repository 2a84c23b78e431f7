package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serialises anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// RecordTrade stores t, replacing an earlier row with the same id.
func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO trades
		(trade_id, instrument, direction, units, entry_price, exit_price, open_time, close_time, realized_pl, reason, tag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.Instrument, int(t.Direction), t.Units, t.EntryPrice,
		t.ExitPrice, t.OpenTime.UTC(), t.CloseTime.UTC(), t.RealizedPL, t.Reason, t.Tag,
	)
	if err != nil {
		return fmt.Errorf("record trade %s: %w", t.TradeID, err)
	}
	return nil
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, balance, equity, margin_used, free_margin, margin_level)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Time.UTC(), e.Balance, e.Equity, e.MarginUsed, e.FreeMargin, e.MarginLevel,
	)
	if err != nil {
		return fmt.Errorf("record equity: %w", err)
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

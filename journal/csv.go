package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

var (
	tradeHeader  = []string{"trade_id", "instrument", "direction", "units", "entry_price", "exit_price", "open_time", "close_time", "realized_pl", "reason", "tag"}
	equityHeader = []string{"time", "balance", "equity", "margin_used", "free_margin", "margin_level"}
)

// CSVJournal appends to two CSV files. Headers are written only to new or
// empty files, so restarts keep earlier rows.
type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, tw, err := openCSV(tradesPath, tradeHeader)
	if err != nil {
		return nil, err
	}
	ef, ew, err := openCSV(equityPath, equityHeader)
	if err != nil {
		_ = tf.Close()
		return nil, err
	}
	return &CSVJournal{trades: tw, equity: ew, tf: tf, ef: ef}, nil
}

func openCSV(path string, header []string) (*os.File, *csv.Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	w := csv.NewWriter(f)
	if st.Size() == 0 {
		if err := writeRow(w, header); err != nil {
			_ = f.Close()
			return nil, nil, fmt.Errorf("write header %s: %w", path, err)
		}
	}
	return f, w, nil
}

func writeRow(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	return writeRow(j.trades, []string{
		t.TradeID,
		t.Instrument,
		t.Direction.String(),
		f(t.Units),
		f(t.EntryPrice),
		f(t.ExitPrice),
		t.OpenTime.UTC().Format(time.RFC3339),
		t.CloseTime.UTC().Format(time.RFC3339),
		f(t.RealizedPL),
		t.Reason,
		t.Tag,
	})
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	return writeRow(j.equity, []string{
		e.Time.UTC().Format(time.RFC3339),
		f(e.Balance),
		f(e.Equity),
		f(e.MarginUsed),
		f(e.FreeMargin),
		f(e.MarginLevel),
	})
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	j.equity.Flush()
	var first error
	for _, err := range []error{j.trades.Error(), j.equity.Error(), j.tf.Close(), j.ef.Close()} {
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

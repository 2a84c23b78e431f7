package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('trades','equity')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())
	assert.True(t, found["trades"])
	assert.True(t, found["equity"])
}

func TestSQLiteReopenKeepsRows(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.RecordTrade(TradeRecord{TradeID: "T1", Instrument: "EUR_USD", CloseTime: time.Now()}))
	require.NoError(t, j.Close())

	j2, err := NewSQLite(path)
	require.NoError(t, err)
	defer j2.Close()

	got, err := j2.GetTrade("T1")
	require.NoError(t, err)
	assert.Equal(t, "EUR_USD", got.Instrument)
}

func TestSQLiteRecordEquity(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	t0 := time.Date(2024, 2, 3, 4, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, j.RecordEquity(EquitySnapshot{
			Time:    t0.Add(time.Duration(i) * time.Minute),
			Balance: 1000,
			Equity:  1000 + float64(i),
		}))
	}

	got, err := j.ListEquityBetween(t0, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Time.Equal(t0))
	assert.InDelta(t, 1001.0, got[1].Equity, 1e-9)
}

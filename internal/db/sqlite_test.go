package db

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	write := buildDSN("/tmp/cat.sqlite", ModeWrite)
	assert.True(t, strings.HasPrefix(write, "/tmp/cat.sqlite?"))
	assert.Contains(t, write, "_journal_mode=WAL")
	assert.Contains(t, write, "_busy_timeout=5000")
	assert.Contains(t, write, "_foreign_keys=on")
	assert.Contains(t, write, "_txlock=immediate")

	read := buildDSN("/tmp/cat.sqlite", ModeRead)
	assert.NotContains(t, read, "_txlock")
	assert.NotContains(t, read, "mode=ro")

	ro := buildDSN("/tmp/cat.sqlite", ModeReadOnly)
	assert.True(t, strings.HasPrefix(ro, "file:/tmp/cat.sqlite?"))
	assert.Contains(t, ro, "mode=ro")
	assert.Contains(t, ro, "_query_only=on")
	assert.NotContains(t, ro, "_journal_mode")
}

func TestOpenSQLite_InvalidMode(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), "rw", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SQLite mode")
}

func TestOpenSQLite_WritePool(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), ModeWrite, 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", strings.ToLower(journalMode))

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}

func TestOpenSQLite_ReadOnlyRejectsWrites(t *testing.T) {
	writeDB, _, path := OpenTestSQLiteAt(t)
	_ = writeDB

	ro, err := OpenSQLite(path, ModeReadOnly, 2)
	require.NoError(t, err)
	t.Cleanup(func() { ro.Close() })

	var n int
	require.NoError(t, ro.QueryRow("SELECT count(*) FROM data_prod_type").Scan(&n))
	assert.Positive(t, n)

	_, err = ro.Exec("INSERT INTO flag (namespace, label) VALUES ('qa', 'x')")
	require.Error(t, err)
}

func TestInit_IsIdempotent(t *testing.T) {
	writeDB, readDB := OpenTestSQLite(t)
	require.NoError(t, Init(context.Background(), writeDB))

	counts := map[string]int{
		"data_prod_type":       8,
		"data_kind":            4,
		"data_prod_assoc_type": 6,
		"flag":                 4,
	}
	for table, want := range counts {
		var got int
		require.NoError(t, readDB.QueryRow("SELECT count(*) FROM "+table).Scan(&got))
		assert.Equal(t, want, got, table)
	}

	v, err := SchemaVersion(writeDB)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestEventLog_AppendOnly(t *testing.T) {
	writeDB, _ := OpenTestSQLite(t)

	_, err := writeDB.Exec(`INSERT INTO event_log (event_type, entity_type, entity_id, occurred_at)
		VALUES ('product.upserted', 'product', 'abc', '2025-01-01T00:00:00.000000Z')`)
	require.NoError(t, err)

	_, err = writeDB.Exec(`UPDATE event_log SET entity_id = 'x'`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	_, err = writeDB.Exec(`DELETE FROM event_log`)
	require.Error(t, err)
}

func TestOpenSQLitePair_ConcurrentWritersSerialize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	writeDB, readDB, err := OpenSQLitePair(path, 4)
	require.NoError(t, err)
	t.Cleanup(func() {
		writeDB.Close()
		readDB.Close()
	})

	_, err = writeDB.Exec("CREATE TABLE counter (id INTEGER PRIMARY KEY, n INTEGER)")
	require.NoError(t, err)
	_, err = writeDB.Exec("INSERT INTO counter (id, n) VALUES (1, 0)")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 40)
	for i := range errs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if idx%2 == 0 {
				_, errs[idx] = writeDB.Exec("UPDATE counter SET n = n + 1 WHERE id = 1")
				return
			}
			var n int
			errs[idx] = readDB.QueryRow("SELECT n FROM counter WHERE id = 1").Scan(&n)
		}(i)
	}
	wg.Wait()

	for i, e := range errs {
		assert.NoError(t, e, "op %d", i)
	}
	var n int
	require.NoError(t, readDB.QueryRow("SELECT n FROM counter WHERE id = 1").Scan(&n))
	assert.Equal(t, 20, n)
}

func TestOpenSQLite_InvalidPath(t *testing.T) {
	_, err := OpenSQLite("/nonexistent/dir/test.db", ModeWrite, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping sqlite")
}

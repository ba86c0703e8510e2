package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

// OpenTestSQLite opens a hardened SQLite write/read pool pair in t.TempDir(),
// migrates and seeds the catalog on the write pool, and registers cleanup.
func OpenTestSQLite(t *testing.T) (writeDB, readDB *sql.DB) {
	t.Helper()
	writeDB, readDB, _ = OpenTestSQLiteAt(t)
	return writeDB, readDB
}

// OpenTestSQLiteAt is OpenTestSQLite that also returns the file path, for
// tests that open additional handles such as read-only pools or DuckDB.
func OpenTestSQLiteAt(t *testing.T) (writeDB, readDB *sql.DB, path string) {
	t.Helper()

	path = filepath.Join(t.TempDir(), "catalog.sqlite")

	writeDB, readDB, err := OpenSQLitePair(path, 4)
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = readDB.Close()
		_ = writeDB.Close()
	})

	if err := Init(context.Background(), writeDB); err != nil {
		t.Fatalf("init catalog: %v", err)
	}

	return writeDB, readDB, path
}

package engine_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "toltec-dpdb/internal/db"
	"toltec-dpdb/internal/db/repository"
	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/engine"
)

var ctx = context.Background()

// setupEngine seeds a catalog with two raw observations and attaches it.
// DuckDB downloads the sqlite extension on first use; without network access
// the test is skipped.
func setupEngine(t *testing.T) *engine.Engine {
	t.Helper()

	writeDB, _, path := internaldb.OpenTestSQLiteAt(t)
	typeID, err := repository.NewRegistryRepo(writeDB).ProductTypeID(ctx, domain.TypeRawObs)
	require.NoError(t, err)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, n := range []int{1, 2} {
		require.NoError(t, repository.NewProductRepo(writeDB).Upsert(ctx, typeID, domain.ProductUpsert{
			ID:           fmt.Sprintf("p%d", n),
			Type:         domain.TypeRawObs,
			Lifecycle:    domain.LifecycleActive,
			Availability: domain.AvailabilityAvailable,
			Meta:         domain.RawObsMeta{Name: fmt.Sprintf("toltec-%d-0-0", n), Master: "toltec", ObsNum: n},
		}, now))
	}

	eng, err := engine.Open(ctx, path, engine.Options{})
	if err != nil {
		t.Skipf("duckdb sqlite extension unavailable: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

// writeParquet materializes a small parquet file through a scratch DuckDB.
func writeParquet(t *testing.T, dir string) string {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer db.Close()

	path := filepath.Join(dir, "stats.parquet")
	_, err = db.ExecContext(ctx, fmt.Sprintf(`COPY (
		SELECT * FROM (VALUES ('p1', 1.5), ('p2', 2.5), ('orphan', 9.0)) AS v(product_id, rms)
	) TO '%s' (FORMAT parquet)`, path))
	require.NoError(t, err)
	return path
}

func TestQueryCatalogTables(t *testing.T) {
	eng := setupEngine(t)

	res, err := eng.Query(ctx, `SELECT count(*) AS n FROM catalog.data_prod`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []string{"n"}, res.Columns)
	assert.EqualValues(t, 2, res.Rows[0][0])
}

func TestQueryRejectsWrites(t *testing.T) {
	eng := setupEngine(t)

	for _, q := range []string{
		`DELETE FROM catalog.data_prod`,
		`INSERT INTO catalog.data_prod (pk) VALUES ('x')`,
		`SELECT 1; DROP TABLE catalog.data_prod`,
		`ATTACH 'other.db' AS other`,
	} {
		_, err := eng.Query(ctx, q)
		var ve *domain.ValidationError
		assert.ErrorAs(t, err, &ve, q)
	}

	res, err := eng.Query(ctx, `SELECT count(*) FROM catalog.data_prod`)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Rows[0][0])
}

func TestJoinCatalog(t *testing.T) {
	eng := setupEngine(t)
	path := writeParquet(t, t.TempDir())

	res, err := eng.JoinCatalog(ctx, path, "product_id")
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
	assert.Contains(t, res.Columns, "dp_pk")
	assert.Contains(t, res.Columns, "dp_type")

	typeIdx := -1
	for i, c := range res.Columns {
		if c == "dp_type" {
			typeIdx = i
		}
	}
	for _, row := range res.Rows {
		assert.Equal(t, string(domain.TypeRawObs), row[typeIdx])
	}
}

func TestScanParquetAndView(t *testing.T) {
	eng := setupEngine(t)
	path := writeParquet(t, t.TempDir())

	res, err := eng.ScanParquet(ctx, path, 2)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)

	require.NoError(t, eng.CreateParquetView(ctx, "stats", path))
	res, err = eng.Query(ctx, `SELECT count(*) FROM stats WHERE rms > 2`)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Rows[0][0])

	var ve *domain.ValidationError
	assert.ErrorAs(t, eng.CreateParquetView(ctx, "bad name;", path), &ve)
}

func TestExportTable(t *testing.T) {
	eng := setupEngine(t)
	out := filepath.Join(t.TempDir(), "data_prod.parquet")

	require.NoError(t, eng.ExportTable(ctx, "data_prod", out))
	res, err := eng.ScanParquet(ctx, out, 0)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
}

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		query string
		ok    bool
	}{
		{"SELECT 1", true},
		{"  select * from t;", true},
		{"WITH x AS (SELECT 1) SELECT * FROM x", true},
		{"FROM catalog.data_prod", true},
		{"(SELECT 1)", true},
		{"DESCRIBE catalog.data_prod", true},
		{"EXPLAIN SELECT 1", true},
		{"-- leading comment\nSELECT 1", true},
		{"/* block */ SHOW TABLES", true},
		{"SELECT ';' AS semi", true},
		{"", false},
		{"   ;  ", false},
		{"-- only a comment", false},
		{"INSERT INTO t VALUES (1)", false},
		{"update t set a = 1", false},
		{"CREATE TABLE t (a INT)", false},
		{"COPY t TO 'x.parquet'", false},
		{"SELECT 1; SELECT 2", false},
		{"/* SELECT */ DELETE FROM t", false},
		{"SET threads = 1", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			err := engine.CheckReadOnly(tt.query)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var ve *domain.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

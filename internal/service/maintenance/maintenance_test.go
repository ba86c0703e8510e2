package maintenance

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "toltec-dpdb/internal/db"
	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/service/catalog"
)

type recordingExporter struct {
	mu      sync.Mutex
	paths   map[string]string
	active  int32
	maxSeen int32
	delay   time.Duration
	err     error
}

func (r *recordingExporter) ExportTable(_ context.Context, table, path string) error {
	n := atomic.AddInt32(&r.active, 1)
	defer atomic.AddInt32(&r.active, -1)
	for {
		m := atomic.LoadInt32(&r.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&r.maxSeen, m, n) {
			break
		}
	}
	time.Sleep(r.delay)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paths == nil {
		r.paths = map[string]string{}
	}
	r.paths[table] = path
	return r.err
}

func newTestService(t *testing.T, exp TableExporter) (*Service, *catalog.Store) {
	t.Helper()
	writeDB, readDB := internaldb.OpenTestSQLite(t)
	store := catalog.New(writeDB, readDB)
	return NewService(store, exp), store
}

func TestVacuumAndAnalyze(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	res, err := svc.Vacuum(ctx)
	require.NoError(t, err)
	assert.Equal(t, OpVacuum, res.Op)

	res, err = svc.Run(ctx, OpAnalyze, "")
	require.NoError(t, err)
	assert.Equal(t, OpAnalyze, res.Op)

	_, err = svc.Run(ctx, "reindex", "")
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestTablesExcludeInternal(t *testing.T) {
	svc, _ := newTestService(t, nil)
	tables, err := svc.Tables(context.Background())
	require.NoError(t, err)
	assert.Contains(t, tables, "data_prod")
	assert.Contains(t, tables, "event_log")
	assert.NotContains(t, tables, "goose_db_version")
	for _, tbl := range tables {
		assert.NotRegexp(t, `^sqlite_`, tbl)
	}
}

func TestExportParquet(t *testing.T) {
	exp := &recordingExporter{}
	svc, _ := newTestService(t, exp)
	dir := filepath.Join(t.TempDir(), "export")

	res, err := svc.ExportParquet(context.Background(), dir)
	require.NoError(t, err)
	require.NotEmpty(t, res.Tables)
	assert.Len(t, res.Files, len(res.Tables))
	assert.Equal(t, filepath.Join(dir, "data_prod.parquet"), exp.paths["data_prod"])
	assert.DirExists(t, dir)

	// Re-export overwrites the same files.
	res2, err := svc.ExportParquet(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, res.Files, res2.Files)
}

func TestExportParquet_Errors(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.ExportParquet(context.Background(), t.TempDir())
	var ce *domain.ConfigurationError
	assert.ErrorAs(t, err, &ce)

	exp := &recordingExporter{err: errors.New("disk full")}
	svc, _ = newTestService(t, exp)
	_, err = svc.ExportParquet(context.Background(), t.TempDir())
	assert.ErrorContains(t, err, "disk full")

	_, err = svc.ExportParquet(context.Background(), "")
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestMaintenanceSerialized(t *testing.T) {
	exp := &recordingExporter{delay: 5 * time.Millisecond}
	svc, _ := newTestService(t, exp)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ExportParquet(context.Background(), t.TempDir())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&exp.maxSeen))
}

func TestReadOnlyRefusesMaintenance(t *testing.T) {
	_, readDB := internaldb.OpenTestSQLite(t)
	svc := NewService(catalog.NewReadOnly(readDB), &recordingExporter{})
	ctx := context.Background()

	for _, op := range []string{OpVacuum, OpAnalyze, OpExport} {
		_, err := svc.Run(ctx, op, t.TempDir())
		var ce *domain.ConfigurationError
		assert.ErrorAs(t, err, &ce, op)
	}
}

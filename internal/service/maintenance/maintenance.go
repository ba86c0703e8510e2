// Package maintenance runs housekeeping against the catalog: VACUUM, ANALYZE
// and parquet export of every catalog table.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/service/catalog"
)

// Operation names accepted by Run.
const (
	OpVacuum  = "vacuum"
	OpAnalyze = "analyze"
	OpExport  = "export"
)

// TableExporter writes one catalog table to a parquet file.
// Implemented by engine.Engine.
type TableExporter interface {
	ExportTable(ctx context.Context, table, path string) error
}

// Result reports one maintenance run.
type Result struct {
	Op       string        `json:"op"`
	Tables   []string      `json:"tables,omitempty"`
	Files    []string      `json:"files,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Service serializes maintenance calls. Concurrent callers wait for the
// running operation instead of failing.
type Service struct {
	store    *catalog.Store
	exporter TableExporter
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewService creates a maintenance service. exporter may be nil when parquet
// export is not needed.
func NewService(store *catalog.Store, exporter TableExporter) *Service {
	return &Service{store: store, exporter: exporter, logger: store.Logger().With("component", "maintenance")}
}

// Vacuum rebuilds the catalog file and truncates the WAL.
func (s *Service) Vacuum(ctx context.Context) (*Result, error) {
	return s.exec(ctx, OpVacuum, "VACUUM", "PRAGMA wal_checkpoint(TRUNCATE)")
}

// Analyze refreshes the query planner statistics.
func (s *Service) Analyze(ctx context.Context) (*Result, error) {
	return s.exec(ctx, OpAnalyze, "ANALYZE")
}

func (s *Service) exec(ctx context.Context, op string, stmts ...string) (*Result, error) {
	db, err := s.store.WriteDB(op)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	res := &Result{Op: op, Duration: time.Since(start)}
	s.logger.Info("maintenance finished", "op", op, "duration", res.Duration)
	return res, nil
}

// ExportParquet writes <dir>/<table>.parquet for every catalog table,
// overwriting earlier exports.
func (s *Service) ExportParquet(ctx context.Context, dir string) (*Result, error) {
	if _, err := s.store.WriteDB(OpExport); err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, domain.ErrConfiguration("parquet export needs the analytical engine")
	}
	if dir == "" {
		return nil, domain.ErrValidation("export directory is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	tables, err := s.Tables(ctx)
	if err != nil {
		return nil, err
	}
	res := &Result{Op: OpExport, Tables: tables}
	for _, table := range tables {
		path := filepath.Join(dir, table+".parquet")
		if err := s.exporter.ExportTable(ctx, table, path); err != nil {
			return nil, fmt.Errorf("export %s: %w", table, err)
		}
		res.Files = append(res.Files, path)
	}
	res.Duration = time.Since(start)
	s.logger.Info("maintenance finished", "op", OpExport, "tables", len(tables), "dir", dir, "duration", res.Duration)
	return res, nil
}

// Run dispatches by operation name; dir is used by export only.
func (s *Service) Run(ctx context.Context, op, dir string) (*Result, error) {
	switch op {
	case OpVacuum:
		return s.Vacuum(ctx)
	case OpAnalyze:
		return s.Analyze(ctx)
	case OpExport:
		return s.ExportParquet(ctx, dir)
	default:
		return nil, domain.ErrValidation("unknown maintenance operation %q", op)
	}
}

// Tables lists the catalog's user tables in name order.
func (s *Service) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.store.ReadDB().QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name != 'goose_db_version'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

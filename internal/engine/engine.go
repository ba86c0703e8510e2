// Package engine is the analytical half of the hybrid store: an in-memory
// DuckDB with the SQLite catalog attached read-only, able to scan external
// parquet files and join them with catalog rows.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // DuckDB driver

	"toltec-dpdb/internal/ddl"
	"toltec-dpdb/internal/domain"
)

// DefaultCatalogAlias is the name the catalog is attached under.
const DefaultCatalogAlias = "catalog"

// S3Config holds credentials for s3:// scans.
type S3Config struct {
	KeyID    string
	Secret   string
	Endpoint string
	Region   string
	URLStyle string
}

// Options configures Open.
type Options struct {
	CatalogAlias string
	S3           *S3Config
	Logger       *slog.Logger
}

// Engine runs read-only analytical SQL. DuckDB connections share one
// in-memory database, so attachments, views and secrets are visible to every
// query.
type Engine struct {
	db          *sql.DB
	alias       string
	catalogPath string
	logger      *slog.Logger
}

// Open starts DuckDB, loads the sqlite extension and attaches catalogPath
// read-only. An S3 secret is created when opts.S3 is set.
func Open(ctx context.Context, catalogPath string, opts Options) (*Engine, error) {
	if opts.CatalogAlias == "" {
		opts.CatalogAlias = DefaultCatalogAlias
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	attach, err := ddl.AttachSQLite(opts.CatalogAlias, catalogPath, true)
	if err != nil {
		return nil, domain.ErrConfiguration("attach catalog: %v", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	e := &Engine{db: db, alias: opts.CatalogAlias, catalogPath: catalogPath, logger: opts.Logger}

	if err := e.loadExtension(ctx, "sqlite"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, attach); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("attach catalog %s: %w", catalogPath, err)
	}
	if opts.S3 != nil {
		if err := e.configureS3(ctx, *opts.S3); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	e.logger.Info("analytical engine ready", "catalog", catalogPath, "alias", e.alias)
	return e, nil
}

func (e *Engine) loadExtension(ctx context.Context, name string) error {
	install, err := ddl.InstallExtension(name)
	if err != nil {
		return err
	}
	load, err := ddl.LoadExtension(name)
	if err != nil {
		return err
	}
	for _, stmt := range []string{install, load} {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("extension setup (%s): %w", stmt, err)
		}
	}
	return nil
}

// Close releases DuckDB.
func (e *Engine) Close() error { return e.db.Close() }

// CatalogAlias returns the schema prefix catalog tables are reachable under.
func (e *Engine) CatalogAlias() string { return e.alias }

// Query runs a read-only statement. Anything but a single SELECT-like
// statement is rejected with a ValidationError; catalog tables are also
// attached READ_ONLY.
func (e *Engine) Query(ctx context.Context, query string, args ...interface{}) (*Result, error) {
	if err := CheckReadOnly(query); err != nil {
		return nil, err
	}
	return e.collect(ctx, query, args...)
}

// ScanParquet returns up to limit rows of the files matching glob.
func (e *Engine) ScanParquet(ctx context.Context, glob string, limit int) (*Result, error) {
	stmt, err := ddl.ScanParquet(glob, limit)
	if err != nil {
		return nil, domain.ErrValidation("%v", err)
	}
	return e.collect(ctx, stmt)
}

// JoinCatalog joins the rows of a parquet glob with catalog products on
// column = product id.
func (e *Engine) JoinCatalog(ctx context.Context, glob, column string) (*Result, error) {
	stmt, err := ddl.JoinCatalogProducts(e.alias, glob, column)
	if err != nil {
		return nil, domain.ErrValidation("%v", err)
	}
	return e.collect(ctx, stmt)
}

// CreateParquetView registers a view over a parquet glob for later queries.
func (e *Engine) CreateParquetView(ctx context.Context, name, glob string) error {
	stmt, err := ddl.CreateParquetView(name, glob)
	if err != nil {
		return domain.ErrValidation("%v", err)
	}
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create view %s: %w", name, err)
	}
	return nil
}

// ExportTable writes one catalog table to a parquet file, overwriting it.
func (e *Engine) ExportTable(ctx context.Context, table, path string) error {
	stmt, err := ddl.CopyTableToParquet(e.alias, table, path)
	if err != nil {
		return domain.ErrValidation("%v", err)
	}
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("export %s: %w", table, err)
	}
	return nil
}

// Result is a fully materialized query result.
type Result struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

func (e *Engine) collect(ctx context.Context, query string, args ...interface{}) (*Result, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: cols}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	return res, rows.Err()
}

var readOnlyKeywords = map[string]bool{
	"SELECT":    true,
	"WITH":      true,
	"FROM":      true,
	"VALUES":    true,
	"DESCRIBE":  true,
	"SHOW":      true,
	"SUMMARIZE": true,
	"EXPLAIN":   true,
	"TABLE":     true,
}

// CheckReadOnly accepts a single statement whose leading keyword cannot
// mutate state.
func CheckReadOnly(query string) error {
	body := strings.TrimSpace(stripComments(query))
	body = strings.TrimSpace(strings.TrimSuffix(body, ";"))
	if body == "" {
		return domain.ErrValidation("empty query")
	}
	if hasStatementSeparator(body) {
		return domain.ErrValidation("only a single statement is allowed")
	}
	words := strings.FieldsFunc(body, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '('
	})
	if len(words) == 0 {
		return domain.ErrValidation("empty query")
	}
	first := strings.ToUpper(words[0])
	if !readOnlyKeywords[first] {
		return domain.ErrValidation("statement %s is not allowed on the analytical engine", first)
	}
	return nil
}

// stripComments removes -- and /* */ comments outside string literals.
func stripComments(s string) string {
	var b strings.Builder
	inStr := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inStr:
			b.WriteByte(c)
			if c == '\'' {
				inStr = false
			}
		case c == '\'':
			inStr = true
			b.WriteByte(c)
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			b.WriteByte(' ')
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += end + 3
			}
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func hasStatementSeparator(s string) bool {
	inStr := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			inStr = !inStr
		case ';':
			if !inStr {
				return true
			}
		}
	}
	return false
}

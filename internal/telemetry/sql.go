// Package telemetry reads per-part acquisition status from the instrument's
// telemetry database, either directly over SQL or through a REST facade.
package telemetry

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"toltec-dpdb/internal/domain"
)

var _ domain.TelemetrySource = (*SQLSource)(nil)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

const selectParts = `
SELECT LOWER(m.label), t.ObsNum, t.SubObsNum, t.ScanNum, t.RoachIndex, t.Valid,
       COALESCE(t.FileName, ''), t.Date, t.Time
FROM toltec AS t
JOIN master AS m ON t.Master = m.id`

// SQLConfig bounds SQLSource calls.
type SQLConfig struct {
	Timeout     time.Duration // per attempt
	MaxAttempts int
	Backoff     time.Duration // first retry delay, doubled per attempt
}

// SQLSource queries the acquisition "toltec" table, one row per interface
// file, joined with its "master" lookup table. Each call runs under a
// per-attempt timeout; busy databases, dropped connections and expired
// deadlines are retried and finally surface as *domain.TransportError.
type SQLSource struct {
	db     *sql.DB
	cfg    SQLConfig
	logger *slog.Logger
}

// NewSQLSource wraps an open telemetry database. logger may be nil.
func NewSQLSource(db *sql.DB, cfg SQLConfig, logger *slog.Logger) *SQLSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLSource{db: db, cfg: cfg, logger: logger}
}

// Parts returns every row of key ordered by part index.
func (s *SQLSource) Parts(ctx context.Context, key domain.ObservationKey) ([]domain.PartRecord, error) {
	return s.query(ctx, "telemetry parts", selectParts+`
		WHERE LOWER(m.label) = ? AND t.ObsNum = ? AND t.SubObsNum = ? AND t.ScanNum = ?
		ORDER BY t.RoachIndex, t.id`,
		key.Master, key.ObsNum, key.SubObsNum, key.ScanNum)
}

// Part returns the most advanced row for one part.
func (s *SQLSource) Part(ctx context.Context, key domain.ObservationKey, part int) (*domain.PartRecord, error) {
	recs, err := s.query(ctx, "telemetry part", selectParts+`
		WHERE LOWER(m.label) = ? AND t.ObsNum = ? AND t.SubObsNum = ? AND t.ScanNum = ? AND t.RoachIndex = ?
		ORDER BY t.Valid DESC, t.id DESC LIMIT 1`,
		key.Master, key.ObsNum, key.SubObsNum, key.ScanNum, part)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, domain.ErrNotFound("observation %s part %d not found", key, part)
	}
	return &recs[0], nil
}

// Since returns rows stamped at or after t in insertion order.
func (s *SQLSource) Since(ctx context.Context, t time.Time) ([]domain.PartRecord, error) {
	return s.query(ctx, "telemetry since", selectParts+`
		WHERE (t.Date || ' ' || t.Time) >= ?
		ORDER BY t.id`,
		t.UTC().Format(dateLayout+" "+timeLayout))
}

// Active returns keys with at least one valid part, most recently written first.
func (s *SQLSource) Active(ctx context.Context, limit int) ([]domain.ObservationKey, error) {
	var out []domain.ObservationKey
	err := s.retry(ctx, "telemetry active", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT LOWER(m.label), t.ObsNum, t.SubObsNum, t.ScanNum
			FROM toltec AS t
			JOIN master AS m ON t.Master = m.id
			WHERE t.Valid = 1
			GROUP BY LOWER(m.label), t.ObsNum, t.SubObsNum, t.ScanNum
			ORDER BY MAX(t.id) DESC
			LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var k domain.ObservationKey
			if err := rows.Scan(&k.Master, &k.ObsNum, &k.SubObsNum, &k.ScanNum); err != nil {
				return err
			}
			out = append(out, k)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HasLater reports whether the master has any row ordered after key.
func (s *SQLSource) HasLater(ctx context.Context, key domain.ObservationKey) (bool, error) {
	var exists bool
	err := s.retry(ctx, "telemetry has later", func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM toltec AS t JOIN master AS m ON t.Master = m.id
				WHERE LOWER(m.label) = ?
				  AND (t.ObsNum > ?
				       OR (t.ObsNum = ? AND t.SubObsNum > ?)
				       OR (t.ObsNum = ? AND t.SubObsNum = ? AND t.ScanNum > ?))
			)`,
			key.Master, key.ObsNum, key.ObsNum, key.SubObsNum, key.ObsNum, key.SubObsNum, key.ScanNum).Scan(&exists)
	})
	return exists, err
}

func (s *SQLSource) query(ctx context.Context, op, query string, args ...interface{}) ([]domain.PartRecord, error) {
	var out []domain.PartRecord
	err := s.retry(ctx, op, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var (
				r         domain.PartRecord
				valid     int
				date, tod string
			)
			if err := rows.Scan(&r.Key.Master, &r.Key.ObsNum, &r.Key.SubObsNum, &r.Key.ScanNum,
				&r.Part, &valid, &r.FileName, &date, &tod); err != nil {
				return err
			}
			r.Valid = valid == 1
			r.Timestamp, err = time.ParseInLocation(dateLayout+" "+timeLayout, date+" "+tod, time.UTC)
			if err != nil {
				return fmt.Errorf("telemetry row %s part %d: bad timestamp %q %q", r.Key, r.Part, date, tod)
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// retry runs fn under a per-attempt timeout. Transient failures are retried
// with exponential backoff; any other error is returned wrapped with op.
func (s *SQLSource) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := s.cfg.Backoff * time.Duration(1<<uint(attempt-2))
			select {
			case <-ctx.Done():
				return &domain.TransportError{Op: op, Attempts: attempt - 1, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}
		if err := ctx.Err(); err != nil {
			return &domain.TransportError{Op: op, Attempts: attempt - 1, Err: err}
		}

		actx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		err := fn(actx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return &domain.TransportError{Op: op, Attempts: attempt, Err: ctx.Err()}
		}
		if !transientSQL(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
		lastErr = err
		s.logger.Warn("telemetry query failed, retrying",
			"op", op, "attempt", attempt, "max_attempts", s.cfg.MaxAttempts, "error", err)
	}
	return &domain.TransportError{Op: op, Attempts: s.cfg.MaxAttempts, Err: lastErr}
}

// transientSQL reports failures another attempt may cure: attempt timeouts,
// lost connections and a locked or unreachable database file.
func transientSQL(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrInterrupt:
			return true
		}
	}
	return false
}

// Schema is the minimal telemetry layout SQLSource reads. It is used to
// create simulation databases.
const Schema = `
CREATE TABLE IF NOT EXISTS master (
    id    INTEGER PRIMARY KEY,
    label TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS toltec (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    Master     INTEGER NOT NULL REFERENCES master(id),
    ObsNum     INTEGER NOT NULL,
    SubObsNum  INTEGER NOT NULL,
    ScanNum    INTEGER NOT NULL,
    RoachIndex INTEGER NOT NULL,
    Valid      INTEGER NOT NULL DEFAULT 0,
    FileName   TEXT,
    Date       TEXT NOT NULL,
    Time       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_toltec_obs ON toltec (Master, ObsNum, SubObsNum, ScanNum);`

// CreateSchema creates the telemetry tables if absent.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(Schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create telemetry schema: %w", err)
		}
	}
	return nil
}

// Record appends a telemetry row, registering the master label on first use.
// Acquisition writes rows this way; a later row for the same part supersedes
// earlier ones.
func Record(ctx context.Context, db *sql.DB, r domain.PartRecord) error {
	if err := r.Key.Validate(); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO master (label) VALUES (?) ON CONFLICT(label) DO NOTHING`, r.Key.Master); err != nil {
		return fmt.Errorf("record master: %w", err)
	}
	valid := 0
	if r.Valid {
		valid = 1
	}
	ts := r.Timestamp.UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO toltec (Master, ObsNum, SubObsNum, ScanNum, RoachIndex, Valid, FileName, Date, Time)
		SELECT id, ?, ?, ?, ?, ?, ?, ?, ? FROM master WHERE label = ?`,
		r.Key.ObsNum, r.Key.SubObsNum, r.Key.ScanNum, r.Part, valid, r.FileName,
		ts.Format(dateLayout), ts.Format(timeLayout), r.Key.Master)
	if err != nil {
		return fmt.Errorf("record part: %w", err)
	}
	return nil
}

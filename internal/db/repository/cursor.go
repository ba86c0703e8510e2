package repository

import (
	"context"
	"database/sql"
	"time"

	"toltec-dpdb/internal/domain"
)

// CursorRepo is a catalog-backed completion cursor.
type CursorRepo struct {
	db DBTX
}

func NewCursorRepo(db DBTX) *CursorRepo {
	return &CursorRepo{db: db}
}

var _ domain.CompletionCursor = (*CursorRepo)(nil)

// IsComplete reports whether key was already recorded complete.
func (r *CursorRepo) IsComplete(ctx context.Context, key domain.ObservationKey) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM completion_cursor WHERE obs_key = ?`, key.String()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// MarkComplete records key as complete; only the first call returns true.
func (r *CursorRepo) MarkComplete(ctx context.Context, key domain.ObservationKey, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO completion_cursor (obs_key, completed_at) VALUES (?, ?) ON CONFLICT(obs_key) DO NOTHING`,
		key.String(), formatTime(at))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

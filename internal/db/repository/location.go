package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"toltec-dpdb/internal/domain"
)

// LocationRepo persists data roots.
type LocationRepo struct {
	db DBTX
}

func NewLocationRepo(db DBTX) *LocationRepo {
	return &LocationRepo{db: db}
}

// WithTx returns a LocationRepo bound to tx.
func (r *LocationRepo) WithTx(tx *sql.Tx) *LocationRepo { return &LocationRepo{db: tx} }

// Create inserts a location. A duplicate label is an IntegrityError.
func (r *LocationRepo) Create(ctx context.Context, loc domain.Location, now time.Time) (*domain.Location, error) {
	meta, err := toJSON(loc.Meta)
	if err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO location (label, location_type, root_uri, priority, meta, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		loc.Label, string(loc.Type), loc.RootURI, loc.Priority, meta, formatTime(now))
	if err != nil {
		return nil, mapDBError(err, fmt.Sprintf("location %q", loc.Label))
	}
	if loc.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	loc.CreatedAt = now.UTC()
	return &loc, nil
}

// GetByLabel returns the location with the given label or a NotFoundError.
func (r *LocationRepo) GetByLabel(ctx context.Context, label string) (*domain.Location, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT pk, label, location_type, root_uri, priority, meta, created_at
		 FROM location WHERE label = ?`, label)
	loc, err := scanLocation(row)
	if err != nil {
		return nil, mapDBError(err, fmt.Sprintf("location %q", label))
	}
	return loc, nil
}

// List returns all locations ordered by priority then label.
func (r *LocationRepo) List(ctx context.Context) ([]domain.Location, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT pk, label, location_type, root_uri, priority, meta, created_at
		 FROM location ORDER BY priority, label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *loc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLocation(row rowScanner) (*domain.Location, error) {
	var loc domain.Location
	var typ, meta, created string
	if err := row.Scan(&loc.ID, &loc.Label, &typ, &loc.RootURI, &loc.Priority, &meta, &created); err != nil {
		return nil, err
	}
	loc.Type = domain.LocationType(typ)
	loc.CreatedAt = parseTime(created)
	if err := fromJSON(meta, &loc.Meta); err != nil {
		return nil, fmt.Errorf("location %s meta: %w", loc.Label, err)
	}
	return &loc, nil
}

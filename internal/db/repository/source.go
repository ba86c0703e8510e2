package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"toltec-dpdb/internal/domain"
)

// SourceRepo persists the physical sources of products.
type SourceRepo struct {
	db DBTX
}

func NewSourceRepo(db DBTX) *SourceRepo {
	return &SourceRepo{db: db}
}

// WithTx returns a SourceRepo bound to tx.
func (r *SourceRepo) WithTx(tx *sql.Tx) *SourceRepo { return &SourceRepo{db: tx} }

// Upsert inserts the source or refreshes it when the URI is already bound to
// the same product. A URI bound to a different product is an IntegrityError.
func (r *SourceRepo) Upsert(ctx context.Context, locationID int64, s domain.Source, now time.Time) error {
	meta, err := toJSON(s.Meta)
	if err != nil {
		return err
	}
	var verified sql.NullString
	if s.LastVerifiedAt != nil {
		verified = sql.NullString{String: formatTime(*s.LastVerifiedAt), Valid: true}
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO data_prod_source (source_uri, data_prod_fk, location_fk, role, availability_state, size, checksum, meta, last_verified_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_uri) DO UPDATE SET
		     location_fk        = excluded.location_fk,
		     role               = excluded.role,
		     availability_state = excluded.availability_state,
		     size               = COALESCE(excluded.size, data_prod_source.size),
		     checksum           = COALESCE(excluded.checksum, data_prod_source.checksum),
		     meta               = excluded.meta,
		     last_verified_at   = COALESCE(excluded.last_verified_at, data_prod_source.last_verified_at)
		 WHERE data_prod_source.data_prod_fk = excluded.data_prod_fk`,
		s.URI, s.ProductID, locationID, string(s.Role), string(s.Availability),
		nullInt64(s.Size), nullString(s.Checksum), meta, verified, formatTime(now))
	if err != nil {
		return mapDBError(err, fmt.Sprintf("source %s", s.URI))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrIntegrity("source %s is already bound to another product", s.URI)
	}
	return nil
}

// Get returns a source by URI.
func (r *SourceRepo) Get(ctx context.Context, uri string) (*domain.Source, error) {
	row := r.db.QueryRowContext(ctx, sourceSelect+` WHERE s.source_uri = ?`, uri)
	s, err := scanSource(row)
	if err != nil {
		return nil, mapDBError(err, fmt.Sprintf("source %s", uri))
	}
	return s, nil
}

// ListForProduct returns a product's sources, primaries first.
func (r *SourceRepo) ListForProduct(ctx context.Context, productID string) ([]domain.Source, error) {
	rows, err := r.db.QueryContext(ctx, sourceSelect+`
		WHERE s.data_prod_fk = ?
		ORDER BY CASE s.role WHEN 'PRIMARY' THEN 0 WHEN 'MIRROR' THEN 1 ELSE 2 END, l.priority, s.source_uri`,
		productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// UpdateVerification records the outcome of re-checking a source.
func (r *SourceRepo) UpdateVerification(ctx context.Context, v domain.SourceVerification) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE data_prod_source
		 SET availability_state = ?, size = COALESCE(?, size), last_verified_at = ?
		 WHERE source_uri = ?`,
		string(v.Availability), nullInt64(v.Size), formatTime(v.VerifiedAt), v.URI)
	if err != nil {
		return mapDBError(err, fmt.Sprintf("source %s", v.URI))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("source %s not found", v.URI)
	}
	return nil
}

const sourceSelect = `SELECT s.source_uri, s.data_prod_fk, l.label, s.role, s.availability_state,
	s.size, s.checksum, s.meta, s.last_verified_at, s.created_at
	FROM data_prod_source s JOIN location l ON l.pk = s.location_fk`

func scanSource(row rowScanner) (*domain.Source, error) {
	var s domain.Source
	var role, availability, meta, created string
	var size sql.NullInt64
	var checksum, verified sql.NullString
	if err := row.Scan(&s.URI, &s.ProductID, &s.LocationLabel, &role, &availability,
		&size, &checksum, &meta, &verified, &created); err != nil {
		return nil, err
	}
	s.Role = domain.StorageRole(role)
	s.Availability = domain.AvailabilityState(availability)
	if size.Valid {
		s.Size = &size.Int64
	}
	s.Checksum = stringPtr(checksum)
	s.LastVerifiedAt = nullTime(verified)
	s.CreatedAt = parseTime(created)
	if err := fromJSON(meta, &s.Meta); err != nil {
		return nil, fmt.Errorf("source %s meta: %w", s.URI, err)
	}
	return &s, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

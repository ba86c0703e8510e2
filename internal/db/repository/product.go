package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"toltec-dpdb/internal/domain"
)

// ProductRepo persists catalog products.
type ProductRepo struct {
	db DBTX
}

func NewProductRepo(db DBTX) *ProductRepo {
	return &ProductRepo{db: db}
}

// WithTx returns a ProductRepo bound to tx.
func (r *ProductRepo) WithTx(tx *sql.Tx) *ProductRepo { return &ProductRepo{db: tx} }

const productColumns = `p.pk, t.label, p.lifecycle_status, p.availability_state, p.content_hash, p.meta, p.created_at, p.updated_at`

// Exists reports whether a product with id is cataloged.
func (r *ProductRepo) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM data_prod WHERE pk = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Upsert inserts the product or updates its mutable fields. created_at and the
// type are never changed by the update branch; a nil content hash keeps the
// stored one.
func (r *ProductRepo) Upsert(ctx context.Context, typeID int64, u domain.ProductUpsert, now time.Time) error {
	meta, err := domain.EncodeMetadata(u.Meta)
	if err != nil {
		return err
	}
	ts := formatTime(now)
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO data_prod (pk, data_prod_type_fk, lifecycle_status, availability_state, content_hash, meta, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(pk) DO UPDATE SET
		     lifecycle_status   = excluded.lifecycle_status,
		     availability_state = excluded.availability_state,
		     content_hash       = COALESCE(excluded.content_hash, data_prod.content_hash),
		     meta               = excluded.meta,
		     updated_at         = excluded.updated_at`,
		u.ID, typeID, string(u.Lifecycle), string(u.Availability), nullString(u.ContentHash), string(meta), ts, ts)
	if err != nil {
		return mapDBError(err, fmt.Sprintf("product %s", u.ID))
	}
	return nil
}

// SetLifecycle changes the lifecycle status of an existing product.
func (r *ProductRepo) SetLifecycle(ctx context.Context, id string, status domain.LifecycleStatus, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE data_prod SET lifecycle_status = ?, updated_at = ? WHERE pk = ?`,
		string(status), formatTime(now), id)
	if err != nil {
		return mapDBError(err, fmt.Sprintf("product %s", id))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("product %s not found", id)
	}
	return nil
}

// SetAvailability changes the availability state of an existing product.
func (r *ProductRepo) SetAvailability(ctx context.Context, id string, state domain.AvailabilityState, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE data_prod SET availability_state = ?, updated_at = ? WHERE pk = ?`,
		string(state), formatTime(now), id)
	if err != nil {
		return mapDBError(err, fmt.Sprintf("product %s", id))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("product %s not found", id)
	}
	return nil
}

// Get returns a product by id or a NotFoundError.
func (r *ProductRepo) Get(ctx context.Context, id string) (*domain.Product, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+`
		 FROM data_prod p JOIN data_prod_type t ON t.pk = p.data_prod_type_fk
		 WHERE p.pk = ?`, id)
	p, err := scanProduct(row)
	if err != nil {
		return nil, mapDBError(err, fmt.Sprintf("product %s", id))
	}
	return p, nil
}

// List returns products matching every non-zero predicate of f, oldest first,
// with the total match count.
func (r *ProductRepo) List(ctx context.Context, f domain.ProductFilter) ([]domain.Product, int64, error) {
	where, args := productWhere(f)

	var total int64
	countSQL := `SELECT count(*) FROM data_prod p JOIN data_prod_type t ON t.pk = p.data_prod_type_fk` + where
	if err := r.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	listSQL := `SELECT ` + productColumns + `
		FROM data_prod p JOIN data_prod_type t ON t.pk = p.data_prod_type_fk` + where + `
		ORDER BY p.created_at, p.pk LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, listSQL, append(args, f.Page.Limit(), f.Page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

func productWhere(f domain.ProductFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if f.Type != "" {
		conds = append(conds, "t.label = ?")
		args = append(args, string(f.Type))
	}
	if f.Lifecycle != "" {
		conds = append(conds, "p.lifecycle_status = ?")
		args = append(args, string(f.Lifecycle))
	}
	if f.Availability != "" {
		conds = append(conds, "p.availability_state = ?")
		args = append(args, string(f.Availability))
	}
	if f.LocationLabel != "" || f.SourceRole != "" {
		sub := `EXISTS (SELECT 1 FROM data_prod_source s JOIN location l ON l.pk = s.location_fk
			WHERE s.data_prod_fk = p.pk`
		if f.LocationLabel != "" {
			sub += " AND l.label = ?"
			args = append(args, f.LocationLabel)
		}
		if f.SourceRole != "" {
			sub += " AND s.role = ?"
			args = append(args, string(f.SourceRole))
		}
		conds = append(conds, sub+")")
	}
	if f.HasKind != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM data_prod_data_kind dk JOIN data_kind k ON k.pk = dk.data_kind_fk
			WHERE dk.data_prod_fk = p.pk AND k.label = ?)`)
		args = append(args, f.HasKind)
	}
	if f.HasFlag != nil {
		conds = append(conds, `EXISTS (SELECT 1 FROM data_prod_flag pf JOIN flag fl ON fl.pk = pf.flag_fk
			WHERE pf.data_prod_fk = p.pk AND fl.namespace = ? AND fl.label = ?)`)
		args = append(args, f.HasFlag.Namespace, f.HasFlag.Label)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	var typ, lifecycle, availability, meta, created, updated string
	var contentHash sql.NullString
	if err := row.Scan(&p.ID, &typ, &lifecycle, &availability, &contentHash, &meta, &created, &updated); err != nil {
		return nil, err
	}
	m, err := domain.DecodeMetadata([]byte(meta))
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", p.ID, err)
	}
	p.Type = domain.ProductTypeLabel(typ)
	p.Lifecycle = domain.LifecycleStatus(lifecycle)
	p.Availability = domain.AvailabilityState(availability)
	p.ContentHash = stringPtr(contentHash)
	p.Meta = m
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

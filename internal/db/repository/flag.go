package repository

import (
	"context"
	"database/sql"
	"fmt"

	"toltec-dpdb/internal/domain"
)

// FlagRepo persists flag definitions and assignments.
type FlagRepo struct {
	db DBTX
}

func NewFlagRepo(db DBTX) *FlagRepo {
	return &FlagRepo{db: db}
}

// WithTx returns a FlagRepo bound to tx.
func (r *FlagRepo) WithTx(tx *sql.Tx) *FlagRepo { return &FlagRepo{db: tx} }

// Create defines a flag. A duplicate (namespace, label) is an IntegrityError.
func (r *FlagRepo) Create(ctx context.Context, f domain.Flag) (*domain.Flag, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO flag (namespace, label, description) VALUES (?, ?, ?)`,
		f.Namespace, f.Label, f.Description)
	if err != nil {
		return nil, mapDBError(err, fmt.Sprintf("flag %s", f.Ref()))
	}
	if f.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Get resolves a flag reference or returns a NotFoundError.
func (r *FlagRepo) Get(ctx context.Context, ref domain.FlagRef) (*domain.Flag, error) {
	var f domain.Flag
	err := r.db.QueryRowContext(ctx,
		`SELECT pk, namespace, label, COALESCE(description, '') FROM flag WHERE namespace = ? AND label = ?`,
		ref.Namespace, ref.Label).Scan(&f.ID, &f.Namespace, &f.Label, &f.Description)
	if err != nil {
		return nil, mapDBError(err, fmt.Sprintf("flag %s", ref))
	}
	return &f, nil
}

// List returns flag definitions, optionally within one namespace.
func (r *FlagRepo) List(ctx context.Context, namespace string) ([]domain.Flag, error) {
	query := `SELECT pk, namespace, label, COALESCE(description, '') FROM flag`
	var args []interface{}
	if namespace != "" {
		query += ` WHERE namespace = ?`
		args = append(args, namespace)
	}
	query += ` ORDER BY namespace, pk`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Flag
	for rows.Next() {
		var f domain.Flag
		if err := rows.Scan(&f.ID, &f.Namespace, &f.Label, &f.Description); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Assert records the latest assertion of flagID on a product.
func (r *FlagRepo) Assert(ctx context.Context, flagID int64, a domain.FlagAssignment) error {
	ctxJSON, err := toJSON(a.Context)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO data_prod_flag (data_prod_fk, flag_fk, asserted_at, asserted_by, context)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(data_prod_fk, flag_fk) DO UPDATE SET
		     asserted_at = excluded.asserted_at,
		     asserted_by = excluded.asserted_by,
		     context     = excluded.context`,
		a.ProductID, flagID, formatTime(a.AssertedAt), a.AssertedBy, ctxJSON)
	if err != nil {
		return mapDBError(err, fmt.Sprintf("flag %s on product %s", a.Flag, a.ProductID))
	}
	return nil
}

// ListForProduct returns the flags asserted on a product.
func (r *FlagRepo) ListForProduct(ctx context.Context, productID string) ([]domain.FlagAssignment, error) {
	return r.assignments(ctx, `pf.data_prod_fk = ?`, productID)
}

// ListForFlag returns every assertion of one flag.
func (r *FlagRepo) ListForFlag(ctx context.Context, flagID int64) ([]domain.FlagAssignment, error) {
	return r.assignments(ctx, `pf.flag_fk = ?`, flagID)
}

func (r *FlagRepo) assignments(ctx context.Context, cond string, arg interface{}) ([]domain.FlagAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT pf.data_prod_fk, f.namespace, f.label, pf.asserted_by, pf.asserted_at, pf.context
		 FROM data_prod_flag pf JOIN flag f ON f.pk = pf.flag_fk
		 WHERE `+cond+` ORDER BY pf.asserted_at, f.pk`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FlagAssignment
	for rows.Next() {
		var a domain.FlagAssignment
		var asserted, ctxJSON string
		if err := rows.Scan(&a.ProductID, &a.Flag.Namespace, &a.Flag.Label, &a.AssertedBy, &asserted, &ctxJSON); err != nil {
			return nil, err
		}
		a.AssertedAt = parseTime(asserted)
		if err := fromJSON(ctxJSON, &a.Context); err != nil {
			return nil, fmt.Errorf("flag assignment context: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

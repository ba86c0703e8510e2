package repository

import (
	"context"
	"database/sql"
	"fmt"

	"toltec-dpdb/internal/domain"
)

// RegistryRepo reads the product type, data kind and edge type registries.
type RegistryRepo struct {
	db DBTX
}

func NewRegistryRepo(db DBTX) *RegistryRepo {
	return &RegistryRepo{db: db}
}

// WithTx returns a RegistryRepo bound to tx.
func (r *RegistryRepo) WithTx(tx *sql.Tx) *RegistryRepo { return &RegistryRepo{db: tx} }

// ProductTypeID resolves a product type label to its key.
func (r *RegistryRepo) ProductTypeID(ctx context.Context, label domain.ProductTypeLabel) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT pk FROM data_prod_type WHERE label = ?`, string(label)).Scan(&id)
	if err != nil {
		return 0, mapDBError(err, fmt.Sprintf("product type %q", label))
	}
	return id, nil
}

// DataKindID resolves a data kind label to its key.
func (r *RegistryRepo) DataKindID(ctx context.Context, label string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT pk FROM data_kind WHERE label = ?`, label).Scan(&id)
	if err != nil {
		return 0, mapDBError(err, fmt.Sprintf("data kind %q", label))
	}
	return id, nil
}

// EdgeTypeID resolves an edge type label to its key.
func (r *RegistryRepo) EdgeTypeID(ctx context.Context, label domain.EdgeTypeLabel) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT pk FROM data_prod_assoc_type WHERE label = ?`, string(label)).Scan(&id)
	if err != nil {
		return 0, mapDBError(err, fmt.Sprintf("edge type %q", label))
	}
	return id, nil
}

// RegisterEdgeType adds a new edge type. Duplicate labels are IntegrityErrors.
func (r *RegistryRepo) RegisterEdgeType(ctx context.Context, et domain.EdgeType) (*domain.EdgeType, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO data_prod_assoc_type (label, description) VALUES (?, ?)`,
		string(et.Label), et.Description)
	if err != nil {
		return nil, mapDBError(err, fmt.Sprintf("edge type %q", et.Label))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	et.ID = id
	return &et, nil
}

// ListProductTypes returns the product type registry ordered by level and label.
func (r *RegistryRepo) ListProductTypes(ctx context.Context) ([]domain.ProductType, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT pk, label, level, COALESCE(description, '') FROM data_prod_type ORDER BY level, label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ProductType
	for rows.Next() {
		var pt domain.ProductType
		var label string
		if err := rows.Scan(&pt.ID, &label, &pt.Level, &pt.Description); err != nil {
			return nil, err
		}
		pt.Label = domain.ProductTypeLabel(label)
		out = append(out, pt)
	}
	return out, rows.Err()
}

// ListDataKinds returns the data kind registry.
func (r *RegistryRepo) ListDataKinds(ctx context.Context) ([]domain.DataKind, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT pk, label, category, COALESCE(description, '') FROM data_kind ORDER BY pk`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DataKind
	for rows.Next() {
		var k domain.DataKind
		if err := rows.Scan(&k.ID, &k.Label, &k.Category, &k.Description); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// ListEdgeTypes returns the edge type registry.
func (r *RegistryRepo) ListEdgeTypes(ctx context.Context) ([]domain.EdgeType, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT pk, label, COALESCE(description, '') FROM data_prod_assoc_type ORDER BY pk`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EdgeType
	for rows.Next() {
		var et domain.EdgeType
		var label string
		if err := rows.Scan(&et.ID, &label, &et.Description); err != nil {
			return nil, err
		}
		et.Label = domain.EdgeTypeLabel(label)
		out = append(out, et)
	}
	return out, rows.Err()
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"toltec-dpdb/internal/domain"
)

// KindRepo persists data kind assignments.
type KindRepo struct {
	db DBTX
}

func NewKindRepo(db DBTX) *KindRepo {
	return &KindRepo{db: db}
}

// WithTx returns a KindRepo bound to tx.
func (r *KindRepo) WithTx(tx *sql.Tx) *KindRepo { return &KindRepo{db: tx} }

// Attach assigns a kind to a product, refreshing source and confidence when
// the pair already exists.
func (r *KindRepo) Attach(ctx context.Context, kindID int64, a domain.KindAssignment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO data_prod_data_kind (data_prod_fk, data_kind_fk, applied_at, source, confidence)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(data_prod_fk, data_kind_fk) DO UPDATE SET
		     applied_at = excluded.applied_at,
		     source     = excluded.source,
		     confidence = excluded.confidence`,
		a.ProductID, kindID, formatTime(a.AppliedAt), string(a.Source), a.Confidence)
	if err != nil {
		return mapDBError(err, fmt.Sprintf("kind %s on product %s", a.KindLabel, a.ProductID))
	}
	return nil
}

// ListForProduct returns the kinds attached to a product.
func (r *KindRepo) ListForProduct(ctx context.Context, productID string) ([]domain.KindAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT k.label, dk.source, dk.confidence, dk.applied_at
		 FROM data_prod_data_kind dk JOIN data_kind k ON k.pk = dk.data_kind_fk
		 WHERE dk.data_prod_fk = ? ORDER BY k.pk`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.KindAssignment
	for rows.Next() {
		a := domain.KindAssignment{ProductID: productID}
		var source, applied string
		if err := rows.Scan(&a.KindLabel, &source, &a.Confidence, &applied); err != nil {
			return nil, err
		}
		a.Source = domain.KindSource(source)
		a.AppliedAt = parseTime(applied)
		out = append(out, a)
	}
	return out, rows.Err()
}

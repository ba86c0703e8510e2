package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"toltec-dpdb/internal/domain"
)

// EdgeRepo persists provenance edges.
type EdgeRepo struct {
	db DBTX
}

func NewEdgeRepo(db DBTX) *EdgeRepo {
	return &EdgeRepo{db: db}
}

// WithTx returns an EdgeRepo bound to tx.
func (r *EdgeRepo) WithTx(tx *sql.Tx) *EdgeRepo { return &EdgeRepo{db: tx} }

// Add inserts an edge. Re-adding the same (type, src, dst) refreshes its
// context and returns the existing row.
func (r *EdgeRepo) Add(ctx context.Context, typeID int64, e domain.ProvenanceEdge, now time.Time) (*domain.ProvenanceEdge, error) {
	ctxJSON, err := toJSON(e.Context)
	if err != nil {
		return nil, err
	}
	var created string
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO data_prod_assoc (data_prod_assoc_type_fk, src_data_prod_fk, dst_data_prod_fk, context, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(data_prod_assoc_type_fk, src_data_prod_fk, dst_data_prod_fk)
		 DO UPDATE SET context = excluded.context
		 RETURNING pk, created_at`,
		typeID, e.SrcID, e.DstID, ctxJSON, formatTime(now)).Scan(&e.ID, &created)
	if err != nil {
		return nil, mapDBError(err, fmt.Sprintf("edge %s %s->%s", e.Type, e.SrcID, e.DstID))
	}
	e.CreatedAt = parseTime(created)
	return &e, nil
}

// From returns edges whose source is productID, optionally of one type.
func (r *EdgeRepo) From(ctx context.Context, productID string, typ domain.EdgeTypeLabel) ([]domain.ProvenanceEdge, error) {
	return r.list(ctx, "a.src_data_prod_fk", productID, typ)
}

// To returns edges whose destination is productID, optionally of one type.
func (r *EdgeRepo) To(ctx context.Context, productID string, typ domain.EdgeTypeLabel) ([]domain.ProvenanceEdge, error) {
	return r.list(ctx, "a.dst_data_prod_fk", productID, typ)
}

func (r *EdgeRepo) list(ctx context.Context, column, productID string, typ domain.EdgeTypeLabel) ([]domain.ProvenanceEdge, error) {
	query := `SELECT a.pk, t.label, a.src_data_prod_fk, a.dst_data_prod_fk, a.context, a.created_at
		FROM data_prod_assoc a JOIN data_prod_assoc_type t ON t.pk = a.data_prod_assoc_type_fk
		WHERE ` + column + ` = ?`
	args := []interface{}{productID}
	if typ != "" {
		query += ` AND t.label = ?`
		args = append(args, string(typ))
	}
	query += ` ORDER BY a.pk`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ProvenanceEdge
	for rows.Next() {
		var e domain.ProvenanceEdge
		var label, ctxJSON, created string
		if err := rows.Scan(&e.ID, &label, &e.SrcID, &e.DstID, &ctxJSON, &created); err != nil {
			return nil, err
		}
		e.Type = domain.EdgeTypeLabel(label)
		e.CreatedAt = parseTime(created)
		if err := fromJSON(ctxJSON, &e.Context); err != nil {
			return nil, fmt.Errorf("edge %d context: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

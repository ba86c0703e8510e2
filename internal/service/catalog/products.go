package catalog

import (
	"context"
	"errors"

	"toltec-dpdb/internal/domain"
)

// UpsertResult reports the stored product and whether the call created it.
type UpsertResult struct {
	Product *domain.Product
	Created bool
}

// UpsertProduct inserts a product or, when the identity already exists,
// updates its status, availability, metadata and content hash. created_at
// and the identity never change.
func (s *Store) UpsertProduct(ctx context.Context, u domain.ProductUpsert) (*UpsertResult, error) {
	if s.readOnly {
		return nil, domain.ErrReadOnly("upsert product")
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}

	var res *UpsertResult
	err := s.WithTx(ctx, "upsert product", func(tx *Tx) error {
		r, err := upsertProduct(ctx, tx, u)
		res = r
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("product upserted", "id", u.ID, "type", u.Type, "created", res.Created)
	return res, nil
}

// UpsertWithSource stores a product together with one source and optional
// kind bits in a single transaction. Metadata accumulated from earlier
// sources of the same product is merged, see domain.MergeMeta. The
// product's availability is derived from all of its sources, so the stored
// state does not depend on ingest order.
func (s *Store) UpsertWithSource(ctx context.Context, u domain.ProductUpsert, src domain.Source, kinds domain.DataKindBits) (*UpsertResult, error) {
	if s.readOnly {
		return nil, domain.ErrReadOnly("upsert product with source")
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	src.ProductID = u.ID
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if !kinds.Known() {
		return nil, domain.ErrValidation("unknown data kind bits %#x", uint32(kinds))
	}

	var res *UpsertResult
	err := s.WithTx(ctx, "upsert product with source", func(tx *Tx) error {
		prev, err := tx.Products.Get(ctx, u.ID)
		var nf *domain.NotFoundError
		switch {
		case err == nil:
			u.Meta = domain.MergeMeta(prev.Meta, u.Meta)
		case !errors.As(err, &nf):
			return err
		}
		r, err := upsertProduct(ctx, tx, u)
		if err != nil {
			return err
		}
		res = r
		if err := attachSource(ctx, tx, src); err != nil {
			return err
		}
		if res.Product.Availability, err = reconcileAvailability(ctx, tx, u.ID); err != nil {
			return err
		}
		for _, label := range kinds.Labels() {
			a := domain.KindAssignment{
				ProductID:  u.ID,
				KindLabel:  label,
				Source:     domain.KindSourceAutomatic,
				Confidence: 1,
				AppliedAt:  tx.Now,
			}
			if err := attachKind(ctx, tx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("product upserted with source",
		"id", u.ID, "type", u.Type, "uri", src.URI, "created", res.Created)
	return res, nil
}

func upsertProduct(ctx context.Context, tx *Tx, u domain.ProductUpsert) (*UpsertResult, error) {
	typeID, err := tx.Registry.ProductTypeID(ctx, u.Type)
	if err != nil {
		return nil, err
	}
	existed, err := tx.Products.Exists(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Products.Upsert(ctx, typeID, u, tx.Now); err != nil {
		return nil, err
	}
	p, err := tx.Products.Get(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	payload := map[string]interface{}{
		"type":         string(u.Type),
		"lifecycle":    string(u.Lifecycle),
		"availability": string(u.Availability),
		"created":      !existed,
	}
	if err := tx.Emit(ctx, domain.EventProductUpserted, domain.EntityProduct, u.ID, payload); err != nil {
		return nil, err
	}
	return &UpsertResult{Product: p, Created: !existed}, nil
}

// GetProduct returns the product with the given identity.
func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if id == "" {
		return nil, domain.ErrValidation("product id is required")
	}
	return s.products().Get(ctx, id)
}

// ListProducts returns one page of products matching f, the token for the
// next page ("" when exhausted) and the total match count.
func (s *Store) ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, string, int64, error) {
	if f.Lifecycle != "" && !f.Lifecycle.Valid() {
		return nil, "", 0, domain.ErrValidation("invalid lifecycle filter %q", f.Lifecycle)
	}
	if f.Availability != "" && !f.Availability.Valid() {
		return nil, "", 0, domain.ErrValidation("invalid availability filter %q", f.Availability)
	}
	if f.SourceRole != "" && !f.SourceRole.Valid() {
		return nil, "", 0, domain.ErrValidation("invalid source role filter %q", f.SourceRole)
	}
	items, total, err := s.products().List(ctx, f)
	if err != nil {
		return nil, "", 0, err
	}
	return items, domain.NextPageToken(f.Page.Offset(), f.Page.Limit(), total), total, nil
}

// Supersede marks a product SUPERSEDED. Superseding twice is a no-op.
func (s *Store) Supersede(ctx context.Context, id string) error {
	return s.WithTx(ctx, "supersede product", func(tx *Tx) error {
		p, err := tx.Products.Get(ctx, id)
		if err != nil {
			return err
		}
		if p.Lifecycle == domain.LifecycleSuperseded {
			return nil
		}
		if err := tx.Products.SetLifecycle(ctx, id, domain.LifecycleSuperseded, tx.Now); err != nil {
			return err
		}
		return tx.Emit(ctx, domain.EventProductSuperseded, domain.EntityProduct, id, nil)
	})
}

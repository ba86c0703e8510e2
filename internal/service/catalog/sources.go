package catalog

import (
	"context"

	"toltec-dpdb/internal/domain"
)

// RegisterLocation adds a data root. A duplicate label is an IntegrityError.
func (s *Store) RegisterLocation(ctx context.Context, loc domain.Location) (*domain.Location, error) {
	if s.readOnly {
		return nil, domain.ErrReadOnly("register location")
	}
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	var out *domain.Location
	err := s.WithTx(ctx, "register location", func(tx *Tx) error {
		created, err := tx.Locations.Create(ctx, loc, tx.Now)
		if err != nil {
			return err
		}
		out = created
		return tx.Emit(ctx, domain.EventLocationRegistered, domain.EntityLocation, loc.Label, map[string]interface{}{
			"type":     string(loc.Type),
			"root_uri": loc.RootURI,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("location registered", "label", loc.Label, "type", loc.Type, "root", loc.RootURI)
	return out, nil
}

// GetLocation looks up a location by label.
func (s *Store) GetLocation(ctx context.Context, label string) (*domain.Location, error) {
	return s.locations().GetByLabel(ctx, label)
}

// ListLocations returns every registered location ordered by priority.
func (s *Store) ListLocations(ctx context.Context) ([]domain.Location, error) {
	return s.locations().List(ctx)
}

// AttachSource binds a retrieval location to an existing product. Rebinding
// the same URI to the same product refreshes it; binding it to another
// product is an IntegrityError.
func (s *Store) AttachSource(ctx context.Context, src domain.Source) error {
	if s.readOnly {
		return domain.ErrReadOnly("attach source")
	}
	if src.ProductID == "" {
		return domain.ErrValidation("source %s: product id is required", src.URI)
	}
	if err := src.Validate(); err != nil {
		return err
	}
	return s.WithTx(ctx, "attach source", func(tx *Tx) error {
		if _, err := tx.Products.Get(ctx, src.ProductID); err != nil {
			return err
		}
		return attachSource(ctx, tx, src)
	})
}

func attachSource(ctx context.Context, tx *Tx, src domain.Source) error {
	loc, err := tx.Locations.GetByLabel(ctx, src.LocationLabel)
	if err != nil {
		return err
	}
	if err := tx.Sources.Upsert(ctx, loc.ID, src, tx.Now); err != nil {
		return err
	}
	return tx.Emit(ctx, domain.EventSourceAttached, domain.EntitySource, src.URI, map[string]interface{}{
		"product_id":   src.ProductID,
		"location":     src.LocationLabel,
		"role":         string(src.Role),
		"availability": string(src.Availability),
	})
}

// ListSources returns every source of a product.
func (s *Store) ListSources(ctx context.Context, productID string) ([]domain.Source, error) {
	if _, err := s.products().Get(ctx, productID); err != nil {
		return nil, err
	}
	return s.sources().ListForProduct(ctx, productID)
}

// RecordVerification stores the outcome of re-checking a source. When no
// source of the product remains available the product itself is marked
// MISSING; an available source restores it to AVAILABLE.
func (s *Store) RecordVerification(ctx context.Context, v domain.SourceVerification) error {
	if !v.Availability.Valid() {
		return domain.ErrValidation("source %s: invalid availability %q", v.URI, v.Availability)
	}
	return s.WithTx(ctx, "record verification", func(tx *Tx) error {
		src, err := tx.Sources.Get(ctx, v.URI)
		if err != nil {
			return err
		}
		if err := tx.Sources.UpdateVerification(ctx, v); err != nil {
			return err
		}
		if err := tx.Emit(ctx, domain.EventSourceVerified, domain.EntitySource, v.URI, map[string]interface{}{
			"product_id":   src.ProductID,
			"availability": string(v.Availability),
		}); err != nil {
			return err
		}

		_, err = reconcileAvailability(ctx, tx, src.ProductID)
		return err
	})
}

// reconcileAvailability derives a product's availability from all of its
// sources: AVAILABLE when any source is, MISSING otherwise.
func reconcileAvailability(ctx context.Context, tx *Tx, productID string) (domain.AvailabilityState, error) {
	all, err := tx.Sources.ListForProduct(ctx, productID)
	if err != nil {
		return "", err
	}
	state := domain.AvailabilityMissing
	for _, src := range all {
		if src.Availability == domain.AvailabilityAvailable {
			state = domain.AvailabilityAvailable
			break
		}
	}
	if err := tx.Products.SetAvailability(ctx, productID, state, tx.Now); err != nil {
		return "", err
	}
	return state, nil
}

// AttachKind records one data-kind assignment on a product.
func (s *Store) AttachKind(ctx context.Context, a domain.KindAssignment) error {
	if s.readOnly {
		return domain.ErrReadOnly("attach kind")
	}
	if err := a.Validate(); err != nil {
		return err
	}
	return s.WithTx(ctx, "attach kind", func(tx *Tx) error {
		if _, err := tx.Products.Get(ctx, a.ProductID); err != nil {
			return err
		}
		if a.AppliedAt.IsZero() {
			a.AppliedAt = tx.Now
		}
		return attachKind(ctx, tx, a)
	})
}

// AttachKindBits decomposes bits into registered kinds and attaches each.
func (s *Store) AttachKindBits(ctx context.Context, productID string, bits domain.DataKindBits, source domain.KindSource) error {
	if !bits.Known() {
		return domain.ErrValidation("unknown data kind bits %#x", uint32(bits))
	}
	for _, label := range bits.Labels() {
		err := s.AttachKind(ctx, domain.KindAssignment{
			ProductID:  productID,
			KindLabel:  label,
			Source:     source,
			Confidence: 1,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func attachKind(ctx context.Context, tx *Tx, a domain.KindAssignment) error {
	kindID, err := tx.Registry.DataKindID(ctx, a.KindLabel)
	if err != nil {
		return err
	}
	if err := tx.Kinds.Attach(ctx, kindID, a); err != nil {
		return err
	}
	return tx.Emit(ctx, domain.EventKindAttached, domain.EntityProduct, a.ProductID, map[string]interface{}{
		"kind":   a.KindLabel,
		"source": string(a.Source),
	})
}

// ListKinds returns the kinds attached to a product.
func (s *Store) ListKinds(ctx context.Context, productID string) ([]domain.KindAssignment, error) {
	return s.kinds().ListForProduct(ctx, productID)
}

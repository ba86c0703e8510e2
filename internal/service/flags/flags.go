// Package flags manages namespaced quality flags and their assertions on
// products.
package flags

import (
	"context"
	"errors"
	"log/slog"

	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/service/catalog"
)

// FlagService provides flag definition and assertion operations.
type FlagService struct {
	store  *catalog.Store
	logger *slog.Logger
}

// NewFlagService creates a new FlagService.
func NewFlagService(store *catalog.Store) *FlagService {
	return &FlagService{store: store, logger: store.Logger().With("component", "flags")}
}

// DefineFlag registers a new flag. A duplicate (namespace, label) is an
// IntegrityError.
func (s *FlagService) DefineFlag(ctx context.Context, namespace, label, description string) (*domain.Flag, error) {
	if s.store.ReadOnly() {
		return nil, domain.ErrReadOnly("define flag")
	}
	if err := validateRef(domain.FlagRef{Namespace: namespace, Label: label}); err != nil {
		return nil, err
	}

	var out *domain.Flag
	err := s.store.WithTx(ctx, "define flag", func(tx *catalog.Tx) error {
		f, err := tx.Flags.Create(ctx, domain.Flag{Namespace: namespace, Label: label, Description: description})
		if err != nil {
			return err
		}
		out = f
		return tx.Emit(ctx, domain.EventFlagDefined, domain.EntityFlag, f.Ref().String(), nil)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("flag defined", "flag", out.Ref().String())
	return out, nil
}

// EnsureFlag returns the flag, defining it when absent.
func (s *FlagService) EnsureFlag(ctx context.Context, namespace, label, description string) (*domain.Flag, error) {
	f, err := s.store.Flags().Get(ctx, domain.FlagRef{Namespace: namespace, Label: label})
	if err == nil {
		return f, nil
	}
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		return nil, err
	}
	f, err = s.DefineFlag(ctx, namespace, label, description)
	var ie *domain.IntegrityError
	if errors.As(err, &ie) {
		// lost a race with another definer
		return s.store.Flags().Get(ctx, domain.FlagRef{Namespace: namespace, Label: label})
	}
	return f, err
}

// AssertFlag marks product with flag. Re-asserting updates the asserter,
// context and timestamp; every assertion is logged. An empty assertedBy is
// recorded as the system asserter.
func (s *FlagService) AssertFlag(ctx context.Context, productID string, ref domain.FlagRef, assertedBy string, assertCtx map[string]string) error {
	if s.store.ReadOnly() {
		return domain.ErrReadOnly("assert flag")
	}
	if err := validateRef(ref); err != nil {
		return err
	}
	if assertedBy == "" {
		assertedBy = domain.DefaultAsserter
	}

	err := s.store.WithTx(ctx, "assert flag", func(tx *catalog.Tx) error {
		if _, err := tx.Products.Get(ctx, productID); err != nil {
			return err
		}
		f, err := tx.Flags.Get(ctx, ref)
		if err != nil {
			return err
		}
		err = tx.Flags.Assert(ctx, f.ID, domain.FlagAssignment{
			ProductID:  productID,
			Flag:       ref,
			AssertedBy: assertedBy,
			AssertedAt: tx.Now,
			Context:    assertCtx,
		})
		if err != nil {
			return err
		}
		return tx.Emit(ctx, domain.EventFlagAsserted, domain.EntityProduct, productID, map[string]interface{}{
			"flag":        ref.String(),
			"asserted_by": assertedBy,
		})
	})
	if err != nil {
		return err
	}
	s.logger.Debug("flag asserted", "product", productID, "flag", ref.String(), "by", assertedBy)
	return nil
}

// FlagsFor returns the flags asserted on a product.
func (s *FlagService) FlagsFor(ctx context.Context, productID string) ([]domain.FlagAssignment, error) {
	if _, err := s.store.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.store.Flags().ListForProduct(ctx, productID)
}

// ProductsWithFlag returns every assertion of one flag.
func (s *FlagService) ProductsWithFlag(ctx context.Context, ref domain.FlagRef) ([]domain.FlagAssignment, error) {
	f, err := s.store.Flags().Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.store.Flags().ListForFlag(ctx, f.ID)
}

// ListFlags returns flag definitions, optionally in one namespace.
func (s *FlagService) ListFlags(ctx context.Context, namespace string) ([]domain.Flag, error) {
	return s.store.Flags().List(ctx, namespace)
}

func validateRef(ref domain.FlagRef) error {
	if ref.Namespace == "" || ref.Label == "" {
		return domain.ErrValidation("flag namespace and label are required")
	}
	return nil
}

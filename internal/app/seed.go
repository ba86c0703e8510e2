package app

import (
	"context"
	"errors"

	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/service/catalog"
)

// SeedLocations registers every location not already in the catalog and
// returns the labels it added. Existing locations are left untouched.
func SeedLocations(ctx context.Context, store *catalog.Store, locs []domain.Location) ([]string, error) {
	registered := []string{}
	for _, loc := range locs {
		_, err := store.GetLocation(ctx, loc.Label)
		if err == nil {
			continue
		}
		var nf *domain.NotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
		if _, err := store.RegisterLocation(ctx, loc); err != nil {
			return nil, err
		}
		registered = append(registered, loc.Label)
	}
	return registered, nil
}

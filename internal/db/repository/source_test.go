package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "toltec-dpdb/internal/db"
	"toltec-dpdb/internal/domain"
)

func TestSourceRepo_RebindToOtherProductIsIntegrityError(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	ctx := context.Background()
	seedProduct(t, writeDB, "p1", 1)
	seedProduct(t, writeDB, "p2", 2)

	loc, err := NewLocationRepo(writeDB).Create(ctx, domain.Location{
		Label: "lmt", Type: domain.LocationFilesystem, RootURI: "file:///data_lmt",
	}, t0)
	require.NoError(t, err)

	repo := NewSourceRepo(writeDB)
	src := domain.Source{
		URI: "file:///data_lmt/toltec0.nc", ProductID: "p1", LocationLabel: "lmt",
		Role: domain.RolePrimary, Availability: domain.AvailabilityAvailable,
	}
	require.NoError(t, repo.Upsert(ctx, loc.ID, src, t0))

	size := int64(42)
	src.Size = &size
	require.NoError(t, repo.Upsert(ctx, loc.ID, src, t0), "same product is an idempotent refresh")

	src.ProductID = "p2"
	err = repo.Upsert(ctx, loc.ID, src, t0)
	var ierr *domain.IntegrityError
	require.ErrorAs(t, err, &ierr)

	got, err := repo.Get(ctx, src.URI)
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ProductID)
	require.NotNil(t, got.Size)
	assert.Equal(t, int64(42), *got.Size)
}

func TestSourceRepo_UnknownProductIsNotFound(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	ctx := context.Background()
	loc, err := NewLocationRepo(writeDB).Create(ctx, domain.Location{
		Label: "lmt", Type: domain.LocationFilesystem, RootURI: "file:///data_lmt",
	}, t0)
	require.NoError(t, err)

	err = NewSourceRepo(writeDB).Upsert(ctx, loc.ID, domain.Source{
		URI: "x", ProductID: "ghost", LocationLabel: "lmt",
		Role: domain.RolePrimary, Availability: domain.AvailabilityAvailable,
	}, t0)
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestLocationRepo_DuplicateLabel(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	ctx := context.Background()
	repo := NewLocationRepo(writeDB)
	loc := domain.Location{Label: "lmt", Type: domain.LocationFilesystem, RootURI: "file:///a", Meta: map[string]string{"site": "lmt"}}

	_, err := repo.Create(ctx, loc, t0)
	require.NoError(t, err)
	_, err = repo.Create(ctx, loc, t0)
	var ierr *domain.IntegrityError
	require.ErrorAs(t, err, &ierr)

	got, err := repo.GetByLabel(ctx, "lmt")
	require.NoError(t, err)
	assert.Equal(t, "lmt", got.Meta["site"])

	_, err = repo.GetByLabel(ctx, "unknown")
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestSourceRepo_UpdateVerification(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	ctx := context.Background()
	seedProduct(t, writeDB, "p1", 1)
	loc, err := NewLocationRepo(writeDB).Create(ctx, domain.Location{
		Label: "lmt", Type: domain.LocationFilesystem, RootURI: "file:///a",
	}, t0)
	require.NoError(t, err)

	repo := NewSourceRepo(writeDB)
	require.NoError(t, repo.Upsert(ctx, loc.ID, domain.Source{
		URI: "file:///a/x.nc", ProductID: "p1", LocationLabel: "lmt",
		Role: domain.RolePrimary, Availability: domain.AvailabilityAvailable,
	}, t0))

	require.NoError(t, repo.UpdateVerification(ctx, domain.SourceVerification{
		URI: "file:///a/x.nc", Availability: domain.AvailabilityMissing, VerifiedAt: t0,
	}))
	srcs, err := repo.ListForProduct(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, srcs, 1)
	assert.Equal(t, domain.AvailabilityMissing, srcs[0].Availability)
	require.NotNil(t, srcs[0].LastVerifiedAt)
	assert.Equal(t, t0, *srcs[0].LastVerifiedAt)

	err = repo.UpdateVerification(ctx, domain.SourceVerification{URI: "nope", Availability: domain.AvailabilityMissing, VerifiedAt: t0})
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

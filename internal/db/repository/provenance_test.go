package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "toltec-dpdb/internal/db"
	"toltec-dpdb/internal/domain"
)

func TestEdgeRepo_DirectionalLookups(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	ctx := context.Background()
	for i, id := range []string{"raw1", "raw2", "cal"} {
		seedProduct(t, writeDB, id, i)
	}
	reg := NewRegistryRepo(writeDB)
	calType, err := reg.EdgeTypeID(ctx, domain.EdgeRawObsCalObs)
	require.NoError(t, err)
	grpType, err := reg.EdgeTypeID(ctx, domain.EdgeNamedGroupProduct)
	require.NoError(t, err)

	repo := NewEdgeRepo(writeDB)
	_, err = repo.Add(ctx, calType, domain.ProvenanceEdge{Type: domain.EdgeRawObsCalObs, SrcID: "raw1", DstID: "cal"}, t0)
	require.NoError(t, err)
	_, err = repo.Add(ctx, calType, domain.ProvenanceEdge{Type: domain.EdgeRawObsCalObs, SrcID: "raw2", DstID: "cal"}, t0)
	require.NoError(t, err)
	// cycles are allowed
	_, err = repo.Add(ctx, calType, domain.ProvenanceEdge{Type: domain.EdgeRawObsCalObs, SrcID: "cal", DstID: "raw1"}, t0)
	require.NoError(t, err)
	_, err = repo.Add(ctx, grpType, domain.ProvenanceEdge{Type: domain.EdgeNamedGroupProduct, SrcID: "raw1", DstID: "cal"}, t0)
	require.NoError(t, err)

	to, err := repo.To(ctx, "cal", domain.EdgeRawObsCalObs)
	require.NoError(t, err)
	assert.Len(t, to, 2)

	all, err := repo.To(ctx, "cal", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	from, err := repo.From(ctx, "cal", domain.EdgeRawObsCalObs)
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "raw1", from[0].DstID)
}

func TestEdgeRepo_ReAddIsIdempotent(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	ctx := context.Background()
	seedProduct(t, writeDB, "a", 1)
	seedProduct(t, writeDB, "b", 2)
	typeID, err := NewRegistryRepo(writeDB).EdgeTypeID(ctx, domain.EdgeReducedObsRawObs)
	require.NoError(t, err)

	repo := NewEdgeRepo(writeDB)
	e := domain.ProvenanceEdge{Type: domain.EdgeReducedObsRawObs, SrcID: "a", DstID: "b", Context: domain.EdgeContext{Tool: "citlali", Version: "1"}}
	first, err := repo.Add(ctx, typeID, e, t0)
	require.NoError(t, err)
	e.Context.Version = "2"
	second, err := repo.Add(ctx, typeID, e, t0)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	edges, err := repo.From(ctx, "a", "")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "2", edges[0].Context.Version)
}

func TestEdgeRepo_MissingEndpoint(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	ctx := context.Background()
	seedProduct(t, writeDB, "a", 1)
	typeID, err := NewRegistryRepo(writeDB).EdgeTypeID(ctx, domain.EdgeReducedObsRawObs)
	require.NoError(t, err)

	_, err = NewEdgeRepo(writeDB).Add(ctx, typeID, domain.ProvenanceEdge{SrcID: "a", DstID: "ghost"}, t0)
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

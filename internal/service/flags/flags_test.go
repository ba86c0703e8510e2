package flags

import (
	"context"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "toltec-dpdb/internal/db"
	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/identity"
	"toltec-dpdb/internal/service/catalog"
)

func setup(t *testing.T) (*FlagService, *catalog.Store, string) {
	t.Helper()
	writeDB, readDB := internaldb.OpenTestSQLite(t)
	store := catalog.New(writeDB, readDB)

	key := domain.ObservationKey{Master: "tcs", ObsNum: 17}
	id, err := identity.RawObsID(key)
	require.NoError(t, err)
	_, err = store.UpsertProduct(context.Background(), domain.ProductUpsert{
		ID: id, Type: domain.TypeRawObs,
		Lifecycle: domain.LifecycleActive, Availability: domain.AvailabilityAvailable,
		Meta: domain.RawObsMeta{Name: key.String(), Master: "tcs", ObsNum: 17},
	})
	require.NoError(t, err)
	return NewFlagService(store), store, id
}

func TestDefineFlag_Duplicate(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.DefineFlag(ctx, "qa", "noisy", "elevated noise")
	require.NoError(t, err)
	_, err = svc.DefineFlag(ctx, "qa", "noisy", "again")
	var ie *domain.IntegrityError
	assert.ErrorAs(t, err, &ie)

	f, err := svc.EnsureFlag(ctx, "qa", "noisy", "")
	require.NoError(t, err)
	assert.Equal(t, "elevated noise", f.Description)
}

func TestSeverityFlagsSeeded(t *testing.T) {
	svc, _, _ := setup(t)
	flags, err := svc.ListFlags(context.Background(), domain.SeverityNamespace)
	require.NoError(t, err)
	var labels []string
	for _, f := range flags {
		labels = append(labels, f.Label)
	}
	assert.Equal(t, domain.SeverityLabels, labels)
}

func TestAssertFlag_IdempotentPerPair(t *testing.T) {
	svc, store, pid := setup(t)
	ctx := context.Background()
	ref := domain.FlagRef{Namespace: domain.SeverityNamespace, Label: "WARN"}

	require.NoError(t, svc.AssertFlag(ctx, pid, ref, "", map[string]string{"reason": "first"}))
	require.NoError(t, svc.AssertFlag(ctx, pid, ref, "qa-bot", map[string]string{"reason": "second"}))

	got, err := svc.FlagsFor(ctx, pid)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "qa-bot", got[0].AssertedBy)
	assert.Equal(t, "second", got[0].Context["reason"])

	with, err := svc.ProductsWithFlag(ctx, ref)
	require.NoError(t, err)
	require.Len(t, with, 1)
	assert.Equal(t, pid, with[0].ProductID)

	events, err := store.ListEvents(ctx, domain.EntityProduct, pid)
	require.NoError(t, err)
	var asserted int
	for _, e := range events {
		if e.Type == domain.EventFlagAsserted {
			asserted++
		}
	}
	assert.Equal(t, 2, asserted)

	items, _, _, err := store.ListProducts(ctx, domain.ProductFilter{HasFlag: &ref})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestAssertFlag_NotFound(t *testing.T) {
	svc, _, pid := setup(t)
	ctx := context.Background()
	var nf *domain.NotFoundError

	assert.ErrorAs(t, svc.AssertFlag(ctx, pid, domain.FlagRef{Namespace: "qa", Label: "nope"}, "", nil), &nf)
	assert.ErrorAs(t, svc.AssertFlag(ctx, "missing", domain.FlagRef{Namespace: domain.SeverityNamespace, Label: "INFO"}, "", nil), &nf)
	_, err := svc.ProductsWithFlag(ctx, domain.FlagRef{Namespace: "qa", Label: "nope"})
	assert.ErrorAs(t, err, &nf)
}

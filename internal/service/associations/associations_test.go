package associations

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

func obs(obsnum, subobsnum int, kind domain.DataKindBits, goal string) Observation {
	key := domain.ObservationKey{Master: "toltec", ObsNum: obsnum, SubObsNum: subobsnum}
	return Observation{
		ID: identity.MustHash(domain.TypeRawObs, identity.RawObsFields(key)),
		Meta: domain.RawObsMeta{
			Name: key.String(), Master: "toltec", ObsNum: obsnum, SubObsNum: subobsnum,
			DataKind: kind, ObsGoal: goal,
		},
		Availability: domain.AvailabilityAvailable,
	}
}

func memberNums(g Group) []int {
	var out []int
	for _, m := range g.Members {
		out = append(out, m.Meta.ObsNum)
	}
	return out
}

func TestCalGroupCollator(t *testing.T) {
	in := []Observation{
		obs(1, 0, domain.KindTune, ""),
		obs(2, 0, domain.KindVnaSweep, ""),
		obs(3, 0, domain.KindTargetSweep, ""),
		obs(4, 0, domain.KindTune, ""),
		obs(5, 0, domain.KindRawTimeStream, ""),
		obs(6, 0, domain.KindVnaSweep, ""),
		obs(7, 0, domain.KindVnaSweep, ""),
		obs(8, 0, domain.KindTargetSweep, ""),
	}

	groups := CalGroupCollator{}.Collate(in)
	require.Len(t, groups, 2)

	assert.Equal(t, []int{2, 3, 4}, memberNums(groups[0]))
	assert.Equal(t, domain.TypeCalGroup, groups[0].Type)
	assert.Equal(t, domain.EdgeCalGroupRawObs, groups[0].Edge)
	meta := groups[0].Meta.(domain.CalGroupMeta)
	assert.Equal(t, "toltec-2-g1-cal", meta.Name)
	assert.Equal(t, 3, meta.NItems)
	assert.Equal(t, "auto", meta.GroupType)

	assert.Equal(t, []int{7, 8}, memberNums(groups[1]))
	assert.NotEqual(t, groups[0].ID, groups[1].ID)
}

func TestCalGroupCollator_SameObsNumNumbersGroups(t *testing.T) {
	in := []Observation{
		obs(9, 0, domain.KindVnaSweep, ""),
		obs(9, 1, domain.KindTargetSweep, ""),
		obs(9, 2, domain.KindVnaSweep, ""),
		obs(9, 3, domain.KindTune, ""),
	}
	groups := CalGroupCollator{}.Collate(in)
	require.Len(t, groups, 2)
	assert.Equal(t, "toltec-9-g1-cal", groups[0].Meta.(domain.CalGroupMeta).Name)
	assert.Equal(t, "toltec-9-g2-cal", groups[1].Meta.(domain.CalGroupMeta).Name)
}

func TestDrivefitCollator(t *testing.T) {
	in := []Observation{
		obs(10, 0, domain.KindTargetSweep, ""),
		obs(10, 1, domain.KindVnaSweep, ""),
		obs(10, 2, domain.KindTargetSweep, ""),
		obs(11, 0, domain.KindTargetSweep, ""),
	}
	groups := DrivefitCollator{}.Collate(in)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Members, 2)
	meta := groups[0].Meta.(domain.DrivefitMeta)
	assert.Equal(t, "toltec-10-g1-drivefit", meta.Name)
	assert.Equal(t, 10, meta.ObsNum)
	assert.Equal(t, domain.EdgeDrivefitRawObs, groups[0].Edge)
}

func TestFocusGroupCollator_ConsecutiveRuns(t *testing.T) {
	in := []Observation{
		obs(20, 0, domain.KindRawTimeStream, "focus"),
		obs(21, 0, domain.KindRawTimeStream, "FOCUS"),
		obs(22, 0, domain.KindRawTimeStream, "science"),
		obs(23, 0, domain.KindRawTimeStream, "focus"),
		obs(24, 0, domain.KindRawTimeStream, "focus"),
		obs(25, 0, domain.KindRawTimeStream, "pointing"),
		obs(26, 0, domain.KindRawTimeStream, "focus"),
	}
	groups := FocusGroupCollator{}.Collate(in)
	require.Len(t, groups, 2)
	assert.Equal(t, []int{20, 21}, memberNums(groups[0]))
	assert.Equal(t, []int{23, 24}, memberNums(groups[1]))
	assert.Equal(t, "toltec-23-g1-focus", groups[1].Meta.(domain.FocusGroupMeta).Name)
}

// --- Generator ---

func setup(t *testing.T) (*Generator, *catalog.Store) {
	t.Helper()
	writeDB, readDB := internaldb.OpenTestSQLite(t)
	store := catalog.New(writeDB, readDB)
	return NewGenerator(store, nil, WithToolVersion("test")), store
}

func addRaw(t *testing.T, s *catalog.Store, o Observation) {
	t.Helper()
	_, err := s.UpsertProduct(context.Background(), domain.ProductUpsert{
		ID: o.ID, Type: domain.TypeRawObs,
		Lifecycle: domain.LifecycleActive, Availability: o.Availability,
		Meta: o.Meta,
	})
	require.NoError(t, err)
}

func TestGenerate_CreatesGroupsAndEdges(t *testing.T) {
	g, s := setup(t)
	ctx := context.Background()
	vna, t1, t2 := obs(100, 0, domain.KindVnaSweep, ""), obs(101, 0, domain.KindTargetSweep, ""), obs(101, 1, domain.KindTargetSweep, "")
	for _, o := range []Observation{vna, t1, t2} {
		addRaw(t, s, o)
	}

	stats, err := g.Generate(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ObservationsScanned)
	assert.Equal(t, 3, stats.ObservationsProcessed)
	assert.Equal(t, 2, stats.GroupsCreated)
	assert.Equal(t, 1, stats.CalGroups)
	assert.Equal(t, 1, stats.DrivefitGroups)
	assert.Equal(t, 5, stats.EdgesCreated)

	calID := groupID(domain.TypeCalGroup, identity.CalGroupUID("toltec", 100, 1))
	cal, err := s.GetProduct(ctx, calID)
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilityAvailable, cal.Availability)
	assert.Equal(t, 3, cal.Meta.(domain.CalGroupMeta).NItems)

	edges, err := s.Edges().From(ctx, calID, domain.EdgeCalGroupRawObs)
	require.NoError(t, err)
	require.Len(t, edges, 3)
	assert.Equal(t, Tool, edges[0].Context.Tool)
	assert.Equal(t, "test", edges[0].Context.Version)
	assert.Equal(t, "cal_group", edges[0].Context.Config["collator"])

	again, err := g.Generate(ctx, Options{})
	require.NoError(t, err)
	assert.Zero(t, again.GroupsCreated)
	assert.Zero(t, again.GroupsUpdated)
	assert.Zero(t, again.EdgesCreated)
	assert.Equal(t, 2, again.GroupsUnchanged)

	edges, err = s.Edges().From(ctx, calID, domain.EdgeCalGroupRawObs)
	require.NoError(t, err)
	assert.Len(t, edges, 3)
}

func TestGenerate_IncrementalExtendsExistingGroup(t *testing.T) {
	g, s := setup(t)
	ctx := context.Background()
	addRaw(t, s, obs(200, 0, domain.KindVnaSweep, ""))
	addRaw(t, s, obs(201, 0, domain.KindTune, ""))

	first, err := g.Generate(ctx, Options{Incremental: true})
	require.NoError(t, err)
	assert.Zero(t, first.ObservationsAlreadyGrouped)
	assert.Equal(t, 1, first.GroupsCreated)

	addRaw(t, s, obs(202, 0, domain.KindTune, ""))
	second, err := g.Generate(ctx, Options{Incremental: true})
	require.NoError(t, err)
	assert.Equal(t, 3, second.ObservationsScanned)
	assert.Equal(t, 2, second.ObservationsAlreadyGrouped)
	assert.Equal(t, 1, second.ObservationsProcessed)
	assert.Zero(t, second.GroupsCreated)
	assert.Equal(t, 1, second.GroupsUpdated)
	assert.Equal(t, 1, second.EdgesCreated)

	calID := groupID(domain.TypeCalGroup, identity.CalGroupUID("toltec", 200, 1))
	cal, err := s.GetProduct(ctx, calID)
	require.NoError(t, err)
	assert.Equal(t, 3, cal.Meta.(domain.CalGroupMeta).NItems)

	third, err := g.Generate(ctx, Options{Incremental: true})
	require.NoError(t, err)
	assert.Equal(t, 3, third.ObservationsAlreadyGrouped)
	assert.Zero(t, third.ObservationsProcessed)
	assert.Equal(t, 1, third.GroupsUnchanged)
	assert.Zero(t, third.EdgesCreated)
}

func TestGenerate_LimitKeepsMostRecent(t *testing.T) {
	g, s := setup(t)
	for _, o := range []Observation{
		obs(300, 0, domain.KindVnaSweep, ""),
		obs(301, 0, domain.KindTune, ""),
		obs(302, 0, domain.KindVnaSweep, ""),
		obs(303, 0, domain.KindTune, ""),
	} {
		addRaw(t, s, o)
	}

	stats, err := g.Generate(context.Background(), Options{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ObservationsScanned)
	assert.Equal(t, 1, stats.CalGroups)

	_, err = s.GetProduct(context.Background(), groupID(domain.TypeCalGroup, identity.CalGroupUID("toltec", 300, 1)))
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
	_, err = s.GetProduct(context.Background(), groupID(domain.TypeCalGroup, identity.CalGroupUID("toltec", 302, 1)))
	assert.NoError(t, err)
}

func TestGenerate_MissingMembersGiveMissingGroup(t *testing.T) {
	g, s := setup(t)
	a, b := obs(400, 0, domain.KindRawTimeStream, "focus"), obs(401, 0, domain.KindRawTimeStream, "focus")
	a.Availability, b.Availability = domain.AvailabilityMissing, domain.AvailabilityMissing
	addRaw(t, s, a)
	addRaw(t, s, b)

	stats, err := g.Generate(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FocusGroups)

	focus, err := s.GetProduct(context.Background(), groupID(domain.TypeFocusGroup, identity.GroupUID("toltec", 400, 1, "focus")))
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilityMissing, focus.Availability)
}

func TestGenerate_Rejects(t *testing.T) {
	g, _ := setup(t)
	_, err := g.Generate(context.Background(), Options{Limit: -1})
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, readDB := internaldb.OpenTestSQLite(t)
	ro := NewGenerator(catalog.NewReadOnly(readDB), nil)
	_, err = ro.Generate(context.Background(), Options{})
	var ce *domain.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

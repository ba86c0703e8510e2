package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toltec-dpdb/internal/config"
	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/filename"
	"toltec-dpdb/internal/identity"
	"toltec-dpdb/internal/objectstore"
	"toltec-dpdb/internal/service/catalog"
	"toltec-dpdb/internal/testutil"
)

type fixture struct {
	deps Deps
	tel  *testutil.FakeTelemetry
	root string
	path string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.sqlite")
	store, err := catalog.Open(ctx, path, false, 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	root := t.TempDir()
	p := config.DefaultProfile()
	p.Locations = []config.LocationSpec{{Label: "lmt", Type: string(domain.LocationFilesystem), RootURI: "file://" + root}}

	verifier, err := objectstore.New(ctx, objectstore.Options{})
	require.NoError(t, err)

	tel := testutil.NewFakeTelemetry()
	return &fixture{
		deps: Deps{
			Cfg:       &config.Config{PollSchedule: "@every 1h"},
			Profile:   p,
			Store:     store,
			Telemetry: tel,
			Verifier:  verifier,
		},
		tel:  tel,
		root: root,
		path: path,
	}
}

func (f *fixture) writePart(t *testing.T, key domain.ObservationKey, part int) string {
	t.Helper()
	name, err := filename.Name{
		Grammar: filename.GrammarInterface, Prefix: "toltec", Part: part,
		ObsNum: key.ObsNum, Interface: "timestream", RoachID: part,
	}.Build()
	require.NoError(t, err)
	dir := filepath.Join(f.root, "toltec")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("d"), 0o644))
	return path
}

func TestSeedLocations_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	locs := f.deps.Profile.DomainLocations()

	added, err := SeedLocations(ctx, f.deps.Store, locs)
	require.NoError(t, err)
	assert.Equal(t, []string{"lmt"}, added)

	added, err = SeedLocations(ctx, f.deps.Store, locs)
	require.NoError(t, err)
	assert.Empty(t, added)
}

func TestNew_PollerIngestsCompleteObservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := domain.ObservationKey{Master: "toltec", ObsNum: 120}
	at := time.Date(2025, 3, 1, 1, 0, 0, 0, time.UTC)
	for p := 0; p < 13; p++ {
		f.tel.Put(domain.PartRecord{Key: key, Part: p, Valid: true, FileName: f.writePart(t, key, p), Timestamp: at})
	}

	a, err := New(ctx, f.deps)
	require.NoError(t, err)
	require.NotNil(t, a.Poller)
	assert.Nil(t, a.Auth)

	res, err := a.Poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.ObservationKey{key}, res.Released)

	id, err := identity.RawObsID(key)
	require.NoError(t, err)
	srcs, err := f.deps.Store.ListSources(ctx, id)
	require.NoError(t, err)
	assert.Len(t, srcs, 13)

	res, err = a.Poller.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Released, "an observation is released once")
}

func TestNew_ReadOnlyStoreHasNoPoller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := SeedLocations(ctx, f.deps.Store, f.deps.Profile.DomainLocations())
	require.NoError(t, err)

	ro, err := catalog.Open(ctx, f.path, true, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ro.Close() })
	f.deps.Store = ro

	a, err := New(ctx, f.deps)
	require.NoError(t, err)
	assert.Nil(t, a.Poller)
}

func TestNew_DisablePoller(t *testing.T) {
	f := newFixture(t)
	f.deps.DisablePoller = true
	a, err := New(context.Background(), f.deps)
	require.NoError(t, err)
	assert.Nil(t, a.Poller)
}

func TestRouter_ServesHealthMetricsAndGuardsWrites(t *testing.T) {
	f := newFixture(t)
	f.deps.Cfg.Auth = config.AuthConfig{JWTSecret: "s3cret-for-tests"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(ctx, f.deps)
	require.NoError(t, err)
	require.NotNil(t, a.Auth)
	router := a.Router(ctx)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// Package app wires the long-running catalog server: services, the
// completion poller and the HTTP router, from handles opened by the caller.
package app

import (
	"context"
	"log/slog"
	"net/http"

	"toltec-dpdb/internal/api"
	"toltec-dpdb/internal/completion"
	"toltec-dpdb/internal/config"
	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/engine"
	"toltec-dpdb/internal/metrics"
	"toltec-dpdb/internal/middleware"
	"toltec-dpdb/internal/service/associations"
	"toltec-dpdb/internal/service/catalog"
	"toltec-dpdb/internal/service/flags"
	"toltec-dpdb/internal/service/ingestion"
	"toltec-dpdb/internal/service/maintenance"
	"toltec-dpdb/internal/service/provenance"
	"toltec-dpdb/internal/service/scheduler"
)

// Deps holds the external dependencies that the caller must provide.
// These are handles the app package does not own: the catalog store, the
// telemetry source and the object-store verifier.
type Deps struct {
	Cfg       *config.Config
	Profile   config.Profile
	Store     *catalog.Store
	Telemetry domain.TelemetrySource
	Verifier  domain.SourceVerifier
	Engine    *engine.Engine // nil disables /v1/query and maintenance export
	Logger    *slog.Logger

	// IngestLocation is the location label the poller ingests ready
	// observations into. Empty selects the profile's first location.
	IngestLocation string
	// DisablePoller leaves completion polling to an external scheduler.
	DisablePoller bool
}

// Services groups the service pointers the router and the poller need.
type Services struct {
	Graph        *provenance.Graph
	Flags        *flags.FlagService
	Watcher      *completion.Watcher
	Ingest       *ingestion.Service
	Maintenance  *maintenance.Service
	Associations *associations.Generator
}

// App holds the fully-wired server.
type App struct {
	Services Services
	Poller   *scheduler.Poller // nil when polling is disabled
	Metrics  *metrics.Metrics
	Auth     middleware.JWTValidator

	deps Deps
}

// New wires services, the poller and the auth validator from deps. It
// registers the profile's locations on a writable catalog.
func New(ctx context.Context, deps Deps) (*App, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	cfg := deps.Cfg
	m := metrics.New()

	if !deps.Store.ReadOnly() {
		registered, err := SeedLocations(ctx, deps.Store, deps.Profile.DomainLocations())
		if err != nil {
			return nil, err
		}
		if len(registered) > 0 {
			deps.Logger.Info("registered locations", "labels", registered)
		}
	}

	watcher, err := completion.NewWatcher(deps.Profile.WatcherConfig(), deps.Telemetry, deps.Store.Cursor(),
		completion.WithLogger(deps.Logger.With("component", "watcher")))
	if err != nil {
		return nil, err
	}

	svcs := Services{
		Graph:   provenance.NewGraph(deps.Store),
		Flags:   flags.NewFlagService(deps.Store),
		Watcher: watcher,
		Ingest: ingestion.NewService(deps.Store, watcher, deps.Verifier,
			ingestion.WithMetrics(m),
			ingestion.WithLogger(deps.Logger.With("component", "ingestion"))),
	}
	svcs.Associations = associations.NewGenerator(deps.Store, svcs.Graph, associations.WithLogger(deps.Logger))
	// A nil *engine.Engine must not become a non-nil interface.
	if deps.Engine != nil {
		svcs.Maintenance = maintenance.NewService(deps.Store, deps.Engine)
	} else {
		svcs.Maintenance = maintenance.NewService(deps.Store, nil)
	}

	a := &App{Services: svcs, Metrics: m, deps: deps}

	if a.Auth, err = newValidator(ctx, cfg.Auth); err != nil {
		return nil, err
	}

	if !deps.DisablePoller && !deps.Store.ReadOnly() {
		location := deps.IngestLocation
		if location == "" {
			location = "lmt"
			if locs := deps.Profile.Locations; len(locs) > 0 {
				location = locs[0].Label
			}
		}
		a.Poller = scheduler.NewPoller(scheduler.Config{
			Schedule:          cfg.PollSchedule,
			ValidationTimeout: deps.Profile.ValidationTimeout,
			DropIncomplete:    !deps.Profile.RetryOnIncomplete,
			Metrics:           m,
		}, watcher, deps.Store, a.ingestHandler(location), deps.Logger.With("component", "poller"))
	}
	return a, nil
}

// pollAssociationWindow bounds the observations regrouped after each
// poller release.
const pollAssociationWindow = 64

// ingestHandler ingests a released observation: every part when complete,
// the valid parts when released partially.
func (a *App) ingestHandler(location string) scheduler.Handler {
	svc := a.Services.Ingest
	return func(ctx context.Context, key domain.ObservationKey, r completion.Readiness) error {
		var (
			res []ingestion.Result
			err error
		)
		if r.Partial {
			res, err = svc.IngestAvailableParts(ctx, key, location)
		} else {
			res, err = svc.IngestObservation(ctx, key, location)
		}
		if err != nil {
			return err
		}
		a.deps.Logger.Info("observation ingested", "obs_key", key.String(), "products", len(res), "partial", r.Partial)

		// Grouping failures do not hold back the release; the next
		// observation retries them.
		if _, err := a.Services.Associations.Generate(ctx, associations.Options{
			Limit: pollAssociationWindow, Location: location, Incremental: true,
		}); err != nil {
			a.deps.Logger.Warn("association update failed", "obs_key", key.String(), "error", err)
		}
		return nil
	}
}

// Router builds the HTTP handler. ctx bounds the rate limiter's sweep.
func (a *App) Router(ctx context.Context) http.Handler {
	cfg := a.deps.Cfg
	d := api.Deps{
		Store:       a.deps.Store,
		Graph:       a.Services.Graph,
		Flags:       a.Services.Flags,
		Watcher:     a.Services.Watcher,
		Telemetry:   a.deps.Telemetry,
		Ingest:      a.Services.Ingest,
		Maintenance: a.Services.Maintenance,
		Associate:   a.Services.Associations,
		Engine:      a.deps.Engine,
		Metrics:     a.Metrics,
		Auth:        a.Auth,
		CORSOrigins: cfg.CORSAllowedOrigins,
		Logger:      a.deps.Logger,
	}
	if cfg.RateLimitRPS > 0 {
		d.RateLimit = &middleware.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst}
	}
	return api.NewRouter(ctx, d)
}

func newValidator(ctx context.Context, auth config.AuthConfig) (middleware.JWTValidator, error) {
	switch {
	case auth.IssuerURL != "":
		return middleware.NewOIDCValidator(ctx, auth.IssuerURL, auth.Audience)
	case auth.JWTSecret != "":
		return middleware.NewHS256Validator(auth.JWTSecret, auth.Audience)
	default:
		return nil, nil
	}
}

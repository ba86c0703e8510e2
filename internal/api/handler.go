// Package api is the HTTP adapter of the catalog and the completion engine.
// Reads are open; writes go through the bearer-token check when a validator
// is configured.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"toltec-dpdb/internal/completion"
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
)

// Deps holds the services the router dispatches to. Store is required;
// endpoints whose service is nil answer with a configuration error.
type Deps struct {
	Store       *catalog.Store
	Graph       *provenance.Graph
	Flags       *flags.FlagService
	Watcher     *completion.Watcher
	Telemetry   domain.TelemetrySource // served under /v1/telemetry when set
	Ingest      *ingestion.Service
	Maintenance *maintenance.Service
	Associate   *associations.Generator
	Engine      *engine.Engine
	Metrics     *metrics.Metrics // nil disables /metrics

	Auth        middleware.JWTValidator
	RateLimit   *middleware.RateLimitConfig
	CORSOrigins []string
	Logger      *slog.Logger
}

// Handler implements the HTTP endpoints.
type Handler struct {
	deps   Deps
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if d.Graph == nil && d.Store != nil {
		d.Graph = provenance.NewGraph(d.Store)
	}
	if d.Flags == nil && d.Store != nil {
		d.Flags = flags.NewFlagService(d.Store)
	}
	return &Handler{deps: d, logger: logger}
}

// NewRouter builds the chi router. ctx bounds the rate limiter's background sweep.
func NewRouter(ctx context.Context, d Deps) http.Handler {
	h := NewHandler(d)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(h.logger))
	r.Use(d.Metrics.Middleware)
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
			MaxAge:         300,
		}))
	}
	if d.RateLimit != nil {
		r.Use(middleware.RateLimiter(ctx, *d.RateLimit))
	}

	r.Get("/healthz", h.health)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/observations", h.listObservations)
		r.Route("/observations/{master}/{obsnum}/{subobsnum}/{scannum}", func(r chi.Router) {
			r.Get("/", h.getObservation)
			r.Get("/parts/{part}", h.getObservationPart)
			r.With(middleware.RequireBearer(d.Auth)).Post("/ingest", h.ingestObservation)
		})

		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)
		r.Get("/products/{id}/edges", h.listEdges)
		r.Get("/products/{id}/events", h.listProductEvents)
		r.Get("/locations", h.listLocations)
		r.Get("/flags", h.listFlags)
		r.Get("/events", h.eventsSince)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireBearer(d.Auth))
			r.Post("/ingest", h.ingest)
			r.Post("/products/{id}/verify", h.verifyProduct)
			r.Post("/products/{id}/flags", h.assertFlag)
			r.Post("/maintenance/{op}", h.runMaintenance)
			r.Post("/associations", h.generateAssociations)
			r.Post("/query", h.query)
		})

		if d.Telemetry != nil {
			r.Route("/telemetry", h.telemetryRoutes)
		}
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Store.ReadDB().PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "read_only": h.deps.Store.ReadOnly()})
}

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/telemetry"
)

// telemetryRoutes re-exports the configured telemetry source in the wire
// format read by telemetry.HTTPClient, so one dpdb instance can feed others.
func (h *Handler) telemetryRoutes(r chi.Router) {
	r.Get("/observations", h.telemetryActive)
	r.Get("/parts", h.telemetrySince)
	r.Route("/observations/{master}/{obsnum}/{subobsnum}/{scannum}", func(r chi.Router) {
		r.Get("/parts", h.telemetryParts)
		r.Get("/parts/{part}", h.telemetryPart)
		r.Get("/later", h.telemetryLater)
	})
}

func (h *Handler) telemetryActive(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	keys, err := h.deps.Telemetry.Active(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(keys, telemetry.ToKeyJSON))
}

func (h *Handler) telemetrySince(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("since")
	since, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		h.writeError(w, r, domain.ErrValidation("invalid since %q: want RFC3339", raw))
		return
	}
	recs, err := h.deps.Telemetry.Since(r.Context(), since)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(recs, telemetry.ToPartJSON))
}

func (h *Handler) telemetryParts(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	recs, err := h.deps.Telemetry.Parts(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(recs, telemetry.ToPartJSON))
}

func (h *Handler) telemetryPart(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	part, err := strconv.Atoi(chi.URLParam(r, "part"))
	if err != nil {
		h.writeError(w, r, domain.ErrValidation("malformed part identifier %q", chi.URLParam(r, "part")))
		return
	}
	rec, err := h.deps.Telemetry.Part(r.Context(), key, part)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if rec == nil {
		h.writeError(w, r, domain.ErrNotFound("observation %s part %d not found", key, part))
		return
	}
	writeJSON(w, http.StatusOK, telemetry.ToPartJSON(*rec))
}

func (h *Handler) telemetryLater(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	later, err := h.deps.Telemetry.HasLater(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"later": later})
}

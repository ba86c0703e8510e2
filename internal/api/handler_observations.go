package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/service/ingestion"
)

// keyFromPath reads the observation key from the route parameters.
func keyFromPath(r *http.Request) (domain.ObservationKey, error) {
	key := domain.ObservationKey{Master: chi.URLParam(r, "master")}
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"obsnum", &key.ObsNum},
		{"subobsnum", &key.SubObsNum},
		{"scannum", &key.ScanNum},
	} {
		n, err := strconv.Atoi(chi.URLParam(r, f.name))
		if err != nil {
			return key, domain.ErrValidation("invalid %s %q", f.name, chi.URLParam(r, f.name))
		}
		*f.dst = n
	}
	return key, key.Validate()
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.ErrValidation("invalid %s %q", name, raw)
	}
	return n, nil
}

func (h *Handler) requireWatcher() error {
	if h.deps.Watcher == nil {
		return domain.ErrConfiguration("completion watcher is not configured")
	}
	return nil
}

func (h *Handler) listObservations(w http.ResponseWriter, r *http.Request) {
	if err := h.requireWatcher(); err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	keys, err := h.deps.Watcher.ActiveObservations(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	writeJSON(w, http.StatusOK, map[string][]string{"observations": out})
}

// getObservation classifies the observation without advancing the
// completion cursor, so browsing never steals a newly-complete transition
// from the poller.
func (h *Handler) getObservation(w http.ResponseWriter, r *http.Request) {
	if err := h.requireWatcher(); err != nil {
		h.writeError(w, r, err)
		return
	}
	key, err := keyFromPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ev, err := h.deps.Watcher.Inspect(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ObservationJSON{Key: key.String(), Evaluation: ev})
}

func (h *Handler) getObservationPart(w http.ResponseWriter, r *http.Request) {
	if err := h.requireWatcher(); err != nil {
		h.writeError(w, r, err)
		return
	}
	key, err := keyFromPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	part, err := h.deps.Watcher.Groups().ParsePart(chi.URLParam(r, "part"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rec, err := h.deps.Watcher.RequireValid(r.Context(), key, part)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	group, _ := h.deps.Watcher.Groups().GroupOf(part)
	writeJSON(w, http.StatusOK, PartJSON{
		Key: key.String(), Part: rec.Part, Group: group, FileName: rec.FileName, Timestamp: rec.Timestamp,
	})
}

type ingestObservationRequest struct {
	Location string `json:"location"`
	Partial  bool   `json:"partial,omitempty"`
}

func (h *Handler) ingestObservation(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ingest == nil {
		h.writeError(w, r, domain.ErrConfiguration("ingestion is not configured"))
		return
	}
	key, err := keyFromPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req ingestObservationRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Location == "" {
		h.writeError(w, r, domain.ErrValidation("location is required"))
		return
	}

	var results []ingestion.Result
	if req.Partial {
		results, err = h.deps.Ingest.IngestAvailableParts(r.Context(), key, req.Location)
	} else {
		results, err = h.deps.Ingest.IngestObservation(r.Context(), key, req.Location)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"key": key.String(), "ingested": results})
}

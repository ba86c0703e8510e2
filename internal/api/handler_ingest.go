package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/service/associations"
)

// ingestRequest selects one of three modes: a single file (path), a
// directory walk (dir, optional pattern) or a complete observation (key).
type ingestRequest struct {
	Location string `json:"location"`
	Path     string `json:"path,omitempty"`
	Dir      string `json:"dir,omitempty"`
	Pattern  string `json:"pattern,omitempty"`
	Key      string `json:"key,omitempty"`
}

func (req ingestRequest) validate() error {
	if req.Location == "" {
		return domain.ErrValidation("location is required")
	}
	set := 0
	for _, v := range []string{req.Path, req.Dir, req.Key} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return domain.ErrValidation("exactly one of path, dir or key is required")
	}
	if req.Pattern != "" && req.Dir == "" {
		return domain.ErrValidation("pattern requires dir")
	}
	return nil
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ingest == nil {
		h.writeError(w, r, domain.ErrConfiguration("ingestion is not configured"))
		return
	}
	var req ingestRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	switch {
	case req.Path != "":
		res, err := h.deps.Ingest.IngestFile(ctx, req.Path, req.Location)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		code := http.StatusOK
		if res.Created {
			code = http.StatusCreated
		}
		writeJSON(w, code, res)
	case req.Dir != "":
		res, err := h.deps.Ingest.IngestDirectory(ctx, req.Dir, req.Location, req.Pattern)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	default:
		key, err := domain.ParseObservationKey(req.Key)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		res, err := h.deps.Ingest.IngestObservation(ctx, key, req.Location)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"key": key.String(), "ingested": res})
	}
}

type maintenanceRequest struct {
	Dir string `json:"dir,omitempty"`
}

func (h *Handler) runMaintenance(w http.ResponseWriter, r *http.Request) {
	if h.deps.Maintenance == nil {
		h.writeError(w, r, domain.ErrConfiguration("maintenance is not configured"))
		return
	}
	var req maintenanceRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	res, err := h.deps.Maintenance.Run(r.Context(), chi.URLParam(r, "op"), req.Dir)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type associateRequest struct {
	Limit       int    `json:"limit,omitempty"`
	Location    string `json:"location,omitempty"`
	Incremental bool   `json:"incremental,omitempty"`
}

// generateAssociations regroups raw observations and returns the run stats.
func (h *Handler) generateAssociations(w http.ResponseWriter, r *http.Request) {
	if h.deps.Associate == nil {
		h.writeError(w, r, domain.ErrConfiguration("association generator is not configured"))
		return
	}
	var req associateRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	stats, err := h.deps.Associate.Generate(r.Context(), associations.Options{
		Limit: req.Limit, Location: req.Location, Incremental: req.Incremental,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type queryRequest struct {
	SQL string `json:"sql"`
}

// query runs a read-only statement on the hybrid engine.
func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	if h.deps.Engine == nil {
		h.writeError(w, r, domain.ErrConfiguration("query engine is not configured"))
		return
	}
	var req queryRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.deps.Engine.Query(r.Context(), req.SQL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/middleware"
)

// productFilterFromQuery parses the list filters. Empty parameters do not filter.
func productFilterFromQuery(r *http.Request) (domain.ProductFilter, error) {
	q := r.URL.Query()
	f := domain.ProductFilter{
		Type:          domain.ProductTypeLabel(q.Get("type")),
		Lifecycle:     domain.LifecycleStatus(q.Get("lifecycle")),
		Availability:  domain.AvailabilityState(q.Get("availability")),
		LocationLabel: q.Get("location"),
		SourceRole:    domain.StorageRole(q.Get("role")),
		HasKind:       q.Get("kind"),
		Page:          domain.PageRequest{PageToken: q.Get("page_token")},
	}
	if raw := q.Get("flag"); raw != "" {
		ref, err := domain.ParseFlagRef(raw)
		if err != nil {
			return f, err
		}
		f.HasFlag = &ref
	}
	n, err := intQuery(r, "max_results", 0)
	if err != nil {
		return f, err
	}
	f.Page.MaxResults = n
	return f, nil
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	f, err := productFilterFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ps, next, total, err := h.deps.Store.ListProducts(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListProductsResponse{
		Products:      mapSlice(ps, ToProductJSON),
		NextPageToken: next,
		Total:         total,
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	p, err := h.deps.Store.GetProduct(ctx, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sources, err := h.deps.Store.ListSources(ctx, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	kinds, err := h.deps.Store.ListKinds(ctx, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	assigned, err := h.deps.Flags.FlagsFor(ctx, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ProductDetailJSON{
		ProductJSON: ToProductJSON(*p),
		Sources:     mapSlice(sources, ToSourceJSON),
		Kinds:       mapSlice(kinds, ToKindJSON),
		Flags:       mapSlice(assigned, ToFlagJSON),
	})
}

// listEdges returns edges leaving the product (direction=from, the default)
// or arriving at it (direction=to), optionally restricted to one edge type.
func (h *Handler) listEdges(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	typ := domain.EdgeTypeLabel(r.URL.Query().Get("type"))

	var (
		edges []domain.ProvenanceEdge
		err   error
	)
	switch dir := r.URL.Query().Get("direction"); dir {
	case "", "from":
		edges, err = h.deps.Graph.EdgesFrom(r.Context(), id, typ)
	case "to":
		edges, err = h.deps.Graph.EdgesTo(r.Context(), id, typ)
	default:
		err = domain.ErrValidation("invalid direction %q: want from or to", dir)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]EdgeJSON{"edges": mapSlice(edges, ToEdgeJSON)})
}

func (h *Handler) listProductEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.deps.Store.ListEvents(r.Context(), domain.EntityProduct, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]EventJSON{"events": mapSlice(events, ToEventJSON)})
}

func (h *Handler) eventsSince(w http.ResponseWriter, r *http.Request) {
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.writeError(w, r, domain.ErrValidation("invalid since %q", raw))
			return
		}
		since = n
	}
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	events, err := h.deps.Store.EventsSince(r.Context(), since, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]EventJSON{"events": mapSlice(events, ToEventJSON)})
}

func (h *Handler) listLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := h.deps.Store.ListLocations(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]LocationJSON{"locations": mapSlice(locs, ToLocationJSON)})
}

func (h *Handler) listFlags(w http.ResponseWriter, r *http.Request) {
	defs, err := h.deps.Flags.ListFlags(r.Context(), r.URL.Query().Get("namespace"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	type flagDef struct {
		Flag        string `json:"flag"`
		Description string `json:"description,omitempty"`
	}
	out := make([]flagDef, 0, len(defs))
	for _, d := range defs {
		out = append(out, flagDef{Flag: d.Ref().String(), Description: d.Description})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"flags": out})
}

type assertFlagRequest struct {
	Flag       string            `json:"flag"`
	AssertedBy string            `json:"asserted_by"`
	Context    map[string]string `json:"context,omitempty"`
}

func (h *Handler) assertFlag(w http.ResponseWriter, r *http.Request) {
	var req assertFlagRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ref, err := domain.ParseFlagRef(req.Flag)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	by := req.AssertedBy
	if sub, ok := middleware.SubjectFromContext(r.Context()); ok && by == "" {
		by = sub
	}
	if err := h.deps.Flags.AssertFlag(r.Context(), chi.URLParam(r, "id"), ref, by, req.Context); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) verifyProduct(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ingest == nil {
		h.writeError(w, r, domain.ErrConfiguration("ingestion is not configured"))
		return
	}
	results, err := h.deps.Ingest.VerifySources(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	type verification struct {
		URI          string `json:"uri"`
		Availability string `json:"availability"`
		Size         *int64 `json:"size,omitempty"`
	}
	out := make([]verification, 0, len(results))
	for _, v := range results {
		out = append(out, verification{URI: v.URI, Availability: string(v.Availability), Size: v.Size})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sources": out})
}

package associations

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/service/catalog"
	"toltec-dpdb/internal/service/provenance"
)

// Tool is recorded in the context of every edge the generator adds.
const Tool = "dpdb associate"

const scanPageSize = 1000

// Options selects the observations a run considers.
type Options struct {
	// Limit keeps only the most recent Limit observations of each master.
	// Zero scans everything.
	Limit int
	// Location restricts the scan to observations with a source there.
	Location string
	// Incremental skips groups whose members already carry the group's
	// edge and reports how many observations were already grouped.
	Incremental bool
}

// Stats summarizes one run.
type Stats struct {
	ObservationsScanned        int `json:"observations_scanned"`
	ObservationsAlreadyGrouped int `json:"observations_already_grouped"`
	ObservationsProcessed      int `json:"observations_processed"`
	GroupsCreated              int `json:"groups_created"`
	GroupsUpdated              int `json:"groups_updated"`
	GroupsUnchanged            int `json:"groups_unchanged"`
	EdgesCreated               int `json:"edges_created"`
	CalGroups                  int `json:"cal_groups"`
	DrivefitGroups             int `json:"drivefit_groups"`
	FocusGroups                int `json:"focus_groups"`
}

// Generator runs collators over the raw observations in the catalog.
type Generator struct {
	store     *catalog.Store
	graph     *provenance.Graph
	collators []Collator
	version   string
	logger    *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithCollators replaces the default collators.
func WithCollators(c ...Collator) Option {
	return func(g *Generator) { g.collators = c }
}

// WithToolVersion sets the version recorded on new edges.
func WithToolVersion(v string) Option {
	return func(g *Generator) { g.version = v }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGenerator creates a Generator. A nil graph is built over store.
func NewGenerator(store *catalog.Store, graph *provenance.Graph, opts ...Option) *Generator {
	if graph == nil {
		graph = provenance.NewGraph(store)
	}
	g := &Generator{
		store:     store,
		graph:     graph,
		collators: DefaultCollators(),
		logger:    store.Logger(),
	}
	for _, o := range opts {
		o(g)
	}
	g.logger = g.logger.With("component", "associations")
	return g
}

// Generate groups the selected observations and links every group to its
// members. Group products and edges are written one at a time; a failed run
// leaves the groups it already wrote, and rerunning converges on the same
// state.
func (g *Generator) Generate(ctx context.Context, opts Options) (*Stats, error) {
	if g.store.ReadOnly() {
		return nil, domain.ErrReadOnly("generate associations")
	}
	if opts.Limit < 0 {
		return nil, domain.ErrValidation("limit must be non-negative, got %d", opts.Limit)
	}

	byMaster, err := g.scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	masters := make([]string, 0, len(byMaster))
	for m := range byMaster {
		masters = append(masters, m)
	}
	sort.Strings(masters)

	for _, master := range masters {
		obs := byMaster[master]
		stats.ObservationsScanned += len(obs)

		grouped := map[string]map[domain.EdgeTypeLabel]bool{}
		if opts.Incremental {
			if grouped, err = g.groupedEdges(ctx, obs); err != nil {
				return nil, err
			}
			stats.ObservationsAlreadyGrouped += len(grouped)
		}
		stats.ObservationsProcessed += len(obs) - len(grouped)

		for _, c := range g.collators {
			for _, grp := range c.Collate(obs) {
				if opts.Incremental && allGrouped(grp, grouped) {
					stats.GroupsUnchanged++
					continue
				}
				if err := g.writeGroup(ctx, c, grp, stats); err != nil {
					return nil, err
				}
			}
		}
	}

	g.logger.Info("associations generated",
		"scanned", stats.ObservationsScanned,
		"created", stats.GroupsCreated,
		"updated", stats.GroupsUpdated,
		"edges", stats.EdgesCreated)
	return stats, nil
}

// scan pages through the raw observations and returns them per master in
// key order, trimmed to the most recent opts.Limit.
func (g *Generator) scan(ctx context.Context, opts Options) (map[string][]Observation, error) {
	out := map[string][]Observation{}
	page := domain.PageRequest{MaxResults: scanPageSize}
	for {
		items, next, _, err := g.store.ListProducts(ctx, domain.ProductFilter{
			Type:          domain.TypeRawObs,
			Lifecycle:     domain.LifecycleActive,
			LocationLabel: opts.Location,
			Page:          page,
		})
		if err != nil {
			return nil, err
		}
		for _, p := range items {
			meta, ok := p.Meta.(domain.RawObsMeta)
			if !ok {
				g.logger.Warn("raw observation without raw metadata", "id", p.ID)
				continue
			}
			out[meta.Master] = append(out[meta.Master], Observation{
				ID: p.ID, Meta: meta, Availability: p.Availability,
			})
		}
		if next == "" {
			break
		}
		page.PageToken = next
	}

	for master, obs := range out {
		sort.Slice(obs, func(i, j int) bool { return obs[i].Key().Less(obs[j].Key()) })
		if opts.Limit > 0 && len(obs) > opts.Limit {
			obs = obs[len(obs)-opts.Limit:]
		}
		out[master] = obs
	}
	return out, nil
}

// groupedEdges maps each observation that is already a member of some
// group to the group edge types it carries.
func (g *Generator) groupedEdges(ctx context.Context, obs []Observation) (map[string]map[domain.EdgeTypeLabel]bool, error) {
	kinds := map[domain.EdgeTypeLabel]bool{}
	for _, c := range g.collators {
		kinds[c.Edge()] = true
	}
	out := map[string]map[domain.EdgeTypeLabel]bool{}
	for _, o := range obs {
		edges, err := g.store.Edges().To(ctx, o.ID, "")
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if !kinds[e.Type] {
				continue
			}
			if out[o.ID] == nil {
				out[o.ID] = map[domain.EdgeTypeLabel]bool{}
			}
			out[o.ID][e.Type] = true
		}
	}
	return out, nil
}

func allGrouped(grp Group, grouped map[string]map[domain.EdgeTypeLabel]bool) bool {
	for _, m := range grp.Members {
		if !grouped[m.ID][grp.Edge] {
			return false
		}
	}
	return true
}

func (g *Generator) writeGroup(ctx context.Context, c Collator, grp Group, stats *Stats) error {
	existing := map[string]bool{}
	_, err := g.store.GetProduct(ctx, grp.ID)
	var nf *domain.NotFoundError
	switch {
	case err == nil:
		edges, err := g.store.Edges().From(ctx, grp.ID, grp.Edge)
		if err != nil {
			return err
		}
		for _, e := range edges {
			existing[e.DstID] = true
		}
	case errors.As(err, &nf):
	default:
		return err
	}

	var added []string
	for _, m := range grp.Members {
		if !existing[m.ID] {
			added = append(added, m.ID)
		}
	}
	if len(existing) > 0 && len(added) == 0 {
		stats.GroupsUnchanged++
		return nil
	}

	res, err := g.store.UpsertProduct(ctx, domain.ProductUpsert{
		ID:           grp.ID,
		Type:         grp.Type,
		Lifecycle:    domain.LifecycleActive,
		Availability: groupAvailability(grp.Members),
		Meta:         withItems(grp.Meta, len(existing)+len(added)),
	})
	if err != nil {
		return err
	}

	ec := domain.EdgeContext{Tool: Tool, Version: g.version, Config: map[string]string{"collator": c.Name()}}
	for _, dst := range added {
		if _, err := g.graph.AddEdge(ctx, grp.Edge, grp.ID, dst, ec); err != nil {
			return err
		}
		stats.EdgesCreated++
	}

	if res.Created {
		stats.GroupsCreated++
	} else {
		stats.GroupsUpdated++
	}
	switch grp.Type {
	case domain.TypeCalGroup:
		stats.CalGroups++
	case domain.TypeDrivefit:
		stats.DrivefitGroups++
	case domain.TypeFocusGroup:
		stats.FocusGroups++
	}
	g.logger.Debug("group written", "collator", c.Name(), "id", grp.ID,
		"created", res.Created, "new_members", len(added))
	return nil
}

// groupAvailability is AVAILABLE when any member is.
func groupAvailability(members []Observation) domain.AvailabilityState {
	for _, m := range members {
		if m.Availability == domain.AvailabilityAvailable {
			return domain.AvailabilityAvailable
		}
	}
	return domain.AvailabilityMissing
}

// withItems sets the member count on group metadata.
func withItems(m domain.Metadata, n int) domain.Metadata {
	switch v := m.(type) {
	case domain.CalGroupMeta:
		v.NItems = n
		return v
	case domain.DrivefitMeta:
		v.NItems = n
		return v
	case domain.FocusGroupMeta:
		v.NItems = n
		return v
	}
	return m
}

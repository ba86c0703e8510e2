// Package provenance records typed, directed derivation edges between
// catalog products.
package provenance

import (
	"context"
	"log/slog"

	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/service/catalog"
)

// Graph is the provenance service over a catalog Store.
type Graph struct {
	store  *catalog.Store
	logger *slog.Logger
}

// NewGraph creates a Graph.
func NewGraph(store *catalog.Store) *Graph {
	return &Graph{store: store, logger: store.Logger().With("component", "provenance")}
}

// AddEdge records that src was derived from or grouped with dst. Both
// endpoints must exist. Adding the same (type, src, dst) again refreshes
// the context and returns the original edge id.
func (g *Graph) AddEdge(ctx context.Context, typ domain.EdgeTypeLabel, src, dst string, ec domain.EdgeContext) (*domain.ProvenanceEdge, error) {
	if g.store.ReadOnly() {
		return nil, domain.ErrReadOnly("add edge")
	}
	if typ == "" {
		return nil, domain.ErrValidation("edge type is required")
	}
	if src == "" || dst == "" {
		return nil, domain.ErrValidation("edge endpoints are required")
	}

	var out *domain.ProvenanceEdge
	err := g.store.WithTx(ctx, "add edge", func(tx *catalog.Tx) error {
		typeID, err := tx.Registry.EdgeTypeID(ctx, typ)
		if err != nil {
			return err
		}
		for _, id := range []string{src, dst} {
			if _, err := tx.Products.Get(ctx, id); err != nil {
				return err
			}
		}
		e, err := tx.Edges.Add(ctx, typeID, domain.ProvenanceEdge{
			Type: typ, SrcID: src, DstID: dst, Context: ec,
		}, tx.Now)
		if err != nil {
			return err
		}
		out = e
		return tx.Emit(ctx, domain.EventEdgeAdded, domain.EntityEdge, src, map[string]interface{}{
			"type": string(typ),
			"dst":  dst,
			"tool": ec.Tool,
		})
	})
	if err != nil {
		return nil, err
	}
	g.logger.Debug("edge added", "type", typ, "src", src, "dst", dst)
	return out, nil
}

// EdgesFrom lists edges leaving product, optionally restricted to typ.
func (g *Graph) EdgesFrom(ctx context.Context, product string, typ domain.EdgeTypeLabel) ([]domain.ProvenanceEdge, error) {
	if _, err := g.store.GetProduct(ctx, product); err != nil {
		return nil, err
	}
	return g.store.Edges().From(ctx, product, typ)
}

// EdgesTo lists edges arriving at product, optionally restricted to typ.
func (g *Graph) EdgesTo(ctx context.Context, product string, typ domain.EdgeTypeLabel) ([]domain.ProvenanceEdge, error) {
	if _, err := g.store.GetProduct(ctx, product); err != nil {
		return nil, err
	}
	return g.store.Edges().To(ctx, product, typ)
}

// RegisterEdgeType adds an edge type to the registry. A duplicate label is
// an IntegrityError.
func (g *Graph) RegisterEdgeType(ctx context.Context, et domain.EdgeType) (*domain.EdgeType, error) {
	if et.Label == "" {
		return nil, domain.ErrValidation("edge type label is required")
	}
	var out *domain.EdgeType
	err := g.store.WithTx(ctx, "register edge type", func(tx *catalog.Tx) error {
		created, err := tx.Registry.RegisterEdgeType(ctx, et)
		if err != nil {
			return err
		}
		out = created
		return tx.Emit(ctx, domain.EventEdgeTypeRegistered, domain.EntityEdge, string(et.Label), nil)
	})
	return out, err
}

// EdgeTypes lists the registered edge types.
func (g *Graph) EdgeTypes(ctx context.Context) ([]domain.EdgeType, error) {
	return g.store.Registry().ListEdgeTypes(ctx)
}

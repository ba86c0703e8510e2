package cli

import (
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"toltec-dpdb/internal/api"
	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/service/provenance"
)

func newProvenanceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provenance",
		Short: "Record and browse typed edges between products",
	}
	cmd.AddCommand(
		newProvenanceLinkCmd(a),
		newProvenanceEdgesCmd(a),
		newProvenanceTypesCmd(a),
		newProvenanceRegisterTypeCmd(a),
	)
	return cmd
}

func newProvenanceLinkCmd(a *app) *cobra.Command {
	var (
		tool, toolVersion string
		config            []string
	)
	cmd := &cobra.Command{
		Use:   "link TYPE SRC DST",
		Short: "Add an edge of a registered type from SRC to DST",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := parsePairs(config)
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			edge, err := provenance.NewGraph(store).AddEdge(cmd.Context(), domain.EdgeTypeLabel(args[0]), args[1], args[2],
				domain.EdgeContext{Tool: tool, Version: toolVersion, Config: cfg})
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), api.ToEdgeJSON(*edge), func(w io.Writer) {
				printEdges(w, []domain.ProvenanceEdge{*edge})
			})
		},
	}
	cmd.Flags().StringVar(&tool, "tool", "", "process that established the edge")
	cmd.Flags().StringVar(&toolVersion, "tool-version", "", "version of that process")
	cmd.Flags().StringArrayVar(&config, "config", nil, "key=value process configuration (repeatable)")
	return cmd
}

func newProvenanceEdgesCmd(a *app) *cobra.Command {
	var (
		incoming bool
		typ      string
	)
	cmd := &cobra.Command{
		Use:   "edges ID",
		Short: "List edges leaving a product, or arriving at it with --to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			g := provenance.NewGraph(store)
			var edges []domain.ProvenanceEdge
			if incoming {
				edges, err = g.EdgesTo(cmd.Context(), args[0], domain.EdgeTypeLabel(typ))
			} else {
				edges, err = g.EdgesFrom(cmd.Context(), args[0], domain.EdgeTypeLabel(typ))
			}
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), map[string]interface{}{"edges": mapSlice(edges, api.ToEdgeJSON)}, func(w io.Writer) {
				printEdges(w, edges)
			})
		},
	}
	cmd.Flags().BoolVar(&incoming, "to", false, "list edges arriving at the product")
	cmd.Flags().StringVar(&typ, "type", "", "restrict to one edge type")
	return cmd
}

func newProvenanceTypesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List registered edge types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			types, err := provenance.NewGraph(store).EdgeTypes(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), map[string]interface{}{"edge_types": edgeTypeRows(types)}, func(w io.Writer) {
				rows := make([][]string, 0, len(types))
				for _, t := range types {
					rows = append(rows, []string{string(t.Label), t.Description})
				}
				PrintTable(w, []string{"label", "description"}, rows)
			})
		},
	}
}

func newProvenanceRegisterTypeCmd(a *app) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "register-type LABEL",
		Short: "Register a new edge type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			et, err := provenance.NewGraph(store).RegisterEdgeType(cmd.Context(), domain.EdgeType{
				Label: domain.EdgeTypeLabel(args[0]), Description: description,
			})
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), edgeTypeRows([]domain.EdgeType{*et})[0], func(w io.Writer) {
				PrintDetail(w, map[string]interface{}{"label": string(et.Label), "description": et.Description})
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "what the edge means")
	return cmd
}

func edgeTypeRows(types []domain.EdgeType) []map[string]string {
	out := make([]map[string]string, 0, len(types))
	for _, t := range types {
		out = append(out, map[string]string{"label": string(t.Label), "description": t.Description})
	}
	return out
}

func printEdges(w io.Writer, edges []domain.ProvenanceEdge) {
	rows := make([][]string, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, []string{strconv.FormatInt(e.ID, 10), string(e.Type), e.SrcID, e.DstID, e.Context.Tool})
	}
	PrintTable(w, []string{"id", "type", "src", "dst", "tool"}, rows)
}

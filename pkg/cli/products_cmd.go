package cli

import (
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"toltec-dpdb/internal/api"
	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/service/flags"
)

func newProductsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "products",
		Aliases: []string{"product"},
		Short:   "Browse cataloged data products",
	}
	cmd.AddCommand(
		newProductsListCmd(a),
		newProductsGetCmd(a),
		newProductsEventsCmd(a),
		newProductsSupersedeCmd(a),
	)
	return cmd
}

func newProductsListCmd(a *app) *cobra.Command {
	var (
		typ, lifecycle, availability string
		location, role, kind, flag   string
		maxResults                   int
		pageToken                    string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products matching every given filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := domain.ProductFilter{
				Type:          domain.ProductTypeLabel(typ),
				Lifecycle:     domain.LifecycleStatus(lifecycle),
				Availability:  domain.AvailabilityState(availability),
				LocationLabel: location,
				SourceRole:    domain.StorageRole(role),
				HasKind:       kind,
				Page:          domain.PageRequest{MaxResults: maxResults, PageToken: pageToken},
			}
			if flag != "" {
				ref, err := domain.ParseFlagRef(flag)
				if err != nil {
					return err
				}
				f.HasFlag = &ref
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			ps, next, total, err := store.ListProducts(cmd.Context(), f)
			if err != nil {
				return err
			}
			resp := api.ListProductsResponse{Products: mapSlice(ps, api.ToProductJSON), NextPageToken: next, Total: total}
			return a.render(cmd.OutOrStdout(), resp, func(w io.Writer) {
				rows := make([][]string, 0, len(ps))
				for _, p := range ps {
					rows = append(rows, []string{
						p.ID, string(p.Type), string(p.Lifecycle), string(p.Availability),
						p.UpdatedAt.UTC().Format(time.RFC3339),
					})
				}
				PrintTable(w, []string{"id", "type", "lifecycle", "availability", "updated_at"}, rows)
				if next != "" {
					_, _ = io.WriteString(w, "next page: --page-token "+next+"\n")
				}
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&typ, "type", "", "product type label")
	fl.StringVar(&lifecycle, "lifecycle", "", "lifecycle status")
	fl.StringVar(&availability, "availability", "", "availability state")
	fl.StringVar(&location, "location", "", "products with a source at this location")
	fl.StringVar(&role, "role", "", "products with a source of this storage role")
	fl.StringVar(&kind, "kind", "", "products carrying this data kind")
	fl.StringVar(&flag, "flag", "", "products carrying this flag (namespace:label)")
	fl.IntVar(&maxResults, "max-results", 0, "page size")
	fl.StringVar(&pageToken, "page-token", "", "continue from a previous page")
	return cmd
}

func newProductsGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show a product with its sources, kinds and flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			p, err := store.GetProduct(ctx, id)
			if err != nil {
				return err
			}
			sources, err := store.ListSources(ctx, id)
			if err != nil {
				return err
			}
			kinds, err := store.ListKinds(ctx, id)
			if err != nil {
				return err
			}
			assigned, err := flags.NewFlagService(store).FlagsFor(ctx, id)
			if err != nil {
				return err
			}
			detail := api.ProductDetailJSON{
				ProductJSON: api.ToProductJSON(*p),
				Sources:     mapSlice(sources, api.ToSourceJSON),
				Kinds:       mapSlice(kinds, api.ToKindJSON),
				Flags:       mapSlice(assigned, api.ToFlagJSON),
			}
			return a.render(cmd.OutOrStdout(), detail, func(w io.Writer) {
				PrintDetail(w, map[string]interface{}{
					"id":           p.ID,
					"type":         string(p.Type),
					"lifecycle":    string(p.Lifecycle),
					"availability": string(p.Availability),
					"created_at":   p.CreatedAt.UTC().Format(time.RFC3339),
					"updated_at":   p.UpdatedAt.UTC().Format(time.RFC3339),
				})
				_, _ = io.WriteString(w, "\n")
				rows := make([][]string, 0, len(sources))
				for _, s := range sources {
					rows = append(rows, []string{s.LocationLabel, string(s.Role), string(s.Availability), formatOptionalInt(s.Size), s.URI})
				}
				PrintTable(w, []string{"location", "role", "availability", "size", "uri"}, rows)
				if len(assigned) > 0 {
					_, _ = io.WriteString(w, "\n")
					frows := make([][]string, 0, len(assigned))
					for _, f := range assigned {
						frows = append(frows, []string{f.Flag.String(), f.AssertedBy, f.AssertedAt.UTC().Format(time.RFC3339)})
					}
					PrintTable(w, []string{"flag", "asserted_by", "asserted_at"}, frows)
				}
			})
		},
	}
}

func newProductsEventsCmd(a *app) *cobra.Command {
	var (
		since int64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "events [ID]",
		Short: "Show the audit events of a product, or the event log after --since",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			var events []domain.Event
			if len(args) == 1 {
				events, err = store.ListEvents(cmd.Context(), domain.EntityProduct, args[0])
			} else {
				events, err = store.EventsSince(cmd.Context(), since, limit)
			}
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), map[string]interface{}{"events": mapSlice(events, api.ToEventJSON)}, func(w io.Writer) {
				rows := make([][]string, 0, len(events))
				for _, e := range events {
					rows = append(rows, []string{
						strconv.FormatInt(e.Seq, 10), string(e.Type), e.EntityType, e.EntityID,
						e.OccurredAt.UTC().Format(time.RFC3339),
					})
				}
				PrintTable(w, []string{"seq", "type", "entity_type", "entity_id", "occurred_at"}, rows)
			})
		},
	}
	cmd.Flags().Int64Var(&since, "since", 0, "return events with a sequence number above this one")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events")
	return cmd
}

func newProductsSupersedeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "supersede ID",
		Short: "Mark a product as superseded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Supersede(cmd.Context(), args[0]); err != nil {
				return err
			}
			p, err := store.GetProduct(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), api.ToProductJSON(*p), func(w io.Writer) {
				PrintDetail(w, map[string]interface{}{"id": p.ID, "lifecycle": string(p.Lifecycle)})
			})
		},
	}
}

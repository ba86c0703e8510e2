package cli

import (
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"toltec-dpdb/internal/api"
	appsvc "toltec-dpdb/internal/app"
	internaldb "toltec-dpdb/internal/db"
	"toltec-dpdb/internal/domain"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or migrate the catalog and register the profile's locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p, err := a.instrument()
			if err != nil {
				return err
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			registered, err := appsvc.SeedLocations(ctx, store, p.DomainLocations())
			if err != nil {
				return err
			}
			schema, err := internaldb.SchemaVersion(store.ReadDB())
			if err != nil {
				return err
			}
			out := map[string]interface{}{
				"catalog":        a.cfg.CatalogPath,
				"schema_version": schema,
				"instrument":     p.Name,
				"registered":     registered,
			}
			return a.render(cmd.OutOrStdout(), out, func(w io.Writer) {
				PrintDetail(w, out)
			})
		},
	}
}

func newLocationCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "location",
		Short: "Manage data roots",
	}
	cmd.AddCommand(newLocationAddCmd(a), newLocationListCmd(a))
	return cmd
}

func newLocationAddCmd(a *app) *cobra.Command {
	var (
		typ      string
		priority int
		meta     []string
	)
	cmd := &cobra.Command{
		Use:   "add LABEL ROOT_URI",
		Short: "Register a location",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parsePairs(meta)
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			loc, err := store.RegisterLocation(cmd.Context(), domain.Location{
				Label: args[0], Type: domain.LocationType(typ), RootURI: args[1], Priority: priority, Meta: m,
			})
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), api.ToLocationJSON(*loc), func(w io.Writer) {
				printLocations(w, []domain.Location{*loc})
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", string(domain.LocationFilesystem), "backend type (filesystem, s3, gcs, azure, http)")
	cmd.Flags().IntVar(&priority, "priority", 0, "resolution priority; lower wins")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "key=value metadata (repeatable)")
	return cmd
}

func newLocationListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			locs, err := store.ListLocations(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), map[string]interface{}{"locations": mapSlice(locs, api.ToLocationJSON)}, func(w io.Writer) {
				printLocations(w, locs)
			})
		},
	}
}

func printLocations(w io.Writer, locs []domain.Location) {
	rows := make([][]string, 0, len(locs))
	for _, l := range locs {
		rows = append(rows, []string{l.Label, string(l.Type), l.RootURI, strconv.Itoa(l.Priority)})
	}
	PrintTable(w, []string{"label", "type", "root_uri", "priority"}, rows)
}

// parsePairs turns repeated key=value flags into a map.
func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, domain.ErrValidation("invalid key=value pair %q", p)
		}
		out[k] = v
	}
	return out, nil
}

func formatOptionalInt(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}

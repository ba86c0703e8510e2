package cli

import (
	"io"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"toltec-dpdb/internal/api"
	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/service/flags"
)

func newFlagsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "flags",
		Aliases: []string{"flag"},
		Short:   "Define quality flags and assert them on products",
	}
	cmd.AddCommand(
		newFlagsDefineCmd(a),
		newFlagsListCmd(a),
		newFlagsAssertCmd(a),
		newFlagsProductsCmd(a),
	)
	return cmd
}

func newFlagsDefineCmd(a *app) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "define NAMESPACE:LABEL",
		Short: "Register a flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := domain.ParseFlagRef(args[0])
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			f, err := flags.NewFlagService(store).DefineFlag(cmd.Context(), ref.Namespace, ref.Label, description)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), flagRow(*f), func(w io.Writer) {
				printFlags(w, []domain.Flag{*f})
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "what the flag means")
	return cmd
}

func newFlagsListCmd(a *app) *cobra.Command {
	var namespace string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List flag definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			fs, err := flags.NewFlagService(store).ListFlags(cmd.Context(), namespace)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), map[string]interface{}{"flags": mapSlice(fs, flagRow)}, func(w io.Writer) {
				printFlags(w, fs)
			})
		},
	}
	cmd.Flags().StringVar(&namespace, "namespace", "", "only this namespace")
	return cmd
}

func newFlagsAssertCmd(a *app) *cobra.Command {
	var (
		assertedBy string
		pairs      []string
	)
	cmd := &cobra.Command{
		Use:   "assert PRODUCT_ID NAMESPACE:LABEL",
		Short: "Assert a flag on a product",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := domain.ParseFlagRef(args[1])
			if err != nil {
				return err
			}
			assertCtx, err := parsePairs(pairs)
			if err != nil {
				return err
			}
			if assertedBy == "" {
				if u, err := user.Current(); err == nil {
					assertedBy = u.Username
				}
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			svc := flags.NewFlagService(store)
			if err := svc.AssertFlag(cmd.Context(), args[0], ref, assertedBy, assertCtx); err != nil {
				return err
			}
			assigned, err := svc.FlagsFor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), map[string]interface{}{"flags": mapSlice(assigned, api.ToFlagJSON)}, func(w io.Writer) {
				printAssignments(w, assigned)
			})
		},
	}
	cmd.Flags().StringVar(&assertedBy, "by", "", "asserter recorded on the flag; defaults to the current user")
	cmd.Flags().StringArrayVar(&pairs, "context", nil, "key=value assertion context (repeatable)")
	return cmd
}

func newFlagsProductsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "products NAMESPACE:LABEL",
		Short: "List the products carrying a flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := domain.ParseFlagRef(args[0])
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			assigned, err := flags.NewFlagService(store).ProductsWithFlag(cmd.Context(), ref)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), map[string]interface{}{"assignments": mapSlice(assigned, toAssignmentJSON)}, func(w io.Writer) {
				printAssignments(w, assigned)
			})
		},
	}
}

type assignmentJSON struct {
	ProductID string `json:"product_id"`
	api.FlagJSON
}

func toAssignmentJSON(a domain.FlagAssignment) assignmentJSON {
	return assignmentJSON{ProductID: a.ProductID, FlagJSON: api.ToFlagJSON(a)}
}

func flagRow(f domain.Flag) map[string]string {
	return map[string]string{"flag": f.Ref().String(), "description": f.Description}
}

func printFlags(w io.Writer, fs []domain.Flag) {
	rows := make([][]string, 0, len(fs))
	for _, f := range fs {
		rows = append(rows, []string{f.Ref().String(), f.Description})
	}
	PrintTable(w, []string{"flag", "description"}, rows)
}

func printAssignments(w io.Writer, assigned []domain.FlagAssignment) {
	rows := make([][]string, 0, len(assigned))
	for _, f := range assigned {
		rows = append(rows, []string{f.ProductID, f.Flag.String(), f.AssertedBy, f.AssertedAt.UTC().Format(time.RFC3339)})
	}
	PrintTable(w, []string{"product_id", "flag", "asserted_by", "asserted_at"}, rows)
}

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"toltec-dpdb/internal/engine"
)

func newQueryCmd(a *app) *cobra.Command {
	var views []string
	cmd := &cobra.Command{
		Use:   "query SQL",
		Short: "Run a read-only analytical query over the catalog and parquet files",
		Long: "Run one read-only statement in DuckDB with the catalog attached under the " +
			"\"catalog\" schema. --view name=glob registers parquet views first.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			viewGlobs, err := parsePairs(views)
			if err != nil {
				return err
			}
			eng, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			for name, glob := range viewGlobs {
				if err := eng.CreateParquetView(cmd.Context(), name, glob); err != nil {
					return err
				}
			}
			res, err := eng.Query(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.renderResult(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringArrayVar(&views, "view", nil, "name=glob parquet view available to the query (repeatable)")
	cmd.AddCommand(newQueryScanCmd(a), newQueryJoinCmd(a))
	return cmd
}

func newQueryScanCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "scan GLOB",
		Short: "Show rows of the parquet files matching a glob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			res, err := eng.ScanParquet(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return a.renderResult(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of rows")
	return cmd
}

func newQueryJoinCmd(a *app) *cobra.Command {
	var column string
	cmd := &cobra.Command{
		Use:   "join GLOB",
		Short: "Join parquet rows with catalog products on a product id column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			res, err := eng.JoinCatalog(cmd.Context(), args[0], column)
			if err != nil {
				return err
			}
			return a.renderResult(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&column, "column", "product_id", "parquet column holding the product id")
	return cmd
}

func (a *app) renderResult(w io.Writer, res *engine.Result) error {
	return a.render(w, res, func(w io.Writer) {
		rows := make([][]string, 0, len(res.Rows))
		for _, r := range res.Rows {
			row := make([]string, len(r))
			for i, v := range r {
				row[i] = formatCell(v)
			}
			rows = append(rows, row)
		}
		PrintTable(w, res.Columns, rows)
	})
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return strings.ReplaceAll(fmt.Sprintf("%v", x), "\n", " ")
	}
}

package cli

import (
	"io"

	"github.com/spf13/cobra"

	"toltec-dpdb/internal/service/maintenance"
)

func newMaintenanceCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:       "maintenance vacuum|analyze|export",
		Short:     "Run catalog housekeeping",
		Long:      "Run VACUUM or ANALYZE on the catalog, or export every catalog table to parquet files under --dir.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{maintenance.OpVacuum, maintenance.OpAnalyze, maintenance.OpExport},
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			var exporter maintenance.TableExporter
			if args[0] == maintenance.OpExport {
				eng, err := a.openEngine(cmd.Context())
				if err != nil {
					return err
				}
				exporter = eng
			}
			res, err := maintenance.NewService(store, exporter).Run(cmd.Context(), args[0], dir)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), res, func(w io.Writer) {
				PrintDetail(w, map[string]interface{}{
					"op":       res.Op,
					"tables":   res.Tables,
					"files":    res.Files,
					"duration": res.Duration.String(),
				})
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "export directory")
	return cmd
}

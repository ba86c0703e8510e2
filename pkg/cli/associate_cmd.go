package cli

import (
	"io"

	"github.com/spf13/cobra"

	"toltec-dpdb/internal/service/associations"
)

func newAssociateCmd(a *app) *cobra.Command {
	var opts associations.Options
	cmd := &cobra.Command{
		Use:   "associate",
		Short: "Group raw observations into calibration, drive fit and focus groups",
		Long: "Scan the raw observations in the catalog, build calibration, drive fit and focus groups " +
			"and link each group to its members. With --incremental, groups whose members are all linked are skipped.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			gen := associations.NewGenerator(store, nil,
				associations.WithToolVersion(version),
				associations.WithLogger(a.log()))
			stats, err := gen.Generate(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), stats, func(w io.Writer) {
				PrintDetail(w, map[string]interface{}{
					"observations scanned":   stats.ObservationsScanned,
					"already grouped":        stats.ObservationsAlreadyGrouped,
					"observations processed": stats.ObservationsProcessed,
					"groups created":         stats.GroupsCreated,
					"groups updated":         stats.GroupsUpdated,
					"groups unchanged":       stats.GroupsUnchanged,
					"edges created":          stats.EdgesCreated,
					"cal groups":             stats.CalGroups,
					"drivefit groups":        stats.DrivefitGroups,
					"focus groups":           stats.FocusGroups,
				})
			})
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "only consider the most recent N observations of each master (0 = all)")
	cmd.Flags().StringVar(&opts.Location, "location", "", "only consider observations with a source at this location")
	cmd.Flags().BoolVar(&opts.Incremental, "incremental", false, "skip groups whose members are already linked")
	return cmd
}

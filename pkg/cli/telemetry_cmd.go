package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"toltec-dpdb/internal/completion"
	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/telemetry"
)

// newTelemetryCmd writes acquisition rows to a telemetry SQL database. It is
// meant for test benches and replays; production rows come from acquisition.
func newTelemetryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telemetry",
		Short: "Write to a telemetry database",
	}
	cmd.AddCommand(newTelemetryInitCmd(a), newTelemetryRecordCmd(a))
	return cmd
}

func newTelemetryInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the telemetry tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openTelemetryDB()
			if err != nil {
				return err
			}
			return telemetry.CreateSchema(cmd.Context(), db)
		},
	}
}

func newTelemetryRecordCmd(a *app) *cobra.Command {
	var (
		invalid  bool
		fileName string
		at       string
	)
	cmd := &cobra.Command{
		Use:   "record KEY PART",
		Short: "Append one part row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := domain.ParseObservationKey(args[0])
			if err != nil {
				return err
			}
			p, err := a.instrument()
			if err != nil {
				return err
			}
			groups, err := completion.NewGroupTable(p.ExpectedParts, p.Groups)
			if err != nil {
				return err
			}
			part, err := groups.ParsePart(args[1])
			if err != nil {
				return err
			}
			ts := time.Now().UTC()
			if at != "" {
				if ts, err = time.Parse(time.RFC3339, at); err != nil {
					return domain.ErrValidation("invalid --at %q: %v", at, err)
				}
			}
			db, err := a.openTelemetryDB()
			if err != nil {
				return err
			}
			if err := telemetry.CreateSchema(cmd.Context(), db); err != nil {
				return err
			}
			rec := domain.PartRecord{Key: key, Part: part, Valid: !invalid, FileName: fileName, Timestamp: ts}
			if err := telemetry.Record(cmd.Context(), db, rec); err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), telemetry.ToPartJSON(rec), func(w io.Writer) {
				printRecords(w, groups, []domain.PartRecord{rec})
			})
		},
	}
	cmd.Flags().BoolVar(&invalid, "invalid", false, "record the part as not yet valid")
	cmd.Flags().StringVar(&fileName, "file", "", "file name written by the interface")
	cmd.Flags().StringVar(&at, "at", "", "acquisition time (RFC3339); defaults to now")
	return cmd
}

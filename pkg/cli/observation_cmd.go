package cli

import (
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"toltec-dpdb/internal/api"
	"toltec-dpdb/internal/completion"
	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/telemetry"
)

func newEvaluateCmd(a *app) *cobra.Command {
	var inspect bool
	cmd := &cobra.Command{
		Use:   "evaluate KEY",
		Short: "Classify every part of an observation",
		Long: "Classify every part of an observation as VALID, INVALID or MISSING. " +
			"The first evaluation that finds the observation complete reports it as newly " +
			"complete; --inspect leaves that transition for the next evaluation.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := domain.ParseObservationKey(args[0])
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			w, err := a.openWatcher(store)
			if err != nil {
				return err
			}
			var ev *completion.Evaluation
			if inspect {
				ev, err = w.Inspect(cmd.Context(), key)
			} else {
				ev, err = w.Evaluate(cmd.Context(), key)
			}
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), api.ObservationJSON{Key: key.String(), Evaluation: ev}, func(out io.Writer) {
				printEvaluation(out, key, ev)
			})
		},
	}
	cmd.Flags().BoolVar(&inspect, "inspect", false, "do not consume the newly-complete transition")
	return cmd
}

func printEvaluation(w io.Writer, key domain.ObservationKey, ev *completion.Evaluation) {
	PrintDetail(w, map[string]interface{}{
		"key":            key.String(),
		"valid":          strconv.Itoa(ev.ValidCount) + "/" + strconv.Itoa(ev.Expected),
		"found":          ev.TotalFound,
		"complete":       ev.IsComplete,
		"newly_complete": ev.IsNewlyComplete,
		"first_valid_at": formatOptionalTime(ev.FirstValidTime),
		"last_valid_at":  formatOptionalTime(ev.LastValidTime),
	})
	_, _ = io.WriteString(w, "\n")
	rows := make([][]string, 0, len(ev.PerPart))
	for _, ps := range ev.PerPart {
		status := ps.Status.String()
		if ps.Disabled {
			status += " (disabled)"
		}
		rows = append(rows, []string{strconv.Itoa(ps.Part), ps.Group, status})
	}
	PrintTable(w, []string{"part", "group", "status"}, rows)
}

func newRequireCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "require KEY [PART]",
		Short: "Fail unless a part, or the whole observation, is valid",
		Long: "Exit 0 when the part (or every enabled part) is valid. A missing part " +
			"exits with the not-found code; an invalid one with the incomplete code.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := domain.ParseObservationKey(args[0])
			if err != nil {
				return err
			}
			w, err := a.openWatcher(nil)
			if err != nil {
				return err
			}
			var records []domain.PartRecord
			if len(args) == 2 {
				part, err := w.Groups().ParsePart(args[1])
				if err != nil {
					return err
				}
				rec, err := w.RequireValid(cmd.Context(), key, part)
				if err != nil {
					return err
				}
				records = []domain.PartRecord{*rec}
			} else {
				if records, err = w.RequireComplete(cmd.Context(), key); err != nil {
					return err
				}
			}
			parts := make([]telemetry.PartJSON, 0, len(records))
			for _, r := range records {
				parts = append(parts, telemetry.ToPartJSON(r))
			}
			return a.render(cmd.OutOrStdout(), map[string]interface{}{"key": key.String(), "parts": parts}, func(out io.Writer) {
				printRecords(out, w.Groups(), records)
			})
		},
	}
}

func newObservationsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "observations",
		Short: "List observations with at least one valid part, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := a.openWatcher(nil)
			if err != nil {
				return err
			}
			keys, err := w.ActiveObservations(cmd.Context(), limit)
			if err != nil {
				return err
			}
			names := mapSlice(keys, domain.ObservationKey.String)
			return a.render(cmd.OutOrStdout(), map[string]interface{}{"observations": names}, func(out io.Writer) {
				rows := make([][]string, 0, len(names))
				for _, n := range names {
					rows = append(rows, []string{n})
				}
				PrintTable(out, []string{"observation"}, rows)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of observations")
	return cmd
}

func printRecords(w io.Writer, groups *completion.GroupTable, records []domain.PartRecord) {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		g, _ := groups.GroupOf(r.Part)
		rows = append(rows, []string{strconv.Itoa(r.Part), g, r.FileName, r.Timestamp.UTC().Format(time.RFC3339)})
	}
	PrintTable(w, []string{"part", "group", "filename", "timestamp"}, rows)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

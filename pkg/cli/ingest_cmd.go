package cli

import (
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/service/ingestion"
)

func newIngestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Catalog acquisition files",
	}
	cmd.AddCommand(
		newIngestFileCmd(a),
		newIngestDirCmd(a),
		newIngestObservationCmd(a),
		newIngestVerifyCmd(a),
	)
	return cmd
}

func newIngestFileCmd(a *app) *cobra.Command {
	var location, goal, target string
	cmd := &cobra.Command{
		Use:   "file PATH",
		Short: "Ingest one file found under a registered location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			svc, _, err := a.openIngestion(cmd.Context(), store, false, nil,
				ingestion.WithObservingGoal(goal, target))
			if err != nil {
				return err
			}
			res, err := svc.IngestFile(cmd.Context(), args[0], location)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), res, func(w io.Writer) {
				printResults(w, []ingestion.Result{*res})
			})
		},
	}
	cmd.Flags().StringVarP(&location, "location", "l", "lmt", "location label")
	cmd.Flags().StringVar(&goal, "obs-goal", "", "observing goal recorded on the observation (e.g. focus)")
	cmd.Flags().StringVar(&target, "source-name", "", "observed source recorded on the observation")
	return cmd
}

func newIngestDirCmd(a *app) *cobra.Command {
	var location, pattern, goal, target string
	cmd := &cobra.Command{
		Use:   "dir DIR",
		Short: "Ingest every acquisition file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			svc, _, err := a.openIngestion(cmd.Context(), store, false, nil,
				ingestion.WithObservingGoal(goal, target))
			if err != nil {
				return err
			}
			res, err := svc.IngestDirectory(cmd.Context(), args[0], location, pattern)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), res, func(w io.Writer) {
				printResults(w, res.Ingested)
				if len(res.Skipped) > 0 {
					_, _ = io.WriteString(w, "skipped "+strconv.Itoa(len(res.Skipped))+" file(s)\n")
				}
			})
		},
	}
	cmd.Flags().StringVarP(&location, "location", "l", "lmt", "location label")
	cmd.Flags().StringVar(&pattern, "pattern", "", "glob matched against base names")
	cmd.Flags().StringVar(&goal, "obs-goal", "", "observing goal recorded on every observation (e.g. focus)")
	cmd.Flags().StringVar(&target, "source-name", "", "observed source recorded on every observation")
	return cmd
}

func newIngestObservationCmd(a *app) *cobra.Command {
	var (
		location string
		partial  bool
	)
	cmd := &cobra.Command{
		Use:   "observation KEY",
		Short: "Ingest the files of an observation once telemetry marks it complete",
		Long: "Ingest the files of an observation. Without --partial every enabled part " +
			"must be valid; otherwise the command exits with the incomplete code so a " +
			"scheduler can retry later.",
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
			svc, _, err := a.openIngestion(cmd.Context(), store, true, nil)
			if err != nil {
				return err
			}
			var res []ingestion.Result
			if partial {
				res, err = svc.IngestAvailableParts(cmd.Context(), key, location)
			} else {
				res, err = svc.IngestObservation(cmd.Context(), key, location)
			}
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), map[string]interface{}{"key": key.String(), "ingested": res}, func(w io.Writer) {
				printResults(w, res)
			})
		},
	}
	cmd.Flags().StringVarP(&location, "location", "l", "lmt", "location label")
	cmd.Flags().BoolVar(&partial, "partial", false, "ingest only the parts that are valid now")
	return cmd
}

func newIngestVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify PRODUCT_ID",
		Short: "Re-check every source of a product against its backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			svc, _, err := a.openIngestion(cmd.Context(), store, false, nil)
			if err != nil {
				return err
			}
			vs, err := svc.VerifySources(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), map[string]interface{}{"verifications": vs}, func(w io.Writer) {
				rows := make([][]string, 0, len(vs))
				for _, v := range vs {
					rows = append(rows, []string{v.URI, string(v.Availability), formatOptionalInt(v.Size)})
				}
				PrintTable(w, []string{"uri", "availability", "size"}, rows)
			})
		},
	}
}

func printResults(w io.Writer, res []ingestion.Result) {
	rows := make([][]string, 0, len(res))
	for _, r := range res {
		rows = append(rows, []string{
			r.ProductID, r.UID, strconv.Itoa(r.Part), string(r.Availability),
			strconv.FormatBool(r.Created), r.SourceURI,
		})
	}
	PrintTable(w, []string{"product_id", "uid", "part", "availability", "created", "source_uri"}, rows)
}

// Package cli implements the dpdb command line: catalog administration,
// file and observation ingest, completion checks and the HTTP server.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd, a := newRootCmd()
	return execute(rootCmd, a, os.Stdout, os.Stderr)
}

func execute(rootCmd *cobra.Command, a *app, stdout, stderr io.Writer) int {
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	err := rootCmd.Execute()
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}
	if err == nil {
		return exitOK
	}
	code := exitCode(err)
	if a.output == "json" {
		_ = PrintJSON(stdout, errorObject(err, code))
	} else {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return code
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "dpdb",
		Short:         "TolTEC data product catalog",
		Long:          "Catalog, provenance and completion-gated ingestion for TolTEC acquisition data.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// flag > env > terminal detection
			if !cmd.Flags().Changed("output") {
				if v := os.Getenv("DPDB_OUTPUT"); v != "" {
					a.output = v
				} else {
					a.output = defaultOutput(os.Stdout)
				}
			}
			return validateOutputFormat(a.output)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	pf.StringVar(&a.catalogPath, "catalog", "", "catalog database file (overrides DPDB_CATALOG_PATH)")
	pf.StringVar(&a.instrumentFile, "instrument", "", "instrument profile YAML (overrides DPDB_INSTRUMENT_FILE)")
	pf.StringVar(&a.telemetryDSN, "telemetry-dsn", "", "telemetry database (overrides DPDB_TELEMETRY_DSN)")
	pf.StringVar(&a.telemetryURL, "telemetry-url", "", "telemetry REST facade (overrides DPDB_TELEMETRY_URL)")
	pf.BoolVar(&a.readOnly, "read-only", false, "open the catalog read-only; every write fails")
	pf.StringVarP(&a.output, "output", "o", "", "Output format (table, json); defaults to table on a terminal")

	rootCmd.AddCommand(newInitCmd(a))
	rootCmd.AddCommand(newLocationCmd(a))
	rootCmd.AddCommand(newIngestCmd(a))
	rootCmd.AddCommand(newEvaluateCmd(a))
	rootCmd.AddCommand(newRequireCmd(a))
	rootCmd.AddCommand(newObservationsCmd(a))
	rootCmd.AddCommand(newTelemetryCmd(a))
	rootCmd.AddCommand(newProductsCmd(a))
	rootCmd.AddCommand(newProvenanceCmd(a))
	rootCmd.AddCommand(newAssociateCmd(a))
	rootCmd.AddCommand(newFlagsCmd(a))
	rootCmd.AddCommand(newQueryCmd(a))
	rootCmd.AddCommand(newMaintenanceCmd(a))
	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newVersionCmd(a))
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd, a
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.output == "json" {
				return PrintJSON(cmd.OutOrStdout(), map[string]string{
					"version": version,
					"commit":  commit,
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "dpdb version %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	appsvc "toltec-dpdb/internal/app"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr     string
		location string
		noPoller bool
		noEngine bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the completion poller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			cfg, err := a.config()
			if err != nil {
				return err
			}
			logger := a.log()
			for _, w := range cfg.Warnings {
				logger.Warn(w)
			}
			p, err := a.instrument()
			if err != nil {
				return err
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			src, err := a.openTelemetry()
			if err != nil {
				return err
			}
			verifier, err := a.openVerifier(ctx)
			if err != nil {
				return err
			}
			deps := appsvc.Deps{
				Cfg:            cfg,
				Profile:        p,
				Store:          store,
				Telemetry:      src,
				Verifier:       verifier,
				Logger:         logger,
				IngestLocation: location,
				DisablePoller:  noPoller,
			}
			if !noEngine {
				if deps.Engine, err = a.openEngine(ctx); err != nil {
					return err
				}
			}
			srv, err := appsvc.New(ctx, deps)
			if err != nil {
				return err
			}

			if srv.Poller != nil {
				if err := srv.Poller.Start(ctx); err != nil {
					return err
				}
				defer srv.Poller.Stop()
			}

			if addr == "" {
				addr = cfg.ListenAddr
			}
			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           srv.Router(ctx),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       15 * time.Second,
				WriteTimeout:      5 * time.Minute,
				IdleTimeout:       120 * time.Second,
			}

			go func() {
				<-ctx.Done()
				logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := httpSrv.Shutdown(shutdownCtx); err != nil {
					logger.Error("shutdown error", "error", err)
				}
			}()

			logger.Info("dpdb listening", "addr", addr, "catalog", cfg.CatalogPath,
				"instrument", p.Name, "poller", srv.Poller != nil, "read_only", store.ReadOnly())
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address; defaults to LISTEN_ADDR")
	cmd.Flags().StringVar(&location, "location", "", "location ready observations are ingested into; defaults to the profile's first")
	cmd.Flags().BoolVar(&noPoller, "no-poller", false, "serve the API without polling for complete observations")
	cmd.Flags().BoolVar(&noEngine, "no-engine", false, "skip DuckDB; disables /v1/query and maintenance export")
	return cmd
}

package cli

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"

	"toltec-dpdb/internal/completion"
	"toltec-dpdb/internal/config"
	internaldb "toltec-dpdb/internal/db"
	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/engine"
	"toltec-dpdb/internal/metrics"
	"toltec-dpdb/internal/objectstore"
	"toltec-dpdb/internal/service/catalog"
	"toltec-dpdb/internal/service/ingestion"
	"toltec-dpdb/internal/telemetry"
)

// app carries the resolved flags and lazily opened resources of one
// invocation. Commands open only what they use; close releases everything.
type app struct {
	envFile        string
	catalogPath    string
	instrumentFile string
	telemetryDSN   string
	telemetryURL   string
	readOnly       bool
	output         string

	cfg     *config.Config
	profile *config.Profile
	logger  *slog.Logger
	closers []func() error
}

// config loads the dotenv file and the environment once, then applies flag
// overrides.
func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, domain.ErrConfiguration("%v", err)
	}
	if a.catalogPath != "" {
		cfg.CatalogPath = a.catalogPath
	}
	if a.instrumentFile != "" {
		cfg.InstrumentFile = a.instrumentFile
	}
	if a.telemetryDSN != "" {
		cfg.Telemetry.DSN, cfg.Telemetry.URL = a.telemetryDSN, ""
	}
	if a.telemetryURL != "" {
		cfg.Telemetry.URL, cfg.Telemetry.DSN = a.telemetryURL, ""
	}
	a.cfg = cfg
	a.logger = cfg.NewLogger(os.Stderr)
	return cfg, nil
}

func (a *app) log() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger
}

func (a *app) instrument() (config.Profile, error) {
	if a.profile != nil {
		return *a.profile, nil
	}
	cfg, err := a.config()
	if err != nil {
		return config.Profile{}, err
	}
	p, err := config.LoadProfile(cfg.InstrumentFile)
	if err != nil {
		return config.Profile{}, err
	}
	a.profile = &p
	return p, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) openStore(ctx context.Context) (*catalog.Store, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	store, err := catalog.Open(ctx, cfg.CatalogPath, a.readOnly, cfg.ReadPoolSize, catalog.WithLogger(a.log()))
	if err != nil {
		return nil, err
	}
	a.onClose(store.Close)
	return store, nil
}

// openTelemetry returns the configured telemetry source: a SQL database
// opened read-only or the REST facade client.
func (a *app) openTelemetry() (domain.TelemetrySource, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	switch {
	case cfg.Telemetry.DSN != "":
		db, err := internaldb.OpenSQLite(cfg.Telemetry.DSN, internaldb.ModeReadOnly, cfg.ReadPoolSize)
		if err != nil {
			return nil, err
		}
		a.onClose(db.Close)
		return telemetry.NewSQLSource(db, telemetry.SQLConfig{
			Timeout:     cfg.Telemetry.Timeout,
			MaxAttempts: cfg.Telemetry.Retries,
		}, a.log()), nil
	case cfg.Telemetry.URL != "":
		return telemetry.NewHTTPClient(telemetry.HTTPConfig{
			BaseURL:     cfg.Telemetry.URL,
			Timeout:     cfg.Telemetry.Timeout,
			MaxAttempts: cfg.Telemetry.Retries,
			RPS:         cfg.Telemetry.RPS,
		}, nil, a.log())
	default:
		return nil, domain.ErrConfiguration("no telemetry source: set DPDB_TELEMETRY_DSN or DPDB_TELEMETRY_URL")
	}
}

// openTelemetryDB opens the telemetry SQL database for writing.
func (a *app) openTelemetryDB() (*sql.DB, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	if cfg.Telemetry.DSN == "" {
		return nil, domain.ErrConfiguration("telemetry writes need DPDB_TELEMETRY_DSN")
	}
	db, err := internaldb.OpenSQLite(cfg.Telemetry.DSN, internaldb.ModeWrite, 1)
	if err != nil {
		return nil, err
	}
	a.onClose(db.Close)
	return db, nil
}

// openWatcher builds the completion watcher. A writable store persists the
// completion cursor; otherwise it lives in memory.
func (a *app) openWatcher(store *catalog.Store) (*completion.Watcher, error) {
	p, err := a.instrument()
	if err != nil {
		return nil, err
	}
	src, err := a.openTelemetry()
	if err != nil {
		return nil, err
	}
	var cursor domain.CompletionCursor
	if store != nil {
		cursor = store.Cursor()
	}
	return completion.NewWatcher(p.WatcherConfig(), src, cursor, completion.WithLogger(a.log()))
}

func (a *app) openVerifier(ctx context.Context) (*objectstore.Verifier, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	opts := objectstore.Options{HTTPTimeout: cfg.Telemetry.Timeout, Logger: a.log()}
	if cfg.HasS3Config() {
		s3 := &objectstore.S3Options{KeyID: *cfg.S3KeyID, Secret: *cfg.S3Secret}
		if cfg.S3Endpoint != nil {
			s3.Endpoint = *cfg.S3Endpoint
		}
		if cfg.S3Region != nil {
			s3.Region = *cfg.S3Region
		}
		opts.S3 = s3
	}
	if cfg.GCSEndpoint != "" || cfg.GCSKeyFile != "" {
		opts.GCS = &objectstore.GCSOptions{
			Endpoint:    cfg.GCSEndpoint,
			KeyFilePath: cfg.GCSKeyFile,
			Anonymous:   cfg.GCSKeyFile == "",
		}
	}
	if cfg.AzureAccountURL != "" {
		opts.Azure = &objectstore.AzureOptions{AccountURL: cfg.AzureAccountURL, AccountKey: cfg.AzureAccountKey}
	}
	return objectstore.New(ctx, opts)
}

// openIngestion wires the ingestion service. withWatcher is false for file
// and directory ingest, which never consult telemetry.
func (a *app) openIngestion(ctx context.Context, store *catalog.Store, withWatcher bool, m *metrics.Metrics, extra ...ingestion.Option) (*ingestion.Service, *completion.Watcher, error) {
	opts := []ingestion.Option{ingestion.WithLogger(a.log()), ingestion.WithMetrics(m)}
	var w *completion.Watcher
	if withWatcher {
		var err error
		if w, err = a.openWatcher(store); err != nil {
			return nil, nil, err
		}
	} else {
		p, err := a.instrument()
		if err != nil {
			return nil, nil, err
		}
		table, err := completion.NewGroupTable(p.ExpectedParts, p.Groups)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, ingestion.WithPartTable(table))
	}
	v, err := a.openVerifier(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc := ingestion.NewService(store, w, v, append(opts, extra...)...)
	return svc, w, nil
}

// openEngine attaches the catalog file to DuckDB. S3 credentials are passed
// through for s3:// parquet scans.
func (a *app) openEngine(ctx context.Context) (*engine.Engine, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	opts := engine.Options{Logger: a.log()}
	if cfg.HasS3Config() {
		s3 := &engine.S3Config{KeyID: *cfg.S3KeyID, Secret: *cfg.S3Secret}
		if cfg.S3Endpoint != nil {
			s3.Endpoint = *cfg.S3Endpoint
			s3.URLStyle = "path"
		}
		if cfg.S3Region != nil {
			s3.Region = *cfg.S3Region
		}
		opts.S3 = s3
	}
	eng, err := engine.Open(ctx, cfg.CatalogPath, opts)
	if err != nil {
		return nil, err
	}
	a.onClose(eng.Close)
	return eng, nil
}

// Package catalog implements the Catalog Store: transactional upserts of
// products with their sources, kinds and flags, plus the audit log.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	internaldb "toltec-dpdb/internal/db"
	"toltec-dpdb/internal/db/repository"
	"toltec-dpdb/internal/domain"
)

// Store is a handle on the catalog. A writable Store owns the single write
// pool; a read-only Store rejects every mutation with a ConfigurationError
// before touching storage.
type Store struct {
	writeDB  *sql.DB
	readDB   *sql.DB
	readOnly bool
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for created/updated stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a writable Store over an already-open pool pair.
func New(writeDB, readDB *sql.DB, opts ...Option) *Store {
	s := &Store{writeDB: writeDB, readDB: readDB, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewReadOnly returns a Store that can only query.
func NewReadOnly(readDB *sql.DB, opts ...Option) *Store {
	s := New(nil, readDB, opts...)
	s.readOnly = true
	return s
}

// Open opens the catalog file. Writable handles migrate and seed the schema;
// read-only handles use a mode=ro pool and never write.
func Open(ctx context.Context, path string, readOnly bool, readPool int, opts ...Option) (*Store, error) {
	if readOnly {
		readDB, err := internaldb.OpenSQLite(path, internaldb.ModeReadOnly, readPool)
		if err != nil {
			return nil, err
		}
		return NewReadOnly(readDB, opts...), nil
	}

	writeDB, readDB, err := internaldb.OpenSQLitePair(path, readPool)
	if err != nil {
		return nil, err
	}
	if err := internaldb.Init(ctx, writeDB); err != nil {
		_ = readDB.Close()
		_ = writeDB.Close()
		return nil, fmt.Errorf("init catalog: %w", err)
	}
	return New(writeDB, readDB, opts...), nil
}

// Close releases both pools.
func (s *Store) Close() error {
	var errs []error
	if s.readDB != nil {
		errs = append(errs, s.readDB.Close())
	}
	if s.writeDB != nil {
		errs = append(errs, s.writeDB.Close())
	}
	return errors.Join(errs...)
}

// ReadOnly reports whether the handle rejects writes.
func (s *Store) ReadOnly() bool { return s.readOnly }

// ReadDB exposes the query pool for analytical helpers.
func (s *Store) ReadDB() *sql.DB { return s.readDB }

// WriteDB exposes the single writer connection, or a ConfigurationError on a
// read-only handle.
func (s *Store) WriteDB(op string) (*sql.DB, error) {
	if s.readOnly {
		return nil, domain.ErrReadOnly(op)
	}
	return s.writeDB, nil
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time { return s.now() }

// Logger returns the store's logger.
func (s *Store) Logger() *slog.Logger { return s.logger }

// Tx bundles repositories bound to one write transaction.
type Tx struct {
	Products  *repository.ProductRepo
	Sources   *repository.SourceRepo
	Locations *repository.LocationRepo
	Kinds     *repository.KindRepo
	Edges     *repository.EdgeRepo
	Flags     *repository.FlagRepo
	Events    *repository.EventRepo
	Registry  *repository.RegistryRepo
	Tasks     *repository.TaskRepo

	// Now is fixed for the whole transaction.
	Now time.Time
	// CorrelationID groups the events written by this transaction.
	CorrelationID string
}

// Emit appends an audit event stamped with the transaction's time and correlation id.
func (t *Tx) Emit(ctx context.Context, typ domain.EventType, entityType, entityID string, payload map[string]interface{}) error {
	_, err := t.Events.Append(ctx, domain.Event{
		Type:          typ,
		EntityType:    entityType,
		EntityID:      entityID,
		CorrelationID: t.CorrelationID,
		Payload:       payload,
		OccurredAt:    t.Now,
	})
	return err
}

// WithTx runs fn inside one write transaction, committing on nil and rolling
// back otherwise. op names the operation for error messages.
func (s *Store) WithTx(ctx context.Context, op string, fn func(tx *Tx) error) error {
	if s.readOnly {
		return domain.ErrReadOnly(op)
	}

	sqlTx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer sqlTx.Rollback() //nolint:errcheck

	tx := &Tx{
		Products:      repository.NewProductRepo(sqlTx),
		Sources:       repository.NewSourceRepo(sqlTx),
		Locations:     repository.NewLocationRepo(sqlTx),
		Kinds:         repository.NewKindRepo(sqlTx),
		Edges:         repository.NewEdgeRepo(sqlTx),
		Flags:         repository.NewFlagRepo(sqlTx),
		Events:        repository.NewEventRepo(sqlTx),
		Registry:      repository.NewRegistryRepo(sqlTx),
		Tasks:         repository.NewTaskRepo(sqlTx),
		Now:           s.now().UTC(),
		CorrelationID: domain.NewID(),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func (s *Store) products() *repository.ProductRepo   { return repository.NewProductRepo(s.readDB) }
func (s *Store) sources() *repository.SourceRepo     { return repository.NewSourceRepo(s.readDB) }
func (s *Store) locations() *repository.LocationRepo { return repository.NewLocationRepo(s.readDB) }
func (s *Store) kinds() *repository.KindRepo         { return repository.NewKindRepo(s.readDB) }
func (s *Store) events() *repository.EventRepo       { return repository.NewEventRepo(s.readDB) }
func (s *Store) tasks() *repository.TaskRepo         { return repository.NewTaskRepo(s.readDB) }

// Edges returns a read repository for provenance edges.
func (s *Store) Edges() *repository.EdgeRepo { return repository.NewEdgeRepo(s.readDB) }

// Flags returns a read repository for flags.
func (s *Store) Flags() *repository.FlagRepo { return repository.NewFlagRepo(s.readDB) }

// Registry returns a read repository for the type registries.
func (s *Store) Registry() *repository.RegistryRepo { return repository.NewRegistryRepo(s.readDB) }

// Cursor returns the catalog-backed completion cursor, or nil on a read-only
// handle so the watcher falls back to its in-memory cursor.
func (s *Store) Cursor() domain.CompletionCursor {
	if s.readOnly {
		return nil
	}
	return repository.NewCursorRepo(s.writeDB)
}

// Package ingestion implements the orchestrator entry points that turn
// acquisition files into catalog products.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"toltec-dpdb/internal/completion"
	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/filename"
	"toltec-dpdb/internal/identity"
	"toltec-dpdb/internal/metrics"
	"toltec-dpdb/internal/objectstore"
	"toltec-dpdb/internal/service/catalog"
)

// DefaultParallelism bounds concurrent file ingests in IngestDirectory.
const DefaultParallelism = 8

// Service ingests files and observations into the catalog.
type Service struct {
	store     *catalog.Store
	watcher   *completion.Watcher
	parts     *completion.GroupTable
	verifier  domain.SourceVerifier
	master    string
	checksums bool
	obsGoal   string
	target    string
	parallel  int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMaster fixes the master recorded in observation keys. By default the
// filename prefix is used.
func WithMaster(master string) Option {
	return func(s *Service) { s.master = master }
}

// WithChecksums hashes local files and records the digest on their source.
func WithChecksums(on bool) Option {
	return func(s *Service) { s.checksums = on }
}

// WithPartTable bounds the part index accepted from filenames. It defaults
// to the watcher's group table.
func WithPartTable(t *completion.GroupTable) Option {
	return func(s *Service) { s.parts = t }
}

// WithObservingGoal records the telescope's observing goal and target source
// on every raw observation the service ingests.
func WithObservingGoal(goal, sourceName string) Option {
	return func(s *Service) {
		s.obsGoal = goal
		s.target = sourceName
	}
}

// WithParallelism sets the directory ingest concurrency.
func WithParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallel = n
		}
	}
}

// WithMetrics counts ingested files per location and outcome.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates an ingestion service. watcher may be nil when only file
// and directory ingest are used.
func NewService(store *catalog.Store, watcher *completion.Watcher, verifier domain.SourceVerifier, opts ...Option) *Service {
	s := &Service{
		store:    store,
		watcher:  watcher,
		verifier: verifier,
		parallel: DefaultParallelism,
		logger:   store.Logger(),
	}
	if watcher != nil {
		s.parts = watcher.Groups()
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Result describes one ingested file.
type Result struct {
	ProductID    string                   `json:"product_id"`
	UID          string                   `json:"uid"`
	SourceURI    string                   `json:"source_uri"`
	Part         int                      `json:"part"`
	Availability domain.AvailabilityState `json:"availability"`
	Created      bool                     `json:"created"`
}

// IngestFile catalogs one acquisition file found under a registered location.
// path may be absolute or relative to the location root.
func (s *Service) IngestFile(ctx context.Context, path, locationLabel string) (*Result, error) {
	if s.store.ReadOnly() {
		return nil, domain.ErrReadOnly("ingest file")
	}
	name, err := filename.Parse(path)
	if err != nil {
		return nil, err
	}
	if s.parts != nil && name.Grammar != filename.GrammarTimestream {
		if err := s.parts.CheckPart(name.Part); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	loc, err := s.store.GetLocation(ctx, locationLabel)
	if err != nil {
		return nil, err
	}
	uri, localPath, err := ResolveSource(*loc, path)
	if err != nil {
		return nil, err
	}

	key := name.Key(s.master)
	id, err := identity.RawObsID(key)
	if err != nil {
		return nil, err
	}

	ver, err := s.verify(ctx, *loc, uri)
	if err != nil {
		return nil, err
	}

	src := domain.Source{
		URI:            uri,
		LocationLabel:  loc.Label,
		Role:           roleFor(*loc),
		Availability:   ver.Availability,
		Size:           ver.Size,
		Meta:           sourceMeta(name),
		LastVerifiedAt: &ver.VerifiedAt,
	}
	if s.checksums && localPath != "" && ver.Availability == domain.AvailabilityAvailable {
		sum, err := checksum(localPath)
		if err != nil {
			return nil, err
		}
		src.Checksum = &sum
	}

	availability := domain.AvailabilityAvailable
	if ver.Availability != domain.AvailabilityAvailable {
		availability = domain.AvailabilityMissing
	}
	u := domain.ProductUpsert{
		ID:           id,
		Type:         domain.TypeRawObs,
		Lifecycle:    domain.LifecycleActive,
		Availability: availability,
		Meta: domain.RawObsMeta{
			Name:       identity.RawObsUID(key),
			Master:     key.Master,
			ObsNum:     key.ObsNum,
			SubObsNum:  key.SubObsNum,
			ScanNum:    key.ScanNum,
			DataKind:   name.DataKind(),
			ObsGoal:    s.obsGoal,
			SourceName: s.target,
		},
	}

	res, err := s.store.UpsertWithSource(ctx, u, src, name.DataKind())
	if err != nil {
		s.metrics.Ingested(loc.Label, "failed")
		return nil, fmt.Errorf("ingest %s: %w", uri, err)
	}
	if res.Created {
		s.metrics.Ingested(loc.Label, "created")
	} else {
		s.metrics.Ingested(loc.Label, "updated")
	}
	s.logger.Info("file ingested",
		"obs_key", key.String(), "part", name.Part, "product_id", id,
		"source_uri", uri, "created", res.Created)
	return &Result{
		ProductID:    id,
		UID:          identity.RawObsUID(key),
		SourceURI:    uri,
		Part:         name.Part,
		Availability: ver.Availability,
		Created:      res.Created,
	}, nil
}

func (s *Service) verify(ctx context.Context, loc domain.Location, uri string) (domain.SourceVerification, error) {
	if s.verifier == nil {
		return domain.SourceVerification{}, domain.ErrConfiguration("ingestion has no source verifier")
	}
	return s.verifier.Verify(ctx, loc, uri)
}

// DirectoryResult summarizes IngestDirectory.
type DirectoryResult struct {
	Ingested []Result `json:"ingested"`
	Skipped  []string `json:"skipped,omitempty"`
}

// IngestDirectory walks dir and ingests every file whose base name matches
// pattern (any name when empty) and one of the acquisition grammars. Other
// files are reported as skipped. The first ingest error cancels the rest.
func (s *Service) IngestDirectory(ctx context.Context, dir, locationLabel, pattern string) (*DirectoryResult, error) {
	if s.store.ReadOnly() {
		return nil, domain.ErrReadOnly("ingest directory")
	}
	if pattern != "" {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, domain.ErrValidation("invalid pattern %q: %v", pattern, err)
		}
	}

	var files, skipped []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		base := d.Name()
		if pattern != "" {
			if ok, _ := filepath.Match(pattern, base); !ok {
				return nil
			}
		}
		if _, err := filename.Parse(base); err != nil {
			skipped = append(skipped, path)
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	var (
		mu  sync.Mutex
		out = &DirectoryResult{Skipped: skipped}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for _, f := range files {
		g.Go(func() error {
			res, err := s.IngestFile(gctx, f, locationLabel)
			if err != nil {
				return err
			}
			mu.Lock()
			out.Ingested = append(out.Ingested, *res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(out.Ingested, func(i, j int) bool { return out.Ingested[i].SourceURI < out.Ingested[j].SourceURI })
	s.logger.Info("directory ingested", "dir", dir, "files", len(out.Ingested), "skipped", len(skipped))
	return out, nil
}

// IngestObservation ingests the files of a complete observation. Every
// enabled part must be VALID; otherwise the watcher's NotFoundError or
// IncompleteDataError is returned unchanged so the caller can reschedule.
func (s *Service) IngestObservation(ctx context.Context, key domain.ObservationKey, locationLabel string) ([]Result, error) {
	if s.watcher == nil {
		return nil, domain.ErrConfiguration("observation ingest needs a completion watcher")
	}
	records, err := s.watcher.RequireComplete(ctx, key)
	if err != nil {
		var inc *domain.IncompleteDataError
		if errors.As(err, &inc) {
			s.logger.Info("observation not yet ready", "obs_key", key.String(), "part", inc.Part)
		}
		return nil, err
	}
	return s.ingestRecords(ctx, key, locationLabel, records)
}

// IngestAvailableParts ingests only the VALID parts of an observation. It
// serves observations released as partial after the validation timeout.
func (s *Service) IngestAvailableParts(ctx context.Context, key domain.ObservationKey, locationLabel string) ([]Result, error) {
	if s.watcher == nil {
		return nil, domain.ErrConfiguration("observation ingest needs a completion watcher")
	}
	ev, err := s.watcher.Inspect(ctx, key)
	if err != nil {
		return nil, err
	}
	var records []domain.PartRecord
	for _, ps := range ev.PerPart {
		if ps.Status == domain.PartValid && !ps.Disabled && ps.Record != nil {
			records = append(records, *ps.Record)
		}
	}
	if len(records) == 0 {
		return nil, &domain.IncompleteDataError{ObservationKey: key.String(), Part: -1, Reason: "no valid parts"}
	}
	return s.ingestRecords(ctx, key, locationLabel, records)
}

func (s *Service) ingestRecords(ctx context.Context, key domain.ObservationKey, locationLabel string, records []domain.PartRecord) ([]Result, error) {
	out := make([]Result, 0, len(records))
	for _, rec := range records {
		if rec.FileName == "" {
			s.logger.Warn("telemetry record has no file name", "obs_key", key.String(), "part", rec.Part)
			continue
		}
		res, err := s.IngestFile(ctx, rec.FileName, locationLabel)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, nil
}

// VerifySources re-checks every source of a product and records the outcome.
func (s *Service) VerifySources(ctx context.Context, productID string) ([]domain.SourceVerification, error) {
	if s.store.ReadOnly() {
		return nil, domain.ErrReadOnly("verify sources")
	}
	if _, err := s.store.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	sources, err := s.store.ListSources(ctx, productID)
	if err != nil {
		return nil, err
	}

	locs := make(map[string]*domain.Location)
	out := make([]domain.SourceVerification, 0, len(sources))
	for _, src := range sources {
		loc, ok := locs[src.LocationLabel]
		if !ok {
			loc, err = s.store.GetLocation(ctx, src.LocationLabel)
			if err != nil {
				return nil, err
			}
			locs[src.LocationLabel] = loc
		}
		v, err := s.verify(ctx, *loc, src.URI)
		if err != nil {
			return nil, err
		}
		if err := s.store.RecordVerification(ctx, v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ResolveSource maps a file path to its source URI under loc. For filesystem
// locations it also returns the local path; paths outside the root are a
// ValidationError.
func ResolveSource(loc domain.Location, path string) (uri, localPath string, err error) {
	root := strings.TrimSuffix(loc.RootURI, "/")
	if loc.Type != domain.LocationFilesystem {
		rel := path
		if strings.Contains(path, "://") {
			if !strings.HasPrefix(path, root+"/") {
				return "", "", domain.ErrValidation("%s is not under location %q (%s)", path, loc.Label, loc.RootURI)
			}
			rel = strings.TrimPrefix(path, root+"/")
		}
		return root + "/" + strings.TrimPrefix(rel, "/"), "", nil
	}

	rootPath, err := objectstore.LocalPath(loc.RootURI)
	if err != nil {
		return "", "", err
	}
	p, err := objectstore.LocalPath(path)
	if err != nil {
		return "", "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(rootPath, p)
	}
	rel, err := filepath.Rel(rootPath, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", domain.ErrValidation("%s is not under location %q (%s)", path, loc.Label, loc.RootURI)
	}
	return root + "/" + filepath.ToSlash(rel), p, nil
}

func roleFor(loc domain.Location) domain.StorageRole {
	if loc.Priority == 0 {
		return domain.RolePrimary
	}
	return domain.RoleMirror
}

func sourceMeta(n filename.Name) domain.SourceMeta {
	m := domain.SourceMeta{Interface: n.Grammar.String()}
	if n.Grammar == filename.GrammarTimestream {
		return m
	}
	part := n.Part
	m.NwID = &part
	if n.Grammar == filename.GrammarInterface {
		m.Interface = n.Interface
		roach := n.RoachID
		m.RoachID = &roach
	}
	return m
}

func checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return identity.ContentHash(f)
}

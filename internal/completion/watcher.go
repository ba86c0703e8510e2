// Package completion decides when a multi-part observation is safe to
// consume. A Watcher classifies each expected part as MISSING, INVALID or
// VALID from the telemetry source on every call; it keeps no state of its
// own. Completion transitions are recorded through an injected cursor.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"toltec-dpdb/internal/domain"
)

// DefaultExpectedParts is the number of readout interfaces in a TolTEC observation.
const DefaultExpectedParts = 13

// DefaultActiveLimit bounds ActiveObservations when the caller passes no limit.
const DefaultActiveLimit = 100

// Config describes the parts of one instrument's observations.
type Config struct {
	ExpectedParts int
	DisabledParts []int
	Groups        []Group
}

// DefaultConfig is the TolTEC layout with no disabled parts.
func DefaultConfig() Config {
	return Config{ExpectedParts: DefaultExpectedParts, Groups: DefaultGroups}
}

// Watcher evaluates observation completion against a telemetry source.
// It is safe for concurrent use.
type Watcher struct {
	source   domain.TelemetrySource
	cursor   domain.CompletionCursor
	table    *GroupTable
	disabled map[int]bool
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher's logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithClock overrides the time recorded on completion.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.now = now }
}

// NewWatcher validates cfg and returns a Watcher. A nil cursor gets a
// process-local MemoryCursor.
func NewWatcher(cfg Config, source domain.TelemetrySource, cursor domain.CompletionCursor, opts ...Option) (*Watcher, error) {
	if source == nil {
		return nil, domain.ErrConfiguration("completion watcher requires a telemetry source")
	}
	table, err := NewGroupTable(cfg.ExpectedParts, cfg.Groups)
	if err != nil {
		return nil, err
	}
	disabled := make(map[int]bool, len(cfg.DisabledParts))
	for _, p := range cfg.DisabledParts {
		if err := table.CheckPart(p); err != nil {
			return nil, fmt.Errorf("disabled parts: %w", err)
		}
		disabled[p] = true
	}
	if len(disabled) == cfg.ExpectedParts {
		return nil, domain.ErrValidation("all %d parts are disabled", cfg.ExpectedParts)
	}
	if cursor == nil {
		cursor = NewMemoryCursor()
	}
	w := &Watcher{
		source:   source,
		cursor:   cursor,
		table:    table,
		disabled: disabled,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Groups returns the watcher's part group table.
func (w *Watcher) Groups() *GroupTable { return w.table }

// ExpectedParts is the number of enabled parts an observation needs.
func (w *Watcher) ExpectedParts() int { return w.table.Expected() - len(w.disabled) }

// PartState is the classification of one part index.
type PartState struct {
	Part     int                `json:"part"`
	Group    string             `json:"group"`
	Status   domain.PartStatus  `json:"status"`
	Disabled bool               `json:"disabled,omitempty"`
	Record   *domain.PartRecord `json:"-"`
}

// GroupSummary counts part states within one group. Disabled parts are not counted.
type GroupSummary struct {
	Name    string `json:"name"`
	Valid   int    `json:"valid"`
	Invalid int    `json:"invalid"`
	Missing int    `json:"missing"`
}

// Evaluation is the result of classifying one observation.
type Evaluation struct {
	Key             domain.ObservationKey `json:"-"`
	PerPart         []PartState           `json:"parts"`
	Groups          []GroupSummary        `json:"groups"`
	Expected        int                   `json:"expected"`
	ValidCount      int                   `json:"valid_count"`
	TotalFound      int                   `json:"total_found"`
	FirstValidTime  *time.Time            `json:"first_valid_time,omitempty"`
	LastValidTime   *time.Time            `json:"last_valid_time,omitempty"`
	IsComplete      bool                  `json:"is_complete"`
	IsNewlyComplete bool                  `json:"is_newly_complete"`
}

// Evaluate reads every part record of key and classifies the observation.
// IsNewlyComplete is true for exactly one caller: the one whose evaluation
// first finds all enabled parts valid and wins the cursor's compare-and-set.
func (w *Watcher) Evaluate(ctx context.Context, key domain.ObservationKey) (*Evaluation, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	records, err := w.source.Parts(ctx, key)
	if err != nil {
		return nil, err
	}

	ev := w.classify(key, records)
	if !ev.IsComplete {
		return ev, nil
	}
	first, err := w.cursor.MarkComplete(ctx, key, w.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("completion cursor %s: %w", key, err)
	}
	ev.IsNewlyComplete = first
	if first {
		w.logger.Info("observation complete", "key", key.String(), "parts", ev.ValidCount)
	}
	return ev, nil
}

// Inspect classifies key like Evaluate but leaves the cursor untouched, so
// IsNewlyComplete is always false. Read-only callers such as the HTTP API use
// it to avoid consuming the completion transition.
func (w *Watcher) Inspect(ctx context.Context, key domain.ObservationKey) (*Evaluation, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	records, err := w.source.Parts(ctx, key)
	if err != nil {
		return nil, err
	}
	return w.classify(key, records), nil
}

func (w *Watcher) classify(key domain.ObservationKey, records []domain.PartRecord) *Evaluation {
	n := w.table.Expected()
	ev := &Evaluation{
		Key:      key,
		PerPart:  make([]PartState, n),
		Expected: w.ExpectedParts(),
	}
	for p := 0; p < n; p++ {
		group, _ := w.table.GroupOf(p)
		ev.PerPart[p] = PartState{Part: p, Group: group, Status: domain.PartMissing, Disabled: w.disabled[p]}
	}

	for i := range records {
		rec := records[i]
		if rec.Part < 0 || rec.Part >= n {
			w.logger.Warn("telemetry part out of range", "key", key.String(), "part", rec.Part)
			continue
		}
		// several rows for one part: the most advanced state wins
		st := &ev.PerPart[rec.Part]
		if st.Record == nil || rec.Status() > st.Status {
			st.Status = rec.Status()
			st.Record = &rec
		}
	}

	summaries := make(map[string]*GroupSummary, len(w.table.groups))
	for _, g := range w.table.groups {
		ev.Groups = append(ev.Groups, GroupSummary{Name: g.Name})
	}
	for i := range ev.Groups {
		summaries[ev.Groups[i].Name] = &ev.Groups[i]
	}

	for _, st := range ev.PerPart {
		if st.Disabled {
			continue
		}
		gs := summaries[st.Group]
		switch st.Status {
		case domain.PartMissing:
			gs.Missing++
			continue
		case domain.PartInvalid:
			gs.Invalid++
		case domain.PartValid:
			gs.Valid++
			ev.ValidCount++
			ts := st.Record.Timestamp
			if ev.FirstValidTime == nil || ts.Before(*ev.FirstValidTime) {
				ev.FirstValidTime = &ts
			}
			if ev.LastValidTime == nil || ts.After(*ev.LastValidTime) {
				ev.LastValidTime = &ts
			}
		}
		ev.TotalFound++
	}
	ev.IsComplete = ev.ValidCount == ev.Expected
	return ev
}

// RequireValid returns the record of a VALID part. A part absent from
// telemetry is a NotFoundError; a present but INVALID part is an
// IncompleteDataError the caller should retry later.
func (w *Watcher) RequireValid(ctx context.Context, key domain.ObservationKey, part int) (*domain.PartRecord, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := w.table.CheckPart(part); err != nil {
		return nil, err
	}
	if w.disabled[part] {
		return nil, domain.ErrValidation("observation %s part %d is disabled", key, part)
	}

	rec, err := w.source.Part(ctx, key, part)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return nil, domain.ErrNotFound("observation %s part %d not found", key, part)
		}
		return nil, err
	}
	if !rec.Valid {
		return nil, &domain.IncompleteDataError{
			ObservationKey: key.String(),
			Part:           part,
			Reason:         "part present but not yet valid",
		}
	}
	return rec, nil
}

// RequireComplete calls RequireValid for every enabled part and returns the
// records in part order. The first missing or incomplete part stops the scan.
func (w *Watcher) RequireComplete(ctx context.Context, key domain.ObservationKey) ([]domain.PartRecord, error) {
	out := make([]domain.PartRecord, 0, w.ExpectedParts())
	for p := 0; p < w.table.Expected(); p++ {
		if w.disabled[p] {
			continue
		}
		rec, err := w.RequireValid(ctx, key, p)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// NewerObservationSeen reports whether telemetry already holds a later
// observation of the same master, meaning acquisition has moved on.
func (w *Watcher) NewerObservationSeen(ctx context.Context, key domain.ObservationKey) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	return w.source.HasLater(ctx, key)
}

// ActiveObservations returns the currently known observation keys, newest first.
func (w *Watcher) ActiveObservations(ctx context.Context, limit int) ([]domain.ObservationKey, error) {
	if limit <= 0 {
		limit = DefaultActiveLimit
	}
	return w.source.Active(ctx, limit)
}

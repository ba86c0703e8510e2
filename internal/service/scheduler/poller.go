// Package scheduler drives the completion watcher from a cron schedule and
// hands ready observations to a handler.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"toltec-dpdb/internal/completion"
	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/metrics"
)

// DefaultSchedule polls every five seconds.
const DefaultSchedule = "@every 5s"

// Handler processes a ready observation. A retryable error keeps the
// observation pending for the next poll.
type Handler func(ctx context.Context, key domain.ObservationKey, r completion.Readiness) error

// EventRecorder appends audit events. Implemented by catalog.Store.
type EventRecorder interface {
	RecordEvent(ctx context.Context, typ domain.EventType, entityType, entityID string, payload map[string]interface{}) error
}

// Config configures a Poller.
type Config struct {
	Schedule          string
	Limit             int
	ValidationTimeout time.Duration
	// DropIncomplete abandons observations whose handler returns a
	// retryable error instead of retrying them on the next poll.
	DropIncomplete bool
	Metrics        *metrics.Metrics
}

// PollResult summarizes one poll.
type PollResult struct {
	Polled   int                     `json:"polled"`
	Released []domain.ObservationKey `json:"released"`
	Pending  int                     `json:"pending"`
	Waiting  int                     `json:"waiting"`
}

// Poller evaluates active observations on a schedule. Complete observations
// are released exactly once through the watcher's cursor; partial ones are
// released once the tracker's timeout allows it.
type Poller struct {
	cron     *cron.Cron
	schedule string
	limit    int
	drop     bool
	metrics  *metrics.Metrics
	watcher  *completion.Watcher
	tracker  *completion.Tracker
	events   EventRecorder
	handler  Handler
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	released map[domain.ObservationKey]bool
	pending  map[domain.ObservationKey]completion.Readiness
}

// NewPoller creates a poller. events may be nil.
func NewPoller(cfg Config, watcher *completion.Watcher, events EventRecorder, handler Handler, logger *slog.Logger) *Poller {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cron:     cron.New(),
		schedule: cfg.Schedule,
		limit:    cfg.Limit,
		drop:     cfg.DropIncomplete,
		metrics:  cfg.Metrics,
		watcher:  watcher,
		tracker:  completion.NewTracker(cfg.ValidationTimeout),
		events:   events,
		handler:  handler,
		logger:   logger,
		now:      time.Now,
		released: make(map[domain.ObservationKey]bool),
		pending:  make(map[domain.ObservationKey]completion.Readiness),
	}
}

// Start registers the poll job and starts cron. An invalid schedule is a
// ConfigurationError.
func (p *Poller) Start(ctx context.Context) error {
	_, err := p.cron.AddFunc(p.schedule, func() {
		if _, err := p.Poll(ctx); err != nil {
			p.logger.Warn("completion poll failed", "error", err)
		}
	})
	if err != nil {
		return domain.ErrConfiguration("invalid poll schedule %q: %v", p.schedule, err)
	}
	p.cron.Start()
	p.logger.Info("completion poller started", "schedule", p.schedule)
	return nil
}

// Stop stops cron and waits for a running poll to finish.
func (p *Poller) Stop() {
	<-p.cron.Stop().Done()
	p.logger.Info("completion poller stopped")
}

// Poll runs one evaluation round. Polls never overlap.
func (p *Poller) Poll(ctx context.Context) (*PollResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.now()
	res := &PollResult{}
	defer func() { p.metrics.Polled(p.now().Sub(start), len(p.pending)) }()

	for key, r := range p.pending {
		if p.dispatch(ctx, key, r) {
			res.Released = append(res.Released, key)
		}
	}

	keys, err := p.watcher.ActiveObservations(ctx, p.limit)
	if err != nil {
		return nil, err
	}
	res.Polled = len(keys)

	for _, key := range keys {
		if p.released[key] {
			continue
		}
		ev, err := p.watcher.Evaluate(ctx, key)
		if err != nil {
			p.logger.Warn("evaluate failed", "obs_key", key.String(), "error", err)
			continue
		}
		if ev.IsComplete && !ev.IsNewlyComplete {
			// Released by an earlier poll or another process.
			p.released[key] = true
			p.tracker.Forget(key)
			continue
		}

		newer := false
		if !ev.IsComplete {
			newer, err = p.watcher.NewerObservationSeen(ctx, key)
			if err != nil {
				p.logger.Warn("newer observation check failed", "obs_key", key.String(), "error", err)
				continue
			}
		}
		r := p.tracker.Observe(ev, newer, p.now())
		if !r.Ready {
			p.logger.Debug("observation waiting", "obs_key", key.String(), "reason", r.Reason)
			continue
		}

		p.released[key] = true
		p.record(ctx, key, ev, r)
		if p.dispatch(ctx, key, r) {
			res.Released = append(res.Released, key)
		}
	}

	res.Pending = len(p.pending)
	res.Waiting = p.tracker.Tracked()
	return res, nil
}

// dispatch runs the handler, parking the observation in pending on a
// retryable failure. It reports whether the handler succeeded.
func (p *Poller) dispatch(ctx context.Context, key domain.ObservationKey, r completion.Readiness) bool {
	if p.handler == nil {
		delete(p.pending, key)
		return true
	}
	err := p.handler(ctx, key, r)
	switch {
	case err == nil:
		delete(p.pending, key)
		p.metrics.Released(r.Partial)
		p.logger.Info("observation released", "obs_key", key.String(), "partial", r.Partial, "reason", r.Reason)
		return true
	case domain.IsRetryable(err) && p.drop:
		delete(p.pending, key)
		p.logger.Info("observation not ready, dropped", "obs_key", key.String(), "error", err)
	case domain.IsRetryable(err):
		p.pending[key] = r
		p.logger.Info("observation not yet ready", "obs_key", key.String(), "error", err)
	default:
		delete(p.pending, key)
		p.logger.Error("observation handler failed", "obs_key", key.String(), "error", err)
	}
	return false
}

func (p *Poller) record(ctx context.Context, key domain.ObservationKey, ev *completion.Evaluation, r completion.Readiness) {
	if p.events == nil {
		return
	}
	payload := map[string]interface{}{
		"valid_count": ev.ValidCount,
		"expected":    ev.Expected,
		"partial":     r.Partial,
		"reason":      r.Reason,
	}
	if err := p.events.RecordEvent(ctx, domain.EventObservationReady, domain.EntityObservation, key.String(), payload); err != nil {
		p.logger.Warn("record observation event failed", "obs_key", key.String(), "error", err)
	}
}

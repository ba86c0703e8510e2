package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toltec-dpdb/internal/completion"
	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) RecordEvent(_ context.Context, typ domain.EventType, _, entityID string, _ map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, string(typ)+":"+entityID)
	return nil
}

type handled struct {
	mu    sync.Mutex
	calls []domain.ObservationKey
	last  completion.Readiness
	errs  []error
}

func (h *handled) handle(_ context.Context, key domain.ObservationKey, r completion.Readiness) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, key)
	h.last = r
	if len(h.errs) > 0 {
		err := h.errs[0]
		h.errs = h.errs[1:]
		return err
	}
	return nil
}

func newPoller(t *testing.T, tel *testutil.FakeTelemetry, h *handled, rec *recorder) *Poller {
	t.Helper()
	w, err := completion.NewWatcher(completion.DefaultConfig(), tel, nil)
	require.NoError(t, err)
	return NewPoller(Config{ValidationTimeout: time.Minute}, w, rec, h.handle, discardLogger())
}

var t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func TestPoll_ReleasesCompleteOnce(t *testing.T) {
	tel := testutil.NewFakeTelemetry()
	key := domain.ObservationKey{Master: "toltec", ObsNum: 10}
	tel.SetRange(key, 0, 12, true, t0)

	h, rec := &handled{}, &recorder{}
	p := newPoller(t, tel, h, rec)

	res, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.ObservationKey{key}, res.Released)
	assert.True(t, h.last.Ready)
	assert.False(t, h.last.Partial)
	assert.Equal(t, []string{"observation.complete:toltec-10-0-0"}, rec.events)

	res, err = p.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Released)
	assert.Len(t, h.calls, 1)
	assert.Len(t, rec.events, 1)
}

func TestPoll_PartialAfterTimeoutWithNewerObservation(t *testing.T) {
	tel := testutil.NewFakeTelemetry()
	key := domain.ObservationKey{Master: "toltec", ObsNum: 10}
	tel.SetRange(key, 0, 10, true, t0)

	h := &handled{}
	p := newPoller(t, tel, h, nil)
	now := t0
	p.now = func() time.Time { return now }

	res, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Released)
	assert.Equal(t, 1, res.Waiting)

	// Timeout alone is not enough: acquisition must have moved on.
	now = now.Add(2 * time.Minute)
	res, err = p.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Released)

	tel.Set(domain.ObservationKey{Master: "toltec", ObsNum: 11}, 0, true, now)
	res, err = p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.ObservationKey{key}, res.Released)
	assert.True(t, h.last.Partial)

	// A late part does not release it again.
	tel.SetRange(key, 11, 12, true, now)
	_, err = p.Poll(context.Background())
	require.NoError(t, err)
	count := 0
	for _, k := range h.calls {
		if k == key {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestPoll_RetryableHandlerErrorStaysPending(t *testing.T) {
	tel := testutil.NewFakeTelemetry()
	key := domain.ObservationKey{Master: "toltec", ObsNum: 3}
	tel.SetRange(key, 0, 12, true, t0)

	h := &handled{errs: []error{&domain.IncompleteDataError{ObservationKey: key.String(), Part: 2, Reason: "file not synced"}}}
	p := newPoller(t, tel, h, nil)

	res, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Released)
	assert.Equal(t, 1, res.Pending)

	res, err = p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.ObservationKey{key}, res.Released)
	assert.Zero(t, res.Pending)
	assert.Len(t, h.calls, 2)
}

func TestPoll_DropIncompleteAbandonsRetryable(t *testing.T) {
	tel := testutil.NewFakeTelemetry()
	key := domain.ObservationKey{Master: "toltec", ObsNum: 5}
	tel.SetRange(key, 0, 12, true, t0)

	h := &handled{errs: []error{&domain.IncompleteDataError{ObservationKey: key.String(), Part: 0, Reason: "file not synced"}}}
	w, err := completion.NewWatcher(completion.DefaultConfig(), tel, nil)
	require.NoError(t, err)
	p := NewPoller(Config{DropIncomplete: true}, w, nil, h.handle, discardLogger())

	res, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Pending)
	_, err = p.Poll(context.Background())
	require.NoError(t, err)
	assert.Len(t, h.calls, 1)
}

func TestPoll_NonRetryableErrorDropsObservation(t *testing.T) {
	tel := testutil.NewFakeTelemetry()
	key := domain.ObservationKey{Master: "toltec", ObsNum: 4}
	tel.SetRange(key, 0, 12, true, t0)

	h := &handled{errs: []error{domain.ErrValidation("bad file")}}
	p := newPoller(t, tel, h, nil)

	res, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Pending)
	_, err = p.Poll(context.Background())
	require.NoError(t, err)
	assert.Len(t, h.calls, 1)
}

func TestPoll_SourceErrorPropagates(t *testing.T) {
	src := &testutil.MockTelemetrySource{
		ActiveFn: func(context.Context, int) ([]domain.ObservationKey, error) {
			return nil, &domain.TransportError{Op: "active", Attempts: 3, Err: context.DeadlineExceeded}
		},
	}
	w, err := completion.NewWatcher(completion.DefaultConfig(), src, nil)
	require.NoError(t, err)
	p := NewPoller(Config{}, w, nil, nil, discardLogger())

	_, err = p.Poll(context.Background())
	var te *domain.TransportError
	assert.ErrorAs(t, err, &te)
}

func TestPoller_StartStop(t *testing.T) {
	tel := testutil.NewFakeTelemetry()
	w, err := completion.NewWatcher(completion.DefaultConfig(), tel, nil)
	require.NoError(t, err)

	bad := NewPoller(Config{Schedule: "not a schedule"}, w, nil, nil, discardLogger())
	err = bad.Start(context.Background())
	var ce *domain.ConfigurationError
	assert.ErrorAs(t, err, &ce)

	p := NewPoller(Config{}, w, nil, nil, discardLogger())
	require.NoError(t, p.Start(context.Background()))
	p.Stop()
}

package completion

import (
	"fmt"
	"sync"
	"time"

	"toltec-dpdb/internal/domain"
)

// DefaultValidationTimeout is how long a partial observation may go without
// a new valid part before it is treated as final.
const DefaultValidationTimeout = 30 * time.Second

// Readiness is the tracker's verdict on one observation.
type Readiness struct {
	Ready   bool
	Partial bool
	Reason  string
}

type trackState struct {
	validCount int
	lastChange time.Time
}

// Tracker decides when a polled observation should be processed. An
// observation is ready when all enabled parts are valid, or when no part has
// become valid for the timeout and a newer observation exists, which covers
// interfaces that stopped reporting mid-acquisition. The Watcher stays
// stateless; the Tracker is owned by the polling caller.
type Tracker struct {
	timeout time.Duration

	mu     sync.Mutex
	states map[domain.ObservationKey]*trackState
}

// NewTracker creates a Tracker. A non-positive timeout uses DefaultValidationTimeout.
func NewTracker(timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultValidationTimeout
	}
	return &Tracker{timeout: timeout, states: make(map[domain.ObservationKey]*trackState)}
}

// Observe folds one evaluation into the tracker and returns the verdict.
// The timeout restarts whenever the valid count grows.
func (t *Tracker) Observe(ev *Evaluation, newerSeen bool, now time.Time) Readiness {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.IsComplete {
		delete(t.states, ev.Key)
		return Readiness{Ready: true, Reason: fmt.Sprintf("all %d parts valid", ev.Expected)}
	}

	st, ok := t.states[ev.Key]
	if !ok {
		if ev.ValidCount == 0 {
			return Readiness{Reason: fmt.Sprintf("0/%d valid", ev.Expected)}
		}
		st = &trackState{validCount: ev.ValidCount, lastChange: now}
		t.states[ev.Key] = st
	} else if ev.ValidCount > st.validCount {
		st.validCount = ev.ValidCount
		st.lastChange = now
	}

	idle := now.Sub(st.lastChange)
	if idle >= t.timeout && newerSeen {
		delete(t.states, ev.Key)
		return Readiness{
			Ready:   true,
			Partial: true,
			Reason:  fmt.Sprintf("timeout (%s since last valid part, %d/%d valid)", idle.Round(time.Second), ev.ValidCount, ev.Expected),
		}
	}
	return Readiness{Reason: fmt.Sprintf("%d/%d valid, waiting", ev.ValidCount, ev.Expected)}
}

// Forget drops the state of key.
func (t *Tracker) Forget(key domain.ObservationKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, key)
}

// Tracked returns the number of observations currently waiting.
func (t *Tracker) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}

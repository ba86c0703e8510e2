package completion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func partial(valid int) *Evaluation {
	return &Evaluation{Key: obsKey, Expected: 13, ValidCount: valid}
}

func TestTracker_CompleteIsReady(t *testing.T) {
	tr := NewTracker(time.Minute)
	r := tr.Observe(&Evaluation{Key: obsKey, Expected: 13, ValidCount: 13, IsComplete: true}, false, tStart)
	assert.True(t, r.Ready)
	assert.False(t, r.Partial)
	assert.Zero(t, tr.Tracked())
}

func TestTracker_TimeoutNeedsNewerObservation(t *testing.T) {
	tr := NewTracker(30 * time.Second)

	assert.False(t, tr.Observe(partial(5), false, tStart).Ready)
	assert.False(t, tr.Observe(partial(5), false, tStart.Add(time.Minute)).Ready, "no newer observation yet")

	r := tr.Observe(partial(5), true, tStart.Add(time.Minute))
	assert.True(t, r.Ready)
	assert.True(t, r.Partial)
	assert.Contains(t, r.Reason, "5/13")
	assert.Zero(t, tr.Tracked())
}

func TestTracker_NewValidPartResetsTimeout(t *testing.T) {
	tr := NewTracker(30 * time.Second)

	tr.Observe(partial(5), true, tStart)
	assert.False(t, tr.Observe(partial(6), true, tStart.Add(25*time.Second)).Ready)
	assert.False(t, tr.Observe(partial(6), true, tStart.Add(40*time.Second)).Ready, "timer restarted at 25s")
	assert.True(t, tr.Observe(partial(6), true, tStart.Add(56*time.Second)).Ready)
}

func TestTracker_NothingValidIsNotTracked(t *testing.T) {
	tr := NewTracker(0)
	r := tr.Observe(partial(0), true, tStart)
	assert.False(t, r.Ready)
	assert.Zero(t, tr.Tracked())

	tr.Observe(partial(1), true, tStart)
	assert.Equal(t, 1, tr.Tracked())
	tr.Forget(obsKey)
	assert.Zero(t, tr.Tracked())
}

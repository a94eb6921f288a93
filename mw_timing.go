package datagate

import (
	"context"
	"sync"
	"time"
)

// Timing is a Middleware measuring the time between prologue and epilogue
// of each action. Durations feed the pipeline histogram and per-action
// TimingStats.
type Timing struct {
	mu       sync.Mutex
	inflight map[timingKey][]time.Time
	monitors map[ActionTag]*durationMonitor
	metrics  *Metrics
	now      func() time.Time
}

var (
	_ Middleware = (*Timing)(nil)
	_ Canceler   = (*Timing)(nil)
)

// timingKey correlates a prologue with its epilogue. The runner passes the
// same change set to both, so its backing array identifies the call.
type timingKey struct {
	tag   ActionTag
	first *ChangeItem
	size  int
}

func keyFor(tag ActionTag, changes ChangeSet) timingKey {
	k := timingKey{tag: tag, size: len(changes)}
	if len(changes) > 0 {
		k.first = &changes[0]
	}
	return k
}

// NewTiming creates a timing middleware. metrics may be nil.
func NewTiming(metrics *Metrics) *Timing {
	return &Timing{
		inflight: make(map[timingKey][]time.Time),
		monitors: make(map[ActionTag]*durationMonitor),
		metrics:  metrics,
		now:      time.Now,
	}
}

// Name implements Named.
func (t *Timing) Name() string { return "timing" }

// Prologue implements Middleware.
func (t *Timing) Prologue(_ context.Context, tag ActionTag, changes ChangeSet) *Status {
	k := keyFor(tag, changes)

	t.mu.Lock()
	t.inflight[k] = append(t.inflight[k], t.now())
	t.mu.Unlock()
	return nil
}

// Epilogue implements Middleware. An epilogue without a matching prologue
// is ignored.
func (t *Timing) Epilogue(_ context.Context, tag ActionTag, changes ChangeSet) *Status {
	end := t.now()

	t.mu.Lock()
	start, ok := t.popLocked(tag, changes)
	if !ok {
		t.mu.Unlock()
		return nil
	}
	m, ok := t.monitors[tag]
	if !ok {
		m = newDurationMonitor()
		t.monitors[tag] = m
	}
	t.mu.Unlock()

	d := end.Sub(start)
	m.record(d, true)

	models := changes.Models()
	if len(models) == 0 {
		models = []string{""}
	}
	for _, model := range models {
		t.metrics.observeDuration(tag, model, d.Seconds())
	}
	return nil
}

// Cancel implements Canceler by dropping the pending start without
// recording a duration.
func (t *Timing) Cancel(_ context.Context, tag ActionTag, changes ChangeSet) {
	t.mu.Lock()
	t.popLocked(tag, changes)
	t.mu.Unlock()
}

// popLocked removes the most recent start for the call.
func (t *Timing) popLocked(tag ActionTag, changes ChangeSet) (time.Time, bool) {
	k := keyFor(tag, changes)
	starts := t.inflight[k]
	if len(starts) == 0 {
		// Reads open with an empty change set and close with the loaded rows.
		k = timingKey{tag: tag}
		starts = t.inflight[k]
	}
	if len(starts) == 0 {
		return time.Time{}, false
	}
	start := starts[len(starts)-1]
	if len(starts) == 1 {
		delete(t.inflight, k)
	} else {
		t.inflight[k] = starts[:len(starts)-1]
	}
	return start, true
}

// Stats returns the statistics recorded for tag.
func (t *Timing) Stats(tag ActionTag) TimingStats {
	t.mu.Lock()
	m, ok := t.monitors[tag]
	t.mu.Unlock()

	if !ok {
		return TimingStats{}
	}
	return m.stats()
}

// Pending returns the number of prologues still waiting for an epilogue.
func (t *Timing) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, starts := range t.inflight {
		n += len(starts)
	}
	return n
}

// Reset drops all statistics and pending measurements.
func (t *Timing) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	clear(t.inflight)
	clear(t.monitors)
}

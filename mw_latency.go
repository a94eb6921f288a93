package datagate

import (
	"context"
	"math/rand/v2"
	"time"
)

// Latency is a Middleware that delays the pipeline, used to exercise
// timeouts and ordering under slow stores.
type Latency struct {
	prologue time.Duration
	epilogue time.Duration
	jitter   float64
}

var _ Middleware = (*Latency)(nil)

// NewLatency creates a middleware sleeping prologue before and epilogue
// after the physical operation. Zero disables the corresponding delay.
func NewLatency(prologue, epilogue time.Duration) *Latency {
	return &Latency{prologue: prologue, epilogue: epilogue}
}

// WithJitter randomizes each delay by up to fraction of its value in
// either direction. fraction is clamped to [0, 1].
func (l *Latency) WithJitter(fraction float64) *Latency {
	l.jitter = min(max(fraction, 0), 1)
	return l
}

// Name implements Named.
func (l *Latency) Name() string { return "latency" }

// Prologue implements Middleware.
func (l *Latency) Prologue(ctx context.Context, _ ActionTag, _ ChangeSet) *Status {
	return l.sleep(ctx, l.prologue)
}

// Epilogue implements Middleware.
func (l *Latency) Epilogue(ctx context.Context, _ ActionTag, _ ChangeSet) *Status {
	return l.sleep(ctx, l.epilogue)
}

func (l *Latency) sleep(ctx context.Context, d time.Duration) *Status {
	if d <= 0 {
		return nil
	}
	if l.jitter > 0 {
		d += time.Duration(float64(d) * l.jitter * (2*rand.Float64() - 1))
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return Abort(ReasonServiceFailure, "cancelled while delayed: "+ctx.Err().Error())
	}
}

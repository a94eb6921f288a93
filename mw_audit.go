package datagate

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Audit is a Middleware that records every applied mutation. Records are
// kept in a bounded in-memory buffer and optionally forwarded to a sink.
type Audit struct {
	source ActorSource
	buffer *auditBuffer
	sink   AuditSink
	logger *zap.Logger
	now    func() time.Time
}

var _ Middleware = (*Audit)(nil)

// AuditOption configures the Audit middleware.
type AuditOption func(*Audit)

// WithAuditSink forwards every record to sink. Sink failures are logged and
// never abort the operation.
func WithAuditSink(sink AuditSink) AuditOption {
	return func(a *Audit) {
		a.sink = sink
	}
}

// WithAuditActorSource sets the identity used when the context has none.
func WithAuditActorSource(source ActorSource) AuditOption {
	return func(a *Audit) {
		a.source = source
	}
}

// WithAuditLogger sets the logger.
func WithAuditLogger(logger *zap.Logger) AuditOption {
	return func(a *Audit) {
		a.logger = orNop(logger)
	}
}

// NewAudit creates an audit middleware keeping the last bufferSize records.
func NewAudit(bufferSize int, opts ...AuditOption) *Audit {
	a := &Audit{
		buffer: newAuditBuffer(bufferSize),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements Named.
func (a *Audit) Name() string { return "audit" }

// Prologue implements Middleware.
func (a *Audit) Prologue(context.Context, ActionTag, ChangeSet) *Status {
	return nil
}

// Epilogue implements Middleware. Only mutations that reached the store are
// recorded, so the epilogue is the right place.
func (a *Audit) Epilogue(ctx context.Context, tag ActionTag, changes ChangeSet) *Status {
	if !tag.IsMutating() || changes.Empty() {
		return nil
	}

	ac := GetAuditContext(ctx)
	if ac.Actor == nil && !isAbsent(a.source) {
		ac.Actor = a.source.Actor()
		if er, ok := a.source.(ElevationReporter); ok {
			ac.Elevated = er.Elevated()
		}
	}

	now := a.now()
	records := make([]AuditRecord, 0, len(changes))
	for _, item := range changes {
		if item.ChangeType() == ChangeNone {
			continue
		}
		records = append(records, AuditRecord{
			Timestamp:  now,
			ActorID:    ac.ActorID(),
			ActorName:  ac.ActorName(),
			Elevated:   ac.Elevated,
			Action:     tag,
			ChangeType: item.ChangeType(),
			Model:      item.ModelName(),
			EntityKey:  item.Key(),
			IPAddress:  ac.IPAddress,
			UserAgent:  ac.UserAgent,
			RequestID:  ac.RequestID,
		})
	}
	a.buffer.add(records...)

	if a.sink != nil {
		if err := a.sink.Write(ctx, records); err != nil {
			a.logger.Error("audit sink write failed",
				zap.Error(err),
				zap.Int("records", len(records)),
				zap.Stringer("action", tag))
		}
	}
	return nil
}

// Entries returns the buffered records, oldest first.
func (a *Audit) Entries() []AuditRecord {
	return a.buffer.entries()
}

// Find returns the buffered records matching filter, oldest first.
func (a *Audit) Find(filter AuditLogFilter) []AuditRecord {
	var out []AuditRecord
	for _, r := range a.buffer.entries() {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Flush empties the buffer and returns what it held.
func (a *Audit) Flush() []AuditRecord {
	return a.buffer.flush()
}

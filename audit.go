package datagate

import (
	"context"
	"sync"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/uptrace/bun"
)

// AuditRecord describes one change item that went through the pipeline.
type AuditRecord struct {
	Timestamp  time.Time
	ActorID    string
	ActorName  string
	Elevated   bool
	Action     ActionTag
	ChangeType ChangeType
	Model      string
	EntityKey  string
	IPAddress  string
	UserAgent  string
	RequestID  string
	Metadata   map[string]any
}

// ToModel converts the record into an audit_log row.
func (r AuditRecord) ToModel() *AuditLog {
	return &AuditLog{
		Timestamp:  r.Timestamp,
		ActorID:    r.ActorID,
		ActorName:  r.ActorName,
		Elevated:   r.Elevated,
		Action:     r.Action.String(),
		ActionTag:  int(r.Action),
		ChangeType: r.ChangeType.String(),
		Model:      r.Model,
		EntityKey:  r.EntityKey,
		IPAddress:  r.IPAddress,
		UserAgent:  r.UserAgent,
		RequestID:  r.RequestID,
		Metadata:   r.Metadata,
	}
}

// AuditSink persists audit records.
type AuditSink interface {
	Write(ctx context.Context, records []AuditRecord) error
}

// BunAuditSink writes records to the audit_log table.
type BunAuditSink struct {
	db dbkit.IDB
}

// NewBunAuditSink creates a sink on db.
func NewBunAuditSink(db dbkit.IDB) *BunAuditSink {
	return &BunAuditSink{db: db}
}

// Write implements AuditSink.
func (s *BunAuditSink) Write(ctx context.Context, records []AuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]*AuditLog, 0, len(records))
	for _, r := range records {
		rows = append(rows, r.ToModel())
	}
	result, err := s.db.NewInsert().Model(&rows).Exec(ctx)
	return dbkit.WithErr(result, err, "WriteAuditLog").Err()
}

// Query reads audit_log rows matching filter, newest first.
func (s *BunAuditSink) Query(ctx context.Context, filter AuditLogFilter) ([]AuditLog, error) {
	var logs []AuditLog
	q := filter.apply(s.db.NewSelect().Model(&logs))
	err := dbkit.WithErr1(q.Scan(ctx), "GetAuditLog").Err()
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// auditBuffer is a fixed-size ring of the most recent records.
type auditBuffer struct {
	mu      sync.Mutex
	records []AuditRecord
	next    int
	full    bool
}

func newAuditBuffer(size int) *auditBuffer {
	if size <= 0 {
		size = 1
	}
	return &auditBuffer{records: make([]AuditRecord, size)}
}

func (b *auditBuffer) add(records ...AuditRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range records {
		b.records[b.next] = r
		b.next = (b.next + 1) % len(b.records)
		if b.next == 0 {
			b.full = true
		}
	}
}

// entries returns the buffered records oldest first.
func (b *auditBuffer) entries() []AuditRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entriesLocked()
}

func (b *auditBuffer) entriesLocked() []AuditRecord {
	if !b.full {
		out := make([]AuditRecord, b.next)
		copy(out, b.records[:b.next])
		return out
	}
	out := make([]AuditRecord, 0, len(b.records))
	out = append(out, b.records[b.next:]...)
	out = append(out, b.records[:b.next]...)
	return out
}

func (b *auditBuffer) flush() []AuditRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.entriesLocked()
	clear(b.records)
	b.next = 0
	b.full = false
	return out
}

func (f AuditLogFilter) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if f.ActorID != "" {
		q = q.Where("actor_id = ?", f.ActorID)
	}
	if f.Model != "" {
		q = q.Where("model = ?", f.Model)
	}
	if f.EntityKey != "" {
		q = q.Where("entity_key = ?", f.EntityKey)
	}
	if f.ChangeType != "" {
		q = q.Where("change_type = ?", f.ChangeType)
	}
	if f.RequestID != "" {
		q = q.Where("request_id = ?", f.RequestID)
	}
	if f.ElevatedOnly {
		q = q.Where("elevated = TRUE")
	}
	if !f.Since.IsZero() {
		q = q.Where("timestamp >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		q = q.Where("timestamp <= ?", f.Until)
	}

	limit := f.Limit
	if limit == 0 {
		limit = 100
	}
	q = q.Limit(limit)
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	return q.Order("timestamp DESC")
}

// Match reports whether an in-memory record passes the filter. Pagination
// is ignored.
func (f AuditLogFilter) Match(r AuditRecord) bool {
	switch {
	case f.ActorID != "" && r.ActorID != f.ActorID,
		f.Model != "" && r.Model != f.Model,
		f.EntityKey != "" && r.EntityKey != f.EntityKey,
		f.ChangeType != "" && r.ChangeType.String() != f.ChangeType,
		f.RequestID != "" && r.RequestID != f.RequestID,
		f.ElevatedOnly && !r.Elevated,
		!f.Since.IsZero() && r.Timestamp.Before(f.Since),
		!f.Until.IsZero() && r.Timestamp.After(f.Until):
		return false
	}
	return true
}

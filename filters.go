package datagate

import "time"

// AuditLogFilter provides options for filtering audit log queries.
type AuditLogFilter struct {
	// Filter by actor who performed the action
	ActorID string

	// Filter by model and entity
	Model     string
	EntityKey string

	// Filter by change type ("Create", "Update", "Delete")
	ChangeType string

	// Filter by correlation id
	RequestID string

	// Only actions performed under an elevated identity
	ElevatedOnly bool

	// Filter by time range
	Since time.Time
	Until time.Time

	// Pagination
	Limit  int
	Offset int
}

// NewAuditLogFilter creates a new AuditLogFilter with default values.
func NewAuditLogFilter() AuditLogFilter {
	return AuditLogFilter{
		Limit: 100,
	}
}

// WithActor sets the actor ID filter.
func (f AuditLogFilter) WithActor(actorID string) AuditLogFilter {
	f.ActorID = actorID
	return f
}

// WithModel sets the model filter.
func (f AuditLogFilter) WithModel(model string) AuditLogFilter {
	f.Model = model
	return f
}

// WithEntity sets the model and entity key filters.
func (f AuditLogFilter) WithEntity(model, key string) AuditLogFilter {
	f.Model = model
	f.EntityKey = key
	return f
}

// WithChangeType sets the change type filter.
func (f AuditLogFilter) WithChangeType(ct ChangeType) AuditLogFilter {
	f.ChangeType = ct.String()
	return f
}

// WithRequestID sets the request id filter.
func (f AuditLogFilter) WithRequestID(requestID string) AuditLogFilter {
	f.RequestID = requestID
	return f
}

// WithElevatedOnly keeps only elevated actions.
func (f AuditLogFilter) WithElevatedOnly() AuditLogFilter {
	f.ElevatedOnly = true
	return f
}

// WithTimeRange sets the time range filter.
func (f AuditLogFilter) WithTimeRange(since, until time.Time) AuditLogFilter {
	f.Since = since
	f.Until = until
	return f
}

// WithSince sets the start time filter.
func (f AuditLogFilter) WithSince(since time.Time) AuditLogFilter {
	f.Since = since
	return f
}

// WithUntil sets the end time filter.
func (f AuditLogFilter) WithUntil(until time.Time) AuditLogFilter {
	f.Until = until
	return f
}

// WithPagination sets both limit and offset.
func (f AuditLogFilter) WithPagination(limit, offset int) AuditLogFilter {
	f.Limit = limit
	f.Offset = offset
	return f
}

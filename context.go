package datagate

import (
	"context"
)

// Context keys for datagate values.
type contextKey string

const (
	contextKeyActor     contextKey = "datagate:actor"
	contextKeyElevated  contextKey = "datagate:elevated"
	contextKeyIPAddress contextKey = "datagate:ip_address"
	contextKeyUserAgent contextKey = "datagate:user_agent"
	contextKeyRequestID contextKey = "datagate:request_id"
	contextKeyChecker   contextKey = "datagate:checker"
)

// WithActor adds the acting credential to the context.
// The authorization middleware prefers it over its ActorSource.
func WithActor(ctx context.Context, actor *Credential) context.Context {
	return context.WithValue(ctx, contextKeyActor, actor)
}

// WithActorSource binds a live ActorSource to the context. ActorFrom asks
// the source on every call, and IsElevated does too when the source is an
// ElevationReporter. The innermost of WithActor and WithActorSource wins.
func WithActorSource(ctx context.Context, source ActorSource) context.Context {
	ctx = context.WithValue(ctx, contextKeyActor, source)
	if er, ok := source.(ElevationReporter); ok {
		ctx = context.WithValue(ctx, contextKeyElevated, er)
	}
	return ctx
}

// ActorFrom retrieves the acting credential from context.
// Returns nil if not set.
func ActorFrom(ctx context.Context) *Credential {
	switch v := ctx.Value(contextKeyActor).(type) {
	case *Credential:
		return v
	case ActorSource:
		if isAbsent(v) {
			return nil
		}
		return v.Actor()
	}
	return nil
}

// WithElevated marks the context as running under an elevated identity.
func WithElevated(ctx context.Context, elevated bool) context.Context {
	return context.WithValue(ctx, contextKeyElevated, elevated)
}

// IsElevated reports whether the context was marked as elevated.
func IsElevated(ctx context.Context) bool {
	switch v := ctx.Value(contextKeyElevated).(type) {
	case bool:
		return v
	case ElevationReporter:
		if isAbsent(v) {
			return false
		}
		return v.Elevated()
	}
	return false
}

// WithIPAddress adds the client IP address to the context (for audit).
func WithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKeyIPAddress, ip)
}

// GetIPAddress retrieves the IP address from context.
func GetIPAddress(ctx context.Context) string {
	return stringValue(ctx, contextKeyIPAddress)
}

// WithUserAgent adds the user agent to the context (for audit).
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, contextKeyUserAgent, ua)
}

// GetUserAgent retrieves the user agent from context.
func GetUserAgent(ctx context.Context) string {
	return stringValue(ctx, contextKeyUserAgent)
}

// WithRequestID adds a request ID to the context (for audit and correlation).
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, contextKeyRequestID)
}

// WithChecker adds a Checker to the context.
func WithChecker(ctx context.Context, checker *Checker) context.Context {
	return context.WithValue(ctx, contextKeyChecker, checker)
}

// GetChecker retrieves the Checker from context.
// Returns nil if not set.
func GetChecker(ctx context.Context) *Checker {
	if v := ctx.Value(contextKeyChecker); v != nil {
		if c, ok := v.(*Checker); ok {
			return c
		}
	}
	return nil
}

func stringValue(ctx context.Context, key contextKey) string {
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// AuditContext holds all audit-related information from context.
type AuditContext struct {
	Actor     *Credential
	Elevated  bool
	IPAddress string
	UserAgent string
	RequestID string
}

// ActorID returns the actor id or "" when no actor is set.
func (ac AuditContext) ActorID() string {
	if ac.Actor == nil {
		return ""
	}
	return ac.Actor.ID
}

// ActorName returns the actor username or "" when no actor is set.
func (ac AuditContext) ActorName() string {
	if ac.Actor == nil {
		return ""
	}
	return ac.Actor.Username
}

// GetAuditContext extracts all audit information from context.
func GetAuditContext(ctx context.Context) AuditContext {
	return AuditContext{
		Actor:     ActorFrom(ctx),
		Elevated:  IsElevated(ctx),
		IPAddress: GetIPAddress(ctx),
		UserAgent: GetUserAgent(ctx),
		RequestID: GetRequestID(ctx),
	}
}

// WithAuditContext adds all audit information to context at once.
func WithAuditContext(ctx context.Context, ac AuditContext) context.Context {
	if ac.Actor != nil {
		ctx = WithActor(ctx, ac.Actor)
	}
	if ac.Elevated {
		ctx = WithElevated(ctx, true)
	}
	if ac.IPAddress != "" {
		ctx = WithIPAddress(ctx, ac.IPAddress)
	}
	if ac.UserAgent != "" {
		ctx = WithUserAgent(ctx, ac.UserAgent)
	}
	if ac.RequestID != "" {
		ctx = WithRequestID(ctx, ac.RequestID)
	}
	return ctx
}

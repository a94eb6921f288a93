package datagate

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Authorization is a Middleware that checks every mutated entity against
// the permission engine before the write happens.
type Authorization struct {
	source   ActorSource
	registry *Registry
	strict   bool
	metrics  *Metrics
	logger   *zap.Logger
}

var _ Middleware = (*Authorization)(nil)

// AuthorizationOption configures the Authorization middleware.
type AuthorizationOption func(*Authorization)

// WithStrictDefault makes undecided checks fail with Forbidden instead of
// letting the operation proceed.
func WithStrictDefault() AuthorizationOption {
	return func(a *Authorization) {
		a.strict = true
	}
}

// WithAuthorizationMetrics counts decisions.
func WithAuthorizationMetrics(m *Metrics) AuthorizationOption {
	return func(a *Authorization) {
		a.metrics = m
	}
}

// WithAuthorizationLogger sets the logger used for denials.
func WithAuthorizationLogger(logger *zap.Logger) AuthorizationOption {
	return func(a *Authorization) {
		a.logger = orNop(logger)
	}
}

// NewAuthorization creates the middleware. source may be nil when every
// call carries its actor in the context; registry may be nil for the
// default context ids.
//
// Example:
//
//	broker := datagate.NewAuthBroker(store)
//	authz := datagate.NewAuthorization(broker, registry, datagate.WithStrictDefault())
//	cfg.AttachAt(datagate.PositionEarly, authz)
func NewAuthorization(source ActorSource, registry *Registry, opts ...AuthorizationOption) *Authorization {
	if registry == nil {
		registry = NewRegistry()
	}
	a := &Authorization{
		source:   source,
		registry: registry,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements Named.
func (a *Authorization) Name() string { return "authorization" }

// Prologue implements Middleware.
func (a *Authorization) Prologue(ctx context.Context, tag ActionTag, changes ChangeSet) *Status {
	if tag.IsCommit() || changes.Empty() || !tag.IsMutating() {
		return nil
	}

	actor := a.actor(ctx)
	if actor == nil {
		a.logger.Warn("mutation without identity", zap.Stringer("action", tag))
		return Abort(ReasonTamper, fmt.Sprintf("%s attempted without an identity", tag))
	}

	for _, item := range changes {
		if item.ChangeType() == ChangeNone {
			continue
		}
		model := item.ModelName()
		contextID := a.registry.ContextFor(tag, model)
		perm := a.registry.PermissionFor(tag, model)

		d := CheckAccess(actor, contextID, perm)
		a.metrics.observeDecision(d)

		switch {
		case d == DecisionRevoked, d == DecisionUndecided && a.strict:
			a.logger.Info("access denied",
				zap.String("username", actor.Username),
				zap.String("context", contextID),
				zap.Stringer("permission", perm),
				zap.Stringer("decision", d))
			return Abort(ReasonForbidden, fmt.Sprintf("%s lacks %s on %s", actor.Username, perm, contextID))
		}
	}
	return nil
}

// Epilogue implements Middleware.
func (a *Authorization) Epilogue(context.Context, ActionTag, ChangeSet) *Status {
	return nil
}

func (a *Authorization) actor(ctx context.Context) *Credential {
	if actor := ActorFrom(ctx); actor != nil {
		return actor
	}
	if isAbsent(a.source) {
		return nil
	}
	return a.source.Actor()
}

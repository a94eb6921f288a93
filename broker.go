package datagate

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ElevationContext is the default context id checked for PermElevate.
const ElevationContext = "system.elevate"

// ActorSource supplies the identity acting right now.
type ActorSource interface {
	Actor() *Credential
}

// ElevationReporter is implemented by ActorSources whose actor may be an
// elevated identity.
type ElevationReporter interface {
	Elevated() bool
}

// StaticActor is an ActorSource that always returns the same credential.
// Useful for batch jobs and tests.
type StaticActor struct {
	Credential *Credential
}

// Actor implements ActorSource.
func (s StaticActor) Actor() *Credential {
	return s.Credential
}

// AuthBroker tracks the authenticated identity and an optional elevated
// identity layered on top of it. It is safe for concurrent use.
//
// States: unauthenticated, authenticated, elevated.
type AuthBroker struct {
	mu       sync.RWMutex
	base     *Credential
	elevated *Credential

	store            CredentialStore
	hasher           PasswordHasher
	elevationContext string
	logger           *zap.Logger
	metrics          *Metrics
}

var (
	_ ActorSource       = (*AuthBroker)(nil)
	_ ElevationReporter = (*AuthBroker)(nil)
)

// BrokerOption configures the AuthBroker.
type BrokerOption func(*AuthBroker)

// WithBrokerLogger sets the logger used for state changes.
func WithBrokerLogger(logger *zap.Logger) BrokerOption {
	return func(b *AuthBroker) {
		b.logger = orNop(logger)
	}
}

// WithBrokerMetrics records elevation attempts.
func WithBrokerMetrics(m *Metrics) BrokerOption {
	return func(b *AuthBroker) {
		b.metrics = m
	}
}

// WithElevationContext overrides the context id checked by CanElevate.
func WithElevationContext(contextID string) BrokerOption {
	return func(b *AuthBroker) {
		b.elevationContext = contextID
	}
}

// WithPasswordHasher overrides the hasher used to verify elevation targets.
func WithPasswordHasher(h PasswordHasher) BrokerOption {
	return func(b *AuthBroker) {
		b.hasher = h
	}
}

// NewAuthBroker creates an unauthenticated broker resolving elevation
// targets through store.
func NewAuthBroker(store CredentialStore, opts ...BrokerOption) *AuthBroker {
	b := &AuthBroker{
		store:            store,
		hasher:           NewBcryptHasher(0),
		elevationContext: ElevationContext,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Authenticate sets cred as the base identity and clears any elevation.
// The credential is assumed to be verified already.
func (b *AuthBroker) Authenticate(cred *Credential) error {
	if cred == nil {
		return ErrNilActor
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.base = cred
	b.elevated = nil
	b.logger.Info("authenticated", zap.String("username", cred.Username))
	return nil
}

// CanElevate reports whether the base identity holds PermElevate in the
// elevation context. An undecided check is not enough.
func (b *AuthBroker) CanElevate(ctx context.Context) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.canElevateLocked()
}

func (b *AuthBroker) canElevateLocked() bool {
	if b.base == nil {
		return false
	}
	return CheckAccess(b.base, b.elevationContext, PermElevate) == DecisionGranted
}

// Elevate switches the effective identity to username after verifying
// password. On any failure the state is unchanged and the result is
// Forbidden.
func (b *AuthBroker) Elevate(ctx context.Context, username, password string) Result[*Credential] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.base == nil {
		b.metrics.observeElevation("forbidden")
		return Fail[*Credential](ReasonForbidden, "not authenticated")
	}
	if !b.canElevateLocked() {
		b.metrics.observeElevation("forbidden")
		b.logger.Warn("elevation refused",
			zap.String("username", b.base.Username),
			zap.String("target", username))
		return Fail[*Credential](ReasonForbidden, fmt.Sprintf("%s may not elevate", b.base.Username))
	}
	if b.store == nil {
		return Fail[*Credential](ReasonServiceFailure, "no credential store configured")
	}

	target, err := b.store.FindByUsername(ctx, username)
	if err != nil {
		if reason := ReasonOf(err); reason != ReasonNotFound {
			b.metrics.observeElevation("error")
			return FromError[*Credential](err)
		}
		b.metrics.observeElevation("forbidden")
		return Fail[*Credential](ReasonForbidden, "invalid elevation credentials")
	}
	if target.Disabled || !b.hasher.Verify(target.PasswordHash, password) {
		b.metrics.observeElevation("forbidden")
		b.logger.Warn("elevation rejected",
			zap.String("username", b.base.Username),
			zap.String("target", username))
		return Fail[*Credential](ReasonForbidden, "invalid elevation credentials")
	}

	b.elevated = target
	b.metrics.observeElevation("granted")
	b.logger.Info("elevated",
		zap.String("username", b.base.Username),
		zap.String("target", target.Username))
	return OkWith(target)
}

// RevokeElevation restores the base identity. It is idempotent.
func (b *AuthBroker) RevokeElevation() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.elevated == nil {
		return
	}
	b.logger.Info("elevation revoked", zap.String("target", b.elevated.Username))
	b.elevated = nil
}

// SignOut drops both identities.
func (b *AuthBroker) SignOut() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.base != nil {
		b.logger.Info("signed out", zap.String("username", b.base.Username))
	}
	b.base = nil
	b.elevated = nil
}

// Actor returns the effective identity: the elevated one when elevated,
// otherwise the authenticated one. Nil when unauthenticated.
func (b *AuthBroker) Actor() *Credential {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.elevated != nil {
		return b.elevated
	}
	return b.base
}

// BaseActor returns the authenticated identity, ignoring elevation.
func (b *AuthBroker) BaseActor() *Credential {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.base
}

// Elevated reports whether an elevated identity is active.
func (b *AuthBroker) Elevated() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.elevated != nil
}

// Context returns ctx bound to the broker, so middlewares further down see
// its current identity. Logouts and RevokeElevation apply to contexts built
// before them. An unauthenticated broker leaves ctx unchanged.
func (b *AuthBroker) Context(ctx context.Context) context.Context {
	if b.Actor() == nil {
		return ctx
	}
	return WithActorSource(ctx, b)
}

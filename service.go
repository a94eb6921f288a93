package datagate

import (
	"context"
	"fmt"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Service wires the database, the context registry, the access engine and
// the credential directory. Operations return Result values; database
// errors are classified through dbkit.
//
// Example error handling:
//
//	res := service.RegisterCredential(ctx, "alice", "s3cret-pass", datagate.PermRead, datagate.PermNone)
//	if !res.Success() {
//	    if res.Reason() == datagate.ReasonEntityDuplication {
//	        // username taken
//	    }
//	    return res.Err()
//	}
type Service struct {
	db        dbkit.IDB
	registry  *Registry
	directory Directory
	access    *AccessService
	hasher    PasswordHasher
	validate  *validator.Validate
	logger    *zap.Logger
	metrics   *Metrics
	config    *Config
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithDirectory replaces the bun-backed directory, e.g. with a MemoryStore.
func WithDirectory(d Directory) ServiceOption {
	return func(s *Service) {
		s.directory = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = orNop(logger)
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithHasher sets the password hasher.
func WithHasher(h PasswordHasher) ServiceOption {
	return func(s *Service) {
		s.hasher = h
	}
}

// WithConfig applies runtime configuration.
func WithConfig(cfg *Config) ServiceOption {
	return func(s *Service) {
		s.config = cfg
	}
}

// NewService creates a datagate service. db may be nil when a Directory is
// supplied; health, pool and audit queries then report that no database is
// configured.
//
// Example:
//
//	registry := datagate.NewRegistry()
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	service := datagate.NewService(db, registry, datagate.WithLogger(logger))
func NewService(db dbkit.IDB, registry *Registry, opts ...ServiceOption) *Service {
	if registry == nil {
		registry = NewRegistry()
	}
	s := &Service{
		db:       db,
		registry: registry,
		validate: validator.New(),
		logger:   zap.NewNop(),
		config:   defaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.directory == nil && db != nil {
		s.directory = NewBunStore(db)
	}
	if s.hasher == nil {
		s.hasher = NewBcryptHasher(s.config.BcryptCost)
	}
	s.access = NewAccessService(s.directory, s.metrics)
	return s
}

// Open connects to cfg.DatabaseURL, applies the pool settings and returns a
// service using that connection.
func Open(ctx context.Context, cfg *Config, registry *Registry, opts ...ServiceOption) (*Service, *dbkit.DBKit, error) {
	db, err := dbkit.New(dbkit.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	s := NewService(db, registry, append([]ServiceOption{WithConfig(cfg)}, opts...)...)
	if err := NewPoolService(s).ConfigureConnectionPool(cfg.Pool); err != nil {
		db.Close()
		return nil, nil, err
	}
	return s, db, nil
}

// Registry returns the context registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Directory returns the credential directory.
func (s *Service) Directory() Directory {
	return s.directory
}

// Access returns the access engine service.
func (s *Service) Access() *AccessService {
	return s.access
}

// NewBroker creates an authentication broker resolving elevation targets
// through the service directory.
func (s *Service) NewBroker(opts ...BrokerOption) *AuthBroker {
	base := []BrokerOption{
		WithPasswordHasher(s.hasher),
		WithBrokerLogger(s.logger.Named("broker")),
		WithBrokerMetrics(s.metrics),
	}
	return NewAuthBroker(s.directory, append(base, opts...)...)
}

// NewTxFactory creates a transaction factory writing through the service
// database with the configured timeout, retries and query limit.
func (s *Service) NewTxFactory(runner *Runner, opts ...TxFactoryOption) *TxFactory {
	var backend Backend
	if s.db != nil {
		backend = NewBunBackend(s.db)
	}
	base := []TxFactoryOption{
		WithCommitTimeout(s.config.CommitTimeout),
		WithCommitRetries(s.config.CommitRetries),
		WithQueryLimit(s.config.QueryLimit),
		WithTxMetrics(s.metrics),
		WithTxLogger(s.logger.Named("tx")),
	}
	return NewTxFactory(runner, backend, append(base, opts...)...)
}

// NewAudit creates the audit middleware sized from configuration,
// persisting to audit_log when a database is configured.
func (s *Service) NewAudit(source ActorSource) *Audit {
	opts := []AuditOption{
		WithAuditActorSource(source),
		WithAuditLogger(s.logger.Named("audit")),
	}
	if s.db != nil {
		opts = append(opts, WithAuditSink(NewBunAuditSink(s.db)))
	}
	return NewAudit(s.config.AuditBufferSize, opts...)
}

// NewAuthorization creates the authorization middleware on the service
// registry, strict when configured so.
func (s *Service) NewAuthorization(source ActorSource) *Authorization {
	opts := []AuthorizationOption{
		WithAuthorizationMetrics(s.metrics),
		WithAuthorizationLogger(s.logger.Named("authorization")),
	}
	if s.config.StrictAuthorization {
		opts = append(opts, WithStrictDefault())
	}
	return NewAuthorization(source, s.registry, opts...)
}

// NewLatency creates the latency middleware from configuration.
func (s *Service) NewLatency() *Latency {
	return NewLatency(s.config.LatencyPrologue, s.config.LatencyEpilogue)
}

// ============================================================================
// AUDIT LOG
// ============================================================================

// GetAuditLog retrieves audit log entries with optional filters.
func (s *Service) GetAuditLog(ctx context.Context, filter AuditLogFilter) Result[[]AuditLog] {
	if s.db == nil {
		return Fail[[]AuditLog](ReasonServiceFailure, "no database configured")
	}
	logs, err := NewBunAuditSink(s.db).Query(ctx, filter)
	if err != nil {
		return FromError[[]AuditLog](err)
	}
	return OkWith(logs)
}

func defaultConfig() *Config {
	return &Config{
		LogFormat:       "json",
		LogLevel:        "info",
		CommitTimeout:   30 * time.Second,
		CommitRetries:   3,
		QueryLimit:      1000,
		SessionTTL:      12 * time.Hour,
		BcryptCost:      10,
		AuditBufferSize: 1024,
		Pool:            DefaultPoolConfig(),
	}
}

package datagate

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// Database defines the database operations interface for dependency injection
type Database interface {
	dbkit.IDB
}

// TransactionManager defines the transaction management interface
type TransactionManager interface {
	Transaction(ctx context.Context, fn func(db dbkit.IDB) error) error
	ReadOnlyTransaction(ctx context.Context, fn func(db dbkit.IDB) error) error
}

// MigrationManager defines the migration management interface
type MigrationManager interface {
	Migrations() []dbkit.Migration
	RunMigrations(ctx context.Context) (int, error)
}

// HealthMonitor defines the health monitoring interface
type HealthMonitor interface {
	Health(ctx context.Context) dbkit.HealthStatus
	IsHealthy(ctx context.Context) bool
	Ping(ctx context.Context) error
	GetPoolStats() dbkit.PoolStats
	GetCommitStats() TimingStats
}

// PoolManager defines the connection pool management interface
type PoolManager interface {
	ConfigureConnectionPool(config PoolConfig) error
	GetConnectionPoolConfig() PoolConfig
	OptimizeConnectionPool() error
	ResetConnectionPool() error
}

// AccessChecker defines the permission checking interface
type AccessChecker interface {
	CheckAccess(ctx context.Context, holder PermissionHolder, contextID string, perm Permission) Result[Decision]
	CheckAccessByName(ctx context.Context, username, contextID string, perm Permission) Result[Decision]
}

// SessionManager defines the session lifecycle interface
type SessionManager interface {
	StartSession(ctx context.Context, cred *Credential) Result[*Session]
	EndSession(ctx context.Context, token string) Status
	ActiveSession(ctx context.Context, token string) Result[*Session]
}

// PipelineRunner is what a persistence layer needs from the pipeline.
type PipelineRunner interface {
	RunPrologue(ctx context.Context, tag ActionTag, changes ChangeSet) *Status
	RunEpilogue(ctx context.Context, tag ActionTag, changes ChangeSet) *Status
	Cancel(ctx context.Context, tag ActionTag, changes ChangeSet)
}

var (
	_ TransactionManager = (*Service)(nil)
	_ MigrationManager   = (*MigrationService)(nil)
	_ HealthMonitor      = (*HealthService)(nil)
	_ PoolManager        = (*PoolService)(nil)
	_ AccessChecker      = (*Service)(nil)
	_ AccessChecker      = (*AccessService)(nil)
	_ SessionManager     = (*Service)(nil)
	_ PipelineRunner     = (*Runner)(nil)
)

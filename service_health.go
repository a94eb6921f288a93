package datagate

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// HealthService provides health monitoring functionality as an extension to Service
type HealthService struct {
	*Service
	factory *TxFactory
}

// NewHealthService creates a new health service extension. factory may be
// nil; when set its commit statistics take part in IsHealthy.
func NewHealthService(service *Service, factory *TxFactory) *HealthService {
	return &HealthService{Service: service, factory: factory}
}

// Health performs a health check of the database connection, including
// latency and connection pool statistics.
func (hs *HealthService) Health(ctx context.Context) dbkit.HealthStatus {
	if db, ok := hs.db.(*dbkit.DBKit); ok {
		return db.Health(ctx)
	}
	if hs.db == nil {
		return dbkit.HealthStatus{Healthy: false, Error: "no database configured"}
	}
	return dbkit.HealthStatus{
		Healthy: hs.Ping(ctx) == nil,
		Error:   "Limited health check - not a DBKit instance",
	}
}

// IsHealthy reports whether the database is reachable and recent commits
// stay within the failure and latency thresholds.
func (hs *HealthService) IsHealthy(ctx context.Context) bool {
	if hs.factory != nil && !hs.factory.Healthy() {
		return false
	}
	if db, ok := hs.db.(*dbkit.DBKit); ok {
		return db.IsHealthy(ctx)
	}
	return hs.Ping(ctx) == nil
}

// GetPoolStats returns connection pool statistics for monitoring.
// Returns zero values if the database instance doesn't support pool statistics.
func (hs *HealthService) GetPoolStats() dbkit.PoolStats {
	if db, ok := hs.db.(*dbkit.DBKit); ok {
		return dbkit.PoolStatsFromSQL(db.Stats())
	}
	return dbkit.PoolStats{}
}

// GetCommitStats returns commit statistics of the attached factory.
func (hs *HealthService) GetCommitStats() TimingStats {
	if hs.factory == nil {
		return TimingStats{}
	}
	return hs.factory.Stats()
}

// Ping performs a basic connectivity test to the database.
func (hs *HealthService) Ping(ctx context.Context) error {
	if hs.db == nil {
		return NewError(ErrServiceFailure, "no database configured")
	}
	var result int
	return hs.db.NewRaw("SELECT 1").Scan(ctx, &result)
}

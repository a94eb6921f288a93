package datagate

import (
	"fmt"

	"github.com/fernandezvara/dbkit"
	"go.uber.org/zap"
)

// PoolService provides connection pool management functionality as an extension to Service
type PoolService struct {
	*Service
	current PoolConfig
}

// NewPoolService creates a new pool service extension
func NewPoolService(service *Service) *PoolService {
	return &PoolService{Service: service, current: service.config.Pool}
}

// ConfigureConnectionPool updates the database connection pool settings.
func (ps *PoolService) ConfigureConnectionPool(config PoolConfig) error {
	db, ok := ps.db.(*dbkit.DBKit)
	if !ok {
		return fmt.Errorf("connection pool configuration requires a dbkit.DBKit instance")
	}
	bunDB := db.Bun()
	if bunDB == nil {
		return fmt.Errorf("database instance not available")
	}

	bunDB.SetMaxOpenConns(config.MaxOpenConnections)
	bunDB.SetMaxIdleConns(config.MaxIdleConnections)
	bunDB.SetConnMaxLifetime(config.ConnectionMaxLifetime)
	bunDB.SetConnMaxIdleTime(config.ConnectionMaxIdleTime)
	ps.current = config

	ps.logger.Info("connection pool configured",
		zap.Int("max_open", config.MaxOpenConnections),
		zap.Int("max_idle", config.MaxIdleConnections),
		zap.Duration("max_lifetime", config.ConnectionMaxLifetime),
		zap.Duration("max_idle_time", config.ConnectionMaxIdleTime))
	return nil
}

// GetConnectionPoolConfig returns the pool settings last applied.
func (ps *PoolService) GetConnectionPoolConfig() PoolConfig {
	return ps.current
}

// OptimizeConnectionPool adjusts pool settings based on current usage:
// grows by half when more than 80% of connections are in use and shrinks
// by a quarter when more than 80% sit idle.
func (ps *PoolService) OptimizeConnectionPool() error {
	stats := NewHealthService(ps.Service, nil).GetPoolStats()
	return ps.ConfigureConnectionPool(optimizePool(ps.current, stats))
}

func optimizePool(config PoolConfig, stats dbkit.PoolStats) PoolConfig {
	next := config
	if stats.MaxOpenConnections > 0 {
		if float64(stats.InUse)/float64(stats.MaxOpenConnections) > 0.8 {
			next.MaxOpenConnections = int(float64(config.MaxOpenConnections) * 1.5)
			next.MaxIdleConnections = int(float64(config.MaxIdleConnections) * 1.5)
		}
		if float64(stats.Idle)/float64(stats.MaxOpenConnections) > 0.8 {
			next.MaxOpenConnections = int(float64(config.MaxOpenConnections) * 0.75)
			next.MaxIdleConnections = int(float64(config.MaxIdleConnections) * 0.75)
		}
	}
	next.MaxOpenConnections = max(next.MaxOpenConnections, 5)
	next.MaxIdleConnections = max(next.MaxIdleConnections, 2)
	return next
}

// ResetConnectionPool resets the connection pool to default settings.
func (ps *PoolService) ResetConnectionPool() error {
	return ps.ConfigureConnectionPool(DefaultPoolConfig())
}

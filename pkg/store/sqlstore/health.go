package sqlstore

import (
	"context"
	"time"
)

// HealthStatus reports database reachability and connection pool
// statistics for the health endpoint.
type HealthStatus struct {
	Status          string `json:"status"`
	Backend         string `json:"backend"`
	ResponseTime    int64  `json:"response_time_ms"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
	WaitCount       int64  `json:"wait_count"`
	WaitDuration    int64  `json:"wait_duration_ms"`
	MaxOpenConns    int    `json:"max_open_conns"`
}

// Health pings the database and snapshots pool statistics.
func (s *Store) Health(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()

	if err := s.db.PingContext(ctx); err != nil {
		return &HealthStatus{
			Status:       "unhealthy",
			Backend:      s.backend(),
			ResponseTime: time.Since(start).Milliseconds(),
		}, err
	}

	stats := s.db.Stats()
	return &HealthStatus{
		Status:          "healthy",
		Backend:         s.backend(),
		ResponseTime:    time.Since(start).Milliseconds(),
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		WaitCount:       stats.WaitCount,
		WaitDuration:    stats.WaitDuration.Milliseconds(),
		MaxOpenConns:    stats.MaxOpenConnections,
	}, nil
}

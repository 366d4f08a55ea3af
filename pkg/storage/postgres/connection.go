package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/gatherhq/gather/pkg/observability"
	"github.com/gatherhq/gather/pkg/storage"
)

// NewDB opens the PostgreSQL pool and verifies connectivity.
//
// All membership and RSVP reads go through this single pool. Authorization
// checks must observe committed writes immediately, which rules out lagging
// read replicas.
func NewDB(cfg storage.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	ConfigurePool(db, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PostgresTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return db, nil
}

// ConfigurePool applies pool sizing from config
func ConfigurePool(db *sql.DB, cfg storage.Config) {
	db.SetMaxOpenConns(cfg.PostgresMaxConns)
	db.SetMaxIdleConns(cfg.PostgresMinConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)
}

// StartPoolMetrics samples pool statistics into the connection gauges
// every interval until ctx is cancelled.
func StartPoolMetrics(ctx context.Context, db *sql.DB, metrics *observability.Metrics, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				RecordPoolStats(db, metrics)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RecordPoolStats copies a single pool stats snapshot into the gauges
func RecordPoolStats(db *sql.DB, metrics *observability.Metrics) {
	stats := db.Stats()
	metrics.DBConnectionsActive.Set(float64(stats.InUse))
	metrics.DBConnectionsIdle.Set(float64(stats.Idle))
	metrics.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
	metrics.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
}

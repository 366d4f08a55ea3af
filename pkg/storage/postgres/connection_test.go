package postgres

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/gather/pkg/observability"
	"github.com/gatherhq/gather/pkg/storage"
)

// TestConfigurePool verifies pool sizing is applied from config
func TestConfigurePool(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := storage.Config{
		PostgresMaxConns: 42,
		PostgresMinConns: 7,
	}

	ConfigurePool(db, cfg)

	assert.Equal(t, 42, db.Stats().MaxOpenConnections)
}

// TestNewDB_UnreachableHost verifies a fast failure when the database
// cannot be reached within the configured timeout
func TestNewDB_UnreachableHost(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.PostgresURL = "postgres://127.0.0.1:1/gather?sslmode=disable&connect_timeout=1"
	cfg.PostgresTimeout = 100 * time.Millisecond

	start := time.Now()
	_, err := NewDB(cfg)
	elapsed := time.Since(start)

	assert.Error(t, err)
	assert.Less(t, elapsed, 5*time.Second)
}

// TestRecordPoolStats verifies pool statistics land in the gauges
func TestRecordPoolStats(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	metrics := observability.NewMetrics(prometheus.NewRegistry())

	RecordPoolStats(db, metrics)

	// sqlmock keeps no connections checked out between calls
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.DBConnectionsActive))
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.DBConnectionsIdle), float64(0))
}

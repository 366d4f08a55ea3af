package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/gatherhq/gather/pkg/observability"
	"github.com/gatherhq/gather/pkg/storage"
)

// RedisClient wraps the rate limit counter store connection
type RedisClient struct {
	client *redis.Client
	config storage.Config
}

// NewRedisClient creates a new Redis client and verifies connectivity.
// Callers treat a nil client as "no counter store configured"; the rate
// limiter fails open in that case rather than refusing to start.
func NewRedisClient(config storage.Config) (*RedisClient, error) {
	// Parse Redis URL or use default options
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	// Override with config values if provided
	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB >= 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	// Set connection timeouts. These are deliberately short: every
	// rate limit check sits on the request path.
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	// Create client
	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{
		client: client,
		config: config,
	}, nil
}

// Ping checks Redis connectivity
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetClient returns the underlying Redis client for the rate limit store
// and health checks
func (c *RedisClient) GetClient() *redis.Client {
	return c.client
}

// GetPoolStats returns connection pool statistics
func (c *RedisClient) GetPoolStats() *redis.PoolStats {
	return c.client.PoolStats()
}

// InstrumentCommands records every command's outcome and latency into the
// Redis counters. Call once, before the client serves traffic.
func (c *RedisClient) InstrumentCommands(metrics *observability.Metrics) {
	c.client.AddHook(&metricsHook{metrics: metrics})
}

// StartPoolMetrics samples pool statistics into the Redis connection gauge
// every interval until ctx is cancelled.
func (c *RedisClient) StartPoolMetrics(ctx context.Context, metrics *observability.Metrics, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.RecordPoolStats(metrics)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RecordPoolStats copies a single pool stats snapshot into the gauge
func (c *RedisClient) RecordPoolStats(metrics *observability.Metrics) {
	metrics.RedisConnectionsActive.Set(float64(c.client.PoolStats().TotalConns))
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	return c.client.Close()
}

// metricsHook instruments command execution. The rate limiter reaches Redis
// through a Lua script, so the command names seen here are evalsha and its
// eval fallback, plus ping from health checks.
type metricsHook struct {
	metrics *observability.Metrics
}

type commandStartKey struct{}

func (h *metricsHook) BeforeProcess(ctx context.Context, cmd redis.Cmder) (context.Context, error) {
	return context.WithValue(ctx, commandStartKey{}, time.Now()), nil
}

func (h *metricsHook) AfterProcess(ctx context.Context, cmd redis.Cmder) error {
	h.record(ctx, cmd)
	return nil
}

func (h *metricsHook) BeforeProcessPipeline(ctx context.Context, cmds []redis.Cmder) (context.Context, error) {
	return context.WithValue(ctx, commandStartKey{}, time.Now()), nil
}

func (h *metricsHook) AfterProcessPipeline(ctx context.Context, cmds []redis.Cmder) error {
	for _, cmd := range cmds {
		h.record(ctx, cmd)
	}
	return nil
}

func (h *metricsHook) record(ctx context.Context, cmd redis.Cmder) {
	status := "ok"
	if err := cmd.Err(); err != nil && err != redis.Nil {
		status = "error"
	}
	h.metrics.RedisCommandsTotal.WithLabelValues(cmd.Name(), status).Inc()

	if start, ok := ctx.Value(commandStartKey{}).(time.Time); ok {
		h.metrics.RedisCommandDuration.WithLabelValues(cmd.Name()).Observe(time.Since(start).Seconds())
	}
}

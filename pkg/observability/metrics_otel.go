package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics mirrors the domain counters onto OpenTelemetry instruments.
// Prometheus remains the primary metrics surface; consumers record to it
// unconditionally and mirror here when the OTLP pipeline is enabled, via
// their AttachOTel hooks.
type OTelMetrics struct {
	// Rate limit metrics
	ratelimitDecisions    metric.Int64Counter
	ratelimitStoreFailure metric.Int64Counter
	ratelimitDuration     metric.Float64Histogram

	// Realtime token metrics
	tokensIssued  metric.Int64Counter
	tokenFailures metric.Int64Counter

	// Session metrics
	sessionsCreated metric.Int64Counter
}

// NewOTelMetrics creates a new OTel metrics instance
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("github.com/gatherhq/gather")

	m := &OTelMetrics{}
	var err error

	m.ratelimitDecisions, err = meter.Int64Counter(
		"gather.ratelimit.decisions",
		metric.WithDescription("Rate limit decisions by action and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit decisions counter: %w", err)
	}

	m.ratelimitStoreFailure, err = meter.Int64Counter(
		"gather.ratelimit.store_failures",
		metric.WithDescription("Counter store errors that triggered the fail-open policy"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit store failure counter: %w", err)
	}

	m.ratelimitDuration, err = meter.Float64Histogram(
		"gather.ratelimit.check.duration",
		metric.WithDescription("Rate limit check duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit duration histogram: %w", err)
	}

	m.tokensIssued, err = meter.Int64Counter(
		"gather.realtime.tokens_issued",
		metric.WithDescription("Capability tokens issued"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens issued counter: %w", err)
	}

	m.tokenFailures, err = meter.Int64Counter(
		"gather.realtime.token_failures",
		metric.WithDescription("Capability token issuance failures by reason"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token failures counter: %w", err)
	}

	m.sessionsCreated, err = meter.Int64Counter(
		"gather.sessions.created",
		metric.WithDescription("Sessions created by sign-in method"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions created counter: %w", err)
	}

	return m, nil
}

// RecordRateLimitDecision records a rate limit decision
func (m *OTelMetrics) RecordRateLimitDecision(ctx context.Context, action, outcome string) {
	m.ratelimitDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("ratelimit.action", action),
		attribute.String("ratelimit.outcome", outcome),
	))
}

// RecordRateLimitCheckDuration records how long one check took
func (m *OTelMetrics) RecordRateLimitCheckDuration(ctx context.Context, action string, duration time.Duration) {
	m.ratelimitDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("ratelimit.action", action),
	))
}

// RecordRateLimitStoreFailure records a store error handled by fail-open
func (m *OTelMetrics) RecordRateLimitStoreFailure(ctx context.Context) {
	m.ratelimitStoreFailure.Add(ctx, 1)
}

// RecordTokenIssued records a successful capability token issuance
func (m *OTelMetrics) RecordTokenIssued(ctx context.Context) {
	m.tokensIssued.Add(ctx, 1)
}

// RecordTokenFailure records a failed issuance with the failing stage
func (m *OTelMetrics) RecordTokenFailure(ctx context.Context, reason string) {
	m.tokenFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("failure.reason", reason),
	))
}

// RecordSessionCreated records a session creation
func (m *OTelMetrics) RecordSessionCreated(ctx context.Context, method string) {
	m.sessionsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("signin.method", method),
	))
}

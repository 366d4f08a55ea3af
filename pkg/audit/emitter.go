package audit

import (
	"context"
	"time"

	"github.com/gatherhq/gather/pkg/async"
	"github.com/gatherhq/gather/pkg/observability"
)

// writeTimeout bounds a single background audit write.
const writeTimeout = 5 * time.Second

// Emitter records security events without blocking the caller. Writes
// happen on background goroutines with their own timeout; a failed
// write is counted and logged, it never fails the request that
// produced the event.
type Emitter struct {
	sink    Logger
	logger  *observability.Logger
	metrics *observability.Metrics

	now func() time.Time
}

// NewEmitter creates an emitter over the given sink. A nil sink drops
// events; logger and metrics may be nil.
func NewEmitter(sink Logger, logger *observability.Logger, metrics *observability.Metrics) *Emitter {
	if sink == nil {
		sink = NewNopLogger()
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Emitter{
		sink:    sink,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// SignIn records a successful sign-in.
func (e *Emitter) SignIn(ctx context.Context, userID int64, ip string) {
	e.emit(ctx, &Event{
		EventType: EventTypeSignIn,
		Status:    EventStatusSuccess,
		UserID:    &userID,
		IPAddress: ip,
		Message:   "user signed in",
	})
}

// SignInFailed records a rejected sign-in attempt. There is no user id
// at this point; the client IP is the only actor fact available.
func (e *Emitter) SignInFailed(ctx context.Context, ip string, cause error) {
	event := &Event{
		EventType: EventTypeSignInFailed,
		Status:    EventStatusFailure,
		IPAddress: ip,
		Message:   "sign-in rejected",
	}
	if cause != nil {
		event.ErrorMessage = cause.Error()
	}
	e.emit(ctx, event)
}

// SessionRevoked records a logout or administrative revocation.
func (e *Emitter) SessionRevoked(ctx context.Context, userID, sessionID int64) {
	e.emit(ctx, &Event{
		EventType: EventTypeSessionRevoked,
		Status:    EventStatusSuccess,
		UserID:    &userID,
		SessionID: &sessionID,
		Message:   "session revoked",
	})
}

// RealtimeTokenIssued records a successful capability token issuance.
func (e *Emitter) RealtimeTokenIssued(ctx context.Context, userID int64, grants int) {
	e.emit(ctx, &Event{
		EventType: EventTypeRealtimeTokenIssued,
		Status:    EventStatusSuccess,
		UserID:    &userID,
		Message:   "realtime capability token issued",
		Metadata:  map[string]interface{}{"grants": grants},
	})
}

// RealtimeTokenDenied records a failed issuance. reason distinguishes
// resolver failures from signing failures.
func (e *Emitter) RealtimeTokenDenied(ctx context.Context, userID int64, reason string, cause error) {
	event := &Event{
		EventType: EventTypeRealtimeTokenDenied,
		Status:    EventStatusFailure,
		UserID:    &userID,
		Message:   "realtime capability token denied",
		Metadata:  map[string]interface{}{"reason": reason},
	}
	if cause != nil {
		event.ErrorMessage = cause.Error()
	}
	e.emit(ctx, event)
}

// RateLimitExceeded records a denied action.
func (e *Emitter) RateLimitExceeded(ctx context.Context, action, identifier string) {
	e.emit(ctx, &Event{
		EventType:  EventTypeRateLimitExceeded,
		Status:     EventStatusDenied,
		Action:     action,
		Identifier: identifier,
		Message:    "rate limit exceeded",
	})
}

// RateLimitFailOpen records that the limiter lost its counter store and
// began allowing traffic unchecked. Emitted once per degradation.
func (e *Emitter) RateLimitFailOpen(ctx context.Context, action string, cause error) {
	event := &Event{
		EventType: EventTypeRateLimitFailOpen,
		Status:    EventStatusFailure,
		Action:    action,
		Message:   "rate limit counter store unavailable, failing open",
	}
	if cause != nil {
		event.ErrorMessage = cause.Error()
	}
	e.emit(ctx, event)
}

func (e *Emitter) emit(ctx context.Context, event *Event) {
	event.Timestamp = e.now().UTC()
	if event.RequestID == "" {
		event.RequestID = observability.GetRequestID(ctx)
	}

	if e.metrics != nil {
		e.metrics.AuditEventsTotal.WithLabelValues(string(event.EventType)).Inc()
	}

	// The write must survive the request context, so it runs against a
	// fresh background context with its own deadline.
	async.SafeGo(context.Background(), e.logger, writeTimeout, "audit write", func(writeCtx context.Context) error {
		if err := e.sink.Log(writeCtx, event); err != nil {
			if e.metrics != nil {
				e.metrics.AuditWriteErrors.Inc()
			}
			e.logger.WithError(err).
				WithField("event_type", string(event.EventType)).
				Error("failed to record audit event")
		}
		return nil
	})
}

// Close flushes the underlying sink.
func (e *Emitter) Close() error {
	return e.sink.Close()
}

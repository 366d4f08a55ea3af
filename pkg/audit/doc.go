// Package audit records the platform's security trail: sign-ins,
// session revocations, realtime capability decisions, and rate limit
// denials.
//
// # Overview
//
// Events flow through an Emitter that never blocks the request path:
// the write runs on a background goroutine with its own deadline, and a
// failed write surfaces as a metric and a log line, not as a request
// error. The DBLogger sink persists to the audit_events table, which it
// creates on startup.
//
// # Event Types
//
// Authentication: auth.sign_in, auth.sign_in_failed, auth.session_revoked
// Realtime: realtime.token_issued, realtime.token_denied
// Rate limiting: ratelimit.exceeded, ratelimit.fail_open
//
// # Usage Example
//
// Record events from handlers:
//
//	sink, err := audit.NewDBLogger(db)
//	emitter := audit.NewEmitter(sink, logger, metrics)
//
//	emitter.SignIn(ctx, user.ID, clientIP)
//	emitter.RateLimitExceeded(ctx, "chat-message", "user:42")
//
// Search the trail:
//
//	events, err := sink.Search(ctx, audit.SearchFilter{
//		StartTime:  &since,
//		EventTypes: []audit.EventType{audit.EventTypeSignInFailed},
//		Limit:      100,
//	})
//
// # Retention
//
// The sweeper binary runs the S3Archiver on a schedule: events past the
// retention window are exported as newline-delimited JSON objects and
// deleted only after their batch has been uploaded.
//
// # Related Packages
//
//   - pkg/auth: session lifecycle that produces the auth events
//   - pkg/ratelimit: decisions that produce the rate limit events
//   - pkg/async: the background execution the Emitter relies on
package audit

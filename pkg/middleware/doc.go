// Package middleware provides HTTP middleware for session authentication
// and per-action rate limiting.
//
// # Overview
//
// Two concerns live here: attaching an authenticated principal to the
// request context, and charging requests against the rate limit registry
// before they reach a handler. Generic plumbing middleware (request ids,
// logging, recovery, CORS) lives in pkg/httputil.
//
// # Session Authentication
//
// SessionAuth validates the bearer session token and stores the resulting
// principal in the request context:
//
//	sessionAuth := middleware.NewSessionAuth(sessions, false)
//	router.Handle("/api/v1/realtime/token", sessionAuth.Handler(tokenHandler))
//
// Handlers read the principal back with auth.PrincipalFromContext. With the
// optional flag set, requests without an Authorization header pass through
// anonymously, which lets one route serve both populations.
//
// # Rate Limiting
//
// RateLimit wraps individual routes with a named action:
//
//	limits := middleware.NewRateLimit(registry, emitter)
//	router.Handle("/api/v1/auth/login", limits.Action(ratelimit.ActionSignInAttempt)(loginHandler))
//
// Authenticated requests are charged per principal, anonymous ones per
// client address. Denied requests get a 429 with X-RateLimit-* headers and
// Retry-After; admitted ones carry the same headers so well-behaved clients
// can pace themselves.
//
// # Related Packages
//
//   - pkg/auth: session lookup and principal context
//   - pkg/ratelimit: policy registry and counter store
//   - pkg/clientip: identity for anonymous callers
//   - pkg/audit: denial events
package middleware

package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gatherhq/gather/pkg/audit"
	"github.com/gatherhq/gather/pkg/auth"
	"github.com/gatherhq/gather/pkg/clientip"
	"github.com/gatherhq/gather/pkg/httputil"
	"github.com/gatherhq/gather/pkg/observability"
	"github.com/gatherhq/gather/pkg/ratelimit"
)

// RateLimit throttles requests through the shared policy registry. One
// instance is created at startup and routes opt in per action.
type RateLimit struct {
	registry *ratelimit.Registry
	emitter  *audit.Emitter
}

// NewRateLimit creates rate limiting middleware over registry. The emitter
// may be nil; denials are then not recorded on the audit trail.
func NewRateLimit(registry *ratelimit.Registry, emitter *audit.Emitter) *RateLimit {
	return &RateLimit{
		registry: registry,
		emitter:  emitter,
	}
}

// Action returns middleware that charges each request to the named action.
// Authenticated callers are throttled per principal, anonymous callers per
// client address, so the same wrapper serves both pre-auth routes like
// sign-in and session-protected ones.
func (m *RateLimit) Action(action ratelimit.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := identifierFor(r)

			decision, err := m.registry.Check(r.Context(), action, identifier)
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).
					WithField("action", string(action)).
					Error("rate limit check failed")
				if errors.Is(err, ratelimit.ErrStoreUnavailable) {
					httputil.WriteServiceUnavailable(w, "rate limiting unavailable")
					return
				}
				// An unknown action here is a wiring bug, not client input.
				httputil.WriteErrorMessage(w, http.StatusInternalServerError, "rate limit check failed")
				return
			}

			if !decision.Allowed {
				if m.emitter != nil {
					m.emitter.RateLimitExceeded(r.Context(), string(action), identifier)
				}
				httputil.WriteRateLimited(w, decision.Limit, decision.Remaining, decision.ResetAt)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
			next.ServeHTTP(w, r)
		})
	}
}

// identifierFor picks the throttling identity for a request: the principal
// when authenticated, the resolved client address otherwise. The prefixes
// keep the two populations on disjoint counters.
func identifierFor(r *http.Request) string {
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(principal.UserID, 10)
	}
	return clientip.Identifier(clientip.FromRequest(r))
}

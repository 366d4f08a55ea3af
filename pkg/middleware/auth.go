package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gatherhq/gather/pkg/auth"
	"github.com/gatherhq/gather/pkg/httputil"
	"github.com/gatherhq/gather/pkg/observability"
)

// SessionAuth authenticates requests against the session store.
type SessionAuth struct {
	sessions *auth.SessionStore
	optional bool // If true, allow requests without a session
}

// NewSessionAuth creates session authentication middleware. With optional
// set, requests without an Authorization header pass through anonymously;
// a header that is present is still fully validated.
func NewSessionAuth(sessions *auth.SessionStore, optional bool) *SessionAuth {
	return &SessionAuth{
		sessions: sessions,
		optional: optional,
	}
}

// BearerToken extracts the token from a request's Authorization header.
// The second return is false when the header is absent or not Bearer-shaped.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

// Handler wraps an HTTP handler with session authentication.
func (m *SessionAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		token, ok := BearerToken(r)
		if !ok {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		session, err := m.sessions.Lookup(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrSessionNotFound) {
				httputil.WriteUnauthorized(w, "invalid or expired session")
				return
			}
			// The store itself failed; nothing can be verified.
			observability.FromContext(r.Context()).WithError(err).Error("session lookup failed")
			httputil.WriteInternalError(w, errors.New("session lookup failed"))
			return
		}

		principal := auth.Principal{UserID: session.UserID, SessionID: session.ID}
		ctx := auth.WithPrincipal(r.Context(), principal)
		ctx = observability.WithPrincipalID(ctx, strconv.FormatInt(principal.UserID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

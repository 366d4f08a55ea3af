package auth

import (
	"context"
	"time"
)

// User is a local account row. Users are provisioned on first OIDC
// sign-in and looked up by the identity provider's subject afterwards.
type User struct {
	ID          int64      `json:"id"`
	ExternalID  string     `json:"external_id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Session is a server-side session row. Only the SHA-256 hash of the
// bearer token is stored; the plaintext token is returned once at
// creation and never persisted.
type Session struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	TokenHash string     `json:"-"` // Never expose hash
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Principal identifies the authenticated caller for the duration of a
// request. Handlers derive rate-limit identifiers and realtime client
// ids from UserID, never from client-supplied fields.
type Principal struct {
	UserID    int64
	SessionID int64
}

// Identity is the verified subset of ID-token claims the platform
// keeps. Subject is the identity provider's stable user id.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// contextKey is the type for context keys
type contextKey string

const principalKey contextKey = "auth_principal"

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

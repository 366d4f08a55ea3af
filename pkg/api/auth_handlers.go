package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/oauth2"

	"github.com/gatherhq/gather/pkg/audit"
	"github.com/gatherhq/gather/pkg/auth"
	"github.com/gatherhq/gather/pkg/clientip"
	"github.com/gatherhq/gather/pkg/httputil"
	"github.com/gatherhq/gather/pkg/middleware"
	"github.com/gatherhq/gather/pkg/observability"
	"github.com/gatherhq/gather/pkg/ratelimit"
)

// IdentityProvider verifies sign-in credentials against the identity
// provider. Implemented by auth.OIDCAuthenticator.
type IdentityProvider interface {
	VerifyIDToken(ctx context.Context, rawToken string) (*auth.Identity, error)
	ExchangeCode(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*auth.Identity, error)
}

// AuthHandlers handles sign-in, sign-out and session introspection.
type AuthHandlers struct {
	identity IdentityProvider
	users    *auth.UserDirectory
	sessions *auth.SessionStore
	emitter  *audit.Emitter
}

// NewAuthHandlers creates a new auth handlers instance. The emitter may
// be nil, in which case sign-in events are not recorded.
func NewAuthHandlers(identity IdentityProvider, users *auth.UserDirectory, sessions *auth.SessionStore, emitter *audit.Emitter) *AuthHandlers {
	return &AuthHandlers{
		identity: identity,
		users:    users,
		sessions: sessions,
		emitter:  emitter,
	}
}

// RegisterRoutes registers authentication routes. Login is throttled by
// client address because no principal exists yet at that point; logout
// requires an authenticated session.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router, sessionAuth *middleware.SessionAuth, throttle *middleware.RateLimit) {
	router.Handle("/api/v1/auth/login",
		throttle.Action(ratelimit.ActionSignInAttempt)(http.HandlerFunc(h.login))).Methods("POST")
	router.Handle("/api/v1/auth/logout",
		sessionAuth.Handler(http.HandlerFunc(h.logout))).Methods("POST")
	router.HandleFunc("/api/v1/auth/session", h.session).Methods("GET")
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *auth.User `json:"user"`
}

type sessionResponse struct {
	User      *auth.User `json:"user"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// login handles POST /api/v1/auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	if h.identity == nil {
		httputil.WriteServiceUnavailable(w, "sign-in is not configured")
		return
	}

	var req struct {
		IDToken     string `json:"id_token"`
		Code        string `json:"code"`
		RedirectURI string `json:"redirect_uri"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.IDToken == "" && req.Code == "" {
		httputil.WriteValidationError(w, "id_token or code is required")
		return
	}

	ctx := r.Context()
	ip := clientip.FromRequest(r)

	var (
		identity *auth.Identity
		err      error
	)
	if req.IDToken != "" {
		identity, err = h.identity.VerifyIDToken(ctx, req.IDToken)
	} else {
		var opts []oauth2.AuthCodeOption
		if req.RedirectURI != "" {
			opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", req.RedirectURI))
		}
		identity, err = h.identity.ExchangeCode(ctx, req.Code, opts...)
	}
	if err != nil {
		if h.emitter != nil {
			h.emitter.SignInFailed(ctx, ip, err)
		}
		httputil.WriteUnauthorized(w, "identity verification failed")
		return
	}

	user, err := h.users.FindOrCreate(ctx, identity)
	if err != nil {
		observability.FromContext(ctx).WithError(err).Error("failed to provision user")
		httputil.WriteInternalError(w, errors.New("failed to provision user"))
		return
	}

	session, token, err := h.sessions.Create(ctx, user.ID, "oidc")
	if err != nil {
		observability.FromContext(ctx).WithError(err).Error("failed to create session")
		httputil.WriteInternalError(w, errors.New("failed to create session"))
		return
	}

	if h.emitter != nil {
		h.emitter.SignIn(ctx, user.ID, ip)
	}

	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		User:      user,
	})
}

// logout handles POST /api/v1/auth/logout
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "not authenticated")
		return
	}

	if err := h.sessions.Revoke(r.Context(), principal.SessionID); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to revoke session")
		httputil.WriteInternalError(w, errors.New("failed to revoke session"))
		return
	}

	if h.emitter != nil {
		h.emitter.SessionRevoked(r.Context(), principal.UserID, principal.SessionID)
	}

	httputil.WriteNoContent(w)
}

// session handles GET /api/v1/auth/session. It validates the bearer
// token directly instead of going through the auth middleware so that
// expired and missing sessions both produce a clean 401 body.
func (h *AuthHandlers) session(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		httputil.WriteUnauthorized(w, "missing or malformed authorization header")
		return
	}

	sess, err := h.sessions.Lookup(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			httputil.WriteUnauthorized(w, "invalid or expired session")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("session lookup failed")
		httputil.WriteInternalError(w, errors.New("session lookup failed"))
		return
	}

	user, err := h.users.Get(r.Context(), sess.UserID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to load session user")
		httputil.WriteInternalError(w, errors.New("failed to load session user"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, sessionResponse{
		User:      user,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
	})
}

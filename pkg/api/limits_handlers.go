package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/gatherhq/gather/pkg/auth"
	"github.com/gatherhq/gather/pkg/httputil"
	"github.com/gatherhq/gather/pkg/middleware"
	"github.com/gatherhq/gather/pkg/observability"
	"github.com/gatherhq/gather/pkg/ratelimit"
)

// LimitsHandlers exposes the rate limiter to server actions that guard
// side effects outside this process.
type LimitsHandlers struct {
	registry *ratelimit.Registry
}

// NewLimitsHandlers creates a new limits handlers instance.
func NewLimitsHandlers(registry *ratelimit.Registry) *LimitsHandlers {
	return &LimitsHandlers{registry: registry}
}

// RegisterRoutes registers rate limit routes behind session
// authentication.
func (h *LimitsHandlers) RegisterRoutes(router *mux.Router, sessionAuth *middleware.SessionAuth) {
	router.Handle("/api/v1/limits/check",
		sessionAuth.Handler(http.HandlerFunc(h.check))).Methods("POST")
}

// check handles POST /api/v1/limits/check. Each call records a hit, so
// callers must only check immediately before performing the guarded
// action. A denied decision is a 200 with allowed=false; the caller
// translates it into its own user-facing error.
func (h *LimitsHandlers) check(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "not authenticated")
		return
	}

	var req struct {
		Action     string `json:"action"`
		Identifier string `json:"identifier"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Action, "action") {
		return
	}

	identifier := req.Identifier
	if identifier == "" {
		identifier = "user:" + strconv.FormatInt(principal.UserID, 10)
	}

	decision, err := h.registry.Check(r.Context(), ratelimit.Action(req.Action), identifier)
	if err != nil {
		if errors.Is(err, ratelimit.ErrUnknownAction) || errors.Is(err, ratelimit.ErrInvalidIdentifier) {
			httputil.WriteValidationError(w, err.Error())
			return
		}
		if errors.Is(err, ratelimit.ErrStoreUnavailable) {
			httputil.WriteServiceUnavailable(w, "rate limiting unavailable")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("rate limit check failed")
		httputil.WriteInternalError(w, errors.New("rate limit check failed"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, decision)
}

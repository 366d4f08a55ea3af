package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gatherhq/gather/pkg/audit"
	"github.com/gatherhq/gather/pkg/auth"
	"github.com/gatherhq/gather/pkg/httputil"
	"github.com/gatherhq/gather/pkg/middleware"
	"github.com/gatherhq/gather/pkg/observability"
	"github.com/gatherhq/gather/pkg/realtime"
)

// RealtimeHandlers issues capability tokens for the realtime messaging
// layer.
type RealtimeHandlers struct {
	issuer  *realtime.Issuer
	emitter *audit.Emitter
}

// NewRealtimeHandlers creates a new realtime handlers instance.
func NewRealtimeHandlers(issuer *realtime.Issuer, emitter *audit.Emitter) *RealtimeHandlers {
	return &RealtimeHandlers{
		issuer:  issuer,
		emitter: emitter,
	}
}

// RegisterRoutes registers realtime routes behind session authentication.
func (h *RealtimeHandlers) RegisterRoutes(router *mux.Router, sessionAuth *middleware.SessionAuth) {
	router.Handle("/api/v1/realtime/token",
		sessionAuth.Handler(http.HandlerFunc(h.issueToken))).Methods("POST")
}

// tokenResponse is the credential consumed by realtime clients. The
// field names are pinned by the client SDK contract.
type tokenResponse struct {
	Token      string              `json:"token"`
	ClientID   string              `json:"clientId"`
	Capability map[string][]string `json:"capability"`
	ExpiresAt  time.Time           `json:"expiresAt"`
}

// issueToken handles POST /api/v1/realtime/token. The principal comes
// from the session; the request carries no body. Capabilities are
// recomputed from current membership and RSVP facts on every call, so a
// revoked membership stops appearing in the next token even though
// already-issued tokens run out their TTL.
func (h *RealtimeHandlers) issueToken(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "not authenticated")
		return
	}

	issued, err := h.issuer.Issue(r.Context(), principal.UserID)
	if err != nil {
		reason := "resolver"
		if errors.Is(err, realtime.ErrSigningUnavailable) {
			reason = "signing"
		}
		if h.emitter != nil {
			h.emitter.RealtimeTokenDenied(r.Context(), principal.UserID, reason, err)
		}
		observability.FromContext(r.Context()).WithError(err).Error("failed to issue realtime token")
		httputil.WriteInternalError(w, errors.New("failed to issue realtime token"))
		return
	}

	if h.emitter != nil {
		h.emitter.RealtimeTokenIssued(r.Context(), principal.UserID, len(issued.Capability))
	}

	httputil.WriteJSON(w, http.StatusOK, tokenResponse{
		Token:      issued.Token,
		ClientID:   issued.ClientID,
		Capability: issued.Capability.AsMap(),
		ExpiresAt:  issued.ExpiresAt,
	})
}

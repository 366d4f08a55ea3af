package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/gather/pkg/auth"
)

func TestLoginWithIDToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/auth/login", `{"id_token":"stub-token"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token     string     `json:"token"`
		ExpiresAt time.Time  `json:"expires_at"`
		User      *auth.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "stub-token", ts.identity.lastIDToken)
	assert.True(t, strings.HasPrefix(resp.Token, auth.TokenPrefix))
	assert.True(t, resp.ExpiresAt.After(time.Now()))
	require.NotNil(t, resp.User)
	assert.Equal(t, "idp|alice", resp.User.ExternalID)
	assert.Equal(t, "alice@example.com", resp.User.Email)

	// The returned token must resolve to a live session.
	session, err := ts.sessions.Lookup(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, session.UserID)
}

func TestLoginWithAuthorizationCode(t *testing.T) {
	ts := newTestServer(t)

	body := `{"code":"auth-code-123","redirect_uri":"https://app.gather.example/callback"}`
	rec := ts.request(t, http.MethodPost, "/api/v1/auth/login", body, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "auth-code-123", ts.identity.lastCode)
	// The per-request redirect_uri is forwarded to the token exchange.
	assert.Len(t, ts.identity.lastOpts, 1)
}

func TestLoginRepeatSignInKeepsOneUser(t *testing.T) {
	ts := newTestServer(t)

	_, first := ts.signIn(t)
	_, second := ts.signIn(t)

	assert.Equal(t, first.ID, second.ID)

	var count int
	require.NoError(t, ts.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestLoginRejectsBadIdentity(t *testing.T) {
	ts := newTestServer(t)
	ts.identity.err = errors.New("token signature mismatch")

	rec := ts.request(t, http.MethodPost, "/api/v1/auth/login", `{"id_token":"forged"}`, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "identity verification failed")
}

func TestLoginValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"blank credentials", `{"id_token":"","code":""}`},
		{"malformed json", `{"id_token":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.request(t, http.MethodPost, "/api/v1/auth/login", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestLoginThrottledByClientAddress(t *testing.T) {
	ts := newTestServer(t)
	ts.identity.err = errors.New("bad credentials")

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"id_token":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("CF-Connecting-IP", ip)
		rec := httptest.NewRecorder()
		ts.server.ServeHTTP(rec, req)
		return rec
	}

	// Failed attempts burn quota too; the policy allows five per minute.
	for i := 0; i < 5; i++ {
		rec := send("198.51.100.9")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := send("198.51.100.9")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// A different address is unaffected.
	rec = send("198.51.100.10")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.signIn(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/auth/logout", "", token)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// The session is gone for every authenticated surface.
	_, err := ts.sessions.Lookup(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)

	rec = ts.request(t, http.MethodGet, "/api/v1/auth/session", "", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutRequiresSession(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/auth/logout", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionIntrospection(t *testing.T) {
	ts := newTestServer(t)
	token, user := ts.signIn(t)

	rec := ts.request(t, http.MethodGet, "/api/v1/auth/session", "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		User      *auth.User `json:"user"`
		CreatedAt time.Time  `json:"created_at"`
		ExpiresAt time.Time  `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.NotNil(t, resp.User)
	assert.Equal(t, user.ID, resp.User.ID)
	assert.Equal(t, user.Email, resp.User.Email)
	assert.True(t, resp.ExpiresAt.After(time.Now()))
	assert.False(t, resp.CreatedAt.IsZero())
}

func TestSessionMissingHeader(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/api/v1/auth/session", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "authorization header")
}

func TestSessionUnknownToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/api/v1/auth/session", "", "gather_bmV2ZXJpc3N1ZWQw")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or expired session")
}

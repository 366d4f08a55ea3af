package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/gatherhq/gather/pkg/audit"
	"github.com/gatherhq/gather/pkg/auth"
	"github.com/gatherhq/gather/pkg/communities"
	"github.com/gatherhq/gather/pkg/observability"
	"github.com/gatherhq/gather/pkg/ratelimit"
	"github.com/gatherhq/gather/pkg/realtime"
)

// testSigningKey is only used to mint verifiable tokens in tests.
var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

// newTestDB opens an in-memory database with the platform auth tables.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// A :memory: database exists per connection, so the pool must not
	// grow past one.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			external_id TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			last_login_at TIMESTAMP
		);
		CREATE TABLE sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token_hash TEXT NOT NULL UNIQUE,
			user_id INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			revoked_at TIMESTAMP
		);
	`)
	require.NoError(t, err)

	return db
}

// stubIdentity implements IdentityProvider with canned results.
type stubIdentity struct {
	identity *auth.Identity
	err      error

	lastIDToken string
	lastCode    string
	lastOpts    []oauth2.AuthCodeOption
}

func (s *stubIdentity) VerifyIDToken(ctx context.Context, rawToken string) (*auth.Identity, error) {
	s.lastIDToken = rawToken
	if s.err != nil {
		return nil, s.err
	}
	return s.identity, nil
}

func (s *stubIdentity) ExchangeCode(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*auth.Identity, error) {
	s.lastCode = code
	s.lastOpts = opts
	if s.err != nil {
		return nil, s.err
	}
	return s.identity, nil
}

// stubResolver implements realtime.AccessResolver over a fixed snapshot.
type stubResolver struct {
	access *communities.Access
	err    error
}

func (s *stubResolver) Resolve(ctx context.Context, principalID int64) (*communities.Access, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.access, nil
}

// testServer wires a full server over sqlite, miniredis and stubbed
// external dependencies. deps is kept so tests can build variant
// servers over the same fixtures.
type testServer struct {
	server   *Server
	deps     Dependencies
	db       *sql.DB
	sessions *auth.SessionStore
	users    *auth.UserDirectory
	identity *stubIdentity
	resolver *stubResolver
	registry *prometheus.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := newTestDB(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	policies := map[ratelimit.Action]ratelimit.Policy{
		ratelimit.ActionSignInAttempt: {MaxCount: 5, Window: time.Minute, KeyPrefix: "rl:sign-in-attempt"},
		ratelimit.ActionChatMessage:   {MaxCount: 2, Window: time.Minute, KeyPrefix: "rl:chat-message"},
		ratelimit.ActionVote:          {MaxCount: 10, Window: time.Minute, KeyPrefix: "rl:vote"},
	}

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)

	sessions := auth.NewSessionStore(db, time.Hour, metrics)
	users := auth.NewUserDirectory(db)
	identity := &stubIdentity{
		identity: &auth.Identity{Subject: "idp|alice", Email: "alice@example.com", Name: "Alice"},
	}
	resolver := &stubResolver{access: &communities.Access{}}

	ts := &testServer{
		db:       db,
		sessions: sessions,
		users:    users,
		identity: identity,
		resolver: resolver,
		registry: promRegistry,
	}

	ts.deps = Dependencies{
		Logger:   logger,
		Metrics:  metrics,
		Registry: promRegistry,
		Health:   observability.NewHealthChecker(db, client),
		Sessions: sessions,
		Users:    users,
		Identity: identity,
		Issuer:   realtime.NewIssuer(resolver, testSigningKey, "gather", time.Hour, metrics),
		Limits:   ratelimit.NewRegistry(policies, ratelimit.NewRedisStore(client), true, logger, metrics),
		Emitter:  audit.NewEmitter(nil, logger, metrics),
	}
	ts.server = NewServer(ts.deps)

	return ts
}

// signIn runs the login flow and returns the bearer token and user.
func (ts *testServer) signIn(t *testing.T) (string, *auth.User) {
	t.Helper()

	rec := ts.request(t, http.MethodPost, "/api/v1/auth/login", `{"id_token":"stub-token"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string     `json:"token"`
		User  *auth.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	require.NotNil(t, resp.User)

	return resp.Token, resp.User
}

// request performs a request against the bare routes. A non-empty token
// is sent as a bearer credential.
func (ts *testServer) request(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("CF-Connecting-IP", "203.0.113.7")

	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	return rec
}

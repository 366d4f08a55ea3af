package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gatherhq/gather/pkg/observability"
)

// ErrSessionNotFound is returned when no active session matches a
// token. Expired, revoked and unknown tokens are indistinguishable so
// the auth surface leaks nothing about why a token stopped working.
var ErrSessionNotFound = errors.New("session not found")

// DefaultSessionTTL is how long a session stays valid unless revoked.
const DefaultSessionTTL = 30 * 24 * time.Hour

// SessionStore manages server-side sessions. The sessions table lives
// in the shared platform schema next to users; see the package
// documentation for the expected columns.
type SessionStore struct {
	db        *sql.DB
	generator *TokenGenerator
	ttl       time.Duration
	metrics   *observability.Metrics
	otel      *observability.OTelMetrics

	now func() time.Time
}

// NewSessionStore creates a session store. A non-positive ttl falls
// back to DefaultSessionTTL. metrics may be nil.
func NewSessionStore(db *sql.DB, ttl time.Duration, metrics *observability.Metrics) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		db:        db,
		generator: NewTokenGenerator(),
		ttl:       ttl,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Create mints a session for the user and returns the plaintext token.
// The token is returned exactly once; only its hash is stored. method
// labels the sign-in method for metrics (e.g. "oidc").
func (s *SessionStore) Create(ctx context.Context, userID int64, method string) (*Session, string, error) {
	token, tokenHash, err := s.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate session token: %w", err)
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO sessions (token_hash, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, tokenHash, userID, now, expiresAt).Scan(&id)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	if s.metrics != nil {
		s.metrics.SessionsCreatedTotal.WithLabelValues(method).Inc()
	}
	if s.otel != nil {
		s.otel.RecordSessionCreated(ctx, method)
	}

	return &Session{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}, token, nil
}

// AttachOTel mirrors session counters onto the OTLP pipeline. Attach
// before the store serves requests.
func (s *SessionStore) AttachOTel(m *observability.OTelMetrics) {
	s.otel = m
}

// Lookup resolves a bearer token to its active session. Returns
// ErrSessionNotFound for malformed, unknown, revoked or expired tokens.
func (s *SessionStore) Lookup(ctx context.Context, token string) (*Session, error) {
	if err := s.generator.ValidateTokenFormat(token); err != nil {
		return nil, ErrSessionNotFound
	}

	tokenHash := s.generator.HashToken(token)

	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, created_at, expires_at
		FROM sessions
		WHERE token_hash = $1
		  AND revoked_at IS NULL
		  AND expires_at > $2
	`, tokenHash, s.now().UTC()).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	sess.TokenHash = tokenHash
	return &sess, nil
}

// Revoke marks a session revoked. Revoking an already revoked or
// unknown session is a no-op, not an error.
func (s *SessionStore) Revoke(ctx context.Context, sessionID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET revoked_at = $1
		WHERE id = $2 AND revoked_at IS NULL
	`, s.now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	if s.metrics != nil {
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			s.metrics.SessionsRevokedTotal.Inc()
		}
	}

	return nil
}

// PurgeExpired deletes sessions that expired, or were revoked, before
// the retention cutoff. Returns the number of rows removed.
func (s *SessionStore) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-retention)

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE expires_at < $1
		   OR (revoked_at IS NOT NULL AND revoked_at < $2)
	`, cutoff, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}

	return res.RowsAffected()
}

package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClientID = "gather-web"

// testIdentityProvider is a minimal OIDC issuer: a discovery document,
// a JWKS endpoint, and a token endpoint that returns a canned response.
type testIdentityProvider struct {
	server     *httptest.Server
	signingKey jwk.Key

	// tokenResponse is returned verbatim by the token endpoint.
	tokenResponse map[string]any
}

func newTestIdentityProvider(t *testing.T) *testIdentityProvider {
	t.Helper()

	rawKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signingKey, err := jwk.FromRaw(rawKey)
	require.NoError(t, err)
	require.NoError(t, signingKey.Set(jwk.KeyIDKey, "test-signing-key"))
	require.NoError(t, signingKey.Set(jwk.AlgorithmKey, jwa.RS256))

	idp := &testIdentityProvider{signingKey: signingKey}

	// Handlers reference the server URL, so register them after start.
	mux := http.NewServeMux()
	idp.server = httptest.NewServer(mux)
	t.Cleanup(idp.server.Close)

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                idp.issuer(),
			"authorization_endpoint":                idp.issuer() + "/authorize",
			"token_endpoint":                        idp.issuer() + "/token",
			"jwks_uri":                              idp.issuer() + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})

	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		public, err := idp.signingKey.PublicKey()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		set := jwk.NewSet()
		if err := set.AddKey(public); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	})

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(idp.tokenResponse)
	})

	return idp
}

func (idp *testIdentityProvider) issuer() string { return idp.server.URL }

// mintIDToken signs an ID token the way the provider would.
func (idp *testIdentityProvider) mintIDToken(t *testing.T, subject, email, name, audience string, lifetime time.Duration) string {
	t.Helper()

	now := time.Now()
	token := jwt.New()
	claims := map[string]any{
		jwt.IssuerKey:     idp.issuer(),
		jwt.SubjectKey:    subject,
		jwt.AudienceKey:   audience,
		jwt.IssuedAtKey:   now.Add(-time.Minute),
		jwt.ExpirationKey: now.Add(lifetime),
		"email":           email,
		"name":            name,
	}
	for key, value := range claims {
		require.NoError(t, token.Set(key, value))
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, idp.signingKey))
	require.NoError(t, err)
	return string(signed)
}

func newTestAuthenticator(t *testing.T, idp *testIdentityProvider) *OIDCAuthenticator {
	t.Helper()

	authenticator, err := NewOIDCAuthenticator(context.Background(), OIDCConfig{
		IssuerURL:    idp.issuer(),
		ClientID:     testClientID,
		ClientSecret: "test-secret",
		RedirectURL:  "https://gather.example.com/auth/callback",
	})
	require.NoError(t, err)
	return authenticator
}

func TestVerifyIDToken(t *testing.T) {
	idp := newTestIdentityProvider(t)
	authenticator := newTestAuthenticator(t, idp)

	raw := idp.mintIDToken(t, "idp-user-42", "casey@example.com", "Casey Alvarez", testClientID, time.Hour)

	identity, err := authenticator.VerifyIDToken(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "idp-user-42", identity.Subject)
	assert.Equal(t, "casey@example.com", identity.Email)
	assert.Equal(t, "Casey Alvarez", identity.Name)
}

func TestVerifyIDTokenWrongAudience(t *testing.T) {
	idp := newTestIdentityProvider(t)
	authenticator := newTestAuthenticator(t, idp)

	raw := idp.mintIDToken(t, "idp-user-42", "casey@example.com", "Casey Alvarez", "some-other-app", time.Hour)

	_, err := authenticator.VerifyIDToken(context.Background(), raw)
	assert.Error(t, err)
}

func TestVerifyIDTokenExpired(t *testing.T) {
	idp := newTestIdentityProvider(t)
	authenticator := newTestAuthenticator(t, idp)

	raw := idp.mintIDToken(t, "idp-user-42", "casey@example.com", "Casey Alvarez", testClientID, -time.Hour)

	_, err := authenticator.VerifyIDToken(context.Background(), raw)
	assert.Error(t, err)
}

func TestVerifyIDTokenTamperedSignature(t *testing.T) {
	idp := newTestIdentityProvider(t)
	authenticator := newTestAuthenticator(t, idp)

	raw := idp.mintIDToken(t, "idp-user-42", "casey@example.com", "Casey Alvarez", testClientID, time.Hour)
	other := idp.mintIDToken(t, "idp-user-43", "robin@example.com", "Robin Vale", testClientID, time.Hour)

	// Body of one token, signature of another.
	rawParts := strings.Split(raw, ".")
	otherParts := strings.Split(other, ".")
	require.Len(t, rawParts, 3)
	tampered := strings.Join([]string{rawParts[0], rawParts[1], otherParts[2]}, ".")

	_, err := authenticator.VerifyIDToken(context.Background(), tampered)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to verify ID token")
}

func TestVerifyIDTokenGarbage(t *testing.T) {
	idp := newTestIdentityProvider(t)
	authenticator := newTestAuthenticator(t, idp)

	_, err := authenticator.VerifyIDToken(context.Background(), "not-a-jwt")
	assert.Error(t, err)
}

func TestVerifyIDTokenMissingSubject(t *testing.T) {
	idp := newTestIdentityProvider(t)
	authenticator := newTestAuthenticator(t, idp)

	raw := idp.mintIDToken(t, "", "casey@example.com", "Casey Alvarez", testClientID, time.Hour)

	_, err := authenticator.VerifyIDToken(context.Background(), raw)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing subject")
}

func TestExchangeCodeVerifiesIDToken(t *testing.T) {
	idp := newTestIdentityProvider(t)
	authenticator := newTestAuthenticator(t, idp)

	idp.tokenResponse = map[string]any{
		"access_token": "test-access-token",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     idp.mintIDToken(t, "idp-user-42", "casey@example.com", "Casey Alvarez", testClientID, time.Hour),
	}

	identity, err := authenticator.ExchangeCode(context.Background(), "test-authorization-code")
	require.NoError(t, err)
	assert.Equal(t, "idp-user-42", identity.Subject)
	assert.Equal(t, "casey@example.com", identity.Email)
}

func TestExchangeCodeMissingIDToken(t *testing.T) {
	idp := newTestIdentityProvider(t)
	authenticator := newTestAuthenticator(t, idp)

	idp.tokenResponse = map[string]any{
		"access_token": "test-access-token",
		"token_type":   "Bearer",
		"expires_in":   3600,
	}

	_, err := authenticator.ExchangeCode(context.Background(), "test-authorization-code")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing id_token")
}

func TestAuthCodeURL(t *testing.T) {
	idp := newTestIdentityProvider(t)
	authenticator := newTestAuthenticator(t, idp)

	authURL := authenticator.AuthCodeURL("test-state")
	assert.True(t, strings.HasPrefix(authURL, idp.issuer()+"/authorize"))
	assert.Contains(t, authURL, "client_id="+testClientID)
	assert.Contains(t, authURL, "state=test-state")
	assert.Contains(t, authURL, "scope=openid")
}

func TestNewOIDCAuthenticatorValidation(t *testing.T) {
	ctx := context.Background()

	_, err := NewOIDCAuthenticator(ctx, OIDCConfig{ClientID: testClientID})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "issuer URL is required")

	_, err = NewOIDCAuthenticator(ctx, OIDCConfig{IssuerURL: "https://id.example.com"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "client ID is required")
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	_, ok := PrincipalFromContext(ctx)
	assert.False(t, ok)

	ctx = WithPrincipal(ctx, Principal{UserID: 7, SessionID: 12})
	principal, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(7), principal.UserID)
	assert.Equal(t, int64(12), principal.SessionID)
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/gather/pkg/communities"
)

func TestIssueTokenRequiresSession(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/realtime/token", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIssueToken(t *testing.T) {
	ts := newTestServer(t)
	ts.resolver.access = &communities.Access{
		CommunityIDs:    []int64{7},
		GeneralChannels: map[int64][]int64{7: {100}},
		SessionChannels: map[int64][]int64{7: {200}},
	}

	token, user := ts.signIn(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/realtime/token", "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token      string              `json:"token"`
		ClientID   string              `json:"clientId"`
		Capability map[string][]string `json:"capability"`
		ExpiresAt  time.Time           `json:"expiresAt"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	clientID := fmt.Sprintf("%d", user.ID)
	assert.Equal(t, clientID, resp.ClientID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), resp.ExpiresAt, time.Minute)

	assert.Equal(t, []string{"subscribe"}, resp.Capability["user:"+clientID+":notifications"])
	assert.Equal(t, []string{"subscribe", "presence"}, resp.Capability["tenant:7:presence"])
	assert.Equal(t, []string{"subscribe"}, resp.Capability["tenant:7:forum"])
	assert.Equal(t, []string{"subscribe", "presence"}, resp.Capability["tenant:7:document:*"])
	assert.Equal(t, []string{"subscribe", "presence"}, resp.Capability["tenant:7:chat:100"])
	assert.Equal(t, []string{"subscribe", "presence"}, resp.Capability["tenant:7:chat:200"])
	assert.Len(t, resp.Capability, 6)

	// No channel ever carries publish.
	for pattern, ops := range resp.Capability {
		assert.NotContains(t, ops, "publish", "channel %s", pattern)
	}

	// The embedded JWT is signed with the shared key and binds the
	// caller's identity.
	parsed, err := jwt.Parse([]byte(resp.Token), jwt.WithKey(jwa.HS256, testSigningKey))
	require.NoError(t, err)
	assert.Equal(t, clientID, parsed.Subject())
	assert.Equal(t, "gather", parsed.Issuer())
}

func TestIssueTokenEmptyMemberships(t *testing.T) {
	ts := newTestServer(t)
	ts.resolver.access = &communities.Access{}

	token, user := ts.signIn(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/realtime/token", "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Capability map[string][]string `json:"capability"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// A principal with no memberships still gets their notification
	// channel, and nothing else.
	require.Len(t, resp.Capability, 1)
	assert.Contains(t, resp.Capability, fmt.Sprintf("user:%d:notifications", user.ID))
}

func TestIssueTokenRecomputesOnEveryCall(t *testing.T) {
	ts := newTestServer(t)
	ts.resolver.access = &communities.Access{
		CommunityIDs:    []int64{7},
		SessionChannels: map[int64][]int64{7: {200}},
	}

	token, _ := ts.signIn(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/realtime/token", "", token)
	require.Equal(t, http.StatusOK, rec.Code)

	var first struct {
		Capability map[string][]string `json:"capability"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.Contains(t, first.Capability, "tenant:7:chat:200")

	// Cancel the RSVP. The next issuance must not carry the channel.
	ts.resolver.access = &communities.Access{CommunityIDs: []int64{7}}

	rec = ts.request(t, http.MethodPost, "/api/v1/realtime/token", "", token)
	require.Equal(t, http.StatusOK, rec.Code)

	var second struct {
		Capability map[string][]string `json:"capability"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.NotContains(t, second.Capability, "tenant:7:chat:200")
}

func TestIssueTokenResolverFailure(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.signIn(t)

	ts.resolver.err = errors.New("database gone")

	rec := ts.request(t, http.MethodPost, "/api/v1/realtime/token", "", token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to issue realtime token")
	// The error detail stays out of the response body.
	assert.NotContains(t, rec.Body.String(), "database gone")
}

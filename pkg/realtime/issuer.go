package realtime

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/gatherhq/gather/pkg/communities"
	"github.com/gatherhq/gather/pkg/observability"
)

// ErrSigningUnavailable means the issuer cannot produce a verifiable token.
// Issuance fails closed on it: an unsigned or unverifiable token must never
// leave the process.
var ErrSigningUnavailable = errors.New("realtime token signing unavailable")

// AccessResolver supplies current membership and RSVP facts.
// *communities.Resolver implements it.
type AccessResolver interface {
	Resolve(ctx context.Context, principalID int64) (*communities.Access, error)
}

// IssuedToken is one minted capability token.
type IssuedToken struct {
	// Token is the signed compact JWT handed to the client.
	Token string
	// ClientID is the connection identity the messaging provider will pin,
	// always the principal id. A client cannot pick someone else's id.
	ClientID string
	// Capability is the grant list embedded in the token.
	Capability Capability
	// ExpiresAt is when the token stops working. Tokens cannot be revoked
	// earlier, which is why the TTL stays short.
	ExpiresAt time.Time
}

// Issuer mints capability tokens for the realtime messaging provider. The
// signing key is shared with the provider's token verification (HS256).
type Issuer struct {
	resolver   AccessResolver
	signingKey []byte
	issuerName string
	ttl        time.Duration
	metrics    *observability.Metrics
	otel       *observability.OTelMetrics

	// now is swapped out in tests
	now func() time.Time
}

// NewIssuer creates an issuer. A non-positive ttl falls back to one hour.
func NewIssuer(resolver AccessResolver, signingKey []byte, issuerName string, ttl time.Duration, metrics *observability.Metrics) *Issuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{
		resolver:   resolver,
		signingKey: signingKey,
		issuerName: issuerName,
		ttl:        ttl,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Issue resolves the principal's current facts, builds the capability, and
// signs it into a fresh token. The full pipeline runs on every call; a
// capability computed for an earlier token is never reused, so a membership
// or RSVP change is reflected by the very next issuance.
//
// Fails closed: a resolver error or an unusable signing key aborts the whole
// issuance. There is no partial or default grant.
func (i *Issuer) Issue(ctx context.Context, principalID int64) (*IssuedToken, error) {
	start := time.Now()

	if len(i.signingKey) == 0 {
		i.recordFailure(ctx, "signing")
		return nil, ErrSigningUnavailable
	}

	access, err := i.resolver.Resolve(ctx, principalID)
	if err != nil {
		i.recordFailure(ctx, "resolver")
		return nil, fmt.Errorf("failed to resolve access for principal %d: %w", principalID, err)
	}

	capability := BuildCapability(principalID, access)

	now := i.now()
	expiresAt := now.Add(i.ttl)
	clientID := strconv.FormatInt(principalID, 10)

	token := jwt.New()
	claims := []struct {
		key   string
		value interface{}
	}{
		{jwt.SubjectKey, clientID},
		{jwt.IssuerKey, i.issuerName},
		{jwt.IssuedAtKey, now},
		{jwt.ExpirationKey, expiresAt},
		{"client_id", clientID},
		{"capability", capability.AsMap()},
	}
	for _, claim := range claims {
		if err := token.Set(claim.key, claim.value); err != nil {
			i.recordFailure(ctx, "signing")
			return nil, fmt.Errorf("failed to set claim %s: %w", claim.key, err)
		}
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, i.signingKey))
	if err != nil {
		i.recordFailure(ctx, "signing")
		return nil, fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
	}

	if i.metrics != nil {
		i.metrics.TokensIssuedTotal.Inc()
		i.metrics.TokenIssuanceDuration.Observe(time.Since(start).Seconds())
		i.metrics.CapabilityGrantsPerToken.Observe(float64(len(capability)))
	}
	if i.otel != nil {
		i.otel.RecordTokenIssued(ctx)
	}

	return &IssuedToken{
		Token:      string(signed),
		ClientID:   clientID,
		Capability: capability,
		ExpiresAt:  expiresAt,
	}, nil
}

func (i *Issuer) recordFailure(ctx context.Context, reason string) {
	if i.metrics != nil {
		i.metrics.TokenFailuresTotal.WithLabelValues(reason).Inc()
	}
	if i.otel != nil {
		i.otel.RecordTokenFailure(ctx, reason)
	}
}

// AttachOTel mirrors issuance counters onto the OTLP pipeline. Attach
// before the issuer serves requests.
func (i *Issuer) AttachOTel(m *observability.OTelMetrics) {
	i.otel = m
}

// Package auth provides OIDC sign-in and server-side session management
// for the gather platform.
//
// # Overview
//
// Sign-up and sign-in identity lives at the identity provider; this
// package verifies the ID tokens it mints, maps them to local user
// rows, and issues the opaque bearer tokens the rest of the API
// authenticates with. Every downstream decision (capability issuance,
// rate-limit identity) starts from the Principal this package resolves.
//
// # Session Tokens
//
// Tokens are opaque, not JWTs: 32 random bytes, base64url encoded,
// prefixed for identification.
//
//	generator := auth.NewTokenGenerator()
//	token, hash, err := generator.GenerateToken()
//	// token: gather_xxx (give to the client, display once)
//	// hash: SHA256(token) (the only thing stored)
//
// Lookup hashes the presented token and matches against stored hashes,
// so a database leak never exposes usable credentials.
//
// # Sign-In Flow
//
// The web tier completes OIDC against the provider and posts the raw
// ID token; this service verifies it and trades it for a session:
//
//	authenticator, err := auth.NewOIDCAuthenticator(ctx, auth.OIDCConfig{
//		IssuerURL: "https://id.example.com",
//		ClientID:  "gather-web",
//	})
//	identity, err := authenticator.VerifyIDToken(ctx, rawIDToken)
//	user, err := directory.FindOrCreate(ctx, identity)
//	session, token, err := sessions.Create(ctx, user.ID, "oidc")
//
// The authorization-code flow (AuthCodeURL / ExchangeCode) is available
// for clients that sign in against this service directly.
//
// # Expected Schema
//
// The store reads and writes the shared platform schema; migrations own
// the DDL:
//
//	users    (id, external_id UNIQUE, email, display_name, created_at, last_login_at)
//	sessions (id, token_hash UNIQUE, user_id, created_at, expires_at, revoked_at)
//
// # Related Packages
//
//   - pkg/middleware: resolves bearer sessions into request context
//   - pkg/communities: resolves the principal's membership facts
//   - pkg/audit: records sign-in and revocation events
package auth

// Package api provides the HTTP REST API server for the gather
// access-control core.
//
// # Overview
//
// This package exposes the platform's security-sensitive operations as
// RESTful endpoints: OIDC sign-in and session management, realtime
// capability token issuance, and rate limit checks for server actions
// running outside this process.
//
// # Architecture
//
// The API is built on gorilla/mux and organized into domain-specific
// handler groups:
//
//   - Authentication: OIDC login, logout, session introspection
//   - Realtime: short-lived capability tokens for pub/sub channels
//   - Limits: sliding-window rate limit checks for guarded actions
//   - Operations: health probes and Prometheus metrics
//
// # Key Types
//
// Server coordinates the handler groups over an injected set of
// subsystems:
//
//	server := api.NewServer(api.Dependencies{
//		Logger:   logger,
//		Sessions: sessions,
//		Users:    users,
//		Identity: authenticator,
//		Issuer:   issuer,
//		Limits:   registry,
//	})
//	http.ListenAndServe(":8080", server.Handler())
//
// Handler wraps the routes in the shared middleware stack (request ids,
// metrics, logging, panic recovery, CORS, body limits) plus OpenTelemetry
// tracing. ServeHTTP on the Server itself serves the bare routes, which
// keeps single-endpoint tests free of middleware noise.
//
// # Authentication Model
//
// Login exchanges an OIDC credential (ID token or authorization code)
// for an opaque bearer token backed by a database session row. Every
// other endpoint expects that bearer token in the Authorization header.
// Login itself is rate limited by client address, since no principal
// exists before the identity provider verifies one.
package api

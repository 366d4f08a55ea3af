// Package realtime computes per-user channel capabilities and signs them
// into short-lived tokens for the messaging provider.
//
// The provider enforces whatever the token says, so this package is the
// authorization boundary for every pub/sub channel on the platform. Three
// pieces make up the pipeline:
//
//   - typed channel constructors (NotificationChannel, PresenceChannel,
//     ForumChannel, DocumentWildcard, ChatChannel) that own the naming
//     scheme shared with downstream publishers
//   - BuildCapability, a pure function from resolved membership/RSVP facts
//     to an ordered grant list
//   - Issuer, which runs resolve → build → sign on every call and emits an
//     HS256 JWT with sub and client_id both set to the principal id
//
// Tokens expire after a short TTL and cannot be revoked sooner. Revoking a
// membership therefore does not kill an already-issued token; it stops the
// next one, and the TTL bounds the gap. Issuance never reuses a previous
// capability and fails closed whenever the facts cannot be resolved or the
// signing key is unusable.
package realtime

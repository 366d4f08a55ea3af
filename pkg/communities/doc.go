// Package communities resolves the membership and RSVP facts that drive
// realtime authorization.
//
// The resolver answers one question per principal: which communities do they
// belong to right now, which general chat channels that membership reaches,
// and which event-session channels they have RSVP'd "attending" to.
// The answer feeds the capability builder, so it must reflect committed
// state on every call. There is deliberately no cache and no read replica in
// this path: a revoked membership has to stop minting grants on the very
// next token issuance.
//
// Expected platform schema (owned and migrated by the surrounding
// application):
//
//	memberships(user_id, community_id)      one row per member
//	channels(id, community_id, event_id)    event_id NULL for general chat
//	event_rsvps(user_id, event_id, status)  only status 'attending' grants
//
// A resolver failure is a hard failure of whatever operation needed the
// facts. Granting a default or partial capability on error would turn a
// database blip into an authorization bypass.
package communities

package realtime

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/gatherhq/gather/pkg/communities"
)

// Operation is one thing a client may do on a channel.
type Operation string

const (
	OperationSubscribe Operation = "subscribe"
	OperationPublish   Operation = "publish"
	OperationPresence  Operation = "presence"
)

// Grant pairs one channel pattern with the operations permitted on it.
type Grant struct {
	Pattern    Channel
	Operations []Operation
}

// Capability is the ordered list of grants issued to one principal: the
// personal notification channel first, then community grants ascending by
// community id, then RSVP'd session channels. Deterministic order means two
// issuances over identical facts produce identical claims.
type Capability []Grant

// MarshalJSON renders the wire form {pattern: [operations...]}, writing
// grants in capability order.
func (c Capability) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, grant := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		pattern, err := json.Marshal(string(grant.Pattern))
		if err != nil {
			return nil, err
		}
		ops, err := json.Marshal(grant.Operations)
		if err != nil {
			return nil, err
		}
		buf.Write(pattern)
		buf.WriteByte(':')
		buf.Write(ops)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the wire form back. JSON objects carry no order, so
// grants are rebuilt sorted by pattern.
func (c *Capability) UnmarshalJSON(data []byte) error {
	var raw map[Channel][]Operation
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	grants := make(Capability, 0, len(raw))
	for pattern, ops := range raw {
		grants = append(grants, Grant{Pattern: pattern, Operations: ops})
	}
	sort.Slice(grants, func(i, j int) bool {
		return grants[i].Pattern < grants[j].Pattern
	})

	*c = grants
	return nil
}

// AsMap renders the capability as the claim object embedded in tokens.
func (c Capability) AsMap() map[string][]string {
	out := make(map[string][]string, len(c))
	for _, grant := range c {
		ops := make([]string, len(grant.Operations))
		for i, op := range grant.Operations {
			ops[i] = string(op)
		}
		out[string(grant.Pattern)] = ops
	}
	return out
}

// Grant looks up the operations for an exact pattern.
func (c Capability) Grant(pattern Channel) ([]Operation, bool) {
	for _, grant := range c {
		if grant.Pattern == pattern {
			return grant.Operations, true
		}
	}
	return nil, false
}

// BuildCapability computes the capability for one principal from resolved
// access facts. It is a pure function, no I/O and no clock, and it runs in
// full on every issuance; capabilities are never copied forward from an
// earlier token.
//
// Chat channels are granted subscribe+presence but never publish: chat
// content is published server-side after rate-limit checks, and a direct
// publish grant would let clients skip them.
func BuildCapability(principalID int64, access *communities.Access) Capability {
	capability := Capability{
		{Pattern: NotificationChannel(principalID), Operations: []Operation{OperationSubscribe}},
	}
	if access == nil {
		return capability
	}

	for _, communityID := range access.CommunityIDs {
		capability = append(capability,
			Grant{Pattern: PresenceChannel(communityID), Operations: []Operation{OperationSubscribe, OperationPresence}},
			Grant{Pattern: ForumChannel(communityID), Operations: []Operation{OperationSubscribe}},
			Grant{Pattern: DocumentWildcard(communityID), Operations: []Operation{OperationSubscribe, OperationPresence}},
		)
		for _, channelID := range access.GeneralChannels[communityID] {
			capability = append(capability, Grant{
				Pattern:    ChatChannel(communityID, channelID),
				Operations: []Operation{OperationSubscribe, OperationPresence},
			})
		}
	}

	// Session channels are granted one by one for the exact ids RSVP'd,
	// keyed off the RSVP facts alone.
	sessionCommunities := make([]int64, 0, len(access.SessionChannels))
	for communityID := range access.SessionChannels {
		sessionCommunities = append(sessionCommunities, communityID)
	}
	sort.Slice(sessionCommunities, func(i, j int) bool {
		return sessionCommunities[i] < sessionCommunities[j]
	})
	for _, communityID := range sessionCommunities {
		for _, channelID := range access.SessionChannels[communityID] {
			capability = append(capability, Grant{
				Pattern:    ChatChannel(communityID, channelID),
				Operations: []Operation{OperationSubscribe, OperationPresence},
			})
		}
	}

	return capability
}

package realtime

import "strconv"

// Channel is a concrete channel name or wildcard pattern in the platform's
// naming scheme. The scheme is shared with every downstream publisher, so
// channel strings are constructed only through the helpers below, never by
// ad-hoc concatenation.
type Channel string

// NotificationChannel is the principal's private notification feed.
func NotificationChannel(principalID int64) Channel {
	return Channel("user:" + formatID(principalID) + ":notifications")
}

// PresenceChannel carries member online state for one community.
func PresenceChannel(communityID int64) Channel {
	return Channel("tenant:" + formatID(communityID) + ":presence")
}

// ForumChannel carries forum activity for one community.
func ForumChannel(communityID int64) Channel {
	return Channel("tenant:" + formatID(communityID) + ":forum")
}

// DocumentWildcard covers every collaborative document channel in one
// community. Document collaboration is open to all members, so a member
// gets the whole namespace at once.
func DocumentWildcard(communityID int64) Channel {
	return Channel("tenant:" + formatID(communityID) + ":document:*")
}

// ChatChannel names one chat channel, general or event-session, in one
// community. Event-session channels are always granted through this exact
// form; a tenant-wide chat wildcard would leak sessions the principal never
// RSVP'd to.
func ChatChannel(communityID, channelID int64) Channel {
	return Channel("tenant:" + formatID(communityID) + ":chat:" + formatID(channelID))
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

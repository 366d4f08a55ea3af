package communities

// Access holds the relational facts authorization is computed from: which
// communities a principal belongs to and which channels those facts reach.
// It is a snapshot taken at resolve time and is never cached.
type Access struct {
	// CommunityIDs the principal is currently a member of, ascending.
	CommunityIDs []int64
	// GeneralChannels maps each member community to its general (non-event)
	// chat channel ids, ascending. Communities without general channels are
	// absent from the map.
	GeneralChannels map[int64][]int64
	// SessionChannels maps a community to the event-session channel ids the
	// principal holds an attending RSVP for, ascending. Any other RSVP
	// status, or no RSVP at all, keeps a channel out of the map.
	SessionChannels map[int64][]int64
}

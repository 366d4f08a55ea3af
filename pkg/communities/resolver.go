package communities

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const (
	membershipsQuery = `
		SELECT community_id
		FROM memberships
		WHERE user_id = $1
		ORDER BY community_id`

	generalChannelsQuery = `
		SELECT c.community_id, c.id
		FROM channels c
		JOIN memberships m ON m.community_id = c.community_id
		WHERE m.user_id = $1 AND c.event_id IS NULL
		ORDER BY c.community_id, c.id`

	sessionChannelsQuery = `
		SELECT c.community_id, c.id
		FROM channels c
		JOIN event_rsvps r ON r.event_id = c.event_id
		WHERE r.user_id = $1 AND r.status = 'attending'
		ORDER BY c.community_id, c.id`
)

// Resolver reads membership and RSVP facts from the platform database.
type Resolver struct {
	db *sql.DB
}

// NewResolver creates a resolver over the given database handle.
func NewResolver(db *sql.DB) *Resolver {
	return &Resolver{db: db}
}

// Resolve returns the current access facts for one principal. The three
// queries fan out concurrently and every call reads committed state; nothing
// sits between a membership revocation and the next resolve. Any query error
// is a hard failure, there is no partial result to fall back on.
func (r *Resolver) Resolve(ctx context.Context, principalID int64) (*Access, error) {
	var (
		communityIDs []int64
		general      map[int64][]int64
		sessions     map[int64][]int64
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ids, err := r.memberCommunityIDs(gctx, principalID)
		if err != nil {
			return fmt.Errorf("failed to resolve memberships: %w", err)
		}
		communityIDs = ids
		return nil
	})

	g.Go(func() error {
		channels, err := r.channelsByCommunity(gctx, generalChannelsQuery, principalID)
		if err != nil {
			return fmt.Errorf("failed to resolve general channels: %w", err)
		}
		general = channels
		return nil
	})

	g.Go(func() error {
		channels, err := r.channelsByCommunity(gctx, sessionChannelsQuery, principalID)
		if err != nil {
			return fmt.Errorf("failed to resolve session channels: %w", err)
		}
		sessions = channels
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Access{
		CommunityIDs:    communityIDs,
		GeneralChannels: general,
		SessionChannels: sessions,
	}, nil
}

func (r *Resolver) memberCommunityIDs(ctx context.Context, principalID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, membershipsQuery, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// channelsByCommunity groups channel ids by community. The ORDER BY in the
// query keeps both the map iteration inputs and the per-community slices
// deterministic.
func (r *Resolver) channelsByCommunity(ctx context.Context, query string, principalID int64) (map[int64][]int64, error) {
	rows, err := r.db.QueryContext(ctx, query, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	channels := make(map[int64][]int64)
	for rows.Next() {
		var communityID, channelID int64
		if err := rows.Scan(&communityID, &channelID); err != nil {
			return nil, err
		}
		channels[communityID] = append(channels[communityID], channelID)
	}
	return channels, rows.Err()
}

package internal

import (
	"context"

	"socialwire/internal/presence"
	"socialwire/internal/storage"
)

// FollowGraph is the slice of the relational store the resolver reads.
type FollowGraph interface {
	Following(ctx context.Context, userID int64) ([]int64, error)
	Followers(ctx context.Context, userID int64) ([]int64, error)
}

// ProfileDirectory batch-fetches public profiles.
type ProfileDirectory interface {
	Profiles(ctx context.Context, ids []int64) ([]storage.Profile, error)
}

// MutualResolver computes a user's mutual followers (follows and is followed
// back) and splits them into online and offline using the presence registry.
// No caching anywhere: presence is volatile and a stale answer is worse than
// the extra reads.
type MutualResolver struct {
	graph    FollowGraph
	profiles ProfileDirectory
	registry *presence.Registry
}

func NewMutualResolver(graph FollowGraph, profiles ProfileDirectory, registry *presence.Registry) *MutualResolver {
	return &MutualResolver{graph: graph, profiles: profiles, registry: registry}
}

// Resolve returns the online and offline mutual followers of userID. The user
// itself is never included and no ID appears twice. When the intersection is
// empty we return early without touching the profile store at all.
func (r *MutualResolver) Resolve(ctx context.Context, userID int64) (online, offline []EnrichedUser, err error) {
	followingIDs, err := r.graph.Following(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	followerIDs, err := r.graph.Followers(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	followerSet := make(map[int64]bool, len(followerIDs))
	for _, id := range followerIDs {
		followerSet[id] = true
	}
	seen := make(map[int64]bool, len(followingIDs))
	mutualIDs := make([]int64, 0, len(followingIDs))
	for _, id := range followingIDs {
		if id == userID || seen[id] || !followerSet[id] {
			continue
		}
		seen[id] = true
		mutualIDs = append(mutualIDs, id)
	}
	if len(mutualIDs) == 0 {
		return nil, nil, nil
	}

	profiles, err := r.profiles.Profiles(ctx, mutualIDs)
	if err != nil {
		return nil, nil, err
	}
	profileByID := make(map[int64]storage.Profile, len(profiles))
	for _, profile := range profiles {
		profileByID[profile.ID] = profile
	}

	for _, id := range mutualIDs {
		profile, ok := profileByID[id]
		if !ok {
			// follow edge pointing at a deleted user; drop it quietly
			continue
		}
		entry, err := r.registry.Lookup(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		enriched := EnrichedUser{
			ID:       profile.ID,
			Username: profile.Username,
			Name:     profile.Name,
			Avatar:   profile.Avatar,
			LastSeen: profile.LastSeen,
		}
		if entry != nil {
			enriched.ConnID = entry.ConnID
			online = append(online, enriched)
		} else {
			offline = append(offline, enriched)
		}
	}
	return online, offline, nil
}

package internal

import (
	"context"
	"testing"

	"socialwire/internal/presence"
	"socialwire/internal/storage"
)

type fakeGraph struct {
	following []int64
	followers []int64
}

func (g *fakeGraph) Following(context.Context, int64) ([]int64, error) { return g.following, nil }
func (g *fakeGraph) Followers(context.Context, int64) ([]int64, error) { return g.followers, nil }

type fakeDirectory struct {
	profiles map[int64]storage.Profile
	calls    int
}

func (d *fakeDirectory) Profiles(_ context.Context, ids []int64) ([]storage.Profile, error) {
	d.calls++
	var out []storage.Profile
	for _, id := range ids {
		if profile, ok := d.profiles[id]; ok {
			out = append(out, profile)
		}
	}
	return out, nil
}

func newTestResolver(graph *fakeGraph, directory *fakeDirectory) (*MutualResolver, *presence.Registry) {
	registry := presence.NewRegistry(presence.NewMemoryStore(), "test:")
	return NewMutualResolver(graph, directory, registry), registry
}

func TestResolveIntersection(t *testing.T) {
	graph := &fakeGraph{
		following: []int64{2, 3, 4},
		followers: []int64{3, 4, 5},
	}
	directory := &fakeDirectory{profiles: map[int64]storage.Profile{
		3: {ID: 3, Username: "carol", Name: "Carol"},
		4: {ID: 4, Username: "dave", Name: "Dave"},
	}}
	resolver, registry := newTestResolver(graph, directory)
	ctx := context.Background()

	if _, err := registry.Register(ctx, 3, "conn-3", presence.Snapshot{Name: "Carol"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	online, offline, err := resolver.Resolve(ctx, 1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(online) != 1 || online[0].ID != 3 {
		t.Fatalf("unexpected online set: %+v", online)
	}
	if online[0].ConnID != "conn-3" {
		t.Fatalf("online mutual should carry the connection handle, got %q", online[0].ConnID)
	}
	if len(offline) != 1 || offline[0].ID != 4 {
		t.Fatalf("unexpected offline set: %+v", offline)
	}
}

func TestResolveExcludesSelfAndDuplicates(t *testing.T) {
	graph := &fakeGraph{
		following: []int64{1, 2, 2, 3},
		followers: []int64{1, 2, 2, 3},
	}
	directory := &fakeDirectory{profiles: map[int64]storage.Profile{
		2: {ID: 2, Username: "bob"},
		3: {ID: 3, Username: "carol"},
	}}
	resolver, _ := newTestResolver(graph, directory)

	online, offline, err := resolver.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	total := len(online) + len(offline)
	if total != 2 {
		t.Fatalf("expected 2 mutuals, got online=%+v offline=%+v", online, offline)
	}
	seen := map[int64]bool{}
	for _, user := range append(append([]EnrichedUser{}, online...), offline...) {
		if user.ID == 1 {
			t.Fatalf("resolver included the user itself")
		}
		if seen[user.ID] {
			t.Fatalf("user %d appears twice", user.ID)
		}
		seen[user.ID] = true
	}
}

func TestResolveEmptyIntersectionSkipsProfiles(t *testing.T) {
	graph := &fakeGraph{
		following: []int64{2, 3},
		followers: []int64{4, 5},
	}
	directory := &fakeDirectory{profiles: map[int64]storage.Profile{}}
	resolver, _ := newTestResolver(graph, directory)

	online, offline, err := resolver.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(online) != 0 || len(offline) != 0 {
		t.Fatalf("expected empty result, got online=%+v offline=%+v", online, offline)
	}
	if directory.calls != 0 {
		t.Fatalf("empty intersection must not hit the profile store, got %d calls", directory.calls)
	}
}

func TestResolveDropsMissingProfiles(t *testing.T) {
	graph := &fakeGraph{
		following: []int64{2, 3},
		followers: []int64{2, 3},
	}
	// user 3 was deleted but the follow edges survived
	directory := &fakeDirectory{profiles: map[int64]storage.Profile{
		2: {ID: 2, Username: "bob"},
	}}
	resolver, _ := newTestResolver(graph, directory)

	online, offline, err := resolver.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(online) != 0 {
		t.Fatalf("unexpected online set: %+v", online)
	}
	if len(offline) != 1 || offline[0].ID != 2 {
		t.Fatalf("expected only the surviving mutual, got %+v", offline)
	}
}

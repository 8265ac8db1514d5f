package storage

import (
	"context"
	"testing"
	"time"
)

func TestUserLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	id, err := store.CreateUser(ctx, "alice", "Alice", "a.png", []byte("hash"))
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected id > 0")
	}
	if _, err := store.CreateUser(ctx, "alice", "Alice Again", "", []byte("hash2")); err != ErrUserExists {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	user, err := store.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user == nil || user.Username != "alice" || user.Name != "Alice" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.LastSeen != nil {
		t.Fatalf("fresh user should have no last seen, got %v", user.LastSeen)
	}

	byID, err := store.GetUserByID(ctx, id)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if byID == nil || byID.ID != id {
		t.Fatalf("unexpected user by id: %+v", byID)
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	userID, err := store.CreateUser(ctx, "bob", "Bob", "", []byte("hash"))
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	exp := time.Now().Add(time.Hour)
	if err := store.CreateSession(ctx, userID, "token123", exp); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	session, err := store.GetSession(ctx, "token123")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session == nil || session.UserID != userID {
		t.Fatalf("unexpected session: %+v", session)
	}
	if err := store.DeleteSession(ctx, "token123"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	session, err = store.GetSession(ctx, "token123")
	if err != nil {
		t.Fatalf("GetSession after delete: %v", err)
	}
	if session != nil {
		t.Fatalf("expected nil session after delete")
	}
}

func TestFollowGraph(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	aliceID, err := store.CreateUser(ctx, "alice", "Alice", "", []byte("hash1"))
	if err != nil {
		t.Fatalf("CreateUser alice: %v", err)
	}
	bobID, err := store.CreateUser(ctx, "bob", "Bob", "", []byte("hash2"))
	if err != nil {
		t.Fatalf("CreateUser bob: %v", err)
	}
	carolID, err := store.CreateUser(ctx, "carol", "Carol", "", []byte("hash3"))
	if err != nil {
		t.Fatalf("CreateUser carol: %v", err)
	}

	if err := store.Follow(ctx, aliceID, bobID); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if err := store.Follow(ctx, aliceID, bobID); err != nil {
		t.Fatalf("Follow idempotent: %v", err)
	}
	if err := store.Follow(ctx, aliceID, aliceID); err == nil {
		t.Fatalf("expected self-follow to fail")
	}
	if err := store.Follow(ctx, bobID, aliceID); err != nil {
		t.Fatalf("Follow back: %v", err)
	}
	if err := store.Follow(ctx, aliceID, carolID); err != nil {
		t.Fatalf("Follow carol: %v", err)
	}

	following, err := store.Following(ctx, aliceID)
	if err != nil {
		t.Fatalf("Following: %v", err)
	}
	if len(following) != 2 {
		t.Fatalf("expected alice to follow 2 users, got %v", following)
	}
	followers, err := store.Followers(ctx, aliceID)
	if err != nil {
		t.Fatalf("Followers: %v", err)
	}
	if len(followers) != 1 || followers[0] != bobID {
		t.Fatalf("unexpected followers: %v", followers)
	}

	if err := store.Unfollow(ctx, aliceID, carolID); err != nil {
		t.Fatalf("Unfollow: %v", err)
	}
	following, err = store.Following(ctx, aliceID)
	if err != nil {
		t.Fatalf("Following after unfollow: %v", err)
	}
	if len(following) != 1 || following[0] != bobID {
		t.Fatalf("unexpected following after unfollow: %v", following)
	}
}

func TestProfilesBatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	aliceID, _ := store.CreateUser(ctx, "alice", "Alice", "a.png", []byte("h1"))
	bobID, _ := store.CreateUser(ctx, "bob", "Bob", "", []byte("h2"))

	profiles, err := store.Profiles(ctx, []int64{aliceID, bobID, 9999})
	if err != nil {
		t.Fatalf("Profiles: %v", err)
	}
	// the unknown id is simply absent, not an error
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	byID := make(map[int64]Profile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}
	if byID[aliceID].Avatar != "a.png" {
		t.Fatalf("unexpected alice profile: %+v", byID[aliceID])
	}

	empty, err := store.Profiles(ctx, nil)
	if err != nil {
		t.Fatalf("Profiles empty: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no profiles for empty input, got %v", empty)
	}
}

func TestUpdateLastSeen(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	aliceID, err := store.CreateUser(ctx, "alice", "Alice", "", []byte("h1"))
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	stamp := time.Now().Truncate(time.Second)
	profile, err := store.UpdateLastSeen(ctx, aliceID, stamp)
	if err != nil {
		t.Fatalf("UpdateLastSeen: %v", err)
	}
	if profile == nil || profile.LastSeen == nil {
		t.Fatalf("expected profile with last seen, got %+v", profile)
	}
	if !profile.LastSeen.Equal(stamp) {
		t.Fatalf("last seen mismatch: want %v got %v", stamp, profile.LastSeen)
	}

	if _, err := store.UpdateLastSeen(ctx, 9999, stamp); err != ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	aliceID, err := store.CreateUser(ctx, "alice", "Alice", "", []byte("old"))
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := store.UpdatePassword(ctx, aliceID, []byte("new")); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	user, err := store.GetUserByID(ctx, aliceID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if string(user.PasswordHash) != "new" {
		t.Fatalf("expected updated hash, got %s", string(user.PasswordHash))
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := "sqlite://file:" + t.Name() + "?mode=memory&cache=shared"
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

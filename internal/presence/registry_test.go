package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// flakyStore fails a configurable number of HSet calls, then recovers.
type flakyStore struct {
	*MemoryStore
	failHSets int
}

func (s *flakyStore) HSet(ctx context.Context, hash, field, value string) error {
	if s.failHSets > 0 {
		s.failHSets--
		return errors.New("connection reset")
	}
	return s.MemoryStore.HSet(ctx, hash, field, value)
}

func TestRegisterDeregisterRefcount(t *testing.T) {
	registry := NewRegistry(NewMemoryStore(), "test:")
	ctx := context.Background()

	first, err := registry.Register(ctx, 1, "conn-a", Snapshot{Name: "Alice"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !first {
		t.Fatalf("expected first register to report 0→1")
	}

	second, err := registry.Register(ctx, 1, "conn-b", Snapshot{Name: "Alice"})
	if err != nil {
		t.Fatalf("Register second: %v", err)
	}
	if second {
		t.Fatalf("second register must not report first connection")
	}

	offline, err := registry.Deregister(ctx, 1)
	if err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if offline {
		t.Fatalf("one of two connections gone should not mean offline")
	}
	online, err := registry.IsOnline(ctx, 1)
	if err != nil {
		t.Fatalf("IsOnline: %v", err)
	}
	if !online {
		t.Fatalf("user should still be online with one connection left")
	}

	offline, err = registry.Deregister(ctx, 1)
	if err != nil {
		t.Fatalf("Deregister last: %v", err)
	}
	if !offline {
		t.Fatalf("last deregister should report offline")
	}
	entry, err := registry.Lookup(ctx, 1)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected no entry after last deregister, got %+v", entry)
	}
}

func TestNewestConnectionWinsAddressability(t *testing.T) {
	registry := NewRegistry(NewMemoryStore(), "test:")
	ctx := context.Background()

	if _, err := registry.Register(ctx, 7, "conn-old", Snapshot{Name: "Bob"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := registry.Register(ctx, 7, "conn-new", Snapshot{Name: "Bob"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	entry, err := registry.Lookup(ctx, 7)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry == nil || entry.ConnID != "conn-new" {
		t.Fatalf("expected newest connection handle, got %+v", entry)
	}
}

func TestDeregisterWithoutRegister(t *testing.T) {
	store := NewMemoryStore()
	registry := NewRegistry(store, "test:")
	ctx := context.Background()

	// a decrement with no matching increment still tears state down
	offline, err := registry.Deregister(ctx, 3)
	if err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if !offline {
		t.Fatalf("negative counter should be corrected to offline")
	}

	// and the next register starts clean at 0→1
	first, err := registry.Register(ctx, 3, "conn-x", Snapshot{})
	if err != nil {
		t.Fatalf("Register after correction: %v", err)
	}
	if !first {
		t.Fatalf("register after teardown should be a fresh first connection")
	}
}

func TestConcurrentRegistersSingleFirst(t *testing.T) {
	registry := NewRegistry(NewMemoryStore(), "test:")
	ctx := context.Background()

	const parallel = 32
	var wg sync.WaitGroup
	firsts := make(chan bool, parallel)
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			first, err := registry.Register(ctx, 42, fmt.Sprintf("conn-%d", n), Snapshot{})
			if err != nil {
				t.Errorf("Register: %v", err)
				return
			}
			firsts <- first
		}(i)
	}
	wg.Wait()
	close(firsts)

	count := 0
	for first := range firsts {
		if first {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("exactly one register should observe 0→1, got %d", count)
	}

	for i := 0; i < parallel-1; i++ {
		offline, err := registry.Deregister(ctx, 42)
		if err != nil {
			t.Fatalf("Deregister %d: %v", i, err)
		}
		if offline {
			t.Fatalf("went offline too early at deregister %d", i)
		}
	}
	offline, err := registry.Deregister(ctx, 42)
	if err != nil {
		t.Fatalf("final Deregister: %v", err)
	}
	if !offline {
		t.Fatalf("final deregister should report offline")
	}
}

func TestFailedRegisterLeavesNoState(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), failHSets: 1}
	registry := NewRegistry(store, "test:")
	ctx := context.Background()

	if _, err := registry.Register(ctx, 9, "conn-a", Snapshot{Name: "Erin"}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	online, err := registry.IsOnline(ctx, 9)
	if err != nil {
		t.Fatalf("IsOnline: %v", err)
	}
	if online {
		t.Fatalf("failed register must not leave an online entry")
	}

	// the store recovered; the next connection is a genuine 0→1 so the
	// user's mutuals get their login notice
	first, err := registry.Register(ctx, 9, "conn-b", Snapshot{Name: "Erin"})
	if err != nil {
		t.Fatalf("Register after recovery: %v", err)
	}
	if !first {
		t.Fatalf("register after a failed one should still be the first connection")
	}

	offline, err := registry.Deregister(ctx, 9)
	if err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if !offline {
		t.Fatalf("single connection gone should mean offline, counter is skewed")
	}
}

func TestFailedRegisterKeepsExistingDeviceOnline(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	registry := NewRegistry(store, "test:")
	ctx := context.Background()

	if _, err := registry.Register(ctx, 4, "conn-a", Snapshot{Name: "Dana"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// a second device fails mid-register; the first device's state survives
	store.failHSets = 1
	if _, err := registry.Register(ctx, 4, "conn-b", Snapshot{Name: "Dana"}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	entry, err := registry.Lookup(ctx, 4)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry == nil || entry.ConnID != "conn-a" {
		t.Fatalf("existing entry should survive the failed register, got %+v", entry)
	}

	offline, err := registry.Deregister(ctx, 4)
	if err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if !offline {
		t.Fatalf("only one live connection remained, deregister should mean offline")
	}
}

func TestSincePreservedAcrossDevices(t *testing.T) {
	registry := NewRegistry(NewMemoryStore(), "test:")
	ctx := context.Background()

	if _, err := registry.Register(ctx, 6, "conn-a", Snapshot{Name: "Frank"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	firstEntry, err := registry.Lookup(ctx, 6)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	if _, err := registry.Register(ctx, 6, "conn-b", Snapshot{Name: "Frank"}); err != nil {
		t.Fatalf("Register second device: %v", err)
	}
	secondEntry, err := registry.Lookup(ctx, 6)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if secondEntry.ConnID != "conn-b" {
		t.Fatalf("newest connection should own the handle, got %q", secondEntry.ConnID)
	}
	if !secondEntry.Since.Equal(firstEntry.Since) {
		t.Fatalf("since should keep the 0→1 time: first %v, after second device %v",
			firstEntry.Since, secondEntry.Since)
	}
}

func TestResetWipesEverything(t *testing.T) {
	store := NewMemoryStore()
	registry := NewRegistry(store, "test:")
	ctx := context.Background()

	for user := int64(1); user <= 3; user++ {
		if _, err := registry.Register(ctx, user, fmt.Sprintf("conn-%d", user), Snapshot{}); err != nil {
			t.Fatalf("Register user %d: %v", user, err)
		}
	}

	if err := registry.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	for user := int64(1); user <= 3; user++ {
		online, err := registry.IsOnline(ctx, user)
		if err != nil {
			t.Fatalf("IsOnline %d: %v", user, err)
		}
		if online {
			t.Fatalf("user %d still online after reset", user)
		}
	}

	// counters went too, so a register after reset is a first connection again
	first, err := registry.Register(ctx, 2, "conn-fresh", Snapshot{})
	if err != nil {
		t.Fatalf("Register after reset: %v", err)
	}
	if !first {
		t.Fatalf("register after reset should be a first connection")
	}
}

func TestLookupSnapshotFields(t *testing.T) {
	registry := NewRegistry(NewMemoryStore(), "test:")
	ctx := context.Background()

	if _, err := registry.Register(ctx, 5, "conn-a", Snapshot{Name: "Carol", Avatar: "c.png"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	entry, err := registry.Lookup(ctx, 5)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry == nil {
		t.Fatalf("expected entry")
	}
	if entry.UserID != 5 || entry.Name != "Carol" || entry.Avatar != "c.png" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Since.IsZero() {
		t.Fatalf("entry should carry a since timestamp")
	}
}

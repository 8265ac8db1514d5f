package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrStoreUnavailable wraps any fault talking to the shared store. Callers
// treat it as fatal for the current connection action only, never for the
// process.
var ErrStoreUnavailable = errors.New("presence store unavailable")

// Snapshot carries the denormalized profile fields captured at connect time
// so the online table can be served without a profile lookup.
type Snapshot struct {
	Name   string
	Avatar string
}

// Entry is the authoritative "user is online" record. ConnID is the handle
// events should be routed to; with multiple devices the most recently
// registered connection wins addressability.
type Entry struct {
	UserID int64     `json:"user_id"`
	ConnID string    `json:"conn_id"`
	Name   string    `json:"name"`
	Avatar string    `json:"avatar"`
	Since  time.Time `json:"since"`
}

// Store is the narrow slice of an atomic key-value service the registry
// needs: per-key counters, one hash table, and prefix cleanup for the
// startup reset. Implemented by redis and by an in-process fallback.
type Store interface {
	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
	HSet(ctx context.Context, hash, field, value string) error
	HGet(ctx context.Context, hash, field string) (string, bool, error)
	HDel(ctx context.Context, hash, field string) error
	Del(ctx context.Context, keys ...string) error
	KeysByPrefix(ctx context.Context, prefix string) ([]string, error)
}

// Registry maintains the per-user connection refcount and the online table.
// All state lives in the Store so every server process sees the same view.
type Registry struct {
	store     Store
	namespace string
}

func NewRegistry(store Store, namespace string) *Registry {
	if namespace == "" {
		namespace = "socialwire:"
	}
	return &Registry{store: store, namespace: namespace}
}

func (r *Registry) counterKey(userID int64) string {
	return r.namespace + "conn:" + strconv.FormatInt(userID, 10)
}

func (r *Registry) onlineHash() string {
	return r.namespace + "online"
}

func field(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// Register counts one more live connection for the user and returns true when
// this was the 0→1 transition. The online entry is written on every call so
// the newest connection always wins addressability; Since keeps the time the
// user first came online, not the time of the latest device.
func (r *Registry) Register(ctx context.Context, userID int64, connID string, snap Snapshot) (bool, error) {
	count, err := r.store.Incr(ctx, r.counterKey(userID))
	if err != nil {
		return false, fmt.Errorf("%w: incr: %v", ErrStoreUnavailable, err)
	}
	entry := Entry{
		UserID: userID,
		ConnID: connID,
		Name:   snap.Name,
		Avatar: snap.Avatar,
		Since:  time.Now().UTC(),
	}
	if count > 1 {
		// carry the 0→1 timestamp over from the existing entry
		if raw, ok, err := r.store.HGet(ctx, r.onlineHash(), field(userID)); err == nil && ok {
			var previous Entry
			if json.Unmarshal([]byte(raw), &previous) == nil && !previous.Since.IsZero() {
				entry.Since = previous.Since
			}
		}
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		r.rollbackRegister(ctx, userID)
		return false, err
	}
	if err := r.store.HSet(ctx, r.onlineHash(), field(userID), string(encoded)); err != nil {
		r.rollbackRegister(ctx, userID)
		return false, fmt.Errorf("%w: hset: %v", ErrStoreUnavailable, err)
	}
	return count == 1, nil
}

// rollbackRegister undoes the increment after a failed entry write so a
// rejected connection leaves no partial presence state behind. If the
// compensating decrement itself fails there is nothing left to do here; the
// startup reset bounds the drift.
func (r *Registry) rollbackRegister(ctx context.Context, userID int64) {
	count, err := r.store.Decr(ctx, r.counterKey(userID))
	if err != nil || count > 0 {
		return
	}
	_ = r.store.HDel(ctx, r.onlineHash(), field(userID))
	_ = r.store.Del(ctx, r.counterKey(userID))
}

// Deregister counts one connection gone and returns true when the user is now
// fully offline, in which case the entry and the counter are both removed.
// A negative counter means a deregister without a matching register; we
// correct it by tearing the keys down as if it hit zero.
func (r *Registry) Deregister(ctx context.Context, userID int64) (bool, error) {
	count, err := r.store.Decr(ctx, r.counterKey(userID))
	if err != nil {
		return false, fmt.Errorf("%w: decr: %v", ErrStoreUnavailable, err)
	}
	if count > 0 {
		return false, nil
	}
	if err := r.store.HDel(ctx, r.onlineHash(), field(userID)); err != nil {
		return false, fmt.Errorf("%w: hdel: %v", ErrStoreUnavailable, err)
	}
	if err := r.store.Del(ctx, r.counterKey(userID)); err != nil {
		return false, fmt.Errorf("%w: del: %v", ErrStoreUnavailable, err)
	}
	return true, nil
}

// Lookup returns the online entry for a user, or nil when offline.
func (r *Registry) Lookup(ctx context.Context, userID int64) (*Entry, error) {
	raw, ok, err := r.store.HGet(ctx, r.onlineHash(), field(userID))
	if err != nil {
		return nil, fmt.Errorf("%w: hget: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, nil
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("decode presence entry for user %d: %w", userID, err)
	}
	return &entry, nil
}

// IsOnline reports whether an online entry exists for the user.
func (r *Registry) IsOnline(ctx context.Context, userID int64) (bool, error) {
	entry, err := r.Lookup(ctx, userID)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

// Reset wipes the online table and every connection counter. Run once at
// process startup: no live socket survives a restart, so whatever the store
// holds is stale.
func (r *Registry) Reset(ctx context.Context) error {
	if err := r.store.Del(ctx, r.onlineHash()); err != nil {
		return fmt.Errorf("%w: del online table: %v", ErrStoreUnavailable, err)
	}
	keys, err := r.store.KeysByPrefix(ctx, r.namespace+"conn:")
	if err != nil {
		return fmt.Errorf("%w: scan counters: %v", ErrStoreUnavailable, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("%w: del counters: %v", ErrStoreUnavailable, err)
	}
	return nil
}

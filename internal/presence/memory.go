package presence

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store used when no redis URL is configured
// (single server deployments) and by the tests. Same counter/hash semantics,
// one mutex instead of a network hop.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]int64
	hashes   map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]int64),
		hashes:   make(map[string]map[string]string),
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

func (s *MemoryStore) Decr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]--
	return s.counters[key], nil
}

func (s *MemoryStore) HSet(_ context.Context, hash, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hashes[hash] == nil {
		s.hashes[hash] = make(map[string]string)
	}
	s.hashes[hash][field] = value
	return nil
}

func (s *MemoryStore) HGet(_ context.Context, hash, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.hashes[hash][field]
	return value, ok, nil
}

func (s *MemoryStore) HDel(_ context.Context, hash, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hashes[hash], field)
	return nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.counters, key)
		delete(s.hashes, key)
	}
	return nil
}

func (s *MemoryStore) KeysByPrefix(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.counters {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

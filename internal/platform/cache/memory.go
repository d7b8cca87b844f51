// Package cache provides the process-local and Redis-backed stores shared
// by the security pipeline components.
package cache

import (
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

const shardCount = 32

type entry struct {
	value     any
	expiresAt time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// Memory is a sharded in-memory TTL store. Expiry is lazy on read; Sweep
// removes stale entries in bulk and is meant to run from the maintenance
// worker. Each pipeline component owns its own Memory instance; caches are
// never shared by reference.
type Memory struct {
	shards [shardCount]*shard
}

// NewMemory constructs an empty store.
func NewMemory() *Memory {
	m := &Memory{}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[string]entry)}
	}
	return m
}

func (m *Memory) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%shardCount]
}

// Set stores value under key for ttl. A non-positive ttl stores forever.
func (m *Memory) Set(key string, value any, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	s := m.shardFor(key)
	s.mu.Lock()
	s.entries[key] = entry{value: value, expiresAt: exp}
	s.mu.Unlock()
}

// Get returns the value for key if present and unexpired.
func (m *Memory) Get(key string) (any, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Delete removes key.
func (m *Memory) Delete(key string) {
	s := m.shardFor(key)
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// DeleteByPrefix removes every entry whose key starts with prefix and
// returns how many were removed. Used for per-user cache invalidation.
func (m *Memory) DeleteByPrefix(prefix string) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for k := range s.entries {
			if strings.HasPrefix(k, prefix) {
				delete(s.entries, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Sweep removes all expired entries and returns how many were removed.
func (m *Memory) Sweep() int {
	now := time.Now()
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for k, e := range s.entries {
			if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
				delete(s.entries, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of live entries, counting unexpired ones only.
func (m *Memory) Len() int {
	now := time.Now()
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			if e.expiresAt.IsZero() || now.Before(e.expiresAt) {
				n++
			}
		}
		s.mu.RUnlock()
	}
	return n
}

package cache

import (
	"sync"
	"time"
)

type memEntry[V any] struct {
	value      V
	storedAt   time.Time
	expiresAt  time.Time
	lastAccess time.Time
}

// memoryTier is a bounded TTL map evicting the least recently used entry
// once full.
type memoryTier[V any] struct {
	mu        sync.Mutex
	entries   map[string]*memEntry[V]
	capacity  int
	evictions uint64
}

func newMemoryTier[V any](capacity int) *memoryTier[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &memoryTier[V]{
		entries:  make(map[string]*memEntry[V]),
		capacity: capacity,
	}
}

func (m *memoryTier[V]) get(key string, now time.Time) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero V
	e, ok := m.entries[key]
	if !ok {
		return zero, false
	}
	if now.After(e.expiresAt) {
		delete(m.entries, key)
		return zero, false
	}
	e.lastAccess = now
	return e.value, true
}

func (m *memoryTier[V]) put(key string, value V, storedAt, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok && len(m.entries) >= m.capacity {
		m.evictOldest()
	}
	m.entries[key] = &memEntry[V]{
		value:      value,
		storedAt:   storedAt,
		expiresAt:  expiresAt,
		lastAccess: time.Now(),
	}
}

// evictOldest removes the least recently used entry. Caller holds the lock.
func (m *memoryTier[V]) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, e := range m.entries {
		if first || e.lastAccess.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.lastAccess
			first = false
		}
	}
	if !first {
		delete(m.entries, oldestKey)
		m.evictions++
	}
}

func (m *memoryTier[V]) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

func (m *memoryTier[V]) purge(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

func (m *memoryTier[V]) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *memoryTier[V]) oldestAge(now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest time.Duration
	for _, e := range m.entries {
		if age := now.Sub(e.storedAt); age > oldest {
			oldest = age
		}
	}
	return oldest
}

func (m *memoryTier[V]) evictionCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictions
}

package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

var _ Cache = (*Memory)(nil)

type entry struct {
	value   []byte
	expires time.Time // zero means no expiry
}

// sweepInterval is the least time between two full scans for expired
// entries.
const sweepInterval = time.Minute

// Memory is a mutex-guarded map. An expired entry is dropped when a Get finds
// it, and Set scans the whole map for expired entries at most once per
// sweepInterval, so the cost of a write does not grow with the number of
// keys the listing cache has collected.
type Memory struct {
	mu        sync.Mutex
	entries   map[string]entry
	lastSweep time.Time
	now       func() time.Time
}

// NewMemory returns an empty cache using the wall clock.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

// Get drops the entry it finds expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, ErrMiss
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastSweep) >= sweepInterval {
		m.sweep(now)
	}

	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	m.entries[key] = e
	return nil
}

// sweep drops every expired entry. Callers hold m.mu.
func (m *Memory) sweep(now time.Time) {
	for k, e := range m.entries {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
	m.lastSweep = now
}

// Delete removes key if present.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// DeletePrefix removes every key starting with prefix.
func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}

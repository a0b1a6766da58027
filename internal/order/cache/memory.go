package cache

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/orderfeed/internal/clock"
)

type memoryKV struct {
	clock clock.Clock
	mu    sync.RWMutex
	items map[string]memoryEntry
}

type memoryEntry struct {
	expiresAt time.Time
	value     []byte
}

// NewMemoryKV keeps entries in process memory; entries expire after their
// ttl. Used when no persistent backend is configured and in tests.
func NewMemoryKV(clk clock.Clock) KV {
	if clk == nil {
		clk = clock.System()
	}
	return &memoryKV{
		clock: clk,
		items: make(map[string]memoryEntry),
	}
}

func (m *memoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	entry, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && m.clock.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = m.clock.Now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *memoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

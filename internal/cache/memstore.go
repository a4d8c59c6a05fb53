package cache

import (
	"context"
	"sync"
	"time"

	"github.com/dusk-indust/csngraph/internal/graph"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// MemStore implements Store with Go maps. Thread-safe via sync.RWMutex:
// many readers, single writer.
type MemStore struct {
	mu      sync.RWMutex
	entries map[Key]*Entry
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[Key]*Entry)}
}

// Get returns the entry for key, or nil on a miss.
func (m *MemStore) Get(_ context.Context, key Key) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if err := e.Graph.Validate(); err != nil {
		return nil, graph.Wrap(graph.KindCacheCorrupted, err, "entry %s", key)
	}
	out := *e
	return &out, nil
}

// Put creates or replaces the entry for key.
func (m *MemStore) Put(_ context.Context, key Key, g *graph.Graph, inputsDigest string, dependsOn []Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &Entry{
		Key:          key,
		Graph:        g,
		InputsDigest: inputsDigest,
		BuiltAt:      time.Now().UTC(),
		DependsOn:    append([]Key(nil), dependsOn...),
	}
	return nil
}

// Invalidate removes key and cascades through dependents transitively.
func (m *MemStore) Invalidate(_ context.Context, key Key) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalidateLocked([]Key{key}), nil
}

// InvalidateByScope removes all entries of scope, with cascades.
func (m *MemStore) InvalidateByScope(_ context.Context, scope string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var roots []Key
	for k := range m.entries {
		if k.Scope == scope {
			roots = append(roots, k)
		}
	}
	return m.invalidateLocked(roots), nil
}

// invalidateLocked removes the given keys and every transitive dependent.
func (m *MemStore) invalidateLocked(roots []Key) int {
	removed := 0
	queue := roots
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		if _, ok := m.entries[key]; !ok {
			continue
		}
		delete(m.entries, key)
		removed++
		for k, e := range m.entries {
			for _, dep := range e.DependsOn {
				if dep == key {
					queue = append(queue, k)
					break
				}
			}
		}
	}
	return removed
}

// ClearAll removes every entry.
func (m *MemStore) ClearAll(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.entries)
	m.entries = make(map[Key]*Entry)
	return n, nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error { return nil }

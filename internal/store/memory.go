package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nvandessel/protomech/internal/circuit"
)

type memoryEntry struct {
	data    []byte
	savedAt time.Time
	nodes   int
	edges   int
}

// InMemoryStore implements SnapshotStore without touching disk. Snapshots
// are held in encoded form so callers never share slices with the store.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Save stores s under name.
func (m *InMemoryStore) Save(ctx context.Context, name string, s circuit.Snapshot) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := circuit.EncodeSnapshot(s)
	if err != nil {
		return err
	}
	nodes, edges := counts(s)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[name] = memoryEntry{data: data, savedAt: m.now(), nodes: nodes, edges: edges}
	return nil
}

// Load returns the snapshot stored under name.
func (m *InMemoryStore) Load(ctx context.Context, name string) (circuit.Snapshot, error) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return circuit.Snapshot{}, ErrNotFound
	}
	return circuit.DecodeSnapshot(e.data)
}

// List returns every snapshot, newest first.
func (m *InMemoryStore) List(ctx context.Context) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Info, 0, len(m.entries))
	for name, e := range m.entries {
		out = append(out, Info{
			Name:      name,
			SavedAt:   e.savedAt,
			NodeCount: e.nodes,
			EdgeCount: e.edges,
			Size:      int64(len(e.data)),
			Format:    FormatV1,
		})
	}
	sortNewestFirst(out)
	return out, nil
}

// Delete removes the snapshot stored under name.
func (m *InMemoryStore) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[name]; !ok {
		return ErrNotFound
	}
	delete(m.entries, name)
	return nil
}

// Close is a no-op.
func (m *InMemoryStore) Close() error {
	return nil
}

// sortNewestFirst orders by save time, newest first, then by name.
func sortNewestFirst(infos []Info) {
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].SavedAt.Equal(infos[j].SavedAt) {
			return infos[i].SavedAt.After(infos[j].SavedAt)
		}
		return infos[i].Name < infos[j].Name
	})
}

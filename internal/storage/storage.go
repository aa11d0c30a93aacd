// Package storage persists learner snapshots.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNotFound indicates the requested snapshot does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a snapshot with the same ID already exists.
	ErrConflict = errors.New("conflict")
)

// Snapshot reasons.
const (
	ReasonManual     = "manual"
	ReasonCheckpoint = "checkpoint"
)

// Record is a stored learner snapshot. Payload holds the serialised learner
// state and is opaque to the store.
type Record struct {
	ID        string          `json:"id"`
	Reason    string          `json:"reason"`
	Points    int             `json:"points"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// SnapshotStore captures the persistence operations the agent service relies on.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, record Record) error
	GetSnapshot(ctx context.Context, id string) (Record, error)
	LatestSnapshot(ctx context.Context) (Record, error)
	ListSnapshots(ctx context.Context, limit int) ([]Record, error)
	PruneSnapshots(ctx context.Context, keep int) (int, error)
}

// MemoryStore is an in-memory SnapshotStore for development/testing.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Record
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]Record)}
}

// SaveSnapshot inserts a snapshot, enforcing ID uniqueness.
func (m *MemoryStore) SaveSnapshot(_ context.Context, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.snapshots[record.ID]; exists {
		return ErrConflict
	}
	record.Payload = append(json.RawMessage(nil), record.Payload...)
	m.snapshots[record.ID] = record
	return nil
}

// GetSnapshot fetches a snapshot by ID.
func (m *MemoryStore) GetSnapshot(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.snapshots[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return record, nil
}

// LatestSnapshot returns the most recently created snapshot.
func (m *MemoryStore) LatestSnapshot(_ context.Context) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ordered := m.ordered()
	if len(ordered) == 0 {
		return Record{}, ErrNotFound
	}
	return ordered[0], nil
}

// ListSnapshots returns up to limit snapshots, newest first, without payloads.
// A non-positive limit returns every snapshot.
func (m *MemoryStore) ListSnapshots(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ordered := m.ordered()
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}
	for i := range ordered {
		ordered[i].Payload = nil
	}
	return ordered, nil
}

// PruneSnapshots deletes all but the newest keep snapshots and returns how
// many were removed.
func (m *MemoryStore) PruneSnapshots(_ context.Context, keep int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ordered := m.ordered()
	if keep < 0 {
		keep = 0
	}
	if len(ordered) <= keep {
		return 0, nil
	}
	for _, record := range ordered[keep:] {
		delete(m.snapshots, record.ID)
	}
	return len(ordered) - keep, nil
}

// ordered returns snapshots newest first; ties break on descending ID.
func (m *MemoryStore) ordered() []Record {
	out := make([]Record, 0, len(m.snapshots))
	for _, record := range m.snapshots {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/smallnest/researchcanvas/store"
)

// MemoryCheckpointStore keeps checkpoints in process memory.
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*store.Checkpoint
	threads     map[string][]string
}

var _ store.CheckpointStore = (*MemoryCheckpointStore)(nil)

// NewMemoryCheckpointStore creates a new in-memory checkpoint store
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: make(map[string]*store.Checkpoint),
		threads:     make(map[string][]string),
	}
}

func clone(cp *store.Checkpoint) *store.Checkpoint {
	c := *cp
	c.Next = append([]string(nil), cp.Next...)
	c.State = append([]byte(nil), cp.State...)
	if cp.Metadata != nil {
		c.Metadata = make(map[string]any, len(cp.Metadata))
		for k, v := range cp.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Save stores a checkpoint
func (m *MemoryCheckpointStore) Save(_ context.Context, checkpoint *store.Checkpoint) error {
	if checkpoint == nil || checkpoint.ID == "" {
		return fmt.Errorf("checkpoint id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.checkpoints[checkpoint.ID]; !exists {
		m.threads[checkpoint.ThreadID] = append(m.threads[checkpoint.ThreadID], checkpoint.ID)
	}
	m.checkpoints[checkpoint.ID] = clone(checkpoint)
	return nil
}

// Load retrieves a checkpoint by ID
func (m *MemoryCheckpointStore) Load(_ context.Context, checkpointID string) (*store.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[checkpointID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrCheckpointNotFound, checkpointID)
	}
	return clone(cp), nil
}

// List returns all checkpoints for a thread ordered by version
func (m *MemoryCheckpointStore) List(_ context.Context, threadID string) ([]*store.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.threads[threadID]
	result := make([]*store.Checkpoint, 0, len(ids))
	for _, id := range ids {
		if cp, ok := m.checkpoints[id]; ok {
			result = append(result, clone(cp))
		}
	}
	store.SortByVersion(result)
	return result, nil
}

// Latest returns the highest-version checkpoint of a thread
func (m *MemoryCheckpointStore) Latest(ctx context.Context, threadID string) (*store.Checkpoint, error) {
	list, err := m.List(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: thread %s", store.ErrCheckpointNotFound, threadID)
	}
	return list[len(list)-1], nil
}

// Delete removes a checkpoint
func (m *MemoryCheckpointStore) Delete(_ context.Context, checkpointID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[checkpointID]
	if !ok {
		return nil
	}
	delete(m.checkpoints, checkpointID)

	ids := m.threads[cp.ThreadID]
	for i, id := range ids {
		if id == checkpointID {
			m.threads[cp.ThreadID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(m.threads[cp.ThreadID]) == 0 {
		delete(m.threads, cp.ThreadID)
	}
	return nil
}

// Clear removes all checkpoints for a thread
func (m *MemoryCheckpointStore) Clear(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.threads[threadID] {
		delete(m.checkpoints, id)
	}
	delete(m.threads, threadID)
	return nil
}

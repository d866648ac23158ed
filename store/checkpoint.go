package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"
)

// ErrCheckpointNotFound is returned when a checkpoint or thread has no stored record.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// Checkpoint represents a saved state at a specific point in execution.
// Next holds the nodes the graph would run after NodeName; an empty Next
// marks a finished run.
type Checkpoint struct {
	ID        string          `json:"id"`
	ThreadID  string          `json:"thread_id"`
	NodeName  string          `json:"node_name"`
	Next      []string        `json:"next"`
	State     json.RawMessage `json:"state"`
	Metadata  map[string]any  `json:"metadata"`
	Timestamp time.Time       `json:"timestamp"`
	Version   int             `json:"version"`
}

// Interrupted reports whether the run stopped before reaching END.
func (c *Checkpoint) Interrupted() bool {
	return len(c.Next) > 0
}

// CheckpointStore defines the interface for checkpoint persistence
type CheckpointStore interface {
	// Save stores a checkpoint
	Save(ctx context.Context, checkpoint *Checkpoint) error

	// Load retrieves a checkpoint by ID
	Load(ctx context.Context, checkpointID string) (*Checkpoint, error)

	// List returns all checkpoints for a thread ordered by version
	List(ctx context.Context, threadID string) ([]*Checkpoint, error)

	// Latest returns the highest-version checkpoint of a thread
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)

	// Delete removes a checkpoint
	Delete(ctx context.Context, checkpointID string) error

	// Clear removes all checkpoints for a thread
	Clear(ctx context.Context, threadID string) error
}

// SortByVersion orders checkpoints by ascending version, then timestamp.
func SortByVersion(cps []*Checkpoint) {
	sort.SliceStable(cps, func(i, j int) bool {
		if cps[i].Version != cps[j].Version {
			return cps[i].Version < cps[j].Version
		}
		return cps[i].Timestamp.Before(cps[j].Timestamp)
	})
}

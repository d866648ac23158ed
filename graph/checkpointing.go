package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/researchcanvas/store"
)

// CheckpointConfig configures checkpointing behavior
type CheckpointConfig struct {
	// Store is the checkpoint storage backend
	Store store.CheckpointStore

	// InterruptBefore and InterruptAfter are applied to every invocation.
	InterruptBefore []string
	InterruptAfter  []string
}

// StateSnapshot is the decoded view of a thread's checkpoint.
type StateSnapshot[S any] struct {
	Values       S
	Next         []string
	NodeName     string
	CheckpointID string
	Version      int
	CreatedAt    time.Time
	Metadata     map[string]any
}

// Interrupted reports whether the thread is suspended and waiting for Resume.
func (s *StateSnapshot[S]) Interrupted() bool {
	return len(s.Next) > 0
}

// CheckpointableRunnable runs a compiled graph as a resumable state machine.
// After every step the state and the next node are persisted under the
// thread id, so a run stopped by an interrupt continues with Resume.
type CheckpointableRunnable[S any] struct {
	runnable *StateRunnable[S]
	config   CheckpointConfig
}

// NewCheckpointableRunnable wraps a compiled graph with checkpointing.
func NewCheckpointableRunnable[S any](runnable *StateRunnable[S], config CheckpointConfig) *CheckpointableRunnable[S] {
	return &CheckpointableRunnable[S]{
		runnable: runnable,
		config:   config,
	}
}

// Runnable returns the wrapped runnable.
func (cr *CheckpointableRunnable[S]) Runnable() *StateRunnable[S] {
	return cr.runnable
}

// Store returns the checkpoint store.
func (cr *CheckpointableRunnable[S]) Store() store.CheckpointStore {
	return cr.config.Store
}

// Invoke starts a fresh run of the thread from the entry point.
func (cr *CheckpointableRunnable[S]) Invoke(ctx context.Context, threadID string, state S, config *Config) (S, error) {
	cfg := cr.prepare(threadID, config)
	cfg.ResumeFrom = nil
	return cr.execute(ctx, threadID, state, cfg)
}

// Resume continues a suspended thread. update receives the checkpointed state
// and returns it with the external input applied; it may be nil.
func (cr *CheckpointableRunnable[S]) Resume(ctx context.Context, threadID string, update func(S) S, config *Config) (S, error) {
	var zero S

	snapshot, err := cr.GetState(ctx, threadID)
	if err != nil {
		return zero, err
	}
	if !snapshot.Interrupted() {
		return snapshot.Values, fmt.Errorf("%w: %s", ErrNotInterrupted, threadID)
	}

	state := snapshot.Values
	if update != nil {
		state = update(state)
	}

	cfg := cr.prepare(threadID, config)
	cfg.ResumeFrom = snapshot.Next
	return cr.execute(ctx, threadID, state, cfg)
}

// GetState returns the latest snapshot of a thread.
func (cr *CheckpointableRunnable[S]) GetState(ctx context.Context, threadID string) (*StateSnapshot[S], error) {
	cp, err := cr.config.Store.Latest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot[S](cp)
}

// History returns every snapshot of a thread ordered by version.
func (cr *CheckpointableRunnable[S]) History(ctx context.Context, threadID string) ([]*StateSnapshot[S], error) {
	cps, err := cr.config.Store.List(ctx, threadID)
	if err != nil {
		return nil, err
	}
	out := make([]*StateSnapshot[S], 0, len(cps))
	for _, cp := range cps {
		snap, err := decodeSnapshot[S](cp)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// UpdateState applies update to the latest state of the thread and saves it
// as a new checkpoint attributed to asNode. The thread's cursor is kept, so an
// interrupted thread stays interrupted. Unknown threads start from the zero state.
func (cr *CheckpointableRunnable[S]) UpdateState(ctx context.Context, threadID string, asNode string, update func(S) S) (*StateSnapshot[S], error) {
	var state S
	var next []string
	version := 0

	snapshot, err := cr.GetState(ctx, threadID)
	switch {
	case err == nil:
		state = snapshot.Values
		next = snapshot.Next
		version = snapshot.Version
	case errors.Is(err, store.ErrCheckpointNotFound):
	default:
		return nil, err
	}

	if update != nil {
		state = update(state)
	}

	cp, err := cr.save(ctx, threadID, asNode, state, next, version+1, "update")
	if err != nil {
		return nil, err
	}
	return decodeSnapshot[S](cp)
}

// Clear drops every checkpoint of a thread.
func (cr *CheckpointableRunnable[S]) Clear(ctx context.Context, threadID string) error {
	return cr.config.Store.Clear(ctx, threadID)
}

func (cr *CheckpointableRunnable[S]) prepare(threadID string, config *Config) *Config {
	cfg := config.Clone()
	if cfg.Configurable == nil {
		cfg.Configurable = make(map[string]any)
	}
	cfg.Configurable[threadIDKey] = threadID
	if len(cfg.InterruptBefore) == 0 {
		cfg.InterruptBefore = cr.config.InterruptBefore
	}
	if len(cfg.InterruptAfter) == 0 {
		cfg.InterruptAfter = cr.config.InterruptAfter
	}
	return cfg
}

func (cr *CheckpointableRunnable[S]) execute(ctx context.Context, threadID string, state S, cfg *Config) (S, error) {
	version := 0
	if latest, err := cr.config.Store.Latest(ctx, threadID); err == nil {
		version = latest.Version
	} else if !errors.Is(err, store.ErrCheckpointNotFound) {
		return state, fmt.Errorf("failed to read thread %s: %w", threadID, err)
	}

	step := 0
	onStep := func(ctx context.Context, node string, s S, next string) error {
		step++
		version++
		var nextNodes []string
		if next != END {
			nextNodes = []string{next}
		}
		if _, err := cr.save(ctx, threadID, node, s, nextNodes, version, "loop"); err != nil {
			return fmt.Errorf("failed to checkpoint step %d (%s): %w", step, node, err)
		}
		return nil
	}

	return cr.runnable.run(ctx, state, cfg, onStep)
}

func (cr *CheckpointableRunnable[S]) save(ctx context.Context, threadID, node string, state S, next []string, version int, source string) (*store.Checkpoint, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}

	cp := &store.Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		NodeName:  node,
		Next:      next,
		State:     data,
		Timestamp: time.Now().UTC(),
		Version:   version,
		Metadata:  map[string]any{"source": source},
	}
	if err := cr.config.Store.Save(ctx, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

func decodeSnapshot[S any](cp *store.Checkpoint) (*StateSnapshot[S], error) {
	var values S
	if len(cp.State) > 0 {
		if err := json.Unmarshal(cp.State, &values); err != nil {
			return nil, fmt.Errorf("failed to unmarshal state of checkpoint %s: %w", cp.ID, err)
		}
	}
	return &StateSnapshot[S]{
		Values:       values,
		Next:         cp.Next,
		NodeName:     cp.NodeName,
		CheckpointID: cp.ID,
		Version:      cp.Version,
		CreatedAt:    cp.Timestamp,
		Metadata:     cp.Metadata,
	}, nil
}

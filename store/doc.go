// Package store defines checkpoint persistence for conversation threads.
//
// Every step of the canvas graph saves a Checkpoint holding the serialized
// conversation state, the node that just ran and the nodes that would run
// next. A thread whose latest checkpoint still has Next nodes is suspended
// and can be resumed; an empty Next marks a finished turn.
//
// Implementations:
//   - store/memory: in-process map, the default
//   - store/redis: go-redis, one key per checkpoint plus a per-thread sorted set
//   - store/postgres: pgx pool, JSONB state column
//   - store/sqlite: mattn/go-sqlite3, single file
//
// All of them satisfy CheckpointStore:
//
//	type CheckpointStore interface {
//	    Save(ctx context.Context, checkpoint *Checkpoint) error
//	    Load(ctx context.Context, checkpointID string) (*Checkpoint, error)
//	    List(ctx context.Context, threadID string) ([]*Checkpoint, error)
//	    Latest(ctx context.Context, threadID string) (*Checkpoint, error)
//	    Delete(ctx context.Context, checkpointID string) error
//	    Clear(ctx context.Context, threadID string) error
//	}
//
// Missing records are reported with ErrCheckpointNotFound so callers can use
// errors.Is regardless of backend.
package store

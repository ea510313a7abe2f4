package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SerializationError wraps JSON marshaling/unmarshaling errors with context.
type SerializationError struct {
	Key string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("store: serialization error for key %q: %v", e.Key, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// Checkpoint is the envelope persisted for a run: the latest snapshot plus
// where it was taken.
type Checkpoint[T any] struct {
	RunID    string    `json:"run_id"`
	Step     string    `json:"step,omitempty"`
	Sequence int       `json:"sequence"`
	SavedAt  time.Time `json:"saved_at"`
	State    T         `json:"state"`
}

// Checkpointer saves and loads the latest snapshot of type T per run id.
// Each save replaces the previous one; Sequence counts saves for the run.
type Checkpointer[T any] struct {
	adapter Adapter
	now     func() time.Time
}

// NewCheckpointer creates a checkpointer. A nil adapter means in-memory.
func NewCheckpointer[T any](adapter Adapter) *Checkpointer[T] {
	if adapter == nil {
		adapter = NewMemoryAdapter()
	}
	return &Checkpointer[T]{adapter: adapter, now: time.Now}
}

// Save stores snapshot as the latest checkpoint for runID.
func (c *Checkpointer[T]) Save(ctx context.Context, runID string, snapshot T) error {
	return c.SaveStep(ctx, runID, "", snapshot)
}

// SaveStep is Save with the name of the step that produced the snapshot.
func (c *Checkpointer[T]) SaveStep(ctx context.Context, runID, step string, snapshot T) error {
	prev, ok, err := c.LoadCheckpoint(ctx, runID)
	if err != nil {
		return err
	}
	seq := 1
	if ok {
		seq = prev.Sequence + 1
	}

	raw, err := json.Marshal(Checkpoint[T]{
		RunID:    runID,
		Step:     step,
		Sequence: seq,
		SavedAt:  c.now().UTC(),
		State:    snapshot,
	})
	if err != nil {
		return &SerializationError{Key: runID, Err: err}
	}
	return c.adapter.Set(ctx, runID, raw)
}

// Load returns the latest snapshot for runID. ok is false when nothing has
// been saved.
func (c *Checkpointer[T]) Load(ctx context.Context, runID string) (T, bool, error) {
	var zero T
	cp, ok, err := c.LoadCheckpoint(ctx, runID)
	if err != nil || !ok {
		return zero, ok, err
	}
	return cp.State, true, nil
}

// LoadCheckpoint returns the full envelope for runID.
func (c *Checkpointer[T]) LoadCheckpoint(ctx context.Context, runID string) (*Checkpoint[T], bool, error) {
	raw, ok, err := c.adapter.Get(ctx, runID)
	if err != nil || !ok {
		return nil, false, err
	}
	var cp Checkpoint[T]
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, false, &SerializationError{Key: runID, Err: err}
	}
	return &cp, true, nil
}

// MustLoad is Load that reports a missing run as ErrNotFound.
func (c *Checkpointer[T]) MustLoad(ctx context.Context, runID string) (T, error) {
	v, ok, err := c.Load(ctx, runID)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, fmt.Errorf("%w: run %q", ErrNotFound, runID)
	}
	return v, nil
}

// List returns the run ids with a saved checkpoint.
func (c *Checkpointer[T]) List(ctx context.Context) ([]string, error) {
	return c.adapter.Keys(ctx)
}

// Delete drops the checkpoint for runID.
func (c *Checkpointer[T]) Delete(ctx context.Context, runID string) error {
	return c.adapter.Delete(ctx, runID)
}

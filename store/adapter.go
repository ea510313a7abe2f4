// Package store persists workflow checkpoints behind a small key/value
// adapter interface.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("store: not found")

// Adapter defines the interface for persistence backends.
// Implementations must be safe for concurrent use.
type Adapter interface {
	// Get retrieves a value by key. Returns nil, false, nil if not found.
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)

	// Set stores a value by key, replacing any previous value.
	Set(ctx context.Context, key string, value json.RawMessage) error

	// Delete removes a key. No error if key doesn't exist.
	Delete(ctx context.Context, key string) error

	// Keys returns the stored keys in lexical order.
	Keys(ctx context.Context) ([]string, error)
}

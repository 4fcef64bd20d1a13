package kvmirror

import (
	"context"
	"errors"
)

var (
	ErrNotFound       = errors.New("kvmirror: not found")
	ErrInvalidValue   = errors.New("kvmirror: invalid value")
	ErrInvalidPattern = errors.New("kvmirror: invalid pattern")
	ErrDecode         = errors.New("kvmirror: decode failed")
	ErrClosed         = errors.New("kvmirror: store closed")
)

// Driver is the backing key-value store. Keys passed to a Driver are
// physical (already prefixed); values are persisted envelopes.
// Implementations must be thread-safe.
type Driver interface {
	// Get returns ErrNotFound when the key is missing.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Batch operations
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	MSet(ctx context.Context, pairs map[string][]byte) error
	MDel(ctx context.Context, keys []string) error

	// Namespace operations. An empty prefix addresses every key.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Clear(ctx context.Context, prefix string) error
}

package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned by Incr when the key does not exist.
var ErrNotFound = errors.New("key not found")

// Store is the shared key-value store used for grant records, the sequence
// counter and native-auth block timestamps.
//
// Implementations must make SetNX and Incr atomic across every process that
// shares the backend.
type Store interface {
	// Get returns the value stored under key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes value under key with the given TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes value only if key is absent. It reports whether the write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Incr atomically increments an existing integer value and returns the new
	// value. The remaining TTL is preserved. Missing keys yield ErrNotFound
	// instead of being created from zero.
	Incr(ctx context.Context, key string) (int64, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ReneKroon/ttlcache/v2"
	"github.com/cockroachdb/errors"
)

// MemoryStore provides an in-memory implementation of Store.
//
// This implementation is suitable for single-instance deployments and tests.
// A pool of faucet processes must share a RedisStore instead, otherwise every
// process seeds and advances its own sequence counter.
type MemoryStore struct {
	// mu makes the read-modify-write paths of SetNX and Incr atomic.
	mu    sync.Mutex
	cache *ttlcache.Cache
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	cache := ttlcache.NewCache()
	cache.SkipTTLExtensionOnHit(true)
	return &MemoryStore{cache: cache}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.lookupLocked(key)
	if err != nil || entry == nil {
		return "", false, err
	}
	return entry.value, true, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeLocked(key, value, ttl)
}

// SetNX implements Store.
func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.lookupLocked(key)
	if err != nil {
		return false, err
	}
	if entry != nil {
		return false, nil
	}
	if err := s.writeLocked(key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Incr implements Store.
func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.lookupLocked(key)
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return 0, errors.Wrapf(ErrNotFound, "incr %s", key)
	}

	current, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "value of %s is not an integer", key)
	}
	next := current + 1

	var remaining time.Duration
	if !entry.expiresAt.IsZero() {
		remaining = time.Until(entry.expiresAt)
		if remaining <= 0 {
			return 0, errors.Wrapf(ErrNotFound, "incr %s", key)
		}
	}
	entry.value = strconv.FormatInt(next, 10)
	if err := s.cache.SetWithTTL(key, entry, cacheTTL(remaining)); err != nil {
		return 0, errors.WithStack(err)
	}
	return next, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cache.Remove(key); err != nil && !errors.Is(err, ttlcache.ErrNotFound) {
		return errors.WithStack(err)
	}
	return nil
}

// Close stops the expiry goroutine of the underlying cache.
func (s *MemoryStore) Close() error {
	return s.cache.Close()
}

// lookupLocked returns nil for missing or expired keys. Must be called with lock held.
func (s *MemoryStore) lookupLocked(key string) (*memoryEntry, error) {
	raw, err := s.cache.Get(key)
	if errors.Is(err, ttlcache.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	entry := raw.(*memoryEntry)
	if entry.expired(time.Now()) {
		_ = s.cache.Remove(key)
		return nil, nil
	}
	return entry, nil
}

func (s *MemoryStore) writeLocked(key, value string, ttl time.Duration) error {
	entry := &memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	return errors.WithStack(s.cache.SetWithTTL(key, entry, cacheTTL(ttl)))
}

func cacheTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttlcache.ItemNotExpire
	}
	return ttl
}

var _ Store = (*MemoryStore)(nil)

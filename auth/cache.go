package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/faucetd/faucet/auth/nativeauth"
	"github.com/faucetd/faucet/store"
)

// StoreCache backs native auth block timestamps with the shared store. The
// latest block timestamp is answered from the local clock, so validation only
// calls the API for block hashes it has not seen yet.
type StoreCache struct {
	store store.Store
	now   func() time.Time
}

// NewStoreCache creates the cache.
func NewStoreCache(s store.Store) *StoreCache {
	return &StoreCache{store: s, now: time.Now}
}

// Get implements nativeauth.Cache.
func (c *StoreCache) Get(ctx context.Context, key string) (string, bool, error) {
	if key == nativeauth.LatestBlockTimestampKey {
		return strconv.FormatInt(c.now().Unix(), 10), true, nil
	}
	return c.store.Get(ctx, key)
}

// Set implements nativeauth.Cache.
func (c *StoreCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if key == nativeauth.LatestBlockTimestampKey {
		return nil
	}
	return c.store.Set(ctx, key, value, ttl)
}

var _ nativeauth.Cache = (*StoreCache)(nil)

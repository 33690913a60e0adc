package faucet

import (
	"context"
	"errors"
	"sync"

	"github.com/faucetd/faucet/ledger"
)

// NetworkConfigLoader fetches network parameters from the ledger.
type NetworkConfigLoader func(ctx context.Context) (*ledger.NetworkConfig, error)

// NetworkConfigCache loads the network config once and shares it between
// requests. Concurrent first callers wait for a single in-flight fetch.
// Failures are not cached, so the next caller retries.
type NetworkConfigCache struct {
	mu       sync.Mutex
	load     NetworkConfigLoader
	config   *ledger.NetworkConfig
	inFlight chan struct{}
	lastErr  error
}

// NewNetworkConfigCache creates a cache backed by load.
func NewNetworkConfigCache(load NetworkConfigLoader) *NetworkConfigCache {
	return &NetworkConfigCache{load: load}
}

// Get returns the cached config, fetching it if needed.
func (c *NetworkConfigCache) Get(ctx context.Context) (*ledger.NetworkConfig, error) {
	for {
		c.mu.Lock()
		if c.config != nil {
			config := c.config
			c.mu.Unlock()
			return config, nil
		}

		// Wait for the in-flight fetch of another caller
		if done := c.inFlight; done != nil {
			c.mu.Unlock()
			select {
			case <-done:
				c.mu.Lock()
				config, err := c.config, c.lastErr
				c.mu.Unlock()
				if config != nil {
					return config, nil
				}
				if err != nil && !abandoned(ctx, err) {
					return nil, err
				}
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		done := make(chan struct{})
		c.inFlight = done
		c.mu.Unlock()

		config, err := c.load(ctx)

		c.mu.Lock()
		c.inFlight = nil
		c.lastErr = err
		if err == nil {
			c.config = config
		}
		close(done)
		c.mu.Unlock()

		return config, err
	}
}

// Invalidate drops the cached config.
func (c *NetworkConfigCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.config = nil
}

// abandoned reports whether err only means the loading caller went away while
// ctx can still load on its own.
func abandoned(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

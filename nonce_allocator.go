package faucet

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/faucetd/faucet/store"
)

const (
	// NonceCounterKey is the store key of the shared sequence counter.
	NonceCounterKey = "faucetNonce"

	// NonceCounterTTL keeps an idle counter around for a month. Expiry is not
	// harmless: the next allocation re-seeds from the ledger, and the ledger
	// does not see transactions that are still pending, so a re-seed during
	// traffic can hand out nonces that are already in flight.
	NonceCounterTTL = 30 * 24 * time.Hour
)

// NonceAllocator hands out transaction nonces for the operator account from a
// counter shared by every faucet process.
//
// The counter is seeded once from the ledger and then only advanced by the
// store's atomic increment, so concurrent callers in any process receive
// distinct, consecutive values. The allocator itself holds no locks.
type NonceAllocator struct {
	store    store.Store
	source   NonceSource
	operator string
	key      string
	ttl      time.Duration
	logger   *zap.Logger
}

// NonceAllocatorOption configures the allocator.
type NonceAllocatorOption func(*NonceAllocator)

// WithNonceCounterKey overrides the counter key.
func WithNonceCounterKey(key string) NonceAllocatorOption {
	return func(a *NonceAllocator) {
		a.key = key
	}
}

// WithNonceCounterTTL overrides the counter TTL.
func WithNonceCounterTTL(ttl time.Duration) NonceAllocatorOption {
	return func(a *NonceAllocator) {
		a.ttl = ttl
	}
}

// WithNonceLogger sets the allocator logger.
func WithNonceLogger(logger *zap.Logger) NonceAllocatorOption {
	return func(a *NonceAllocator) {
		a.logger = logger
	}
}

// NewNonceAllocator creates an allocator for the operator account.
func NewNonceAllocator(s store.Store, source NonceSource, operator string, opts ...NonceAllocatorOption) *NonceAllocator {
	a := &NonceAllocator{
		store:    s,
		source:   source,
		operator: operator,
		key:      NonceCounterKey,
		ttl:      NonceCounterTTL,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate returns the next nonce. The first call after seeding returns the
// ledger nonce itself.
func (a *NonceAllocator) Allocate(ctx context.Context) (uint64, error) {
	_, found, err := a.store.Get(ctx, a.key)
	if err != nil {
		return 0, a.fail(err)
	}
	if !found {
		if err := a.seed(ctx); err != nil {
			return 0, a.fail(err)
		}
	}

	next, err := a.store.Incr(ctx, a.key)
	if errors.Is(err, store.ErrNotFound) {
		// The counter expired between the read and the increment.
		if err := a.seed(ctx); err != nil {
			return 0, a.fail(err)
		}
		next, err = a.store.Incr(ctx, a.key)
	}
	if err != nil {
		return 0, a.fail(err)
	}
	if next < 1 {
		return 0, a.fail(errors.Newf("counter %s is corrupt: %d", a.key, next))
	}
	return uint64(next - 1), nil
}

func (a *NonceAllocator) seed(ctx context.Context) error {
	nonce, err := a.source.AccountNonce(ctx, a.operator)
	if err != nil {
		return errors.Wrap(err, "failed to query operator nonce")
	}

	written, err := a.store.SetNX(ctx, a.key, strconv.FormatUint(nonce, 10), a.ttl)
	if err != nil {
		return err
	}
	if written {
		a.logger.Info("seeded nonce counter", zap.String("key", a.key), zap.Uint64("nonce", nonce))
	}
	return nil
}

func (a *NonceAllocator) fail(err error) error {
	return NewError(ErrCodeAllocationFailed, "failed to allocate nonce", err)
}

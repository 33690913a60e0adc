package faucet

import (
	"context"
	"time"

	"github.com/faucetd/faucet/store"
)

const grantRecordValue = "true"

// GrantRecordKey returns the store key recording a grant to address.
func GrantRecordKey(address string) string {
	return "faucet:" + address
}

// ReplayGuard limits every recipient to one grant per cooldown window. The
// operator's own address is never limited.
type ReplayGuard struct {
	store    store.Store
	operator string
}

// NewReplayGuard creates a guard exempting operator.
func NewReplayGuard(s store.Store, operator string) *ReplayGuard {
	return &ReplayGuard{store: s, operator: operator}
}

// Check reports whether recipient already received funds in the current window.
func (g *ReplayGuard) Check(ctx context.Context, recipient string) (bool, error) {
	if recipient == g.operator {
		return false, nil
	}
	_, found, err := g.store.Get(ctx, GrantRecordKey(recipient))
	if err != nil {
		return false, g.fail(err)
	}
	return found, nil
}

// Commit records a grant to recipient for cooldown.
func (g *ReplayGuard) Commit(ctx context.Context, recipient string, cooldown time.Duration) error {
	if err := g.store.Set(ctx, GrantRecordKey(recipient), grantRecordValue, cooldown); err != nil {
		return g.fail(err)
	}
	return nil
}

// Claim atomically records a grant to recipient unless one exists. It
// reports whether the caller now owns the window. The operator always wins
// and is never recorded.
func (g *ReplayGuard) Claim(ctx context.Context, recipient string, cooldown time.Duration) (bool, error) {
	if recipient == g.operator {
		return true, nil
	}
	claimed, err := g.store.SetNX(ctx, GrantRecordKey(recipient), grantRecordValue, cooldown)
	if err != nil {
		return false, g.fail(err)
	}
	return claimed, nil
}

// Release drops a claim whose dispatch failed.
func (g *ReplayGuard) Release(ctx context.Context, recipient string) error {
	if recipient == g.operator {
		return nil
	}
	if err := g.store.Delete(ctx, GrantRecordKey(recipient)); err != nil {
		return g.fail(err)
	}
	return nil
}

func (g *ReplayGuard) fail(err error) error {
	return NewError(ErrCodeStoreUnavailable, "grant records unavailable", err)
}

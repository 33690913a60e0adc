package auth

import (
	"context"

	"github.com/faucetd/faucet/address"
)

// ImpersonationPolicy decides whether one account may act for another.
type ImpersonationPolicy struct{}

// IsAllowed reports whether signer may impersonate target: both must be
// valid addresses and target must be a smart contract. A signer is never
// implicitly allowed to "impersonate" its own non-contract address.
func (ImpersonationPolicy) IsAllowed(signer, target string) bool {
	return address.IsValid(signer) && address.IsContract(target)
}

// Callback adapts the policy to the native auth validator.
func (p ImpersonationPolicy) Callback() func(ctx context.Context, signer, target string) (bool, error) {
	return func(_ context.Context, signer, target string) (bool, error) {
		return p.IsAllowed(signer, target), nil
	}
}

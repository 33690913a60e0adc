package auth

import (
	"context"

	"github.com/faucetd/faucet/auth/nativeauth"
)

// NativeAuthStrategy accepts native auth access tokens.
type NativeAuthStrategy struct {
	validator *nativeauth.Validator
}

// NewNativeAuthStrategy wraps a validator.
func NewNativeAuthStrategy(validator *nativeauth.Validator) *NativeAuthStrategy {
	return &NativeAuthStrategy{validator: validator}
}

// Name implements Strategy.
func (s *NativeAuthStrategy) Name() Provenance {
	return ProvenanceNativeAuth
}

// Authenticate implements Strategy.
func (s *NativeAuthStrategy) Authenticate(ctx context.Context, token string) Result {
	result, err := s.validator.Validate(ctx, token)
	if err != nil {
		if nativeauth.IsRejection(err) {
			return reject(ProvenanceNativeAuth, err)
		}
		return Result{Strategy: ProvenanceNativeAuth, Err: err}
	}

	return Result{
		Strategy: ProvenanceNativeAuth,
		Credential: &Credential{
			Address:       result.Address,
			Provenance:    ProvenanceNativeAuth,
			Issued:        result.Issued,
			Expires:       result.Expires,
			Origin:        result.Origin,
			SignerAddress: result.SignerAddress,
		},
	}
}

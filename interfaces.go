package faucet

import (
	"context"

	"github.com/faucetd/faucet/ledger"
)

// Ledger is the part of the ledger gateway the faucet needs.
type Ledger interface {
	NetworkConfig(ctx context.Context) (*ledger.NetworkConfig, error)
	AccountNonce(ctx context.Context, address string) (uint64, error)
	SendTransaction(ctx context.Context, tx *ledger.Transaction) (string, error)
}

// Signer signs transactions with the operator key.
type Signer interface {
	Address() string
	Sign(payload []byte) ([]byte, error)
}

// CaptchaVerifier checks a captcha token for a client.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// NonceSource returns the current ledger nonce of the operator. It seeds the
// sequence counter.
type NonceSource interface {
	AccountNonce(ctx context.Context, address string) (uint64, error)
}

// Package wallet loads the operator key and signs ledger transactions and
// messages with it.
package wallet

import (
	"crypto/ed25519"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/faucetd/faucet/address"
)

// messagePrefix is prepended to off-chain messages so that a signed message
// can never be replayed as a transaction.
const messagePrefix = "\x17Elrond Signed Message:\n"

// Signer signs with an ed25519 operator key.
type Signer struct {
	privateKey ed25519.PrivateKey
	address    address.Address
}

// NewSignerFromSeed creates a signer from a 32 byte ed25519 seed.
func NewSignerFromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Newf("invalid seed length %d, expected %d", len(seed), ed25519.SeedSize)
	}

	privateKey := ed25519.NewKeyFromSeed(seed)
	addr, err := address.FromPubKey(privateKey.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &Signer{privateKey: privateKey, address: addr}, nil
}

// Address returns the bech32 address of the signer.
func (s *Signer) Address() string {
	return s.address.Bech32()
}

// PubKey returns the raw public key.
func (s *Signer) PubKey() []byte {
	return s.address.PubKey()
}

// Sign signs raw bytes, as used for serialized transactions.
func (s *Signer) Sign(payload []byte) ([]byte, error) {
	return ed25519.Sign(s.privateKey, payload), nil
}

// SignMessage signs an off-chain message.
func (s *Signer) SignMessage(message []byte) []byte {
	return ed25519.Sign(s.privateKey, MessageHash(message))
}

// MessageHash returns the digest that is signed for an off-chain message.
func MessageHash(message []byte) []byte {
	prefixed := make([]byte, 0, len(messagePrefix)+len(message)+8)
	prefixed = append(prefixed, messagePrefix...)
	prefixed = strconv.AppendInt(prefixed, int64(len(message)), 10)
	prefixed = append(prefixed, message...)
	return crypto.Keccak256(prefixed)
}

// VerifyMessage checks an off-chain message signature against a public key.
func VerifyMessage(pubKey, message, signature []byte) bool {
	if len(pubKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pubKey, MessageHash(message), signature)
}

package wallet

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/tyler-smith/go-bip39"
)

const (
	// coinType is the registered BIP-44 coin type of the ledger.
	coinType = 508

	hardenedOffset = 0x80000000
)

var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// NewSignerFromMnemonic derives the account key at m/44'/508'/0'/0'/index'.
// The mnemonic must use the English BIP-39 wordlist and carry a valid checksum.
func NewSignerFromMnemonic(mnemonic string, index uint32) (*Signer, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, errors.Wrap(ErrInvalidMnemonic, err.Error())
	}
	key := deriveKey(seed, []uint32{44, coinType, 0, 0, index})
	return NewSignerFromSeed(key)
}

// deriveKey walks a fully hardened SLIP-0010 ed25519 path and returns the
// private key seed of the last node.
func deriveKey(seed []byte, path []uint32) []byte {
	digest := hmacSHA512([]byte("ed25519 seed"), seed)
	key, chainCode := digest[:32], digest[32:]

	for _, segment := range path {
		data := make([]byte, 0, 37)
		data = append(data, 0)
		data = append(data, key...)
		data = binary.BigEndian.AppendUint32(data, segment|hardenedOffset)

		digest = hmacSHA512(chainCode, data)
		key, chainCode = digest[:32], digest[32:]
	}
	return key
}

func hmacSHA512(key, data []byte) []byte {
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

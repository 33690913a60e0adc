// Package address handles bech32 account addresses of the ledger.
package address

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/cockroachdb/errors"
)

const (
	// HRP is the human readable part of every account address.
	HRP = "erd"

	// PubKeyLength is the byte length of an account public key.
	PubKeyLength = 32

	// contractZeroPrefix is the number of leading zero bytes in a contract public key.
	contractZeroPrefix = 8
)

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidPubKey  = errors.New("invalid public key")
)

// Address is a decoded account address.
type Address struct {
	pubKey [PubKeyLength]byte
}

// FromBech32 decodes and validates a bech32 address.
func FromBech32(value string) (Address, error) {
	hrp, data, err := bech32.Decode(value)
	if err != nil {
		return Address{}, errors.Wrapf(ErrInvalidAddress, "%q: %v", value, err)
	}
	if hrp != HRP {
		return Address{}, errors.Wrapf(ErrInvalidAddress, "%q: unexpected prefix %q", value, hrp)
	}

	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, errors.Wrapf(ErrInvalidAddress, "%q: %v", value, err)
	}
	return FromPubKey(raw)
}

// FromPubKey builds an address from a raw public key.
func FromPubKey(pubKey []byte) (Address, error) {
	if len(pubKey) != PubKeyLength {
		return Address{}, errors.Wrapf(ErrInvalidPubKey, "expected %d bytes, got %d", PubKeyLength, len(pubKey))
	}
	var a Address
	copy(a.pubKey[:], pubKey)
	return a, nil
}

// IsValid reports whether value is a well-formed bech32 account address.
func IsValid(value string) bool {
	_, err := FromBech32(value)
	return err == nil
}

// IsContract reports whether value is a valid address of a smart contract.
func IsContract(value string) bool {
	a, err := FromBech32(value)
	return err == nil && a.IsContract()
}

// PubKey returns a copy of the raw public key.
func (a Address) PubKey() []byte {
	return append([]byte(nil), a.pubKey[:]...)
}

// Hex returns the hex encoded public key.
func (a Address) Hex() string {
	return hex.EncodeToString(a.pubKey[:])
}

// IsContract reports whether the address belongs to a smart contract, which
// the ledger marks with a run of leading zero bytes in the public key.
func (a Address) IsContract() bool {
	for _, b := range a.pubKey[:contractZeroPrefix] {
		if b != 0 {
			return false
		}
	}
	return true
}

// Bech32 encodes the address.
func (a Address) Bech32() string {
	data, err := bech32.ConvertBits(a.pubKey[:], 8, 5, true)
	if err != nil {
		// 32 bytes always regroup cleanly.
		panic(err)
	}
	encoded, err := bech32.Encode(HRP, data)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) String() string {
	return a.Bech32()
}

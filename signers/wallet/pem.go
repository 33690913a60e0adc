package wallet

import (
	"encoding/hex"
	"encoding/pem"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

var ErrInvalidPEM = errors.New("invalid PEM key file")

// NewSignerFromPEMFile loads the key at block index from a PEM key file.
func NewSignerFromPEMFile(path string, index int) (*Signer, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read key file %s", path)
	}
	return NewSignerFromPEM(content, index)
}

// NewSignerFromPEM loads the key at block index from PEM content. Each block
// carries the hex encoded private key seed followed by the public key.
func NewSignerFromPEM(content []byte, index int) (*Signer, error) {
	if index < 0 {
		return nil, errors.Wrapf(ErrInvalidPEM, "negative index %d", index)
	}

	var blocks []*pem.Block
	for rest := content; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if strings.HasPrefix(block.Type, "PRIVATE KEY") {
			blocks = append(blocks, block)
		}
	}
	if index >= len(blocks) {
		return nil, errors.Wrapf(ErrInvalidPEM, "index %d out of range, file has %d keys", index, len(blocks))
	}

	raw, err := hex.DecodeString(strings.TrimSpace(string(blocks[index].Bytes)))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidPEM, "block %d is not hex: %v", index, err)
	}
	if len(raw) != 64 && len(raw) != 32 {
		return nil, errors.Wrapf(ErrInvalidPEM, "block %d has %d key bytes", index, len(raw))
	}

	signer, err := NewSignerFromSeed(raw[:32])
	if err != nil {
		return nil, err
	}
	if len(raw) == 64 && hex.EncodeToString(raw[32:]) != signer.address.Hex() {
		return nil, errors.Wrapf(ErrInvalidPEM, "block %d public key does not match its private key", index)
	}
	return signer, nil
}

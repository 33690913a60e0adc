package ledger

import (
	"encoding/hex"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// TransactionVersion is the only transaction version the faucet produces.
const TransactionVersion = 1

// Transaction is a ledger value transfer. Field order matters: the signing
// serialization is the JSON encoding of the struct without its signature.
type Transaction struct {
	Nonce     uint64 `json:"nonce"`
	Value     string `json:"value"`
	Receiver  string `json:"receiver"`
	Sender    string `json:"sender"`
	GasPrice  uint64 `json:"gasPrice"`
	GasLimit  uint64 `json:"gasLimit"`
	Data      []byte `json:"data,omitempty"`
	ChainID   string `json:"chainID"`
	Version   uint32 `json:"version"`
	Signature string `json:"signature,omitempty"`
}

// Signer produces a raw signature for a serialized transaction.
type Signer interface {
	Sign(payload []byte) ([]byte, error)
}

// SigningPayload returns the bytes the sender signs.
func (tx *Transaction) SigningPayload() ([]byte, error) {
	unsigned := *tx
	unsigned.Signature = ""
	payload, err := json.Marshal(&unsigned)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize transaction")
	}
	return payload, nil
}

// Sign signs the transaction in place.
func (tx *Transaction) Sign(signer Signer) error {
	payload, err := tx.SigningPayload()
	if err != nil {
		return err
	}
	signature, err := signer.Sign(payload)
	if err != nil {
		return errors.Wrap(err, "failed to sign transaction")
	}
	tx.Signature = hex.EncodeToString(signature)
	return nil
}

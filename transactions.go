package faucet

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/faucetd/faucet/address"
	"github.com/faucetd/faucet/ledger"
)

// TokenTransferGasLimit is the gas limit of secondary token transfers.
const TokenTransferGasLimit = 500000

// PadHex left-pads an odd-length hex string with a single zero so it encodes
// whole bytes. Even-length input is returned unchanged.
func PadHex(value string) string {
	if len(value)%2 == 1 {
		return "0" + value
	}
	return value
}

// TokenTransfer is the decoded secondary token configuration.
type TokenTransfer struct {
	// Collection is the identifier without an instance nonce, e.g. "TKN-a1b2c3".
	Collection string
	// Nonce is the instance nonce segment of an NFT/SFT identifier, hex, empty for fungible tokens.
	Nonce  string
	Amount *big.Int
}

// ParseTokenTransfer splits a token identifier and parses its base-10 amount.
func ParseTokenTransfer(identifier, amount string) (*TokenTransfer, error) {
	parts := strings.Split(identifier, "-")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, errors.Newf("invalid token identifier %q", identifier)
	}

	value, ok := new(big.Int).SetString(amount, 10)
	if !ok || value.Sign() < 0 {
		return nil, errors.Newf("invalid token amount %q", amount)
	}

	transfer := &TokenTransfer{
		Collection: parts[0] + "-" + parts[1],
		Amount:     value,
	}
	if len(parts) == 3 {
		transfer.Nonce = parts[2]
	}
	return transfer, nil
}

// IsNonFungible reports whether the identifier names an NFT/SFT instance.
func (t *TokenTransfer) IsNonFungible() bool {
	return t.Nonce != ""
}

// Payload returns the call data and the receiver of the transfer. Instance
// transfers are self-calls that carry the real recipient as an argument.
func (t *TokenTransfer) Payload(operator, recipient string) (string, string, error) {
	tokenHex := PadHex(hex.EncodeToString([]byte(t.Collection)))
	amountHex := PadHex(t.Amount.Text(16))

	if !t.IsNonFungible() {
		return "ESDTTransfer@" + tokenHex + "@" + amountHex, recipient, nil
	}

	to, err := address.FromBech32(recipient)
	if err != nil {
		return "", "", err
	}
	data := strings.Join([]string{"ESDTNFTTransfer", tokenHex, t.Nonce, amountHex, to.Hex()}, "@")
	return data, operator, nil
}

// transactionBuilder assembles unsigned transactions from the operator account.
type transactionBuilder struct {
	operator string
	network  *ledger.NetworkConfig
}

func (b transactionBuilder) primary(nonce uint64, recipient, amount string) *ledger.Transaction {
	return &ledger.Transaction{
		Nonce:    nonce,
		Value:    amount,
		Receiver: recipient,
		Sender:   b.operator,
		GasPrice: b.network.MinGasPrice,
		GasLimit: b.network.MinGasLimit,
		ChainID:  b.network.ChainID,
		Version:  ledger.TransactionVersion,
	}
}

func (b transactionBuilder) token(nonce uint64, recipient string, transfer *TokenTransfer) (*ledger.Transaction, error) {
	data, receiver, err := transfer.Payload(b.operator, recipient)
	if err != nil {
		return nil, err
	}
	return &ledger.Transaction{
		Nonce:    nonce,
		Value:    "0",
		Receiver: receiver,
		Sender:   b.operator,
		GasPrice: b.network.MinGasPrice,
		GasLimit: TokenTransferGasLimit,
		Data:     []byte(data),
		ChainID:  b.network.ChainID,
		Version:  ledger.TransactionVersion,
	}, nil
}

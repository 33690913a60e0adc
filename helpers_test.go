package faucet

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/faucetd/faucet/address"
	"github.com/faucetd/faucet/ledger"
	"github.com/faucetd/faucet/signers/wallet"
)

type fakeLedger struct {
	mu sync.Mutex

	accountNonce uint64
	nonceErr     error
	nonceCalls   int

	network      *ledger.NetworkConfig
	networkErr   error
	networkCalls int

	sent []*ledger.Transaction
	// failSend decides per transaction whether submission fails.
	failSend func(tx *ledger.Transaction) error
}

func newFakeLedger(accountNonce uint64) *fakeLedger {
	return &fakeLedger{
		accountNonce: accountNonce,
		network:      &ledger.NetworkConfig{ChainID: "D", MinGasLimit: 50000, MinGasPrice: 1000000000},
	}
}

func (l *fakeLedger) NetworkConfig(ctx context.Context) (*ledger.NetworkConfig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.networkCalls++
	return l.network, l.networkErr
}

func (l *fakeLedger) AccountNonce(ctx context.Context, addr string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nonceCalls++
	return l.accountNonce, l.nonceErr
}

func (l *fakeLedger) SendTransaction(ctx context.Context, tx *ledger.Transaction) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failSend != nil {
		if err := l.failSend(tx); err != nil {
			return "", err
		}
	}
	l.sent = append(l.sent, tx)
	return fmt.Sprintf("hash-%d", tx.Nonce), nil
}

func (l *fakeLedger) sentTransactions() []*ledger.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*ledger.Transaction(nil), l.sent...)
}

type fakeCaptcha struct {
	valid string
	err   error
	calls int
}

func (c *fakeCaptcha) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	c.calls++
	if c.err != nil {
		return false, c.err
	}
	return token == c.valid, nil
}

func newTestSigner(t *testing.T) *wallet.Signer {
	t.Helper()
	signer, err := wallet.NewSignerFromSeed(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return signer
}

func testAddress(t *testing.T, fill byte) string {
	t.Helper()
	a, err := address.FromPubKey(bytes.Repeat([]byte{fill}, address.PubKeyLength))
	require.NoError(t, err)
	return a.Bech32()
}

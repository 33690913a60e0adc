package faucet

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faucetd/faucet/ledger"
	"github.com/faucetd/faucet/store"
)

type serviceFixture struct {
	service *Service
	ledger  *fakeLedger
	store   *store.MemoryStore
	captcha *fakeCaptcha
	signer  Signer
}

func newServiceFixture(t *testing.T, config Config, opts ...ServiceOption) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		ledger:  newFakeLedger(10),
		store:   store.NewMemoryStore(),
		captcha: &fakeCaptcha{valid: "solved"},
		signer:  newTestSigner(t),
	}
	t.Cleanup(func() { _ = f.store.Close() })

	base := []ServiceOption{
		WithSigner(f.signer),
		WithLedger(f.ledger),
		WithStore(f.store),
		WithCaptchaVerifier(f.captcha),
	}
	service, err := NewService(config, append(base, opts...)...)
	require.NoError(t, err)
	f.service = service
	return f
}

func (f *serviceFixture) counter(t *testing.T) (string, bool) {
	t.Helper()
	value, found, err := f.store.Get(context.Background(), NonceCounterKey)
	require.NoError(t, err)
	return value, found
}

func TestRetrieveFundsDisabled(t *testing.T) {
	service, err := NewService(Config{Amount: "1"})
	require.NoError(t, err)
	assert.False(t, service.Enabled())

	for _, addr := range []string{"", "garbage", testAddress(t, 3)} {
		_, err := service.RetrieveFunds(context.Background(), GrantRequest{Address: addr, Captcha: "solved"})
		assert.Equal(t, ErrCodeNotEnabled, ErrorCode(err))
	}
}

func TestRetrieveFundsInvalidAddress(t *testing.T) {
	f := newServiceFixture(t, Config{Amount: "1", RecaptchaBypass: true})

	_, err := f.service.RetrieveFunds(context.Background(), GrantRequest{Address: "erd1nope"})
	assert.Equal(t, ErrCodeInvalidAddress, ErrorCode(err))
	assert.Empty(t, f.ledger.sentTransactions())
}

func TestRetrieveFundsCaptchaMissing(t *testing.T) {
	f := newServiceFixture(t, Config{Amount: "1"})

	_, err := f.service.RetrieveFunds(context.Background(), GrantRequest{Address: testAddress(t, 3)})
	require.Error(t, err)
	assert.Equal(t, ErrCodeCaptchaMissing, ErrorCode(err))
	assert.Contains(t, err.Error(), MsgCaptchaMissing)

	_, found := f.counter(t)
	assert.False(t, found, "no nonce is allocated for a rejected request")
	assert.Zero(t, f.ledger.nonceCalls)
}

func TestRetrieveFundsCaptchaFailed(t *testing.T) {
	f := newServiceFixture(t, Config{Amount: "1"})

	_, err := f.service.RetrieveFunds(context.Background(), GrantRequest{Address: testAddress(t, 3), Captcha: "wrong"})
	assert.Equal(t, ErrCodeCaptchaFailed, ErrorCode(err))

	f.captcha.err = errors.New("timeout")
	_, err = f.service.RetrieveFunds(context.Background(), GrantRequest{Address: testAddress(t, 3), Captcha: "solved"})
	assert.Equal(t, ErrCodeCaptchaFailed, ErrorCode(err))
	assert.Empty(t, f.ledger.sentTransactions())
}

func TestRetrieveFundsGrantsOncePerCooldown(t *testing.T) {
	for _, mode := range []ReplayMode{ReplayModeClaim, ReplayModeCheckCommit} {
		t.Run(string(mode), func(t *testing.T) {
			f := newServiceFixture(t, Config{Amount: "500", RecaptchaBypass: true, ReplayMode: mode, Cooldown: 100 * time.Millisecond})
			recipient := testAddress(t, 4)
			ctx := context.Background()

			result, err := f.service.RetrieveFunds(ctx, GrantRequest{Address: recipient, ClientIP: "10.0.0.1"})
			require.NoError(t, err)
			assert.Equal(t, GrantStatusGranted, result.Status)
			assert.Equal(t, uint64(10), result.Nonce)
			assert.Equal(t, "hash-10", result.TxHash)

			sent := f.ledger.sentTransactions()
			require.Len(t, sent, 1)
			assert.Equal(t, recipient, sent[0].Receiver)
			assert.Equal(t, f.signer.Address(), sent[0].Sender)
			assert.Equal(t, "500", sent[0].Value)
			assert.Equal(t, "D", sent[0].ChainID)
			assert.Equal(t, uint64(50000), sent[0].GasLimit)
			assert.NotEmpty(t, sent[0].Signature)

			value, found, err := f.store.Get(ctx, GrantRecordKey(recipient))
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "true", value)

			result, err = f.service.RetrieveFunds(ctx, GrantRequest{Address: recipient})
			require.NoError(t, err)
			assert.Equal(t, GrantStatusAlreadyReceived, result.Status)
			assert.Len(t, f.ledger.sentTransactions(), 1, "a blocked request dispatches nothing")

			counter, _ := f.counter(t)
			assert.Equal(t, "11", counter, "a blocked request consumes no nonce")

			time.Sleep(150 * time.Millisecond)
			result, err = f.service.RetrieveFunds(ctx, GrantRequest{Address: recipient})
			require.NoError(t, err)
			assert.Equal(t, GrantStatusGranted, result.Status)
			assert.Equal(t, uint64(11), result.Nonce)
		})
	}
}

func TestRetrieveFundsConcurrentSameRecipient(t *testing.T) {
	tests := []struct {
		name     string
		requests int
	}{
		{"pair", 2},
		{"burst", 16},
		{"flood", 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t, Config{Amount: "1", RecaptchaBypass: true, ReplayMode: ReplayModeClaim})
			recipient := testAddress(t, 9)

			results := make([]*GrantResult, tt.requests)
			errs := make([]error, tt.requests)
			start := make(chan struct{})
			var wg sync.WaitGroup
			for i := 0; i < tt.requests; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					results[i], errs[i] = f.service.RetrieveFunds(context.Background(), GrantRequest{Address: recipient})
				}()
			}
			close(start)
			wg.Wait()

			granted, refused := 0, 0
			for i := range results {
				require.NoError(t, errs[i])
				switch results[i].Status {
				case GrantStatusGranted:
					granted++
				case GrantStatusAlreadyReceived:
					refused++
				}
			}
			assert.Equal(t, 1, granted)
			assert.Equal(t, tt.requests-1, refused)
			assert.Len(t, f.ledger.sentTransactions(), 1)

			value, found := f.counter(t)
			assert.True(t, found)
			assert.Equal(t, "11", value, "only the granted request consumes a nonce")
		})
	}
}

func TestRetrieveFundsOperatorIsExempt(t *testing.T) {
	f := newServiceFixture(t, Config{Amount: "1", RecaptchaBypass: true})

	for i := 0; i < 3; i++ {
		result, err := f.service.RetrieveFunds(context.Background(), GrantRequest{Address: f.signer.Address()})
		require.NoError(t, err)
		assert.Equal(t, GrantStatusGranted, result.Status)
	}
	assert.Len(t, f.ledger.sentTransactions(), 3)
}

func TestRetrieveFundsDispatchFailureReleasesClaim(t *testing.T) {
	f := newServiceFixture(t, Config{Amount: "1", RecaptchaBypass: true})
	f.ledger.failSend = func(tx *ledger.Transaction) error { return errors.New("rejected") }
	recipient := testAddress(t, 5)

	_, err := f.service.RetrieveFunds(context.Background(), GrantRequest{Address: recipient})
	require.Error(t, err)
	assert.Equal(t, ErrCodeDispatchFailed, ErrorCode(err))

	_, found, err := f.store.Get(context.Background(), GrantRecordKey(recipient))
	require.NoError(t, err)
	assert.False(t, found, "failed dispatch leaves the recipient free to retry")

	f.ledger.failSend = nil
	result, err := f.service.RetrieveFunds(context.Background(), GrantRequest{Address: recipient})
	require.NoError(t, err)
	assert.Equal(t, GrantStatusGranted, result.Status)
	assert.Equal(t, 2, f.ledger.networkCalls, "network config is refetched after a failed send")
}

func TestRetrieveFundsNetworkConfigFailure(t *testing.T) {
	f := newServiceFixture(t, Config{Amount: "1", RecaptchaBypass: true})
	f.ledger.networkErr = errors.New("gateway down")

	_, err := f.service.RetrieveFunds(context.Background(), GrantRequest{Address: testAddress(t, 5)})
	assert.Equal(t, ErrCodeNetworkConfigUnavailable, ErrorCode(err))
}

func TestRetrieveFundsAllocationFailure(t *testing.T) {
	f := newServiceFixture(t, Config{Amount: "1", RecaptchaBypass: true})
	f.ledger.nonceErr = errors.New("gateway down")

	_, err := f.service.RetrieveFunds(context.Background(), GrantRequest{Address: testAddress(t, 5)})
	assert.Equal(t, ErrCodeAllocationFailed, ErrorCode(err))
	assert.Empty(t, f.ledger.sentTransactions())
}

func TestRetrieveFundsSecondaryFungible(t *testing.T) {
	f := newServiceFixture(t, Config{Amount: "1", RecaptchaBypass: true, Token: "USDC-c76f1f", TokenAmount: "100"})
	recipient := testAddress(t, 6)

	result, err := f.service.RetrieveFunds(context.Background(), GrantRequest{Address: recipient})
	require.NoError(t, err)
	require.NotNil(t, result.SecondaryNonce)
	assert.Equal(t, uint64(11), *result.SecondaryNonce)
	assert.Empty(t, result.SecondaryError)

	sent := f.ledger.sentTransactions()
	require.Len(t, sent, 2)
	assert.Equal(t, recipient, sent[1].Receiver)
	assert.True(t, strings.HasPrefix(string(sent[1].Data), "ESDTTransfer@"))
	assert.Equal(t, uint64(TokenTransferGasLimit), sent[1].GasLimit)
}

func TestRetrieveFundsSecondaryFailureStillSucceeds(t *testing.T) {
	f := newServiceFixture(t, Config{Amount: "1", RecaptchaBypass: true, Token: "NFT-123456-01", TokenAmount: "1"})
	f.ledger.failSend = func(tx *ledger.Transaction) error {
		if len(tx.Data) > 0 {
			return errors.New("insufficient token balance")
		}
		return nil
	}

	result, err := f.service.RetrieveFunds(context.Background(), GrantRequest{Address: testAddress(t, 7)})
	require.NoError(t, err)
	assert.Equal(t, GrantStatusGranted, result.Status)
	assert.Contains(t, result.SecondaryError, "insufficient token balance")
	assert.Len(t, f.ledger.sentTransactions(), 1)
}

func TestRetrieveFundsNonceOverride(t *testing.T) {
	f := newServiceFixture(t, Config{Amount: "1", Token: "USDC-c76f1f", TokenAmount: "100"})
	override := uint64(77)

	result, err := f.service.RetrieveFunds(context.Background(), GrantRequest{Address: testAddress(t, 8), Nonce: &override})
	require.NoError(t, err)
	assert.Equal(t, uint64(77), result.Nonce)
	assert.Nil(t, result.SecondaryNonce, "overrides skip the secondary transfer")
	assert.Len(t, f.ledger.sentTransactions(), 1)
	assert.Zero(t, f.captcha.calls, "overrides skip the captcha requirement")

	_, found := f.counter(t)
	assert.False(t, found)
}

func TestRetrieveFundsHooks(t *testing.T) {
	var before, after, failures int
	f := newServiceFixture(t, Config{Amount: "1", RecaptchaBypass: true},
		WithBeforeGrantHook(func(ctx GrantContext) (*BeforeHookResult, error) {
			before++
			if ctx.Request.ClientIP == "blocked" {
				return &BeforeHookResult{Abort: true, Reason: "blocked ip"}, nil
			}
			return nil, nil
		}),
		WithAfterGrantHook(func(ctx GrantResultContext) error {
			after++
			return errors.New("ignored")
		}),
		WithOnGrantFailureHook(func(ctx GrantFailureContext) error {
			failures++
			return nil
		}),
	)

	_, err := f.service.RetrieveFunds(context.Background(), GrantRequest{Address: testAddress(t, 9), ClientIP: "blocked"})
	assert.Equal(t, ErrCodeAborted, ErrorCode(err))

	_, err = f.service.RetrieveFunds(context.Background(), GrantRequest{Address: testAddress(t, 9)})
	require.NoError(t, err)

	assert.Equal(t, 2, before)
	assert.Equal(t, 1, after)
	assert.Equal(t, 1, failures)
	assert.Len(t, f.ledger.sentTransactions(), 1)
}

func TestSettings(t *testing.T) {
	f := newServiceFixture(t, Config{Amount: "1000", Token: "NFT-123456-01", TokenAmount: "1", RecaptchaBypass: true})

	first := f.service.Settings()
	second := f.service.Settings()
	assert.Equal(t, first, second)

	assert.Equal(t, f.signer.Address(), first.Address)
	assert.Equal(t, "1000", first.Amount)
	require.NotNil(t, first.Token)
	assert.Equal(t, "NFT-123456", *first.Token)
	assert.Equal(t, "1", first.TokenAmount)
	assert.True(t, first.RecaptchaBypass)
}

func TestNewServiceValidation(t *testing.T) {
	signer := newTestSigner(t)

	_, err := NewService(Config{Token: "BAD"}, WithSigner(signer))
	assert.Error(t, err)

	_, err = NewService(Config{ReplayMode: "sometimes"})
	assert.Error(t, err)

	_, err = NewService(Config{}, WithSigner(signer))
	assert.Error(t, err, "an enabled faucet needs a ledger")

	_, err = NewService(Config{}, WithSigner(signer), WithLedger(newFakeLedger(0)), WithStore(store.NewMemoryStore()))
	assert.Error(t, err, "captcha verification needs a verifier unless bypassed")
}

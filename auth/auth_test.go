package auth

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faucetd/faucet/address"
	"github.com/faucetd/faucet/auth/nativeauth"
	"github.com/faucetd/faucet/store"
)

type stubStrategy struct {
	name   Provenance
	result Result
	panics bool
	delay  time.Duration
}

func (s stubStrategy) Name() Provenance { return s.name }

func (s stubStrategy) Authenticate(ctx context.Context, token string) Result {
	time.Sleep(s.delay)
	if s.panics {
		panic("boom")
	}
	return s.result
}

func ok(name Provenance, addr string) stubStrategy {
	return stubStrategy{name: name, result: Result{Credential: &Credential{Address: addr, Provenance: name}}}
}

func failing(name Provenance, err error) stubStrategy {
	return stubStrategy{name: name, result: Result{Err: err}}
}

func TestChainOrLaw(t *testing.T) {
	others := map[string]stubStrategy{
		"succeeds":  ok(ProvenanceJWT, "erd1jwt"),
		"rejects":   {name: ProvenanceJWT, result: reject(ProvenanceJWT, errors.New("bad signature"))},
		"errors":    failing(ProvenanceJWT, errors.New("connection refused")),
		"panics":    {name: ProvenanceJWT, panics: true},
		"no result": {name: ProvenanceJWT},
	}

	for name, other := range others {
		t.Run(name, func(t *testing.T) {
			chain := NewChain([]Strategy{ok(ProvenanceNativeAuth, "erd1native"), other})
			cred, results := chain.Authenticate(context.Background(), "token")
			require.NotNil(t, cred)
			assert.Equal(t, "erd1native", cred.Address)
			assert.Len(t, results, 2)
		})
	}
}

func TestChainAllFail(t *testing.T) {
	chain := NewChain([]Strategy{
		failing(ProvenanceNativeAuth, errors.New("api down")),
		stubStrategy{name: ProvenanceJWT, panics: true},
	})

	cred, results := chain.Authenticate(context.Background(), "token")
	assert.Nil(t, cred)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.OK())
		assert.False(t, r.Rejected())
	}
}

func TestChainPrecedence(t *testing.T) {
	strategies := []Strategy{ok(ProvenanceJWT, "erd1jwt"), ok(ProvenanceNativeAuth, "erd1native")}

	cred, _ := NewChain(strategies).Authenticate(context.Background(), "token")
	assert.Equal(t, "erd1native", cred.Address)

	cred, _ = NewChain(strategies, WithPrecedence(ProvenanceJWT, ProvenanceNativeAuth)).Authenticate(context.Background(), "token")
	assert.Equal(t, "erd1jwt", cred.Address)
}

func TestChainRunsConcurrently(t *testing.T) {
	slow := ok(ProvenanceJWT, "erd1jwt")
	slow.delay = 100 * time.Millisecond
	slower := ok(ProvenanceNativeAuth, "erd1native")
	slower.delay = 100 * time.Millisecond

	start := time.Now()
	cred, _ := NewChain([]Strategy{slow, slower}).Authenticate(context.Background(), "token")
	require.NotNil(t, cred)
	assert.Less(t, time.Since(start), 190*time.Millisecond)
}

func signJWT(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTStrategy(t *testing.T) {
	strategy, err := NewJWTStrategy("secret")
	require.NoError(t, err)

	valid := signJWT(t, "secret", jwt.MapClaims{
		"user": map[string]any{"address": "erd1user"},
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	result := strategy.Authenticate(context.Background(), valid)
	require.True(t, result.OK())
	assert.Equal(t, "erd1user", result.Credential.Address)
	assert.Equal(t, ProvenanceJWT, result.Credential.Provenance)

	tests := map[string]string{
		"wrong secret": signJWT(t, "other", jwt.MapClaims{"user": map[string]any{"address": "erd1user"}}),
		"expired":      signJWT(t, "secret", jwt.MapClaims{"user": map[string]any{"address": "erd1user"}, "exp": time.Now().Add(-time.Hour).Unix()}),
		"no address":   signJWT(t, "secret", jwt.MapClaims{"user": map[string]any{}}),
		"garbage":      "abc.def.ghi",
		"empty":        "",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			result := strategy.Authenticate(context.Background(), token)
			assert.False(t, result.OK())
			assert.True(t, result.Rejected())
		})
	}

	_, err = NewJWTStrategy("")
	assert.Error(t, err)
}

func TestJWTStrategyRejectsOtherAlgorithms(t *testing.T) {
	strategy, err := NewJWTStrategy("secret")
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"address": "erd1user"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	assert.True(t, strategy.Authenticate(context.Background(), token).Rejected())
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer abc"))
	assert.Equal(t, "abc", BearerToken("abc"))
	assert.Equal(t, "", BearerToken(""))
}

func addressOf(t *testing.T, pubKey []byte) string {
	t.Helper()
	a, err := address.FromPubKey(pubKey)
	require.NoError(t, err)
	return a.Bech32()
}

func TestImpersonationPolicy(t *testing.T) {
	user := addressOf(t, bytes.Repeat([]byte{3}, 32))
	otherUser := addressOf(t, bytes.Repeat([]byte{4}, 32))
	contract := addressOf(t, append(make([]byte, 8), bytes.Repeat([]byte{9}, 24)...))

	policy := ImpersonationPolicy{}
	tests := []struct {
		name           string
		signer, target string
		want           bool
	}{
		{"user for contract", user, contract, true},
		{"contract for contract", contract, contract, true},
		{"user for user", user, otherUser, false},
		{"user for itself", user, user, false},
		{"invalid signer", "erd1bad", contract, false},
		{"invalid target", user, "erd1bad", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.IsAllowed(tt.signer, tt.target))
			allowed, err := policy.Callback()(context.Background(), tt.signer, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, allowed)
		})
	}
}

func TestAdmins(t *testing.T) {
	admins := NewAdmins([]string{"erd1admin", ""})

	assert.True(t, admins.IsAdmin(&Credential{Address: "erd1admin"}))
	assert.False(t, admins.IsAdmin(&Credential{Address: "erd1user"}))
	assert.False(t, admins.IsAdmin(&Credential{Address: "erd1admin", SignerAddress: "erd1user"}))
	assert.False(t, admins.IsAdmin(nil))
}

func TestStoreCache(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	cache := NewStoreCache(st)
	cache.now = func() time.Time { return time.Unix(1700000000, 0) }
	ctx := context.Background()

	value, found, err := cache.Get(ctx, nativeauth.LatestBlockTimestampKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1700000000", value)

	require.NoError(t, cache.Set(ctx, nativeauth.LatestBlockTimestampKey, "1", time.Minute))
	_, found, _ = st.Get(ctx, nativeauth.LatestBlockTimestampKey)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, nativeauth.BlockTimestampKey("abc"), "1000", time.Minute))
	value, found, err = cache.Get(ctx, nativeauth.BlockTimestampKey("abc"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1000", value)
}

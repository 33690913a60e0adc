package faucet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faucetd/faucet/store"
)

func TestReplayGuardCheckCommit(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	guard := NewReplayGuard(st, "erd1operator")
	ctx := context.Background()

	received, err := guard.Check(ctx, "erd1alice")
	require.NoError(t, err)
	assert.False(t, received)

	require.NoError(t, guard.Commit(ctx, "erd1alice", 50*time.Millisecond))
	received, err = guard.Check(ctx, "erd1alice")
	require.NoError(t, err)
	assert.True(t, received)

	value, _, _ := st.Get(ctx, "faucet:erd1alice")
	assert.Equal(t, "true", value)

	time.Sleep(80 * time.Millisecond)
	received, err = guard.Check(ctx, "erd1alice")
	require.NoError(t, err)
	assert.False(t, received, "grant record expires with the cooldown")
}

func TestReplayGuardOperatorExempt(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	guard := NewReplayGuard(st, "erd1operator")
	ctx := context.Background()

	require.NoError(t, guard.Commit(ctx, "erd1operator", time.Hour))
	received, err := guard.Check(ctx, "erd1operator")
	require.NoError(t, err)
	assert.False(t, received)

	for i := 0; i < 3; i++ {
		claimed, err := guard.Claim(ctx, "erd1operator", time.Hour)
		require.NoError(t, err)
		assert.True(t, claimed)
	}
}

func TestReplayGuardClaimRelease(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	guard := NewReplayGuard(st, "erd1operator")
	ctx := context.Background()

	claimed, err := guard.Claim(ctx, "erd1bob", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = guard.Claim(ctx, "erd1bob", time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, guard.Release(ctx, "erd1bob"))
	claimed, err = guard.Claim(ctx, "erd1bob", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)
}

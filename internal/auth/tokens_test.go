package auth

import (
	"fmt"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssueVerify(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	store := NewTokenStore(clock)

	token, err := store.Issue("alice")
	require.NoError(t, err)
	assert.Len(t, token, 32)

	assert.True(t, store.Verify("alice", token))
	assert.False(t, store.Verify("alice", "deadbeef"))
	assert.False(t, store.Verify("bob", token))
	assert.False(t, store.Verify("alice", ""))
}

func TestTokenReissueReplaces(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	store := NewTokenStore(clock)

	first, err := store.Issue("alice")
	require.NoError(t, err)
	second, err := store.Issue("alice")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	assert.False(t, store.Verify("alice", first))
	assert.True(t, store.Verify("alice", second))
}

func TestTokenExpiry(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	store := NewTokenStore(clock)

	token, err := store.Issue("alice")
	require.NoError(t, err)

	clock.Advance(TokenMaxAge - time.Second)
	assert.True(t, store.Verify("alice", token))

	clock.Advance(2 * time.Second)
	assert.False(t, store.Verify("alice", token))
}

func TestTokenRevoke(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	store := NewTokenStore(clock)

	token, err := store.Issue("alice")
	require.NoError(t, err)

	store.Revoke("alice")
	assert.False(t, store.Verify("alice", token))
}

func TestTokenPruneKeepsFresh(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	store := NewTokenStore(clock)

	// Fill past the cap with already-expired tokens, then issue a
	// fresh one; the fresh token must survive pruning.
	for i := 0; i < tokenStoreCap; i++ {
		_, err := store.Issue(fmt.Sprintf("agent-%d", i))
		require.NoError(t, err)
	}
	clock.Advance(TokenMaxAge + time.Minute)

	token, err := store.Issue("fresh")
	require.NoError(t, err)
	assert.True(t, store.Verify("fresh", token))
}

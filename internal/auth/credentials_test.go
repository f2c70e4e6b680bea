package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingVerifier struct {
	calls   int
	secrets map[string]string
	err     error
}

func (v *countingVerifier) verify(_ context.Context, account, secret string) (bool, error) {
	v.calls++
	if v.err != nil {
		return false, v.err
	}
	return v.secrets[account] == secret, nil
}

func TestCredentialCacheVerifiesOnceWithinTTL(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	v := &countingVerifier{secrets: map[string]string{"alice": "s3cret"}}
	cache := NewCredentialCache(clock, v.verify)

	ok, err := cache.Verify(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, v.calls)

	// A repeat inside the TTL is served from cache.
	ok, err = cache.Verify(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, v.calls)

	// Past the TTL the authority is consulted again.
	clock.Advance(CredentialTTL + time.Second)
	ok, err = cache.Verify(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, v.calls)
}

func TestCredentialCacheRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	v := &countingVerifier{secrets: map[string]string{"alice": "s3cret"}}
	cache := NewCredentialCache(clock, v.verify)

	ok, err := cache.Verify(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	require.True(t, ok)

	// A mismatched secret bypasses the cache and is rejected; the good
	// entry survives.
	ok, err = cache.Verify(context.Background(), "alice", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, v.calls)

	ok, err = cache.Verify(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, v.calls)
}

func TestCredentialCacheEmptyAndErrors(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	boom := errors.New("authority down")
	v := &countingVerifier{err: boom}
	cache := NewCredentialCache(clock, v.verify)

	ok, err := cache.Verify(context.Background(), "", "x")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, v.calls)

	_, err = cache.Verify(context.Background(), "alice", "x")
	assert.ErrorIs(t, err, boom)
}

func TestCredentialCacheInvalidate(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	v := &countingVerifier{secrets: map[string]string{"alice": "s3cret"}}
	cache := NewCredentialCache(clock, v.verify)

	_, err := cache.Verify(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	cache.Invalidate("alice")

	_, err = cache.Verify(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, 2, v.calls)
}

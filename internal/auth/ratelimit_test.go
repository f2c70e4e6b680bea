package auth

import (
	"fmt"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterBudget(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	rl := NewRateLimiter(clock, map[string]EndpointLimit{
		"join":    {PerMinute: 3, Burst: 3},
		"default": {PerMinute: 20, Burst: 20},
	})

	for i := 0; i < 3; i++ {
		ok, _ := rl.Allow("10.0.0.1:1234", "join")
		require.True(t, ok, "request %d should pass", i)
	}
	ok, retry := rl.Allow("10.0.0.1:1234", "join")
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))
}

func TestRateLimiterIsolatesSources(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	rl := NewRateLimiter(clock, map[string]EndpointLimit{
		"join":    {PerMinute: 1, Burst: 1},
		"default": {PerMinute: 20, Burst: 20},
	})

	ok, _ := rl.Allow("10.0.0.1:1", "join")
	require.True(t, ok)
	ok, _ = rl.Allow("10.0.0.1:1", "join")
	require.False(t, ok)

	// A different source and a different endpoint each get their own bucket.
	ok, _ = rl.Allow("10.0.0.2:1", "join")
	assert.True(t, ok)
	ok, _ = rl.Allow("10.0.0.1:1", "state")
	assert.True(t, ok)
}

func TestRateLimiterRefills(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	rl := NewRateLimiter(clock, map[string]EndpointLimit{
		"join":    {PerMinute: 60, Burst: 1},
		"default": {PerMinute: 20, Burst: 20},
	})

	ok, _ := rl.Allow("addr", "join")
	require.True(t, ok)
	ok, retry := rl.Allow("addr", "join")
	require.False(t, ok)
	require.LessOrEqual(t, retry, time.Second)

	clock.Advance(time.Second)
	ok, _ = rl.Allow("addr", "join")
	assert.True(t, ok)
}

func TestRateLimiterPruneSparesActive(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	rl := NewRateLimiter(clock, nil)

	// One entry stays warm while the rest go idle past the eviction window.
	ok, _ := rl.Allow("warm", "action")
	require.True(t, ok)
	for i := 0; i < limiterCap/2; i++ {
		rl.Allow(fmt.Sprintf("idle-%d", i), "action")
	}
	clock.Advance(limiterIdleEvict + time.Second)
	rl.Allow("warm", "action")

	// Overflow the cap to trigger pruning.
	for i := 0; i < limiterCap; i++ {
		rl.Allow(fmt.Sprintf("new-%d", i), "action")
	}

	rl.mu.Lock()
	_, warmAlive := rl.entries["warm|action"]
	_, idleAlive := rl.entries["idle-0|action"]
	rl.mu.Unlock()
	assert.True(t, warmAlive)
	assert.False(t, idleAlive)
}

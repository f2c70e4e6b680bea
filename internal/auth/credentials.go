package auth

import (
	"context"
	"crypto/hmac"
	"sync"
	"time"

	"github.com/coder/quartz"
)

const (
	// CredentialTTL is how long a verified account secret is trusted
	// before the external verifier is consulted again.
	CredentialTTL = 5 * time.Minute

	credCacheCap = 1000
)

// VerifyFunc checks an account id + secret pair against an external
// authority. It returns false for a definitive rejection and an error
// only when the authority could not be reached.
type VerifyFunc func(ctx context.Context, account, secret string) (bool, error)

type credEntry struct {
	secret     string
	verifiedAt time.Time
}

// CredentialCache fronts an external credential verifier with a TTL
// cache, so a chatty agent does not hit the authority on every call.
// Only successful verifications are cached; secrets are compared in
// constant time.
type CredentialCache struct {
	clock  quartz.Clock
	ttl    time.Duration
	verify VerifyFunc

	mu      sync.Mutex
	entries map[string]credEntry
}

// NewCredentialCache creates a cache over verify with the standard TTL.
func NewCredentialCache(clock quartz.Clock, verify VerifyFunc) *CredentialCache {
	return &CredentialCache{
		clock:   clock,
		ttl:     CredentialTTL,
		verify:  verify,
		entries: make(map[string]credEntry),
	}
}

// SetTTL overrides the cache TTL.
func (c *CredentialCache) SetTTL(d time.Duration) { c.ttl = d }

// Verify checks an account id + secret, consulting the external
// verifier on a cache miss. A cached secret that no longer matches is
// re-verified rather than rejected outright, so rotations take effect
// immediately.
func (c *CredentialCache) Verify(ctx context.Context, account, secret string) (bool, error) {
	if account == "" || secret == "" {
		return false, nil
	}

	c.mu.Lock()
	entry, ok := c.entries[account]
	fresh := ok && c.clock.Now().Sub(entry.verifiedAt) <= c.ttl
	c.mu.Unlock()
	if fresh && hmac.Equal([]byte(entry.secret), []byte(secret)) {
		return true, nil
	}

	ok, err := c.verify(ctx, account, secret)
	if err != nil || !ok {
		return false, err
	}

	c.mu.Lock()
	c.entries[account] = credEntry{secret: secret, verifiedAt: c.clock.Now()}
	if len(c.entries) > credCacheCap {
		c.pruneLocked()
	}
	c.mu.Unlock()
	return true, nil
}

// Invalidate drops the cached entry for an account.
func (c *CredentialCache) Invalidate(account string) {
	c.mu.Lock()
	delete(c.entries, account)
	c.mu.Unlock()
}

func (c *CredentialCache) pruneLocked() {
	now := c.clock.Now()
	for account, entry := range c.entries {
		if now.Sub(entry.verifiedAt) > c.ttl {
			delete(c.entries, account)
		}
	}
}

// Package auth provides session tokens, input sanitization and per-source
// rate limiting for agent connections.
package auth

import (
	"crypto/hmac"
	cryptorand "crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
)

const (
	// TokenMaxAge is how long an issued token stays valid.
	TokenMaxAge = 24 * time.Hour

	// tokenStoreCap triggers an expiry sweep when exceeded.
	tokenStoreCap = 1000
)

type tokenEntry struct {
	token    string
	issuedAt time.Time
}

// TokenStore issues and verifies per-name session tokens. Issuing a new
// token for a name invalidates the previous one.
type TokenStore struct {
	mu     sync.Mutex
	clock  quartz.Clock
	maxAge time.Duration
	tokens map[string]tokenEntry
}

// NewTokenStore creates a token store using the given clock.
func NewTokenStore(clock quartz.Clock) *TokenStore {
	return &TokenStore{
		clock:  clock,
		maxAge: TokenMaxAge,
		tokens: make(map[string]tokenEntry),
	}
}

// Issue generates a fresh random token for name, replacing any prior token.
func (ts *TokenStore) Issue(name string) (string, error) {
	buf := make([]byte, 16)
	if _, err := cryptorand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(buf)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.tokens[name] = tokenEntry{token: token, issuedAt: ts.clock.Now()}
	if len(ts.tokens) > tokenStoreCap {
		ts.pruneLocked()
	}
	return token, nil
}

// Verify reports whether token is the current, unexpired token for name.
// The comparison is constant time in the token content; expired tokens are
// deleted on sight.
func (ts *TokenStore) Verify(name, token string) bool {
	if name == "" || token == "" {
		return false
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	entry, ok := ts.tokens[name]
	if !ok {
		return false
	}
	if ts.clock.Now().Sub(entry.issuedAt) > ts.maxAge {
		delete(ts.tokens, name)
		return false
	}
	return hmac.Equal([]byte(entry.token), []byte(token))
}

// Revoke drops the token for name, if any.
func (ts *TokenStore) Revoke(name string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.tokens, name)
}

func (ts *TokenStore) pruneLocked() {
	now := ts.clock.Now()
	for name, entry := range ts.tokens {
		if now.Sub(entry.issuedAt) > ts.maxAge {
			delete(ts.tokens, name)
		}
	}
}

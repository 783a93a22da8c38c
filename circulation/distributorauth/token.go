package distributorauth

import (
	"sync"
	"time"
)

// Token is a Bearer token and the instant it stops being valid.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// IsExpired reports whether the token is no longer valid at now.
func (t Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TokenCache holds the single session token of a Client and the authenticate URL it was granted by.
// It is safe for concurrent use.
type TokenCache struct {
	mu       sync.Mutex
	token    *Token
	tokenURL string
}

// NewTokenCache creates an empty cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{}
}

// Token returns the cached token, if any.
func (c *TokenCache) Token() (Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == nil {
		return Token{}, false
	}

	return *c.token, true
}

// Valid returns the cached token when it has not expired at now.
func (c *TokenCache) Valid(now time.Time) (Token, bool) {
	token, found := c.Token()
	if !found || token.IsExpired(now) {
		return Token{}, false
	}

	return token, true
}

// Store replaces the cached token.
func (c *TokenCache) Store(token Token) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = &token
}

// TokenURL returns the discovered authenticate URL, or "" before discovery.
func (c *TokenCache) TokenURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.tokenURL
}

// StoreTokenURL remembers the authenticate URL.
func (c *TokenCache) StoreTokenURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tokenURL = url
}

// Invalidate drops the cached token. The authenticate URL is kept.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = nil
}

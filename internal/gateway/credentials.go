package gateway

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// tokenFetcher exchanges client credentials for a bearer token and its TTL.
type tokenFetcher func(ctx context.Context) (token string, ttl time.Duration, err error)

// CredentialCache holds a cached access token for providers requiring a
// bearer-token exchange. Refresh is lazy and single-flight guarded so
// concurrent requests never trigger redundant token exchanges.
type CredentialCache struct {
	mu     sync.Mutex
	token  string
	expiry time.Time

	group singleflight.Group
	fetch tokenFetcher

	// refreshSkew forces a refresh slightly before the provider-reported
	// expiry to avoid using a token that dies in flight.
	refreshSkew time.Duration
}

// NewCredentialCache creates a cache around the given token exchange.
func NewCredentialCache(fetch tokenFetcher) *CredentialCache {
	return &CredentialCache{
		fetch:       fetch,
		refreshSkew: 30 * time.Second,
	}
}

// Token returns a valid cached token, refreshing it if expired.
func (c *CredentialCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Now().Before(c.expiry.Add(-c.refreshSkew)) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("token", func() (any, error) {
		// Re-check under the flight: another caller may have refreshed
		// between our expiry check and joining the group.
		c.mu.Lock()
		if c.token != "" && time.Now().Before(c.expiry.Add(-c.refreshSkew)) {
			token := c.token
			c.mu.Unlock()
			return token, nil
		}
		c.mu.Unlock()

		token, ttl, err := c.fetch(ctx)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.token = token
		c.expiry = time.Now().Add(ttl)
		c.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token, forcing a refresh on the next call.
// Called when the provider answers 401 to a request using the cached token.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiry = time.Time{}
	c.mu.Unlock()
}

package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialCache_ConcurrentCallersShareOneExchange(t *testing.T) {
	var exchanges atomic.Int32
	cache := NewCredentialCache(func(ctx context.Context) (string, time.Duration, error) {
		exchanges.Add(1)
		// Keep the exchange in flight long enough for every caller to pile up.
		time.Sleep(50 * time.Millisecond)
		return "tok_shared", time.Hour, nil
	})

	const callers = 16
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = cache.Token(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), exchanges.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok_shared", tokens[i])
	}
}

func TestCredentialCache_CachesUntilExpiry(t *testing.T) {
	exchanges := 0
	cache := NewCredentialCache(func(ctx context.Context) (string, time.Duration, error) {
		exchanges++
		return fmt.Sprintf("tok_%d", exchanges), time.Hour, nil
	})

	first, err := cache.Token(context.Background())
	require.NoError(t, err)
	second, err := cache.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok_1", first)
	assert.Equal(t, "tok_1", second)
	assert.Equal(t, 1, exchanges)
}

func TestCredentialCache_ShortTTLForcesRefresh(t *testing.T) {
	// A TTL inside the refresh skew is treated as already expired.
	exchanges := 0
	cache := NewCredentialCache(func(ctx context.Context) (string, time.Duration, error) {
		exchanges++
		return fmt.Sprintf("tok_%d", exchanges), 10 * time.Millisecond, nil
	})

	_, err := cache.Token(context.Background())
	require.NoError(t, err)
	tok, err := cache.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok_2", tok)
	assert.Equal(t, 2, exchanges)
}

func TestCredentialCache_InvalidateForcesRefresh(t *testing.T) {
	exchanges := 0
	cache := NewCredentialCache(func(ctx context.Context) (string, time.Duration, error) {
		exchanges++
		return fmt.Sprintf("tok_%d", exchanges), time.Hour, nil
	})

	first, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok_1", first)

	cache.Invalidate()

	second, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok_2", second)
	assert.Equal(t, 2, exchanges)
}

func TestCredentialCache_FetchErrorIsNotCached(t *testing.T) {
	exchanges := 0
	cache := NewCredentialCache(func(ctx context.Context) (string, time.Duration, error) {
		exchanges++
		if exchanges == 1 {
			return "", 0, errors.New("oauth endpoint down")
		}
		return "tok_recovered", time.Hour, nil
	})

	_, err := cache.Token(context.Background())
	require.Error(t, err)

	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok_recovered", tok)
}

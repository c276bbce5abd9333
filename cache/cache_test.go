package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errNotReady = errors.New("attestation not ready")

func TestCacheSingleKey(t *testing.T) {
	tests := []struct {
		name           string
		skipCache      bool
		waitBeforeNext time.Duration
		expectedCount  int
	}{
		{
			name:           "fresh cache, fetch",
			waitBeforeNext: 0,
			skipCache:      false,
			expectedCount:  1,
		},
		{
			name:           "use cache, no fetch",
			waitBeforeNext: 0,
			skipCache:      false,
			expectedCount:  1,
		},
		{
			name:           "skipCache=true, fetch",
			waitBeforeNext: 0,
			skipCache:      true,
			expectedCount:  2,
		},
		{
			name:           "ttl expired, fetch",
			waitBeforeNext: 2 * time.Second,
			skipCache:      false,
			expectedCount:  3,
		},
	}
	cache := New[string, int](8, 1*time.Second)
	fetchCount := 0
	fetchFunc := func(_ string) (int, error) {
		fetchCount++
		return 42, nil
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			if tt.waitBeforeNext > 0 {
				time.Sleep(tt.waitBeforeNext)
			}

			val, err := cache.Get("test", fetchFunc, tt.skipCache)
			require.NoError(err)
			require.Equal(42, val)
			require.Equal(tt.expectedCount, fetchCount)
		})
	}
}

func TestCacheEviction(t *testing.T) {
	require := require.New(t)

	cache := New[string, int](2, time.Minute)
	fetchCount := 0
	fetchFunc := func(_ string) (int, error) {
		fetchCount++
		return fetchCount, nil
	}

	_, err := cache.Get("a", fetchFunc, false)
	require.NoError(err)
	_, err = cache.Get("b", fetchFunc, false)
	require.NoError(err)
	require.Equal(2, cache.Len())

	// "c" evicts "a", the oldest entry.
	_, err = cache.Get("c", fetchFunc, false)
	require.NoError(err)
	require.Equal(2, cache.Len())

	_, err = cache.Get("a", fetchFunc, false)
	require.NoError(err)
	require.Equal(4, fetchCount)

	// Re-fetching "a" evicted "b"; "c" is still fresh.
	_, err = cache.Get("c", fetchFunc, false)
	require.NoError(err)
	require.Equal(4, fetchCount)
}

func TestCacheFetchError(t *testing.T) {
	require := require.New(t)

	cache := New[string, int](8, time.Minute)
	calls := 0
	failing := func(_ string) (int, error) {
		calls++
		return 0, errNotReady
	}

	_, err := cache.Get("pending", failing, false)
	require.ErrorIs(err, errNotReady)

	// Errors are not cached.
	_, err = cache.Get("pending", failing, false)
	require.ErrorIs(err, errNotReady)
	require.Equal(2, calls)
	require.Zero(cache.Len())
}

func TestCacheConcurrentFetch(t *testing.T) {
	require := require.New(t)

	cache := New[string, int](8, time.Minute)
	release := make(chan struct{})
	var fetchCount atomic.Int32
	fetchFunc := func(_ string) (int, error) {
		fetchCount.Add(1)
		<-release
		return 7, nil
	}

	const goroutines = 4
	var wg sync.WaitGroup
	results := make([]int, goroutines)
	errs := make([]error, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.Get("shared", fetchFunc, false)
		}(i)
	}

	// Give every goroutine time to join the in-flight fetch before
	// releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(int32(1), fetchCount.Load())
	for i := range results {
		require.NoError(errs[i])
		require.Equal(7, results[i])
	}
}

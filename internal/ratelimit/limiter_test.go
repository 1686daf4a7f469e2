package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives a MemoryStore deterministically
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T) (*Limiter, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := NewMemoryStore()
	store.now = clock.Now

	limiter, err := New(store, DefaultTiers())
	require.NoError(t, err)
	return limiter, clock
}

func TestNew(t *testing.T) {
	t.Run("requires a store", func(t *testing.T) {
		_, err := New(nil, DefaultTiers())
		assert.Error(t, err)
	})

	t.Run("requires at least one tier", func(t *testing.T) {
		_, err := New(NewMemoryStore(), nil)
		assert.Error(t, err)
	})

	t.Run("rejects non-positive limits and windows", func(t *testing.T) {
		_, err := New(NewMemoryStore(), map[Tier]TierConfig{
			TierGeneral: {Limit: 0, Window: time.Minute},
		})
		assert.Error(t, err)

		_, err = New(NewMemoryStore(), map[Tier]TierConfig{
			TierGeneral: {Limit: 10, Window: 0},
		})
		assert.Error(t, err)
	})
}

func TestLimiter_Check(t *testing.T) {
	ctx := context.Background()

	t.Run("allows up to the limit then denies", func(t *testing.T) {
		limiter, _ := newTestLimiter(t)

		for i := 0; i < 5; i++ {
			v, err := limiter.Check(ctx, "203.0.113.7", TierGenerate)
			require.NoError(t, err)
			assert.True(t, v.Allowed, "request %d should be allowed", i+1)
			assert.Equal(t, 5-i-1, v.Remaining)
			assert.Equal(t, 5, v.Limit)
		}

		v, err := limiter.Check(ctx, "203.0.113.7", TierGenerate)
		require.NoError(t, err)
		assert.False(t, v.Allowed)
		assert.Equal(t, 0, v.Remaining)
		assert.Equal(t, time.Minute, v.RetryAfter)
	})

	t.Run("window elapses and the budget resets", func(t *testing.T) {
		limiter, clock := newTestLimiter(t)

		for i := 0; i < 5; i++ {
			v, err := limiter.Check(ctx, "user-1", TierGenerate)
			require.NoError(t, err)
			require.True(t, v.Allowed)
		}

		clock.Advance(30 * time.Second)
		v, err := limiter.Check(ctx, "user-1", TierGenerate)
		require.NoError(t, err)
		assert.False(t, v.Allowed)
		assert.Equal(t, 30*time.Second, v.RetryAfter)

		clock.Advance(31 * time.Second)
		v, err = limiter.Check(ctx, "user-1", TierGenerate)
		require.NoError(t, err)
		assert.True(t, v.Allowed)
		assert.Equal(t, 4, v.Remaining)
	})

	t.Run("keys have independent budgets", func(t *testing.T) {
		limiter, _ := newTestLimiter(t)

		for i := 0; i < 5; i++ {
			v, err := limiter.Check(ctx, "user-a", TierGenerate)
			require.NoError(t, err)
			require.True(t, v.Allowed)
		}

		v, err := limiter.Check(ctx, "user-b", TierGenerate)
		require.NoError(t, err)
		assert.True(t, v.Allowed)
		assert.Equal(t, 4, v.Remaining)
	})

	t.Run("tiers have independent budgets for the same key", func(t *testing.T) {
		limiter, _ := newTestLimiter(t)

		for i := 0; i < 5; i++ {
			v, err := limiter.Check(ctx, "user-1", TierGenerate)
			require.NoError(t, err)
			require.True(t, v.Allowed)
		}

		denied, err := limiter.Check(ctx, "user-1", TierGenerate)
		require.NoError(t, err)
		require.False(t, denied.Allowed)

		v, err := limiter.Check(ctx, "user-1", TierGeneral)
		require.NoError(t, err)
		assert.True(t, v.Allowed)
		assert.Equal(t, 59, v.Remaining)
	})

	t.Run("unknown tier is an error", func(t *testing.T) {
		limiter, _ := newTestLimiter(t)

		_, err := limiter.Check(ctx, "user-1", Tier("premium"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownTier)
	})

	t.Run("concurrent checks admit exactly the limit", func(t *testing.T) {
		limiter, _ := newTestLimiter(t)

		const workers = 50
		results := make(chan bool, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := limiter.Check(ctx, "shared", TierGenerate)
				assert.NoError(t, err)
				results <- v.Allowed
			}()
		}
		wg.Wait()
		close(results)

		allowed := 0
		for ok := range results {
			if ok {
				allowed++
			}
		}
		assert.Equal(t, 5, allowed, "exactly the tier limit must be admitted")
	})
}

func TestMemoryStore_Cleanup(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	store.now = clock.Now

	cfg := TierConfig{Limit: 3, Window: time.Minute}

	_, err := store.TryConsume(context.Background(), "stale", cfg)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	_, err = store.TryConsume(context.Background(), "fresh", cfg)
	require.NoError(t, err)

	store.cleanup(2 * time.Minute)

	_, staleKept := store.entries.Load("stale")
	_, freshKept := store.entries.Load("fresh")
	assert.False(t, staleKept, "idle entry should be dropped")
	assert.True(t, freshKept, "active entry should survive")
}

func TestHeadersFor(t *testing.T) {
	t.Run("allowed verdict carries limit and remaining", func(t *testing.T) {
		h := HeadersFor(Verdict{Allowed: true, Remaining: 3, Limit: 5})

		assert.Equal(t, "5", h["X-RateLimit-Limit"])
		assert.Equal(t, "3", h["X-RateLimit-Remaining"])
		_, hasRetry := h["Retry-After"]
		assert.False(t, hasRetry)
	})

	t.Run("denied verdict rounds retry-after up to whole seconds", func(t *testing.T) {
		h := HeadersFor(Verdict{Allowed: false, RetryAfter: 1500 * time.Millisecond, Limit: 5})
		assert.Equal(t, "2", h["Retry-After"])
	})

	t.Run("retry-after is never below one second", func(t *testing.T) {
		h := HeadersFor(Verdict{Allowed: false, RetryAfter: 0, Limit: 5})
		assert.Equal(t, "1", h["Retry-After"])
	})
}

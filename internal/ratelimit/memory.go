package ratelimit

import (
	"context"
	"sync"
	"time"
)

// memoryEntry is the fixed-window state for one (tier, key). Each entry
// carries its own mutex: checks for the same key serialize, checks for
// different keys never contend.
type memoryEntry struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// MemoryStore is the in-process reference Store. State lives for the
// process lifetime only; restart forgives everyone.
type MemoryStore struct {
	entries sync.Map // key -> *memoryEntry

	// now is injectable for tests
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory counter store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// TryConsume atomically applies the fixed-window algorithm for one key:
// reset the window if it has elapsed, deny at the limit, otherwise
// increment and allow.
func (s *MemoryStore) TryConsume(_ context.Context, key string, cfg TierConfig) (Verdict, error) {
	v, _ := s.entries.LoadOrStore(key, &memoryEntry{})
	entry := v.(*memoryEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := s.now()

	if entry.windowStart.IsZero() || now.Sub(entry.windowStart) >= cfg.Window {
		entry.windowStart = now
		entry.count = 0
	}

	if entry.count >= cfg.Limit {
		retry := entry.windowStart.Add(cfg.Window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Verdict{Allowed: false, Remaining: 0, RetryAfter: retry, Limit: cfg.Limit}, nil
	}

	entry.count++
	return Verdict{
		Allowed:   true,
		Remaining: cfg.Limit - entry.count,
		Limit:     cfg.Limit,
	}, nil
}

// StartCleanup launches a background loop that drops entries whose window
// ended more than maxIdle ago, bounding memory for churning key sets.
// The loop stops when ctx is canceled.
func (s *MemoryStore) StartCleanup(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanup(maxIdle)
			}
		}
	}()
}

func (s *MemoryStore) cleanup(maxIdle time.Duration) {
	cutoff := s.now().Add(-maxIdle)
	s.entries.Range(func(key, v any) bool {
		entry := v.(*memoryEntry)
		entry.mu.Lock()
		stale := entry.windowStart.Before(cutoff)
		entry.mu.Unlock()
		if stale {
			s.entries.Delete(key)
		}
		return true
	})
}

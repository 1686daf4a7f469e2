// Package ratelimit bounds how often an identity may invoke expensive
// operations. The limiter uses a fixed-window counter per (key, tier):
// simple, bounded memory, and accurate enough for the short windows and
// coarse limits this service runs with.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Tier names a rate-limit policy. The set is closed: routes pick a tier
// by cost profile, and an unknown tier is a configuration error rather
// than a runtime condition.
type Tier string

const (
	// TierGenerate guards LLM generation calls, the expensive path
	TierGenerate Tier = "generate"

	// TierGeneral guards the ordinary API surface
	TierGeneral Tier = "general"
)

// TierConfig is the (limit, window) pair for one tier
type TierConfig struct {
	Limit  int
	Window time.Duration
}

// Verdict is the outcome of a single rate-limit check
type Verdict struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	Limit      int
}

// Store is the counter backend. TryConsume must treat the check-and-
// increment as one atomic operation per key, so concurrent callers for
// the same key can never both slip under the limit.
type Store interface {
	TryConsume(ctx context.Context, key string, cfg TierConfig) (Verdict, error)
}

// ErrUnknownTier indicates a route asked for a tier that was never
// configured. This is a programming error surfaced at startup or first
// use, never an expected runtime outcome.
var ErrUnknownTier = errors.New("unknown rate limit tier")

// DefaultTiers returns the production tier set: a strict tier for
// generation calls and a loose one for everything else.
func DefaultTiers() map[Tier]TierConfig {
	return map[Tier]TierConfig{
		TierGenerate: {Limit: 5, Window: time.Minute},
		TierGeneral:  {Limit: 60, Window: time.Minute},
	}
}

// Limiter checks per-identity request budgets against a Store
type Limiter struct {
	store Store
	tiers map[Tier]TierConfig
}

// New creates a limiter over the given store and tier set. The tier set
// is validated up front so misconfiguration fails at startup.
func New(store Store, tiers map[Tier]TierConfig) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("rate limit store is required")
	}
	if len(tiers) == 0 {
		return nil, errors.New("at least one rate limit tier is required")
	}
	for tier, cfg := range tiers {
		if cfg.Limit <= 0 {
			return nil, fmt.Errorf("tier %q: limit must be positive, got %d", tier, cfg.Limit)
		}
		if cfg.Window <= 0 {
			return nil, fmt.Errorf("tier %q: window must be positive, got %s", tier, cfg.Window)
		}
	}
	return &Limiter{store: store, tiers: tiers}, nil
}

// Check consumes one unit of the identity's budget for the tier and
// reports whether the request may proceed.
func (l *Limiter) Check(ctx context.Context, key string, tier Tier) (Verdict, error) {
	cfg, ok := l.tiers[tier]
	if !ok {
		return Verdict{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	// Prefix the key with the tier so the same identity has independent
	// budgets per tier.
	return l.store.TryConsume(ctx, string(tier)+":"+key, cfg)
}

// HeadersFor maps a verdict onto the conventional transport headers.
// It performs no state mutation; callers attach these to the response.
func HeadersFor(v Verdict) map[string]string {
	headers := map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(v.Limit),
		"X-RateLimit-Remaining": strconv.Itoa(v.Remaining),
	}
	if !v.Allowed {
		secs := int(math.Ceil(v.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		headers["Retry-After"] = strconv.Itoa(secs)
	}
	return headers
}

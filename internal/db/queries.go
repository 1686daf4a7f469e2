package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/draftcast-team/draftcast/internal/generator"
	"github.com/draftcast-team/draftcast/internal/ratelimit"
)

// Querier interface represents a database connection or transaction
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Schema is the DDL for the tables this service owns. Applied by
// deployment tooling and by integration tests.
const Schema = `
CREATE TABLE IF NOT EXISTS generation_log (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	user_type TEXT NOT NULL,
	input_prompt TEXT NOT NULL,
	raw_response TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_generation_log_user ON generation_log (user_id, created_at);

CREATE TABLE IF NOT EXISTS rate_limit_counters (
	key TEXT PRIMARY KEY,
	window_start TIMESTAMPTZ NOT NULL,
	count INTEGER NOT NULL CHECK (count >= 0)
);
`

// Queries provides database query methods
type Queries struct {
	db Querier
}

// NewQueries creates a new Queries instance
func NewQueries(db Querier) *Queries {
	return &Queries{db: db}
}

// GetDB returns the underlying database connection
func (q *Queries) GetDB() Querier {
	return q.db
}

// LogGeneration inserts one generation audit record. Implements
// generator.GenerationLogDB.
func (q *Queries) LogGeneration(ctx context.Context, entry *generator.GenerationLog) error {
	query := `
		INSERT INTO generation_log (id, user_id, user_type, input_prompt, raw_response, status, error_message, input_tokens, output_tokens, cost_usd, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := q.db.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.UserID,
		entry.UserType,
		entry.InputPrompt,
		entry.RawResponse,
		entry.Status,
		entry.ErrorMessage,
		entry.InputTokens,
		entry.OutputTokens,
		entry.CostUSD,
		entry.DurationMS,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert generation log: %w", err)
	}
	return nil
}

// CountRecentGenerations returns how many generation attempts a user made
// since the cutoff, for abuse investigation queries.
func (q *Queries) CountRecentGenerations(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM generation_log WHERE user_id = $1 AND created_at >= $2`,
		userID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count generations: %w", err)
	}
	return count, nil
}

// RateLimitStore is a ratelimit.Store backed by the rate_limit_counters
// table. Atomicity comes from a row lock: SELECT ... FOR UPDATE holds the
// key's row for the duration of the transaction, so concurrent checks for
// one key serialize in the database while other keys proceed.
type RateLimitStore struct {
	db *sql.DB

	// now is injectable for tests
	now func() time.Time
}

// NewRateLimitStore creates a Postgres-backed counter store
func NewRateLimitStore(db *sql.DB) *RateLimitStore {
	return &RateLimitStore{db: db, now: time.Now}
}

// TryConsume applies the fixed-window algorithm inside one transaction
func (s *RateLimitStore) TryConsume(ctx context.Context, key string, cfg ratelimit.TierConfig) (ratelimit.Verdict, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ratelimit.Verdict{}, fmt.Errorf("failed to begin rate limit tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now()

	var windowStart time.Time
	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT window_start, count FROM rate_limit_counters WHERE key = $1 FOR UPDATE`,
		key,
	).Scan(&windowStart, &count)

	switch {
	case err == sql.ErrNoRows:
		windowStart = now
		count = 0
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rate_limit_counters (key, window_start, count) VALUES ($1, $2, 0)`,
			key, windowStart,
		); err != nil {
			return ratelimit.Verdict{}, fmt.Errorf("failed to create rate limit counter: %w", err)
		}
	case err != nil:
		return ratelimit.Verdict{}, fmt.Errorf("failed to read rate limit counter: %w", err)
	}

	if now.Sub(windowStart) >= cfg.Window {
		windowStart = now
		count = 0
	}

	verdict := ratelimit.Verdict{Limit: cfg.Limit}

	if count >= cfg.Limit {
		retry := windowStart.Add(cfg.Window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		verdict.RetryAfter = retry
		if err := tx.Commit(); err != nil {
			return ratelimit.Verdict{}, fmt.Errorf("failed to commit rate limit tx: %w", err)
		}
		return verdict, nil
	}

	count++
	if _, err := tx.ExecContext(ctx,
		`UPDATE rate_limit_counters SET window_start = $2, count = $3 WHERE key = $1`,
		key, windowStart, count,
	); err != nil {
		return ratelimit.Verdict{}, fmt.Errorf("failed to update rate limit counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ratelimit.Verdict{}, fmt.Errorf("failed to commit rate limit tx: %w", err)
	}

	verdict.Allowed = true
	verdict.Remaining = cfg.Limit - count
	return verdict, nil
}

// StartPurge runs the TTL sweep until the context is cancelled. Counters
// idle for more than an hour are finished windows for every tier.
func (s *RateLimitStore) StartPurge(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PurgeExpiredCounters(ctx, time.Hour); err != nil && ctx.Err() == nil {
				log.Printf("rate limit counter purge failed: %v", err)
			}
		}
	}
}

// PurgeExpiredCounters deletes counters whose window ended before the
// cutoff, the TTL sweep for the externalized store
func (s *RateLimitStore) PurgeExpiredCounters(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_limit_counters WHERE window_start < $1`,
		s.now().Add(-olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge rate limit counters: %w", err)
	}
	return res.RowsAffected()
}

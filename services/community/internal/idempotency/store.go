// Package idempotency deduplicates client retries of non-idempotent
// requests by their Idempotency-Key.
//
// Primary backend: Redis SET NX with TTL (REDIS_URL).
// Fallback: Postgres INSERT ... ON CONFLICT on processed_requests.
// If neither is available, an in-memory store is used (development only).
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store checks whether a request key has already been seen and marks it.
type Store interface {
	// Check returns true if key was already seen.
	// If not seen, it atomically marks it.
	Check(ctx context.Context, key string) (duplicate bool, err error)
	// Release forgets key so that a failed request can be retried.
	Release(ctx context.Context, key string) error
}

// NewStore creates the best available idempotency store:
// Redis > Postgres > in-memory (dev fallback).
// When isProd is true, in-memory fallback is not allowed and the function
// returns nil with an error.
func NewStore(redisURL string, pool *pgxpool.Pool, ttl time.Duration, isProd bool) (Store, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if redisURL != "" {
		return newRedisStore(redisURL, ttl), nil
	}
	if pool != nil {
		return newPostgresStore(pool, ttl), nil
	}
	if isProd {
		return nil, errors.New("production requires REDIS_URL or DATABASE_URL for idempotency; in-memory store is not allowed")
	}
	return newMemoryStore(ttl), nil
}

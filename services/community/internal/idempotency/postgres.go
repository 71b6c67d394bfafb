package idempotency

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func newPostgresStore(pool *pgxpool.Pool, ttl time.Duration) *postgresStore {
	return &postgresStore{pool: pool, ttl: ttl}
}

// Check uses INSERT ... ON CONFLICT to atomically deduplicate. A row older
// than ttl is treated as expired and claimed again.
// Table `processed_requests` must exist (see migrations).
func (s *postgresStore) Check(ctx context.Context, key string) (bool, error) {
	const q = `INSERT INTO processed_requests (key, created_at)
	           VALUES ($1, now())
	           ON CONFLICT (key) DO UPDATE SET created_at = now()
	           WHERE processed_requests.created_at < now() - make_interval(secs => $2)`

	tag, err := s.pool.Exec(ctx, q, key, s.ttl.Seconds())
	if err != nil {
		return false, err
	}
	// RowsAffected == 0 means a live row already existed (duplicate).
	return tag.RowsAffected() == 0, nil
}

func (s *postgresStore) Release(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM processed_requests WHERE key = $1`, key)
	return err
}

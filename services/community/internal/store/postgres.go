package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres error codes the store maps onto sentinels.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists comments and likes in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by Postgres.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Comments() CommentStore { return pgQueries{q: s.pool} }
func (s *PostgresStore) Likes() LikeLedger      { return pgQueries{q: s.pool} }

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) UserByID(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, `SELECT id, nickname FROM users WHERE id = $1`, id).Scan(&u.ID, &u.Nickname)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return u, err
}

func (s *PostgresStore) PostingExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM postings WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// WithComment runs fn in a transaction holding FOR UPDATE on the comment row,
// so like writers on the same comment serialize.
func (s *PostgresStore) WithComment(ctx context.Context, commentID int64, fn func(ctx context.Context, c Comment, tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `SELECT c.id, c.posting_id, c.user_id, u.nickname, c.content, c.like_count, c.created_at
	           FROM comments c
	           JOIN users u ON u.id = c.user_id
	           WHERE c.id = $1
	           FOR UPDATE OF c`
	c, err := scanComment(tx.QueryRow(ctx, q, commentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("comment %d: %w", commentID, ErrNotFound)
	}
	if err != nil {
		return err
	}

	v := pgQueries{q: tx}
	if err := fn(ctx, c, Tx{Comments: v, Likes: v}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// pgQueries implements CommentStore and LikeLedger over a pool or a tx.
type pgQueries struct {
	q querier
}

const commentColumns = `c.id, c.posting_id, c.user_id, u.nickname, c.content, c.like_count, c.created_at`

func (p pgQueries) Create(ctx context.Context, c Comment) (Comment, error) {
	const q = `WITH ins AS (
	               INSERT INTO comments (posting_id, user_id, content)
	               VALUES ($1, $2, $3)
	               RETURNING id, posting_id, user_id, content, like_count, created_at)
	           SELECT c.id, c.posting_id, c.user_id, u.nickname, c.content, c.like_count, c.created_at
	           FROM ins c
	           JOIN users u ON u.id = c.user_id`
	out, err := scanComment(p.q.QueryRow(ctx, q, c.PostingID, c.UserID, c.Content))
	if isPgCode(err, pgForeignKeyViolation) {
		return Comment{}, fmt.Errorf("posting %d or user %d: %w", c.PostingID, c.UserID, ErrNotFound)
	}
	return out, err
}

func (p pgQueries) Get(ctx context.Context, id int64) (Comment, error) {
	q := `SELECT ` + commentColumns + `
	      FROM comments c
	      JOIN users u ON u.id = c.user_id
	      WHERE c.id = $1`
	c, err := scanComment(p.q.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, fmt.Errorf("comment %d: %w", id, ErrNotFound)
	}
	return c, err
}

func (p pgQueries) ListByPosting(ctx context.Context, postingID int64) ([]Comment, error) {
	q := `SELECT ` + commentColumns + `
	      FROM comments c
	      JOIN users u ON u.id = c.user_id
	      WHERE c.posting_id = $1
	      ORDER BY c.created_at ASC, c.id ASC`
	rows, err := p.q.Query(ctx, q, postingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p pgQueries) SetLikeCount(ctx context.Context, commentID int64, n int) error {
	tag, err := p.q.Exec(ctx, `UPDATE comments SET like_count = $1 WHERE id = $2`, n, commentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("comment %d: %w", commentID, ErrNotFound)
	}
	return nil
}

func (p pgQueries) Exists(ctx context.Context, userID, commentID int64) (bool, error) {
	var exists bool
	err := p.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM comment_likes WHERE user_id = $1 AND comment_id = $2)`,
		userID, commentID).Scan(&exists)
	return exists, err
}

func (p pgQueries) LikedBy(ctx context.Context, userID int64, commentIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(commentIDs))
	if len(commentIDs) == 0 {
		return out, nil
	}
	rows, err := p.q.Query(ctx,
		`SELECT comment_id FROM comment_likes WHERE user_id = $1 AND comment_id = ANY($2)`,
		userID, commentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (p pgQueries) Insert(ctx context.Context, userID, commentID int64) error {
	_, err := p.q.Exec(ctx,
		`INSERT INTO comment_likes (user_id, comment_id) VALUES ($1, $2)`,
		userID, commentID)
	switch {
	case isPgCode(err, pgUniqueViolation):
		return ErrDuplicateLike
	case isPgCode(err, pgForeignKeyViolation):
		return fmt.Errorf("user %d or comment %d: %w", userID, commentID, ErrNotFound)
	}
	return err
}

func (p pgQueries) Delete(ctx context.Context, userID, commentID int64) error {
	tag, err := p.q.Exec(ctx,
		`DELETE FROM comment_likes WHERE user_id = $1 AND comment_id = $2`,
		userID, commentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLikeNotFound
	}
	return nil
}

func (p pgQueries) Count(ctx context.Context, commentID int64) (int, error) {
	var n int
	err := p.q.QueryRow(ctx, `SELECT count(*) FROM comment_likes WHERE comment_id = $1`, commentID).Scan(&n)
	return n, err
}

func scanComment(row pgx.Row) (Comment, error) {
	var c Comment
	err := row.Scan(&c.ID, &c.PostingID, &c.UserID, &c.Nickname, &c.Content, &c.LikeCount, &c.CreatedAt)
	return c, err
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// Package store persists comments, like facts and the read-only user and
// posting directory the community service validates against.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors
var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateLike = errors.New("comment already liked by user")
	ErrLikeNotFound  = errors.New("comment not liked by user")
)

// User is the slice of a user account the comment core needs.
type User struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
}

// Comment represents a single comment row. Nickname is filled from the
// author's user row on reads.
type Comment struct {
	ID        int64     `json:"id"`
	PostingID int64     `json:"posting_id"`
	UserID    int64     `json:"user_id"`
	Nickname  string    `json:"nickname,omitempty"`
	Content   string    `json:"content"`
	LikeCount int       `json:"like_count"`
	CreatedAt time.Time `json:"created_at"`
}

// CommentStore defines the contract for comment persistence.
// ListByPosting returns comments in insertion order.
type CommentStore interface {
	Create(ctx context.Context, c Comment) (Comment, error)
	Get(ctx context.Context, id int64) (Comment, error)
	ListByPosting(ctx context.Context, postingID int64) ([]Comment, error)
	SetLikeCount(ctx context.Context, commentID int64, n int) error
}

// LikeLedger stores (user, comment) like facts, at most one per pair.
type LikeLedger interface {
	Exists(ctx context.Context, userID, commentID int64) (bool, error)
	// LikedBy reports which of commentIDs userID has liked.
	LikedBy(ctx context.Context, userID int64, commentIDs []int64) (map[int64]bool, error)
	// Insert returns ErrDuplicateLike when the pair already exists.
	Insert(ctx context.Context, userID, commentID int64) error
	// Delete returns ErrLikeNotFound when the pair does not exist.
	Delete(ctx context.Context, userID, commentID int64) error
	Count(ctx context.Context, commentID int64) (int, error)
}

// Directory looks up users and postings owned by other subsystems.
type Directory interface {
	UserByID(ctx context.Context, id int64) (User, error)
	PostingExists(ctx context.Context, id int64) (bool, error)
}

// Tx is bound to a unit of work that holds the lock on one comment row.
type Tx struct {
	Comments CommentStore
	Likes    LikeLedger
}

// Store is the full persistence surface of the community service.
type Store interface {
	Directory
	Comments() CommentStore
	Likes() LikeLedger
	// WithComment locks commentID, passes its current row to fn and commits
	// every write made through tx iff fn returns nil. It returns ErrNotFound
	// without calling fn when the comment does not exist.
	WithComment(ctx context.Context, commentID int64, fn func(ctx context.Context, c Comment, tx Tx) error) error
	Ping(ctx context.Context) error
}

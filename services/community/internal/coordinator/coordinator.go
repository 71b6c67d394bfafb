// Package coordinator creates comments, toggles likes and builds comment
// listings while keeping each comment's cached like_count equal to the
// number of like facts that reference it.
package coordinator

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/likelion/yourside/internal/platform/events"
	"github.com/likelion/yourside/services/community/internal/store"
)

// MaxContentLength is the longest comment accepted, in runes.
const MaxContentLength = 1000

const dateLayout = "2006-01-02"

// EventPublisher receives fire-and-forget notifications after commits.
type EventPublisher interface {
	Publish(subject, eventName string, userID int64, props map[string]any)
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, string, int64, map[string]any) {}

// CreateCommentRequest is the input of CreateComment. UserID is a pointer so
// that an absent id can be told apart from id 0.
type CreateCommentRequest struct {
	UserID  *int64 `json:"user_id"`
	Content string `json:"content"`
}

// LikeRequest is the input of AddLike and RemoveLike.
type LikeRequest struct {
	UserID    *int64 `json:"user_id"`
	CommentID *int64 `json:"comment_id"`
}

// CommentSummary is one row of a comment listing.
type CommentSummary struct {
	CommentID   int64  `json:"comment_id"`
	Nickname    string `json:"nickname"`
	CreatedDate string `json:"created_date"`
	Content     string `json:"content"`
	IsLiked     bool   `json:"is_liked"`
	LikeCount   int    `json:"like_count"`
}

// CommentList is the result of ListComments. Empty marks the "no comments
// yet" case, which is a success.
type CommentList struct {
	Comments []CommentSummary `json:"comments"`
	Empty    bool             `json:"-"`
}

// Recount reports a like_count repair.
type Recount struct {
	CommentID int64 `json:"comment_id"`
	Before    int   `json:"before"`
	After     int   `json:"after"`
}

type Coordinator struct {
	store  store.Store
	events EventPublisher
	log    *zap.Logger
}

func New(st store.Store, pub EventPublisher, log *zap.Logger) *Coordinator {
	if pub == nil {
		pub = noopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{store: st, events: pub, log: log.With(zap.String("component", "coordinator"))}
}

// CreateComment validates the author and the posting, then stores a new
// comment with like_count 0.
func (c *Coordinator) CreateComment(ctx context.Context, postingID int64, req CreateCommentRequest) (store.Comment, error) {
	if req.UserID == nil {
		return store.Comment{}, badRequest(CodeMissingUserID, "user_id is required")
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return store.Comment{}, badRequest(CodeEmptyContent, "content must not be empty")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return store.Comment{}, badRequest(CodeContentTooLong, "content is too long")
	}

	userID := *req.UserID
	if err := c.requireUser(ctx, userID); err != nil {
		return store.Comment{}, err
	}
	ok, err := c.store.PostingExists(ctx, postingID)
	if err != nil {
		return store.Comment{}, c.internal("create comment: posting lookup", err, zap.Int64("posting_id", postingID))
	}
	if !ok {
		return store.Comment{}, notFound(CodePostingNotFound, "posting was deleted or does not exist", nil)
	}

	created, err := c.store.Comments().Create(ctx, store.Comment{
		PostingID: postingID,
		UserID:    userID,
		Content:   content,
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.Comment{}, notFound(CodePostingNotFound, "posting was deleted or does not exist", err)
	}
	if err != nil {
		return store.Comment{}, c.internal("create comment", err, zap.Int64("posting_id", postingID), zap.Int64("user_id", userID))
	}

	c.events.Publish(events.SubjectCommentCreated, "comment_created", userID, map[string]any{
		"comment_id": created.ID,
		"posting_id": postingID,
	})
	return created, nil
}

// ListComments returns the comments of a posting in storage order. The
// posting must exist, even when it has no comments. IsLiked is computed for
// viewerID; a nil viewer sees every comment as not liked.
func (c *Coordinator) ListComments(ctx context.Context, postingID int64, viewerID *int64) (CommentList, error) {
	ok, err := c.store.PostingExists(ctx, postingID)
	if err != nil {
		return CommentList{}, c.internal("list comments: posting lookup", err, zap.Int64("posting_id", postingID))
	}
	if !ok {
		return CommentList{}, notFound(CodePostingNotFound, "posting does not exist", nil)
	}

	comments, err := c.store.Comments().ListByPosting(ctx, postingID)
	if err != nil {
		return CommentList{}, c.internal("list comments", err, zap.Int64("posting_id", postingID))
	}
	if len(comments) == 0 {
		return CommentList{Comments: []CommentSummary{}, Empty: true}, nil
	}

	liked := map[int64]bool{}
	if viewerID != nil {
		ids := make([]int64, len(comments))
		for i, cm := range comments {
			ids[i] = cm.ID
		}
		liked, err = c.store.Likes().LikedBy(ctx, *viewerID, ids)
		if err != nil {
			return CommentList{}, c.internal("list comments: liked by", err, zap.Int64("posting_id", postingID))
		}
	}

	out := make([]CommentSummary, len(comments))
	for i, cm := range comments {
		out[i] = CommentSummary{
			CommentID:   cm.ID,
			Nickname:    cm.Nickname,
			CreatedDate: cm.CreatedAt.Format(dateLayout),
			Content:     cm.Content,
			IsLiked:     liked[cm.ID],
			LikeCount:   cm.LikeCount,
		}
	}
	return CommentList{Comments: out}, nil
}

// AddLike records that the user likes the comment and increments the cached
// counter in the same transaction. Liking twice is a Conflict.
func (c *Coordinator) AddLike(ctx context.Context, req LikeRequest) error {
	userID, commentID, err := c.validateLike(ctx, req)
	if err != nil {
		return err
	}

	err = c.store.WithComment(ctx, commentID, func(ctx context.Context, cm store.Comment, tx store.Tx) error {
		exists, err := tx.Likes.Exists(ctx, userID, commentID)
		if err != nil {
			return err
		}
		if exists {
			return conflict(CodeAlreadyLiked, "comment already liked", nil)
		}
		if err := tx.Likes.Insert(ctx, userID, commentID); err != nil {
			return err
		}
		return tx.Comments.SetLikeCount(ctx, commentID, cm.LikeCount+1)
	})
	if err != nil {
		return c.likeTxError("add like", err, userID, commentID)
	}

	c.events.Publish(events.SubjectCommentLiked, "comment_liked", userID, map[string]any{"comment_id": commentID})
	return nil
}

// RemoveLike deletes the user's like fact and decrements the cached counter
// in the same transaction. Removing a like that does not exist is NotFound.
func (c *Coordinator) RemoveLike(ctx context.Context, req LikeRequest) error {
	userID, commentID, err := c.validateLike(ctx, req)
	if err != nil {
		return err
	}

	err = c.store.WithComment(ctx, commentID, func(ctx context.Context, cm store.Comment, tx store.Tx) error {
		exists, err := tx.Likes.Exists(ctx, userID, commentID)
		if err != nil {
			return err
		}
		if !exists {
			return notFound(CodeLikeNotFound, "comment was never liked", nil)
		}
		if err := tx.Likes.Delete(ctx, userID, commentID); err != nil {
			return err
		}
		next := cm.LikeCount - 1
		if next < 0 {
			c.log.Error("like_count would go negative, clamping to 0",
				zap.Int64("comment_id", commentID), zap.Int("like_count", cm.LikeCount))
			next = 0
		}
		return tx.Comments.SetLikeCount(ctx, commentID, next)
	})
	if err != nil {
		return c.likeTxError("remove like", err, userID, commentID)
	}

	c.events.Publish(events.SubjectCommentUnliked, "comment_unliked", userID, map[string]any{"comment_id": commentID})
	return nil
}

// RecountLikes overwrites the cached counter with the ledger count.
func (c *Coordinator) RecountLikes(ctx context.Context, commentID int64) (Recount, error) {
	out := Recount{CommentID: commentID}
	err := c.store.WithComment(ctx, commentID, func(ctx context.Context, cm store.Comment, tx store.Tx) error {
		n, err := tx.Likes.Count(ctx, commentID)
		if err != nil {
			return err
		}
		out.Before, out.After = cm.LikeCount, n
		if n == cm.LikeCount {
			return nil
		}
		return tx.Comments.SetLikeCount(ctx, commentID, n)
	})
	if errors.Is(err, store.ErrNotFound) {
		return Recount{}, notFound(CodeCommentNotFound, "comment does not exist", err)
	}
	if err != nil {
		return Recount{}, c.internal("recount likes", err, zap.Int64("comment_id", commentID))
	}
	if out.Before != out.After {
		c.log.Warn("like_count repaired",
			zap.Int64("comment_id", commentID), zap.Int("before", out.Before), zap.Int("after", out.After))
	}
	return out, nil
}

// validateLike runs the checks shared by AddLike and RemoveLike: both ids
// present, comment exists, user exists.
func (c *Coordinator) validateLike(ctx context.Context, req LikeRequest) (int64, int64, error) {
	if req.UserID == nil || req.CommentID == nil {
		return 0, 0, badRequest(CodeMissingIDs, "user_id and comment_id are required")
	}
	userID, commentID := *req.UserID, *req.CommentID

	_, err := c.store.Comments().Get(ctx, commentID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, 0, notFound(CodeCommentNotFound, "comment does not exist", err)
	}
	if err != nil {
		return 0, 0, c.internal("like: comment lookup", err, zap.Int64("comment_id", commentID))
	}
	if err := c.requireUser(ctx, userID); err != nil {
		return 0, 0, err
	}
	return userID, commentID, nil
}

func (c *Coordinator) requireUser(ctx context.Context, userID int64) error {
	_, err := c.store.UserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound(CodeUserNotFound, "user does not exist", err)
	}
	if err != nil {
		return c.internal("user lookup", err, zap.Int64("user_id", userID))
	}
	return nil
}

// likeTxError maps an error escaping WithComment onto an *Error.
func (c *Coordinator) likeTxError(op string, err error, userID, commentID int64) error {
	var ce *Error
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, store.ErrDuplicateLike):
		return conflict(CodeAlreadyLiked, "comment already liked", err)
	case errors.Is(err, store.ErrLikeNotFound):
		return notFound(CodeLikeNotFound, "comment was never liked", err)
	case errors.Is(err, store.ErrNotFound):
		return notFound(CodeCommentNotFound, "comment does not exist", err)
	}
	return c.internal(op, err, zap.Int64("user_id", userID), zap.Int64("comment_id", commentID))
}

func (c *Coordinator) internal(op string, err error, fields ...zap.Field) *Error {
	c.log.Error(op, append(fields, zap.Error(err))...)
	return internal(err)
}

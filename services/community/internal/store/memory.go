package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type likeKey struct {
	userID    int64
	commentID int64
}

// InMemoryStore is a development-only in-memory implementation.
// One mutex guards everything, so WithComment serializes all writers.
type InMemoryStore struct {
	mu       sync.Mutex
	users    map[int64]User
	postings map[int64]struct{}
	comments map[int64]Comment
	order    []int64 // comment ids in insertion order
	likes    map[likeKey]time.Time
	nextID   int64
	now      func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:    make(map[int64]User),
		postings: make(map[int64]struct{}),
		comments: make(map[int64]Comment),
		likes:    make(map[likeKey]time.Time),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PutUser registers a user in the directory.
func (s *InMemoryStore) PutUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutPosting registers a posting id in the directory.
func (s *InMemoryStore) PutPosting(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postings[id] = struct{}{}
}

func (s *InMemoryStore) Comments() CommentStore { return memView{s: s} }
func (s *InMemoryStore) Likes() LikeLedger      { return memView{s: s} }
func (s *InMemoryStore) Ping(context.Context) error {
	return nil
}

func (s *InMemoryStore) UserByID(_ context.Context, id int64) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return u, nil
}

func (s *InMemoryStore) PostingExists(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.postings[id]
	return ok, nil
}

func (s *InMemoryStore) WithComment(ctx context.Context, commentID int64, fn func(ctx context.Context, c Comment, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[commentID]
	if !ok {
		return fmt.Errorf("comment %d: %w", commentID, ErrNotFound)
	}
	c.Nickname = s.users[c.UserID].Nickname

	// Snapshot what a like transaction may touch so a failed fn leaves no trace.
	saved := s.comments[commentID]
	savedLikes := make(map[likeKey]time.Time)
	for k, at := range s.likes {
		if k.commentID == commentID {
			savedLikes[k] = at
		}
	}

	v := memView{s: s, held: true}
	if err := fn(ctx, c, Tx{Comments: v, Likes: v}); err != nil {
		s.comments[commentID] = saved
		for k := range s.likes {
			if k.commentID == commentID {
				delete(s.likes, k)
			}
		}
		for k, at := range savedLikes {
			s.likes[k] = at
		}
		return err
	}
	return nil
}

// memView implements CommentStore and LikeLedger. Inside WithComment held is
// true and the store mutex is already owned by the caller.
type memView struct {
	s    *InMemoryStore
	held bool
}

func (v memView) lock() func() {
	if v.held {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

func (v memView) Create(_ context.Context, c Comment) (Comment, error) {
	defer v.lock()()
	s := v.s

	if _, ok := s.postings[c.PostingID]; !ok {
		return Comment{}, fmt.Errorf("posting %d: %w", c.PostingID, ErrNotFound)
	}
	u, ok := s.users[c.UserID]
	if !ok {
		return Comment{}, fmt.Errorf("user %d: %w", c.UserID, ErrNotFound)
	}
	s.nextID++
	c.ID = s.nextID
	c.CreatedAt = s.now()
	c.LikeCount = 0
	c.Nickname = ""
	s.comments[c.ID] = c
	s.order = append(s.order, c.ID)

	c.Nickname = u.Nickname
	return c, nil
}

func (v memView) Get(_ context.Context, id int64) (Comment, error) {
	defer v.lock()()
	c, ok := v.s.comments[id]
	if !ok {
		return Comment{}, fmt.Errorf("comment %d: %w", id, ErrNotFound)
	}
	c.Nickname = v.s.users[c.UserID].Nickname
	return c, nil
}

func (v memView) ListByPosting(_ context.Context, postingID int64) ([]Comment, error) {
	defer v.lock()()
	out := []Comment{}
	for _, id := range v.s.order {
		c := v.s.comments[id]
		if c.PostingID != postingID {
			continue
		}
		c.Nickname = v.s.users[c.UserID].Nickname
		out = append(out, c)
	}
	return out, nil
}

func (v memView) SetLikeCount(_ context.Context, commentID int64, n int) error {
	defer v.lock()()
	c, ok := v.s.comments[commentID]
	if !ok {
		return fmt.Errorf("comment %d: %w", commentID, ErrNotFound)
	}
	if n < 0 {
		return fmt.Errorf("comment %d: negative like count %d", commentID, n)
	}
	c.LikeCount = n
	v.s.comments[commentID] = c
	return nil
}

func (v memView) Exists(_ context.Context, userID, commentID int64) (bool, error) {
	defer v.lock()()
	_, ok := v.s.likes[likeKey{userID: userID, commentID: commentID}]
	return ok, nil
}

func (v memView) LikedBy(_ context.Context, userID int64, commentIDs []int64) (map[int64]bool, error) {
	defer v.lock()()
	out := make(map[int64]bool, len(commentIDs))
	for _, id := range commentIDs {
		if _, ok := v.s.likes[likeKey{userID: userID, commentID: id}]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (v memView) Insert(_ context.Context, userID, commentID int64) error {
	defer v.lock()()
	if _, ok := v.s.comments[commentID]; !ok {
		return fmt.Errorf("comment %d: %w", commentID, ErrNotFound)
	}
	if _, ok := v.s.users[userID]; !ok {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	k := likeKey{userID: userID, commentID: commentID}
	if _, ok := v.s.likes[k]; ok {
		return ErrDuplicateLike
	}
	v.s.likes[k] = v.s.now()
	return nil
}

func (v memView) Delete(_ context.Context, userID, commentID int64) error {
	defer v.lock()()
	k := likeKey{userID: userID, commentID: commentID}
	if _, ok := v.s.likes[k]; !ok {
		return ErrLikeNotFound
	}
	delete(v.s.likes, k)
	return nil
}

func (v memView) Count(_ context.Context, commentID int64) (int, error) {
	defer v.lock()()
	n := 0
	for k := range v.s.likes {
		if k.commentID == commentID {
			n++
		}
	}
	return n, nil
}

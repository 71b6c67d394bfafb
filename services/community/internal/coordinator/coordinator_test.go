package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/likelion/yourside/internal/platform/events"
	"github.com/likelion/yourside/services/community/internal/store"
)

func ptr(v int64) *int64 { return &v }

type recordedEvent struct {
	subject string
	userID  int64
	props   map[string]any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(subject, _ string, userID int64, props map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{subject: subject, userID: userID, props: props})
}

func (p *recordingPublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.subject
	}
	return out
}

// fixture: posting P1=1, users U1=1 (alice), U2=2 (bob), comment C1 by U1.
type fixture struct {
	st  *store.InMemoryStore
	pub *recordingPublisher
	co  *Coordinator
	c1  store.Comment
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := store.NewInMemoryStore()
	st.PutUser(store.User{ID: 1, Nickname: "alice"})
	st.PutUser(store.User{ID: 2, Nickname: "bob"})
	st.PutPosting(1)
	pub := &recordingPublisher{}
	co := New(st, pub, zap.NewNop())

	c1, err := co.CreateComment(context.Background(), 1, CreateCommentRequest{UserID: ptr(1), Content: "first!"})
	if err != nil {
		t.Fatalf("seed comment: %v", err)
	}
	return fixture{st: st, pub: pub, co: co, c1: c1}
}

func (f fixture) likeCount(t *testing.T, commentID int64) int {
	t.Helper()
	c, err := f.st.Comments().Get(context.Background(), commentID)
	if err != nil {
		t.Fatalf("get comment: %v", err)
	}
	return c.LikeCount
}

func (f fixture) factCount(t *testing.T, commentID int64) int {
	t.Helper()
	n, err := f.st.Likes().Count(context.Background(), commentID)
	if err != nil {
		t.Fatalf("count likes: %v", err)
	}
	return n
}

func assertKind(t *testing.T, err error, want Kind, code string) {
	t.Helper()
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *Error, got %T (%v)", err, err)
	}
	if ce.Kind != want || ce.Code != code {
		t.Fatalf("expected %s/%s, got %s/%s", want, code, ce.Kind, ce.Code)
	}
}

func TestCreateComment(t *testing.T) {
	f := newFixture(t)

	if f.c1.LikeCount != 0 {
		t.Fatalf("expected like count 0, got %d", f.c1.LikeCount)
	}
	if f.c1.Content != "first!" || f.c1.UserID != 1 || f.c1.PostingID != 1 {
		t.Fatalf("unexpected comment: %+v", f.c1)
	}
	if got := f.pub.subjects(); len(got) != 1 || got[0] != events.SubjectCommentCreated {
		t.Fatalf("expected one created event, got %v", got)
	}
}

func TestCreateComment_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name      string
		postingID int64
		req       CreateCommentRequest
		kind      Kind
		code      string
	}{
		{"missing user id", 1, CreateCommentRequest{Content: "hi"}, KindBadRequest, CodeMissingUserID},
		{"blank content", 1, CreateCommentRequest{UserID: ptr(1), Content: "   "}, KindBadRequest, CodeEmptyContent},
		{"too long", 1, CreateCommentRequest{UserID: ptr(1), Content: strings.Repeat("가", MaxContentLength+1)}, KindBadRequest, CodeContentTooLong},
		{"unknown user", 1, CreateCommentRequest{UserID: ptr(77), Content: "hi"}, KindNotFound, CodeUserNotFound},
		{"unknown posting", 999, CreateCommentRequest{UserID: ptr(1), Content: "hi"}, KindNotFound, CodePostingNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.co.CreateComment(ctx, tc.postingID, tc.req)
			assertKind(t, err, tc.kind, tc.code)
		})
	}

	list, _ := f.st.Comments().ListByPosting(ctx, 999)
	if len(list) != 0 {
		t.Fatalf("expected no comment rows for posting 999, got %d", len(list))
	}
}

func TestCreateComment_MaxLengthAccepted(t *testing.T) {
	f := newFixture(t)
	_, err := f.co.CreateComment(context.Background(), 1, CreateCommentRequest{
		UserID:  ptr(2),
		Content: strings.Repeat("가", MaxContentLength),
	})
	if err != nil {
		t.Fatalf("expected max length content to be accepted: %v", err)
	}
}

func TestAddLike_ScenarioDuplicateRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := LikeRequest{UserID: ptr(2), CommentID: ptr(f.c1.ID)}

	if err := f.co.AddLike(ctx, req); err != nil {
		t.Fatalf("add like: %v", err)
	}
	if got := f.likeCount(t, f.c1.ID); got != 1 {
		t.Fatalf("expected like count 1, got %d", got)
	}
	if ok, _ := f.st.Likes().Exists(ctx, 2, f.c1.ID); !ok {
		t.Fatal("expected like fact (U2, C1)")
	}

	err := f.co.AddLike(ctx, req)
	assertKind(t, err, KindConflict, CodeAlreadyLiked)
	if got := f.likeCount(t, f.c1.ID); got != 1 {
		t.Fatalf("expected like count to stay 1, got %d", got)
	}
	if got := f.factCount(t, f.c1.ID); got != 1 {
		t.Fatalf("expected 1 fact, got %d", got)
	}
}

func TestRemoveLike_ScenarioRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := LikeRequest{UserID: ptr(2), CommentID: ptr(f.c1.ID)}

	if err := f.co.AddLike(ctx, req); err != nil {
		t.Fatalf("add like: %v", err)
	}
	if err := f.co.RemoveLike(ctx, req); err != nil {
		t.Fatalf("remove like: %v", err)
	}
	if got := f.likeCount(t, f.c1.ID); got != 0 {
		t.Fatalf("expected like count 0, got %d", got)
	}
	if ok, _ := f.st.Likes().Exists(ctx, 2, f.c1.ID); ok {
		t.Fatal("expected like fact removed")
	}

	err := f.co.RemoveLike(ctx, req)
	assertKind(t, err, KindNotFound, CodeLikeNotFound)
	if got := f.likeCount(t, f.c1.ID); got != 0 {
		t.Fatalf("expected like count unchanged at 0, got %d", got)
	}

	want := []string{events.SubjectCommentCreated, events.SubjectCommentLiked, events.SubjectCommentUnliked}
	got := f.pub.subjects()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
}

func TestLike_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  LikeRequest
		kind Kind
		code string
	}{
		{"missing user", LikeRequest{CommentID: ptr(f.c1.ID)}, KindBadRequest, CodeMissingIDs},
		{"missing comment", LikeRequest{UserID: ptr(2)}, KindBadRequest, CodeMissingIDs},
		{"unknown comment", LikeRequest{UserID: ptr(2), CommentID: ptr(404)}, KindNotFound, CodeCommentNotFound},
		{"unknown user", LikeRequest{UserID: ptr(404), CommentID: ptr(f.c1.ID)}, KindNotFound, CodeUserNotFound},
	}
	for _, tc := range cases {
		t.Run("add/"+tc.name, func(t *testing.T) {
			assertKind(t, f.co.AddLike(ctx, tc.req), tc.kind, tc.code)
		})
		t.Run("remove/"+tc.name, func(t *testing.T) {
			assertKind(t, f.co.RemoveLike(ctx, tc.req), tc.kind, tc.code)
		})
	}
	if got := f.likeCount(t, f.c1.ID); got != 0 {
		t.Fatalf("validation failures must not mutate, like count %d", got)
	}
}

func TestListComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c2, err := f.co.CreateComment(ctx, 1, CreateCommentRequest{UserID: ptr(2), Content: "second"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// U1 likes only C2; U2 likes only C1.
	if err := f.co.AddLike(ctx, LikeRequest{UserID: ptr(1), CommentID: ptr(c2.ID)}); err != nil {
		t.Fatalf("like: %v", err)
	}
	if err := f.co.AddLike(ctx, LikeRequest{UserID: ptr(2), CommentID: ptr(f.c1.ID)}); err != nil {
		t.Fatalf("like: %v", err)
	}

	list, err := f.co.ListComments(ctx, 1, ptr(2))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.Empty || len(list.Comments) != 2 {
		t.Fatalf("expected 2 comments, got %+v", list)
	}
	first, second := list.Comments[0], list.Comments[1]
	if first.CommentID != f.c1.ID || second.CommentID != c2.ID {
		t.Fatalf("expected insertion order, got %d, %d", first.CommentID, second.CommentID)
	}
	if first.Nickname != "alice" || second.Nickname != "bob" {
		t.Fatalf("unexpected nicknames %q, %q", first.Nickname, second.Nickname)
	}
	// Viewer U2 liked C1 (authored by U1), not their own C2.
	if !first.IsLiked || second.IsLiked {
		t.Fatalf("expected is_liked per viewer, got %v, %v", first.IsLiked, second.IsLiked)
	}
	if first.LikeCount != 1 || second.LikeCount != 1 {
		t.Fatalf("unexpected like counts %d, %d", first.LikeCount, second.LikeCount)
	}
	if first.CreatedDate != f.c1.CreatedAt.Format("2006-01-02") {
		t.Fatalf("unexpected created date %q", first.CreatedDate)
	}
}

func TestListComments_AnonymousViewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.co.AddLike(ctx, LikeRequest{UserID: ptr(1), CommentID: ptr(f.c1.ID)}); err != nil {
		t.Fatalf("like: %v", err)
	}
	list, err := f.co.ListComments(ctx, 1, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.Comments[0].IsLiked {
		t.Fatal("anonymous viewer must not see is_liked")
	}
	if list.Comments[0].LikeCount != 1 {
		t.Fatalf("expected like count 1, got %d", list.Comments[0].LikeCount)
	}
}

func TestListComments_EmptyAndMissingPosting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.st.PutPosting(2)

	list, err := f.co.ListComments(ctx, 2, nil)
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if !list.Empty || list.Comments == nil || len(list.Comments) != 0 {
		t.Fatalf("expected empty marker with non-nil slice, got %+v", list)
	}

	// Referential integrity is checked before emptiness.
	_, err = f.co.ListComments(ctx, 999, nil)
	assertKind(t, err, KindNotFound, CodePostingNotFound)
}

func TestRecountLikes_RepairsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.co.AddLike(ctx, LikeRequest{UserID: ptr(2), CommentID: ptr(f.c1.ID)}); err != nil {
		t.Fatalf("like: %v", err)
	}
	// Simulate a skewed counter written outside the coordinator.
	if err := f.st.Comments().SetLikeCount(ctx, f.c1.ID, 5); err != nil {
		t.Fatalf("skew: %v", err)
	}

	rc, err := f.co.RecountLikes(ctx, f.c1.ID)
	if err != nil {
		t.Fatalf("recount: %v", err)
	}
	if rc.Before != 5 || rc.After != 1 {
		t.Fatalf("unexpected recount %+v", rc)
	}
	if got := f.likeCount(t, f.c1.ID); got != 1 {
		t.Fatalf("expected repaired count 1, got %d", got)
	}

	_, err = f.co.RecountLikes(ctx, 404)
	assertKind(t, err, KindNotFound, CodeCommentNotFound)
}

func TestRemoveLike_ClampsNegativeCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// A fact without the matching increment: counter is already skewed to 0.
	if err := f.st.Likes().Insert(ctx, 2, f.c1.ID); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := f.co.RemoveLike(ctx, LikeRequest{UserID: ptr(2), CommentID: ptr(f.c1.ID)}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := f.likeCount(t, f.c1.ID); got != 0 {
		t.Fatalf("expected clamped count 0, got %d", got)
	}
}

func TestLikes_ConcurrentCounterMatchesLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const users = 40
	for i := int64(100); i < 100+users; i++ {
		f.st.PutUser(store.User{ID: i, Nickname: "u"})
	}

	var wg sync.WaitGroup
	for i := int64(100); i < 100+users; i++ {
		for rep := 0; rep < 3; rep++ {
			wg.Add(1)
			go func(uid int64) {
				defer wg.Done()
				_ = f.co.AddLike(ctx, LikeRequest{UserID: ptr(uid), CommentID: ptr(f.c1.ID)})
			}(i)
		}
	}
	wg.Wait()

	if got, facts := f.likeCount(t, f.c1.ID), f.factCount(t, f.c1.ID); got != users || facts != users {
		t.Fatalf("expected %d likes, got count=%d facts=%d", users, got, facts)
	}

	for i := int64(100); i < 100+users; i += 2 {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			_ = f.co.RemoveLike(ctx, LikeRequest{UserID: ptr(uid), CommentID: ptr(f.c1.ID)})
		}(i)
	}
	wg.Wait()

	if got, facts := f.likeCount(t, f.c1.ID), f.factCount(t, f.c1.ID); got != facts || got != users/2 {
		t.Fatalf("expected %d likes, got count=%d facts=%d", users/2, got, facts)
	}
}

// failingStore makes every directory lookup fail.
type failingStore struct {
	*store.InMemoryStore
}

func (failingStore) PostingExists(context.Context, int64) (bool, error) {
	return false, errors.New("connection reset")
}

func TestInternalErrorsAreClassified(t *testing.T) {
	st := store.NewInMemoryStore()
	st.PutUser(store.User{ID: 1, Nickname: "alice"})
	co := New(failingStore{st}, nil, nil)

	_, err := co.ListComments(context.Background(), 1, nil)
	if KindOf(err) != KindInternal {
		t.Fatalf("expected internal, got %v", err)
	}
	_, err = co.CreateComment(context.Background(), 1, CreateCommentRequest{UserID: ptr(1), Content: "x"})
	if KindOf(err) != KindInternal {
		t.Fatalf("expected internal, got %v", err)
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatal("plain errors are internal")
	}
}

// Package worker runs background consumers of community events.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/likelion/yourside/internal/platform/events"
	"github.com/likelion/yourside/services/community/internal/store"
)

const (
	auditSubject   = "community.comments.*"
	auditDurable   = "community_like_audit"
	defaultBatch   = 100
	defaultMaxWait = 2 * time.Second
)

// errBadEvent marks payloads that can never be processed.
var errBadEvent = errors.New("malformed event")

// Drift is the outcome of auditing one comment.
type Drift struct {
	CommentID int64
	LikeCount int
	Ledger    int
}

// Consistent reports whether the cached counter matches the ledger.
func (d Drift) Consistent() bool { return d.LikeCount == d.Ledger }

// LikeAuditConsumer reads comment events and checks that the comment's
// like_count still equals its number of like facts. It only reports drift;
// repairs go through the recount endpoint.
type LikeAuditConsumer struct {
	Store     store.Store
	Log       *zap.Logger
	BatchSize int
	MaxWait   time.Duration
}

// Run pulls events from JetStream until ctx is cancelled.
func (c *LikeAuditConsumer) Run(ctx context.Context, js nats.JetStreamContext) error {
	log := c.logger()
	batch, maxWait := c.BatchSize, c.MaxWait
	if batch <= 0 {
		batch = defaultBatch
	}
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}

	sub, err := js.PullSubscribe(auditSubject, auditDurable, nats.BindStream(events.StreamName))
	if err != nil {
		return fmt.Errorf("like audit: subscribe: %w", err)
	}
	defer func() { _ = sub.Unsubscribe() }()
	log.Info("like audit consumer started", zap.String("subject", auditSubject))

	for {
		if ctx.Err() != nil {
			return nil
		}
		fctx, cancel := context.WithTimeout(ctx, maxWait)
		msgs, err := sub.Fetch(batch, nats.Context(fctx))
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			log.Warn("fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		for _, m := range msgs {
			c.handle(ctx, m)
		}
	}
}

func (c *LikeAuditConsumer) handle(ctx context.Context, m *nats.Msg) {
	log := c.logger()
	_, err := c.Audit(ctx, m.Data)
	switch {
	case err == nil, errors.Is(err, store.ErrNotFound):
		if err := m.Ack(); err != nil {
			log.Warn("ack failed", zap.Error(err))
		}
	case errors.Is(err, errBadEvent):
		log.Warn("dropping event", zap.String("subject", m.Subject), zap.Error(err))
		_ = m.Term()
	default:
		log.Error("audit failed", zap.String("subject", m.Subject), zap.Error(err))
		_ = m.Nak()
	}
}

// Audit decodes one event and compares the referenced comment's counter with
// the ledger. It reads without taking the comment lock, so a like that lands
// between the reads shows up as a changed counter and the comment is skipped.
// Drift is logged at warn level.
func (c *LikeAuditConsumer) Audit(ctx context.Context, data []byte) (Drift, error) {
	var ev events.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Drift{}, fmt.Errorf("%w: %v", errBadEvent, err)
	}
	commentID, ok := ev.CommentID()
	if !ok {
		return Drift{}, fmt.Errorf("%w: no comment_id in %s", errBadEvent, ev.EventName)
	}

	before, err := c.Store.Comments().Get(ctx, commentID)
	if err != nil {
		return Drift{}, err
	}
	n, err := c.Store.Likes().Count(ctx, commentID)
	if err != nil {
		return Drift{}, err
	}
	after, err := c.Store.Comments().Get(ctx, commentID)
	if err != nil {
		return Drift{}, err
	}
	if after.LikeCount != before.LikeCount {
		// a write committed mid-audit; its own event re-checks the comment
		return Drift{CommentID: commentID, LikeCount: after.LikeCount, Ledger: after.LikeCount}, nil
	}

	d := Drift{CommentID: commentID, LikeCount: before.LikeCount, Ledger: n}
	if !d.Consistent() {
		c.logger().Warn("like_count drift",
			zap.Int64("comment_id", d.CommentID),
			zap.Int("like_count", d.LikeCount),
			zap.Int("ledger", d.Ledger),
			zap.String("event_id", ev.EventID),
		)
	}
	return d, nil
}

func (c *LikeAuditConsumer) logger() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

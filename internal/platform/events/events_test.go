package events

import (
	"encoding/json"
	"testing"
)

func TestPublisher_NilIsNoop(t *testing.T) {
	var p *Publisher
	p.Publish(SubjectCommentLiked, "comment_liked", 1, map[string]any{"comment_id": int64(2)})

	New(nil, nil).Publish(SubjectCommentLiked, "comment_liked", 1, nil)
}

func TestEvent_CommentID(t *testing.T) {
	raw := []byte(`{"event_id":"e1","event_name":"comment_liked","properties":{"comment_id":42}}`)
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	id, ok := ev.CommentID()
	if !ok || id != 42 {
		t.Fatalf("expected 42, got %d (ok=%v)", id, ok)
	}

	ev.Properties["comment_id"] = "17"
	if id, ok := ev.CommentID(); !ok || id != 17 {
		t.Fatalf("expected 17 from string, got %d (ok=%v)", id, ok)
	}

	for _, bad := range []float64{1.5, 1e19, -3} {
		ev.Properties["comment_id"] = bad
		if _, ok := ev.CommentID(); ok {
			t.Fatalf("expected %v to be rejected", bad)
		}
	}

	ev.Properties = nil
	if _, ok := ev.CommentID(); ok {
		t.Fatal("expected missing comment_id to be reported")
	}
}

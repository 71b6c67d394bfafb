package idempotency

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_FirstCallIsNotDuplicate(t *testing.T) {
	s := newMemoryStore(time.Hour)
	dup, err := s.Check(context.Background(), "req_001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dup {
		t.Fatal("first check should not be duplicate")
	}
}

func TestMemoryStore_SecondCallIsDuplicate(t *testing.T) {
	s := newMemoryStore(time.Hour)
	ctx := context.Background()

	_, _ = s.Check(ctx, "req_002")

	dup, err := s.Check(ctx, "req_002")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dup {
		t.Fatal("second check should be duplicate")
	}
}

func TestMemoryStore_DifferentKeysAreIndependent(t *testing.T) {
	s := newMemoryStore(time.Hour)
	ctx := context.Background()

	_, _ = s.Check(ctx, "req_A")

	dup, err := s.Check(ctx, "req_B")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dup {
		t.Fatal("different keys should not collide")
	}
}

func TestMemoryStore_ReleaseAllowsRetry(t *testing.T) {
	s := newMemoryStore(time.Hour)
	ctx := context.Background()

	_, _ = s.Check(ctx, "req_C")
	if err := s.Release(ctx, "req_C"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if dup, _ := s.Check(ctx, "req_C"); dup {
		t.Fatal("released key should be claimable again")
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := newMemoryStore(time.Minute)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	ctx := context.Background()

	_, _ = s.Check(ctx, "req_D")
	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	if dup, _ := s.Check(ctx, "req_D"); dup {
		t.Fatal("expired key should not be a duplicate")
	}
}

func TestNewStore_FallsBackToMemory(t *testing.T) {
	s, err := NewStore("", nil, 0, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.(*memoryStore); !ok {
		t.Fatalf("expected memoryStore when no backend provided, got %T", s)
	}
}

func TestNewStore_PrefersRedis(t *testing.T) {
	s, err := NewStore("redis://localhost:6379/0", nil, time.Hour, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.(*redisStore); !ok {
		t.Fatalf("expected redisStore, got %T", s)
	}
}

func TestNewStore_RejectsMemoryInProd(t *testing.T) {
	s, err := NewStore("", nil, 0, true)
	if err == nil {
		t.Fatalf("expected error in production with no backend, got store %T", s)
	}
	if s != nil {
		t.Fatalf("expected nil store, got %T", s)
	}
}

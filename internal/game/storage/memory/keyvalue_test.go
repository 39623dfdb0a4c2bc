package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dungeontalk/dungeontalk/internal/game/storage"
)

func TestSetIfAbsentClaimsOnce(t *testing.T) {
	kv := NewKeyValue()
	ctx := context.Background()

	ok, err := kv.SetIfAbsentWithTTL(ctx, "lock", "v", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first claim to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = kv.SetIfAbsentWithTTL(ctx, "lock", "v", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second claim to fail, ok=%v err=%v", ok, err)
	}

	if err := kv.Delete(ctx, "lock"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, err = kv.SetIfAbsentWithTTL(ctx, "lock", "v", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected claim after delete to succeed, ok=%v err=%v", ok, err)
	}
}

func TestTTLExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	kv := NewKeyValueWithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := kv.SetWithTTL(ctx, "session", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	now = now.Add(59 * time.Second)
	if ok, _ := kv.Exists(ctx, "session"); !ok {
		t.Fatal("expected key to exist before expiry")
	}

	now = now.Add(2 * time.Second)
	if ok, _ := kv.Exists(ctx, "session"); ok {
		t.Fatal("expected key to expire")
	}
	if _, err := kv.Get(ctx, "session"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}

	// An expired lock key is eligible for re-acquisition.
	if ok, _ := kv.SetIfAbsentWithTTL(ctx, "session", "v", time.Minute); !ok {
		t.Fatal("expected claim after expiry to succeed")
	}
}

func TestExpireRefreshesTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	kv := NewKeyValueWithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := kv.SetWithTTL(ctx, "session", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	now = now.Add(50 * time.Second)
	if err := kv.Expire(ctx, "session", time.Minute); err != nil {
		t.Fatalf("expire: %v", err)
	}

	now = now.Add(50 * time.Second)
	if ok, _ := kv.Exists(ctx, "session"); !ok {
		t.Fatal("expected refreshed key to survive original deadline")
	}

	// Refreshing an absent key is a no-op.
	if err := kv.Expire(ctx, "missing", time.Minute); err != nil {
		t.Fatalf("expire missing: %v", err)
	}
}

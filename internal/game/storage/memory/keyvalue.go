package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dungeontalk/dungeontalk/internal/game/storage"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// KeyValue is an in-memory storage.KeyValue with lazily-enforced TTLs.
// The clock is injectable so tests can drive expiry.
type KeyValue struct {
	mu      sync.Mutex
	entries map[string]entry
	clock   func() time.Time
}

// NewKeyValue creates an empty KeyValue using the wall clock.
func NewKeyValue() *KeyValue {
	return &KeyValue{
		entries: make(map[string]entry),
		clock:   time.Now,
	}
}

// NewKeyValueWithClock creates an empty KeyValue with a custom clock.
func NewKeyValueWithClock(clock func() time.Time) *KeyValue {
	return &KeyValue{
		entries: make(map[string]entry),
		clock:   clock,
	}
}

func (kv *KeyValue) live(key string) (entry, bool) {
	e, ok := kv.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !kv.clock().Before(e.expiresAt) {
		delete(kv.entries, key)
		return entry{}, false
	}
	return e, true
}

// SetWithTTL stores value under key, replacing any existing value.
func (kv *KeyValue) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	kv.entries[key] = entry{value: value, expiresAt: kv.clock().Add(ttl)}
	return nil
}

// SetIfAbsentWithTTL atomically stores value iff key does not exist.
func (kv *KeyValue) SetIfAbsentWithTTL(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if _, ok := kv.live(key); ok {
		return false, nil
	}
	kv.entries[key] = entry{value: value, expiresAt: kv.clock().Add(ttl)}
	return true, nil
}

// Exists reports whether key is present and unexpired.
func (kv *KeyValue) Exists(ctx context.Context, key string) (bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	_, ok := kv.live(key)
	return ok, nil
}

// Get returns the value under key, or storage.ErrNotFound.
func (kv *KeyValue) Get(ctx context.Context, key string) (string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	e, ok := kv.live(key)
	if !ok {
		return "", storage.ErrNotFound
	}
	return e.value, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (kv *KeyValue) Delete(ctx context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	delete(kv.entries, key)
	return nil
}

// Expire resets the TTL of key if it exists.
func (kv *KeyValue) Expire(ctx context.Context, key string, ttl time.Duration) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	e, ok := kv.live(key)
	if !ok {
		return nil
	}
	e.expiresAt = kv.clock().Add(ttl)
	kv.entries[key] = e
	return nil
}

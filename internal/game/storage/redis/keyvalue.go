// Package redis backs the ephemeral session store with Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dungeontalk/dungeontalk/internal/game/storage"
)

// KeyValue is a Redis-backed storage.KeyValue.
type KeyValue struct {
	client *redis.Client
}

// New connects to Redis at the given URL and verifies the connection.
func New(ctx context.Context, redisURL string) (*KeyValue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &KeyValue{client: client}, nil
}

// Close closes the Redis connection.
func (kv *KeyValue) Close() error {
	return kv.client.Close()
}

// Ping checks the Redis connection.
func (kv *KeyValue) Ping(ctx context.Context) error {
	return kv.client.Ping(ctx).Err()
}

// SetWithTTL stores value under key, replacing any existing value.
func (kv *KeyValue) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return kv.client.Set(ctx, key, value, ttl).Err()
}

// SetIfAbsentWithTTL atomically stores value iff key does not exist.
func (kv *KeyValue) SetIfAbsentWithTTL(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return kv.client.SetNX(ctx, key, value, ttl).Result()
}

// Exists reports whether key is present.
func (kv *KeyValue) Exists(ctx context.Context, key string) (bool, error) {
	n, err := kv.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get returns the value under key, or storage.ErrNotFound.
func (kv *KeyValue) Get(ctx context.Context, key string) (string, error) {
	value, err := kv.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (kv *KeyValue) Delete(ctx context.Context, key string) error {
	return kv.client.Del(ctx, key).Err()
}

// Expire resets the TTL of key if it exists.
func (kv *KeyValue) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return kv.client.Expire(ctx, key, ttl).Err()
}

// Client exposes the underlying client for pub/sub consumers.
func (kv *KeyValue) Client() *redis.Client {
	return kv.client
}

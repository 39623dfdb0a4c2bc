// Package storage defines the persistence interfaces for game rooms,
// turn messages, and the ephemeral session key-value store.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dungeontalk/dungeontalk/internal/game/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrVersionConflict indicates a room write lost a concurrent update race.
// Callers should re-read and retry.
var ErrVersionConflict = errors.New("room version conflict")

// RoomStore is the durable store for room aggregates.
type RoomStore interface {
	// PutRoom inserts a new room. The room's Version must be zero; the
	// store persists it at version 1.
	PutRoom(ctx context.Context, room domain.Room) error

	// GetRoom returns a room by ID, or ErrNotFound.
	GetRoom(ctx context.Context, roomID string) (domain.Room, error)

	// UpdateRoom persists a modified room iff the stored version matches
	// room.Version, then bumps the version. Returns ErrVersionConflict on
	// mismatch and ErrNotFound for unknown rooms.
	UpdateRoom(ctx context.Context, room domain.Room) (domain.Room, error)

	// ListAvailableRooms returns rooms a participant may still join.
	ListAvailableRooms(ctx context.Context, limit int) ([]domain.Room, error)

	// ListRoomsByParticipant returns rooms containing the participant.
	ListRoomsByParticipant(ctx context.Context, participantID string) ([]domain.Room, error)

	// ListRoomsInactiveSince returns ACTIVE/PAUSED rooms whose last
	// activity is before the cutoff.
	ListRoomsInactiveSince(ctx context.Context, cutoff time.Time) ([]domain.Room, error)
}

// MessageStore is the durable append-only store for turn messages.
type MessageStore interface {
	// AppendMessage persists a message. When msg.MessageOrder is zero and
	// the type is USER, AI, or SYSTEM, the store assigns max(order)+1 for
	// the (room, turn) atomically with the insert; turn-start, turn-end,
	// and error messages carry their sentinel order explicitly. Returns
	// the stored message.
	AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error)

	// MessagesByTurn returns all messages for (room, turn) ordered by
	// message order ascending.
	MessagesByTurn(ctx context.Context, roomID string, turn int) ([]domain.Message, error)

	// MessagesFromTurn returns all messages with turn >= fromTurn ordered
	// by (turn, order) ascending.
	MessagesFromTurn(ctx context.Context, roomID string, fromTurn int) ([]domain.Message, error)

	// RecentMessages returns a page of the room's messages, newest first.
	RecentMessages(ctx context.Context, roomID string, limit, offset int) ([]domain.Message, error)
}

// KeyValue is the ephemeral session store: TTL-bound keys with an atomic
// set-if-absent primitive. Backed by Redis in production.
type KeyValue interface {
	// SetWithTTL stores value under key with the given TTL, replacing any
	// existing value.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// SetIfAbsentWithTTL atomically stores value iff key does not exist.
	// Returns true when the key was claimed.
	SetIfAbsentWithTTL(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Get returns the value under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Expire resets the TTL of key if it exists.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

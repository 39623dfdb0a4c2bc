// Package memory provides mutex-guarded in-memory implementations of the
// game storage interfaces, for tests and single-process setups.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dungeontalk/dungeontalk/internal/game/domain"
	"github.com/dungeontalk/dungeontalk/internal/game/storage"
)

// RoomStore is an in-memory storage.RoomStore.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]domain.Room
}

// NewRoomStore creates an empty RoomStore.
func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]domain.Room)}
}

func cloneRoom(room domain.Room) domain.Room {
	room.Participants = slices.Clone(room.Participants)
	return room
}

// PutRoom inserts a new room at version 1.
func (s *RoomStore) PutRoom(ctx context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room.Version = 1
	s.rooms[room.ID] = cloneRoom(room)
	return nil
}

// GetRoom returns a room by ID.
func (s *RoomStore) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, storage.ErrNotFound
	}
	return cloneRoom(room), nil
}

// UpdateRoom persists a modified room guarded by its version.
func (s *RoomStore) UpdateRoom(ctx context.Context, room domain.Room) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rooms[room.ID]
	if !ok {
		return domain.Room{}, storage.ErrNotFound
	}
	if current.Version != room.Version {
		return domain.Room{}, storage.ErrVersionConflict
	}

	room.Version++
	s.rooms[room.ID] = cloneRoom(room)
	return room, nil
}

// ListAvailableRooms returns joinable rooms, newest first.
func (s *RoomStore) ListAvailableRooms(ctx context.Context, limit int) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	var rooms []domain.Room
	for _, room := range s.rooms {
		if room.CanJoin() {
			rooms = append(rooms, cloneRoom(room))
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	if len(rooms) > limit {
		rooms = rooms[:limit]
	}
	return rooms, nil
}

// ListRoomsByParticipant returns rooms containing the participant.
func (s *RoomStore) ListRoomsByParticipant(ctx context.Context, participantID string) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rooms []domain.Room
	for _, room := range s.rooms {
		if room.HasParticipant(participantID) {
			rooms = append(rooms, cloneRoom(room))
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms, nil
}

// ListRoomsInactiveSince returns ACTIVE/PAUSED rooms idle past the cutoff.
func (s *RoomStore) ListRoomsInactiveSince(ctx context.Context, cutoff time.Time) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rooms []domain.Room
	for _, room := range s.rooms {
		if room.Status != domain.StatusActive && room.Status != domain.StatusPaused {
			continue
		}
		if room.LastActivity.Before(cutoff) {
			rooms = append(rooms, cloneRoom(room))
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].LastActivity.Before(rooms[j].LastActivity)
	})
	return rooms, nil
}

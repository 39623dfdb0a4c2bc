// Package rooms manages the membership lifecycle of game rooms: creation,
// joining, leaving, and discovery. Filling a room to capacity activates
// the session.
package rooms

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dungeontalk/dungeontalk/internal/game/broadcast"
	"github.com/dungeontalk/dungeontalk/internal/game/domain"
	"github.com/dungeontalk/dungeontalk/internal/game/sequencer"
	"github.com/dungeontalk/dungeontalk/internal/game/storage"
	"github.com/dungeontalk/dungeontalk/internal/platform/errors"
	"github.com/dungeontalk/dungeontalk/internal/platform/id"
)

const maxUpdateAttempts = 3

const defaultListLimit = 50

// Liveness registers a session liveness record when a room activates.
// Satisfied by the coordinator.
type Liveness interface {
	WriteLiveness(ctx context.Context, room domain.Room) error
}

// Service manages room membership.
type Service struct {
	store    storage.RoomStore
	seq      *sequencer.Sequencer
	bcast    broadcast.Broadcaster
	liveness Liveness
	clock    func() time.Time
	newID    func() string
}

// New creates a room Service. A nil broadcaster drops announcements; a nil
// liveness skips session registration on activation.
func New(store storage.RoomStore, seq *sequencer.Sequencer, bcast broadcast.Broadcaster, liveness Liveness) *Service {
	if bcast == nil {
		bcast = broadcast.Discard{}
	}
	return &Service{
		store:    store,
		seq:      seq,
		bcast:    bcast,
		liveness: liveness,
		clock:    time.Now,
		newID:    id.New,
	}
}

// Create validates and persists a new room with the creator as its first
// participant.
func (s *Service) Create(ctx context.Context, input domain.CreateRoomInput) (domain.Room, error) {
	room, err := domain.CreateRoom(input, s.clock, s.newID)
	if err != nil {
		return domain.Room{}, err
	}
	if err := s.store.PutRoom(ctx, room); err != nil {
		return domain.Room{}, errors.Wrap(errors.CodeStoreUnavailable, "persist room", err)
	}

	stored, err := s.Get(ctx, room.ID)
	if err != nil {
		return domain.Room{}, err
	}
	log.Printf("room created room_id=%s game_id=%s capacity=%d", stored.ID, stored.GameID, stored.MaxParticipants)
	return stored, nil
}

// Join adds a participant to a joinable room. Reaching capacity activates
// the session: the room moves to ACTIVE/TURN_INPUT, its liveness record is
// written, and the first turn opens.
func (s *Service) Join(ctx context.Context, roomID, participantID string) (domain.Room, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return domain.Room{}, errors.New(errors.CodeRoomEmptyParticipant, "participant id is required")
	}

	activated := false
	room, err := s.mutate(ctx, roomID, func(room *domain.Room) error {
		if room.HasParticipant(participantID) {
			return errors.WithMetadata(errors.CodeRoomAlreadyJoined, "participant is already in the room",
				map[string]string{"room_id": roomID, "participant_id": participantID})
		}
		if !room.CanJoin() {
			return errors.WithMetadata(errors.CodeRoomCannotJoin, "room is not accepting participants",
				map[string]string{"room_id": roomID, "status": string(room.Status)})
		}
		room.Participants = append(room.Participants, participantID)
		if room.IsFull() {
			room.Status = domain.StatusActive
			room.Phase = domain.PhaseTurnInput
			activated = true
		}
		return nil
	})
	if err != nil {
		return domain.Room{}, err
	}

	s.announce(ctx, room, fmt.Sprintf("%s joined the room.", participantID))
	log.Printf("participant joined room_id=%s participant_id=%s count=%d/%d",
		roomID, participantID, len(room.Participants), room.MaxParticipants)

	if activated {
		s.activate(ctx, room)
	}
	return room, nil
}

// activate registers the new session and opens the first turn. Best
// effort: the durable status flip already happened.
func (s *Service) activate(ctx context.Context, room domain.Room) {
	if s.liveness != nil {
		if err := s.liveness.WriteLiveness(ctx, room); err != nil {
			log.Printf("liveness registration failed room_id=%s err=%v", room.ID, err)
		}
	}
	if s.seq != nil {
		startMsg, err := s.seq.AppendTurnStart(ctx, room.ID, room.CurrentTurn)
		if err != nil {
			log.Printf("opening turn bracket failed room_id=%s err=%v", room.ID, err)
		} else {
			s.bcast.Publish(ctx, room.ID, startMsg)
		}
	}
	log.Printf("room activated room_id=%s turn=%d", room.ID, room.CurrentTurn)
}

// Leave removes a participant. An emptied room completes.
func (s *Service) Leave(ctx context.Context, roomID, participantID string) (domain.Room, error) {
	completed := false
	room, err := s.mutate(ctx, roomID, func(room *domain.Room) error {
		if !room.HasParticipant(participantID) {
			return errors.WithMetadata(errors.CodeRoomNotParticipating, "participant is not in the room",
				map[string]string{"room_id": roomID, "participant_id": participantID})
		}
		remaining := make([]string, 0, len(room.Participants)-1)
		for _, p := range room.Participants {
			if p != participantID {
				remaining = append(remaining, p)
			}
		}
		room.Participants = remaining
		if len(remaining) == 0 {
			room.Status = domain.StatusCompleted
			room.Phase = domain.PhaseGameEnd
			completed = true
		}
		return nil
	})
	if err != nil {
		return domain.Room{}, err
	}

	if !completed {
		s.announce(ctx, room, fmt.Sprintf("%s left the room.", participantID))
	}
	log.Printf("participant left room_id=%s participant_id=%s remaining=%d",
		roomID, participantID, len(room.Participants))
	return room, nil
}

// Get returns a room by ID.
func (s *Service) Get(ctx context.Context, roomID string) (domain.Room, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if stderrors.Is(err, storage.ErrNotFound) {
		return domain.Room{}, errors.WithMetadata(errors.CodeRoomNotFound, "room not found",
			map[string]string{"room_id": roomID})
	}
	if err != nil {
		return domain.Room{}, errors.Wrap(errors.CodeStoreUnavailable, "load room", err)
	}
	return room, nil
}

// ListAvailable returns rooms still accepting participants. A non-positive
// limit uses the default page size.
func (s *Service) ListAvailable(ctx context.Context, limit int) ([]domain.Room, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rooms, err := s.store.ListAvailableRooms(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(errors.CodeStoreUnavailable, "list available rooms", err)
	}
	return rooms, nil
}

// ListByParticipant returns the rooms a participant belongs to.
func (s *Service) ListByParticipant(ctx context.Context, participantID string) ([]domain.Room, error) {
	rooms, err := s.store.ListRoomsByParticipant(ctx, participantID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeStoreUnavailable, "list rooms by participant", err)
	}
	return rooms, nil
}

// announce records a membership change in the turn log and broadcasts it.
// Best effort; membership itself is already durable.
func (s *Service) announce(ctx context.Context, room domain.Room, content string) {
	if s.seq == nil {
		return
	}
	msg, err := s.seq.AppendSystemMessage(ctx, room.ID, room.CurrentTurn, content)
	if err != nil {
		log.Printf("membership announcement failed room_id=%s err=%v", room.ID, err)
		return
	}
	s.bcast.Publish(ctx, room.ID, msg)
}

func (s *Service) mutate(ctx context.Context, roomID string, mutate func(*domain.Room) error) (domain.Room, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		room, err := s.Get(ctx, roomID)
		if err != nil {
			return domain.Room{}, err
		}
		if err := mutate(&room); err != nil {
			return domain.Room{}, err
		}
		room.Touch(s.clock())

		updated, err := s.store.UpdateRoom(ctx, room)
		if stderrors.Is(err, storage.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return domain.Room{}, errors.Wrap(errors.CodeStoreUnavailable, "update room", err)
		}
		return updated, nil
	}
	return domain.Room{}, errors.WithMetadata(errors.CodeRoomVersionConflict,
		"room update lost repeated version races", map[string]string{"room_id": roomID})
}

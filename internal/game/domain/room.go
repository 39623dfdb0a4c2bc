package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/dungeontalk/dungeontalk/internal/platform/errors"
	"github.com/dungeontalk/dungeontalk/internal/platform/id"
)

// Status describes the lifecycle state of a game room.
type Status string

const (
	// StatusCreated indicates the room exists but the session has not started.
	StatusCreated Status = "CREATED"
	// StatusActive indicates a session is in progress.
	StatusActive Status = "ACTIVE"
	// StatusPaused indicates the session is suspended and can be resumed.
	StatusPaused Status = "PAUSED"
	// StatusCompleted indicates the session ended normally. Terminal.
	StatusCompleted Status = "COMPLETED"
	// StatusError indicates the session ended abnormally. Terminal; recovery
	// is a manual operation.
	StatusError Status = "ERROR"
)

// ParseStatus maps a stored string to a Status.
func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusCreated, StatusActive, StatusPaused, StatusCompleted, StatusError:
		return Status(value), true
	}
	return "", false
}

// Phase describes the moment-to-moment turn state of an active session.
type Phase string

const (
	// PhaseWaiting indicates the room has not filled to capacity.
	PhaseWaiting Phase = "WAITING"
	// PhaseTurnInput indicates players may submit messages.
	PhaseTurnInput Phase = "TURN_INPUT"
	// PhaseAIResponse indicates a generation is in flight; player input is
	// blocked. Implies a generation lock is held for the room.
	PhaseAIResponse Phase = "AI_RESPONSE"
	// PhaseGameEnd indicates the session is over. Terminal.
	PhaseGameEnd Phase = "GAME_END"
)

// ParsePhase maps a stored string to a Phase.
func ParsePhase(value string) (Phase, bool) {
	switch Phase(value) {
	case PhaseWaiting, PhaseTurnInput, PhaseAIResponse, PhaseGameEnd:
		return Phase(value), true
	}
	return "", false
}

// Room is the durable aggregate for one game session.
type Room struct {
	ID              string
	GameID          string
	Name            string
	Description     string
	Status          Status
	Phase           Phase
	CurrentTurn     int
	MaxParticipants int
	Participants    []string // insertion order, no duplicates
	Settings        string   // opaque game settings blob
	LastActivity    time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Version supports optimistic concurrency on room writes. Stores reject
	// an update whose version does not match the persisted row.
	Version int64
}

// CreateRoomInput describes the metadata needed to create a room.
type CreateRoomInput struct {
	GameID          string
	Name            string
	Description     string
	CreatorID       string
	MaxParticipants int
	Settings        string
}

// CreateRoom creates a room in CREATED/WAITING with the creator as its
// first participant.
func CreateRoom(input CreateRoomInput, now func() time.Time, newID func() string) (Room, error) {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = id.New
	}

	input.GameID = strings.TrimSpace(input.GameID)
	if input.GameID == "" {
		return Room{}, errors.New(errors.CodeRoomEmptyGameID, "game id is required")
	}
	input.CreatorID = strings.TrimSpace(input.CreatorID)
	if input.CreatorID == "" {
		return Room{}, errors.New(errors.CodeRoomEmptyCreatorID, "creator id is required")
	}
	if input.MaxParticipants < 1 || input.MaxParticipants > MaxParticipantsLimit {
		return Room{}, errors.New(errors.CodeRoomInvalidCapacity, "max participants must be between 1 and 3")
	}

	createdAt := now().UTC()
	return Room{
		ID:              newID(),
		GameID:          input.GameID,
		Name:            strings.TrimSpace(input.Name),
		Description:     strings.TrimSpace(input.Description),
		Status:          StatusCreated,
		Phase:           PhaseWaiting,
		CurrentTurn:     1,
		MaxParticipants: input.MaxParticipants,
		Participants:    []string{input.CreatorID},
		Settings:        input.Settings,
		LastActivity:    createdAt,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}, nil
}

// HasParticipant reports whether a participant is in the room.
func (r *Room) HasParticipant(participantID string) bool {
	return slices.Contains(r.Participants, participantID)
}

// IsFull reports whether the room has reached capacity.
func (r *Room) IsFull() bool {
	return len(r.Participants) >= r.MaxParticipants
}

// CanJoin reports whether a new participant may enter the room.
func (r *Room) CanJoin() bool {
	return r.Status == StatusCreated && !r.IsFull()
}

// AcceptsInput reports whether a player message may be appended.
func (r *Room) AcceptsInput() bool {
	return r.Status == StatusActive && r.Phase == PhaseTurnInput
}

// Touch refreshes the last-activity timestamp.
func (r *Room) Touch(now time.Time) {
	r.LastActivity = now.UTC()
	r.UpdatedAt = now.UTC()
}

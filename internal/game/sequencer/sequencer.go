// Package sequencer appends turn messages with deterministic ordering and
// serves the turn-window reads the oracle prompt is built from.
package sequencer

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/dungeontalk/dungeontalk/internal/game/domain"
	"github.com/dungeontalk/dungeontalk/internal/game/storage"
	"github.com/dungeontalk/dungeontalk/internal/platform/errors"
	"github.com/dungeontalk/dungeontalk/internal/platform/id"
)

const defaultWindowTurns = 5

// Stores groups the sequencer's storage dependencies.
type Stores struct {
	Rooms    storage.RoomStore
	Messages storage.MessageStore
}

// Sequencer writes and reads the ordered message log of a room.
type Sequencer struct {
	stores      Stores
	windowTurns int
	bounds      domain.OrderBounds
	clock       func() time.Time
	newID       func() string
}

// New creates a Sequencer. A non-positive windowTurns falls back to 5.
// The bounds must match the MessageStore's sentinel order layout.
func New(stores Stores, windowTurns int, bounds domain.OrderBounds) *Sequencer {
	if windowTurns <= 0 {
		windowTurns = defaultWindowTurns
	}
	return &Sequencer{
		stores:      stores,
		windowTurns: windowTurns,
		bounds:      bounds,
		clock:       time.Now,
		newID:       id.New,
	}
}

// SetClock overrides the sequencer's clock. Intended for tests.
func (s *Sequencer) SetClock(clock func() time.Time) {
	s.clock = clock
}

// AppendUserMessage validates and persists a player message for the room's
// current turn. The room must be in ACTIVE/TURN_INPUT and the sender must
// be a participant.
func (s *Sequencer) AppendUserMessage(ctx context.Context, roomID, senderID, senderName, content string) (domain.Message, error) {
	senderID = strings.TrimSpace(senderID)
	if senderID == "" {
		return domain.Message{}, errors.New(errors.CodeMessageEmptySender, "sender id is required")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, errors.New(errors.CodeMessageEmptyContent, "message content is required")
	}

	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return domain.Message{}, err
	}
	if !room.HasParticipant(senderID) {
		return domain.Message{}, errors.WithMetadata(errors.CodeRoomNotParticipating, "sender is not in the room",
			map[string]string{"room_id": roomID, "sender_id": senderID})
	}
	if !room.AcceptsInput() {
		return domain.Message{}, errors.WithMetadata(errors.CodePhaseViolation, "room is not accepting player input",
			map[string]string{"room_id": roomID, "status": string(room.Status), "phase": string(room.Phase)})
	}

	msg, err := s.append(ctx, domain.Message{
		RoomID:     roomID,
		GameID:     room.GameID,
		SenderID:   senderID,
		SenderName: senderName,
		Content:    content,
		Type:       domain.MessageTypeUser,
		TurnNumber: room.CurrentTurn,
	})
	if err != nil {
		return domain.Message{}, err
	}

	s.touchRoom(ctx, roomID)
	return msg, nil
}

// AppendGeneratedMessage persists an oracle response as the AI game master,
// carrying generation latency and source attributions.
func (s *Sequencer) AppendGeneratedMessage(ctx context.Context, room domain.Room, content string, latencyMs int64, sources []string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, errors.New(errors.CodeMessageEmptyContent, "generated content is empty")
	}
	msg, err := s.append(ctx, domain.Message{
		RoomID:     room.ID,
		GameID:     room.GameID,
		SenderID:   domain.AISenderID,
		SenderName: domain.AISenderName,
		Content:    content,
		Type:       domain.MessageTypeAI,
		TurnNumber: room.CurrentTurn,
		LatencyMs:  latencyMs,
		Sources:    sources,
	})
	if err != nil {
		return domain.Message{}, err
	}

	s.touchRoom(ctx, room.ID)
	return msg, nil
}

// AppendSystemMessage persists an operational notice (joins, leaves,
// pauses) in the flow of the given turn.
func (s *Sequencer) AppendSystemMessage(ctx context.Context, roomID string, turn int, content string) (domain.Message, error) {
	if turn < 1 {
		return domain.Message{}, errors.New(errors.CodeMessageInvalidTurn, "turn number must be positive")
	}
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return domain.Message{}, err
	}
	return s.append(ctx, domain.Message{
		RoomID:     roomID,
		GameID:     room.GameID,
		SenderID:   domain.SystemSenderID,
		SenderName: domain.SystemSenderName,
		Content:    content,
		Type:       domain.MessageTypeSystem,
		TurnNumber: turn,
	})
}

// AppendErrorMessage records a generation failure at the error sentinel
// order so it sorts after every player and AI message of the turn.
func (s *Sequencer) AppendErrorMessage(ctx context.Context, roomID string, turn int, content string) (domain.Message, error) {
	if turn < 1 {
		return domain.Message{}, errors.New(errors.CodeMessageInvalidTurn, "turn number must be positive")
	}
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return domain.Message{}, err
	}
	return s.append(ctx, domain.Message{
		RoomID:       roomID,
		GameID:       room.GameID,
		SenderID:     domain.SystemSenderID,
		SenderName:   domain.SystemSenderName,
		Content:      content,
		Type:         domain.MessageTypeSystem,
		TurnNumber:   turn,
		MessageOrder: s.bounds.Error,
	})
}

// AppendTurnStart writes the opening bracket of a turn at order zero.
func (s *Sequencer) AppendTurnStart(ctx context.Context, roomID string, turn int) (domain.Message, error) {
	if turn < 1 {
		return domain.Message{}, errors.New(errors.CodeMessageInvalidTurn, "turn number must be positive")
	}
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return domain.Message{}, err
	}
	return s.append(ctx, domain.Message{
		RoomID:       roomID,
		GameID:       room.GameID,
		SenderID:     domain.SystemSenderID,
		SenderName:   domain.SystemSenderName,
		Content:      fmt.Sprintf(domain.TurnStartTemplate, turn),
		Type:         domain.MessageTypeTurnStart,
		TurnNumber:   turn,
		MessageOrder: s.bounds.TurnStart,
	})
}

// AppendTurnEnd writes the closing bracket of a turn at the end sentinel
// order.
func (s *Sequencer) AppendTurnEnd(ctx context.Context, roomID string, turn int) (domain.Message, error) {
	if turn < 1 {
		return domain.Message{}, errors.New(errors.CodeMessageInvalidTurn, "turn number must be positive")
	}
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return domain.Message{}, err
	}
	return s.append(ctx, domain.Message{
		RoomID:       roomID,
		GameID:       room.GameID,
		SenderID:     domain.SystemSenderID,
		SenderName:   domain.SystemSenderName,
		Content:      fmt.Sprintf(domain.TurnEndTemplate, turn),
		Type:         domain.MessageTypeTurnEnd,
		TurnNumber:   turn,
		MessageOrder: s.bounds.TurnEnd,
	})
}

// ContextWindow returns the messages of the last windowTurns turns up to
// and including currentTurn, in (turn, order) ascending order. Early turns
// clamp the window start to turn one.
func (s *Sequencer) ContextWindow(ctx context.Context, roomID string, currentTurn int) ([]domain.Message, error) {
	if currentTurn < 1 {
		return nil, errors.New(errors.CodeMessageInvalidTurn, "turn number must be positive")
	}
	fromTurn := currentTurn - s.windowTurns + 1
	if fromTurn < 1 {
		fromTurn = 1
	}
	msgs, err := s.stores.Messages.MessagesFromTurn(ctx, roomID, fromTurn)
	if err != nil {
		return nil, errors.Wrap(errors.CodeStoreUnavailable, "load context window", err)
	}
	// MessagesFromTurn has no upper bound; drop anything past the window's
	// current turn (stale rows from an interrupted advance).
	filtered := msgs[:0]
	for _, m := range msgs {
		if m.TurnNumber <= currentTurn {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// TurnMessages returns every message of a single turn in order.
func (s *Sequencer) TurnMessages(ctx context.Context, roomID string, turn int) ([]domain.Message, error) {
	msgs, err := s.stores.Messages.MessagesByTurn(ctx, roomID, turn)
	if err != nil {
		return nil, errors.Wrap(errors.CodeStoreUnavailable, "load turn messages", err)
	}
	return msgs, nil
}

// History returns a page of the room's log, newest first.
func (s *Sequencer) History(ctx context.Context, roomID string, limit, offset int) ([]domain.Message, error) {
	msgs, err := s.stores.Messages.RecentMessages(ctx, roomID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(errors.CodeStoreUnavailable, "load message history", err)
	}
	return msgs, nil
}

func (s *Sequencer) getRoom(ctx context.Context, roomID string) (domain.Room, error) {
	room, err := s.stores.Rooms.GetRoom(ctx, roomID)
	if stderrors.Is(err, storage.ErrNotFound) {
		return domain.Room{}, errors.WithMetadata(errors.CodeRoomNotFound, "room not found",
			map[string]string{"room_id": roomID})
	}
	if err != nil {
		return domain.Room{}, errors.Wrap(errors.CodeStoreUnavailable, "load room", err)
	}
	return room, nil
}

func (s *Sequencer) append(ctx context.Context, msg domain.Message) (domain.Message, error) {
	msg.ID = s.newID()
	msg.CreatedAt = s.clock().UTC()
	stored, err := s.stores.Messages.AppendMessage(ctx, msg)
	if err != nil {
		return domain.Message{}, errors.Wrap(errors.CodeStoreUnavailable, "append message", err)
	}
	return stored, nil
}

// touchRoom refreshes LastActivity. Best effort; the message is already
// durable.
func (s *Sequencer) touchRoom(ctx context.Context, roomID string) {
	for attempt := 0; attempt < 2; attempt++ {
		room, err := s.stores.Rooms.GetRoom(ctx, roomID)
		if err != nil {
			return
		}
		room.Touch(s.clock())
		if _, err := s.stores.Rooms.UpdateRoom(ctx, room); !stderrors.Is(err, storage.ErrVersionConflict) {
			return
		}
	}
}

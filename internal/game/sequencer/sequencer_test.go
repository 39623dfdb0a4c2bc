package sequencer

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/dungeontalk/dungeontalk/internal/game/domain"
	"github.com/dungeontalk/dungeontalk/internal/game/storage/memory"
	"github.com/dungeontalk/dungeontalk/internal/platform/errors"
)

func newTestSequencer(t *testing.T, windowTurns int) (*Sequencer, *memory.RoomStore, *memory.MessageStore) {
	t.Helper()
	rooms := memory.NewRoomStore()
	messages := memory.NewMessageStore()
	return New(Stores{Rooms: rooms, Messages: messages}, windowTurns, domain.DefaultOrderBounds()), rooms, messages
}

func seedRoom(t *testing.T, rooms *memory.RoomStore, status domain.Status, phase domain.Phase, turn int) domain.Room {
	t.Helper()
	room, err := domain.CreateRoom(domain.CreateRoomInput{
		GameID:          "game-1",
		Name:            "sunken observatory",
		CreatorID:       "player-1",
		MaxParticipants: 3,
	}, nil, nil)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	room.Status = status
	room.Phase = phase
	room.CurrentTurn = turn
	room.Participants = []string{"player-1", "player-2"}
	if err := rooms.PutRoom(context.Background(), room); err != nil {
		t.Fatalf("put room: %v", err)
	}
	stored, err := rooms.GetRoom(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	return stored
}

func wantCode(t *testing.T, err error, code errors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	var perr *errors.Error
	if !stderrors.As(err, &perr) || perr.Code != code {
		t.Fatalf("expected code %s, got %v", code, err)
	}
}

func TestAppendUserMessage(t *testing.T) {
	ctx := context.Background()
	s, rooms, _ := newTestSequencer(t, 5)
	room := seedRoom(t, rooms, domain.StatusActive, domain.PhaseTurnInput, 2)

	first, err := s.AppendUserMessage(ctx, room.ID, "player-1", "Aldra", "I search the rubble.")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if first.Type != domain.MessageTypeUser || first.TurnNumber != 2 {
		t.Fatalf("unexpected message: type=%s turn=%d", first.Type, first.TurnNumber)
	}
	if first.MessageOrder != 1 {
		t.Fatalf("first order = %d, want 1", first.MessageOrder)
	}
	if first.ID == "" || first.CreatedAt.IsZero() {
		t.Fatal("id or timestamp not assigned")
	}

	second, err := s.AppendUserMessage(ctx, room.ID, "player-2", "Brom", "I keep watch.")
	if err != nil {
		t.Fatalf("append second: %v", err)
	}
	if second.MessageOrder != first.MessageOrder+1 {
		t.Fatalf("orders not monotonic: %d then %d", first.MessageOrder, second.MessageOrder)
	}

	got, err := rooms.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if !got.LastActivity.After(room.LastActivity) {
		t.Fatal("LastActivity not refreshed by user message")
	}
}

func TestAppendUserMessageValidation(t *testing.T) {
	ctx := context.Background()
	s, rooms, _ := newTestSequencer(t, 5)
	room := seedRoom(t, rooms, domain.StatusActive, domain.PhaseTurnInput, 1)

	tests := []struct {
		name     string
		roomID   string
		senderID string
		content  string
		code     errors.Code
	}{
		{"empty sender", room.ID, "  ", "hello", errors.CodeMessageEmptySender},
		{"empty content", room.ID, "player-1", "   ", errors.CodeMessageEmptyContent},
		{"unknown room", "missing", "player-1", "hello", errors.CodeRoomNotFound},
		{"non participant", room.ID, "player-9", "hello", errors.CodeRoomNotParticipating},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.AppendUserMessage(ctx, tc.roomID, tc.senderID, "", tc.content)
			wantCode(t, err, tc.code)
		})
	}
}

func TestAppendUserMessageRejectedDuringGeneration(t *testing.T) {
	ctx := context.Background()
	s, rooms, _ := newTestSequencer(t, 5)
	room := seedRoom(t, rooms, domain.StatusActive, domain.PhaseAIResponse, 1)

	_, err := s.AppendUserMessage(ctx, room.ID, "player-1", "Aldra", "too late")
	wantCode(t, err, errors.CodePhaseViolation)

	paused := seedRoom(t, rooms, domain.StatusPaused, domain.PhaseTurnInput, 1)
	_, err = s.AppendUserMessage(ctx, paused.ID, "player-1", "Aldra", "paused room")
	wantCode(t, err, errors.CodePhaseViolation)
}

func TestAppendGeneratedMessage(t *testing.T) {
	ctx := context.Background()
	s, rooms, _ := newTestSequencer(t, 5)
	room := seedRoom(t, rooms, domain.StatusActive, domain.PhaseAIResponse, 3)

	msg, err := s.AppendGeneratedMessage(ctx, room, "The rubble shifts...", 1420, []string{"bestiary.md"})
	if err != nil {
		t.Fatalf("append generated: %v", err)
	}
	if msg.SenderID != domain.AISenderID || msg.SenderName != domain.AISenderName {
		t.Fatalf("wrong sender: %s/%s", msg.SenderID, msg.SenderName)
	}
	if msg.Type != domain.MessageTypeAI || msg.TurnNumber != 3 {
		t.Fatalf("unexpected message: type=%s turn=%d", msg.Type, msg.TurnNumber)
	}
	if msg.LatencyMs != 1420 || len(msg.Sources) != 1 {
		t.Fatalf("latency/sources lost: %d %v", msg.LatencyMs, msg.Sources)
	}

	_, err = s.AppendGeneratedMessage(ctx, room, "   ", 0, nil)
	wantCode(t, err, errors.CodeMessageEmptyContent)
}

func TestAppendGeneratedMessageRefreshesActivity(t *testing.T) {
	ctx := context.Background()
	s, rooms, _ := newTestSequencer(t, 5)
	room := seedRoom(t, rooms, domain.StatusActive, domain.PhaseAIResponse, 3)

	later := room.LastActivity.Add(time.Minute)
	s.SetClock(func() time.Time { return later })

	if _, err := s.AppendGeneratedMessage(ctx, room, "The rubble shifts...", 10, nil); err != nil {
		t.Fatalf("append generated: %v", err)
	}

	got, err := rooms.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if !got.LastActivity.Equal(later.UTC()) {
		t.Fatalf("LastActivity = %v, want %v", got.LastActivity, later.UTC())
	}
}

func TestConfiguredOrderBounds(t *testing.T) {
	ctx := context.Background()
	bounds := domain.OrderBounds{TurnStart: 100, Error: 200, TurnEnd: 201}
	rooms := memory.NewRoomStore()
	messages := memory.NewMessageStoreWithOrderBounds(bounds)
	s := New(Stores{Rooms: rooms, Messages: messages}, 5, bounds)
	room := seedRoom(t, rooms, domain.StatusActive, domain.PhaseTurnInput, 1)

	start, err := s.AppendTurnStart(ctx, room.ID, 1)
	if err != nil {
		t.Fatalf("turn start: %v", err)
	}
	if start.MessageOrder != bounds.TurnStart {
		t.Fatalf("turn start order = %d, want %d", start.MessageOrder, bounds.TurnStart)
	}

	user, err := s.AppendUserMessage(ctx, room.ID, "player-1", "Aldra", "I listen at the door.")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if user.MessageOrder != bounds.TurnStart+1 {
		t.Fatalf("user order = %d, want %d", user.MessageOrder, bounds.TurnStart+1)
	}

	failure, err := s.AppendErrorMessage(ctx, room.ID, 1, "transient failure")
	if err != nil {
		t.Fatalf("error message: %v", err)
	}
	if failure.MessageOrder != bounds.Error {
		t.Fatalf("error order = %d, want %d", failure.MessageOrder, bounds.Error)
	}

	end, err := s.AppendTurnEnd(ctx, room.ID, 1)
	if err != nil {
		t.Fatalf("turn end: %v", err)
	}
	if end.MessageOrder != bounds.TurnEnd {
		t.Fatalf("turn end order = %d, want %d", end.MessageOrder, bounds.TurnEnd)
	}

	// All assigned and sentinel orders keep the required layout.
	if !(start.MessageOrder < user.MessageOrder &&
		user.MessageOrder < failure.MessageOrder &&
		failure.MessageOrder < end.MessageOrder) {
		t.Fatalf("order layout broken: %d %d %d %d",
			start.MessageOrder, user.MessageOrder, failure.MessageOrder, end.MessageOrder)
	}
}

func TestTurnBracketsAndErrorSentinels(t *testing.T) {
	ctx := context.Background()
	s, rooms, _ := newTestSequencer(t, 5)
	room := seedRoom(t, rooms, domain.StatusActive, domain.PhaseTurnInput, 4)

	start, err := s.AppendTurnStart(ctx, room.ID, 4)
	if err != nil {
		t.Fatalf("turn start: %v", err)
	}
	if start.MessageOrder != domain.TurnStartOrder || start.Type != domain.MessageTypeTurnStart {
		t.Fatalf("bad start sentinel: order=%d type=%s", start.MessageOrder, start.Type)
	}
	if start.Content != fmt.Sprintf(domain.TurnStartTemplate, 4) {
		t.Fatalf("unexpected start content: %q", start.Content)
	}

	user, err := s.AppendUserMessage(ctx, room.ID, "player-1", "Aldra", "I light a torch.")
	if err != nil {
		t.Fatalf("user: %v", err)
	}

	failure, err := s.AppendErrorMessage(ctx, room.ID, 4, "AI response failed. The session is paused.")
	if err != nil {
		t.Fatalf("error message: %v", err)
	}
	if failure.MessageOrder != domain.ErrorOrder || failure.SenderID != domain.SystemSenderID {
		t.Fatalf("bad error sentinel: order=%d sender=%s", failure.MessageOrder, failure.SenderID)
	}

	end, err := s.AppendTurnEnd(ctx, room.ID, 4)
	if err != nil {
		t.Fatalf("turn end: %v", err)
	}
	if end.MessageOrder != domain.TurnEndOrder {
		t.Fatalf("bad end sentinel: order=%d", end.MessageOrder)
	}

	// The turn reads back bracketed: start, user traffic, error, end.
	msgs, err := s.TurnMessages(ctx, room.ID, 4)
	if err != nil {
		t.Fatalf("turn messages: %v", err)
	}
	wantOrders := []int{domain.TurnStartOrder, user.MessageOrder, domain.ErrorOrder, domain.TurnEndOrder}
	if len(msgs) != len(wantOrders) {
		t.Fatalf("turn has %d messages, want %d", len(msgs), len(wantOrders))
	}
	for i, m := range msgs {
		if m.MessageOrder != wantOrders[i] {
			t.Fatalf("position %d order = %d, want %d", i, m.MessageOrder, wantOrders[i])
		}
	}
}

func TestSentinelsDoNotShiftUserOrders(t *testing.T) {
	ctx := context.Background()
	s, rooms, _ := newTestSequencer(t, 5)
	room := seedRoom(t, rooms, domain.StatusActive, domain.PhaseTurnInput, 1)

	if _, err := s.AppendErrorMessage(ctx, room.ID, 1, "transient failure"); err != nil {
		t.Fatalf("error message: %v", err)
	}
	msg, err := s.AppendUserMessage(ctx, room.ID, "player-1", "Aldra", "still here")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if msg.MessageOrder != 1 {
		t.Fatalf("user order after error sentinel = %d, want 1", msg.MessageOrder)
	}
}

func TestContextWindow(t *testing.T) {
	ctx := context.Background()
	s, rooms, _ := newTestSequencer(t, 5)
	room := seedRoom(t, rooms, domain.StatusActive, domain.PhaseTurnInput, 1)

	for turn := 1; turn <= 7; turn++ {
		stored, err := rooms.GetRoom(ctx, room.ID)
		if err != nil {
			t.Fatalf("get room: %v", err)
		}
		stored.CurrentTurn = turn
		if _, err := rooms.UpdateRoom(ctx, stored); err != nil {
			t.Fatalf("set turn: %v", err)
		}
		if _, err := s.AppendUserMessage(ctx, room.ID, "player-1", "Aldra", fmt.Sprintf("action for turn %d", turn)); err != nil {
			t.Fatalf("append turn %d: %v", turn, err)
		}
	}

	window, err := s.ContextWindow(ctx, room.ID, 7)
	if err != nil {
		t.Fatalf("context window: %v", err)
	}
	if len(window) != 5 {
		t.Fatalf("window size = %d, want 5", len(window))
	}
	if window[0].TurnNumber != 3 || window[len(window)-1].TurnNumber != 7 {
		t.Fatalf("window spans turns [%d,%d], want [3,7]", window[0].TurnNumber, window[len(window)-1].TurnNumber)
	}

	// Turns below the window size clamp to turn one instead of going negative.
	early, err := s.ContextWindow(ctx, room.ID, 2)
	if err != nil {
		t.Fatalf("early window: %v", err)
	}
	if len(early) != 2 || early[0].TurnNumber != 1 {
		t.Fatalf("early window wrong: len=%d first=%d", len(early), early[0].TurnNumber)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, rooms, _ := newTestSequencer(t, 5)
	room := seedRoom(t, rooms, domain.StatusActive, domain.PhaseTurnInput, 1)

	for i := 0; i < 3; i++ {
		if _, err := s.AppendUserMessage(ctx, room.ID, "player-1", "Aldra", fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	page, err := s.History(ctx, room.ID, 2, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	if page[0].MessageOrder <= page[1].MessageOrder {
		t.Fatalf("history not newest first: %d then %d", page[0].MessageOrder, page[1].MessageOrder)
	}
}

// Package orchestrator runs the end-to-end generation flow for a player
// message: admission through the generation lock, context assembly, the
// oracle call, response persistence, fan-out, and turn advancement.
package orchestrator

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dungeontalk/dungeontalk/internal/game/broadcast"
	"github.com/dungeontalk/dungeontalk/internal/game/coordinator"
	"github.com/dungeontalk/dungeontalk/internal/game/domain"
	"github.com/dungeontalk/dungeontalk/internal/game/oracle"
	"github.com/dungeontalk/dungeontalk/internal/game/sequencer"
	"github.com/dungeontalk/dungeontalk/internal/game/storage"
	"github.com/dungeontalk/dungeontalk/internal/platform/errors"
)

const tracerName = "github.com/dungeontalk/dungeontalk/internal/game/orchestrator"

// generationFailedNotice is the player-visible error message recorded when
// the oracle fails mid-turn.
const generationFailedNotice = "AI response failed. The session has been paused."

// Orchestrator coordinates one generation per room at a time.
type Orchestrator struct {
	coord  *coordinator.Coordinator
	seq    *sequencer.Sequencer
	rooms  storage.RoomStore
	oracle oracle.Oracle
	bcast  broadcast.Broadcaster
	tracer trace.Tracer
	clock  func() time.Time
}

// New creates an Orchestrator. A nil broadcaster drops all events.
func New(coord *coordinator.Coordinator, seq *sequencer.Sequencer, rooms storage.RoomStore, o oracle.Oracle, bcast broadcast.Broadcaster) *Orchestrator {
	if bcast == nil {
		bcast = broadcast.Discard{}
	}
	return &Orchestrator{
		coord:  coord,
		seq:    seq,
		rooms:  rooms,
		oracle: o,
		bcast:  bcast,
		tracer: otel.Tracer(tracerName),
		clock:  time.Now,
	}
}

// Generate persists a player message and drives a full generation turn:
// claim the room's generation lock, assemble the context window, call the
// oracle, persist and broadcast the response, then advance the turn with
// its closing and opening brackets.
//
// The player message is durable before admission; a GENERATION_BUSY error
// means the message was recorded but no generation started. The lock is
// released on every exit path. An oracle failure records an error sentinel,
// pauses the session, and leaves the turn unadvanced.
func (o *Orchestrator) Generate(ctx context.Context, roomID, senderID, senderName, content string) (domain.Message, error) {
	ctx, span := o.tracer.Start(ctx, "game.generate",
		trace.WithAttributes(attribute.String("room.id", roomID)))
	defer span.End()

	userMsg, err := o.seq.AppendUserMessage(ctx, roomID, senderID, senderName, content)
	if err != nil {
		span.SetStatus(otelcodes.Error, "message rejected")
		return domain.Message{}, err
	}
	o.publish(ctx, roomID, userMsg)
	span.SetAttributes(attribute.Int("turn.number", userMsg.TurnNumber))

	// Player activity keeps the session alive.
	if err := o.coord.ExtendLiveness(ctx, roomID); err != nil {
		log.Printf("liveness extension failed room_id=%s err=%v", roomID, err)
	}

	claimed, err := o.coord.AcquireGenerationLock(ctx, roomID)
	if err != nil {
		span.SetStatus(otelcodes.Error, "lock acquisition failed")
		return domain.Message{}, err
	}
	if !claimed {
		span.AddEvent("generation busy")
		return domain.Message{}, errors.WithMetadata(errors.CodeGenerationBusy,
			"a generation is already in flight for this room",
			map[string]string{"room_id": roomID})
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		if err := o.coord.ReleaseGenerationLock(ctx, roomID); err != nil {
			log.Printf("generation lock release failed room_id=%s err=%v", roomID, err)
		}
	}
	defer release()

	room, err := o.rooms.GetRoom(ctx, roomID)
	if err != nil {
		span.SetStatus(otelcodes.Error, "room reload failed")
		return domain.Message{}, errors.Wrap(errors.CodeStoreUnavailable, "reload room", err)
	}

	req, err := o.buildRequest(ctx, room, userMsg)
	if err != nil {
		span.SetStatus(otelcodes.Error, "context assembly failed")
		return domain.Message{}, err
	}

	started := o.clock()
	resp, err := o.oracle.Generate(ctx, req)
	if err != nil {
		span.SetStatus(otelcodes.Error, "generation failed")
		return domain.Message{}, o.failTurn(ctx, room, err)
	}
	latency := resp.LatencyMs
	if latency <= 0 {
		latency = o.clock().Sub(started).Milliseconds()
	}

	aiMsg, err := o.seq.AppendGeneratedMessage(ctx, room, resp.Content, latency, resp.Sources)
	if err != nil {
		span.SetStatus(otelcodes.Error, "response persistence failed")
		return domain.Message{}, o.failTurn(ctx, room, err)
	}
	o.publish(ctx, roomID, aiMsg)
	span.SetAttributes(attribute.Int64("generation.latency_ms", latency))

	release()

	o.advanceTurn(ctx, room)
	return aiMsg, nil
}

// buildRequest assembles the oracle request from the room's recent turn
// window, excluding the message being answered.
func (o *Orchestrator) buildRequest(ctx context.Context, room domain.Room, userMsg domain.Message) (oracle.Request, error) {
	window, err := o.seq.ContextWindow(ctx, room.ID, room.CurrentTurn)
	if err != nil {
		return oracle.Request{}, err
	}

	contextMsgs := make([]oracle.ContextMessage, 0, len(window))
	for _, m := range window {
		if m.ID == userMsg.ID {
			continue
		}
		contextMsgs = append(contextMsgs, oracle.ContextMessage{
			MessageType:  string(m.Type),
			SenderName:   m.SenderName,
			Content:      m.Content,
			TurnNumber:   m.TurnNumber,
			MessageOrder: m.MessageOrder,
		})
	}

	return oracle.Request{
		GameID:          room.GameID,
		RoomID:          room.ID,
		CurrentUser:     userMsg.SenderName,
		CurrentMessage:  userMsg.Content,
		ContextMessages: contextMsgs,
		TurnNumber:      room.CurrentTurn,
	}, nil
}

// failTurn records the failure in the turn log, pauses the session, and
// returns the ORACLE_FAILURE error for the caller. The turn does not
// advance; players resume on the same turn.
func (o *Orchestrator) failTurn(ctx context.Context, room domain.Room, cause error) error {
	errMsg, appendErr := o.seq.AppendErrorMessage(ctx, room.ID, room.CurrentTurn, generationFailedNotice)
	if appendErr != nil {
		log.Printf("error sentinel append failed room_id=%s err=%v", room.ID, appendErr)
	} else {
		o.publish(ctx, room.ID, errMsg)
	}

	if pauseErr := o.coord.Pause(ctx, room.ID, "generation failed"); pauseErr != nil {
		log.Printf("pause after failure failed room_id=%s err=%v", room.ID, pauseErr)
	}

	return errors.Wrap(errors.CodeOracleFailure, "oracle generation failed", cause)
}

// advanceTurn closes the finished turn and opens the next one. These steps
// are best effort: the response is already durable, and a partially
// bracketed turn is recoverable while a failed Generate is not.
func (o *Orchestrator) advanceTurn(ctx context.Context, room domain.Room) {
	endMsg, err := o.seq.AppendTurnEnd(ctx, room.ID, room.CurrentTurn)
	if err != nil {
		log.Printf("turn end append failed room_id=%s turn=%d err=%v", room.ID, room.CurrentTurn, err)
	} else {
		o.publish(ctx, room.ID, endMsg)
	}

	nextTurn, err := o.coord.AdvanceTurn(ctx, room.ID)
	if err != nil {
		log.Printf("turn advance failed room_id=%s err=%v", room.ID, err)
		return
	}

	startMsg, err := o.seq.AppendTurnStart(ctx, room.ID, nextTurn)
	if err != nil {
		log.Printf("turn start append failed room_id=%s turn=%d err=%v", room.ID, nextTurn, err)
		return
	}
	o.publish(ctx, room.ID, startMsg)
}

// publish fans a message out to subscribers. Broadcast is at-most-once and
// never fails the turn.
func (o *Orchestrator) publish(ctx context.Context, roomID string, msg domain.Message) {
	o.bcast.Publish(ctx, roomID, msg)
}

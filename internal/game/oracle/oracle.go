// Package oracle defines the client boundary to the external response
// generation service. The oracle is opaque: one request per turn in, one
// authoritative response out, bounded by a hard timeout.
package oracle

import "context"

// ContextMessage is one prior message handed to the oracle as grounding.
type ContextMessage struct {
	MessageType  string `json:"messageType"`
	SenderName   string `json:"senderNickname"`
	Content      string `json:"content"`
	TurnNumber   int    `json:"turnNumber"`
	MessageOrder int    `json:"messageOrder"`
}

// Request describes one generation call.
type Request struct {
	GameID          string           `json:"game_id"`
	RoomID          string           `json:"ai_game_room_id"`
	CurrentUser     string           `json:"current_user"`
	CurrentMessage  string           `json:"current_message"`
	ContextMessages []ContextMessage `json:"context_messages"`
	TurnNumber      int              `json:"turn_number"`
}

// Response is a successful generation result.
type Response struct {
	Content   string   `json:"content"`
	LatencyMs int64    `json:"response_time"`
	Sources   []string `json:"sources"`
}

// Oracle generates the authoritative response for a turn.
type Oracle interface {
	// Generate returns the response for a turn, or an error on timeout or
	// non-success. Callers treat any error as an oracle failure.
	Generate(ctx context.Context, req Request) (Response, error)

	// Health reports whether the oracle is reachable and ready.
	Health(ctx context.Context) bool
}

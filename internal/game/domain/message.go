package domain

import "time"

// MessageType classifies a turn message.
type MessageType string

const (
	// MessageTypeUser is a player-authored turn action.
	MessageTypeUser MessageType = "USER"
	// MessageTypeAI is the generated response for a turn.
	MessageTypeAI MessageType = "AI"
	// MessageTypeSystem is an operational notice (joins, errors, pauses).
	MessageTypeSystem MessageType = "SYSTEM"
	// MessageTypeTurnStart opens a turn.
	MessageTypeTurnStart MessageType = "TURN_START"
	// MessageTypeTurnEnd closes a turn.
	MessageTypeTurnEnd MessageType = "TURN_END"
)

// ParseMessageType maps a stored string to a MessageType.
func ParseMessageType(value string) (MessageType, bool) {
	switch MessageType(value) {
	case MessageTypeUser, MessageTypeAI, MessageTypeSystem, MessageTypeTurnStart, MessageTypeTurnEnd:
		return MessageType(value), true
	}
	return "", false
}

// Message is one append-only record in a room's turn history. Messages are
// never mutated after creation.
type Message struct {
	ID           string // ULID, time-ordered
	RoomID       string
	GameID       string
	SenderID     string
	SenderName   string
	Content      string
	Type         MessageType
	TurnNumber   int
	MessageOrder int

	// LatencyMs and Sources are set on AI messages only.
	LatencyMs int64
	Sources   []string

	CreatedAt time.Time
}

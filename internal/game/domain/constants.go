package domain

// Session store key prefixes. These names are shared with other consumers
// of the store and must not change.
const (
	SessionKeyPrefix = "ai_game_session:"
	LockKeyPrefix    = "ai_game_turn_lock:"
)

// LockValue is the payload written under a generation lock key. Existence
// of the key, not its content, is what matters.
const LockValue = "AI_PROCESSING"

// SessionKey returns the liveness key for a room.
func SessionKey(roomID string) string {
	return SessionKeyPrefix + roomID
}

// LockKey returns the generation lock key for a room.
func LockKey(roomID string) string {
	return LockKeyPrefix + roomID
}

// Reserved sender identities.
const (
	AISenderID       = "AI_GM"
	AISenderName     = "Dungeon Master"
	SystemSenderID   = "SYSTEM"
	SystemSenderName = "System"
)

// Default reserved message orders within a turn. User and AI messages are
// assigned orders strictly between TurnStartOrder and ErrorOrder.
const (
	TurnStartOrder = 0
	ErrorOrder     = 9998
	TurnEndOrder   = 9999
)

// OrderBounds carries a deployment's reserved sentinel orders. All stores
// and the sequencer of one deployment must share the same bounds.
type OrderBounds struct {
	TurnStart int
	Error     int
	TurnEnd   int
}

// DefaultOrderBounds returns the standard sentinel layout.
func DefaultOrderBounds() OrderBounds {
	return OrderBounds{TurnStart: TurnStartOrder, Error: ErrorOrder, TurnEnd: TurnEndOrder}
}

// Valid reports whether the bounds leave room for assigned orders:
// TurnStart < assigned user/AI orders < Error < TurnEnd.
func (b OrderBounds) Valid() bool {
	return b.TurnStart >= 0 && b.TurnStart < b.Error && b.Error < b.TurnEnd
}

// Turn bracket message templates.
const (
	TurnStartTemplate = "Turn %d started! Waiting for player actions."
	TurnEndTemplate   = "Turn %d complete! Preparing the next turn."
)

// MaxParticipantsLimit caps room capacity.
const MaxParticipantsLimit = 3

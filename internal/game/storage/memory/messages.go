package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dungeontalk/dungeontalk/internal/game/domain"
)

// MessageStore is an in-memory storage.MessageStore.
type MessageStore struct {
	mu       sync.RWMutex
	bounds   domain.OrderBounds
	messages map[string][]domain.Message // keyed by room id, append order
}

// NewMessageStore creates an empty MessageStore with the default sentinel
// order layout.
func NewMessageStore() *MessageStore {
	return NewMessageStoreWithOrderBounds(domain.DefaultOrderBounds())
}

// NewMessageStoreWithOrderBounds creates an empty MessageStore using the
// given sentinel order layout.
func NewMessageStoreWithOrderBounds(bounds domain.OrderBounds) *MessageStore {
	return &MessageStore{bounds: bounds, messages: make(map[string][]domain.Message)}
}

// AppendMessage persists a message, assigning the next per-turn order for
// user, AI, and system messages under the store mutex.
func (s *MessageStore) AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assign := msg.MessageOrder == 0 &&
		(msg.Type == domain.MessageTypeUser || msg.Type == domain.MessageTypeAI || msg.Type == domain.MessageTypeSystem)
	if assign {
		next := s.bounds.TurnStart + 1
		for _, existing := range s.messages[msg.RoomID] {
			if existing.TurnNumber == msg.TurnNumber &&
				existing.MessageOrder < s.bounds.Error &&
				existing.MessageOrder >= next {
				next = existing.MessageOrder + 1
			}
		}
		msg.MessageOrder = next
	}

	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], msg)
	return msg, nil
}

// MessagesByTurn returns all messages for (room, turn) in display order.
func (s *MessageStore) MessagesByTurn(ctx context.Context, roomID string, turn int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var messages []domain.Message
	for _, msg := range s.messages[roomID] {
		if msg.TurnNumber == turn {
			messages = append(messages, msg)
		}
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].MessageOrder < messages[j].MessageOrder
	})
	return messages, nil
}

// MessagesFromTurn returns all messages with turn >= fromTurn in display order.
func (s *MessageStore) MessagesFromTurn(ctx context.Context, roomID string, fromTurn int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var messages []domain.Message
	for _, msg := range s.messages[roomID] {
		if msg.TurnNumber >= fromTurn {
			messages = append(messages, msg)
		}
	}
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].TurnNumber != messages[j].TurnNumber {
			return messages[i].TurnNumber < messages[j].TurnNumber
		}
		return messages[i].MessageOrder < messages[j].MessageOrder
	})
	return messages, nil
}

// RecentMessages returns a page of the room's messages, newest first.
func (s *MessageStore) RecentMessages(ctx context.Context, roomID string, limit, offset int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	all := s.messages[roomID]
	var messages []domain.Message
	for i := len(all) - 1 - offset; i >= 0 && len(messages) < limit; i-- {
		messages = append(messages, all[i])
	}
	return messages, nil
}

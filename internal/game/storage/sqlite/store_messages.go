package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dungeontalk/dungeontalk/internal/game/domain"
)

const messageColumns = `id, room_id, game_id, sender_id, sender_name, content,
message_type, turn_number, message_order, latency_ms, sources, created_at`

// AppendMessage persists a message. Order assignment for user, AI, and
// system messages happens inside the INSERT so two writers to the same
// (room, turn) can never claim the same order.
func (s *Store) AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	sources, err := encodeStrings(msg.Sources)
	if err != nil {
		return domain.Message{}, err
	}

	assign := msg.MessageOrder == 0 &&
		(msg.Type == domain.MessageTypeUser || msg.Type == domain.MessageTypeAI || msg.Type == domain.MessageTypeSystem)

	var row *sql.Row
	if assign {
		// Single-statement insert keeps max+1 atomic under SQLite's write
		// serialization. Orders at or past the error sentinel are excluded
		// so an earlier error message cannot push user orders past the
		// reserved range; the turn-start order seeds the count.
		row = s.sqlDB.QueryRowContext(ctx, `
INSERT INTO messages (id, room_id, game_id, sender_id, sender_name, content,
    message_type, turn_number, message_order, latency_ms, sources, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?,
    (SELECT COALESCE(MAX(message_order), ?) + 1 FROM messages
     WHERE room_id = ? AND turn_number = ? AND message_order < ?),
    ?, ?, ?)
RETURNING message_order`,
			msg.ID, msg.RoomID, msg.GameID, msg.SenderID, msg.SenderName, msg.Content,
			string(msg.Type), msg.TurnNumber,
			s.bounds.TurnStart, msg.RoomID, msg.TurnNumber, s.bounds.Error,
			msg.LatencyMs, sources, toMillis(msg.CreatedAt),
		)
	} else {
		row = s.sqlDB.QueryRowContext(ctx, `
INSERT INTO messages (id, room_id, game_id, sender_id, sender_name, content,
    message_type, turn_number, message_order, latency_ms, sources, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING message_order`,
			msg.ID, msg.RoomID, msg.GameID, msg.SenderID, msg.SenderName, msg.Content,
			string(msg.Type), msg.TurnNumber, msg.MessageOrder,
			msg.LatencyMs, sources, toMillis(msg.CreatedAt),
		)
	}

	if err := row.Scan(&msg.MessageOrder); err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// MessagesByTurn returns all messages for (room, turn) in display order.
func (s *Store) MessagesByTurn(ctx context.Context, roomID string, turn int) ([]domain.Message, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+messageColumns+` FROM messages
WHERE room_id = ? AND turn_number = ?
ORDER BY message_order ASC, created_at ASC`, roomID, turn)
	if err != nil {
		return nil, fmt.Errorf("query turn messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MessagesFromTurn returns all messages with turn >= fromTurn in display order.
func (s *Store) MessagesFromTurn(ctx context.Context, roomID string, fromTurn int) ([]domain.Message, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+messageColumns+` FROM messages
WHERE room_id = ? AND turn_number >= ?
ORDER BY turn_number ASC, message_order ASC, created_at ASC`, roomID, fromTurn)
	if err != nil {
		return nil, fmt.Errorf("query messages from turn: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentMessages returns a page of the room's messages, newest first.
func (s *Store) RecentMessages(ctx context.Context, roomID string, limit, offset int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+messageColumns+` FROM messages
WHERE room_id = ?
ORDER BY created_at DESC, message_order DESC
LIMIT ? OFFSET ?`, roomID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	var messages []domain.Message
	for rows.Next() {
		var (
			msg         domain.Message
			messageType string
			sourcesRaw  string
			createdAt   int64
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.RoomID,
			&msg.GameID,
			&msg.SenderID,
			&msg.SenderName,
			&msg.Content,
			&messageType,
			&msg.TurnNumber,
			&msg.MessageOrder,
			&msg.LatencyMs,
			&sourcesRaw,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		parsed, ok := domain.ParseMessageType(messageType)
		if !ok {
			return nil, fmt.Errorf("invalid stored message type %q", messageType)
		}
		sources, err := decodeStrings(sourcesRaw)
		if err != nil {
			return nil, err
		}

		msg.Type = parsed
		msg.Sources = sources
		msg.CreatedAt = fromMillis(createdAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

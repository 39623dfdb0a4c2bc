package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dungeontalk/dungeontalk/internal/game/domain"
	"github.com/dungeontalk/dungeontalk/internal/game/storage"
)

const roomColumns = `id, game_id, name, description, status, phase, current_turn,
max_participants, participants, settings, last_activity, created_at, updated_at, version`

// PutRoom inserts a new room at version 1.
func (s *Store) PutRoom(ctx context.Context, room domain.Room) error {
	participants, err := encodeStrings(room.Participants)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO rooms (id, game_id, name, description, status, phase, current_turn,
    max_participants, participants, settings, last_activity, created_at, updated_at, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		room.ID,
		room.GameID,
		room.Name,
		room.Description,
		string(room.Status),
		string(room.Phase),
		room.CurrentTurn,
		room.MaxParticipants,
		participants,
		room.Settings,
		toMillis(room.LastActivity),
		toMillis(room.CreatedAt),
		toMillis(room.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

// GetRoom returns a room by ID.
func (s *Store) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = ?`, roomID)
	return scanRoom(row)
}

// UpdateRoom persists a modified room guarded by its version.
func (s *Store) UpdateRoom(ctx context.Context, room domain.Room) (domain.Room, error) {
	participants, err := encodeStrings(room.Participants)
	if err != nil {
		return domain.Room{}, err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE rooms SET
    game_id = ?, name = ?, description = ?, status = ?, phase = ?,
    current_turn = ?, max_participants = ?, participants = ?, settings = ?,
    last_activity = ?, updated_at = ?, version = version + 1
WHERE id = ? AND version = ?`,
		room.GameID,
		room.Name,
		room.Description,
		string(room.Status),
		string(room.Phase),
		room.CurrentTurn,
		room.MaxParticipants,
		participants,
		room.Settings,
		toMillis(room.LastActivity),
		toMillis(room.UpdatedAt),
		room.ID,
		room.Version,
	)
	if err != nil {
		return domain.Room{}, fmt.Errorf("update room: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Room{}, fmt.Errorf("update room rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing room from a lost version race.
		var count int
		if err := s.sqlDB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM rooms WHERE id = ?`, room.ID).Scan(&count); err != nil {
			return domain.Room{}, fmt.Errorf("check room existence: %w", err)
		}
		if count == 0 {
			return domain.Room{}, storage.ErrNotFound
		}
		return domain.Room{}, storage.ErrVersionConflict
	}

	room.Version++
	return room, nil
}

// ListAvailableRooms returns joinable rooms, newest first.
func (s *Store) ListAvailableRooms(ctx context.Context, limit int) ([]domain.Room, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+roomColumns+` FROM rooms
WHERE status = ?
ORDER BY created_at DESC
LIMIT ?`, string(domain.StatusCreated), limit)
	if err != nil {
		return nil, fmt.Errorf("list available rooms: %w", err)
	}
	defer rows.Close()

	rooms, err := scanRooms(rows)
	if err != nil {
		return nil, err
	}

	// The joinable predicate also depends on capacity, which lives in a
	// JSON column; filter here rather than in SQL.
	joinable := rooms[:0]
	for _, room := range rooms {
		if room.CanJoin() {
			joinable = append(joinable, room)
		}
	}
	return joinable, nil
}

// ListRoomsByParticipant returns rooms containing the participant.
func (s *Store) ListRoomsByParticipant(ctx context.Context, participantID string) ([]domain.Room, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+roomColumns+` FROM rooms
WHERE EXISTS (
    SELECT 1 FROM json_each(rooms.participants) WHERE json_each.value = ?
)
ORDER BY created_at DESC`, participantID)
	if err != nil {
		return nil, fmt.Errorf("list rooms by participant: %w", err)
	}
	defer rows.Close()
	return scanRooms(rows)
}

// ListRoomsInactiveSince returns ACTIVE/PAUSED rooms idle past the cutoff.
func (s *Store) ListRoomsInactiveSince(ctx context.Context, cutoff time.Time) ([]domain.Room, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+roomColumns+` FROM rooms
WHERE status IN (?, ?) AND last_activity < ?
ORDER BY last_activity ASC`,
		string(domain.StatusActive), string(domain.StatusPaused), toMillis(cutoff))
	if err != nil {
		return nil, fmt.Errorf("list inactive rooms: %w", err)
	}
	defer rows.Close()
	return scanRooms(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (domain.Room, error) {
	var (
		room            domain.Room
		status          string
		phase           string
		participantsRaw string
		lastActivity    int64
		createdAt       int64
		updatedAt       int64
	)
	err := row.Scan(
		&room.ID,
		&room.GameID,
		&room.Name,
		&room.Description,
		&status,
		&phase,
		&room.CurrentTurn,
		&room.MaxParticipants,
		&participantsRaw,
		&room.Settings,
		&lastActivity,
		&createdAt,
		&updatedAt,
		&room.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("scan room: %w", err)
	}

	parsedStatus, ok := domain.ParseStatus(status)
	if !ok {
		return domain.Room{}, fmt.Errorf("invalid stored status %q", status)
	}
	parsedPhase, ok := domain.ParsePhase(phase)
	if !ok {
		return domain.Room{}, fmt.Errorf("invalid stored phase %q", phase)
	}
	participants, err := decodeStrings(participantsRaw)
	if err != nil {
		return domain.Room{}, err
	}

	room.Status = parsedStatus
	room.Phase = parsedPhase
	room.Participants = participants
	room.LastActivity = fromMillis(lastActivity)
	room.CreatedAt = fromMillis(createdAt)
	room.UpdatedAt = fromMillis(updatedAt)
	return room, nil
}

func scanRooms(rows *sql.Rows) ([]domain.Room, error) {
	var rooms []domain.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return rooms, nil
}

// Package coordinator owns the session state machine: room status and
// phase transitions, session liveness, and the generation-exclusivity
// lock. It is the sole admission-control point for oracle calls.
package coordinator

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log"
	"time"

	"github.com/dungeontalk/dungeontalk/internal/game/domain"
	"github.com/dungeontalk/dungeontalk/internal/game/storage"
	"github.com/dungeontalk/dungeontalk/internal/platform/errors"
)

// maxUpdateAttempts bounds the versioned read-modify-write retry loop.
const maxUpdateAttempts = 3

const (
	defaultSessionTTL = time.Hour
	defaultLockTTL    = 5 * time.Minute
)

// Stores groups the coordinator's storage dependencies.
type Stores struct {
	Rooms storage.RoomStore
	KV    storage.KeyValue
}

// Coordinator drives the session state machine for game rooms.
type Coordinator struct {
	stores     Stores
	sessionTTL time.Duration
	lockTTL    time.Duration
	clock      func() time.Time
}

// New creates a Coordinator. Non-positive TTLs fall back to the defaults
// (1h session, 5m lock).
func New(stores Stores, sessionTTL, lockTTL time.Duration) *Coordinator {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &Coordinator{
		stores:     stores,
		sessionTTL: sessionTTL,
		lockTTL:    lockTTL,
		clock:      time.Now,
	}
}

// SetClock overrides the coordinator's clock. Intended for tests.
func (c *Coordinator) SetClock(clock func() time.Time) {
	c.clock = clock
}

// sessionRecord mirrors room state into the liveness key. The key's
// existence is the authoritative liveness signal; the content is
// best-effort and may be briefly stale.
type sessionRecord struct {
	RoomID string `json:"roomId"`
	GameID string `json:"gameId"`
	Status string `json:"status"`
	Phase  string `json:"phase"`
	Turn   int    `json:"turn"`
}

// mutateRoom applies a read-modify-write with bounded retry on version
// conflicts.
func (c *Coordinator) mutateRoom(ctx context.Context, roomID string, mutate func(*domain.Room) error) (domain.Room, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		room, err := c.stores.Rooms.GetRoom(ctx, roomID)
		if stderrors.Is(err, storage.ErrNotFound) {
			return domain.Room{}, errors.WithMetadata(errors.CodeRoomNotFound, "room not found",
				map[string]string{"room_id": roomID})
		}
		if err != nil {
			return domain.Room{}, errors.Wrap(errors.CodeStoreUnavailable, "load room", err)
		}

		if err := mutate(&room); err != nil {
			return domain.Room{}, err
		}
		room.Touch(c.clock())

		updated, err := c.stores.Rooms.UpdateRoom(ctx, room)
		if stderrors.Is(err, storage.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return domain.Room{}, errors.Wrap(errors.CodeStoreUnavailable, "update room", err)
		}
		return updated, nil
	}
	return domain.Room{}, errors.WithMetadata(errors.CodeRoomVersionConflict,
		"room update lost repeated version races", map[string]string{"room_id": roomID})
}

// WriteLiveness creates or refreshes the session liveness record.
func (c *Coordinator) WriteLiveness(ctx context.Context, room domain.Room) error {
	record := sessionRecord{
		RoomID: room.ID,
		GameID: room.GameID,
		Status: string(room.Status),
		Phase:  string(room.Phase),
		Turn:   room.CurrentTurn,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(errors.CodeStoreUnavailable, "encode session record", err)
	}
	if err := c.stores.KV.SetWithTTL(ctx, domain.SessionKey(room.ID), string(payload), c.sessionTTL); err != nil {
		return errors.Wrap(errors.CodeStoreUnavailable, "write session liveness", err)
	}
	return nil
}

// refreshLiveness re-mirrors room state into an existing liveness key.
// Best effort: failures are logged, never returned.
func (c *Coordinator) refreshLiveness(ctx context.Context, room domain.Room) {
	ok, err := c.stores.KV.Exists(ctx, domain.SessionKey(room.ID))
	if err != nil || !ok {
		return
	}
	if err := c.WriteLiveness(ctx, room); err != nil {
		log.Printf("session mirror refresh failed room_id=%s err=%v", room.ID, err)
	}
}

// StartSession transitions a CREATED room to ACTIVE/TURN_INPUT and writes
// the session liveness record.
func (c *Coordinator) StartSession(ctx context.Context, roomID string) (domain.Room, error) {
	room, err := c.mutateRoom(ctx, roomID, func(room *domain.Room) error {
		if room.Status != domain.StatusCreated {
			return errors.WithMetadata(errors.CodeRoomInvalidState, "session can only start from CREATED",
				map[string]string{"room_id": roomID, "status": string(room.Status)})
		}
		room.Status = domain.StatusActive
		room.Phase = domain.PhaseTurnInput
		return nil
	})
	if err != nil {
		return domain.Room{}, err
	}

	if err := c.WriteLiveness(ctx, room); err != nil {
		return domain.Room{}, err
	}

	log.Printf("session started room_id=%s game_id=%s participants=%d", room.ID, room.GameID, len(room.Participants))
	return room, nil
}

// ChangePhase sets the room phase. The room must be ACTIVE.
func (c *Coordinator) ChangePhase(ctx context.Context, roomID string, phase domain.Phase) (domain.Room, error) {
	if _, ok := domain.ParsePhase(string(phase)); !ok {
		return domain.Room{}, errors.WithMetadata(errors.CodeInvalidPhase, "unknown phase",
			map[string]string{"room_id": roomID, "phase": string(phase)})
	}
	room, err := c.mutateRoom(ctx, roomID, func(room *domain.Room) error {
		if room.Status != domain.StatusActive {
			return errors.WithMetadata(errors.CodeRoomInvalidState, "phase change requires ACTIVE status",
				map[string]string{"room_id": roomID, "status": string(room.Status)})
		}
		room.Phase = phase
		return nil
	})
	if err != nil {
		return domain.Room{}, err
	}

	c.refreshLiveness(ctx, room)
	log.Printf("phase changed room_id=%s phase=%s", roomID, phase)
	return room, nil
}

// AcquireGenerationLock atomically claims the room's generation lock and
// moves the phase to AI_RESPONSE. A false return means another generation
// is already in flight; the caller must not proceed.
func (c *Coordinator) AcquireGenerationLock(ctx context.Context, roomID string) (bool, error) {
	claimed, err := c.stores.KV.SetIfAbsentWithTTL(ctx, domain.LockKey(roomID), domain.LockValue, c.lockTTL)
	if err != nil {
		// Fail closed: without the store we cannot guarantee exclusivity.
		return false, errors.Wrap(errors.CodeStoreUnavailable, "claim generation lock", err)
	}
	if !claimed {
		log.Printf("generation lock contended room_id=%s", roomID)
		return false, nil
	}

	if _, err := c.ChangePhase(ctx, roomID, domain.PhaseAIResponse); err != nil {
		// The phase gate failed after the claim; give the lock back so the
		// room cannot wedge until TTL expiry.
		if delErr := c.stores.KV.Delete(ctx, domain.LockKey(roomID)); delErr != nil {
			log.Printf("lock rollback failed room_id=%s err=%v", roomID, delErr)
		}
		return false, err
	}

	log.Printf("generation lock acquired room_id=%s ttl=%s", roomID, c.lockTTL)
	return true, nil
}

// ReleaseGenerationLock deletes the room's generation lock and, when the
// room is still mid-generation, returns the phase to TURN_INPUT. Safe to
// call when no lock is held.
func (c *Coordinator) ReleaseGenerationLock(ctx context.Context, roomID string) error {
	if err := c.stores.KV.Delete(ctx, domain.LockKey(roomID)); err != nil {
		return errors.Wrap(errors.CodeStoreUnavailable, "delete generation lock", err)
	}

	_, err := c.mutateRoom(ctx, roomID, func(room *domain.Room) error {
		if room.Status != domain.StatusActive || room.Phase != domain.PhaseAIResponse {
			// Nothing to roll back; the release itself stays idempotent.
			return errSkipUpdate
		}
		room.Phase = domain.PhaseTurnInput
		return nil
	})
	if err != nil && !stderrors.Is(err, errSkipUpdate) {
		return err
	}

	log.Printf("generation lock released room_id=%s", roomID)
	return nil
}

// errSkipUpdate aborts mutateRoom without surfacing an error to callers.
var errSkipUpdate = stderrors.New("skip room update")

// AdvanceTurn increments the turn counter and opens input for the next
// turn. Returns the new turn number.
func (c *Coordinator) AdvanceTurn(ctx context.Context, roomID string) (int, error) {
	room, err := c.mutateRoom(ctx, roomID, func(room *domain.Room) error {
		if room.Status != domain.StatusActive {
			return errors.WithMetadata(errors.CodeRoomInvalidState, "turn advance requires ACTIVE status",
				map[string]string{"room_id": roomID, "status": string(room.Status)})
		}
		room.CurrentTurn++
		room.Phase = domain.PhaseTurnInput
		return nil
	})
	if err != nil {
		return 0, err
	}

	c.refreshLiveness(ctx, room)
	log.Printf("turn advanced room_id=%s turn=%d", roomID, room.CurrentTurn)
	return room.CurrentTurn, nil
}

// Pause suspends an ACTIVE room and force-releases any generation lock; an
// in-flight generation is treated as abandoned.
func (c *Coordinator) Pause(ctx context.Context, roomID, reason string) error {
	_, err := c.mutateRoom(ctx, roomID, func(room *domain.Room) error {
		if room.Status != domain.StatusActive {
			return errors.WithMetadata(errors.CodeRoomInvalidState, "pause requires ACTIVE status",
				map[string]string{"room_id": roomID, "status": string(room.Status)})
		}
		room.Status = domain.StatusPaused
		return nil
	})
	if err != nil {
		return err
	}

	if err := c.stores.KV.Delete(ctx, domain.LockKey(roomID)); err != nil {
		log.Printf("lock cleanup on pause failed room_id=%s err=%v", roomID, err)
	}

	log.Printf("session paused room_id=%s reason=%q", roomID, reason)
	return nil
}

// Resume returns a PAUSED room to ACTIVE/TURN_INPUT.
func (c *Coordinator) Resume(ctx context.Context, roomID string) error {
	room, err := c.mutateRoom(ctx, roomID, func(room *domain.Room) error {
		if room.Status != domain.StatusPaused {
			return errors.WithMetadata(errors.CodeRoomInvalidState, "resume requires PAUSED status",
				map[string]string{"room_id": roomID, "status": string(room.Status)})
		}
		room.Status = domain.StatusActive
		room.Phase = domain.PhaseTurnInput
		return nil
	})
	if err != nil {
		return err
	}

	c.refreshLiveness(ctx, room)
	log.Printf("session resumed room_id=%s", room.ID)
	return nil
}

// EndSession completes a room and removes its ephemeral keys.
func (c *Coordinator) EndSession(ctx context.Context, roomID string) error {
	_, err := c.mutateRoom(ctx, roomID, func(room *domain.Room) error {
		room.Status = domain.StatusCompleted
		room.Phase = domain.PhaseGameEnd
		return nil
	})
	if err != nil {
		return err
	}

	c.deleteEphemeralKeys(ctx, roomID)
	log.Printf("session ended room_id=%s", roomID)
	return nil
}

// MarkFailed moves a room into the terminal ERROR state. Recovery is a
// manual operation.
func (c *Coordinator) MarkFailed(ctx context.Context, roomID, reason string) error {
	_, err := c.mutateRoom(ctx, roomID, func(room *domain.Room) error {
		room.Status = domain.StatusError
		room.Phase = domain.PhaseGameEnd
		return nil
	})
	if err != nil {
		return err
	}

	c.deleteEphemeralKeys(ctx, roomID)
	log.Printf("session failed room_id=%s reason=%q", roomID, reason)
	return nil
}

func (c *Coordinator) deleteEphemeralKeys(ctx context.Context, roomID string) {
	if err := c.stores.KV.Delete(ctx, domain.SessionKey(roomID)); err != nil {
		log.Printf("session key cleanup failed room_id=%s err=%v", roomID, err)
	}
	if err := c.stores.KV.Delete(ctx, domain.LockKey(roomID)); err != nil {
		log.Printf("lock key cleanup failed room_id=%s err=%v", roomID, err)
	}
}

// IsSessionLive reports whether the room's liveness key exists. Store
// errors read as "not live": failing closed here can invalidate a live
// session during an outage, but never wedges a room forever.
func (c *Coordinator) IsSessionLive(ctx context.Context, roomID string) bool {
	ok, err := c.stores.KV.Exists(ctx, domain.SessionKey(roomID))
	if err != nil {
		log.Printf("liveness check failed room_id=%s err=%v", roomID, err)
		return false
	}
	return ok
}

// IsGenerationInFlight reports whether the room's generation lock exists.
// Store errors read as "not locked" for the same liveness tradeoff as
// IsSessionLive.
func (c *Coordinator) IsGenerationInFlight(ctx context.Context, roomID string) bool {
	ok, err := c.stores.KV.Exists(ctx, domain.LockKey(roomID))
	if err != nil {
		log.Printf("lock check failed room_id=%s err=%v", roomID, err)
		return false
	}
	return ok
}

// ExtendLiveness refreshes the session TTL if the session is live. No-op
// for rooms without a liveness key.
func (c *Coordinator) ExtendLiveness(ctx context.Context, roomID string) error {
	key := domain.SessionKey(roomID)
	ok, err := c.stores.KV.Exists(ctx, key)
	if err != nil {
		return errors.Wrap(errors.CodeStoreUnavailable, "check session liveness", err)
	}
	if !ok {
		return nil
	}
	if err := c.stores.KV.Expire(ctx, key, c.sessionTTL); err != nil {
		return errors.Wrap(errors.CodeStoreUnavailable, "extend session liveness", err)
	}
	return nil
}

// ReapExpired completes ACTIVE/PAUSED rooms idle longer than olderThan and
// removes their ephemeral keys. Rooms are processed independently; one
// failure does not stop the sweep. Returns the number of rooms reclaimed.
func (c *Coordinator) ReapExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := c.clock().Add(-olderThan)
	rooms, err := c.stores.Rooms.ListRoomsInactiveSince(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(errors.CodeStoreUnavailable, "list inactive rooms", err)
	}

	reaped := 0
	for _, room := range rooms {
		_, err := c.mutateRoom(ctx, room.ID, func(room *domain.Room) error {
			if room.Status != domain.StatusActive && room.Status != domain.StatusPaused {
				return errSkipUpdate
			}
			room.Status = domain.StatusCompleted
			room.Phase = domain.PhaseGameEnd
			return nil
		})
		if stderrors.Is(err, errSkipUpdate) {
			continue
		}
		if err != nil {
			log.Printf("reap failed room_id=%s err=%v", room.ID, err)
			continue
		}
		c.deleteEphemeralKeys(ctx, room.ID)
		reaped++
	}

	if reaped > 0 {
		log.Printf("inactive sessions reaped count=%d cutoff=%s", reaped, cutoff.Format(time.RFC3339))
	}
	return reaped, nil
}

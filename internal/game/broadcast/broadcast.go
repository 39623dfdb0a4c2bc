// Package broadcast fans out room events to subscribers. Delivery is
// fire-and-forget: no consumer acknowledgement, at-most-once per subscriber.
package broadcast

import (
	"context"

	"github.com/dungeontalk/dungeontalk/internal/game/domain"
)

// Broadcaster publishes a message to all subscribers of a room.
type Broadcaster interface {
	Publish(ctx context.Context, roomID string, msg domain.Message) error
}

// Fanout publishes to several broadcasters, returning the first error after
// attempting all of them.
type Fanout []Broadcaster

// Publish implements Broadcaster.
func (f Fanout) Publish(ctx context.Context, roomID string, msg domain.Message) error {
	var firstErr error
	for _, b := range f {
		if err := b.Publish(ctx, roomID, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Discard is a Broadcaster that drops everything. Useful in tests.
type Discard struct{}

// Publish implements Broadcaster.
func (Discard) Publish(ctx context.Context, roomID string, msg domain.Message) error {
	return nil
}

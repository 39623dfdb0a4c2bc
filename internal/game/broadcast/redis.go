package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dungeontalk/dungeontalk/internal/game/domain"
)

// roomChannel returns the pub/sub channel for a room.
func roomChannel(roomID string) string {
	return "aichat:room:" + roomID
}

// RedisPublisher relays room messages over Redis pub/sub so subscribers on
// other processes see them.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a publisher on an existing client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish implements Broadcaster.
func (p *RedisPublisher) Publish(ctx context.Context, roomID string, msg domain.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return p.client.Publish(ctx, roomChannel(roomID), payload).Err()
}

// Subscribe delivers messages published for a room on any process. The
// returned channel closes when ctx is done.
func Subscribe(ctx context.Context, client *redis.Client, roomID string) <-chan domain.Message {
	out := make(chan domain.Message, subscriberBuffer)
	sub := client.Subscribe(ctx, roomChannel(roomID))

	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub.Channel():
				if !ok {
					return
				}
				var msg domain.Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					continue
				}
				select {
				case out <- msg:
				default:
				}
			}
		}
	}()

	return out
}

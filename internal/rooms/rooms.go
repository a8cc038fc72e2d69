// README: Legacy room channel over Redis pub/sub; at-most-once fanout keyed by entity ID.
package rooms

import (
	"context"

	"github.com/redis/go-redis/v9"

	"dishpatch/internal/types"
)

const keyPrefix = "room:"

// Room names older clients already join; the taxonomy is frozen.
func OrderRoom(id types.ID) string   { return "order:" + string(id) }
func UserRoom(id types.ID) string    { return "user:" + string(id) }
func CourierRoom(id types.ID) string { return "courier:" + string(id) }

// Channel mirrors every order event onto per-entity Redis channels.
// Redis pub/sub is fire-and-forget: no redelivery, no backlog, which is
// exactly the contract the legacy clients were built against.
type Channel struct {
	redis *redis.Client
}

func NewChannel(r *redis.Client) *Channel {
	return &Channel{redis: r}
}

func (c *Channel) Emit(ctx context.Context, room string, payload []byte) error {
	return c.redis.Publish(ctx, keyPrefix+room, payload).Err()
}

// Listen streams a room's payloads until cancel is called.
func (c *Channel) Listen(ctx context.Context, room string) (<-chan []byte, func(), error) {
	sub := c.redis.Subscribe(ctx, keyPrefix+room)
	// Receive forces the SUBSCRIBE round trip so a bad address fails here,
	// not silently in the pump goroutine.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for m := range sub.Channel() {
			select {
			case out <- []byte(m.Payload):
			default:
			}
		}
	}()
	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}

// README: Event envelope, event keys, and the sink/broker transport contracts.
package events

import (
	"context"
	"fmt"
	"time"

	"dishpatch/internal/modules/order"
	"dishpatch/internal/topics"
	"dishpatch/internal/types"
)

// Event is the full-state envelope carried on most topics. Consumers
// that only want a signal subscribe to the order status topic, which
// carries StatusPing instead.
type Event struct {
	Kind           topics.Kind  `json:"kind"`
	Key            string       `json:"key"`
	Order          *order.Order `json:"order"`
	PreviousStatus order.Status `json:"previous_status,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}

// StatusPing is the minimal projection for lightweight status topics.
type StatusPing struct {
	OrderID   types.ID     `json:"order_id"`
	Status    order.Status `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
}

// EventKey is unique per (order, kind, status) and is what consumers
// feed the duplicate-suppression cache.
func EventKey(orderID types.ID, kind topics.Kind, status order.Status) string {
	return fmt.Sprintf("%s:%s:%s", orderID, kind, status)
}

// Message is one broker delivery.
type Message struct {
	Topic   string
	Payload []byte
}

// Sink is anything that can carry one message to one topic. The
// publisher treats every sink as unreliable: errors are logged and
// swallowed, never propagated to the mutating request.
type Sink interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Broker is a subscribe-capable transport. Subscriptions may be
// umbrella prefixes; the transport matches every sub-topic under them.
// The returned cancel func tears the subscription down.
type Broker interface {
	Sink
	Subscribe(ctx context.Context, subscription string) (<-chan Message, func(), error)
}

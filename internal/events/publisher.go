// README: Event publisher; fans each accepted mutation out to its topic set and mirrors it to the legacy rooms.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"dishpatch/internal/modules/order"
	"dishpatch/internal/rooms"
	"dishpatch/internal/topics"
)

// RoomSink is the legacy room channel: at-most-once fanout keyed by
// order/user/courier ID, kept for older clients.
type RoomSink interface {
	Emit(ctx context.Context, room string, payload []byte) error
}

type Publisher struct {
	broker Sink
	rooms  RoomSink
	log    *logrus.Logger
}

// NewPublisher accepts nil sinks; a nil broker degrades to REST-only
// operation and a nil room sink skips the legacy mirror.
func NewPublisher(broker Sink, rooms RoomSink, log *logrus.Logger) *Publisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Publisher{broker: broker, rooms: rooms, log: log}
}

func (p *Publisher) OrderCreated(ctx context.Context, o *order.Order) {
	p.publish(ctx, topics.KindCreated, o, "")
}

func (p *Publisher) StatusUpdated(ctx context.Context, o *order.Order, previous order.Status) {
	p.publish(ctx, topics.KindStatusUpdated, o, previous)
}

func (p *Publisher) CourierAssigned(ctx context.Context, o *order.Order, previous order.Status) {
	p.publish(ctx, topics.KindCourierAssigned, o, previous)
}

// TopicSet computes every topic that must receive an event for this
// order and kind: the global kind topic, the order status topic, the
// restaurant topic, the user topic, and the courier topic when a
// courier is assigned.
func TopicSet(o *order.Order, kind topics.Kind) []string {
	restaurant := topics.RestaurantOrderUpdates(o.RestaurantID)
	if kind == topics.KindCreated {
		restaurant = topics.RestaurantOrders(o.RestaurantID)
	}
	set := []string{
		topics.OrderEvents(kind),
		topics.OrderStatus(o.ID),
		restaurant,
		topics.UserOrderStatus(o.UserID, o.ID),
	}
	if o.CourierID != nil {
		set = append(set, topics.CourierAssignments(*o.CourierID))
	}
	return set
}

func (p *Publisher) publish(ctx context.Context, kind topics.Kind, o *order.Order, previous order.Status) {
	now := time.Now().UTC()

	// The delivery PIN never leaves the order API; events reach
	// restaurant staff and couriers who must not see it.
	o.DeliveryPIN = ""

	envelope, err := json.Marshal(Event{
		Kind:           kind,
		Key:            EventKey(o.ID, kind, o.Status),
		Order:          o,
		PreviousStatus: previous,
		Timestamp:      now,
	})
	if err != nil {
		p.log.WithError(err).Error("event encode failed")
		return
	}
	ping, err := json.Marshal(StatusPing{OrderID: o.ID, Status: o.Status, Timestamp: now})
	if err != nil {
		p.log.WithError(err).Error("ping encode failed")
		return
	}

	if p.broker != nil {
		statusTopic := topics.OrderStatus(o.ID)
		for _, topic := range TopicSet(o, kind) {
			payload := envelope
			if topic == statusTopic {
				payload = ping
			}
			if err := p.broker.Publish(ctx, topic, payload); err != nil {
				p.log.WithError(err).WithFields(logrus.Fields{
					"order_id": o.ID,
					"topic":    topic,
				}).Error("event publish failed")
			}
		}
	}

	if p.rooms != nil {
		roomKeys := []string{rooms.OrderRoom(o.ID), rooms.UserRoom(o.UserID)}
		if o.CourierID != nil {
			roomKeys = append(roomKeys, rooms.CourierRoom(*o.CourierID))
		}
		for _, room := range roomKeys {
			if err := p.rooms.Emit(ctx, room, envelope); err != nil {
				p.log.WithError(err).WithFields(logrus.Fields{
					"order_id": o.ID,
					"room":     room,
				}).Error("room emit failed")
			}
		}
	}
}

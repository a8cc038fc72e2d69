// README: Publisher fanout tests (topic set, payload forms, room mirror, failure swallowing).
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"dishpatch/internal/modules/order"
	"dishpatch/internal/rooms"
	"dishpatch/internal/topics"
	"dishpatch/internal/types"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (r *recordingSink) Publish(ctx context.Context, topic string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, Message{Topic: topic, Payload: payload})
	return nil
}

type recordingRooms struct {
	mu    sync.Mutex
	emits map[string][]byte
}

func (r *recordingRooms) Emit(ctx context.Context, room string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emits == nil {
		r.emits = make(map[string][]byte)
	}
	r.emits[room] = payload
	return nil
}

func testOrder(courier *types.ID) *order.Order {
	return &order.Order{
		ID:           "o1",
		UserID:       "u1",
		RestaurantID: "r1",
		CourierID:    courier,
		Status:       order.StatusCreated,
		Items:        []order.Item{{Name: "Slice", UnitPrice: types.FromFloat(5), Quantity: 1}},
		TotalPrice:   types.FromFloat(5),
		DeliveryPIN:  "1234",
	}
}

func TestTopicSetCounts(t *testing.T) {
	if got := TopicSet(testOrder(nil), topics.KindCreated); len(got) != 4 {
		t.Fatalf("topic set without courier = %v, want 4 topics", got)
	}
	cid := types.ID("c1")
	got := TopicSet(testOrder(&cid), topics.KindStatusUpdated)
	if len(got) != 5 {
		t.Fatalf("topic set with courier = %v, want 5 topics", got)
	}
	want := map[string]bool{
		"orders/events/status_updated":  true,
		"orders/o1/status":              true,
		"restaurants/r1/orders/updated": true,
		"users/u1/orders/o1/status":     true,
		"couriers/c1/assignments":       true,
	}
	for _, topic := range got {
		if !want[topic] {
			t.Errorf("unexpected topic %q", topic)
		}
	}
}

func TestTopicSetCreatedUsesRestaurantOrders(t *testing.T) {
	for _, topic := range TopicSet(testOrder(nil), topics.KindCreated) {
		if topic == "restaurants/r1/orders/updated" {
			t.Fatal("created events must go to restaurants/{id}/orders, not the updated topic")
		}
	}
}

func TestPublishPayloadForms(t *testing.T) {
	sink := &recordingSink{}
	roomRec := &recordingRooms{}
	p := NewPublisher(sink, roomRec, nil)

	cid := types.ID("c1")
	o := testOrder(&cid)
	o.Status = order.StatusPickedUp
	p.CourierAssigned(context.Background(), o, order.StatusReadyForPickup)

	if len(sink.msgs) != 5 {
		t.Fatalf("published %d messages, want 5", len(sink.msgs))
	}
	for _, msg := range sink.msgs {
		if msg.Topic == topics.OrderStatus("o1") {
			var ping StatusPing
			if err := json.Unmarshal(msg.Payload, &ping); err != nil {
				t.Fatalf("status topic payload: %v", err)
			}
			if ping.OrderID != "o1" || ping.Status != order.StatusPickedUp {
				t.Fatalf("unexpected ping: %+v", ping)
			}
			continue
		}
		var ev Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			t.Fatalf("envelope payload on %s: %v", msg.Topic, err)
		}
		if ev.Kind != topics.KindCourierAssigned {
			t.Errorf("kind = %s on %s", ev.Kind, msg.Topic)
		}
		if ev.Key != EventKey("o1", topics.KindCourierAssigned, order.StatusPickedUp) {
			t.Errorf("event key = %q", ev.Key)
		}
		if ev.PreviousStatus != order.StatusReadyForPickup {
			t.Errorf("previous status = %s", ev.PreviousStatus)
		}
		if ev.Order.DeliveryPIN != "" {
			t.Error("delivery pin leaked into event payload")
		}
	}

	for _, room := range []string{rooms.OrderRoom("o1"), rooms.UserRoom("u1"), rooms.CourierRoom("c1")} {
		if _, ok := roomRec.emits[room]; !ok {
			t.Errorf("room %q missed the mirror", room)
		}
	}
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("broker down")}
	p := NewPublisher(sink, nil, nil)
	// must not panic or propagate anything
	p.OrderCreated(context.Background(), testOrder(nil))
}

func TestNilSinksDegradeQuietly(t *testing.T) {
	p := NewPublisher(nil, nil, nil)
	p.StatusUpdated(context.Background(), testOrder(nil), order.StatusCreated)
}

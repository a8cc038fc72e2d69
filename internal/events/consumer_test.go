// README: Memory bus and consumer tests (umbrella matching, duplicate suppression).
package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"dishpatch/internal/modules/order"
	"dishpatch/internal/topics"
	"dishpatch/internal/types"
)

func TestMemoryBusUmbrellaMatch(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	umbrella, cancelU, err := bus.Subscribe(ctx, "restaurants/r1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelU()
	other, cancelO, err := bus.Subscribe(ctx, "restaurants/r2")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelO()

	if err := bus.Publish(ctx, "restaurants/r1/orders", []byte(`{}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-umbrella:
		if msg.Topic != "restaurants/r1/orders" {
			t.Fatalf("topic = %s", msg.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("umbrella subscriber missed the message")
	}
	select {
	case msg := <-other:
		t.Fatalf("r2 subscriber received %s", msg.Topic)
	default:
	}
}

func TestMemoryBusCancelClosesChannel(t *testing.T) {
	bus := NewMemoryBus()
	msgs, cancel, err := bus.Subscribe(context.Background(), "orders/events/created")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	if _, ok := <-msgs; ok {
		t.Fatal("channel still open after cancel")
	}
	// double cancel must be safe
	cancel()
}

func TestConsumerSuppressesRedelivery(t *testing.T) {
	bus := NewMemoryBus()
	dedup := NewDedup(100, time.Hour)
	consumer := NewConsumer(bus, dedup, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan Event, 8)
	go func() {
		_ = consumer.Run(ctx, "restaurants/r1", func(_ context.Context, ev Event) {
			handled <- ev
		})
	}()
	// give the consumer a beat to subscribe
	time.Sleep(20 * time.Millisecond)

	payload, _ := json.Marshal(Event{
		Kind:  topics.KindCreated,
		Key:   EventKey("o1", topics.KindCreated, order.StatusCreated),
		Order: testOrder(nil),
	})
	// redelivery: the same logical event arrives twice
	_ = bus.Publish(ctx, "restaurants/r1/orders", payload)
	_ = bus.Publish(ctx, "restaurants/r1/orders", payload)

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("event never handled")
	}
	select {
	case ev := <-handled:
		t.Fatalf("duplicate handled: %s", ev.Key)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestServicePublishesThroughBus(t *testing.T) {
	bus := NewMemoryBus()
	publisher := NewPublisher(bus, nil, nil)
	svc := order.NewService(order.NewMemStore(), publisher)
	ctx := context.Background()

	msgs, cancel, err := bus.Subscribe(ctx, "orders/events/created")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	o, err := svc.Create(ctx, order.CreateCommand{
		UserID:       "u1",
		RestaurantID: "r1",
		Items: []order.ItemInput{
			{Name: "Slice", UnitPrice: types.FromFloat(5.00), Quantity: 2},
			{Name: "Soda", UnitPrice: types.FromFloat(3.00), Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case msg := <-msgs:
		var ev Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Kind != topics.KindCreated || ev.Order.ID != o.ID {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if ev.Order.TotalPrice.Float() != 13.00 {
			t.Fatalf("total = %.2f", ev.Order.TotalPrice.Float())
		}
		if ev.Order.DeliveryPIN != "" {
			t.Fatal("pin leaked")
		}
	case <-time.After(time.Second):
		t.Fatal("created event never published")
	}
}

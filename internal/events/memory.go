// README: In-memory broker for tests and single-process runs.
package events

import (
	"context"
	"sync"

	"dishpatch/internal/topics"
)

// MemoryBus implements Broker without any external service. Delivery is
// per-subscriber buffered; a full subscriber buffer drops the message,
// which mirrors the at-most-once behavior slow consumers get from the
// real transports.
type MemoryBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*memorySub
}

type memorySub struct {
	subscription string
	ch           chan Message
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]*memorySub)}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if !topics.Match(s.subscription, topic) {
			continue
		}
		select {
		case s.ch <- Message{Topic: topic, Payload: payload}:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, subscription string) (<-chan Message, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	s := &memorySub{subscription: subscription, ch: make(chan Message, 64)}
	b.subs[id] = s

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if cur, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(cur.ch)
		}
	}
	return s.ch, cancel, nil
}

// SubscriberCount reports the number of live subscriptions.
func (b *MemoryBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

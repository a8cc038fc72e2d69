// README: Gateway hub; one broker connection, N client sessions, reference-counted topic relay.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"dishpatch/internal/events"
)

// Frame is one client request on the wire.
type Frame struct {
	Type    string          `json:"type"` // subscribe | unsubscribe | publish
	Topic   string          `json:"topic"`
	Message json.RawMessage `json:"message,omitempty"`
}

// Delivery is one broker message pushed down to a client.
type Delivery struct {
	Topic   string          `json:"topic"`
	Message json.RawMessage `json:"message"`
}

// Session is one connected client. Its subscription set lives in the
// hub table; the outbound channel is buffered so a slow or broken
// client only ever loses its own frames.
type Session struct {
	id   string
	out  chan Delivery
	subs map[string]struct{}
}

// Out is the session's outbound stream; closed when the session is torn down.
func (s *Session) Out() <-chan Delivery { return s.out }

func (s *Session) ID() string { return s.id }

type topicSub struct {
	refs   int
	cancel func()
}

// Hub is the only cross-connection shared mutable state in the bridge
// process; every mutation of its tables happens under mu.
type Hub struct {
	broker events.Broker
	log    *logrus.Logger
	buffer int

	mu       sync.Mutex
	nextID   int
	sessions map[*Session]struct{}
	topics   map[string]*topicSub
}

func NewHub(broker events.Broker, buffer int, log *logrus.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		broker:   broker,
		log:      log,
		buffer:   buffer,
		sessions: make(map[*Session]struct{}),
		topics:   make(map[string]*topicSub),
	}
}

// NewSession registers a connected client.
func (h *Hub) NewSession() *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &Session{
		id:   fmt.Sprintf("session-%d", h.nextID),
		out:  make(chan Delivery, h.buffer),
		subs: make(map[string]struct{}),
	}
	h.sessions[s] = struct{}{}
	return s
}

// HandleFrame dispatches one client frame.
func (h *Hub) HandleFrame(ctx context.Context, s *Session, f Frame) error {
	switch f.Type {
	case "subscribe":
		return h.Subscribe(ctx, s, f.Topic)
	case "unsubscribe":
		h.Unsubscribe(s, f.Topic)
		return nil
	case "publish":
		// forwarded verbatim; application semantics are validated
		// upstream by the order API, not here
		return h.broker.Publish(ctx, f.Topic, f.Message)
	default:
		return fmt.Errorf("unknown frame type %q", f.Type)
	}
}

// Subscribe adds the topic to the session's set and opens a broker
// subscription if this is the first interested session.
func (h *Hub) Subscribe(ctx context.Context, s *Session, topic string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		return fmt.Errorf("session closed")
	}
	if _, ok := s.subs[topic]; ok {
		return nil
	}
	sub, ok := h.topics[topic]
	if !ok {
		msgs, cancel, err := h.broker.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		sub = &topicSub{cancel: cancel}
		h.topics[topic] = sub
		go h.relay(topic, msgs)
	}
	sub.refs++
	s.subs[topic] = struct{}{}
	return nil
}

// Unsubscribe removes the topic; the broker subscription is dropped
// once no session remains interested.
func (h *Hub) Unsubscribe(s *Session, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(s, topic)
}

func (h *Hub) unsubscribeLocked(s *Session, topic string) {
	if _, ok := s.subs[topic]; !ok {
		return
	}
	delete(s.subs, topic)
	sub, ok := h.topics[topic]
	if !ok {
		return
	}
	sub.refs--
	if sub.refs <= 0 {
		delete(h.topics, topic)
		sub.cancel()
	}
}

// CloseSession tears the session down and decrements every refcount it held.
func (h *Hub) CloseSession(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		return
	}
	for topic := range s.subs {
		h.unsubscribeLocked(s, topic)
	}
	delete(h.sessions, s)
	close(s.out)
}

// relay pumps one broker subscription into every session holding it.
// Sessions are independent: a full outbound buffer drops the frame for
// that session only and never blocks the others.
func (h *Hub) relay(subscription string, msgs <-chan events.Message) {
	for msg := range msgs {
		d := Delivery{Topic: msg.Topic, Message: msg.Payload}
		h.mu.Lock()
		for s := range h.sessions {
			if _, ok := s.subs[subscription]; !ok {
				continue
			}
			select {
			case s.out <- d:
			default:
				h.log.WithFields(logrus.Fields{
					"session": s.id,
					"topic":   msg.Topic,
				}).Warn("slow session, frame dropped")
			}
		}
		h.mu.Unlock()
	}
}

// SessionCount is used by the health endpoint.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

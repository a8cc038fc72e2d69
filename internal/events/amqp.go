// README: RabbitMQ broker; topic exchange with wildcard bindings, reconnect, and subscription replay.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"dishpatch/internal/topics"
)

// ErrTransportUnavailable means the broker is unreachable; callers
// degrade to REST-only operation and reconcile on the next refetch.
var ErrTransportUnavailable = errors.New("transport unavailable")

const redialBackoff = 2 * time.Second

// AMQPBroker carries topics on a RabbitMQ topic exchange. "/"-separated
// topics become "."-separated routing keys; umbrella subscriptions bind
// with a trailing "#" so the broker does the prefix matching. The
// transport is at-least-once: consumers must dedup.
type AMQPBroker struct {
	url      string
	exchange string
	log      *logrus.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	pub  *amqp.Channel

	closed chan struct{}
}

func DialAMQPBroker(url, exchange string, log *logrus.Logger) (*AMQPBroker, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	b := &AMQPBroker{url: url, exchange: exchange, log: log, closed: make(chan struct{})}
	if err := b.dial(); err != nil {
		return nil, err
	}
	go b.redialLoop()
	return b, nil
}

func (b *AMQPBroker) dial() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(b.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return err
	}
	b.mu.Lock()
	b.conn = conn
	b.pub = ch
	b.mu.Unlock()
	return nil
}

// redialLoop re-establishes the connection whenever the broker drops
// it. Active subscriptions notice their channel close and re-bind
// themselves against the fresh connection.
func (b *AMQPBroker) redialLoop() {
	for {
		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()
		if conn == nil {
			return
		}
		closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-b.closed:
			return
		case e := <-closeCh:
			if e != nil {
				b.log.WithField("reason", e.Reason).Error("amqp connection closed")
			}
		}
		b.mu.Lock()
		b.conn = nil
		b.pub = nil
		b.mu.Unlock()
		for {
			select {
			case <-b.closed:
				return
			case <-time.After(redialBackoff):
			}
			if err := b.dial(); err != nil {
				b.log.WithError(err).Error("amqp redial failed")
				continue
			}
			b.log.Info("amqp reconnected")
			break
		}
	}
}

func (b *AMQPBroker) Close() {
	close(b.closed)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pub != nil {
		_ = b.pub.Close()
	}
	if b.conn != nil {
		_ = b.conn.Close()
	}
	b.conn, b.pub = nil, nil
}

func (b *AMQPBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pub == nil {
		return ErrTransportUnavailable
	}
	return b.pub.PublishWithContext(ctx, b.exchange, topics.RoutingKey(topic), false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		Body:        payload,
	})
}

func (b *AMQPBroker) channel() (*amqp.Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil, ErrTransportUnavailable
	}
	return b.conn.Channel()
}

// Subscribe binds an exclusive queue for the subscription and streams
// deliveries until cancel is called. A dropped connection re-binds once
// the redial loop brings the transport back; messages published during
// the gap are not replayed (consumers treat the query layer as the
// authority).
func (b *AMQPBroker) Subscribe(ctx context.Context, subscription string) (<-chan Message, func(), error) {
	out := make(chan Message, 64)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(done) }) }

	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case <-b.closed:
				return
			default:
			}
			if !b.consumeOnce(subscription, out, done) {
				return
			}
			// reconnect gap
			select {
			case <-done:
				return
			case <-b.closed:
				return
			case <-time.After(redialBackoff):
			}
		}
	}()
	return out, cancel, nil
}

// consumeOnce runs one consumer session; it returns true when the
// session ended due to a transport failure and should be retried.
func (b *AMQPBroker) consumeOnce(subscription string, out chan<- Message, done <-chan struct{}) bool {
	ch, err := b.channel()
	if err != nil {
		return true
	}
	defer ch.Close()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		b.log.WithError(err).Error("amqp queue declare failed")
		return true
	}
	if err := ch.QueueBind(q.Name, topics.BindingKey(subscription), b.exchange, false, nil); err != nil {
		b.log.WithError(err).Error("amqp queue bind failed")
		return true
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		b.log.WithError(err).Error("amqp consume failed")
		return true
	}

	for {
		select {
		case <-done:
			return false
		case <-b.closed:
			return false
		case d, ok := <-deliveries:
			if !ok {
				return true
			}
			msg := Message{Topic: topics.FromRoutingKey(d.RoutingKey), Payload: d.Body}
			select {
			case out <- msg:
			case <-done:
				return false
			}
		}
	}
}

// README: Side-effecting event consumer; suppresses duplicate deliveries by event key.
package events

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
)

type HandlerFunc func(ctx context.Context, ev Event)

// Consumer runs a handler once per logical event despite at-least-once
// delivery. A nil dedup degrades to treating every delivery as new,
// trading duplicate work for availability.
type Consumer struct {
	broker Broker
	dedup  *Dedup
	log    *logrus.Logger
}

func NewConsumer(broker Broker, dedup *Dedup, log *logrus.Logger) *Consumer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Consumer{broker: broker, dedup: dedup, log: log}
}

// Run blocks until ctx is canceled, delivering each first-seen event on
// the subscription to handle.
func (c *Consumer) Run(ctx context.Context, subscription string, handle HandlerFunc) error {
	msgs, cancel, err := c.broker.Subscribe(ctx, subscription)
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				c.log.WithError(err).WithField("topic", msg.Topic).Debug("skipping undecodable event")
				continue
			}
			if c.dedup != nil && ev.Key != "" && c.dedup.SeenBefore(ev.Key) {
				continue
			}
			handle(ctx, ev)
		}
	}
}

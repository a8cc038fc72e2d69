// README: RabbitMQ connection helper; declares the orders topic exchange.
package infra

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// DialRabbit opens a connection and declares the topic exchange the
// event publisher and the bridge both use.
func DialRabbit(url, exchange string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

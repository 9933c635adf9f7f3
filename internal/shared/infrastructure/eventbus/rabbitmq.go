package eventbus

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeName is the topic exchange domain events are published to.
const ExchangeName = "keystone.domain.events"

// amqpSession is a connection with a single channel on a durable topic
// exchange.
type amqpSession struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func dialTopic(url, exchange string) (*amqpSession, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	s := &amqpSession{conn: conn, channel: ch, exchange: exchange}

	// durable, not auto-deleted, not internal
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = s.close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return s, nil
}

func (s *amqpSession) declareQueue(name string) error {
	// durable, not auto-deleted, not exclusive
	if _, err := s.channel.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

func (s *amqpSession) close() error {
	chErr := s.channel.Close()
	if err := s.conn.Close(); err != nil {
		return err
	}
	return chErr
}

func persistent(body []byte, headers amqp.Table) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         body,
	}
}

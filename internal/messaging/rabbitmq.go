package messaging

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQ holds one connection and channel to the broker.
type RabbitMQ struct {
	conn *amqp.Connection
	chn  *amqp.Channel
}

// NewRabbitMQ dials the broker and opens a channel.
func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	chn, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	return &RabbitMQ{conn: conn, chn: chn}, nil
}

// DeclareQueue declares a durable queue.
func (r *RabbitMQ) DeclareQueue(name string) error {
	_, err := r.chn.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	return err
}

// Publish sends a persistent JSON message to the named queue via the default exchange.
func (r *RabbitMQ) Publish(ctx context.Context, queue, messageID string, body []byte) error {
	return r.chn.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Body:         body,
		},
	)
}

// Healthy reports whether the broker connection and channel are still open.
func (r *RabbitMQ) Healthy(_ context.Context) error {
	if r == nil || r.conn == nil || r.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	if r.chn == nil || r.chn.IsClosed() {
		return errors.New("rabbitmq channel closed")
	}
	return nil
}

// Close releases the channel and connection.
func (r *RabbitMQ) Close() error {
	if r == nil {
		return nil
	}
	if err := r.chn.Close(); err != nil {
		return err
	}
	return r.conn.Close()
}

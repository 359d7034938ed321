package mq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/rentwheel/service-rental/pkg/kafka"
)

// Publisher sends CloudEvents to a RabbitMQ topic exchange. It is the alternative
// event sink for deployments without Kafka.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher dials the broker and declares a durable topic exchange.
func NewPublisher(url, exchange string, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

// PublishEvent publishes ce with its type as routing key. The topic is carried as a header
// so consumers can mirror the Kafka layout.
func (p *Publisher) PublishEvent(ctx context.Context, topic, key string, ce kafka.CloudEvent) error {
	body, err := json.Marshal(ce)
	if err != nil {
		return fmt.Errorf("marshal cloud event: %w", err)
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, ce.Type, false, false, amqp.Publishing{
		ContentType:  "application/cloudevents+json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ce.ID,
		Timestamp:    ce.Time,
		Type:         ce.Type,
		Headers: amqp.Table{
			"topic": topic,
			"key":   key,
		},
		Body: body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ce.Type, err)
	}

	p.logger.Debug("event published",
		zap.String("exchange", p.exchange),
		zap.String("event_type", ce.Type),
	)
	return nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

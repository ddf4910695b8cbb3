package events

import (
	"context"
	"fmt"

	"toko-commerce/internal/models"
	"toko-commerce/pkg/kafka"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// BrokerPublisher is the subset of the RabbitMQ client used for publishing.
type BrokerPublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// RabbitMQPublisher routes each event by its type, e.g. "order.shipped".
type RabbitMQPublisher struct {
	client BrokerPublisher
}

// NewRabbitMQPublisher creates a RabbitMQPublisher.
func NewRabbitMQPublisher(client BrokerPublisher) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

// Publish implements Publisher.
func (p *RabbitMQPublisher) Publish(ctx context.Context, event models.DomainEvent) error {
	body, err := Encode(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, event.Type, body)
}

// KafkaPublisher writes events keyed by aggregate id.
type KafkaPublisher struct {
	writer *kafkago.Writer
}

// NewKafkaPublisher creates a KafkaPublisher.
func NewKafkaPublisher(writer *kafkago.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, event models.DomainEvent) error {
	if err := kafka.PublishJSON(ctx, p.writer, event.AggregateID, event); err != nil {
		return fmt.Errorf("failed to publish %s to kafka: %w", event.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LocalPublisher delivers events synchronously to in-process handlers. It is
// used when no broker is configured.
type LocalPublisher struct {
	handlers []HandlerFunc
	logger   *zap.Logger
}

// NewLocalPublisher creates a LocalPublisher.
func NewLocalPublisher(logger *zap.Logger, handlers ...HandlerFunc) *LocalPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalPublisher{handlers: handlers, logger: logger}
}

// Publish implements Publisher. Every handler runs; the first error is returned.
func (p *LocalPublisher) Publish(ctx context.Context, event models.DomainEvent) error {
	p.logger.Info("domain event",
		zap.String("event_type", event.Type),
		zap.String("aggregate_id", event.AggregateID),
		zap.String("status", event.Status))

	var first error
	for _, h := range p.handlers {
		if err := h(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

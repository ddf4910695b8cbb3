package events

import (
	"context"

	"toko-commerce/pkg/kafka"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// BrokerConsumer is the subset of the RabbitMQ client used for consuming.
type BrokerConsumer interface {
	Consume(ctx context.Context, consumerTag string, handler func(msg amqp.Delivery) error) error
}

// ConsumeRabbitMQ decodes queue messages and passes them to handler until ctx
// is done.
func ConsumeRabbitMQ(ctx context.Context, client BrokerConsumer, handler HandlerFunc) error {
	return client.Consume(ctx, "toko-notifications", func(msg amqp.Delivery) error {
		event, err := Decode(msg.Body)
		if err != nil {
			return err
		}
		return handler(ctx, event)
	})
}

// ConsumeKafka decodes topic messages and passes them to handler until ctx is
// done. Undecodable messages are logged and skipped.
func ConsumeKafka(ctx context.Context, reader *kafkago.Reader, handler HandlerFunc, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	return kafka.Consume(ctx, reader, func(ctx context.Context, value []byte) error {
		event, err := Decode(value)
		if err != nil {
			return err
		}
		return handler(ctx, event)
	}, func(err error) {
		logger.Warn("failed to handle kafka event", zap.Error(err))
	})
}

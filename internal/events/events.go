// Package events publishes domain events once the unit of work that produced
// them has committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"toko-commerce/internal/metrics"
	"toko-commerce/internal/models"

	"go.uber.org/zap"
)

// Publisher hands a domain event to a transport.
type Publisher interface {
	Publish(ctx context.Context, event models.DomainEvent) error
}

// HandlerFunc consumes a decoded domain event.
type HandlerFunc func(ctx context.Context, event models.DomainEvent) error

// Encode serialises an event for the wire.
func Encode(event models.DomainEvent) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", event.Type, err)
	}
	return body, nil
}

// Decode parses an event received from a broker.
func Decode(body []byte) (models.DomainEvent, error) {
	var event models.DomainEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return event, fmt.Errorf("failed to decode event: %w", err)
	}
	if event.Type == "" || event.AggregateID == "" {
		return event, fmt.Errorf("event is missing type or aggregate id")
	}
	return event, nil
}

// Emitter publishes batches of events on a best-effort basis: the state change
// has already been committed, so failures are logged and counted, not returned.
type Emitter struct {
	publisher Publisher
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewEmitter wraps publisher. logger and m may be nil.
func NewEmitter(publisher Publisher, logger *zap.Logger, m *metrics.Metrics) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{publisher: publisher, logger: logger, metrics: m}
}

// Emit publishes every event in order.
func (e *Emitter) Emit(ctx context.Context, events ...models.DomainEvent) {
	for _, event := range events {
		outcome := "ok"
		if err := e.publisher.Publish(ctx, event); err != nil {
			outcome = "error"
			e.logger.Warn("failed to publish domain event",
				zap.String("event_type", event.Type),
				zap.String("aggregate_id", event.AggregateID),
				zap.Error(err))
		} else {
			e.logger.Debug("published domain event",
				zap.String("event_type", event.Type),
				zap.String("aggregate_id", event.AggregateID))
		}
		if e.metrics != nil {
			e.metrics.EventsPublished.WithLabelValues(event.Type, outcome).Inc()
		}
	}
}

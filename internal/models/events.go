package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the order and payment aggregates.
const (
	EventOrderCreated     = "order.created"
	EventOrderSubmitted   = "order.submitted"
	EventOrderShipped     = "order.shipped"
	EventOrderDelivered   = "order.delivered"
	EventOrderCancelled   = "order.cancelled"
	EventOrderDeleted     = "order.deleted"
	EventPaymentInitiated = "payment.initiated"
	EventPaymentStarted   = "payment.processing"
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
	EventPaymentCancelled = "payment.cancelled"
	EventPaymentRefunded  = "payment.refunded"
)

// DomainEvent records something that happened to an aggregate.
type DomainEvent struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	AggregateID string         `json:"aggregate_id"`
	UserID      string         `json:"user_id"`
	Status      string         `json:"status"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Data        map[string]any `json:"data,omitempty"`
}

func newEvent(eventType, aggregateID, userID, status string, data map[string]any) DomainEvent {
	return DomainEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		AggregateID: aggregateID,
		UserID:      userID,
		Status:      status,
		OccurredAt:  time.Now().UTC(),
		Data:        data,
	}
}

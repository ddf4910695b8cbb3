// Package notification pushes order and payment updates to connected users.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"toko-commerce/internal/models"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Notification is what a connected client receives.
type Notification struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	AggregateID string    `json:"aggregate_id"`
	OrderID     string    `json:"order_id,omitempty"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Hub is a registry of user id -> connection id -> delivery channel.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]map[string]chan Notification
	closed bool
	buffer int
	gauge  prometheus.Gauge
	logger *zap.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithBuffer sets the per-connection channel capacity.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithGauge tracks the number of open connections.
func WithGauge(g prometheus.Gauge) Option {
	return func(h *Hub) {
		h.gauge = g
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// NewHub creates an empty Hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		conns:  make(map[string]map[string]chan Notification),
		buffer: 16,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register opens a connection for userID. After Close the returned channel
// is already closed.
func (h *Hub) Register(userID string) (string, <-chan Notification) {
	connID := uuid.New().String()
	ch := make(chan Notification, h.buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return connID, ch
	}
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[string]chan Notification)
	}
	h.conns[userID][connID] = ch
	if h.gauge != nil {
		h.gauge.Inc()
	}
	h.logger.Debug("notification stream opened", zap.String("user_id", userID), zap.String("conn_id", connID))
	return connID, ch
}

// Unregister closes the connection. Unknown ids are ignored.
func (h *Hub) Unregister(userID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	userConns, ok := h.conns[userID]
	if !ok {
		return
	}
	ch, ok := userConns[connID]
	if !ok {
		return
	}
	close(ch)
	delete(userConns, connID)
	if len(userConns) == 0 {
		delete(h.conns, userID)
	}
	if h.gauge != nil {
		h.gauge.Dec()
	}
	h.logger.Debug("notification stream closed", zap.String("user_id", userID), zap.String("conn_id", connID))
}

// Notify sends n to every connection of userID and returns how many received
// it. Slow connections with a full buffer miss the notification.
func (h *Hub) Notify(userID string, n Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.send(userID, h.conns[userID], n)
}

// Broadcast sends n to every connection.
func (h *Hub) Broadcast(n Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for userID, userConns := range h.conns {
		delivered += h.send(userID, userConns, n)
	}
	return delivered
}

func (h *Hub) send(userID string, userConns map[string]chan Notification, n Notification) int {
	delivered := 0
	for connID, ch := range userConns {
		select {
		case ch <- n:
			delivered++
		default:
			h.logger.Warn("dropping notification for slow connection",
				zap.String("user_id", userID),
				zap.String("conn_id", connID),
				zap.String("type", n.Type))
		}
	}
	return delivered
}

// Count returns the number of open connections of userID.
func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Close closes every connection and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for userID, userConns := range h.conns {
		for _, ch := range userConns {
			close(ch)
			if h.gauge != nil {
				h.gauge.Dec()
			}
		}
		delete(h.conns, userID)
	}
}

// HandleEvent notifies the owner of the aggregate the event belongs to.
func (h *Hub) HandleEvent(_ context.Context, event models.DomainEvent) error {
	if event.UserID == "" {
		return nil
	}
	h.Notify(event.UserID, FromEvent(event))
	return nil
}

// FromEvent turns a domain event into a user-facing notification.
func FromEvent(event models.DomainEvent) Notification {
	n := Notification{
		ID:          event.ID,
		Type:        event.Type,
		AggregateID: event.AggregateID,
		Status:      event.Status,
		OccurredAt:  event.OccurredAt,
	}
	if strings.HasPrefix(event.Type, "order.") {
		n.OrderID = event.AggregateID
	} else if orderID, ok := event.Data["order_id"].(string); ok {
		n.OrderID = orderID
	}
	n.Message = message(event, n.OrderID)
	return n
}

func message(event models.DomainEvent, orderID string) string {
	switch event.Type {
	case models.EventOrderCreated:
		return fmt.Sprintf("Order %s has been placed", orderID)
	case models.EventOrderDeleted:
		return fmt.Sprintf("Order %s has been removed", orderID)
	case models.EventPaymentInitiated:
		return fmt.Sprintf("Payment for order %s has been initiated", orderID)
	case models.EventPaymentRefunded:
		return fmt.Sprintf("Payment for order %s has been refunded (%s)", orderID, event.Status)
	}
	if strings.HasPrefix(event.Type, "order.") {
		return fmt.Sprintf("Order %s is now %s", orderID, event.Status)
	}
	return fmt.Sprintf("Payment for order %s is now %s", orderID, event.Status)
}

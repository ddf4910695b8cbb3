package services

import (
	"context"
	"strings"

	"toko-commerce/internal/events"
	"toko-commerce/internal/metrics"
	"toko-commerce/internal/models"
)

// Role names carried in the JWT.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Actor is the authenticated user issuing a command.
type Actor struct {
	UserID string `validate:"required"`
	Role   string
}

// IsAdmin reports whether the actor has back-office rights.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanAccess reports whether the actor may see resources owned by ownerID.
func (a Actor) CanAccess(ownerID string) bool {
	return a.IsAdmin() || a.UserID == ownerID
}

// outbox collects the events of one unit of work and publishes them once it
// has committed.
type outbox struct {
	emitter *events.Emitter
	metrics *metrics.Metrics
}

func (o outbox) flush(ctx context.Context, pending []models.DomainEvent) {
	if len(pending) == 0 {
		return
	}
	if o.metrics != nil {
		for _, e := range pending {
			switch {
			case strings.HasPrefix(e.Type, "order."):
				o.metrics.OrderTransitions.WithLabelValues(e.Status).Inc()
			case strings.HasPrefix(e.Type, "payment."):
				o.metrics.PaymentTransitions.WithLabelValues(e.Status).Inc()
			}
		}
	}
	if o.emitter != nil {
		o.emitter.Emit(ctx, pending...)
	}
}

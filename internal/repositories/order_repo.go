package repositories

import (
	"context"

	"toko-commerce/internal/models"
)

// OrderFilter narrows GetAll results.
type OrderFilter struct {
	UserID         string
	Status         models.OrderStatus
	IncludeDeleted bool
}

// OrderRepository defines the interface for order data access.
// There is no Delete: orders are never hard-deleted, soft deletion is
// persisted through Update.
type OrderRepository interface {
	GetAll(ctx context.Context, filter OrderFilter) ([]models.Order, error)
	GetByID(ctx context.Context, id string) (*models.Order, error)
	// GetByIDUnscoped also returns soft-deleted orders.
	GetByIDUnscoped(ctx context.Context, id string) (*models.Order, error)
	Create(ctx context.Context, order *models.Order) error
	Update(ctx context.Context, order *models.Order) error
}

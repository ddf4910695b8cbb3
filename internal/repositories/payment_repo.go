package repositories

import (
	"context"

	"toko-commerce/internal/models"
)

// PaymentRepository defines the interface for payment data access.
type PaymentRepository interface {
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	GetByReference(ctx context.Context, provider models.PaymentProvider, reference string) (*models.Payment, error)
	Create(ctx context.Context, payment *models.Payment) error
	Update(ctx context.Context, payment *models.Payment) error
	Delete(ctx context.Context, id string) error
}

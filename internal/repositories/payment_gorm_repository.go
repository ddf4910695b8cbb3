package repositories

import (
	"context"
	"errors"
	"fmt"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/models"

	"gorm.io/gorm"
)

var paymentColumns = []string{
	"status", "amount", "refunded_amount", "currency", "transaction_id", "payment_reference",
	"redirect_url", "failure_reason", "completed_at", "failed_at", "cancelled_at", "refunded_at",
	"updated_at", "updated_by",
}

// GORMPaymentRepository is a GORM implementation of PaymentRepository.
type GORMPaymentRepository struct {
	db *gorm.DB
}

// NewGORMPaymentRepository creates a new instance of GORMPaymentRepository.
func NewGORMPaymentRepository(db *gorm.DB) *GORMPaymentRepository {
	return &GORMPaymentRepository{db: db}
}

// GetByID retrieves a payment by its ID.
func (r *GORMPaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	return r.first(ctx, "payment", id, "id = ?", id)
}

// GetByOrderID retrieves the payment attached to an order.
func (r *GORMPaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	return r.first(ctx, "payment for order", orderID, "order_id = ?", orderID)
}

// GetByReference retrieves a payment by its gateway reference.
func (r *GORMPaymentRepository) GetByReference(ctx context.Context, provider models.PaymentProvider, reference string) (*models.Payment, error) {
	return r.first(ctx, "payment reference", reference, "provider = ? AND payment_reference = ?", provider, reference)
}

// Create inserts a new payment.
func (r *GORMPaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// Update writes the mutable payment columns.
func (r *GORMPaymentRepository) Update(ctx context.Context, payment *models.Payment) error {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", payment.ID).
		Select(paymentColumns).
		Updates(payment)
	if res.Error != nil {
		return fmt.Errorf("failed to update payment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("payment", payment.ID)
	}
	return nil
}

// Delete removes a payment by its ID.
func (r *GORMPaymentRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Payment{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete payment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("payment", id)
	}
	return nil
}

func (r *GORMPaymentRepository) first(ctx context.Context, resource, key string, query string, args ...any) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where(query, args...).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound(resource, key)
		}
		return nil, fmt.Errorf("failed to get %s %s: %w", resource, key, err)
	}
	return &payment, nil
}

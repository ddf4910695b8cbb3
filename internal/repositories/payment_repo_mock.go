package repositories

import (
	"context"
	"sync"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/models"

	"github.com/google/uuid"
)

// MockPaymentRepository is an in-memory implementation of PaymentRepository.
type MockPaymentRepository struct {
	payments map[string]models.Payment
	mu       sync.RWMutex
}

// NewMockPaymentRepository creates a new instance of MockPaymentRepository.
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[string]models.Payment),
	}
}

// GetByID returns a payment by its ID.
func (r *MockPaymentRepository) GetByID(_ context.Context, id string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.payments[id]
	if !ok {
		return nil, apperrors.NotFound("payment", id)
	}
	return payment.Clone(), nil
}

// GetByOrderID returns the payment attached to an order.
func (r *MockPaymentRepository) GetByOrderID(_ context.Context, orderID string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, payment := range r.payments {
		if payment.OrderID == orderID {
			return payment.Clone(), nil
		}
	}
	return nil, apperrors.NotFound("payment for order", orderID)
}

// GetByReference returns a payment by its gateway reference.
func (r *MockPaymentRepository) GetByReference(_ context.Context, provider models.PaymentProvider, reference string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, payment := range r.payments {
		if payment.Provider == provider && payment.PaymentReference == reference {
			return payment.Clone(), nil
		}
	}
	return nil, apperrors.NotFound("payment reference", reference)
}

// Create adds a new payment. One payment per order.
func (r *MockPaymentRepository) Create(_ context.Context, payment *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	for _, existing := range r.payments {
		if existing.OrderID == payment.OrderID {
			return apperrors.Conflict("order %s already has payment %s", payment.OrderID, existing.ID)
		}
	}
	r.payments[payment.ID] = *payment.Clone()
	return nil
}

// Update replaces a stored payment.
func (r *MockPaymentRepository) Update(_ context.Context, payment *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[payment.ID]; !ok {
		return apperrors.NotFound("payment", payment.ID)
	}
	r.payments[payment.ID] = *payment.Clone()
	return nil
}

// Delete removes a payment by its ID.
func (r *MockPaymentRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[id]; !ok {
		return apperrors.NotFound("payment", id)
	}
	delete(r.payments, id)
	return nil
}

func (r *MockPaymentRepository) snapshot() map[string]models.Payment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]models.Payment, len(r.payments))
	for k, v := range r.payments {
		out[k] = v
	}
	return out
}

func (r *MockPaymentRepository) restore(payments map[string]models.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = payments
}

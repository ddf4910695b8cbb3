// Package gateway abstracts the payment providers behind a common interface.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/models"

	"github.com/shopspring/decimal"
)

// Status is the provider-side state of a payment.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// ParseStatus maps provider wording onto Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return Status(s), nil
	}
	switch s {
	case "succeeded", "success", "paid":
		return StatusCompleted, nil
	case "canceled":
		return StatusCancelled, nil
	case "declined", "error":
		return StatusFailed, nil
	}
	return "", apperrors.NewValidation("status", fmt.Sprintf("unknown gateway status %q", s))
}

// ErrGateway marks failures reported by a provider.
var ErrGateway = errors.New("payment gateway error")

// InitiateRequest describes a payment to open at the provider.
type InitiateRequest struct {
	PaymentID string
	OrderID   string
	UserID    string
	Amount    decimal.Decimal
	Currency  string
}

// InitiateResult is what the provider returns for a new payment.
type InitiateResult struct {
	Reference   string
	RedirectURL string
	Status      Status
}

// StatusResult is the provider view of an existing payment.
type StatusResult struct {
	Reference     string
	Status        Status
	TransactionID string
	Reason        string
}

// RefundResult identifies a refund at the provider.
type RefundResult struct {
	RefundID string
}

// Gateway is implemented by every payment provider.
type Gateway interface {
	Provider() models.PaymentProvider
	InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	GetPaymentStatus(ctx context.Context, reference string) (*StatusResult, error)
	RefundPayment(ctx context.Context, reference string, amount decimal.Decimal) (*RefundResult, error)
}

// Registry resolves gateways by provider.
type Registry struct {
	mu       sync.RWMutex
	gateways map[models.PaymentProvider]Gateway
}

// NewRegistry creates a Registry holding gateways.
func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[models.PaymentProvider]Gateway, len(gateways))}
	for _, g := range gateways {
		r.Register(g)
	}
	return r
}

// Register adds or replaces the gateway for its provider.
func (r *Registry) Register(g Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.Provider()] = g
}

// Get returns the gateway for provider.
func (r *Registry) Get(provider models.PaymentProvider) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[provider]
	if !ok {
		return nil, apperrors.NewValidation("provider", fmt.Sprintf("no gateway configured for %q", provider))
	}
	return g, nil
}

// Providers lists the registered providers in name order.
func (r *Registry) Providers() []models.PaymentProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	providers := make([]models.PaymentProvider, 0, len(r.gateways))
	for p := range r.gateways {
		providers = append(providers, p)
	}
	slices.Sort(providers)
	return providers
}

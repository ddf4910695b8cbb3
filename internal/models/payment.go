package models

import (
	"time"

	"toko-commerce/internal/apperrors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a checkout does not name one.
const DefaultCurrency = "XAF"

// PaymentStatus enumerates payment progression.
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusCompleted         PaymentStatus = "completed"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusCancelled         PaymentStatus = "cancelled"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// IsValid reports whether s is a known payment status.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed,
		PaymentStatusCancelled, PaymentStatusRefunded, PaymentStatusPartiallyRefunded:
		return true
	default:
		return false
	}
}

// IsOpen reports whether the payment still awaits an outcome.
func (s PaymentStatus) IsOpen() bool {
	return s == PaymentStatusPending || s == PaymentStatusProcessing
}

// IsTerminal reports whether no further transition is possible.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded, PaymentStatusPartiallyRefunded:
		return true
	default:
		return false
	}
}

// PaymentProvider names the gateway that handles a payment.
type PaymentProvider string

const (
	ProviderMonetbil       PaymentProvider = "monetbil"
	ProviderStripe         PaymentProvider = "stripe"
	ProviderPayPal         PaymentProvider = "paypal"
	ProviderCashOnDelivery PaymentProvider = "cash_on_delivery"
)

// IsValid reports whether p is a supported provider.
func (p PaymentProvider) IsValid() bool {
	switch p {
	case ProviderMonetbil, ProviderStripe, ProviderPayPal, ProviderCashOnDelivery:
		return true
	default:
		return false
	}
}

// Payment tracks the settlement of one order.
type Payment struct {
	ID               string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID          string          `json:"order_id" gorm:"uniqueIndex;type:varchar(36)"`
	UserID           string          `json:"user_id" gorm:"index;type:varchar(36)"`
	Provider         PaymentProvider `json:"provider" gorm:"type:varchar(30)"`
	Status           PaymentStatus   `json:"status" gorm:"type:varchar(30);index"`
	Amount           decimal.Decimal `json:"amount" gorm:"type:numeric(12,2)"`
	RefundedAmount   decimal.Decimal `json:"refunded_amount" gorm:"type:numeric(12,2)"`
	Currency         string          `json:"currency" gorm:"type:varchar(3)"`
	TransactionID    string          `json:"transaction_id,omitempty" gorm:"type:varchar(100)"`
	PaymentReference string          `json:"payment_reference,omitempty" gorm:"index;type:varchar(100)"`
	RedirectURL      string          `json:"redirect_url,omitempty"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	FailedAt         *time.Time      `json:"failed_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	RefundedAt       *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	CreatedBy        string          `json:"created_by" gorm:"type:varchar(36)"`
	UpdatedAt        time.Time       `json:"updated_at"`
	UpdatedBy        string          `json:"updated_by" gorm:"type:varchar(36)"`

	events []DomainEvent
}

// NewPayment creates a Pending payment for the full order total.
func NewPayment(order *Order, provider PaymentProvider, actor string) (*Payment, error) {
	if order == nil {
		return nil, apperrors.NewValidation("order_id", "is required")
	}
	if !provider.IsValid() {
		return nil, apperrors.NewValidation("provider", "unsupported payment provider")
	}
	if !order.TotalAmount.IsPositive() {
		return nil, apperrors.NewValidation("amount", "must be greater than zero")
	}

	now := time.Now().UTC()
	payment := &Payment{
		ID:             uuid.New().String(),
		OrderID:        order.ID,
		UserID:         order.UserID,
		Provider:       provider,
		Status:         PaymentStatusPending,
		Amount:         order.TotalAmount,
		RefundedAmount: decimal.Zero,
		Currency:       order.Currency,
		CreatedAt:      now,
		CreatedBy:      actor,
		UpdatedAt:      now,
		UpdatedBy:      actor,
	}
	payment.record(EventPaymentInitiated, map[string]any{
		"order_id": order.ID,
		"provider": string(provider),
		"amount":   payment.Amount.StringFixed(2),
	})
	return payment, nil
}

// AttachReference stores the gateway-provided reference and redirect target.
func (p *Payment) AttachReference(reference, redirectURL, actor string) {
	p.PaymentReference = reference
	p.RedirectURL = redirectURL
	p.touch(actor)
}

// StartProcessing moves a Pending payment to Processing.
func (p *Payment) StartProcessing(actor string) error {
	if p.Status != PaymentStatusPending {
		return p.invalid("start processing", "")
	}
	p.moveTo(PaymentStatusProcessing, actor, EventPaymentStarted, nil)
	return nil
}

// Complete settles a Pending or Processing payment.
func (p *Payment) Complete(transactionID, actor string) error {
	if !p.Status.IsOpen() {
		return p.invalid("complete", "")
	}
	if transactionID == "" {
		return apperrors.NewValidation("transaction_id", "is required")
	}
	now := time.Now().UTC()
	p.TransactionID = transactionID
	p.CompletedAt = &now
	p.moveTo(PaymentStatusCompleted, actor, EventPaymentCompleted, map[string]any{"transaction_id": transactionID})
	return nil
}

// Fail marks a Pending or Processing payment as failed.
func (p *Payment) Fail(reason, actor string) error {
	if !p.Status.IsOpen() {
		return p.invalid("fail", "")
	}
	now := time.Now().UTC()
	p.FailureReason = reason
	p.FailedAt = &now
	p.moveTo(PaymentStatusFailed, actor, EventPaymentFailed, map[string]any{"reason": reason})
	return nil
}

// Cancel abandons a Pending or Processing payment.
func (p *Payment) Cancel(actor string) error {
	if !p.Status.IsOpen() {
		return p.invalid("cancel", "only pending or processing payments can be cancelled")
	}
	now := time.Now().UTC()
	p.CancelledAt = &now
	p.moveTo(PaymentStatusCancelled, actor, EventPaymentCancelled, nil)
	return nil
}

// Refund returns amount to the payer. Only a Completed payment can be refunded,
// once, for at most its Amount. A full refund ends in Refunded, anything less in
// PartiallyRefunded.
func (p *Payment) Refund(amount decimal.Decimal, actor string) error {
	if p.Status != PaymentStatusCompleted {
		return p.invalid("refund", "only completed payments can be refunded")
	}
	if !amount.IsPositive() {
		return apperrors.NewValidation("amount", "must be greater than zero")
	}
	remaining := p.Amount.Sub(p.RefundedAmount)
	if amount.GreaterThan(remaining) {
		return p.invalid("refund", "amount "+amount.StringFixed(2)+" exceeds refundable "+remaining.StringFixed(2))
	}

	now := time.Now().UTC()
	p.RefundedAmount = p.RefundedAmount.Add(amount)
	p.RefundedAt = &now
	status := PaymentStatusPartiallyRefunded
	if p.RefundedAmount.Equal(p.Amount) {
		status = PaymentStatusRefunded
	}
	p.moveTo(status, actor, EventPaymentRefunded, map[string]any{
		"amount":          amount.StringFixed(2),
		"refunded_amount": p.RefundedAmount.StringFixed(2),
	})
	return nil
}

// PullEvents returns the recorded domain events and clears them.
func (p *Payment) PullEvents() []DomainEvent {
	events := p.events
	p.events = nil
	return events
}

func (p *Payment) moveTo(status PaymentStatus, actor, eventType string, data map[string]any) {
	p.Status = status
	p.touch(actor)
	p.record(eventType, data)
}

func (p *Payment) touch(actor string) {
	p.UpdatedAt = time.Now().UTC()
	p.UpdatedBy = actor
}

func (p *Payment) record(eventType string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["order_id"] = p.OrderID
	p.events = append(p.events, newEvent(eventType, p.ID, p.UserID, string(p.Status), data))
}

func (p *Payment) invalid(action, reason string) error {
	return &apperrors.TransitionError{
		Entity: "payment",
		ID:     p.ID,
		From:   string(p.Status),
		Action: action,
		Reason: reason,
	}
}

// Clone returns a copy of the payment without pending events.
func (p *Payment) Clone() *Payment {
	c := *p
	c.events = nil
	return &c
}

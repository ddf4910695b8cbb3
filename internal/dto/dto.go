// Package dto holds the read-only projections returned by the HTTP API.
package dto

import (
	"time"

	"toko-commerce/internal/models"
)

// OrderItem is the API shape of an order line.
type OrderItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitPrice   string `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	Discount    string `json:"discount"`
	LineTotal   string `json:"line_total"`
}

// Order is the API shape of an order.
type Order struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	Status       string      `json:"status"`
	Items        []OrderItem `json:"items"`
	TotalAmount  string      `json:"total_amount"`
	Currency     string      `json:"currency"`
	CancelReason string      `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	UpdatedBy    string      `json:"updated_by"`
	IsDeleted    bool        `json:"is_deleted,omitempty"`
}

// Payment is the API shape of a payment.
type Payment struct {
	ID               string     `json:"id"`
	OrderID          string     `json:"order_id"`
	Provider         string     `json:"provider"`
	Status           string     `json:"status"`
	Amount           string     `json:"amount"`
	RefundedAmount   string     `json:"refunded_amount"`
	Currency         string     `json:"currency"`
	TransactionID    string     `json:"transaction_id,omitempty"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	RedirectURL      string     `json:"redirect_url,omitempty"`
	FailureReason    string     `json:"failure_reason,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	FailedAt         *time.Time `json:"failed_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	RefundedAt       *time.Time `json:"refunded_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// FromOrder projects a domain order.
func FromOrder(order *models.Order) Order {
	if order == nil {
		return Order{}
	}
	items := make([]OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice.StringFixed(2),
			Quantity:    item.Quantity,
			Discount:    item.Discount.StringFixed(2),
			LineTotal:   item.LineTotal().StringFixed(2),
		})
	}
	return Order{
		ID:           order.ID,
		UserID:       order.UserID,
		Status:       string(order.Status),
		Items:        items,
		TotalAmount:  order.TotalAmount.StringFixed(2),
		Currency:     order.Currency,
		CancelReason: order.CancelReason,
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.UpdatedAt,
		UpdatedBy:    order.UpdatedBy,
		IsDeleted:    order.IsDeleted,
	}
}

// FromOrders projects a list of orders.
func FromOrders(orders []models.Order) []Order {
	out := make([]Order, 0, len(orders))
	for i := range orders {
		out = append(out, FromOrder(&orders[i]))
	}
	return out
}

// FromPayment projects a domain payment.
func FromPayment(payment *models.Payment) Payment {
	if payment == nil {
		return Payment{}
	}
	return Payment{
		ID:               payment.ID,
		OrderID:          payment.OrderID,
		Provider:         string(payment.Provider),
		Status:           string(payment.Status),
		Amount:           payment.Amount.StringFixed(2),
		RefundedAmount:   payment.RefundedAmount.StringFixed(2),
		Currency:         payment.Currency,
		TransactionID:    payment.TransactionID,
		PaymentReference: payment.PaymentReference,
		RedirectURL:      payment.RedirectURL,
		FailureReason:    payment.FailureReason,
		CompletedAt:      payment.CompletedAt,
		FailedAt:         payment.FailedAt,
		CancelledAt:      payment.CancelledAt,
		RefundedAt:       payment.RefundedAt,
		CreatedAt:        payment.CreatedAt,
		UpdatedAt:        payment.UpdatedAt,
	}
}

package models

import (
	"time"

	"toko-commerce/internal/apperrors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus enumerates order progression.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// IsValid reports whether s is a known order status.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// OrderItem represents a single item within an order.
type OrderItem struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID     string          `json:"order_id" gorm:"index;type:varchar(36)"`
	Position    int             `json:"position"`
	ProductID   string          `json:"product_id" gorm:"type:varchar(36)"`
	ProductName string          `json:"product_name" gorm:"type:varchar(100)"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:numeric(12,2)"` // Price at the time of order
	Quantity    int             `json:"quantity"`
	Discount    decimal.Decimal `json:"discount" gorm:"type:numeric(12,2)"`
}

// LineTotal is UnitPrice*Quantity minus the discount, floored at zero.
func (i OrderItem) LineTotal() decimal.Decimal {
	total := i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))).Sub(i.Discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

func (i OrderItem) validate() error {
	switch {
	case i.ProductID == "":
		return apperrors.NewValidation("product_id", "is required")
	case i.Quantity <= 0:
		return apperrors.NewValidation("quantity", "must be greater than zero")
	case i.UnitPrice.IsNegative():
		return apperrors.NewValidation("unit_price", "must not be negative")
	case i.Discount.IsNegative():
		return apperrors.NewValidation("discount", "must not be negative")
	case i.Discount.GreaterThan(i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))):
		return apperrors.NewValidation("discount", "must not exceed the line amount")
	}
	return nil
}

// Order represents a customer order.
type Order struct {
	ID           string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID       string          `json:"user_id" gorm:"index;type:varchar(36)"`
	Items        []OrderItem     `json:"items" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	TotalAmount  decimal.Decimal `json:"total_amount" gorm:"type:numeric(12,2)"`
	Currency     string          `json:"currency" gorm:"type:varchar(3)"`
	Status       OrderStatus     `json:"status" gorm:"type:varchar(20);index"`
	CancelReason string          `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CreatedBy    string          `json:"created_by" gorm:"type:varchar(36)"`
	UpdatedAt    time.Time       `json:"updated_at"`
	UpdatedBy    string          `json:"updated_by" gorm:"type:varchar(36)"`
	IsDeleted    bool            `json:"is_deleted" gorm:"index"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty"`
	DeletedBy    string          `json:"deleted_by,omitempty" gorm:"type:varchar(36)"`

	events []DomainEvent
}

// NewOrder validates the items and constructs a Pending order.
func NewOrder(userID, currency string, items []OrderItem, actor string) (*Order, error) {
	if userID == "" {
		return nil, apperrors.NewValidation("user_id", "is required")
	}
	if len(items) == 0 {
		return nil, apperrors.NewValidation("items", "at least one item is required")
	}
	if currency == "" {
		currency = DefaultCurrency
	}

	now := time.Now().UTC()
	order := &Order{
		ID:        uuid.New().String(),
		UserID:    userID,
		Currency:  currency,
		Status:    OrderStatusPending,
		CreatedAt: now,
		CreatedBy: actor,
		UpdatedAt: now,
		UpdatedBy: actor,
	}
	for _, item := range items {
		if err := order.appendItem(item); err != nil {
			return nil, err
		}
	}
	order.record(EventOrderCreated, map[string]any{
		"total":    order.TotalAmount.StringFixed(2),
		"currency": order.Currency,
		"items":    len(order.Items),
	})
	return order, nil
}

// AddItem appends a line item. Items are frozen once the order leaves Pending.
func (o *Order) AddItem(item OrderItem, actor string) error {
	if o.Status != OrderStatusPending {
		return o.invalid("add item to", "items are immutable once the order leaves pending")
	}
	if err := o.appendItem(item); err != nil {
		return err
	}
	o.touch(actor)
	return nil
}

// RemoveItem drops the line item for productID while the order is Pending.
func (o *Order) RemoveItem(productID, actor string) error {
	if o.Status != OrderStatusPending {
		return o.invalid("remove item from", "items are immutable once the order leaves pending")
	}
	for i, item := range o.Items {
		if item.ProductID == productID {
			if len(o.Items) == 1 {
				return apperrors.NewValidation("items", "an order must keep at least one item")
			}
			o.Items = append(o.Items[:i], o.Items[i+1:]...)
			for j := range o.Items {
				o.Items[j].Position = j
			}
			o.recalculate()
			o.touch(actor)
			return nil
		}
	}
	return apperrors.NotFound("order item", productID)
}

// Submit moves a Pending order to Processing.
func (o *Order) Submit(actor string) error {
	if o.Status != OrderStatusPending {
		return o.invalid("submit", "")
	}
	o.moveTo(OrderStatusProcessing, actor, EventOrderSubmitted, nil)
	return nil
}

// Ship moves a Processing order to Shipped.
func (o *Order) Ship(actor string) error {
	if o.Status != OrderStatusProcessing {
		return o.invalid("ship", "")
	}
	o.moveTo(OrderStatusShipped, actor, EventOrderShipped, nil)
	return nil
}

// MarkAsDelivered moves a Shipped order to Delivered. Calling it again fails.
func (o *Order) MarkAsDelivered(actor string) error {
	if o.Status != OrderStatusShipped {
		return o.invalid("deliver", "")
	}
	o.moveTo(OrderStatusDelivered, actor, EventOrderDelivered, nil)
	return nil
}

// Cancel moves a Pending or Processing order to Cancelled.
func (o *Order) Cancel(reason, actor string) error {
	if o.Status != OrderStatusPending && o.Status != OrderStatusProcessing {
		return o.invalid("cancel", "only pending or processing orders can be cancelled")
	}
	o.CancelReason = reason
	o.moveTo(OrderStatusCancelled, actor, EventOrderCancelled, map[string]any{"reason": reason})
	return nil
}

// SetDeleted soft-deletes the order. Status is left untouched.
func (o *Order) SetDeleted(actor string) {
	now := time.Now().UTC()
	o.IsDeleted = true
	o.DeletedAt = &now
	o.DeletedBy = actor
	o.touch(actor)
	o.record(EventOrderDeleted, nil)
}

// PullEvents returns the recorded domain events and clears them.
func (o *Order) PullEvents() []DomainEvent {
	events := o.events
	o.events = nil
	return events
}

func (o *Order) appendItem(item OrderItem) error {
	if err := item.validate(); err != nil {
		return err
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.OrderID = o.ID
	item.Position = len(o.Items)
	o.Items = append(o.Items, item)
	o.recalculate()
	return nil
}

func (o *Order) recalculate() {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	o.TotalAmount = total
}

func (o *Order) moveTo(status OrderStatus, actor, eventType string, data map[string]any) {
	o.Status = status
	o.touch(actor)
	o.record(eventType, data)
}

func (o *Order) touch(actor string) {
	o.UpdatedAt = time.Now().UTC()
	o.UpdatedBy = actor
}

func (o *Order) record(eventType string, data map[string]any) {
	o.events = append(o.events, newEvent(eventType, o.ID, o.UserID, string(o.Status), data))
}

func (o *Order) invalid(action, reason string) error {
	return &apperrors.TransitionError{
		Entity: "order",
		ID:     o.ID,
		From:   string(o.Status),
		Action: action,
		Reason: reason,
	}
}

// Clone returns a deep copy of the order without pending events.
func (o *Order) Clone() *Order {
	c := *o
	c.events = nil
	c.Items = append([]OrderItem(nil), o.Items...)
	if o.DeletedAt != nil {
		t := *o.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

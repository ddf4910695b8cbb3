package services

import (
	"context"
	"errors"
	"fmt"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/events"
	"toko-commerce/internal/metrics"
	"toko-commerce/internal/models"
	"toko-commerce/internal/pipeline"
	"toko-commerce/internal/repositories"

	"github.com/shopspring/decimal"
)

// CheckoutItem is one requested line of a checkout. Only admins may set a
// discount.
type CheckoutItem struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	Discount  decimal.Decimal `json:"discount"`
}

// CheckoutCommand places a new order priced from the catalog.
type CheckoutCommand struct {
	Actor    Actor          `json:"-"`
	Currency string         `json:"currency" validate:"omitempty,len=3"`
	Items    []CheckoutItem `json:"items" validate:"required,min=1,dive"`
}

// OrderCommand targets a single order.
type OrderCommand struct {
	Actor   Actor  `json:"-"`
	OrderID string `json:"order_id" validate:"required"`
}

// CancelOrderCommand cancels an order.
type CancelOrderCommand struct {
	Actor   Actor  `json:"-"`
	OrderID string `json:"order_id" validate:"required"`
	Reason  string `json:"reason" validate:"required,max=255"`
}

// AddItemCommand adds a catalog product to a pending order.
type AddItemCommand struct {
	Actor   Actor        `json:"-"`
	OrderID string       `json:"order_id" validate:"required"`
	Item    CheckoutItem `json:"item"`
}

// RemoveItemCommand drops a product from a pending order.
type RemoveItemCommand struct {
	Actor     Actor  `json:"-"`
	OrderID   string `json:"order_id" validate:"required"`
	ProductID string `json:"product_id" validate:"required"`
}

// ListOrdersQuery lists orders. Customers only ever see their own.
type ListOrdersQuery struct {
	Actor          Actor              `json:"-"`
	UserID         string             `json:"user_id"`
	Status         models.OrderStatus `json:"status" validate:"omitempty,oneof=pending processing shipped delivered cancelled"`
	IncludeDeleted bool               `json:"include_deleted"`
}

// OrderService runs the order commands and queries.
type OrderService struct {
	uow      repositories.UnitOfWork
	orders   repositories.OrderRepository
	payments repositories.PaymentRepository
	outbox   outbox

	// enforceConsistency ties delivery to a completed payment and cancels the
	// open payment of a cancelled order.
	enforceConsistency bool

	checkout   pipeline.HandlerFunc[CheckoutCommand, *models.Order]
	submit     pipeline.HandlerFunc[OrderCommand, *models.Order]
	ship       pipeline.HandlerFunc[OrderCommand, *models.Order]
	deliver    pipeline.HandlerFunc[OrderCommand, *models.Order]
	cancel     pipeline.HandlerFunc[CancelOrderCommand, *models.Order]
	remove     pipeline.HandlerFunc[OrderCommand, *models.Order]
	addItem    pipeline.HandlerFunc[AddItemCommand, *models.Order]
	removeItem pipeline.HandlerFunc[RemoveItemCommand, *models.Order]
	get        pipeline.HandlerFunc[OrderCommand, *models.Order]
	list       pipeline.HandlerFunc[ListOrdersQuery, []models.Order]
}

// NewOrderService creates a new OrderService. Reads go through orders and
// payments; every write goes through uow.
func NewOrderService(
	uow repositories.UnitOfWork,
	orders repositories.OrderRepository,
	payments repositories.PaymentRepository,
	emitter *events.Emitter,
	m *metrics.Metrics,
	p *pipeline.Pipeline,
	enforceConsistency bool,
) *OrderService {
	s := &OrderService{
		uow:                uow,
		orders:             orders,
		payments:           payments,
		outbox:             outbox{emitter: emitter, metrics: m},
		enforceConsistency: enforceConsistency,
	}
	s.checkout = pipeline.Wrap(p, "orders.checkout", s.handleCheckout)
	s.submit = pipeline.Wrap(p, "orders.submit", s.handleSubmit)
	s.ship = pipeline.Wrap(p, "orders.ship", s.handleShip)
	s.deliver = pipeline.Wrap(p, "orders.deliver", s.handleDeliver)
	s.cancel = pipeline.Wrap(p, "orders.cancel", s.handleCancel)
	s.remove = pipeline.Wrap(p, "orders.delete", s.handleDelete)
	s.addItem = pipeline.Wrap(p, "orders.add_item", s.handleAddItem)
	s.removeItem = pipeline.Wrap(p, "orders.remove_item", s.handleRemoveItem)
	s.get = pipeline.Wrap(p, "orders.get", s.handleGet)
	s.list = pipeline.Wrap(p, "orders.list", s.handleList)
	return s
}

// Checkout creates a Pending order and reserves stock for its items.
func (s *OrderService) Checkout(ctx context.Context, cmd CheckoutCommand) (*models.Order, error) {
	return s.checkout(ctx, cmd)
}

// Submit moves an order from pending to processing.
func (s *OrderService) Submit(ctx context.Context, cmd OrderCommand) (*models.Order, error) {
	return s.submit(ctx, cmd)
}

// Ship moves an order from processing to shipped.
func (s *OrderService) Ship(ctx context.Context, cmd OrderCommand) (*models.Order, error) {
	return s.ship(ctx, cmd)
}

// Deliver marks a shipped order as delivered.
func (s *OrderService) Deliver(ctx context.Context, cmd OrderCommand) (*models.Order, error) {
	return s.deliver(ctx, cmd)
}

// Cancel cancels a pending or processing order and releases its stock.
func (s *OrderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (*models.Order, error) {
	return s.cancel(ctx, cmd)
}

// Delete soft-deletes an order.
func (s *OrderService) Delete(ctx context.Context, cmd OrderCommand) error {
	_, err := s.remove(ctx, cmd)
	return err
}

// AddItem adds a line to a pending order.
func (s *OrderService) AddItem(ctx context.Context, cmd AddItemCommand) (*models.Order, error) {
	return s.addItem(ctx, cmd)
}

// RemoveItem removes a line from a pending order.
func (s *OrderService) RemoveItem(ctx context.Context, cmd RemoveItemCommand) (*models.Order, error) {
	return s.removeItem(ctx, cmd)
}

// Get returns an order visible to the actor.
func (s *OrderService) Get(ctx context.Context, cmd OrderCommand) (*models.Order, error) {
	return s.get(ctx, cmd)
}

// List returns the orders visible to the actor.
func (s *OrderService) List(ctx context.Context, q ListOrdersQuery) ([]models.Order, error) {
	return s.list(ctx, q)
}

func (s *OrderService) handleCheckout(ctx context.Context, cmd CheckoutCommand) (*models.Order, error) {
	var order *models.Order
	err := s.uow.Execute(ctx, func(store repositories.Store) error {
		items := make([]models.OrderItem, 0, len(cmd.Items))
		for i, req := range cmd.Items {
			item, err := reserve(ctx, store, cmd.Actor, req, fmt.Sprintf("items[%d]", i))
			if err != nil {
				return err
			}
			items = append(items, item)
		}

		var err error
		order, err = models.NewOrder(cmd.Actor.UserID, cmd.Currency, items, cmd.Actor.UserID)
		if err != nil {
			return err
		}
		return store.Orders.Create(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	s.outbox.flush(ctx, order.PullEvents())
	return order, nil
}

func (s *OrderService) handleSubmit(ctx context.Context, cmd OrderCommand) (*models.Order, error) {
	return s.mutate(ctx, cmd.Actor, cmd.OrderID, func(_ repositories.Store, order *models.Order) ([]models.DomainEvent, error) {
		return nil, order.Submit(cmd.Actor.UserID)
	})
}

func (s *OrderService) handleShip(ctx context.Context, cmd OrderCommand) (*models.Order, error) {
	return s.mutate(ctx, cmd.Actor, cmd.OrderID, func(_ repositories.Store, order *models.Order) ([]models.DomainEvent, error) {
		return nil, order.Ship(cmd.Actor.UserID)
	})
}

// handleDeliver enforces the payment rule: a cash-on-delivery payment that is
// still open is collected now, anything else must already be completed.
func (s *OrderService) handleDeliver(ctx context.Context, cmd OrderCommand) (*models.Order, error) {
	return s.mutate(ctx, cmd.Actor, cmd.OrderID, func(store repositories.Store, order *models.Order) ([]models.DomainEvent, error) {
		if order.Status != models.OrderStatusShipped || !s.enforceConsistency {
			return nil, order.MarkAsDelivered(cmd.Actor.UserID)
		}

		payment, err := findPayment(ctx, store, order.ID)
		if err != nil {
			return nil, err
		}
		var extra []models.DomainEvent
		if payment != nil && payment.Provider == models.ProviderCashOnDelivery && payment.Status.IsOpen() {
			txID := payment.PaymentReference
			if txID == "" {
				txID = "cod_" + payment.ID
			}
			if err := payment.Complete(txID, cmd.Actor.UserID); err != nil {
				return nil, err
			}
			if err := store.Payments.Update(ctx, payment); err != nil {
				return nil, err
			}
			extra = payment.PullEvents()
		}
		if err := models.CheckDelivery(order, payment); err != nil {
			return nil, err
		}
		return extra, order.MarkAsDelivered(cmd.Actor.UserID)
	})
}

func (s *OrderService) handleCancel(ctx context.Context, cmd CancelOrderCommand) (*models.Order, error) {
	return s.mutate(ctx, cmd.Actor, cmd.OrderID, func(store repositories.Store, order *models.Order) ([]models.DomainEvent, error) {
		if err := order.Cancel(cmd.Reason, cmd.Actor.UserID); err != nil {
			return nil, err
		}
		for _, item := range order.Items {
			if err := restock(ctx, store, item); err != nil {
				return nil, err
			}
		}
		if !s.enforceConsistency {
			return nil, nil
		}

		payment, err := findPayment(ctx, store, order.ID)
		if err != nil || payment == nil || !payment.Status.IsOpen() {
			return nil, err
		}
		if err := payment.Cancel(cmd.Actor.UserID); err != nil {
			return nil, err
		}
		if err := store.Payments.Update(ctx, payment); err != nil {
			return nil, err
		}
		return payment.PullEvents(), nil
	})
}

// handleDelete soft-deletes an order. Customers may only delete closed orders
// so that nothing in flight disappears from fulfilment.
func (s *OrderService) handleDelete(ctx context.Context, cmd OrderCommand) (*models.Order, error) {
	return s.mutate(ctx, cmd.Actor, cmd.OrderID, func(_ repositories.Store, order *models.Order) ([]models.DomainEvent, error) {
		if !cmd.Actor.IsAdmin() && !order.Status.IsTerminal() {
			return nil, &apperrors.TransitionError{
				Entity: "order",
				ID:     order.ID,
				From:   string(order.Status),
				Action: "delete",
				Reason: "cancel it first",
			}
		}
		order.SetDeleted(cmd.Actor.UserID)
		return nil, nil
	})
}

func (s *OrderService) handleAddItem(ctx context.Context, cmd AddItemCommand) (*models.Order, error) {
	return s.mutate(ctx, cmd.Actor, cmd.OrderID, func(store repositories.Store, order *models.Order) ([]models.DomainEvent, error) {
		if order.Status != models.OrderStatusPending {
			// Let the entity report the transition error before stock is touched.
			return nil, order.AddItem(models.OrderItem{}, cmd.Actor.UserID)
		}
		item, err := reserve(ctx, store, cmd.Actor, cmd.Item, "item")
		if err != nil {
			return nil, err
		}
		return nil, order.AddItem(item, cmd.Actor.UserID)
	})
}

func (s *OrderService) handleRemoveItem(ctx context.Context, cmd RemoveItemCommand) (*models.Order, error) {
	return s.mutate(ctx, cmd.Actor, cmd.OrderID, func(store repositories.Store, order *models.Order) ([]models.DomainEvent, error) {
		var removed *models.OrderItem
		for i := range order.Items {
			if order.Items[i].ProductID == cmd.ProductID {
				item := order.Items[i]
				removed = &item
				break
			}
		}
		if err := order.RemoveItem(cmd.ProductID, cmd.Actor.UserID); err != nil {
			return nil, err
		}
		return nil, restock(ctx, store, *removed)
	})
}

func (s *OrderService) handleGet(ctx context.Context, cmd OrderCommand) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !cmd.Actor.CanAccess(order.UserID) {
		return nil, apperrors.NotFound("order", cmd.OrderID)
	}
	return order, nil
}

func (s *OrderService) handleList(ctx context.Context, q ListOrdersQuery) ([]models.Order, error) {
	filter := repositories.OrderFilter{UserID: q.UserID, Status: q.Status, IncludeDeleted: q.IncludeDeleted}
	if !q.Actor.IsAdmin() {
		filter.UserID = q.Actor.UserID
		filter.IncludeDeleted = false
	}
	return s.orders.GetAll(ctx, filter)
}

// mutate loads the order inside a unit of work, applies fn, persists the order
// and publishes the order events plus whatever fn returned after commit.
func (s *OrderService) mutate(
	ctx context.Context,
	actor Actor,
	orderID string,
	fn func(store repositories.Store, order *models.Order) ([]models.DomainEvent, error),
) (*models.Order, error) {
	var (
		order   *models.Order
		pending []models.DomainEvent
	)
	err := s.uow.Execute(ctx, func(store repositories.Store) error {
		var err error
		order, err = store.Orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !actor.CanAccess(order.UserID) {
			return apperrors.NotFound("order", orderID)
		}
		extra, err := fn(store, order)
		if err != nil {
			return err
		}
		if err := store.Orders.Update(ctx, order); err != nil {
			return err
		}
		pending = append(order.PullEvents(), extra...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.outbox.flush(ctx, pending)
	return order, nil
}

// reserve takes a checkout line's quantity out of stock and prices it from
// the catalog. Errors name fields under prefix.
func reserve(ctx context.Context, store repositories.Store, actor Actor, req CheckoutItem, prefix string) (models.OrderItem, error) {
	if !req.Discount.IsZero() && !actor.IsAdmin() {
		return models.OrderItem{}, apperrors.NewValidation(prefix+".discount", "can only be set by staff")
	}
	product, err := store.Products.AdjustStock(ctx, req.ProductID, -req.Quantity)
	if errors.Is(err, apperrors.ErrNotFound) {
		return models.OrderItem{}, apperrors.NewValidation(prefix+".product_id", "unknown product "+req.ProductID)
	}
	if err != nil {
		return models.OrderItem{}, err
	}
	return models.OrderItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		UnitPrice:   product.Price,
		Quantity:    req.Quantity,
		Discount:    req.Discount,
	}, nil
}

// restock returns an item's quantity to the catalog. Products removed from
// the catalog since are skipped.
func restock(ctx context.Context, store repositories.Store, item models.OrderItem) error {
	_, err := store.Products.AdjustStock(ctx, item.ProductID, item.Quantity)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	return err
}

// findPayment returns the payment of an order, or nil when it has none.
func findPayment(ctx context.Context, store repositories.Store, orderID string) (*models.Payment, error) {
	payment, err := store.Payments.GetByOrderID(ctx, orderID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	return payment, err
}

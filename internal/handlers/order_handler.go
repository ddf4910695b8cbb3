package handlers

import (
	"context"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/dto"
	"toko-commerce/internal/middleware"
	"toko-commerce/internal/models"
	"toko-commerce/internal/services"

	"github.com/gofiber/fiber/v2"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service *services.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService) *OrderHandler {
	return &OrderHandler{
		service: service,
	}
}

// RegisterRoutes registers the order routes with the Fiber app.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Get("/", h.HandleGetOrders)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Post("/", h.HandleCheckout)
	orderRoutes.Delete("/:id", h.HandleDeleteOrder)

	orderRoutes.Post("/:id/items", h.HandleAddItem)
	orderRoutes.Delete("/:id/items/:productId", h.HandleRemoveItem)

	orderRoutes.Post("/:id/submit", h.HandleSubmit)
	orderRoutes.Post("/:id/cancel", h.HandleCancel)

	// Fulfilment is a back-office action.
	adminOnly := middleware.RequireRole(services.RoleAdmin)
	orderRoutes.Post("/:id/ship", adminOnly, h.HandleShip)
	orderRoutes.Post("/:id/deliver", adminOnly, h.HandleDeliver)
}

// HandleGetOrders lists the caller's orders. Admins may filter by user,
// status and include soft-deleted orders.
func (h *OrderHandler) HandleGetOrders(c *fiber.Ctx) error {
	orders, err := h.service.List(c.UserContext(), services.ListOrdersQuery{
		Actor:          middleware.CurrentActor(c),
		UserID:         c.Query("user_id"),
		Status:         models.OrderStatus(c.Query("status")),
		IncludeDeleted: c.QueryBool("include_deleted"),
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.FromOrders(orders))
}

// HandleGetOrderByID retrieves a single order by its ID.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	order, err := h.service.Get(c.UserContext(), h.command(c))
	if err != nil {
		return err
	}
	return c.JSON(dto.FromOrder(order))
}

// HandleCheckout places a new order.
func (h *OrderHandler) HandleCheckout(c *fiber.Ctx) error {
	var cmd services.CheckoutCommand
	if err := c.BodyParser(&cmd); err != nil {
		return apperrors.NewValidation("body", "invalid request body: "+err.Error())
	}
	cmd.Actor = middleware.CurrentActor(c)

	order, err := h.service.Checkout(c.UserContext(), cmd)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromOrder(order))
}

// HandleDeleteOrder soft-deletes an order.
func (h *OrderHandler) HandleDeleteOrder(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), h.command(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleAddItem adds a line to a pending order.
func (h *OrderHandler) HandleAddItem(c *fiber.Ctx) error {
	var item services.CheckoutItem
	if err := c.BodyParser(&item); err != nil {
		return apperrors.NewValidation("body", "invalid request body: "+err.Error())
	}
	order, err := h.service.AddItem(c.UserContext(), services.AddItemCommand{
		Actor:   middleware.CurrentActor(c),
		OrderID: c.Params("id"),
		Item:    item,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.FromOrder(order))
}

// HandleRemoveItem removes a product from a pending order.
func (h *OrderHandler) HandleRemoveItem(c *fiber.Ctx) error {
	order, err := h.service.RemoveItem(c.UserContext(), services.RemoveItemCommand{
		Actor:     middleware.CurrentActor(c),
		OrderID:   c.Params("id"),
		ProductID: c.Params("productId"),
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.FromOrder(order))
}

// HandleSubmit moves an order to processing.
func (h *OrderHandler) HandleSubmit(c *fiber.Ctx) error {
	return h.transition(c, h.service.Submit)
}

// HandleShip moves an order to shipped.
func (h *OrderHandler) HandleShip(c *fiber.Ctx) error {
	return h.transition(c, h.service.Ship)
}

// HandleDeliver marks an order as delivered.
func (h *OrderHandler) HandleDeliver(c *fiber.Ctx) error {
	return h.transition(c, h.service.Deliver)
}

// HandleCancel cancels an order. The body must carry a reason.
func (h *OrderHandler) HandleCancel(c *fiber.Ctx) error {
	var body struct {
		Reason string `json:"reason"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return apperrors.NewValidation("body", "invalid request body: "+err.Error())
		}
	}
	order, err := h.service.Cancel(c.UserContext(), services.CancelOrderCommand{
		Actor:   middleware.CurrentActor(c),
		OrderID: c.Params("id"),
		Reason:  body.Reason,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.FromOrder(order))
}

func (h *OrderHandler) transition(c *fiber.Ctx, fn func(ctx context.Context, cmd services.OrderCommand) (*models.Order, error)) error {
	order, err := fn(c.UserContext(), h.command(c))
	if err != nil {
		return err
	}
	return c.JSON(dto.FromOrder(order))
}

func (h *OrderHandler) command(c *fiber.Ctx) services.OrderCommand {
	return services.OrderCommand{Actor: middleware.CurrentActor(c), OrderID: c.Params("id")}
}

package handlers

import (
	"crypto/subtle"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/dto"
	"toko-commerce/internal/middleware"
	"toko-commerce/internal/models"
	"toko-commerce/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// HeaderCallbackToken carries the shared secret on provider callbacks.
const HeaderCallbackToken = "X-Callback-Token"

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	service       *services.PaymentService
	callbackToken string
	logger        *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler. When callbackToken is set,
// provider callbacks must present it in the X-Callback-Token header.
func NewPaymentHandler(service *services.PaymentService, callbackToken string, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service:       service,
		callbackToken: callbackToken,
		logger:        logger,
	}
}

// RegisterCallbackRoutes registers the unauthenticated provider callback.
func (h *PaymentHandler) RegisterCallbackRoutes(router fiber.Router) {
	router.Post("/payments/callbacks/:provider", h.HandleCallback)
}

// RegisterRoutes registers the payment routes with the Fiber app.
func (h *PaymentHandler) RegisterRoutes(router fiber.Router) {
	paymentRoutes := router.Group("/payments")
	paymentRoutes.Post("/", h.HandleInitiate)
	paymentRoutes.Get("/order/:orderId", h.HandleGetByOrder)
	paymentRoutes.Get("/:id", h.HandleGetPayment)
	paymentRoutes.Post("/:id/cancel", h.HandleCancel)
	paymentRoutes.Post("/:id/sync", h.HandleSync)

	adminOnly := middleware.RequireRole(services.RoleAdmin)
	paymentRoutes.Post("/:id/complete", adminOnly, h.HandleComplete)
	paymentRoutes.Post("/:id/fail", adminOnly, h.HandleFail)
	paymentRoutes.Post("/:id/refund", adminOnly, h.HandleRefund)
}

// HandleInitiate opens a payment for an order.
func (h *PaymentHandler) HandleInitiate(c *fiber.Ctx) error {
	var cmd services.InitiatePaymentCommand
	if err := c.BodyParser(&cmd); err != nil {
		return apperrors.NewValidation("body", "invalid request body: "+err.Error())
	}
	cmd.Actor = middleware.CurrentActor(c)

	payment, err := h.service.Initiate(c.UserContext(), cmd)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromPayment(payment))
}

// HandleGetPayment returns one payment.
func (h *PaymentHandler) HandleGetPayment(c *fiber.Ctx) error {
	payment, err := h.service.Get(c.UserContext(), h.command(c))
	if err != nil {
		return err
	}
	return c.JSON(dto.FromPayment(payment))
}

// HandleGetByOrder returns the payment of an order.
func (h *PaymentHandler) HandleGetByOrder(c *fiber.Ctx) error {
	payment, err := h.service.GetByOrder(c.UserContext(), services.PaymentByOrderQuery{
		Actor:   middleware.CurrentActor(c),
		OrderID: c.Params("orderId"),
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.FromPayment(payment))
}

// HandleComplete settles a payment manually.
func (h *PaymentHandler) HandleComplete(c *fiber.Ctx) error {
	var body struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidation("body", "invalid request body: "+err.Error())
	}
	payment, err := h.service.Complete(c.UserContext(), services.CompletePaymentCommand{
		Actor:         middleware.CurrentActor(c),
		PaymentID:     c.Params("id"),
		TransactionID: body.TransactionID,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.FromPayment(payment))
}

// HandleFail marks a payment as failed.
func (h *PaymentHandler) HandleFail(c *fiber.Ctx) error {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidation("body", "invalid request body: "+err.Error())
	}
	payment, err := h.service.Fail(c.UserContext(), services.FailPaymentCommand{
		Actor:     middleware.CurrentActor(c),
		PaymentID: c.Params("id"),
		Reason:    body.Reason,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.FromPayment(payment))
}

// HandleCancel abandons an open payment.
func (h *PaymentHandler) HandleCancel(c *fiber.Ctx) error {
	payment, err := h.service.Cancel(c.UserContext(), h.command(c))
	if err != nil {
		return err
	}
	return c.JSON(dto.FromPayment(payment))
}

// HandleRefund refunds part or all of a completed payment.
func (h *PaymentHandler) HandleRefund(c *fiber.Ctx) error {
	var body struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidation("body", "invalid request body: "+err.Error())
	}
	payment, err := h.service.Refund(c.UserContext(), services.RefundPaymentCommand{
		Actor:     middleware.CurrentActor(c),
		PaymentID: c.Params("id"),
		Amount:    body.Amount,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.FromPayment(payment))
}

// HandleSync pulls the current status from the provider.
func (h *PaymentHandler) HandleSync(c *fiber.Ctx) error {
	payment, err := h.service.SyncStatus(c.UserContext(), h.command(c))
	if err != nil {
		return err
	}
	return c.JSON(dto.FromPayment(payment))
}

// HandleCallback applies a status notification pushed by a provider.
func (h *PaymentHandler) HandleCallback(c *fiber.Ctx) error {
	if h.callbackToken != "" &&
		subtle.ConstantTimeCompare([]byte(c.Get(HeaderCallbackToken)), []byte(h.callbackToken)) != 1 {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid callback token")
	}

	var cmd services.CallbackCommand
	if err := c.BodyParser(&cmd); err != nil {
		return apperrors.NewValidation("body", "invalid request body: "+err.Error())
	}
	cmd.Provider = models.PaymentProvider(c.Params("provider"))

	payment, err := h.service.HandleCallback(c.UserContext(), cmd)
	if err != nil {
		h.logger.Warn("payment callback rejected",
			zap.String("provider", string(cmd.Provider)),
			zap.String("reference", cmd.Reference),
			zap.Error(err))
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Callback processed",
		"status":  payment.Status,
	})
}

func (h *PaymentHandler) command(c *fiber.Ctx) services.PaymentCommand {
	return services.PaymentCommand{Actor: middleware.CurrentActor(c), PaymentID: c.Params("id")}
}

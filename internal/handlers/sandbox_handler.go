package handlers

import (
	"errors"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/dto"
	"toko-commerce/internal/gateway"
	"toko-commerce/internal/models"
	"toko-commerce/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SandboxHandler serves the checkout page that sandbox payments redirect to.
// Settling there plays the provider: the sandbox is updated and the result is
// delivered like a provider callback.
type SandboxHandler struct {
	sandboxes map[models.PaymentProvider]*gateway.Sandbox
	payments  *services.PaymentService
	logger    *zap.Logger
}

// NewSandboxHandler creates a new SandboxHandler.
func NewSandboxHandler(sandboxes map[models.PaymentProvider]*gateway.Sandbox, payments *services.PaymentService, logger *zap.Logger) *SandboxHandler {
	return &SandboxHandler{sandboxes: sandboxes, payments: payments, logger: logger}
}

// RegisterRoutes mounts /sandbox/checkout.
func (h *SandboxHandler) RegisterRoutes(router fiber.Router) {
	checkout := router.Group("/sandbox/checkout")
	checkout.Get("/:reference", h.HandleShow)
	checkout.Post("/:reference", h.HandleSettle)
}

// HandleShow reports what the sandbox knows about a payment.
func (h *SandboxHandler) HandleShow(c *fiber.Ctx) error {
	sandbox, status, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"provider":       sandbox.Provider(),
		"reference":      status.Reference,
		"status":         status.Status,
		"transaction_id": status.TransactionID,
		"reason":         status.Reason,
	})
}

// HandleSettle completes, fails or cancels a sandbox payment and applies the
// outcome to the stored payment.
func (h *SandboxHandler) HandleSettle(c *fiber.Ctx) error {
	var body struct {
		Status        string `json:"status"`
		TransactionID string `json:"transaction_id"`
		Reason        string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidation("body", "invalid request body: "+err.Error())
	}
	status, err := gateway.ParseStatus(body.Status)
	if err != nil {
		return err
	}

	sandbox, _, err := h.lookup(c)
	if err != nil {
		return err
	}
	reference := c.Params("reference")
	if err := sandbox.Settle(reference, status, body.TransactionID, body.Reason); err != nil {
		return err
	}
	settled, err := sandbox.GetPaymentStatus(c.UserContext(), reference)
	if err != nil {
		return err
	}

	payment, err := h.payments.HandleCallback(c.UserContext(), services.CallbackCommand{
		Provider:      sandbox.Provider(),
		Reference:     reference,
		Status:        string(settled.Status),
		TransactionID: settled.TransactionID,
		Reason:        settled.Reason,
	})
	if err != nil {
		h.logger.Warn("sandbox settlement rejected", zap.String("reference", reference), zap.Error(err))
		return err
	}
	return c.JSON(dto.FromPayment(payment))
}

func (h *SandboxHandler) lookup(c *fiber.Ctx) (*gateway.Sandbox, *gateway.StatusResult, error) {
	reference := c.Params("reference")
	for _, sandbox := range h.sandboxes {
		status, err := sandbox.GetPaymentStatus(c.UserContext(), reference)
		if errors.Is(err, apperrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		return sandbox, status, nil
	}
	return nil, nil, apperrors.NotFound("sandbox payment", reference)
}

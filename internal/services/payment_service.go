package services

import (
	"context"
	"errors"
	"fmt"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/events"
	"toko-commerce/internal/gateway"
	"toko-commerce/internal/metrics"
	"toko-commerce/internal/models"
	"toko-commerce/internal/pipeline"
	"toko-commerce/internal/repositories"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// gatewayActor is recorded as UpdatedBy for changes reported by a provider.
const gatewayActor = "gateway"

// InitiatePaymentCommand opens a payment for an order.
type InitiatePaymentCommand struct {
	Actor    Actor                  `json:"-"`
	OrderID  string                 `json:"order_id" validate:"required"`
	Provider models.PaymentProvider `json:"provider" validate:"required,oneof=monetbil stripe paypal cash_on_delivery"`
}

// PaymentCommand targets a single payment.
type PaymentCommand struct {
	Actor     Actor  `json:"-"`
	PaymentID string `json:"payment_id" validate:"required"`
}

// CompletePaymentCommand settles a payment manually.
type CompletePaymentCommand struct {
	Actor         Actor  `json:"-"`
	PaymentID     string `json:"payment_id" validate:"required"`
	TransactionID string `json:"transaction_id" validate:"required,max=100"`
}

// FailPaymentCommand marks a payment as failed.
type FailPaymentCommand struct {
	Actor     Actor  `json:"-"`
	PaymentID string `json:"payment_id" validate:"required"`
	Reason    string `json:"reason" validate:"required,max=255"`
}

// RefundPaymentCommand returns money for a completed payment.
type RefundPaymentCommand struct {
	Actor     Actor           `json:"-"`
	PaymentID string          `json:"payment_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

// PaymentByOrderQuery looks a payment up by its order.
type PaymentByOrderQuery struct {
	Actor   Actor  `json:"-"`
	OrderID string `json:"order_id" validate:"required"`
}

// CallbackCommand is a status notification pushed by a provider.
type CallbackCommand struct {
	Provider      models.PaymentProvider `json:"provider" validate:"required"`
	Reference     string                 `json:"reference" validate:"required"`
	Status        string                 `json:"status" validate:"required"`
	TransactionID string                 `json:"transaction_id"`
	Reason        string                 `json:"reason"`
}

// PaymentService runs the payment commands and queries.
type PaymentService struct {
	uow      repositories.UnitOfWork
	payments repositories.PaymentRepository
	gateways *gateway.Registry
	outbox   outbox
	logger   *zap.Logger

	// enforceConsistency only lets money go back for delivered or cancelled orders.
	enforceConsistency bool

	initiate   pipeline.HandlerFunc[InitiatePaymentCommand, *models.Payment]
	complete   pipeline.HandlerFunc[CompletePaymentCommand, *models.Payment]
	fail       pipeline.HandlerFunc[FailPaymentCommand, *models.Payment]
	cancel     pipeline.HandlerFunc[PaymentCommand, *models.Payment]
	refund     pipeline.HandlerFunc[RefundPaymentCommand, *models.Payment]
	callback   pipeline.HandlerFunc[CallbackCommand, *models.Payment]
	sync       pipeline.HandlerFunc[PaymentCommand, *models.Payment]
	get        pipeline.HandlerFunc[PaymentCommand, *models.Payment]
	getByOrder pipeline.HandlerFunc[PaymentByOrderQuery, *models.Payment]
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	uow repositories.UnitOfWork,
	payments repositories.PaymentRepository,
	gateways *gateway.Registry,
	emitter *events.Emitter,
	m *metrics.Metrics,
	p *pipeline.Pipeline,
	logger *zap.Logger,
	enforceConsistency bool,
) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PaymentService{
		uow:                uow,
		payments:           payments,
		gateways:           gateways,
		outbox:             outbox{emitter: emitter, metrics: m},
		logger:             logger,
		enforceConsistency: enforceConsistency,
	}
	s.initiate = pipeline.Wrap(p, "payments.initiate", s.handleInitiate)
	s.complete = pipeline.Wrap(p, "payments.complete", s.handleComplete)
	s.fail = pipeline.Wrap(p, "payments.fail", s.handleFail)
	s.cancel = pipeline.Wrap(p, "payments.cancel", s.handleCancel)
	s.refund = pipeline.Wrap(p, "payments.refund", s.handleRefund)
	s.callback = pipeline.Wrap(p, "payments.callback", s.handleCallback)
	s.sync = pipeline.Wrap(p, "payments.sync", s.handleSync)
	s.get = pipeline.Wrap(p, "payments.get", s.handleGet)
	s.getByOrder = pipeline.Wrap(p, "payments.get_by_order", s.handleGetByOrder)
	return s
}

// Initiate opens a payment for the full order total at the chosen provider.
func (s *PaymentService) Initiate(ctx context.Context, cmd InitiatePaymentCommand) (*models.Payment, error) {
	return s.initiate(ctx, cmd)
}

// Complete settles an open payment.
func (s *PaymentService) Complete(ctx context.Context, cmd CompletePaymentCommand) (*models.Payment, error) {
	return s.complete(ctx, cmd)
}

// Fail marks an open payment as failed.
func (s *PaymentService) Fail(ctx context.Context, cmd FailPaymentCommand) (*models.Payment, error) {
	return s.fail(ctx, cmd)
}

// Cancel abandons an open payment.
func (s *PaymentService) Cancel(ctx context.Context, cmd PaymentCommand) (*models.Payment, error) {
	return s.cancel(ctx, cmd)
}

// Refund refunds part or all of a completed payment.
func (s *PaymentService) Refund(ctx context.Context, cmd RefundPaymentCommand) (*models.Payment, error) {
	return s.refund(ctx, cmd)
}

// HandleCallback applies a provider status notification.
func (s *PaymentService) HandleCallback(ctx context.Context, cmd CallbackCommand) (*models.Payment, error) {
	return s.callback(ctx, cmd)
}

// SyncStatus asks the provider for the current status and applies it.
func (s *PaymentService) SyncStatus(ctx context.Context, cmd PaymentCommand) (*models.Payment, error) {
	return s.sync(ctx, cmd)
}

// Get returns a payment visible to the actor.
func (s *PaymentService) Get(ctx context.Context, cmd PaymentCommand) (*models.Payment, error) {
	return s.get(ctx, cmd)
}

// GetByOrder returns the payment of an order visible to the actor.
func (s *PaymentService) GetByOrder(ctx context.Context, q PaymentByOrderQuery) (*models.Payment, error) {
	return s.getByOrder(ctx, q)
}

// handleInitiate keeps the gateway call inside the unit of work, so a provider
// failure leaves no payment behind.
func (s *PaymentService) handleInitiate(ctx context.Context, cmd InitiatePaymentCommand) (*models.Payment, error) {
	gw, err := s.gateways.Get(cmd.Provider)
	if err != nil {
		return nil, err
	}

	var payment *models.Payment
	err = s.uow.Execute(ctx, func(store repositories.Store) error {
		order, err := store.Orders.GetByID(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if !cmd.Actor.CanAccess(order.UserID) {
			return apperrors.NotFound("order", cmd.OrderID)
		}
		if order.Status.IsTerminal() {
			return &apperrors.TransitionError{
				Entity: "order",
				ID:     order.ID,
				From:   string(order.Status),
				Action: "pay for",
			}
		}

		previous, err := findPayment(ctx, store, order.ID)
		if err != nil {
			return err
		}
		if previous != nil {
			if previous.Status != models.PaymentStatusFailed && previous.Status != models.PaymentStatusCancelled {
				return apperrors.Conflict("order %s already has a %s payment %s", order.ID, previous.Status, previous.ID)
			}
			if err := store.Payments.Delete(ctx, previous.ID); err != nil {
				return err
			}
		}

		payment, err = models.NewPayment(order, cmd.Provider, cmd.Actor.UserID)
		if err != nil {
			return err
		}
		result, err := gw.InitiatePayment(ctx, gateway.InitiateRequest{
			PaymentID: payment.ID,
			OrderID:   order.ID,
			UserID:    order.UserID,
			Amount:    payment.Amount,
			Currency:  payment.Currency,
		})
		if err != nil {
			return fmt.Errorf("failed to initiate %s payment: %w", cmd.Provider, err)
		}
		payment.AttachReference(result.Reference, result.RedirectURL, cmd.Actor.UserID)
		if err := applyStatus(payment, gateway.StatusResult{Reference: result.Reference, Status: result.Status}); err != nil {
			return err
		}
		return store.Payments.Create(ctx, payment)
	})
	if err != nil {
		return nil, err
	}
	s.outbox.flush(ctx, payment.PullEvents())
	return payment, nil
}

func (s *PaymentService) handleComplete(ctx context.Context, cmd CompletePaymentCommand) (*models.Payment, error) {
	return s.mutate(ctx, cmd.Actor, cmd.PaymentID, func(_ repositories.Store, payment *models.Payment) error {
		return payment.Complete(cmd.TransactionID, cmd.Actor.UserID)
	})
}

func (s *PaymentService) handleFail(ctx context.Context, cmd FailPaymentCommand) (*models.Payment, error) {
	return s.mutate(ctx, cmd.Actor, cmd.PaymentID, func(_ repositories.Store, payment *models.Payment) error {
		return payment.Fail(cmd.Reason, cmd.Actor.UserID)
	})
}

func (s *PaymentService) handleCancel(ctx context.Context, cmd PaymentCommand) (*models.Payment, error) {
	return s.mutate(ctx, cmd.Actor, cmd.PaymentID, func(_ repositories.Store, payment *models.Payment) error {
		return payment.Cancel(cmd.Actor.UserID)
	})
}

// handleRefund validates locally on a copy before the provider is asked to move
// money, then applies the refund to the stored payment.
func (s *PaymentService) handleRefund(ctx context.Context, cmd RefundPaymentCommand) (*models.Payment, error) {
	return s.mutate(ctx, cmd.Actor, cmd.PaymentID, func(store repositories.Store, payment *models.Payment) error {
		if err := payment.Clone().Refund(cmd.Amount, cmd.Actor.UserID); err != nil {
			return err
		}
		if s.enforceConsistency {
			order, err := store.Orders.GetByIDUnscoped(ctx, payment.OrderID)
			if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
				return err
			}
			if err := models.CheckRefund(payment, order); err != nil {
				return err
			}
		}

		gw, err := s.gateways.Get(payment.Provider)
		if err != nil {
			return err
		}
		result, err := gw.RefundPayment(ctx, payment.PaymentReference, cmd.Amount)
		if err != nil {
			return fmt.Errorf("failed to refund payment %s: %w", payment.ID, err)
		}
		s.logger.Info("refund accepted by provider",
			zap.String("payment_id", payment.ID),
			zap.String("provider", string(payment.Provider)),
			zap.String("refund_id", result.RefundID),
			zap.String("amount", cmd.Amount.StringFixed(2)))
		return payment.Refund(cmd.Amount, cmd.Actor.UserID)
	})
}

func (s *PaymentService) handleCallback(ctx context.Context, cmd CallbackCommand) (*models.Payment, error) {
	status, err := gateway.ParseStatus(cmd.Status)
	if err != nil {
		return nil, err
	}
	result := gateway.StatusResult{
		Reference:     cmd.Reference,
		Status:        status,
		TransactionID: cmd.TransactionID,
		Reason:        cmd.Reason,
	}

	var (
		payment *models.Payment
		pending []models.DomainEvent
	)
	err = s.uow.Execute(ctx, func(store repositories.Store) error {
		var err error
		payment, err = store.Payments.GetByReference(ctx, cmd.Provider, cmd.Reference)
		if err != nil {
			return err
		}
		if err := applyStatus(payment, result); err != nil {
			return err
		}
		pending = payment.PullEvents()
		if len(pending) == 0 {
			return nil
		}
		return store.Payments.Update(ctx, payment)
	})
	if err != nil {
		return nil, err
	}
	s.outbox.flush(ctx, pending)
	return payment, nil
}

func (s *PaymentService) handleSync(ctx context.Context, cmd PaymentCommand) (*models.Payment, error) {
	return s.mutate(ctx, cmd.Actor, cmd.PaymentID, func(_ repositories.Store, payment *models.Payment) error {
		if payment.PaymentReference == "" {
			return apperrors.NewValidation("payment_reference", "payment has no provider reference")
		}
		gw, err := s.gateways.Get(payment.Provider)
		if err != nil {
			return err
		}
		result, err := gw.GetPaymentStatus(ctx, payment.PaymentReference)
		if err != nil {
			return fmt.Errorf("failed to fetch status of payment %s: %w", payment.ID, err)
		}
		return applyStatus(payment, *result)
	})
}

func (s *PaymentService) handleGet(ctx context.Context, cmd PaymentCommand) (*models.Payment, error) {
	payment, err := s.payments.GetByID(ctx, cmd.PaymentID)
	if err != nil {
		return nil, err
	}
	if !cmd.Actor.CanAccess(payment.UserID) {
		return nil, apperrors.NotFound("payment", cmd.PaymentID)
	}
	return payment, nil
}

func (s *PaymentService) handleGetByOrder(ctx context.Context, q PaymentByOrderQuery) (*models.Payment, error) {
	payment, err := s.payments.GetByOrderID(ctx, q.OrderID)
	if err != nil {
		return nil, err
	}
	if !q.Actor.CanAccess(payment.UserID) {
		return nil, apperrors.NotFound("payment for order", q.OrderID)
	}
	return payment, nil
}

// mutate loads the payment inside a unit of work, applies fn and persists it.
// Events are published after commit.
func (s *PaymentService) mutate(
	ctx context.Context,
	actor Actor,
	paymentID string,
	fn func(store repositories.Store, payment *models.Payment) error,
) (*models.Payment, error) {
	var (
		payment *models.Payment
		pending []models.DomainEvent
	)
	err := s.uow.Execute(ctx, func(store repositories.Store) error {
		var err error
		payment, err = store.Payments.GetByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if !actor.CanAccess(payment.UserID) {
			return apperrors.NotFound("payment", paymentID)
		}
		if err := fn(store, payment); err != nil {
			return err
		}
		if err := store.Payments.Update(ctx, payment); err != nil {
			return err
		}
		pending = payment.PullEvents()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.outbox.flush(ctx, pending)
	return payment, nil
}

// applyStatus moves payment towards the provider-reported status. Reports that
// match the current status are ignored so that providers may retry callbacks.
func applyStatus(payment *models.Payment, result gateway.StatusResult) error {
	switch result.Status {
	case gateway.StatusPending:
		return nil
	case gateway.StatusProcessing:
		if payment.Status != models.PaymentStatusPending {
			return nil
		}
		return payment.StartProcessing(gatewayActor)
	case gateway.StatusCompleted:
		if payment.Status == models.PaymentStatusCompleted {
			return nil
		}
		txID := result.TransactionID
		if txID == "" {
			txID = result.Reference
		}
		return payment.Complete(txID, gatewayActor)
	case gateway.StatusFailed:
		if payment.Status == models.PaymentStatusFailed {
			return nil
		}
		reason := result.Reason
		if reason == "" {
			reason = "declined by provider"
		}
		return payment.Fail(reason, gatewayActor)
	case gateway.StatusCancelled:
		if payment.Status == models.PaymentStatusCancelled {
			return nil
		}
		return payment.Cancel(gatewayActor)
	default:
		return apperrors.NewValidation("status", fmt.Sprintf("unknown gateway status %q", result.Status))
	}
}

package gateway

import (
	"context"
	"fmt"
	"sync"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type sandboxPayment struct {
	amount   decimal.Decimal
	refunded decimal.Decimal
	status   StatusResult
}

// Sandbox is an in-process stand-in for a remote provider. Payments start
// pending and are settled with Settle, which is what the callback endpoint of
// a real provider would do.
type Sandbox struct {
	provider models.PaymentProvider
	baseURL  string

	mu       sync.Mutex
	payments map[string]*sandboxPayment
}

// NewSandbox creates a sandbox gateway answering for provider.
func NewSandbox(provider models.PaymentProvider, baseURL string) *Sandbox {
	return &Sandbox{
		provider: provider,
		baseURL:  baseURL,
		payments: make(map[string]*sandboxPayment),
	}
}

func (s *Sandbox) Provider() models.PaymentProvider {
	return s.provider
}

func (s *Sandbox) InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrGateway)
	}
	ref := fmt.Sprintf("sbx_%s_%s", s.provider, uuid.New().String())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[ref] = &sandboxPayment{
		amount:   req.Amount,
		refunded: decimal.Zero,
		status:   StatusResult{Reference: ref, Status: StatusPending},
	}
	return &InitiateResult{
		Reference:   ref,
		RedirectURL: fmt.Sprintf("%s/checkout/%s", s.baseURL, ref),
		Status:      StatusPending,
	}, nil
}

func (s *Sandbox) GetPaymentStatus(_ context.Context, reference string) (*StatusResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[reference]
	if !ok {
		return nil, apperrors.NotFound("gateway payment", reference)
	}
	res := p.status
	return &res, nil
}

func (s *Sandbox) RefundPayment(_ context.Context, reference string, amount decimal.Decimal) (*RefundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[reference]
	if !ok {
		return nil, apperrors.NotFound("gateway payment", reference)
	}
	// Callbacks settle our side without touching the sandbox, so only payments
	// the sandbox itself saw fail are refused.
	if p.status.Status == StatusFailed || p.status.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: payment %s is %s", ErrGateway, reference, p.status.Status)
	}
	if p.refunded.Add(amount).GreaterThan(p.amount) {
		return nil, fmt.Errorf("%w: refund exceeds captured amount", ErrGateway)
	}
	p.refunded = p.refunded.Add(amount)
	return &RefundResult{RefundID: "sbx_refund_" + uuid.New().String()}, nil
}

// Settle moves a sandbox payment to status. A completed payment gets a
// transaction id when none is given.
func (s *Sandbox) Settle(reference string, status Status, transactionID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[reference]
	if !ok {
		return apperrors.NotFound("gateway payment", reference)
	}
	if status == StatusCompleted && transactionID == "" {
		transactionID = "sbx_tx_" + uuid.New().String()
	}
	p.status = StatusResult{Reference: reference, Status: status, TransactionID: transactionID, Reason: reason}
	return nil
}

package gateway

import (
	"context"

	"toko-commerce/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CashOnDelivery collects payment when the order is handed over. There is no
// remote party: payments stay pending until delivery completes them.
type CashOnDelivery struct{}

// NewCashOnDelivery creates the cash-on-delivery gateway.
func NewCashOnDelivery() *CashOnDelivery {
	return &CashOnDelivery{}
}

func (CashOnDelivery) Provider() models.PaymentProvider {
	return models.ProviderCashOnDelivery
}

func (CashOnDelivery) InitiatePayment(_ context.Context, req InitiateRequest) (*InitiateResult, error) {
	return &InitiateResult{Reference: "cod_" + req.PaymentID, Status: StatusPending}, nil
}

func (CashOnDelivery) GetPaymentStatus(_ context.Context, reference string) (*StatusResult, error) {
	return &StatusResult{Reference: reference, Status: StatusPending}, nil
}

// RefundPayment records a cash refund; the money is handed back in person.
func (CashOnDelivery) RefundPayment(_ context.Context, reference string, _ decimal.Decimal) (*RefundResult, error) {
	return &RefundResult{RefundID: "cod_refund_" + uuid.New().String()}, nil
}

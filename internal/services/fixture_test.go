package services_test

import (
	"context"
	"testing"

	"toko-commerce/internal/events"
	"toko-commerce/internal/gateway"
	"toko-commerce/internal/metrics"
	"toko-commerce/internal/models"
	"toko-commerce/internal/pipeline"
	"toko-commerce/internal/repositories"
	"toko-commerce/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	customer = services.Actor{UserID: "user-1", Role: services.RoleCustomer}
	stranger = services.Actor{UserID: "user-2", Role: services.RoleCustomer}
	admin    = services.Actor{UserID: "admin-1", Role: services.RoleAdmin}
)

// MockPublisher is a mock implementation of events.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event models.DomainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// types lists the published event types in order.
func (m *MockPublisher) types() []string {
	var out []string
	for _, call := range m.Calls {
		out = append(out, call.Arguments.Get(1).(models.DomainEvent).Type)
	}
	return out
}

// MockGateway is a mock implementation of gateway.Gateway
type MockGateway struct {
	mock.Mock
	provider models.PaymentProvider
}

func (m *MockGateway) Provider() models.PaymentProvider {
	return m.provider
}

func (m *MockGateway) InitiatePayment(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.InitiateResult), args.Error(1)
}

func (m *MockGateway) GetPaymentStatus(ctx context.Context, reference string) (*gateway.StatusResult, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.StatusResult), args.Error(1)
}

func (m *MockGateway) RefundPayment(ctx context.Context, reference string, amount decimal.Decimal) (*gateway.RefundResult, error) {
	args := m.Called(ctx, reference, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.RefundResult), args.Error(1)
}

type fixture struct {
	orders   *services.OrderService
	payments *services.PaymentService

	orderRepo   *repositories.MockOrderRepository
	paymentRepo *repositories.MockPaymentRepository
	productRepo *repositories.MockProductRepository

	stripe    *gateway.Sandbox
	paypal    *MockGateway
	publisher *MockPublisher
	metrics   *metrics.Metrics

	laptop string
	mouse  string
}

func newFixture(t *testing.T, enforceConsistency bool) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		orderRepo:   repositories.NewMockOrderRepository(),
		paymentRepo: repositories.NewMockPaymentRepository(),
		productRepo: repositories.NewMockProductRepository(),
		stripe:      gateway.NewSandbox(models.ProviderStripe, "https://sandbox.local"),
		paypal:      &MockGateway{provider: models.ProviderPayPal},
		publisher:   new(MockPublisher),
		metrics:     metrics.New(),
	}
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	laptop := &models.Product{Name: "Laptop", Price: decimal.NewFromInt(60), Stock: 5}
	mouse := &models.Product{Name: "Mouse", Price: decimal.NewFromInt(20), Stock: 10}
	require.NoError(t, f.productRepo.Create(ctx, laptop))
	require.NoError(t, f.productRepo.Create(ctx, mouse))
	f.laptop, f.mouse = laptop.ID, mouse.ID

	uow := repositories.NewMemoryUnitOfWork(f.orderRepo, f.paymentRepo, f.productRepo)
	emitter := events.NewEmitter(f.publisher, nil, f.metrics)
	registry := gateway.NewRegistry(f.stripe, f.paypal, gateway.NewCashOnDelivery())
	p := pipeline.New()

	f.orders = services.NewOrderService(uow, f.orderRepo, f.paymentRepo, emitter, f.metrics, p, enforceConsistency)
	f.payments = services.NewPaymentService(uow, f.paymentRepo, registry, emitter, f.metrics, p, nil, enforceConsistency)
	return f
}

// checkout places the standard order: one laptop and two mice, total 100.
func (f *fixture) checkout(t *testing.T) *models.Order {
	t.Helper()
	order, err := f.orders.Checkout(context.Background(), services.CheckoutCommand{
		Actor: customer,
		Items: []services.CheckoutItem{
			{ProductID: f.laptop, Quantity: 1},
			{ProductID: f.mouse, Quantity: 2},
		},
	})
	require.NoError(t, err)
	return order
}

// advance submits and ships order.
func (f *fixture) advance(t *testing.T, orderID string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.orders.Submit(ctx, services.OrderCommand{Actor: customer, OrderID: orderID})
	require.NoError(t, err)
	_, err = f.orders.Ship(ctx, services.OrderCommand{Actor: admin, OrderID: orderID})
	require.NoError(t, err)
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	product, err := f.productRepo.GetByID(context.Background(), productID)
	require.NoError(t, err)
	return product.Stock
}

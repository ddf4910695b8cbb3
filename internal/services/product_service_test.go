package services_test

import (
	"context"
	"errors"
	"testing"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/models"
	"toko-commerce/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockProductRepository is a testify mock of repositories.ProductRepository.
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	args := m.Called(ctx, id)
	return productOrNil(args.Get(0)), args.Error(1)
}

func (m *MockProductRepository) Create(ctx context.Context, product *models.Product) error {
	return m.Called(ctx, product).Error(0)
}

func (m *MockProductRepository) Update(ctx context.Context, product *models.Product) error {
	return m.Called(ctx, product).Error(0)
}

func (m *MockProductRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockProductRepository) AdjustStock(ctx context.Context, id string, delta int) (*models.Product, error) {
	args := m.Called(ctx, id, delta)
	return productOrNil(args.Get(0)), args.Error(1)
}

func productOrNil(v any) *models.Product {
	if v == nil {
		return nil
	}
	return v.(*models.Product)
}

func newProductService(t *testing.T) (*services.ProductService, *MockProductRepository) {
	t.Helper()
	repo := new(MockProductRepository)
	t.Cleanup(func() { repo.AssertExpectations(t) })
	return services.NewProductService(repo), repo
}

func TestProductService_Reads(t *testing.T) {
	ctx := context.Background()
	service, repo := newProductService(t)

	catalog := []models.Product{
		{ID: "1", Name: "Product A", Price: decimal.NewFromInt(10), Stock: 100},
		{ID: "2", Name: "Product B", Price: decimal.NewFromInt(20), Stock: 50},
	}
	repo.On("GetAll", ctx).Return(catalog, nil).Once()
	repo.On("GetByID", ctx, "1").Return(&catalog[0], nil).Once()
	repo.On("GetByID", ctx, "99").Return(nil, apperrors.NotFound("product", "99")).Once()

	products, err := service.GetAllProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, catalog, products)

	product, err := service.GetProductByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Product A", product.Name)

	product, err = service.GetProductByID(ctx, "99")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Nil(t, product)
}

func TestProductService_Writes(t *testing.T) {
	ctx := context.Background()
	service, repo := newProductService(t)

	created := &models.Product{Name: "New Product", Price: decimal.RequireFromString("49.99"), Stock: 20}
	updated := &models.Product{ID: "1", Name: "Product A Updated", Price: decimal.NewFromInt(12), Stock: 95}
	repo.On("Create", ctx, created).Return(nil).Once()
	repo.On("Create", ctx, created).Return(errors.New("database error")).Once()
	repo.On("Update", ctx, updated).Return(nil).Once()
	repo.On("Delete", ctx, "99").Return(apperrors.NotFound("product", "99")).Once()

	assert.NoError(t, service.CreateProduct(ctx, created))
	assert.EqualError(t, service.CreateProduct(ctx, created), "database error")
	assert.NoError(t, service.UpdateProduct(ctx, updated))
	assert.ErrorIs(t, service.DeleteProduct(ctx, "99"), apperrors.ErrNotFound)
}

func TestProductService_RejectsNegativePrice(t *testing.T) {
	ctx := context.Background()
	service, repo := newProductService(t)
	broken := &models.Product{ID: "1", Name: "Broken", Price: decimal.NewFromInt(-1)}

	assert.ErrorIs(t, service.CreateProduct(ctx, broken), apperrors.ErrValidation)
	assert.ErrorIs(t, service.UpdateProduct(ctx, broken), apperrors.ErrValidation)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestProductService_RestockProduct(t *testing.T) {
	ctx := context.Background()
	service, repo := newProductService(t)
	repo.On("AdjustStock", ctx, "1", 5).Return(&models.Product{ID: "1", Stock: 8}, nil).Once()

	product, err := service.RestockProduct(ctx, "1", 5)
	require.NoError(t, err)
	assert.Equal(t, 8, product.Stock)

	for _, quantity := range []int{0, -3} {
		_, err := service.RestockProduct(ctx, "1", quantity)
		assert.ErrorIs(t, err, apperrors.ErrValidation, "quantity %d", quantity)
	}
}

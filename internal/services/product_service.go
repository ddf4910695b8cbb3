package services

import (
	"context"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/models"
	"toko-commerce/internal/repositories"
)

// ProductService manages the catalog orders are priced from.
type ProductService struct {
	repo repositories.ProductRepository
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ProductRepository) *ProductService {
	return &ProductService{repo: repo}
}

// GetAllProducts lists the catalog.
func (s *ProductService) GetAllProducts(ctx context.Context) ([]models.Product, error) {
	return s.repo.GetAll(ctx)
}

func (s *ProductService) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ProductService) CreateProduct(ctx context.Context, product *models.Product) error {
	if err := checkPrice(product); err != nil {
		return err
	}
	return s.repo.Create(ctx, product)
}

func (s *ProductService) UpdateProduct(ctx context.Context, product *models.Product) error {
	if err := checkPrice(product); err != nil {
		return err
	}
	return s.repo.Update(ctx, product)
}

// RestockProduct records received goods for a product.
func (s *ProductService) RestockProduct(ctx context.Context, id string, quantity int) (*models.Product, error) {
	if quantity <= 0 {
		return nil, apperrors.NewValidation("quantity", "must be greater than zero")
	}
	return s.repo.AdjustStock(ctx, id, quantity)
}

// DeleteProduct removes a product from the catalog. Orders keep the name and
// price they were placed with.
func (s *ProductService) DeleteProduct(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func checkPrice(product *models.Product) error {
	if product.Price.IsNegative() {
		return apperrors.NewValidation("price", "must not be negative")
	}
	return nil
}

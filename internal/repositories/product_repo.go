package repositories

import (
	"context"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/models"
)

// ProductRepository is the catalog checkout prices and reserves from.
type ProductRepository interface {
	GetAll(ctx context.Context) ([]models.Product, error)
	GetByID(ctx context.Context, id string) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id string) error

	// AdjustStock adds delta to the stock of product id in one step and
	// returns the product afterwards. Stock never goes below zero: such a
	// change fails with a conflict and leaves the product untouched.
	AdjustStock(ctx context.Context, id string, delta int) (*models.Product, error)
}

func insufficientStock(product *models.Product, requested int) error {
	return apperrors.Conflict("insufficient stock for product %s (requested: %d, available: %d)",
		product.Name, requested, product.Stock)
}

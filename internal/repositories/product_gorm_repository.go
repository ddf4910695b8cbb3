package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMProductRepository stores the catalog in the products table.
type GORMProductRepository struct {
	db *gorm.DB
}

func NewGORMProductRepository(db *gorm.DB) *GORMProductRepository {
	return &GORMProductRepository{db: db}
}

func (r *GORMProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	var catalog []models.Product
	if err := r.db.WithContext(ctx).Order("name").Find(&catalog).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return catalog, nil
}

func (r *GORMProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperrors.NotFound("product", id)
	case err != nil:
		return nil, fmt.Errorf("failed to load product %s: %w", id, err)
	}
	return &product, nil
}

func (r *GORMProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return fmt.Errorf("failed to create product %s: %w", product.Name, err)
	}
	return nil
}

func (r *GORMProductRepository) Update(ctx context.Context, product *models.Product) error {
	// Select writes zero values too, so stock can drop to 0.
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", product.ID).
		Select("name", "description", "price", "stock", "updated_at").
		Updates(product)
	return affected(res, "update", product.ID)
}

// AdjustStock is a single conditional UPDATE, so concurrent checkouts of the
// same product cannot oversell it.
func (r *GORMProductRepository) AdjustStock(ctx context.Context, id string, delta int) (*models.Product, error) {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND stock + ? >= 0", id, delta).
		UpdateColumns(map[string]any{
			"stock":      gorm.Expr("stock + ?", delta),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to adjust stock of product %s: %w", id, res.Error)
	}
	product, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, insufficientStock(product, -delta)
	}
	return product, nil
}

func (r *GORMProductRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Product{}, "id = ?", id)
	return affected(res, "delete", id)
}

func affected(res *gorm.DB, action, id string) error {
	if res.Error != nil {
		return fmt.Errorf("failed to %s product %s: %w", action, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("product", id)
	}
	return nil
}

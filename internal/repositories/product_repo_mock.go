package repositories

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/models"

	"github.com/google/uuid"
)

// MockProductRepository keeps the catalog in memory.
type MockProductRepository struct {
	mu       sync.RWMutex
	products map[string]models.Product
}

func NewMockProductRepository() *MockProductRepository {
	return &MockProductRepository{products: make(map[string]models.Product)}
}

// GetAll returns the catalog ordered by name.
func (r *MockProductRepository) GetAll(_ context.Context) ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	catalog := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		catalog = append(catalog, p)
	}
	slices.SortFunc(catalog, func(a, b models.Product) int { return strings.Compare(a.Name, b.Name) })
	return catalog, nil
}

func (r *MockProductRepository) GetByID(_ context.Context, id string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.products[id]; ok {
		return &p, nil
	}
	return nil, apperrors.NotFound("product", id)
}

func (r *MockProductRepository) Create(_ context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	product.CreatedAt, product.UpdatedAt = now, now

	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[product.ID] = *product
	return nil
}

func (r *MockProductRepository) Update(_ context.Context, product *models.Product) error {
	return r.modify(product.ID, func(stored *models.Product) error {
		product.CreatedAt = stored.CreatedAt
		product.UpdatedAt = time.Now().UTC()
		*stored = *product
		return nil
	})
}

func (r *MockProductRepository) AdjustStock(_ context.Context, id string, delta int) (*models.Product, error) {
	var adjusted models.Product
	err := r.modify(id, func(stored *models.Product) error {
		if stored.Stock+delta < 0 {
			return insufficientStock(stored, -delta)
		}
		stored.Stock += delta
		stored.UpdatedAt = time.Now().UTC()
		adjusted = *stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &adjusted, nil
}

func (r *MockProductRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[id]; !ok {
		return apperrors.NotFound("product", id)
	}
	delete(r.products, id)
	return nil
}

// modify applies fn to a copy of the stored product and keeps the copy only
// when fn succeeds.
func (r *MockProductRepository) modify(id string, fn func(*models.Product) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.products[id]
	if !ok {
		return apperrors.NotFound("product", id)
	}
	if err := fn(&stored); err != nil {
		return err
	}
	r.products[id] = stored
	return nil
}

func (r *MockProductRepository) snapshot() map[string]models.Product {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]models.Product, len(r.products))
	for k, v := range r.products {
		out[k] = v
	}
	return out
}

func (r *MockProductRepository) restore(products map[string]models.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products = products
}

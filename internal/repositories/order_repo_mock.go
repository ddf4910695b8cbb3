package repositories

import (
	"context"
	"sort"
	"sync"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/models"

	"github.com/google/uuid"
)

// MockOrderRepository is an in-memory implementation of OrderRepository.
type MockOrderRepository struct {
	orders map[string]models.Order
	mu     sync.RWMutex
}

// NewMockOrderRepository creates a new instance of MockOrderRepository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]models.Order),
	}
}

// GetAll returns orders matching the filter, newest first.
func (r *MockOrderRepository) GetAll(_ context.Context, filter OrderFilter) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orderList := make([]models.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if order.IsDeleted && !filter.IncludeDeleted {
			continue
		}
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		orderList = append(orderList, *order.Clone())
	}
	sort.Slice(orderList, func(i, j int) bool { return orderList[i].CreatedAt.After(orderList[j].CreatedAt) })
	return orderList, nil
}

// GetByID returns a live order by its ID.
func (r *MockOrderRepository) GetByID(_ context.Context, id string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok || order.IsDeleted {
		return nil, apperrors.NotFound("order", id)
	}
	return order.Clone(), nil
}

// GetByIDUnscoped returns an order by its ID, soft-deleted or not.
func (r *MockOrderRepository) GetByIDUnscoped(_ context.Context, id string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, apperrors.NotFound("order", id)
	}
	return order.Clone(), nil
}

// Create adds a new order.
func (r *MockOrderRepository) Create(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if _, exists := r.orders[order.ID]; exists {
		return apperrors.Conflict("order %s already exists", order.ID)
	}
	r.orders[order.ID] = *order.Clone()
	return nil
}

// Update replaces a stored order.
func (r *MockOrderRepository) Update(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; !ok {
		return apperrors.NotFound("order", order.ID)
	}
	r.orders[order.ID] = *order.Clone()
	return nil
}

func (r *MockOrderRepository) snapshot() map[string]models.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]models.Order, len(r.orders))
	for k, v := range r.orders {
		out[k] = v
	}
	return out
}

func (r *MockOrderRepository) restore(orders map[string]models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = orders
}

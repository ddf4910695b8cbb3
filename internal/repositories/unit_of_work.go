package repositories

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// Store groups the repositories that take part in one unit of work.
type Store struct {
	Orders   OrderRepository
	Payments PaymentRepository
	Products ProductRepository
}

// UnitOfWork runs fn inside a transaction: everything fn writes through the
// given Store is committed together, or rolled back when fn returns an error.
type UnitOfWork interface {
	Execute(ctx context.Context, fn func(store Store) error) error
}

// GORMUnitOfWork is a UnitOfWork backed by a database transaction.
type GORMUnitOfWork struct {
	db *gorm.DB
}

// NewGORMUnitOfWork creates a new GORMUnitOfWork.
func NewGORMUnitOfWork(db *gorm.DB) *GORMUnitOfWork {
	return &GORMUnitOfWork{db: db}
}

// BeginTransaction opens a transaction bound to ctx.
func (u *GORMUnitOfWork) BeginTransaction(ctx context.Context) (*gorm.DB, error) {
	tx := u.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	return tx, nil
}

// CommitTransaction commits tx.
func (u *GORMUnitOfWork) CommitTransaction(tx *gorm.DB) error {
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction aborts tx.
func (u *GORMUnitOfWork) RollbackTransaction(tx *gorm.DB) error {
	if err := tx.Rollback().Error; err != nil {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// Execute implements UnitOfWork.
func (u *GORMUnitOfWork) Execute(ctx context.Context, fn func(store Store) error) (err error) {
	tx, err := u.BeginTransaction(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = u.RollbackTransaction(tx)
			panic(p)
		}
	}()

	store := Store{
		Orders:   NewGORMOrderRepository(tx),
		Payments: NewGORMPaymentRepository(tx),
		Products: NewGORMProductRepository(tx),
	}
	if err := fn(store); err != nil {
		if rbErr := u.RollbackTransaction(tx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return u.CommitTransaction(tx)
}

// MemoryUnitOfWork serialises units of work over the in-memory repositories and
// restores their previous contents when a unit fails.
type MemoryUnitOfWork struct {
	mu       sync.Mutex
	orders   *MockOrderRepository
	payments *MockPaymentRepository
	products *MockProductRepository
}

// NewMemoryUnitOfWork creates a MemoryUnitOfWork over the given repositories.
func NewMemoryUnitOfWork(orders *MockOrderRepository, payments *MockPaymentRepository, products *MockProductRepository) *MemoryUnitOfWork {
	return &MemoryUnitOfWork{orders: orders, payments: payments, products: products}
}

// Execute implements UnitOfWork.
func (u *MemoryUnitOfWork) Execute(_ context.Context, fn func(store Store) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	orders, payments, products := u.orders.snapshot(), u.payments.snapshot(), u.products.snapshot()
	rollback := func() {
		u.orders.restore(orders)
		u.payments.restore(payments)
		u.products.restore(products)
	}
	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err := fn(Store{Orders: u.orders, Payments: u.payments, Products: u.products}); err != nil {
		rollback()
		return err
	}
	return nil
}

//go:build integration

package repositories_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/database"
	"toko-commerce/internal/models"
	"toko-commerce/internal/repositories"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupPostgresContainer(t *testing.T) (*gorm.DB, func()) {
	ctx := context.Background()

	pgContainer, err := tcpostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcpostgres.WithDatabase("toko_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	cleanup := func() {
		_ = database.Close(db)
		_ = pgContainer.Terminate(ctx)
	}
	return db, cleanup
}

func TestPostgres_OrderAndPaymentInOneUnitOfWork(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db, cleanup := setupPostgresContainer(t)
	defer cleanup()

	ctx := context.Background()
	uow := repositories.NewGORMUnitOfWork(db)
	order := newOrder(t, "user-1")

	require.NoError(t, uow.Execute(ctx, func(store repositories.Store) error {
		if err := store.Orders.Create(ctx, order); err != nil {
			return err
		}
		payment, err := models.NewPayment(order, models.ProviderMonetbil, "user-1")
		if err != nil {
			return err
		}
		return store.Payments.Create(ctx, payment)
	}))

	payment, err := repositories.NewGORMPaymentRepository(db).GetByOrderID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(payment.Amount))

	// A second payment for the same order violates the unique index.
	dup, err := models.NewPayment(order, models.ProviderStripe, "user-1")
	require.NoError(t, err)
	assert.Error(t, repositories.NewGORMPaymentRepository(db).Create(ctx, dup))
}

func TestPostgres_SoftDeletedOrderIsHidden(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db, cleanup := setupPostgresContainer(t)
	defer cleanup()

	ctx := context.Background()
	repo := repositories.NewGORMOrderRepository(db)
	order := newOrder(t, "user-1")
	require.NoError(t, repo.Create(ctx, order))

	order.SetDeleted("admin")
	require.NoError(t, repo.Update(ctx, order))

	_, err := repo.GetByID(ctx, order.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPostgres_ConcurrentReservationsNeverOversell(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db, cleanup := setupPostgresContainer(t)
	defer cleanup()

	ctx := context.Background()
	repo := repositories.NewGORMProductRepository(db)
	product := &models.Product{Name: "Limited", Price: decimal.NewFromInt(50), Stock: 5}
	require.NoError(t, repo.Create(ctx, product))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.AdjustStock(ctx, product.ID, -1); err == nil {
				mu.Lock()
				reserved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, reserved)
	stored, err := repo.GetByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Stock)
}

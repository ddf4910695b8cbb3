package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/config"
	"toko-commerce/internal/database"
	"toko-commerce/internal/events"
	"toko-commerce/internal/gateway"
	"toko-commerce/internal/handlers"
	"toko-commerce/internal/metrics"
	"toko-commerce/internal/middleware"
	"toko-commerce/internal/models"
	"toko-commerce/internal/notification"
	"toko-commerce/internal/pipeline"
	"toko-commerce/internal/repositories"
	"toko-commerce/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	app         *fiber.App
	authService *services.AuthService
	hub         *notification.Hub
	products    []models.Product
}

// setupApp wires every handler against an in-memory SQLite database.
func setupApp(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	orderRepo := repositories.NewGORMOrderRepository(db)
	paymentRepo := repositories.NewGORMPaymentRepository(db)
	productRepo := repositories.NewGORMProductRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)
	uow := repositories.NewGORMUnitOfWork(db)

	m := metrics.New()
	hub := notification.NewHub(notification.WithLogger(logger))
	emitter := events.NewEmitter(events.NewLocalPublisher(logger, hub.HandleEvent), logger, m)
	registry := gateway.NewRegistry(gateway.NewCashOnDelivery(), gateway.NewSandbox(models.ProviderStripe, "http://sandbox"))
	p := pipeline.New(pipeline.WithLogger(logger), pipeline.WithMetrics(m))

	authService := services.NewAuthService(userRepo, "test_jwt_secret", logger)
	productService := services.NewProductService(productRepo)
	orderService := services.NewOrderService(uow, orderRepo, paymentRepo, emitter, m, p, true)
	paymentService := services.NewPaymentService(uow, paymentRepo, registry, emitter, m, p, logger, true)
	require.NoError(t, authService.EnsureAdmin(context.Background(), "admin", "admin@example.com", "admin-password"))

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler(logger)})
	app.Use(middleware.Observe(logger, m))

	apiV1 := app.Group("/api/v1")
	handlers.NewAuthHandler(authService, p.Validator(), logger).RegisterRoutes(apiV1)
	paymentHandler := handlers.NewPaymentHandler(paymentService, "", logger)
	paymentHandler.RegisterCallbackRoutes(apiV1)

	protectedRoutes := apiV1.Group("", middleware.AuthRequired(authService))
	handlers.NewProductHandler(productService, p.Validator()).RegisterRoutes(protectedRoutes)
	handlers.NewOrderHandler(orderService).RegisterRoutes(protectedRoutes)
	paymentHandler.RegisterRoutes(protectedRoutes)
	handlers.NewNotificationHandler(hub, time.Hour, logger).RegisterRoutes(protectedRoutes)

	srv := &testServer{app: app, authService: authService, hub: hub}
	srv.products = seedProductsForTest(t, productRepo)
	return srv
}

// seedProductsForTest populates the product repository for tests.
func seedProductsForTest(t *testing.T, repo repositories.ProductRepository) []models.Product {
	t.Helper()
	products := []models.Product{
		{Name: "Test Laptop", Description: "For testing purposes", Price: decimal.NewFromInt(1000), Stock: 5},
		{Name: "Test Monitor", Description: "Another test item", Price: decimal.NewFromInt(200), Stock: 10},
	}
	for i := range products {
		require.NoError(t, repo.Create(context.Background(), &products[i]))
	}
	return products
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// register creates a customer and returns its id and a token.
func (s *testServer) register(t *testing.T, username string) (string, string) {
	t.Helper()
	var created struct {
		User models.User `json:"user"`
	}
	status := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	return created.User.ID, s.login(t, username, "password123")
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	var resp map[string]string
	status := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	require.Equal(t, http.StatusOK, status)
	return resp["token"]
}

func (s *testServer) checkout(t *testing.T, token string, quantity int) map[string]any {
	t.Helper()
	var order map[string]any
	status := s.do(t, http.MethodPost, "/api/v1/orders", token, map[string]any{
		"items": []map[string]any{{"product_id": s.products[1].ID, "quantity": quantity}},
	}, &order)
	require.Equal(t, http.StatusCreated, status)
	return order
}

func TestAuthRegisterAndLogin(t *testing.T) {
	srv := setupApp(t)

	userToRegister := map[string]string{
		"username": "testuser",
		"email":    "test@example.com",
		"password": "password123",
		"role":     "admin",
	}
	var registerResp map[string]any
	assert.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/api/v1/auth/register", "", userToRegister, &registerResp))
	assert.Equal(t, "User registered successfully", registerResp["message"])
	user := registerResp["user"].(map[string]any)
	assert.Equal(t, "customer", user["role"], "self-registration never grants admin")
	assert.NotContains(t, user, "password")

	// Duplicate registration (username)
	var problem handlers.ProblemDetail
	assert.Equal(t, http.StatusConflict, srv.do(t, http.MethodPost, "/api/v1/auth/register", "", userToRegister, &problem))
	assert.Equal(t, handlers.TypeConflict, problem.Type)

	token := srv.login(t, "testuser", "password123")
	claims, err := srv.authService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "testuser", claims["username"])
	assert.Equal(t, "customer", claims["role"])
	assert.Contains(t, claims, "user_id")

	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "testuser",
		"password": "wrong-password",
	}, &problem))
	assert.Equal(t, handlers.TypeUnauthorized, problem.Type)

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "x",
		"email":    "not-an-email",
		"password": "123",
	}, &problem))
	assert.Contains(t, problem.Errors, "email")
	assert.Contains(t, problem.Errors, "password")
}

func TestProductEndpoints(t *testing.T) {
	srv := setupApp(t)
	admin := srv.login(t, "admin", "admin-password")
	_, customer := srv.register(t, "shopper")

	var products []models.Product
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/api/v1/products", customer, nil, &products))
	assert.Len(t, products, 2)

	newProduct := map[string]any{
		"name":        "Smartphone",
		"description": "Latest model smartphone",
		"price":       "799.99",
		"stock":       50,
	}
	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodPost, "/api/v1/products", customer, newProduct, nil))

	var created models.Product
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/api/v1/products", admin, newProduct, &created))
	assert.NotEmpty(t, created.ID)
	assert.True(t, decimal.RequireFromString("799.99").Equal(created.Price))

	var fetched models.Product
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/api/v1/products/"+created.ID, customer, nil, &fetched))
	assert.Equal(t, "Smartphone", fetched.Name)

	newProduct["name"] = "Smartphone Pro"
	newProduct["stock"] = 0
	var updated models.Product
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodPut, "/api/v1/products/"+created.ID, admin, newProduct, &updated))
	assert.Equal(t, "Smartphone Pro", updated.Name)

	newProduct["price"] = "-1"
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPut, "/api/v1/products/"+created.ID, admin, newProduct, nil))

	restock := map[string]int{"quantity": 4}
	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodPost, "/api/v1/products/"+created.ID+"/restock", customer, restock, nil))
	var restocked models.Product
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/v1/products/"+created.ID+"/restock", admin, restock, &restocked))
	assert.Equal(t, 4, restocked.Stock)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/api/v1/products/"+created.ID+"/restock", admin,
		map[string]int{"quantity": 0}, nil))

	assert.Equal(t, http.StatusNoContent, srv.do(t, http.MethodDelete, "/api/v1/products/"+created.ID, admin, nil, nil))
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/api/v1/products/"+created.ID, customer, nil, nil))
}

func TestProductEndpointsWithoutAuth(t *testing.T) {
	srv := setupApp(t)

	var problem handlers.ProblemDetail
	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/api/v1/products", "", nil, &problem))
	assert.Equal(t, handlers.TypeUnauthorized, problem.Type)
	assert.Equal(t, "/api/v1/products", problem.Instance)

	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/api/v1/products", "not-a-token", nil, nil))
}

func TestCheckoutErrors(t *testing.T) {
	srv := setupApp(t)
	_, token := srv.register(t, "buyer")

	var problem handlers.ProblemDetail
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/api/v1/orders", token, map[string]any{
		"items": []map[string]any{},
	}, &problem))
	assert.Equal(t, handlers.TypeValidation, problem.Type)

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/api/v1/orders", token, map[string]any{
		"items": []map[string]any{{"product_id": "missing", "quantity": 1}},
	}, &problem))
	assert.Contains(t, problem.Errors, "items[0].product_id")

	assert.Equal(t, http.StatusConflict, srv.do(t, http.MethodPost, "/api/v1/orders", token, map[string]any{
		"items": []map[string]any{{"product_id": srv.products[0].ID, "quantity": 6}},
	}, &problem))
	assert.Equal(t, handlers.TypeConflict, problem.Type)

	// Nothing was reserved by the failed checkouts.
	var product models.Product
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/api/v1/products/"+srv.products[0].ID, token, nil, &product))
	assert.Equal(t, 5, product.Stock)
}

func TestOrderLifecycleWithCashOnDelivery(t *testing.T) {
	srv := setupApp(t)
	admin := srv.login(t, "admin", "admin-password")
	_, token := srv.register(t, "buyer")
	_, stranger := srv.register(t, "stranger")

	order := srv.checkout(t, token, 2)
	orderID := order["id"].(string)
	assert.Equal(t, "400.00", order["total_amount"])

	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/api/v1/orders/"+orderID, stranger, nil, nil))

	var list []map[string]any
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/api/v1/orders", stranger, nil, &list))
	assert.Empty(t, list)

	var payment map[string]any
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/api/v1/payments", token, map[string]string{
		"order_id": orderID,
		"provider": "cash_on_delivery",
	}, &payment))
	paymentID := payment["id"].(string)
	assert.Equal(t, "pending", payment["status"])

	assert.Equal(t, http.StatusConflict, srv.do(t, http.MethodPost, "/api/v1/payments", token, map[string]string{
		"order_id": orderID,
		"provider": "cash_on_delivery",
	}, nil))

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/submit", token, nil, nil))

	var problem handlers.ProblemDetail
	assert.Equal(t, http.StatusConflict, srv.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/submit", token, nil, &problem))
	assert.Equal(t, handlers.TypeInvalidTransition, problem.Type)

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/ship", admin, nil, nil))
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/deliver", admin, nil, &order))
	assert.Equal(t, "delivered", order["status"])

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/api/v1/payments/"+paymentID, token, nil, &payment))
	assert.Equal(t, "completed", payment["status"])

	assert.Equal(t, http.StatusConflict, srv.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", token,
		map[string]string{"reason": "too late"}, nil))
}

func TestCancelRestocksAndCancelsPayment(t *testing.T) {
	srv := setupApp(t)
	_, token := srv.register(t, "buyer")

	orderID := srv.checkout(t, token, 3)["id"].(string)

	var payment map[string]any
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/api/v1/payments", token, map[string]string{
		"order_id": orderID,
		"provider": "stripe",
	}, &payment))

	var problem handlers.ProblemDetail
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", token, nil, &problem))
	assert.Contains(t, problem.Errors, "reason")

	var order map[string]any
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", token,
		map[string]string{"reason": "changed my mind"}, &order))
	assert.Equal(t, "cancelled", order["status"])
	assert.Equal(t, "changed my mind", order["cancel_reason"])

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/api/v1/payments/order/"+orderID, token, nil, &payment))
	assert.Equal(t, "cancelled", payment["status"])

	var product models.Product
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/api/v1/products/"+srv.products[1].ID, token, nil, &product))
	assert.Equal(t, 10, product.Stock)

	assert.Equal(t, http.StatusNoContent, srv.do(t, http.MethodDelete, "/api/v1/orders/"+orderID, token, nil, nil))
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/api/v1/orders/"+orderID, token, nil, nil))
}

func TestNotificationStream(t *testing.T) {
	srv := setupApp(t)
	userID, token := srv.register(t, "listener")

	type result struct {
		body string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/stream", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := srv.app.Test(req, -1)
		if err != nil {
			done <- result{err: err}
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		done <- result{body: string(body), err: err}
	}()

	require.Eventually(t, func() bool { return srv.hub.Count(userID) == 1 }, 2*time.Second, 10*time.Millisecond)
	orderID := srv.checkout(t, token, 1)["id"].(string)
	srv.hub.Close()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Contains(t, res.body, ": connected ")
		assert.Contains(t, res.body, "event: "+models.EventOrderCreated)
		assert.Contains(t, res.body, orderID)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after the hub closed")
	}
	assert.Zero(t, srv.hub.Count(userID))
}

func TestProblemFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		typ    string
	}{
		{fiber.NewError(fiber.StatusForbidden, "no"), http.StatusForbidden, handlers.TypeForbidden},
		{apperrors.NewValidation("name", "is required"), http.StatusBadRequest, handlers.TypeValidation},
		{apperrors.NotFound("order", "o-1"), http.StatusNotFound, handlers.TypeNotFound},
		{&apperrors.TransitionError{Entity: "order", ID: "o-1", From: "shipped", Action: "cancel"}, http.StatusConflict, handlers.TypeInvalidTransition},
		{apperrors.Conflict("stock exhausted"), http.StatusConflict, handlers.TypeConflict},
		{services.ErrInvalidCredentials, http.StatusUnauthorized, handlers.TypeUnauthorized},
		{fmt.Errorf("%w: provider down", gateway.ErrGateway), http.StatusBadGateway, handlers.TypeBadGateway},
		{errors.New("disk on fire"), http.StatusInternalServerError, handlers.TypeInternal},
	}
	for _, tc := range cases {
		problem := handlers.ProblemFor(tc.err)
		assert.Equal(t, tc.status, problem.Status, tc.err.Error())
		assert.Equal(t, tc.typ, problem.Type, tc.err.Error())
	}

	forbidden := handlers.ProblemFor(fiber.NewError(fiber.StatusForbidden, "no"))
	assert.Equal(t, "Forbidden", forbidden.Title)
	assert.Equal(t, "Error", handlers.ProblemFor(fiber.NewError(599, "odd")).Title)

	internal := handlers.ProblemFor(errors.New("secret dsn leaked"))
	assert.Empty(t, internal.Detail)

	validation := handlers.ProblemFor(apperrors.NewValidation("name", "is required"))
	assert.Equal(t, map[string]string{"name": "is required"}, validation.Errors)
}

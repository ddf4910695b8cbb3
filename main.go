package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"toko-commerce/internal/config"
	"toko-commerce/internal/database"
	"toko-commerce/internal/events"
	"toko-commerce/internal/gateway"
	"toko-commerce/internal/handlers"
	"toko-commerce/internal/logger"
	"toko-commerce/internal/metrics"
	"toko-commerce/internal/middleware"
	"toko-commerce/internal/models"
	"toko-commerce/internal/notification"
	"toko-commerce/internal/pipeline"
	"toko-commerce/internal/repositories"
	"toko-commerce/internal/services"
	"toko-commerce/internal/tracing"
	"toko-commerce/pkg/kafka"
	"toko-commerce/pkg/rabbitmq"
)

const serviceName = "toko-commerce"

// App is the wired service: the HTTP server plus everything it owns.
type App struct {
	Fiber *fiber.App

	cfg       *config.Config
	logger    *zap.Logger
	hub       *notification.Hub
	sandboxes map[models.PaymentProvider]*gateway.Sandbox

	// closers run in reverse order on shutdown.
	closers   []func(context.Context) error
	consumers sync.WaitGroup
	cancel    context.CancelFunc
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	app, err := NewApp(cfg, log)
	if err != nil {
		log.Fatal("failed to initialise application", zap.Error(err))
	}

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("starting server", zap.String("addr", cfg.AppPort), zap.String("env", cfg.Env))
		if err := app.Fiber.Listen(cfg.AppPort); err != nil {
			log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	<-quit
	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
	}
	log.Info("server gracefully stopped")
}

// NewApp wires storage, brokers, gateways, services and routes from cfg.
func NewApp(cfg *config.Config, log *zap.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		cfg:       cfg,
		logger:    log,
		sandboxes: make(map[models.PaymentProvider]*gateway.Sandbox),
		cancel:    cancel,
	}
	if err := a.wire(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	shutdownTracing, err := tracing.Init(ctx, serviceName, cfg.Env, cfg.Tracing.Exporter, os.Stdout)
	if err != nil {
		return err
	}
	a.onClose(shutdownTracing)

	m := metrics.New()
	a.hub = notification.NewHub(notification.WithGauge(m.StreamConnections), notification.WithLogger(log))

	// --- Storage ---
	var (
		uow         repositories.UnitOfWork
		orderRepo   repositories.OrderRepository
		paymentRepo repositories.PaymentRepository
		productRepo repositories.ProductRepository
		userRepo    repositories.UserRepository
	)
	if cfg.Database.Driver == "memory" {
		orders := repositories.NewMockOrderRepository()
		payments := repositories.NewMockPaymentRepository()
		products := repositories.NewMockProductRepository()
		uow = repositories.NewMemoryUnitOfWork(orders, payments, products)
		orderRepo, paymentRepo, productRepo = orders, payments, products
		userRepo = repositories.NewMockUserRepository()
	} else {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return err
		}
		a.onClose(func(context.Context) error { return database.Close(db) })
		if err := database.Migrate(db); err != nil {
			return err
		}
		uow, orderRepo, paymentRepo, productRepo, userRepo = gormStorage(db)
	}

	// --- Events ---
	publisher, err := a.publisher(ctx)
	if err != nil {
		return err
	}
	emitter := events.NewEmitter(publisher, log, m)

	// --- Gateways ---
	registry, err := a.gateways()
	if err != nil {
		return err
	}

	// --- Services ---
	p := pipeline.New(pipeline.WithLogger(log), pipeline.WithMetrics(m))
	authService := services.NewAuthService(userRepo, cfg.JWTSecret, log)
	productService := services.NewProductService(productRepo)
	orderService := services.NewOrderService(uow, orderRepo, paymentRepo, emitter, m, p, cfg.PaymentConsistencyEnforced)
	paymentService := services.NewPaymentService(uow, paymentRepo, registry, emitter, m, p, log, cfg.PaymentConsistencyEnforced)

	if cfg.Admin.Username != "" {
		if err := authService.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			return fmt.Errorf("failed to create admin account: %w", err)
		}
	}
	if cfg.SeedCatalog {
		if err := seedProducts(ctx, productRepo, log); err != nil {
			return err
		}
	}

	// --- HTTP ---
	app := fiber.New(fiber.Config{
		AppName:      serviceName,
		ErrorHandler: handlers.ErrorHandler(log),
	})
	app.Use(requestid.New())
	app.Use(middleware.Observe(log, m))
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "healthy",
			"time":      time.Now().Format(time.RFC3339),
			"storage":   cfg.Database.Driver,
			"broker":    cfg.Broker.Driver,
			"env":       cfg.Env,
			"providers": registry.Providers(),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	// Stand-in checkout pages for providers without a configured URL.
	if len(a.sandboxes) > 0 {
		handlers.NewSandboxHandler(a.sandboxes, paymentService, log).RegisterRoutes(app)
	}

	apiV1 := app.Group("/api/v1")

	// Public routes
	handlers.NewAuthHandler(authService, p.Validator(), log).RegisterRoutes(apiV1)
	paymentHandler := handlers.NewPaymentHandler(paymentService, cfg.Gateway.CallbackToken, log)
	paymentHandler.RegisterCallbackRoutes(apiV1)

	// Protected routes (require JWT authentication)
	protected := apiV1.Group("", middleware.AuthRequired(authService))
	handlers.NewProductHandler(productService, p.Validator()).RegisterRoutes(protected)
	handlers.NewOrderHandler(orderService).RegisterRoutes(protected)
	paymentHandler.RegisterRoutes(protected)
	handlers.NewNotificationHandler(a.hub, 0, log).RegisterRoutes(protected)

	a.Fiber = app
	return nil
}

func gormStorage(db *gorm.DB) (repositories.UnitOfWork, repositories.OrderRepository, repositories.PaymentRepository, repositories.ProductRepository, repositories.UserRepository) {
	return repositories.NewGORMUnitOfWork(db),
		repositories.NewGORMOrderRepository(db),
		repositories.NewGORMPaymentRepository(db),
		repositories.NewGORMProductRepository(db),
		repositories.NewGORMUserRepository(db)
}

// publisher selects the event transport. With a broker the notification hub
// is fed by a consumer of the same stream, otherwise events go to it directly.
// Every instance consumes on its own queue or group so each hub sees every
// event.
func (a *App) publisher(ctx context.Context) (events.Publisher, error) {
	cfg, log := a.cfg.Broker, a.logger
	switch cfg.Driver {
	case "rabbitmq":
		client, err := rabbitmq.NewClient(rabbitmq.Config{
			URL:       cfg.RabbitMQURL,
			Exchange:  cfg.Exchange,
			Queue:     cfg.NotificationQueue(),
			Exclusive: true,
		}, log)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return client.Close() })
		a.consume("rabbitmq", func() error { return events.ConsumeRabbitMQ(ctx, client, a.hub.HandleEvent) })
		return events.NewRabbitMQPublisher(client), nil

	case "kafka":
		client := kafka.NewClient(cfg.KafkaBrokers)
		writer, err := client.NewWriter(cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		publisher := events.NewKafkaPublisher(writer)
		a.onClose(func(context.Context) error { return publisher.Close() })

		reader, err := client.NewReader(cfg.KafkaTopic, cfg.NotificationGroup())
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return reader.Close() })
		a.consume("kafka", func() error { return events.ConsumeKafka(ctx, reader, a.hub.HandleEvent, log) })
		return publisher, nil

	default:
		return events.NewLocalPublisher(log, a.hub.HandleEvent), nil
	}
}

// gateways registers an HTTP gateway for every provider with a configured URL
// and a sandbox for the others.
func (a *App) gateways() (*gateway.Registry, error) {
	cfg := a.cfg.Gateway
	registry := gateway.NewRegistry(gateway.NewCashOnDelivery())
	urls := map[models.PaymentProvider]string{
		models.ProviderMonetbil: cfg.MonetbilURL,
		models.ProviderStripe:   cfg.StripeURL,
		models.ProviderPayPal:   cfg.PayPalURL,
	}
	for provider, url := range urls {
		if url == "" {
			sandbox := gateway.NewSandbox(provider, "http://localhost"+a.cfg.AppPort+"/sandbox")
			a.sandboxes[provider] = sandbox
			registry.Register(sandbox)
			a.logger.Info("payment provider running in sandbox mode", zap.String("provider", string(provider)))
			continue
		}
		g, err := gateway.NewHTTPGateway(provider, url, cfg.APIKey, nil, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		registry.Register(g)
	}
	return registry, nil
}

func (a *App) consume(name string, run func() error) {
	a.consumers.Add(1)
	go func() {
		defer a.consumers.Done()
		a.logger.Info("starting event consumer", zap.String("broker", name))
		if err := run(); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("event consumer stopped", zap.String("broker", name), zap.Error(err))
		}
	}()
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Shutdown tells stream clients and ends their streams, stops the HTTP server
// and consumers, then releases brokers, storage and tracing in reverse order
// of creation. Streams must end first: the server waits for open responses.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		a.hub.Broadcast(notification.Notification{
			Type:       "system.shutdown",
			Message:    "Server is shutting down",
			OccurredAt: time.Now().UTC(),
		})
		a.hub.Close()
	}
	if a.Fiber != nil {
		if err := a.Fiber.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("fiber: %w", err))
		}
	}
	a.cancel()
	a.consumers.Wait()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// seedProducts fills an empty catalog with a few products.
func seedProducts(ctx context.Context, repo repositories.ProductRepository, log *zap.Logger) error {
	existing, err := repo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	products := []models.Product{
		{Name: "Laptop", Description: "High performance laptop", Price: decimal.RequireFromString("1200.00"), Stock: 10},
		{Name: "Keyboard", Description: "Mechanical keyboard", Price: decimal.RequireFromString("75.00"), Stock: 25},
		{Name: "Mouse", Description: "Ergonomic wireless mouse", Price: decimal.RequireFromString("25.00"), Stock: 50},
	}
	for i := range products {
		if err := repo.Create(ctx, &products[i]); err != nil {
			return fmt.Errorf("failed to seed product %s: %w", products[i].Name, err)
		}
		log.Info("seeded product", zap.String("name", products[i].Name), zap.String("id", products[i].ID))
	}
	return nil
}

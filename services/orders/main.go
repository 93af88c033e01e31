package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"

	"github.com/shopdemo/checkout-saga/internal/telemetry"
)

// LineItem is one (product, quantity) pair of a checkout request.
type LineItem struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,gt=0"`
}

// CheckoutRequest is the client payload for POST /api/orders/checkout.
// Line items are processed in the order they arrive.
type CheckoutRequest struct {
	UserID         int64      `json:"user_id" binding:"required"`
	Items          []LineItem `json:"items" binding:"required,min=1"`
	Amount         float64    `json:"amount" binding:"required,gt=0"`
	Currency       string     `json:"currency"`
	PaymentMethod  string     `json:"payment_method" binding:"required"`
	IdempotencyKey *string    `json:"idempotency_key,omitempty"`
}

func main() {
	ctx := context.Background()

	tp, err := telemetry.InitTracer(ctx, getEnv("SERVICE_NAME", "orders-service"))
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	mp, err := telemetry.InitMetrics(ctx, getEnv("SERVICE_NAME", "orders-service"))
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down meter: %v", err)
		}
	}()

	dbPool, err := initDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbPool.Close()

	repository := NewOrderRepository(dbPool)
	if err := repository.(*OrderRepository).InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize ledger schema: %v", err)
	}

	clientCfg := DefaultClientConfig()
	inventory := NewHTTPInventoryClient(getEnv("INVENTORY_URL", "http://inventory-service:8008"), clientCfg)
	payments := NewHTTPPaymentClient(getEnv("PAYMENTS_URL", "http://payments-service:8005"), clientCfg)
	notifications := NewHTTPNotificationClient(getEnv("NOTIFICATIONS_URL", "http://notifications-service:8007"))

	tracer := tp.Tracer("orders-service")
	meter := otel.Meter("orders-service")
	useCase := NewCheckoutUseCase(repository, inventory, payments, notifications, tracer, meter)
	handler := NewOrderHandler(useCase, repository, tracer)

	r := gin.Default()
	r.Use(otelgin.Middleware(getEnv("SERVICE_NAME", "orders-service")))

	r.GET("/health", handler.HealthCheck)

	r.POST("/api/orders/checkout", handler.Checkout)
	r.GET("/api/orders/:order_id", handler.GetOrder)
	r.GET("/api/orders/user/:user_id", handler.ListUserOrders)

	port := getEnv("PORT", "8080")
	log.Printf("🚀 Orders Service listening on port %s", port)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func initDB() (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		getEnv("DATABASE_USER", "root"),
		getEnv("DATABASE_PASSWORD", "pass"),
		getEnv("DATABASE_HOST", "localhost"),
		getEnv("DATABASE_PORT", "5432"),
		getEnv("DATABASE_NAME", "orders_db"),
	)

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Wait for database to be ready
	for i := 0; i < 30; i++ {
		if err := pool.Ping(ctx); err == nil {
			log.Println("✅ Connected to orders database with connection pool")
			return pool, nil
		}
		log.Printf("⏳ Waiting for database... (%d/30)", i+1)
		time.Sleep(1 * time.Second)
	}

	pool.Close()
	return nil, fmt.Errorf("failed to connect to database after 30 attempts")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

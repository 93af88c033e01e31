package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/shopdemo/checkout-saga/internal/telemetry"
)

// defaultStock is granted to products never seen by the store, so demo
// checkouts do not fail on unseeded catalog entries. Set
// INVENTORY_DEFAULT_STOCK=0 for strict mode (unknown products out of stock).
const defaultStock = 100

func main() {
	ctx := context.Background()

	tp, err := telemetry.InitTracer(ctx, getEnv("SERVICE_NAME", "inventory-service"))
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	store := NewStore(envInt("INVENTORY_DEFAULT_STOCK", defaultStock))
	// Demo seed matching the documented starting quantities.
	store.Reset(map[int64]int{1: 10, 2: 5, 3: 0})

	allowTestEndpoints := getEnv("ALLOW_TEST_ENDPOINTS", "1") == "1"
	tracer := tp.Tracer("inventory-service")
	handler := NewInventoryHandler(store, tracer, allowTestEndpoints)

	r := gin.Default()
	r.Use(otelgin.Middleware(getEnv("SERVICE_NAME", "inventory-service")))

	r.GET("/health", handler.HealthCheck)

	r.GET("/api/inventory/items/:product_id", handler.GetItem)
	r.POST("/api/inventory/reserve", handler.Reserve)
	r.POST("/api/inventory/release", handler.Release)
	r.POST("/api/inventory/reset", handler.Reset)

	port := getEnv("PORT", "8008")
	log.Printf("🚀 Inventory Service listening on port %s", port)

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

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("ℹ️ Invalid %s=%q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/shopdemo/checkout-saga/internal/telemetry"
)

func main() {
	ctx := context.Background()

	serviceName := getEnv("SERVICE_NAME", "notifications-service")

	tp, err := telemetry.InitTracer(ctx, serviceName)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	handler := NewNotificationHandler(tp.Tracer("notifications-service"))

	r := gin.Default()
	r.Use(otelgin.Middleware(serviceName))

	r.GET("/health", handler.HealthCheck)
	r.POST("/api/notifications/send", handler.Send)

	port := getEnv("PORT", "8007")
	log.Printf("🚀 Notifications Service listening on port %s", port)

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

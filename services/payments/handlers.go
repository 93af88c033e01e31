package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PaymentUseCaseInterface is consumed by the handlers so tests can mock it.
type PaymentUseCaseInterface interface {
	Charge(ctx context.Context, req ChargeRequest) (*Payment, error)
}

// PaymentHandler holds the HTTP handlers of the payments service.
type PaymentHandler struct {
	useCase PaymentUseCaseInterface
	tracer  trace.Tracer
}

// NewPaymentHandler creates a new PaymentHandler instance.
func NewPaymentHandler(useCase PaymentUseCaseInterface, tracer trace.Tracer) *PaymentHandler {
	return &PaymentHandler{
		useCase: useCase,
		tracer:  tracer,
	}
}

// Charge is the endpoint for POST /api/payments/charge. Invalid amounts map
// to 400, declines to 402, success to 200 with the settled payment.
func (h *PaymentHandler) Charge(c *gin.Context) {
	var req ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "charge_payment")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("order_id", req.OrderID),
		attribute.Float64("amount", req.Amount),
		attribute.String("payment_method", req.PaymentMethod),
	)

	payment, err := h.useCase.Charge(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, ErrDeclined):
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error":    err.Error(),
				"order_id": req.OrderID,
				"status":   PaymentStatusDeclined,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process charge"})
		}
		return
	}

	c.JSON(http.StatusOK, payment)
}

// HealthCheck reports service liveness.
func (h *PaymentHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "payments-service",
	})
}

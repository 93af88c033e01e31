package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CheckoutUseCaseInterface defines the interface the handlers depend on.
type CheckoutUseCaseInterface interface {
	Checkout(ctx context.Context, req CheckoutRequest) (*Order, error)
}

// OrderHandler holds the HTTP handlers of the orders service.
type OrderHandler struct {
	useCase    CheckoutUseCaseInterface
	repository Repository
	tracer     trace.Tracer
}

// NewOrderHandler creates a new OrderHandler instance.
func NewOrderHandler(useCase CheckoutUseCaseInterface, repository Repository, tracer trace.Tracer) *OrderHandler {
	return &OrderHandler{
		useCase:    useCase,
		repository: repository,
		tracer:     tracer,
	}
}

func orderOut(order *Order) gin.H {
	return gin.H{
		"order_id":   order.ID,
		"user_id":    order.UserID,
		"status":     order.Status,
		"amount":     order.Amount,
		"currency":   order.Currency,
		"created_at": order.CreatedAt,
	}
}

// Checkout runs the checkout saga for one request. Internal retry and backoff
// detail never leaks to the caller: the response is success, a business
// rejection, or upstream-unavailable — always with the order id when one was
// persisted so the client can poll instead of resubmitting blindly.
func (h *OrderHandler) Checkout(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "checkout")
	defer span.End()

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	span.SetAttributes(
		attribute.Int64("user_id", req.UserID),
		attribute.Int("items", len(req.Items)),
	)

	order, err := h.useCase.Checkout(ctx, req)
	if err != nil {
		span.RecordError(err)
		body := gin.H{"error": err.Error()}
		if order != nil {
			body["order_id"] = order.ID
			body["status"] = order.Status
		}
		switch {
		case errors.Is(err, ErrInsufficientStock):
			c.JSON(http.StatusBadRequest, body)
		case errors.Is(err, ErrPaymentDeclined):
			c.JSON(http.StatusPaymentRequired, body)
		case errors.Is(err, ErrUpstreamUnavailable):
			c.JSON(http.StatusServiceUnavailable, body)
		default:
			c.JSON(http.StatusInternalServerError, body)
		}
		return
	}

	span.SetAttributes(attribute.Int64("order_id", order.ID))
	c.JSON(http.StatusOK, orderOut(order))
}

// GetOrder returns one order by id.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := h.repository.FindByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, orderOut(order))
}

// listUserOrdersLimit caps the history endpoint.
const listUserOrdersLimit = 50

// ListUserOrders returns recent orders for a user, newest first.
func (h *OrderHandler) ListUserOrders(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	orders, err := h.repository.ListByUser(c.Request.Context(), userID, listUserOrdersLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		out = append(out, gin.H{
			"id":         o.ID,
			"status":     o.Status,
			"amount":     o.Amount,
			"currency":   o.Currency,
			"created_at": o.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

// HealthCheck reports service liveness.
func (h *OrderHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "orders-service",
	})
}

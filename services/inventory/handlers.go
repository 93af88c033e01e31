package main

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ReserveRequest is the payload for reserve and release operations.
type ReserveRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity"`
}

// ResetRequest sets absolute quantities per product. JSON object keys arrive
// as strings and are coerced to product ids.
type ResetRequest struct {
	Items map[string]int `json:"items" binding:"required"`
}

// InventoryHandler holds the HTTP handlers of the inventory service.
type InventoryHandler struct {
	store              *Store
	tracer             trace.Tracer
	allowTestEndpoints bool
}

// NewInventoryHandler creates a new InventoryHandler instance.
func NewInventoryHandler(store *Store, tracer trace.Tracer, allowTestEndpoints bool) *InventoryHandler {
	return &InventoryHandler{
		store:              store,
		tracer:             tracer,
		allowTestEndpoints: allowTestEndpoints,
	}
}

// GetItem returns the available quantity, 0 for unknown products.
func (h *InventoryHandler) GetItem(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product_id": productID,
		"quantity":   h.store.Query(productID),
	})
}

// Reserve decrements stock atomically. Insufficient stock and non-positive
// quantities answer reserved=false with no side effects, not an error status.
func (h *InventoryHandler) Reserve(c *gin.Context) {
	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, span := h.tracer.Start(c.Request.Context(), "reserve_stock")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("product_id", req.ProductID),
		attribute.Int("quantity", req.Quantity),
	)

	reserved, remaining := h.store.Reserve(req.ProductID, req.Quantity)
	if !reserved {
		log.Printf("ℹ️ [RESERVE] rejected | ProductID=%d Quantity=%d Available=%d", req.ProductID, req.Quantity, remaining)
		c.JSON(http.StatusOK, gin.H{"reserved": false})
		return
	}

	log.Printf("✅ [RESERVE] ProductID=%d Quantity=%d Remaining=%d", req.ProductID, req.Quantity, remaining)
	c.JSON(http.StatusOK, gin.H{
		"reserved":   true,
		"product_id": req.ProductID,
		"remaining":  remaining,
	})
}

// Release returns previously reserved quantity back to the store.
func (h *InventoryHandler) Release(c *gin.Context) {
	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be > 0"})
		return
	}

	quantity := h.store.Release(req.ProductID, req.Quantity)
	log.Printf("↩️ [RELEASE] ProductID=%d Quantity=%d Now=%d", req.ProductID, req.Quantity, quantity)
	c.JSON(http.StatusOK, gin.H{
		"released":   true,
		"product_id": req.ProductID,
		"quantity":   quantity,
	})
}

// Reset is a test-only endpoint that pins absolute quantities. Disabled via
// the ALLOW_TEST_ENDPOINTS flag in CI and production.
func (h *InventoryHandler) Reset(c *gin.Context) {
	if !h.allowTestEndpoints {
		c.JSON(http.StatusForbidden, gin.H{"error": "test endpoints disabled"})
		return
	}

	var req ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items := make(map[int64]int, len(req.Items))
	for rawID, quantity := range req.Items {
		productID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id: " + rawID})
			return
		}
		if quantity < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be >= 0"})
			return
		}
		items[productID] = quantity
	}

	h.store.Reset(items)
	log.Printf("ℹ️ [RESET] %d products pinned", len(items))
	c.JSON(http.StatusOK, gin.H{"ok": true, "inventory": h.store.Snapshot()})
}

// HealthCheck reports service liveness.
func (h *InventoryHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "inventory-service",
	})
}

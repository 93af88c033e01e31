package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SendRequest is the payload for a notification delivery.
type SendRequest struct {
	To       string         `json:"to" binding:"required"`
	Channel  string         `json:"channel"`
	Template string         `json:"template" binding:"required"`
	Ctx      map[string]any `json:"ctx,omitempty"`
}

// NotificationHandler holds the HTTP handlers of the notification sink. The
// sink only logs deliveries; there is no outbound provider behind it.
type NotificationHandler struct {
	tracer trace.Tracer
}

// NewNotificationHandler creates a new NotificationHandler instance.
func NewNotificationHandler(tracer trace.Tracer) *NotificationHandler {
	return &NotificationHandler{tracer: tracer}
}

// Send accepts a notification and echoes it back. Delivery always succeeds;
// callers treat this endpoint as fire-and-forget.
func (h *NotificationHandler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Channel == "" {
		req.Channel = "email"
	}

	_, span := h.tracer.Start(c.Request.Context(), "send_notification")
	defer span.End()
	span.SetAttributes(
		attribute.String("channel", req.Channel),
		attribute.String("template", req.Template),
	)

	log.Printf("📧 [NOTIFY] To=%s Channel=%s Template=%s", req.To, req.Channel, req.Template)
	c.JSON(http.StatusOK, gin.H{
		"to":       req.To,
		"channel":  req.Channel,
		"template": req.Template,
		"sent_at":  time.Now().UTC(),
	})
}

// HealthCheck reports service liveness.
func (h *NotificationHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "notifications-service",
	})
}

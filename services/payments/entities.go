package main

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus values reported to callers.
const (
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusDeclined  = "declined"
)

// declineMethod is the deterministic decline sentinel: any charge carrying it
// is rejected, which lets end-to-end runs exercise the compensation path.
const declineMethod = "fail"

// ChargeRequest is the payload for a charge attempt.
type ChargeRequest struct {
	OrderID        int64   `json:"order_id" binding:"required"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	PaymentMethod  string  `json:"payment_method" binding:"required"`
	IdempotencyKey *string `json:"idempotency_key,omitempty"`
}

// Payment represents a processed charge.
type Payment struct {
	PaymentID   string    `json:"payment_id"`
	OrderID     int64     `json:"order_id"`
	Status      string    `json:"status"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	ProcessedAt time.Time `json:"processed_at"`
}

// NewPayment creates a new Payment instance for a succeeded charge.
func NewPayment(req ChargeRequest) *Payment {
	return &Payment{
		PaymentID:   uuid.NewString(),
		OrderID:     req.OrderID,
		Status:      PaymentStatusSucceeded,
		Amount:      req.Amount,
		Currency:    req.Currency,
		ProcessedAt: time.Now().UTC(),
	}
}

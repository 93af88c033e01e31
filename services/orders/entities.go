package main

import (
	"errors"
	"time"
)

// OrderStatus lifecycle: an order is created as "pending" and moves to
// exactly one terminal status, "paid" or "failed". Terminal statuses never
// change again.
const (
	OrderStatusPending = "pending"
	OrderStatusPaid    = "paid"
	OrderStatusFailed  = "failed"
)

// Saga phase markers persisted alongside the order status so a stuck order
// can be diagnosed (created -> reserved -> charged -> finalized).
const (
	PhaseCreated   = "created"
	PhaseReserved  = "reserved"
	PhaseCharged   = "charged"
	PhaseFinalized = "finalized"
)

// ErrTerminalStatus signals an attempt to move an order out of a terminal status.
var ErrTerminalStatus = errors.New("order already in terminal status")

// Order is the durable ledger row for a checkout attempt.
type Order struct {
	ID             int64     `json:"id" db:"id"`
	UserID         int64     `json:"user_id" db:"user_id"`
	Status         string    `json:"status" db:"status"`
	Amount         float64   `json:"amount" db:"amount"`
	Currency       string    `json:"currency" db:"currency"`
	IdempotencyKey *string   `json:"idempotency_key,omitempty" db:"idempotency_key"`
	Phase          string    `json:"phase" db:"phase"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// NewPendingOrder builds the order row inserted at the start of a checkout.
func NewPendingOrder(userID int64, amount float64, currency string, idempotencyKey *string) *Order {
	return &Order{
		UserID:         userID,
		Status:         OrderStatusPending,
		Amount:         amount,
		Currency:       currency,
		IdempotencyKey: idempotencyKey,
		Phase:          PhaseCreated,
		CreatedAt:      time.Now(),
	}
}

// MarkPaid transitions pending -> paid.
func (o *Order) MarkPaid() error {
	if o.Status != OrderStatusPending {
		return ErrTerminalStatus
	}
	o.Status = OrderStatusPaid
	return nil
}

// MarkFailed transitions pending -> failed.
func (o *Order) MarkFailed() error {
	if o.Status != OrderStatusPending {
		return ErrTerminalStatus
	}
	o.Status = OrderStatusFailed
	return nil
}

// Terminal reports whether the order reached a final status.
func (o *Order) Terminal() bool {
	return o.Status == OrderStatusPaid || o.Status == OrderStatusFailed
}

// Reservation state: a reservation is "held" from the moment inventory was
// decremented until a compensating release succeeds.
const (
	ReservationStateHeld     = "held"
	ReservationStateReleased = "released"
)

// Reservation records quantity subtracted from inventory on behalf of an
// order. Compensation is driven by these stored rows, never by replaying the
// request's item list.
type Reservation struct {
	ID        int64  `json:"id" db:"id"`
	OrderID   int64  `json:"order_id" db:"order_id"`
	ProductID int64  `json:"product_id" db:"product_id"`
	Quantity  int    `json:"quantity" db:"quantity"`
	State     string `json:"state" db:"state"`
}

package main

import (
	"testing"
	"time"
)

func TestNewPendingOrder(t *testing.T) {
	key := "key-123"
	order := NewPendingOrder(42, 9.50, "USD", &key)

	if order.UserID != 42 {
		t.Errorf("Expected UserID 42, got %d", order.UserID)
	}
	if order.Status != OrderStatusPending {
		t.Errorf("Expected Status %s, got %s", OrderStatusPending, order.Status)
	}
	if order.Phase != PhaseCreated {
		t.Errorf("Expected Phase %s, got %s", PhaseCreated, order.Phase)
	}
	if order.Amount != 9.50 {
		t.Errorf("Expected Amount 9.50, got %f", order.Amount)
	}
	if order.Currency != "USD" {
		t.Errorf("Expected Currency USD, got %s", order.Currency)
	}
	if order.IdempotencyKey == nil || *order.IdempotencyKey != key {
		t.Errorf("Expected IdempotencyKey %q, got %v", key, order.IdempotencyKey)
	}

	now := time.Now()
	if order.CreatedAt.After(now) || order.CreatedAt.Before(now.Add(-time.Second)) {
		t.Error("CreatedAt is not within expected time range")
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	order := NewPendingOrder(1, 10, "USD", nil)

	if err := order.MarkPaid(); err != nil {
		t.Fatalf("Expected pending -> paid to succeed, got %v", err)
	}
	if !order.Terminal() {
		t.Error("Expected paid order to be terminal")
	}

	// Terminal statuses never change again.
	if err := order.MarkFailed(); err != ErrTerminalStatus {
		t.Errorf("Expected ErrTerminalStatus, got %v", err)
	}
	if err := order.MarkPaid(); err != ErrTerminalStatus {
		t.Errorf("Expected ErrTerminalStatus, got %v", err)
	}
	if order.Status != OrderStatusPaid {
		t.Errorf("Expected status to stay %s, got %s", OrderStatusPaid, order.Status)
	}
}

func TestOrderMarkFailed(t *testing.T) {
	order := NewPendingOrder(1, 10, "USD", nil)

	if err := order.MarkFailed(); err != nil {
		t.Fatalf("Expected pending -> failed to succeed, got %v", err)
	}
	if err := order.MarkPaid(); err != ErrTerminalStatus {
		t.Errorf("Expected ErrTerminalStatus, got %v", err)
	}
	if order.Status != OrderStatusFailed {
		t.Errorf("Expected status to stay %s, got %s", OrderStatusFailed, order.Status)
	}
}

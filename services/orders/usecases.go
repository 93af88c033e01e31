package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CheckoutUseCase runs the checkout saga: ledger insert, inventory
// reservation, payment charge, finalization, best-effort notification.
// There is no external transaction coordinator; consistency comes from the
// ledger's idempotency constraint plus compensating releases.
type CheckoutUseCase struct {
	repository    Repository
	inventory     InventoryClient
	payments      PaymentClient
	notifications NotificationClient
	tracer        trace.Tracer

	checkoutsPaid   metric.Int64Counter
	checkoutsFailed metric.Int64Counter
}

// NewCheckoutUseCase creates a new CheckoutUseCase instance.
func NewCheckoutUseCase(
	repository Repository,
	inventory InventoryClient,
	payments PaymentClient,
	notifications NotificationClient,
	tracer trace.Tracer,
	meter metric.Meter,
) *CheckoutUseCase {
	uc := &CheckoutUseCase{
		repository:    repository,
		inventory:     inventory,
		payments:      payments,
		notifications: notifications,
		tracer:        tracer,
	}
	if meter != nil {
		uc.checkoutsPaid, _ = meter.Int64Counter("checkout.paid")
		uc.checkoutsFailed, _ = meter.Int64Counter("checkout.failed")
	}
	return uc
}

// Checkout executes one saga attempt and always returns the persisted order
// when one exists, even on failure, so clients can poll instead of blindly
// resubmitting. A nil error with a non-pending status means the request was
// an idempotent replay or a fresh success.
func (uc *CheckoutUseCase) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	ctx, span := uc.tracer.Start(ctx, "checkout_saga")
	defer span.End()

	// Fast path: a previously seen idempotency key returns the stored order
	// without touching inventory or payments again.
	if req.IdempotencyKey != nil && *req.IdempotencyKey != "" {
		existing, err := uc.repository.FindByIdempotencyKey(ctx, *req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
		if existing != nil {
			log.Printf("ℹ️ [IDEMPOTENCY] Returning existing order %d for key %q", existing.ID, *existing.IdempotencyKey)
			return existing, nil
		}
	}

	order, inserted, err := uc.repository.InsertPendingOrder(ctx, NewPendingOrder(req.UserID, req.Amount, req.Currency, req.IdempotencyKey))
	if err != nil {
		return nil, fmt.Errorf("create pending order: %w", err)
	}
	if !inserted {
		// Lost the duplicate-submission race; the winner's row is the answer.
		log.Printf("ℹ️ [IDEMPOTENCY] Lost insert race, returning order %d", order.ID)
		return order, nil
	}

	span.SetAttributes(
		attribute.Int64("order_id", order.ID),
		attribute.Int64("user_id", order.UserID),
		attribute.Float64("amount", order.Amount),
	)
	log.Printf("🚀 Starting checkout saga | OrderID: %d | UserID: %d", order.ID, order.UserID)

	// Phase 1: reserve inventory sequentially, in request order.
	if err := uc.reserveItems(ctx, order, req.Items); err != nil {
		uc.compensate(ctx, order)
		uc.fail(ctx, order)
		return order, err
	}

	// Phase 2: charge payment. Exactly one charge call per saga run; the
	// idempotency fast path above guarantees no second run for the same key.
	payment, err := uc.chargePayment(ctx, order, req)
	if err != nil {
		uc.compensate(ctx, order)
		uc.fail(ctx, order)
		return order, err
	}

	// Phase 3: finalize.
	if err := uc.repository.UpdateStatus(ctx, order.ID, OrderStatusPaid); err != nil {
		return order, fmt.Errorf("mark order paid: %w", err)
	}
	order.Status = OrderStatusPaid
	if err := uc.repository.UpdatePhase(ctx, order.ID, PhaseFinalized); err != nil {
		log.Printf("ℹ️ Failed to record finalized phase for order %d: %v", order.ID, err)
	}

	if uc.checkoutsPaid != nil {
		uc.checkoutsPaid.Add(ctx, 1)
	}
	log.Printf("✅ Checkout saga completed | OrderID: %d | PaymentID: %s", order.ID, payment.PaymentID)

	uc.notifyAsync(order)

	return order, nil
}

// reserveItems reserves each line item one at a time, recording every
// successful hold in the ledger before moving on.
func (uc *CheckoutUseCase) reserveItems(ctx context.Context, order *Order, items []LineItem) error {
	ctx, span := uc.tracer.Start(ctx, "reserve_inventory")
	defer span.End()

	for _, item := range items {
		if err := uc.inventory.Reserve(ctx, item.ProductID, item.Quantity); err != nil {
			log.Printf("❌ [RESERVE] OrderID=%d ProductID=%d failed: %v", order.ID, item.ProductID, err)
			span.RecordError(err)
			return err
		}
		if _, err := uc.repository.AddReservation(ctx, order.ID, item.ProductID, item.Quantity); err != nil {
			// The hold exists in inventory but could not be recorded; treat
			// as a failed attempt so compensation runs from what is stored.
			log.Printf("❌ [RESERVE] OrderID=%d failed to record reservation: %v", order.ID, err)
			if relErr := uc.inventory.Release(ctx, item.ProductID, item.Quantity); relErr != nil {
				log.Printf("ℹ️ [RELEASE] OrderID=%d best-effort release failed: %v", order.ID, relErr)
			}
			return err
		}
		log.Printf("✅ [RESERVE] OrderID=%d ProductID=%d Quantity=%d", order.ID, item.ProductID, item.Quantity)
	}

	if err := uc.repository.UpdatePhase(ctx, order.ID, PhaseReserved); err != nil {
		log.Printf("ℹ️ Failed to record reserved phase for order %d: %v", order.ID, err)
	}
	return nil
}

func (uc *CheckoutUseCase) chargePayment(ctx context.Context, order *Order, req CheckoutRequest) (*ChargeResult, error) {
	ctx, span := uc.tracer.Start(ctx, "charge_payment")
	defer span.End()

	payment, err := uc.payments.Charge(ctx, ChargeRequest{
		OrderID:        order.ID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		log.Printf("❌ [CHARGE] OrderID=%d failed: %v", order.ID, err)
		span.RecordError(err)
		return nil, err
	}

	if err := uc.repository.UpdatePhase(ctx, order.ID, PhaseCharged); err != nil {
		log.Printf("ℹ️ Failed to record charged phase for order %d: %v", order.ID, err)
	}
	log.Printf("✅ [CHARGE] OrderID=%d PaymentID=%s", order.ID, payment.PaymentID)
	return payment, nil
}

// compensate releases every reservation still held for the order. Releases
// run on any failure path, are attempted independently, and never escalate:
// a failed release is logged and the reservation stays held for inspection.
func (uc *CheckoutUseCase) compensate(ctx context.Context, order *Order) {
	ctx, span := uc.tracer.Start(ctx, "release_reservations")
	defer span.End()

	held, err := uc.repository.HeldReservations(ctx, order.ID)
	if err != nil {
		log.Printf("ℹ️ [RELEASE] OrderID=%d could not load reservations: %v", order.ID, err)
		return
	}

	for _, res := range held {
		if err := uc.inventory.Release(ctx, res.ProductID, res.Quantity); err != nil {
			log.Printf("ℹ️ [RELEASE] OrderID=%d ProductID=%d failed (ignored): %v", order.ID, res.ProductID, err)
			continue
		}
		if err := uc.repository.MarkReservationReleased(ctx, res.ID); err != nil {
			log.Printf("ℹ️ [RELEASE] OrderID=%d could not mark reservation %d released: %v", order.ID, res.ID, err)
			continue
		}
		log.Printf("↩️ [RELEASE] OrderID=%d ProductID=%d Quantity=%d", order.ID, res.ProductID, res.Quantity)
	}
}

func (uc *CheckoutUseCase) fail(ctx context.Context, order *Order) {
	if err := uc.repository.UpdateStatus(ctx, order.ID, OrderStatusFailed); err != nil && !errors.Is(err, ErrTerminalStatus) {
		log.Printf("❌ Failed to mark order %d failed: %v", order.ID, err)
		return
	}
	order.Status = OrderStatusFailed
	if uc.checkoutsFailed != nil {
		uc.checkoutsFailed.Add(ctx, 1)
	}
	log.Printf("↩️ Order %d marked failed", order.ID)
}

// notifyAsync fires the order_paid notification on a detached context so a
// slow or dead notifications service cannot stall or fail the saga.
func (uc *CheckoutUseCase) notifyAsync(order *Order) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		err := uc.notifications.Send(ctx, Notification{
			To:       fmt.Sprintf("user-%d@example.com", order.UserID),
			Channel:  "email",
			Template: "order_paid",
			Ctx:      map[string]any{"order_id": order.ID},
		})
		if err != nil {
			log.Printf("ℹ️ [NOTIFY] OrderID=%d send failed (ignored): %v", order.ID, err)
		}
	}()
}

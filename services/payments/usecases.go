package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/metric"
)

var (
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	ErrDeclined      = errors.New("payment declined")
)

// PaymentUseCase holds the charge business logic. The simulator keeps no
// wallet state: outcomes are a pure function of the request, so replaying a
// charge for the same order is harmless.
type PaymentUseCase struct {
	chargeSucceededCounter metric.Int64Counter
	chargeDeclinedCounter  metric.Int64Counter
}

// NewPaymentUseCase creates a new PaymentUseCase instance.
func NewPaymentUseCase(meter metric.Meter) *PaymentUseCase {
	uc := &PaymentUseCase{}
	if meter != nil {
		uc.chargeSucceededCounter, _ = meter.Int64Counter("payments.charge.succeeded")
		uc.chargeDeclinedCounter, _ = meter.Int64Counter("payments.charge.declined")
	}
	return uc
}

// Charge validates and settles a payment. The "fail" payment method is the
// deterministic decline sentinel used by end-to-end runs.
func (uc *PaymentUseCase) Charge(ctx context.Context, req ChargeRequest) (*Payment, error) {
	log.Printf("➡️ [CHARGE] OrderID=%d Amount=%.2f Currency=%s Method=%s",
		req.OrderID, req.Amount, req.Currency, req.PaymentMethod)

	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: got %.2f", ErrInvalidAmount, req.Amount)
	}

	if req.PaymentMethod == declineMethod {
		if uc.chargeDeclinedCounter != nil {
			uc.chargeDeclinedCounter.Add(ctx, 1)
		}
		log.Printf("❌ [CHARGE] Declined: OrderID=%d", req.OrderID)
		return nil, fmt.Errorf("%w: order %d", ErrDeclined, req.OrderID)
	}

	payment := NewPayment(req)
	if uc.chargeSucceededCounter != nil {
		uc.chargeSucceededCounter.Add(ctx, 1)
	}
	log.Printf("✅ [CHARGE] Success: OrderID=%d PaymentID=%s", req.OrderID, payment.PaymentID)
	return payment, nil
}

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.opentelemetry.io/otel/trace/noop"
)

// MockRepository mocks the order ledger.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) InsertPendingOrder(ctx context.Context, order *Order) (*Order, bool, error) {
	args := m.Called(ctx, order)
	var out *Order
	if args.Get(0) != nil {
		out = args.Get(0).(*Order)
	}
	return out, args.Bool(1), args.Error(2)
}

func (m *MockRepository) FindByIdempotencyKey(ctx context.Context, key string) (*Order, error) {
	args := m.Called(ctx, key)
	var out *Order
	if args.Get(0) != nil {
		out = args.Get(0).(*Order)
	}
	return out, args.Error(1)
}

func (m *MockRepository) FindByID(ctx context.Context, id int64) (*Order, error) {
	args := m.Called(ctx, id)
	var out *Order
	if args.Get(0) != nil {
		out = args.Get(0).(*Order)
	}
	return out, args.Error(1)
}

func (m *MockRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]Order, error) {
	args := m.Called(ctx, userID, limit)
	var out []Order
	if args.Get(0) != nil {
		out = args.Get(0).([]Order)
	}
	return out, args.Error(1)
}

func (m *MockRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockRepository) UpdatePhase(ctx context.Context, id int64, phase string) error {
	args := m.Called(ctx, id, phase)
	return args.Error(0)
}

func (m *MockRepository) AddReservation(ctx context.Context, orderID, productID int64, quantity int) (int64, error) {
	args := m.Called(ctx, orderID, productID, quantity)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) MarkReservationReleased(ctx context.Context, reservationID int64) error {
	args := m.Called(ctx, reservationID)
	return args.Error(0)
}

func (m *MockRepository) HeldReservations(ctx context.Context, orderID int64) ([]Reservation, error) {
	args := m.Called(ctx, orderID)
	var out []Reservation
	if args.Get(0) != nil {
		out = args.Get(0).([]Reservation)
	}
	return out, args.Error(1)
}

// MockInventoryClient mocks the inventory collaborator.
type MockInventoryClient struct {
	mock.Mock
}

func (m *MockInventoryClient) Reserve(ctx context.Context, productID int64, quantity int) error {
	args := m.Called(ctx, productID, quantity)
	return args.Error(0)
}

func (m *MockInventoryClient) Release(ctx context.Context, productID int64, quantity int) error {
	args := m.Called(ctx, productID, quantity)
	return args.Error(0)
}

// MockPaymentClient mocks the payments collaborator.
type MockPaymentClient struct {
	mock.Mock
}

func (m *MockPaymentClient) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	args := m.Called(ctx, req)
	var out *ChargeResult
	if args.Get(0) != nil {
		out = args.Get(0).(*ChargeResult)
	}
	return out, args.Error(1)
}

// MockNotificationClient mocks the notifications collaborator. Sends are
// signaled over a channel because the saga fires them asynchronously.
type MockNotificationClient struct {
	mock.Mock
	sent chan Notification
}

func (m *MockNotificationClient) Send(ctx context.Context, note Notification) error {
	args := m.Called(ctx, note)
	if m.sent != nil {
		m.sent <- note
	}
	return args.Error(0)
}

type sagaFixture struct {
	repo    *MockRepository
	inv     *MockInventoryClient
	pay     *MockPaymentClient
	notify  *MockNotificationClient
	useCase *CheckoutUseCase
}

func newSagaFixture() *sagaFixture {
	f := &sagaFixture{
		repo:   new(MockRepository),
		inv:    new(MockInventoryClient),
		pay:    new(MockPaymentClient),
		notify: &MockNotificationClient{sent: make(chan Notification, 1)},
	}
	tracer := noop.NewTracerProvider().Tracer("test")
	f.useCase = NewCheckoutUseCase(f.repo, f.inv, f.pay, f.notify, tracer, nil)
	return f
}

func checkoutRequest(key string) CheckoutRequest {
	req := CheckoutRequest{
		UserID:        42,
		Items:         []LineItem{{ProductID: 1, Quantity: 1}},
		Amount:        9.50,
		Currency:      "USD",
		PaymentMethod: "card",
	}
	if key != "" {
		req.IdempotencyKey = &key
	}
	return req
}

func TestCheckout_HappyPath(t *testing.T) {
	f := newSagaFixture()
	ctx := context.Background()
	req := checkoutRequest("K1")

	inserted := &Order{ID: 7, UserID: 42, Status: OrderStatusPending, Amount: 9.50, Currency: "USD"}

	f.repo.On("FindByIdempotencyKey", mock.Anything, "K1").Return(nil, nil)
	f.repo.On("InsertPendingOrder", mock.Anything, mock.Anything).Return(inserted, true, nil)
	f.inv.On("Reserve", mock.Anything, int64(1), 1).Return(nil)
	f.repo.On("AddReservation", mock.Anything, int64(7), int64(1), 1).Return(int64(100), nil)
	f.repo.On("UpdatePhase", mock.Anything, int64(7), mock.Anything).Return(nil)
	f.pay.On("Charge", mock.Anything, mock.Anything).Return(&ChargeResult{PaymentID: "pay-1", Status: "succeeded"}, nil)
	f.repo.On("UpdateStatus", mock.Anything, int64(7), OrderStatusPaid).Return(nil)
	f.notify.On("Send", mock.Anything, mock.Anything).Return(nil)

	order, err := f.useCase.Checkout(ctx, req)

	assert.NoError(t, err)
	assert.Equal(t, int64(7), order.ID)
	assert.Equal(t, OrderStatusPaid, order.Status)

	select {
	case note := <-f.notify.sent:
		assert.Equal(t, "order_paid", note.Template)
		assert.Equal(t, "email", note.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a best-effort notification")
	}

	f.inv.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	f.repo.AssertExpectations(t)
	f.pay.AssertExpectations(t)
}

func TestCheckout_IdempotentReplay(t *testing.T) {
	f := newSagaFixture()
	ctx := context.Background()
	req := checkoutRequest("K1")

	key := "K1"
	existing := &Order{ID: 7, UserID: 42, Status: OrderStatusPaid, Amount: 9.50, Currency: "USD", IdempotencyKey: &key}
	f.repo.On("FindByIdempotencyKey", mock.Anything, "K1").Return(existing, nil)

	order, err := f.useCase.Checkout(ctx, req)

	assert.NoError(t, err)
	assert.Equal(t, int64(7), order.ID)
	assert.Equal(t, OrderStatusPaid, order.Status)

	// Replays must not re-reserve inventory or re-charge payment.
	f.repo.AssertNotCalled(t, "InsertPendingOrder", mock.Anything, mock.Anything)
	f.inv.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything)
	f.pay.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestCheckout_LostInsertRace(t *testing.T) {
	f := newSagaFixture()
	ctx := context.Background()
	req := checkoutRequest("K1")

	winner := &Order{ID: 9, UserID: 42, Status: OrderStatusPending, Amount: 9.50, Currency: "USD"}
	f.repo.On("FindByIdempotencyKey", mock.Anything, "K1").Return(nil, nil)
	f.repo.On("InsertPendingOrder", mock.Anything, mock.Anything).Return(winner, false, nil)

	order, err := f.useCase.Checkout(ctx, req)

	// The loser of the race observes the winner's row, not an error.
	assert.NoError(t, err)
	assert.Equal(t, int64(9), order.ID)
	f.inv.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything)
	f.pay.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestCheckout_PaymentDeclineReleasesReservations(t *testing.T) {
	f := newSagaFixture()
	ctx := context.Background()
	req := CheckoutRequest{
		UserID:        42,
		Items:         []LineItem{{ProductID: 2, Quantity: 1}, {ProductID: 3, Quantity: 2}},
		Amount:        20,
		Currency:      "USD",
		PaymentMethod: "fail",
	}

	inserted := &Order{ID: 8, UserID: 42, Status: OrderStatusPending, Amount: 20, Currency: "USD"}
	f.repo.On("InsertPendingOrder", mock.Anything, mock.Anything).Return(inserted, true, nil)
	f.inv.On("Reserve", mock.Anything, int64(2), 1).Return(nil)
	f.inv.On("Reserve", mock.Anything, int64(3), 2).Return(nil)
	f.repo.On("AddReservation", mock.Anything, int64(8), int64(2), 1).Return(int64(1), nil)
	f.repo.On("AddReservation", mock.Anything, int64(8), int64(3), 2).Return(int64(2), nil)
	f.repo.On("UpdatePhase", mock.Anything, int64(8), mock.Anything).Return(nil)
	f.pay.On("Charge", mock.Anything, mock.Anything).Return(nil, ErrPaymentDeclined)
	f.repo.On("HeldReservations", mock.Anything, int64(8)).Return([]Reservation{
		{ID: 1, OrderID: 8, ProductID: 2, Quantity: 1, State: ReservationStateHeld},
		{ID: 2, OrderID: 8, ProductID: 3, Quantity: 2, State: ReservationStateHeld},
	}, nil)
	f.inv.On("Release", mock.Anything, int64(2), 1).Return(nil)
	f.inv.On("Release", mock.Anything, int64(3), 2).Return(nil)
	f.repo.On("MarkReservationReleased", mock.Anything, int64(1)).Return(nil)
	f.repo.On("MarkReservationReleased", mock.Anything, int64(2)).Return(nil)
	f.repo.On("UpdateStatus", mock.Anything, int64(8), OrderStatusFailed).Return(nil)

	order, err := f.useCase.Checkout(ctx, req)

	assert.ErrorIs(t, err, ErrPaymentDeclined)
	assert.Equal(t, int64(8), order.ID)
	assert.Equal(t, OrderStatusFailed, order.Status)
	f.inv.AssertExpectations(t)
	f.repo.AssertExpectations(t)
	f.notify.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestCheckout_InventoryFailureReleasesEarlierReservations(t *testing.T) {
	f := newSagaFixture()
	ctx := context.Background()
	req := CheckoutRequest{
		UserID:        42,
		Items:         []LineItem{{ProductID: 1, Quantity: 1}, {ProductID: 99, Quantity: 5}},
		Amount:        50,
		Currency:      "USD",
		PaymentMethod: "card",
	}

	inserted := &Order{ID: 11, UserID: 42, Status: OrderStatusPending, Amount: 50, Currency: "USD"}
	f.repo.On("InsertPendingOrder", mock.Anything, mock.Anything).Return(inserted, true, nil)
	f.inv.On("Reserve", mock.Anything, int64(1), 1).Return(nil)
	f.repo.On("AddReservation", mock.Anything, int64(11), int64(1), 1).Return(int64(5), nil)
	f.inv.On("Reserve", mock.Anything, int64(99), 5).Return(ErrInsufficientStock)
	f.repo.On("HeldReservations", mock.Anything, int64(11)).Return([]Reservation{
		{ID: 5, OrderID: 11, ProductID: 1, Quantity: 1, State: ReservationStateHeld},
	}, nil)
	f.inv.On("Release", mock.Anything, int64(1), 1).Return(nil)
	f.repo.On("MarkReservationReleased", mock.Anything, int64(5)).Return(nil)
	f.repo.On("UpdateStatus", mock.Anything, int64(11), OrderStatusFailed).Return(nil)

	order, err := f.useCase.Checkout(ctx, req)

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, OrderStatusFailed, order.Status)
	// The hold taken before the failing line item is compensated.
	f.inv.AssertCalled(t, "Release", mock.Anything, int64(1), 1)
	f.pay.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestCheckout_UpstreamUnavailableOnCharge(t *testing.T) {
	f := newSagaFixture()
	ctx := context.Background()
	req := checkoutRequest("")

	inserted := &Order{ID: 12, UserID: 42, Status: OrderStatusPending, Amount: 9.50, Currency: "USD"}
	f.repo.On("InsertPendingOrder", mock.Anything, mock.Anything).Return(inserted, true, nil)
	f.inv.On("Reserve", mock.Anything, int64(1), 1).Return(nil)
	f.repo.On("AddReservation", mock.Anything, int64(12), int64(1), 1).Return(int64(1), nil)
	f.repo.On("UpdatePhase", mock.Anything, int64(12), mock.Anything).Return(nil)
	f.pay.On("Charge", mock.Anything, mock.Anything).Return(nil, ErrUpstreamUnavailable)
	f.repo.On("HeldReservations", mock.Anything, int64(12)).Return([]Reservation{
		{ID: 1, OrderID: 12, ProductID: 1, Quantity: 1, State: ReservationStateHeld},
	}, nil)
	f.inv.On("Release", mock.Anything, int64(1), 1).Return(nil)
	f.repo.On("MarkReservationReleased", mock.Anything, int64(1)).Return(nil)
	f.repo.On("UpdateStatus", mock.Anything, int64(12), OrderStatusFailed).Return(nil)

	order, err := f.useCase.Checkout(ctx, req)

	// Exhausted retries become a terminal failure for the attempt.
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, OrderStatusFailed, order.Status)
}

func TestCheckout_ReleaseFailureNeverEscalates(t *testing.T) {
	f := newSagaFixture()
	ctx := context.Background()
	req := checkoutRequest("")

	inserted := &Order{ID: 13, UserID: 42, Status: OrderStatusPending, Amount: 9.50, Currency: "USD"}
	f.repo.On("InsertPendingOrder", mock.Anything, mock.Anything).Return(inserted, true, nil)
	f.inv.On("Reserve", mock.Anything, int64(1), 1).Return(nil)
	f.repo.On("AddReservation", mock.Anything, int64(13), int64(1), 1).Return(int64(1), nil)
	f.repo.On("UpdatePhase", mock.Anything, int64(13), mock.Anything).Return(nil)
	f.pay.On("Charge", mock.Anything, mock.Anything).Return(nil, ErrPaymentDeclined)
	f.repo.On("HeldReservations", mock.Anything, int64(13)).Return([]Reservation{
		{ID: 1, OrderID: 13, ProductID: 1, Quantity: 1, State: ReservationStateHeld},
	}, nil)
	f.inv.On("Release", mock.Anything, int64(1), 1).Return(ErrUpstreamUnavailable)
	f.repo.On("UpdateStatus", mock.Anything, int64(13), OrderStatusFailed).Return(nil)

	order, err := f.useCase.Checkout(ctx, req)

	// The caller sees the payment failure; the failed release is only logged
	// and the reservation stays held for inspection.
	assert.ErrorIs(t, err, ErrPaymentDeclined)
	assert.Equal(t, OrderStatusFailed, order.Status)
	f.repo.AssertNotCalled(t, "MarkReservationReleased", mock.Anything, mock.Anything)
}

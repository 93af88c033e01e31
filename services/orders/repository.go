package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the order ledger. The orders table carries a uniqueness
// constraint on idempotency_key; reservations are stored per order so
// compensation works from durable facts.
type Repository interface {
	// InsertPendingOrder atomically inserts a pending order. On an
	// idempotency-key conflict it re-reads and returns the winner's row;
	// the bool reports whether this call inserted the row.
	InsertPendingOrder(ctx context.Context, order *Order) (*Order, bool, error)

	// FindByIdempotencyKey returns the order for a key, or nil when absent.
	FindByIdempotencyKey(ctx context.Context, key string) (*Order, error)

	// FindByID returns the order, or nil when absent.
	FindByID(ctx context.Context, id int64) (*Order, error)

	// ListByUser returns up to limit orders for a user, newest first.
	ListByUser(ctx context.Context, userID int64, limit int) ([]Order, error)

	// UpdateStatus moves a pending order to a terminal status. Terminal
	// orders are never updated again.
	UpdateStatus(ctx context.Context, id int64, status string) error

	// UpdatePhase advances the saga phase marker on the order row.
	UpdatePhase(ctx context.Context, id int64, phase string) error

	// AddReservation records a held reservation for the order.
	AddReservation(ctx context.Context, orderID, productID int64, quantity int) (int64, error)

	// MarkReservationReleased flips a reservation held -> released.
	MarkReservationReleased(ctx context.Context, reservationID int64) error

	// HeldReservations returns the order's reservations still held, in the
	// order they were taken.
	HeldReservations(ctx context.Context, orderID int64) ([]Reservation, error)
}

// OrderRepository implements Repository using PostgreSQL.
type OrderRepository struct {
	db *pgxpool.Pool
}

// NewOrderRepository creates a new OrderRepository instance.
func NewOrderRepository(db *pgxpool.Pool) Repository {
	return &OrderRepository{
		db: db,
	}
}

// InitSchema creates the ledger tables if they do not exist.
func (r *OrderRepository) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			status TEXT NOT NULL,
			amount DOUBLE PRECISION,
			currency VARCHAR(10),
			idempotency_key VARCHAR(128),
			phase TEXT NOT NULL DEFAULT 'created',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_idempotency_key
			ON orders (idempotency_key)`,
		`CREATE TABLE IF NOT EXISTS order_reservations (
			id BIGSERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL REFERENCES orders(id),
			product_id BIGINT NOT NULL,
			quantity INT NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init ledger schema: %w", err)
		}
	}
	return nil
}

// InsertPendingOrder inserts the order with ON CONFLICT DO NOTHING on the
// idempotency key. Losers of a duplicate-submission race re-read the winner's
// row so every caller observes the same order id.
func (r *OrderRepository) InsertPendingOrder(ctx context.Context, order *Order) (*Order, bool, error) {
	if order.IdempotencyKey == nil {
		err := r.db.QueryRow(ctx, `
			INSERT INTO orders (user_id, status, amount, currency, idempotency_key, phase)
			VALUES ($1, $2, $3, $4, NULL, $5)
			RETURNING id, created_at
		`, order.UserID, order.Status, order.Amount, order.Currency, order.Phase).
			Scan(&order.ID, &order.CreatedAt)
		if err != nil {
			return nil, false, fmt.Errorf("failed to insert order: %w", err)
		}
		return order, true, nil
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO orders (user_id, status, amount, currency, idempotency_key, phase)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, created_at
	`, order.UserID, order.Status, order.Amount, order.Currency, *order.IdempotencyKey, order.Phase).
		Scan(&order.ID, &order.CreatedAt)
	if err == nil {
		return order, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert order: %w", err)
	}

	// Conflict: another request inserted the order. Read and return it.
	existing, err := r.FindByIdempotencyKey(ctx, *order.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("order not found after idempotency conflict")
	}
	return existing, false, nil
}

const orderColumns = `id, user_id, status, COALESCE(amount, 0), COALESCE(currency, 'USD'), idempotency_key, phase, created_at`

func (r *OrderRepository) scanOrder(row pgx.Row) (*Order, error) {
	var order Order
	err := row.Scan(&order.ID, &order.UserID, &order.Status, &order.Amount,
		&order.Currency, &order.IdempotencyKey, &order.Phase, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// FindByIdempotencyKey returns the order stored under the key, or nil.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, key string) (*Order, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders WHERE idempotency_key = $1
	`, key)
	return r.scanOrder(row)
}

// FindByID returns the order, or nil when it does not exist.
func (r *OrderRepository) FindByID(ctx context.Context, id int64) (*Order, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders WHERE id = $1
	`, id)
	return r.scanOrder(row)
}

// ListByUser returns recent orders for a user, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var order Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.Status, &order.Amount,
			&order.Currency, &order.IdempotencyKey, &order.Phase, &order.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// UpdateStatus moves a pending order to a terminal status. The WHERE clause
// enforces terminal-status immutability at the database level.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET status = $1
		WHERE id = $2 AND status = $3
	`, status, id, OrderStatusPending)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTerminalStatus
	}
	return nil
}

// UpdatePhase records how far the saga progressed for the order.
func (r *OrderRepository) UpdatePhase(ctx context.Context, id int64, phase string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE orders SET phase = $1 WHERE id = $2
	`, phase, id)
	if err != nil {
		return fmt.Errorf("failed to update order phase: %w", err)
	}
	return nil
}

// AddReservation records a held reservation taken for the order.
func (r *OrderRepository) AddReservation(ctx context.Context, orderID, productID int64, quantity int) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO order_reservations (order_id, product_id, quantity, state)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, orderID, productID, quantity, ReservationStateHeld).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record reservation: %w", err)
	}
	return id, nil
}

// MarkReservationReleased flips the reservation to released.
func (r *OrderRepository) MarkReservationReleased(ctx context.Context, reservationID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE order_reservations
		SET state = $1
		WHERE id = $2 AND state = $3
	`, ReservationStateReleased, reservationID, ReservationStateHeld)
	if err != nil {
		return fmt.Errorf("failed to mark reservation released: %w", err)
	}
	return nil
}

// HeldReservations returns the order's reservations still held, oldest first.
func (r *OrderRepository) HeldReservations(ctx context.Context, orderID int64) ([]Reservation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, quantity, state
		FROM order_reservations
		WHERE order_id = $1 AND state = $2
		ORDER BY id
	`, orderID, ReservationStateHeld)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ID, &res.OrderID, &res.ProductID, &res.Quantity, &res.State); err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

// Command seed prepares a local environment for demo runs: it creates the
// order ledger tables, clears leftover rows, and pins the demo inventory
// through the inventory service's reset endpoint.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	_ "github.com/lib/pq"
)

var schema = []string{
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

// demoInventory matches the quantities the end-to-end scenarios expect:
// product 1 well stocked, product 2 scarce, product 3 sold out.
var demoInventory = map[string]int{
	"1": 10,
	"2": 5,
	"3": 0,
}

func main() {
	db, err := openDB()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("Failed to create ledger schema: %v", err)
		}
	}
	log.Println("✅ Ledger schema ready")

	if _, err := db.Exec(`TRUNCATE order_reservations, orders RESTART IDENTITY`); err != nil {
		log.Fatalf("Failed to clear ledger: %v", err)
	}
	log.Println("✅ Ledger cleared")

	if err := resetInventory(); err != nil {
		log.Fatalf("Failed to seed inventory: %v", err)
	}
	log.Println("✅ Demo inventory seeded")
}

func openDB() (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		getEnv("DATABASE_USER", "root"),
		getEnv("DATABASE_PASSWORD", "pass"),
		getEnv("DATABASE_HOST", "localhost"),
		getEnv("DATABASE_PORT", "5432"),
		getEnv("DATABASE_NAME", "orders_db"),
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// Wait for database to be ready
	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			return db, nil
		}
		log.Printf("⏳ Waiting for database... (%d/30)", i+1)
		time.Sleep(1 * time.Second)
	}

	db.Close()
	return nil, fmt.Errorf("database not reachable after 30 attempts")
}

func resetInventory() error {
	client := resty.New().
		SetBaseURL(getEnv("INVENTORY_URL", "http://localhost:8008")).
		SetTimeout(5 * time.Second)

	resp, err := client.R().
		SetBody(map[string]any{"items": demoInventory}).
		Post("/api/inventory/reset")
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("inventory reset returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Command e2e drives the checkout saga end to end against running services.
// It pins the demo inventory, then walks the happy path, an idempotent
// replay, a deterministic payment decline, and an out-of-stock rejection,
// verifying status codes and stock movements after each step.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

type checkoutResponse struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
	Error   string `json:"error"`
}

type itemResponse struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type runner struct {
	orders    *resty.Client
	inventory *resty.Client
	failed    int
}

func main() {
	r := &runner{
		orders: resty.New().
			SetBaseURL(getEnv("ORDERS_URL", "http://localhost:8080")).
			SetTimeout(15 * time.Second),
		inventory: resty.New().
			SetBaseURL(getEnv("INVENTORY_URL", "http://localhost:8008")).
			SetTimeout(5 * time.Second),
	}

	r.resetInventory()
	r.happyPath()
	r.idempotentReplay()
	r.paymentDecline()
	r.insufficientStock()

	if r.failed > 0 {
		log.Fatalf("❌ %d scenario(s) failed", r.failed)
	}
	log.Println("✅ All scenarios passed")
}

func (r *runner) resetInventory() {
	resp, err := r.inventory.R().
		SetBody(map[string]any{"items": map[string]int{"1": 10, "2": 5, "3": 0}}).
		Post("/api/inventory/reset")
	if err != nil || !resp.IsSuccess() {
		log.Fatalf("Failed to reset inventory: err=%v status=%v", err, resp.StatusCode())
	}
	log.Println("ℹ️ Inventory pinned to demo quantities")
}

func (r *runner) checkout(body map[string]any) (int, *checkoutResponse) {
	var out checkoutResponse
	resp, err := r.orders.R().
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/api/orders/checkout")
	if err != nil {
		log.Fatalf("Checkout request failed: %v", err)
	}
	return resp.StatusCode(), &out
}

func (r *runner) stock(productID int64) int {
	var out itemResponse
	resp, err := r.inventory.R().
		SetResult(&out).
		Get(fmt.Sprintf("/api/inventory/items/%d", productID))
	if err != nil || !resp.IsSuccess() {
		log.Fatalf("Failed to query stock: err=%v status=%v", err, resp.StatusCode())
	}
	return out.Quantity
}

func (r *runner) check(scenario string, ok bool, detail string) {
	if ok {
		log.Printf("✅ [%s] %s", scenario, detail)
		return
	}
	r.failed++
	log.Printf("❌ [%s] %s", scenario, detail)
}

func (r *runner) happyPath() {
	before := r.stock(1)
	status, out := r.checkout(map[string]any{
		"user_id":         7,
		"items":           []map[string]any{{"product_id": 1, "quantity": 2}},
		"amount":          59.80,
		"currency":        "USD",
		"payment_method":  "credit_card",
		"idempotency_key": uuid.NewString(),
	})

	r.check("happy path", status == 200, fmt.Sprintf("status=%d", status))
	r.check("happy path", out.Status == "paid", fmt.Sprintf("order status=%s", out.Status))
	after := r.stock(1)
	r.check("happy path", after == before-2, fmt.Sprintf("stock %d -> %d", before, after))
}

func (r *runner) idempotentReplay() {
	key := uuid.NewString()
	body := map[string]any{
		"user_id":         7,
		"items":           []map[string]any{{"product_id": 1, "quantity": 1}},
		"amount":          29.90,
		"currency":        "USD",
		"payment_method":  "credit_card",
		"idempotency_key": key,
	}

	before := r.stock(1)
	status1, first := r.checkout(body)
	status2, second := r.checkout(body)

	r.check("idempotent replay", status1 == 200 && status2 == 200,
		fmt.Sprintf("statuses=%d/%d", status1, status2))
	r.check("idempotent replay", first.OrderID == second.OrderID,
		fmt.Sprintf("order ids %d vs %d", first.OrderID, second.OrderID))
	after := r.stock(1)
	r.check("idempotent replay", after == before-1,
		fmt.Sprintf("stock charged once: %d -> %d", before, after))
}

func (r *runner) paymentDecline() {
	before := r.stock(2)
	status, out := r.checkout(map[string]any{
		"user_id":         7,
		"items":           []map[string]any{{"product_id": 2, "quantity": 1}},
		"amount":          15.00,
		"currency":        "USD",
		"payment_method":  "fail",
		"idempotency_key": uuid.NewString(),
	})

	r.check("payment decline", status == 402, fmt.Sprintf("status=%d", status))
	r.check("payment decline", out.Status == "failed", fmt.Sprintf("order status=%s", out.Status))
	after := r.stock(2)
	r.check("payment decline", after == before,
		fmt.Sprintf("reservation released: stock %d -> %d", before, after))
}

func (r *runner) insufficientStock() {
	status, out := r.checkout(map[string]any{
		"user_id":         7,
		"items":           []map[string]any{{"product_id": 3, "quantity": 1}},
		"amount":          10.00,
		"currency":        "USD",
		"payment_method":  "credit_card",
		"idempotency_key": uuid.NewString(),
	})

	r.check("insufficient stock", status == 400, fmt.Sprintf("status=%d", status))
	r.check("insufficient stock", out.Status == "failed", fmt.Sprintf("order status=%s", out.Status))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

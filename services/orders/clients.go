package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"
)

// Step failures the orchestrator reacts to. Business rejections are terminal
// for the attempt and never retried; ErrUpstreamUnavailable means bounded
// retries were already exhausted inside the client.
var (
	ErrInsufficientStock   = errors.New("inventory reservation failed")
	ErrPaymentDeclined     = errors.New("payment declined")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
)

// InventoryClient reserves and releases stock at the inventory service.
type InventoryClient interface {
	Reserve(ctx context.Context, productID int64, quantity int) error
	Release(ctx context.Context, productID int64, quantity int) error
}

// PaymentClient charges an amount for an order at the payments service.
type PaymentClient interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// NotificationClient delivers a best-effort notification. Callers ignore the
// result; a failed send never affects the saga.
type NotificationClient interface {
	Send(ctx context.Context, note Notification) error
}

// ChargeRequest is the payload sent to POST /api/payments/charge.
type ChargeRequest struct {
	OrderID        int64   `json:"order_id"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	PaymentMethod  string  `json:"payment_method"`
	IdempotencyKey *string `json:"idempotency_key,omitempty"`
}

// ChargeResult is the payments service response for a successful charge.
type ChargeResult struct {
	PaymentID   string    `json:"payment_id"`
	OrderID     int64     `json:"order_id"`
	Status      string    `json:"status"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Notification is the payload sent to POST /api/notifications/send.
type Notification struct {
	To       string         `json:"to"`
	Channel  string         `json:"channel"`
	Template string         `json:"template"`
	Ctx      map[string]any `json:"ctx,omitempty"`
}

// ClientConfig bounds outbound calls: each call times out, transient failures
// (transport errors, 5xx) are retried with exponential backoff, business
// rejections (4xx) are returned immediately.
type ClientConfig struct {
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

// DefaultClientConfig allows up to 3 tries per call, 300ms base delay
// doubling per attempt.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:      10 * time.Second,
		RetryCount:   2,
		RetryWait:    300 * time.Millisecond,
		RetryMaxWait: 3 * time.Second,
	}
}

func newRestyClient(baseURL string, cfg ClientConfig) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})
}

// HTTPInventoryClient talks to the inventory service over HTTP.
type HTTPInventoryClient struct {
	client *resty.Client
}

// NewHTTPInventoryClient creates a new HTTPInventoryClient instance.
func NewHTTPInventoryClient(baseURL string, cfg ClientConfig) *HTTPInventoryClient {
	return &HTTPInventoryClient{client: newRestyClient(baseURL, cfg)}
}

type reserveResponse struct {
	Reserved  bool  `json:"reserved"`
	ProductID int64 `json:"product_id"`
	Remaining int   `json:"remaining"`
}

type releaseResponse struct {
	Released bool `json:"released"`
	Quantity int  `json:"quantity"`
}

// Reserve decrements stock for one line item. A reserved=false answer or any
// 4xx is a business rejection; exhausted retries surface as
// ErrUpstreamUnavailable.
func (c *HTTPInventoryClient) Reserve(ctx context.Context, productID int64, quantity int) error {
	var out reserveResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"product_id": productID, "quantity": quantity}).
		SetResult(&out).
		Post("/api/inventory/reserve")
	if err != nil {
		return fmt.Errorf("%w: inventory reserve: %v", ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode() >= 500 {
		return fmt.Errorf("%w: inventory reserve returned %d", ErrUpstreamUnavailable, resp.StatusCode())
	}
	if !resp.IsSuccess() || !out.Reserved {
		return fmt.Errorf("%w: product %d quantity %d", ErrInsufficientStock, productID, quantity)
	}
	return nil
}

// Release returns previously reserved quantity. Used for compensation only.
func (c *HTTPInventoryClient) Release(ctx context.Context, productID int64, quantity int) error {
	var out releaseResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"product_id": productID, "quantity": quantity}).
		SetResult(&out).
		Post("/api/inventory/release")
	if err != nil {
		return fmt.Errorf("%w: inventory release: %v", ErrUpstreamUnavailable, err)
	}
	if !resp.IsSuccess() || !out.Released {
		return fmt.Errorf("inventory release rejected for product %d: status %d", productID, resp.StatusCode())
	}
	return nil
}

// HTTPPaymentClient talks to the payments service over HTTP.
type HTTPPaymentClient struct {
	client *resty.Client
}

// NewHTTPPaymentClient creates a new HTTPPaymentClient instance.
func NewHTTPPaymentClient(baseURL string, cfg ClientConfig) *HTTPPaymentClient {
	return &HTTPPaymentClient{client: newRestyClient(baseURL, cfg)}
}

// Charge attempts the payment exactly once per saga run. 4xx answers are
// declines and never retried; 5xx and transport errors retry inside resty and
// then surface as ErrUpstreamUnavailable.
func (c *HTTPPaymentClient) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	var out ChargeResult
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/api/payments/charge")
	if err != nil {
		return nil, fmt.Errorf("%w: payment charge: %v", ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode() >= 500 {
		return nil, fmt.Errorf("%w: payment charge returned %d", ErrUpstreamUnavailable, resp.StatusCode())
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: order %d: status %d", ErrPaymentDeclined, req.OrderID, resp.StatusCode())
	}
	return &out, nil
}

// HTTPNotificationClient talks to the notifications service over HTTP.
type HTTPNotificationClient struct {
	client *resty.Client
}

// NewHTTPNotificationClient creates a new HTTPNotificationClient instance.
// Notifications get a short timeout and no retries: they are fire-and-forget.
func NewHTTPNotificationClient(baseURL string) *HTTPNotificationClient {
	return &HTTPNotificationClient{
		client: resty.New().SetBaseURL(baseURL).SetTimeout(3 * time.Second),
	}
}

// Send posts the notification and ignores the response body.
func (c *HTTPNotificationClient) Send(ctx context.Context, note Notification) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(note).
		Post("/api/notifications/send")
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		log.Printf("ℹ️ [NOTIFY] non-success response %d (ignored)", resp.StatusCode())
	}
	return nil
}

// Package payment talks to the Razorpay-compatible payment gateway.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/patisserie-labs/storefront/internal/httputil"
)

// Payment statuses reported by the gateway.
const (
	StatusCreated    = "created"
	StatusAuthorized = "authorized"
	StatusCaptured   = "captured"
	StatusFailed     = "failed"
	StatusRefunded   = "refunded"
)

// Webhook event names.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
)

// ErrInvalidSignature means a payment or webhook signature did not verify.
var ErrInvalidSignature = errors.New("invalid payment signature")

// Config holds gateway credentials.
type Config struct {
	BaseURL       string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// Order is a gateway order that a payment is collected against.
type Order struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Payment is a gateway payment.
type Payment struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	Method      string `json:"method"`
	Email       string `json:"email"`
	ErrorReason string `json:"error_description"`
}

// Paid reports whether the payment has been authorised or captured.
func (p Payment) Paid() bool {
	return p.Status == StatusCaptured || p.Status == StatusAuthorized
}

// WebhookEvent is the subset of a webhook body the storefront acts on.
type WebhookEvent struct {
	Event   string
	Payment Payment
}

// Client calls the gateway REST API with basic auth.
type Client struct {
	api           *httputil.APIClient
	keyID         string
	keySecret     []byte
	webhookSecret []byte
}

func New(cfg Config) (*Client, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, errors.New("payment key id and secret are required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.razorpay.com/v1"
	}
	retry := httputil.DefaultRetryConfig()
	api := httputil.NewAPIClient(httputil.APIClientConfig{
		BaseURL:    base,
		Username:   cfg.KeyID,
		Password:   cfg.KeySecret,
		Timeout:    cfg.Timeout,
		Retry:      &retry,
		HTTPClient: cfg.HTTPClient,
	})
	return &Client{
		api:           api,
		keyID:         cfg.KeyID,
		keySecret:     []byte(cfg.KeySecret),
		webhookSecret: []byte(cfg.WebhookSecret),
	}, nil
}

// KeyID is the public key the browser checkout widget needs.
func (c *Client) KeyID() string { return c.keyID }

// CreateOrder registers an order for amount minor units.
func (c *Client) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (Order, error) {
	if amount <= 0 {
		return Order{}, fmt.Errorf("order amount must be positive, got %d", amount)
	}
	body := map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		body["notes"] = notes
	}
	var out Order
	if err := c.api.DoJSON(ctx, http.MethodPost, "/orders", body, &out); err != nil {
		return Order{}, fmt.Errorf("create gateway order: %w", err)
	}
	if out.ID == "" {
		return Order{}, errors.New("create gateway order: response missing id")
	}
	return out, nil
}

// FetchPayment loads a payment by ID.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	if strings.TrimSpace(paymentID) == "" {
		return Payment{}, errors.New("payment id is required")
	}
	var out Payment
	if err := c.api.DoJSON(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &out); err != nil {
		return Payment{}, fmt.Errorf("fetch payment %s: %w", paymentID, err)
	}
	return out, nil
}

// VerifyPaymentSignature checks the signature returned to the browser after
// checkout: hex(HMAC-SHA256(order_id + "|" + payment_id, key secret)).
func (c *Client) VerifyPaymentSignature(orderID, paymentID, signature string) error {
	return verifyHMAC(c.keySecret, []byte(orderID+"|"+paymentID), signature)
}

// VerifyWebhookSignature checks X-Razorpay-Signature against the raw body.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) error {
	if len(c.webhookSecret) == 0 {
		return errors.New("webhook secret is not configured")
	}
	return verifyHMAC(c.webhookSecret, body, signature)
}

// ParseWebhook extracts the event name and payment entity from a webhook body.
func ParseWebhook(body []byte) (WebhookEvent, error) {
	if !gjson.ValidBytes(body) {
		return WebhookEvent{}, errors.New("webhook body is not valid JSON")
	}
	parsed := gjson.ParseBytes(body)
	event := parsed.Get("event").String()
	if event == "" {
		return WebhookEvent{}, errors.New("webhook event is missing")
	}
	entity := parsed.Get("payload.payment.entity")
	return WebhookEvent{
		Event: event,
		Payment: Payment{
			ID:          entity.Get("id").String(),
			OrderID:     entity.Get("order_id").String(),
			Amount:      entity.Get("amount").Int(),
			Currency:    entity.Get("currency").String(),
			Status:      entity.Get("status").String(),
			Method:      entity.Get("method").String(),
			Email:       entity.Get("email").String(),
			ErrorReason: entity.Get("error_description").String(),
		},
	}, nil
}

// Sign returns hex(HMAC-SHA256(payload, secret)).
func Sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyHMAC(secret, payload []byte, signature string) error {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) != sha256.Size {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), got) {
		return ErrInvalidSignature
	}
	return nil
}

// ErrNotConfigured is returned by Disabled for every call.
var ErrNotConfigured = errors.New("payment gateway is not configured")

// Disabled stands in for the gateway when no keys are configured so the rest
// of the storefront keeps working.
type Disabled struct{}

func (Disabled) KeyID() string { return "" }

func (Disabled) CreateOrder(context.Context, int64, string, string, map[string]string) (Order, error) {
	return Order{}, ErrNotConfigured
}

func (Disabled) FetchPayment(context.Context, string) (Payment, error) {
	return Payment{}, ErrNotConfigured
}

func (Disabled) VerifyPaymentSignature(string, string, string) error { return ErrNotConfigured }

func (Disabled) VerifyWebhookSignature([]byte, string) error { return ErrNotConfigured }

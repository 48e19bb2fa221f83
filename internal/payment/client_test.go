package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := New(Config{BaseURL: server.URL, KeyID: "rzp_test", KeySecret: "secret", WebhookSecret: "whsec"})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresKeys(t *testing.T) {
	_, err := New(Config{KeyID: "rzp_test"})
	assert.Error(t, err)
}

func TestClient_CreateOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test", user)
		assert.Equal(t, "secret", pass)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 123450, body["amount"])
		assert.Equal(t, "INR", body["currency"])
		assert.Equal(t, "sess-1", body["receipt"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "order_abc", "amount": 123450, "currency": "INR", "receipt": "sess-1", "status": "created",
		})
	})

	o, err := c.CreateOrder(context.Background(), 123450, "INR", "sess-1", map[string]string{"user_id": "u1"})
	require.NoError(t, err)
	assert.Equal(t, "order_abc", o.ID)
	assert.EqualValues(t, 123450, o.Amount)

	_, err = c.CreateOrder(context.Background(), 0, "INR", "sess-1", nil)
	assert.Error(t, err)
}

func TestClient_CreateOrderIsNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.CreateOrder(context.Background(), 5000, "INR", "sess-2", nil)
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "a lost response must not open a second gateway order")
}

func TestClient_FetchPayment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments/pay_1" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "pay_1", "order_id": "order_abc", "status": "captured", "method": "upi", "amount": 500,
		})
	})

	p, err := c.FetchPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.True(t, p.Paid())
	assert.Equal(t, "upi", p.Method)

	_, err = c.FetchPayment(context.Background(), "pay_missing")
	assert.Error(t, err)
}

func TestVerifyPaymentSignature(t *testing.T) {
	c, err := New(Config{KeyID: "k", KeySecret: "secret"})
	require.NoError(t, err)

	good := Sign([]byte("secret"), []byte("order_1|pay_1"))
	assert.NoError(t, c.VerifyPaymentSignature("order_1", "pay_1", good))
	assert.True(t, errors.Is(c.VerifyPaymentSignature("order_1", "pay_2", good), ErrInvalidSignature))
	assert.True(t, errors.Is(c.VerifyPaymentSignature("order_1", "pay_1", "zz"), ErrInvalidSignature))
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)

	c, err := New(Config{KeyID: "k", KeySecret: "secret"})
	require.NoError(t, err)
	assert.Error(t, c.VerifyWebhookSignature(body, Sign([]byte("whsec"), body)), "no webhook secret configured")

	c, err = New(Config{KeyID: "k", KeySecret: "secret", WebhookSecret: "whsec"})
	require.NoError(t, err)
	assert.NoError(t, c.VerifyWebhookSignature(body, Sign([]byte("whsec"), body)))
	assert.Error(t, c.VerifyWebhookSignature(append(body, ' '), Sign([]byte("whsec"), body)))
}

func TestParseWebhook(t *testing.T) {
	body := []byte(`{
		"entity": "event",
		"event": "payment.captured",
		"payload": {"payment": {"entity": {
			"id": "pay_1", "order_id": "order_abc", "amount": 123450,
			"currency": "INR", "status": "captured", "method": "card"
		}}}
	}`)
	evt, err := ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, EventPaymentCaptured, evt.Event)
	assert.Equal(t, "order_abc", evt.Payment.OrderID)
	assert.EqualValues(t, 123450, evt.Payment.Amount)

	_, err = ParseWebhook([]byte(`not json`))
	assert.Error(t, err)
	_, err = ParseWebhook([]byte(`{"payload":{}}`))
	assert.Error(t, err)
}

func TestDisabled(t *testing.T) {
	var gw Disabled
	if _, err := gw.CreateOrder(context.Background(), 100, "INR", "r", nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("CreateOrder() error = %v, want ErrNotConfigured", err)
	}
	if err := gw.VerifyWebhookSignature([]byte("{}"), "sig"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("VerifyWebhookSignature() error = %v", err)
	}
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/patisserie-labs/storefront/internal/app"
	"github.com/patisserie-labs/storefront/internal/app/domain/user"
	"github.com/patisserie-labs/storefront/internal/app/events"
	"github.com/patisserie-labs/storefront/internal/app/storage/memory"
	"github.com/patisserie-labs/storefront/internal/auth"
	"github.com/patisserie-labs/storefront/internal/mail"
	"github.com/patisserie-labs/storefront/internal/payment"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

const (
	testSecret    = "0123456789abcdef0123456789abcdef"
	gatewaySecret = "gateway-secret"
	webhookSecret = "webhook-secret"
)

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

type fakeGateway struct {
	mu       sync.Mutex
	orders   int
	payments map[string]payment.Payment
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

func (g *fakeGateway) CreateOrder(_ context.Context, amount int64, currency, receipt string, _ map[string]string) (payment.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders++
	return payment.Order{ID: "order_" + receipt, Amount: amount, Currency: currency, Receipt: receipt, Status: payment.StatusCreated}, nil
}

func (g *fakeGateway) FetchPayment(_ context.Context, id string) (payment.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.payments[id], nil
}

func (g *fakeGateway) VerifyPaymentSignature(orderID, paymentID, signature string) error {
	if payment.Sign([]byte(gatewaySecret), []byte(orderID+"|"+paymentID)) != signature {
		return payment.ErrInvalidSignature
	}
	return nil
}

func (g *fakeGateway) VerifyWebhookSignature(body []byte, signature string) error {
	if payment.Sign([]byte(webhookSecret), body) != signature {
		return payment.ErrInvalidSignature
	}
	return nil
}

type outbox struct {
	mu   sync.Mutex
	msgs []mail.Message
}

func (o *outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) lastCode(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.msgs, "no mail sent")
	m := codePattern.FindStringSubmatch(o.msgs[len(o.msgs)-1].Text)
	require.NotNil(t, m, "no code in mail")
	return m[1]
}

type testServer struct {
	app     *app.Application
	handler http.Handler
	store   *memory.Store
	gateway *fakeGateway
	outbox  *outbox
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	tokens, err := auth.NewTokenManager(testSecret, time.Hour)
	require.NoError(t, err)
	gw := &fakeGateway{payments: map[string]payment.Payment{}}
	box := &outbox{}

	application, err := app.New(app.Stores{
		Users: store, Categories: store, Products: store, Carts: store, Favorites: store,
		Coupons: store, Orders: store, Checkout: store, Payments: store, Banners: store,
		Reviews: store, Settings: store, OTPs: store, Reports: store,
	}, app.Options{
		Tokens:      tokens,
		Gateway:     gw,
		Mailer:      box,
		AdminEmails: map[string]bool{"chef@example.com": true},
	}, logger.NewDiscard())
	require.NoError(t, err)

	handler, err := NewHandler(application, Config{
		CORSOrigins: []string{"https://shop.example.com"},
		Logger:      logger.NewDiscard(),
	})
	require.NoError(t, err)
	return &testServer{app: application, handler: handler, store: store, gateway: gw, outbox: box}
}

func (s *testServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, _, err := s.app.Tokens.Issue(userID, userID+"@example.com", role)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dst), rr.Body.String())
}

// seedProduct creates a category and product through the admin API.
func (s *testServer) seedProduct(t *testing.T, admin string) (string, string) {
	t.Helper()
	rr := s.do(t, http.MethodPost, "/api/admin/categories", admin, map[string]any{"name": "Cakes"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var category struct {
		ID   string `json:"id"`
		Slug string `json:"slug"`
	}
	decodeBody(t, rr, &category)

	rr = s.do(t, http.MethodPost, "/api/admin/products", admin, map[string]any{
		"category_id": category.ID,
		"name":        "Opera Cake",
		"price":       "500",
		"stock":       5,
		"tags":        []string{"chocolate"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var product struct {
		ID   string `json:"id"`
		Slug string `json:"slug"`
	}
	decodeBody(t, rr, &product)
	return product.ID, product.Slug
}

func TestHealthAndNotFound(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Trace-ID"))

	rr = s.do(t, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), `"error"`)
}

func TestCatalog_PublicBrowse(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, "admin-1", user.RoleAdmin)
	_, slug := s.seedProduct(t, admin)
	assert.Equal(t, "opera-cake", slug)

	rr := s.do(t, http.MethodGet, "/api/products?q=opera&sort=price_asc", "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, publicCache, rr.Header().Get("Cache-Control"))
	var page struct {
		Products []map[string]any `json:"products"`
		Total    int              `json:"total"`
	}
	decodeBody(t, rr, &page)
	assert.Equal(t, 1, page.Total)

	rr = s.do(t, http.MethodGet, "/api/products/"+slug, "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/categories/cakes", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/products/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/products?min_price=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/products?sort=cheapest", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/api/admin/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/admin/orders", s.token(t, "user-1", user.RoleCustomer), nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/admin/orders", s.token(t, "admin-1", user.RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestOTPLoginFlow(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/auth/otp/request", "", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/auth/otp/request", "", map[string]string{"email": "Chef@Example.com"})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodPost, "/api/auth/otp/verify", "", map[string]string{"email": "chef@example.com", "code": "12345"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/auth/otp/verify", "", map[string]string{"email": "chef@example.com", "code": s.outbox.lastCode(t)})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "session cookie not set")
	assert.True(t, cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(cookie)
	me := httptest.NewRecorder()
	s.handler.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code, me.Body.String())
	var profile user.User
	decodeBody(t, me, &profile)
	assert.Equal(t, "chef@example.com", profile.Email)
	assert.Equal(t, user.RoleAdmin, profile.Role)

	rr = s.do(t, http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Contains(t, rr.Header().Get("Set-Cookie"), auth.CookieName+"=;")
}

func TestCart_SetQuantityIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	productID, _ := s.seedProduct(t, s.token(t, "admin-1", user.RoleAdmin))
	customer := s.token(t, "user-1", user.RoleCustomer)

	for i := 0; i < 2; i++ {
		rr := s.do(t, http.MethodPut, "/api/cart/items/"+productID, customer, map[string]int{"quantity": 2})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}

	rr := s.do(t, http.MethodGet, "/api/cart", customer, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var view struct {
		Lines []struct {
			Quantity int `json:"quantity"`
		} `json:"lines"`
		ItemCount int `json:"item_count"`
	}
	decodeBody(t, rr, &view)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 2, view.Lines[0].Quantity)
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	rr = s.do(t, http.MethodPost, "/api/cart/items", customer, map[string]any{"product_id": productID, "quantity": 0})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "quantity")

	rr = s.do(t, http.MethodPost, "/api/cart/items", customer, map[string]any{"product_id": productID, "quantity": 1, "gift": true})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodDelete, "/api/cart", customer, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestCheckoutFlow(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.app.Start(ctx))
	defer s.app.Stop(ctx)

	admin := s.token(t, "admin-1", user.RoleAdmin)
	productID, _ := s.seedProduct(t, admin)
	u, err := s.store.CreateUser(ctx, user.User{Email: "asha@example.com", Name: "Asha", Role: user.RoleCustomer})
	require.NoError(t, err)
	customer := s.token(t, u.ID, user.RoleCustomer)

	server := httptest.NewServer(s.handler)
	defer server.Close()
	header := http.Header{"Authorization": {"Bearer " + admin}}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/admin/orders/live", header)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.app.Events.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	rr := s.do(t, http.MethodPut, "/api/cart/items/"+productID, customer, map[string]int{"quantity": 2})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodPost, "/api/delivery/quote", customer, map[string]any{
		"destination": map[string]any{"zone": "central", "distance_km": 5},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var quote struct {
		Total decimal.Decimal `json:"total"`
	}
	decodeBody(t, rr, &quote)
	assert.True(t, quote.Total.Equal(decimal.NewFromInt(1236)), "total %s", quote.Total)

	address := map[string]any{
		"name": "Asha", "phone": "9800000000", "line1": "12 Baker St", "city": "Pune",
		"postal_code": "411001", "zone": "central", "distance_km": 5,
	}
	rr = s.do(t, http.MethodPost, "/api/checkout", customer, map[string]any{"notes": "x"})
	require.Equal(t, http.StatusBadRequest, rr.Code, "shipping address is required")

	rr = s.do(t, http.MethodPost, "/api/checkout", customer, map[string]any{"shipping_address": address})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var started struct {
		Session struct {
			ID             string `json:"id"`
			GatewayOrderID string `json:"gateway_order_id"`
		} `json:"session"`
		KeyID  string `json:"key_id"`
		Amount int64  `json:"amount"`
	}
	decodeBody(t, rr, &started)
	assert.Equal(t, int64(123600), started.Amount)
	assert.Equal(t, "rzp_test_key", started.KeyID)

	rr = s.do(t, http.MethodGet, "/api/checkout/"+started.Session.ID, s.token(t, "intruder", user.RoleCustomer), nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	s.gateway.mu.Lock()
	s.gateway.payments["pay_1"] = payment.Payment{ID: "pay_1", OrderID: started.Session.GatewayOrderID, Status: payment.StatusCaptured, Method: "upi"}
	s.gateway.mu.Unlock()
	verify := map[string]string{
		"razorpay_order_id":   started.Session.GatewayOrderID,
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "deadbeef",
	}
	rr = s.do(t, http.MethodPost, "/api/checkout/"+started.Session.ID+"/verify", customer, verify)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	verify["razorpay_signature"] = payment.Sign([]byte(gatewaySecret), []byte(started.Session.GatewayOrderID+"|pay_1"))
	rr = s.do(t, http.MethodPost, "/api/checkout/"+started.Session.ID+"/verify", customer, verify)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var placed struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeBody(t, rr, &placed)
	assert.Equal(t, "confirmed", placed.Status)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt events.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	assert.Equal(t, events.TypeOrderCreated, evt.Type)

	rr = s.do(t, http.MethodPost, "/api/checkout/"+started.Session.ID+"/verify", customer, verify)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), placed.ID)

	rr = s.do(t, http.MethodGet, "/api/orders", customer, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var history struct {
		Total int `json:"total"`
	}
	decodeBody(t, rr, &history)
	assert.Equal(t, 1, history.Total)

	rr = s.do(t, http.MethodPatch, "/api/admin/orders/"+placed.ID+"/status", admin, map[string]string{"status": "delivered"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	rr = s.do(t, http.MethodPatch, "/api/admin/orders/"+placed.ID+"/status", admin, map[string]string{"status": "preparing"})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/orders/"+placed.ID+"/cancel", customer, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/admin/reports/sales", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"order_count":1`)

	rr = s.do(t, http.MethodGet, "/api/admin/audit", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "/status")
}

func TestPaymentWebhook_RejectsBadSignature(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", strings.NewReader(`{"event":"payment.captured"}`))
	req.Header.Set("X-Razorpay-Signature", "bogus")
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/cart", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://shop.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestAdminSettings(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, "admin-1", user.RoleAdmin)

	rr := s.do(t, http.MethodPut, "/api/admin/settings/tax", admin, map[string]any{"gst_percent": 150})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPut, "/api/admin/settings/tax", admin, map[string]any{"gst_percent": "5"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodGet, "/api/admin/settings/tax", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var tax struct {
		GSTPercent decimal.Decimal `json:"gst_percent"`
	}
	decodeBody(t, rr, &tax)
	assert.True(t, tax.GSTPercent.Equal(decimal.NewFromInt(5)))
}

func TestAdminUpload_NotConfigured(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, "admin-1", user.RoleAdmin)

	var body bytes.Buffer
	body.WriteString("--b\r\nContent-Disposition: form-data; name=\"file\"; filename=\"a.png\"\r\nContent-Type: image/png\r\n\r\n\x89PNG\r\n\x1a\n\r\n--b--\r\n")
	req := httptest.NewRequest(http.MethodPost, "/api/admin/uploads", &body)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=b")
	req.Header.Set("Authorization", "Bearer "+admin)
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code, rr.Body.String())
}

package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/patisserie-labs/storefront/internal/app/domain/cart"
	"github.com/patisserie-labs/storefront/internal/app/domain/catalog"
	"github.com/patisserie-labs/storefront/internal/app/domain/order"
	"github.com/patisserie-labs/storefront/internal/app/storage"
	"github.com/patisserie-labs/storefront/supabase/client"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   string
}

func newTestStore(t *testing.T, handler func(w http.ResponseWriter, r recordedRequest)) (*Store, *[]recordedRequest) {
	t.Helper()
	var seen []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Header: r.Header, Body: string(body)}
		seen = append(seen, rec)
		handler(w, rec)
	}))
	t.Cleanup(server.Close)

	db, err := client.New(client.Config{URL: server.URL, APIKey: "service-key"})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	store := New(db)
	store.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }
	return store, &seen
}

func TestGetProduct_NotFound(t *testing.T) {
	store, seen := newTestStore(t, func(w http.ResponseWriter, r recordedRequest) {
		w.Write([]byte(`[]`))
	})

	_, err := store.GetProduct(context.Background(), "p-1")
	if !storage.IsNotFound(err) {
		t.Fatalf("GetProduct() error = %v, want not found", err)
	}
	req := (*seen)[0]
	if req.Path != "/rest/v1/products" || req.Query["id"][0] != "eq.p-1" || req.Query["limit"][0] != "1" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestListProducts_TranslatesFilter(t *testing.T) {
	store, seen := newTestStore(t, func(w http.ResponseWriter, r recordedRequest) {
		w.Header().Set("Content-Range", "0-0/7")
		w.Write([]byte(`[{"id":"p-1","name":"Opera","price":450,"sale_price":null,"stock":3,"active":true}]`))
	})

	min := decimal.NewFromInt(100)
	products, total, err := store.ListProducts(context.Background(), catalog.ProductFilter{
		CategoryID: "cat-1",
		Search:     "choc (dark)",
		MinPrice:   &min,
		InStock:    true,
		Sort:       catalog.SortPriceAsc,
		Offset:     10,
		Limit:      5,
	})
	if err != nil {
		t.Fatalf("ListProducts() error = %v", err)
	}
	if total != 7 || len(products) != 1 || !products[0].Price.Equal(decimal.NewFromInt(450)) {
		t.Fatalf("products = %+v, total = %d", products, total)
	}

	q := (*seen)[0].Query
	want := map[string]string{
		"active":      "eq.true",
		"category_id": "eq.cat-1",
		"stock":       "gt.0",
		"unit_price":  "gte.100",
		"or":          "(name.ilike.*choc dark*,description.ilike.*choc dark*,tags.cs.{choc dark})",
		"order":       "unit_price.asc,name.asc",
		"offset":      "10",
		"limit":       "5",
	}
	for key, v := range want {
		if got := q[key]; len(got) != 1 || got[0] != v {
			t.Errorf("%s = %v, want %q", key, got, v)
		}
	}
	if (*seen)[0].Header.Get("Prefer") != "count=exact" {
		t.Errorf("Prefer = %q", (*seen)[0].Header.Get("Prefer"))
	}
}

func TestCreateOrder_InsertsOrderThenItems(t *testing.T) {
	store, seen := newTestStore(t, func(w http.ResponseWriter, r recordedRequest) {
		w.WriteHeader(http.StatusCreated)
		switch r.Path {
		case "/rest/v1/orders":
			w.Write([]byte("[" + r.Body + "]"))
		case "/rest/v1/order_items":
			w.Write([]byte(r.Body))
		}
	})

	o, err := store.CreateOrder(context.Background(), order.Order{
		UserID:            "u-1",
		Status:            order.StatusConfirmed,
		Total:             decimal.RequireFromString("1236.00"),
		CheckoutSessionID: "sess-1",
		Items: []order.Item{
			{ProductID: "p-1", Name: "Opera", UnitPrice: decimal.NewFromInt(500), Quantity: 2, LineTotal: decimal.NewFromInt(1000)},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if len(*seen) != 2 {
		t.Fatalf("requests = %d, want 2", len(*seen))
	}

	var orderBody map[string]any
	if err := json.Unmarshal([]byte((*seen)[0].Body), &orderBody); err != nil {
		t.Fatalf("decode order body: %v", err)
	}
	if _, ok := orderBody["items"]; ok {
		t.Error("items must not be sent to the orders table")
	}
	if orderBody["coupon_code"] != nil {
		t.Errorf("empty coupon_code should be null, got %v", orderBody["coupon_code"])
	}
	if len(o.Items) != 1 || o.Items[0].OrderID != o.ID || o.Items[0].ID == "" {
		t.Fatalf("items not linked: %+v", o.Items)
	}
}

func TestCreateOrder_DuplicateSessionIsConflict(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, r recordedRequest) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint \"orders_checkout_session_id_key\""}`))
	})

	_, err := store.CreateOrder(context.Background(), order.Order{UserID: "u-1", CheckoutSessionID: "sess-1"})
	if !storage.IsConflict(err) {
		t.Fatalf("CreateOrder() error = %v, want conflict", err)
	}
}

func TestCreateOrder_RemovesOrderWhenItemsFail(t *testing.T) {
	store, seen := newTestStore(t, func(w http.ResponseWriter, r recordedRequest) {
		switch {
		case r.Path == "/rest/v1/orders" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte("[" + r.Body + "]"))
		case r.Path == "/rest/v1/order_items":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":"22P02","message":"invalid input"}`))
		default:
			w.Write([]byte(`[{"id":"x"}]`))
		}
	})

	_, err := store.CreateOrder(context.Background(), order.Order{UserID: "u-1", Items: []order.Item{{ProductID: "p-1", Quantity: 1}}})
	if err == nil {
		t.Fatal("expected error")
	}
	last := (*seen)[len(*seen)-1]
	if last.Method != http.MethodDelete || last.Path != "/rest/v1/orders" {
		t.Fatalf("expected cleanup delete, got %s %s", last.Method, last.Path)
	}
}

func TestAdjustStock(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"ok", http.StatusOK, `4`, func(err error) bool { return err == nil }},
		{"missing product", http.StatusOK, `null`, storage.IsNotFound},
		{"insufficient", http.StatusBadRequest, `{"code":"23514","message":"insufficient stock"}`, storage.IsConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, seen := newTestStore(t, func(w http.ResponseWriter, r recordedRequest) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})
			err := store.AdjustStock(context.Background(), "p-1", -2)
			if !tc.check(err) {
				t.Fatalf("AdjustStock() error = %v", err)
			}
			if (*seen)[0].Path != "/rest/v1/rpc/adjust_stock" || !strings.Contains((*seen)[0].Body, `"p_delta":-2`) {
				t.Fatalf("unexpected request %+v", (*seen)[0])
			}
		})
	}
}

func TestUpsertCartItem_IsKeyedByCartAndProduct(t *testing.T) {
	store, seen := newTestStore(t, func(w http.ResponseWriter, r recordedRequest) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("[" + r.Body + "]"))
	})

	item, err := store.UpsertCartItem(context.Background(), cart.Item{CartID: "c-1", ProductID: "p-1", Quantity: 3})
	if err != nil {
		t.Fatalf("UpsertCartItem() error = %v", err)
	}
	if item.Quantity != 3 {
		t.Fatalf("quantity = %d", item.Quantity)
	}
	req := (*seen)[0]
	if req.Query["on_conflict"][0] != "cart_id,product_id" {
		t.Errorf("on_conflict = %v", req.Query["on_conflict"])
	}
	if strings.Contains(req.Body, "created_at") {
		t.Errorf("created_at must be left to the column default: %s", req.Body)
	}
}

func TestExpireSessions(t *testing.T) {
	store, seen := newTestStore(t, func(w http.ResponseWriter, r recordedRequest) {
		w.Write([]byte(`[{"id":"s-1"},{"id":"s-2"}]`))
	})

	n, err := store.ExpireSessions(context.Background(), time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ExpireSessions() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("expired = %d, want 2", n)
	}
	req := (*seen)[0]
	if req.Method != http.MethodPatch || req.Query["status"][0] != "in.(pending,failed)" || req.Query["expires_at"][0] != "lte.2025-03-01T09:00:00Z" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestUpdateOrderStatus_ComparesCurrentStatus(t *testing.T) {
	store, seen := newTestStore(t, func(w http.ResponseWriter, r recordedRequest) {
		if r.Method == http.MethodPatch {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`[{"id":"o-1","user_id":"u-1","status":"cancelled"}]`))
	})

	_, err := store.UpdateOrderStatus(context.Background(), "o-1", order.StatusConfirmed, order.StatusCancelled)
	if !storage.IsConflict(err) {
		t.Fatalf("UpdateOrderStatus() error = %v, want conflict", err)
	}
	patch := (*seen)[0]
	if patch.Method != http.MethodPatch || patch.Query["status"][0] != "eq.confirmed" || patch.Query["id"][0] != "eq.o-1" {
		t.Fatalf("unexpected request %+v", patch)
	}
}

func TestUpdateOrderStatus_MissingOrder(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, r recordedRequest) {
		w.Write([]byte(`[]`))
	})

	_, err := store.UpdateOrderStatus(context.Background(), "o-9", order.StatusConfirmed, order.StatusPreparing)
	if !storage.IsNotFound(err) {
		t.Fatalf("UpdateOrderStatus() error = %v, want not found", err)
	}
}

func TestSalesSummary(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, r recordedRequest) {
		w.Write([]byte(`{"order_count":3,"revenue":2400.5,"average_order_value":1200.25,
			"orders_by_status":{"delivered":2,"cancelled":1},
			"top_products":[{"product_id":"p-1","name":"Opera","quantity":4,"revenue":"2000"}]}`))
	})

	since := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	summary, err := store.SalesSummary(context.Background(), since, 5)
	if err != nil {
		t.Fatalf("SalesSummary() error = %v", err)
	}
	if summary.OrderCount != 3 || !summary.Revenue.Equal(decimal.RequireFromString("2400.5")) {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if !summary.Since.Equal(since) || summary.OrdersByStatus["cancelled"] != 1 || len(summary.TopProducts) != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestDeleteCategory_StillReferenced(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, r recordedRequest) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"23503","message":"update or delete on table \"categories\" violates foreign key constraint"}`))
	})

	if err := store.DeleteCategory(context.Background(), "cat-1"); !storage.IsConflict(err) {
		t.Fatalf("DeleteCategory() error = %v, want conflict", err)
	}
}

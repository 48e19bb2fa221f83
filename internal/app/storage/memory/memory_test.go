package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patisserie-labs/storefront/internal/app/domain/cart"
	"github.com/patisserie-labs/storefront/internal/app/domain/catalog"
	"github.com/patisserie-labs/storefront/internal/app/domain/checkout"
	"github.com/patisserie-labs/storefront/internal/app/domain/order"
	"github.com/patisserie-labs/storefront/internal/app/domain/user"
	"github.com/patisserie-labs/storefront/internal/app/storage"
)

func TestStore_UserEmailUnique(t *testing.T) {
	ctx := context.Background()
	store := New()

	created, err := store.CreateUser(ctx, user.User{Email: "Baker@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, "baker@example.com", created.Email)

	_, err = store.CreateUser(ctx, user.User{Email: "baker@example.com"})
	assert.True(t, storage.IsConflict(err))

	got, err := store.GetUserByEmail(ctx, "BAKER@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestStore_CartUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := New()

	c, err := store.GetOrCreateCart(ctx, "u1")
	require.NoError(t, err)
	again, err := store.GetOrCreateCart(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, c.ID, again.ID)

	for i := 0; i < 2; i++ {
		_, err := store.UpsertCartItem(ctx, cart.Item{CartID: c.ID, ProductID: "p1", Quantity: 3})
		require.NoError(t, err)
	}
	items, err := store.ListCartItems(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)

	require.NoError(t, store.ClearCart(ctx, c.ID))
	items, err = store.ListCartItems(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStore_ListProductsFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	store := New()

	mk := func(name, slug string, price int64, stock int, active bool) {
		_, err := store.CreateProduct(ctx, catalog.Product{
			CategoryID: "cakes", Name: name, Slug: slug,
			Price: decimal.NewFromInt(price), Stock: stock, Active: active,
		})
		require.NoError(t, err)
	}
	mk("Opera Cake", "opera", 900, 4, true)
	mk("Eclair", "eclair", 150, 0, true)
	mk("Macaron Box", "macaron", 600, 10, true)
	mk("Hidden Tart", "hidden", 100, 10, false)

	products, total, err := store.ListProducts(ctx, catalog.ProductFilter{Sort: catalog.SortPriceAsc})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, "eclair", products[0].Slug)

	floor := decimal.NewFromInt(200)
	products, total, err = store.ListProducts(ctx, catalog.ProductFilter{InStock: true, MinPrice: &floor, Sort: catalog.SortPriceDesc})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "opera", products[0].Slug)

	products, _, err = store.ListProducts(ctx, catalog.ProductFilter{Search: "macaron"})
	require.NoError(t, err)
	require.Len(t, products, 1)

	_, total, err = store.ListProducts(ctx, catalog.ProductFilter{Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestStore_AdjustStockRejectsNegative(t *testing.T) {
	ctx := context.Background()
	store := New()
	p, err := store.CreateProduct(ctx, catalog.Product{Name: "Croissant", Slug: "croissant", Stock: 2, Active: true})
	require.NoError(t, err)

	require.NoError(t, store.AdjustStock(ctx, p.ID, -2))
	err = store.AdjustStock(ctx, p.ID, -1)
	assert.True(t, storage.IsConflict(err))
}

func TestStore_ExpireSessions(t *testing.T) {
	ctx := context.Background()
	store := New()
	now := time.Now().UTC()

	stale, err := store.CreateSession(ctx, checkout.Session{Status: checkout.StatusPending, ExpiresAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	fresh, err := store.CreateSession(ctx, checkout.Session{Status: checkout.StatusPending, ExpiresAt: now.Add(time.Minute)})
	require.NoError(t, err)
	failed, err := store.CreateSession(ctx, checkout.Session{Status: checkout.StatusFailed, ExpiresAt: now.Add(-time.Hour)})
	require.NoError(t, err)
	done, err := store.CreateSession(ctx, checkout.Session{Status: checkout.StatusCompleted, ExpiresAt: now.Add(-time.Hour)})
	require.NoError(t, err)

	n, err := store.ExpireSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, _ := store.GetSession(ctx, stale.ID)
	assert.Equal(t, checkout.StatusExpired, got.Status)
	got, _ = store.GetSession(ctx, failed.ID)
	assert.Equal(t, checkout.StatusExpired, got.Status)
	got, _ = store.GetSession(ctx, done.ID)
	assert.Equal(t, checkout.StatusCompleted, got.Status)
	got, _ = store.GetSession(ctx, fresh.ID)
	assert.Equal(t, checkout.StatusPending, got.Status)
}

func TestStore_SalesSummary(t *testing.T) {
	ctx := context.Background()
	store := New()
	since := time.Now().Add(-time.Hour)

	_, err := store.CreateOrder(ctx, order.Order{UserID: "u1", Status: order.StatusDelivered, Total: decimal.NewFromInt(300),
		Items: []order.Item{{ProductID: "p1", Name: "Eclair", Quantity: 2, LineTotal: decimal.NewFromInt(300)}}})
	require.NoError(t, err)
	_, err = store.CreateOrder(ctx, order.Order{UserID: "u2", Status: order.StatusConfirmed, Total: decimal.NewFromInt(100),
		Items: []order.Item{{ProductID: "p2", Name: "Tart", Quantity: 1, LineTotal: decimal.NewFromInt(100)}}})
	require.NoError(t, err)
	_, err = store.CreateOrder(ctx, order.Order{UserID: "u3", Status: order.StatusCancelled, Total: decimal.NewFromInt(999)})
	require.NoError(t, err)

	summary, err := store.SalesSummary(ctx, since, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.OrderCount)
	assert.True(t, summary.Revenue.Equal(decimal.NewFromInt(400)), summary.Revenue.String())
	assert.True(t, summary.AverageOrderValue.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, 1, summary.OrdersByStatus["cancelled"])
	require.Len(t, summary.TopProducts, 1)
	assert.Equal(t, "p1", summary.TopProducts[0].ProductID)
}

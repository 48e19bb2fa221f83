package carts

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patisserie-labs/storefront/internal/app/domain/catalog"
	domainpricing "github.com/patisserie-labs/storefront/internal/app/domain/pricing"
	"github.com/patisserie-labs/storefront/internal/app/services/pricing"
	"github.com/patisserie-labs/storefront/internal/app/storage/memory"
	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
)

func setup(t *testing.T) (*Service, *memory.Store, catalog.Product) {
	t.Helper()
	store := memory.New()
	quoter := pricing.New(store, domainpricing.TaxSettings{GSTPercent: decimal.NewFromInt(18)}, domainpricing.DeliverySettings{}, nil)
	p, err := store.CreateProduct(context.Background(), catalog.Product{
		Name: "Eclair", Slug: "eclair", Price: decimal.NewFromInt(120), SalePrice: decimal.NewNullDecimal(decimal.NewFromInt(100)),
		Stock: 10, Active: true,
	})
	require.NoError(t, err)
	return New(store, store, quoter, nil), store, p
}

func TestService_SetQuantityIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, p := setup(t)

	first, err := svc.SetQuantity(ctx, "u1", p.ID, 3)
	require.NoError(t, err)
	second, err := svc.SetQuantity(ctx, "u1", p.ID, 3)
	require.NoError(t, err)

	require.Len(t, second.Lines, 1)
	assert.Equal(t, 3, second.Lines[0].Quantity)
	assert.Equal(t, first.CartID, second.CartID)
	assert.True(t, second.Quote.Subtotal.Equal(decimal.NewFromInt(300)), second.Quote.Subtotal.String())
	assert.True(t, second.Quote.Tax.Equal(decimal.NewFromInt(54)))
	assert.True(t, second.Quote.Total.Equal(decimal.NewFromInt(354)))
}

func TestService_AddIncrements(t *testing.T) {
	ctx := context.Background()
	svc, _, p := setup(t)

	_, err := svc.Add(ctx, "u1", p.ID, 2)
	require.NoError(t, err)
	v, err := svc.Add(ctx, "u1", p.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, v.Lines[0].Quantity)
	assert.Equal(t, 5, v.ItemCount)

	_, err = svc.Add(ctx, "u1", p.ID, 6)
	assert.Equal(t, http.StatusBadRequest, svcerrors.HTTPStatus(err), "exceeds stock")
}

func TestService_Validation(t *testing.T) {
	ctx := context.Background()
	svc, store, p := setup(t)

	tests := []struct {
		name      string
		productID string
		qty       int
		status    int
	}{
		{"zero quantity", p.ID, 0, http.StatusBadRequest},
		{"above max", p.ID, 21, http.StatusBadRequest},
		{"unknown product", "missing", 1, http.StatusNotFound},
		{"empty product", "", 1, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SetQuantity(ctx, "u1", tc.productID, tc.qty)
			assert.Equal(t, tc.status, svcerrors.HTTPStatus(err))
		})
	}

	p.Active = false
	_, err := store.UpdateProduct(ctx, p)
	require.NoError(t, err)
	_, err = svc.SetQuantity(ctx, "u1", p.ID, 1)
	assert.Equal(t, http.StatusBadRequest, svcerrors.HTTPStatus(err))
}

func TestService_UnavailableLinesExcludedFromQuote(t *testing.T) {
	ctx := context.Background()
	svc, store, p := setup(t)

	_, err := svc.SetQuantity(ctx, "u1", p.ID, 2)
	require.NoError(t, err)
	p.Active = false
	_, err = store.UpdateProduct(ctx, p)
	require.NoError(t, err)

	v, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, v.Lines, 1)
	assert.False(t, v.Lines[0].Available)
	assert.True(t, v.Quote.Subtotal.IsZero())
	assert.Empty(t, v.AvailableLines())
}

func TestService_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	svc, _, p := setup(t)

	_, err := svc.SetQuantity(ctx, "u1", p.ID, 1)
	require.NoError(t, err)
	v, err := svc.Remove(ctx, "u1", p.ID)
	require.NoError(t, err)
	assert.Empty(t, v.Lines)

	_, err = svc.Remove(ctx, "u1", p.ID)
	require.NoError(t, err)

	_, err = svc.SetQuantity(ctx, "u1", p.ID, 1)
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, "u1"))
	v, err = svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, v.Lines)
}

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/patisserie-labs/storefront/internal/app"
	catalogsvc "github.com/patisserie-labs/storefront/internal/app/services/catalog"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

func TestSeed_DefaultCatalogueIsIdempotent(t *testing.T) {
	var data seedData
	require.NoError(t, yaml.Unmarshal(defaultSeed, &data))
	require.NotEmpty(t, data.Categories)

	application, err := app.New(app.Stores{}, app.Options{}, logger.NewDiscard())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, seed(ctx, application, data, logger.NewDiscard()))
	require.NoError(t, seed(ctx, application, data, logger.NewDiscard()))

	categories, err := application.Catalog.ListCategories(ctx, true)
	require.NoError(t, err)
	assert.Len(t, categories, len(data.Categories))

	page, err := application.Catalog.ListProducts(ctx, catalogsvc.ProductQuery{IncludeInactive: true, Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)

	croissant, err := application.Catalog.GetProduct(ctx, "pain-au-chocolat", false)
	require.NoError(t, err)
	assert.True(t, croissant.SalePrice.Valid)

	coupons, err := application.Coupons.List(ctx)
	require.NoError(t, err)
	require.Len(t, coupons, 1)
	assert.Equal(t, "WELCOME10", coupons[0].Code)
}

func TestSeedProduct_RejectsBadPrice(t *testing.T) {
	_, err := seedProduct{Name: "Eclair", Price: "cheap"}.toProduct("cat-1")
	assert.Error(t, err)
}

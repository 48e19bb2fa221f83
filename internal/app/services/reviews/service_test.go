package reviews

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patisserie-labs/storefront/internal/app/domain/catalog"
	"github.com/patisserie-labs/storefront/internal/app/domain/order"
	"github.com/patisserie-labs/storefront/internal/app/domain/review"
	"github.com/patisserie-labs/storefront/internal/app/domain/user"
	"github.com/patisserie-labs/storefront/internal/app/storage/memory"
	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

func setup(t *testing.T) (*Service, *memory.Store, catalog.Product) {
	t.Helper()
	store := memory.New()
	p, err := store.CreateProduct(context.Background(), catalog.Product{Name: "Opera", Slug: "opera", Price: decimal.NewFromInt(300), Stock: 5, Active: true})
	require.NoError(t, err)
	return New(store, store, store, store, logger.NewDiscard()), store, p
}

func TestService_SubmitValidation(t *testing.T) {
	svc, _, p := setup(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		productID string
		rating    int
		comment   string
		want      int
	}{
		{"rating too low", p.ID, 0, "", http.StatusBadRequest},
		{"rating too high", p.ID, 6, "", http.StatusBadRequest},
		{"comment too long", p.ID, 4, strings.Repeat("é", MaxCommentLength+1), http.StatusBadRequest},
		{"unknown product", "missing", 4, "", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, "u1", tc.productID, tc.rating, tc.comment)
			assert.Equal(t, tc.want, svcerrors.HTTPStatus(err))
		})
	}

	_, err := svc.Submit(ctx, "u1", p.ID, 5, strings.Repeat("é", MaxCommentLength))
	assert.NoError(t, err, "limit counts characters, not bytes")
}

func TestService_SubmitOncePerProduct(t *testing.T) {
	svc, store, p := setup(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, user.User{Email: "a@example.com", Name: "Asha", Role: user.RoleCustomer})
	require.NoError(t, err)

	r, err := svc.Submit(ctx, u.ID, p.ID, 4, "  flaky  ")
	require.NoError(t, err)
	assert.Equal(t, review.StatusPending, r.Status)
	assert.Equal(t, "flaky", r.Comment)
	assert.Equal(t, "Asha", r.UserName)
	assert.False(t, r.VerifiedPurchase)

	_, err = svc.Submit(ctx, u.ID, p.ID, 5, "again")
	assert.Equal(t, http.StatusConflict, svcerrors.HTTPStatus(err))
}

func TestService_VerifiedPurchase(t *testing.T) {
	svc, store, p := setup(t)
	ctx := context.Background()

	_, err := store.CreateOrder(ctx, order.Order{
		UserID: "buyer",
		Status: order.StatusDelivered,
		Items:  []order.Item{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	r, err := svc.Submit(ctx, "buyer", p.ID, 5, "")
	require.NoError(t, err)
	assert.True(t, r.VerifiedPurchase)
}

func TestService_ModerationRecomputesRating(t *testing.T) {
	svc, store, p := setup(t)
	ctx := context.Background()

	r1, err := svc.Submit(ctx, "u1", p.ID, 5, "")
	require.NoError(t, err)
	r2, err := svc.Submit(ctx, "u2", p.ID, 4, "")
	require.NoError(t, err)
	r3, err := svc.Submit(ctx, "u3", p.ID, 1, "")
	require.NoError(t, err)

	_, err = svc.Moderate(ctx, r1.ID, review.StatusApproved)
	require.NoError(t, err)
	_, err = svc.Moderate(ctx, r2.ID, review.StatusApproved)
	require.NoError(t, err)
	_, err = svc.Moderate(ctx, r3.ID, review.StatusRejected)
	require.NoError(t, err)

	got, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.5, got.Rating)
	assert.Equal(t, 2, got.ReviewCount)

	public, err := svc.ListApproved(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, public, 2)

	require.NoError(t, svc.Delete(ctx, r1.ID))
	got, err = store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, got.Rating)
	assert.Equal(t, 1, got.ReviewCount)

	_, err = svc.Moderate(ctx, r2.ID, "maybe")
	assert.Equal(t, http.StatusBadRequest, svcerrors.HTTPStatus(err))
	_, err = svc.Moderate(ctx, "missing", review.StatusApproved)
	assert.Equal(t, http.StatusNotFound, svcerrors.HTTPStatus(err))

	pending, err := svc.List(ctx, review.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

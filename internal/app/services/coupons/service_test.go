package coupons

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patisserie-labs/storefront/internal/app/domain/coupon"
	"github.com/patisserie-labs/storefront/internal/app/domain/order"
	"github.com/patisserie-labs/storefront/internal/app/storage/memory"
	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func reason(err error) interface{} {
	if se := svcerrors.GetServiceError(err); se != nil {
		return se.Details["reason"]
	}
	return nil
}

func TestDiscount(t *testing.T) {
	tests := []struct {
		name     string
		c        coupon.Coupon
		subtotal string
		want     string
	}{
		{"percent", coupon.Coupon{Type: coupon.TypePercent, Value: dec("10")}, "850", "85"},
		{"percent capped", coupon.Coupon{Type: coupon.TypePercent, Value: dec("50"), MaxDiscount: dec("200")}, "1000", "200"},
		{"flat", coupon.Coupon{Type: coupon.TypeFlat, Value: dec("150")}, "1000", "150"},
		{"flat capped at subtotal", coupon.Coupon{Type: coupon.TypeFlat, Value: dec("150")}, "99", "99"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Discount(tc.c, dec(tc.subtotal))
			assert.True(t, got.Equal(dec(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestService_CreateNormalisesAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil, nil)

	created, err := svc.Create(ctx, coupon.Coupon{Code: " sweet10 ", Type: coupon.TypePercent, Value: dec("10"), Active: true})
	require.NoError(t, err)
	assert.Equal(t, "SWEET10", created.Code)

	_, err = svc.Create(ctx, coupon.Coupon{Code: "Sweet10", Type: coupon.TypeFlat, Value: dec("5")})
	assert.Equal(t, http.StatusConflict, svcerrors.HTTPStatus(err))

	_, err = svc.Create(ctx, coupon.Coupon{Code: "BAD", Type: "bogo", Value: dec("1")})
	assert.Equal(t, http.StatusBadRequest, svcerrors.HTTPStatus(err))
}

func TestService_ValidateRules(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store, store, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	future := now.Add(24 * time.Hour)
	past := now.Add(-time.Hour)

	mk := func(c coupon.Coupon) {
		_, err := svc.Create(ctx, c)
		require.NoError(t, err)
	}
	mk(coupon.Coupon{Code: "OFF", Type: coupon.TypeFlat, Value: dec("50"), Active: false})
	mk(coupon.Coupon{Code: "SOON", Type: coupon.TypeFlat, Value: dec("50"), Active: true, StartsAt: &future})
	mk(coupon.Coupon{Code: "OLD", Type: coupon.TypeFlat, Value: dec("50"), Active: true, EndsAt: &past})
	mk(coupon.Coupon{Code: "BIG", Type: coupon.TypeFlat, Value: dec("50"), Active: true, MinOrderAmount: dec("500")})
	mk(coupon.Coupon{Code: "ONCE", Type: coupon.TypePercent, Value: dec("20"), Active: true, PerUserLimit: 1})
	mk(coupon.Coupon{Code: "LIMITED", Type: coupon.TypeFlat, Value: dec("10"), Active: true, UsageLimit: 1})

	cases := map[string]string{
		"NOPE": "not_found",
		"OFF":  "inactive",
		"SOON": "not_started",
		"OLD":  "expired",
		"BIG":  "below_minimum",
	}
	for code, want := range cases {
		_, err := svc.Validate(ctx, code, "u1", dec("200"))
		assert.Equal(t, http.StatusBadRequest, svcerrors.HTTPStatus(err), code)
		assert.Equal(t, want, reason(err), code)
	}

	res, err := svc.Validate(ctx, "once", "u1", dec("200"))
	require.NoError(t, err)
	assert.True(t, res.Discount.Equal(dec("40")))

	_, err = store.CreateOrder(ctx, order.Order{UserID: "u1", CouponCode: "ONCE", Status: order.StatusConfirmed})
	require.NoError(t, err)
	_, err = svc.Validate(ctx, "ONCE", "u1", dec("200"))
	assert.Equal(t, "user_limit", reason(err))

	require.NoError(t, svc.RecordUsage(ctx, "limited"))
	_, err = svc.Validate(ctx, "LIMITED", "u2", dec("200"))
	assert.Equal(t, "usage_exhausted", reason(err))
}

func TestService_UpdateKeepsUsage(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil, nil)
	c, err := svc.Create(ctx, coupon.Coupon{Code: "KEEP", Type: coupon.TypeFlat, Value: dec("10"), Active: true})
	require.NoError(t, err)
	require.NoError(t, svc.RecordUsage(ctx, "KEEP"))

	updated, err := svc.Update(ctx, c.ID, coupon.Coupon{Code: "KEEP", Type: coupon.TypeFlat, Value: dec("20"), Active: true, UsedCount: 99})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.UsedCount)
	assert.True(t, updated.Value.Equal(dec("20")))

	_, err = svc.Update(ctx, "missing", coupon.Coupon{Code: "X", Type: coupon.TypeFlat, Value: dec("1")})
	assert.Equal(t, http.StatusNotFound, svcerrors.HTTPStatus(err))
}

package coupons

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/patisserie-labs/storefront/internal/app/domain/coupon"
	"github.com/patisserie-labs/storefront/internal/app/storage"
	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

// Service manages discount codes and evaluates them against carts.
type Service struct {
	store  storage.CouponStore
	orders storage.OrderStore
	log    *logger.Logger
	now    func() time.Time
}

// New constructs a coupon service. orders may be nil, which disables
// per-user limits.
func New(store storage.CouponStore, orders storage.OrderStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("coupons")
	}
	return &Service{store: store, orders: orders, log: log, now: time.Now}
}

// Result is the outcome of applying a coupon to a subtotal.
type Result struct {
	Coupon   coupon.Coupon   `json:"coupon"`
	Discount decimal.Decimal `json:"discount"`
}

// NormalizeCode upper-cases and trims a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create registers a new coupon.
func (s *Service) Create(ctx context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	c.Code = NormalizeCode(c.Code)
	c.UsedCount = 0
	if err := validate(c); err != nil {
		return coupon.Coupon{}, err
	}
	created, err := s.store.CreateCoupon(ctx, c)
	if err != nil {
		return coupon.Coupon{}, storage.ServiceError(err, "coupon", c.Code)
	}
	s.log.WithContext(ctx).WithField("coupon_id", created.ID).
		WithField("code", created.Code).
		Info("coupon created")
	return created, nil
}

// Update replaces the mutable fields of a coupon. Usage counters are kept.
func (s *Service) Update(ctx context.Context, id string, c coupon.Coupon) (coupon.Coupon, error) {
	existing, err := s.store.GetCoupon(ctx, id)
	if err != nil {
		return coupon.Coupon{}, storage.ServiceError(err, "coupon", id)
	}
	c.ID = id
	c.Code = NormalizeCode(c.Code)
	c.UsedCount = existing.UsedCount
	if err := validate(c); err != nil {
		return coupon.Coupon{}, err
	}
	updated, err := s.store.UpdateCoupon(ctx, c)
	if err != nil {
		return coupon.Coupon{}, storage.ServiceError(err, "coupon", id)
	}
	s.log.WithContext(ctx).WithField("coupon_id", id).Info("coupon updated")
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id string) (coupon.Coupon, error) {
	c, err := s.store.GetCoupon(ctx, id)
	return c, storage.ServiceError(err, "coupon", id)
}

func (s *Service) List(ctx context.Context) ([]coupon.Coupon, error) {
	return s.store.ListCoupons(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteCoupon(ctx, id); err != nil {
		return storage.ServiceError(err, "coupon", id)
	}
	s.log.WithContext(ctx).WithField("coupon_id", id).Info("coupon deleted")
	return nil
}

// Validate checks that code is usable by userID for subtotal and returns the
// discount it grants.
func (s *Service) Validate(ctx context.Context, code, userID string, subtotal decimal.Decimal) (Result, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Result{}, svcerrors.Validation("code", "coupon code is required")
	}
	c, err := s.store.GetCouponByCode(ctx, code)
	if storage.IsNotFound(err) {
		return Result{}, svcerrors.BadRequest("coupon code is not valid").WithDetails("reason", "not_found")
	}
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	reject := func(reason, message string) (Result, error) {
		return Result{}, svcerrors.BadRequest(message).WithDetails("reason", reason)
	}
	switch {
	case !c.Active:
		return reject("inactive", "coupon is not active")
	case c.StartsAt != nil && now.Before(*c.StartsAt):
		return reject("not_started", "coupon is not valid yet")
	case c.EndsAt != nil && !now.Before(*c.EndsAt):
		return reject("expired", "coupon has expired")
	case c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit:
		return reject("usage_exhausted", "coupon usage limit reached")
	case subtotal.LessThan(c.MinOrderAmount):
		return reject("below_minimum", "order total is below the coupon minimum of "+c.MinOrderAmount.StringFixed(2))
	}

	if c.PerUserLimit > 0 && s.orders != nil && userID != "" {
		used, err := s.orders.CountUserCouponOrders(ctx, userID, c.Code)
		if err != nil {
			return Result{}, err
		}
		if used >= c.PerUserLimit {
			return reject("user_limit", "coupon already used")
		}
	}

	return Result{Coupon: c, Discount: Discount(c, subtotal)}, nil
}

// RecordUsage bumps the usage counter after a successful payment.
func (s *Service) RecordUsage(ctx context.Context, code string) error {
	c, err := s.store.GetCouponByCode(ctx, NormalizeCode(code))
	if err != nil {
		return storage.ServiceError(err, "coupon", code)
	}
	if err := s.store.IncrementCouponUsage(ctx, c.ID); err != nil {
		return err
	}
	s.log.WithContext(ctx).WithField("code", c.Code).Info("coupon redeemed")
	return nil
}

// Discount computes the discount granted by c on subtotal. Percent
// discounts are capped by MaxDiscount when set; every discount is capped at
// the subtotal.
func Discount(c coupon.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.Type {
	case coupon.TypePercent:
		amount = subtotal.Mul(c.Value).Div(decimal.NewFromInt(100))
		if c.MaxDiscount.IsPositive() && amount.GreaterThan(c.MaxDiscount) {
			amount = c.MaxDiscount
		}
	case coupon.TypeFlat:
		amount = c.Value
	}
	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}
	return amount.Round(2)
}

func validate(c coupon.Coupon) error {
	if c.Code == "" {
		return svcerrors.Validation("code", "code is required")
	}
	if len(c.Code) > 32 || strings.ContainsAny(c.Code, " \t") {
		return svcerrors.Validation("code", "code must be at most 32 characters without spaces")
	}
	switch c.Type {
	case coupon.TypePercent:
		if !c.Value.IsPositive() || c.Value.GreaterThan(decimal.NewFromInt(100)) {
			return svcerrors.Validation("value", "percent value must be between 0 and 100")
		}
	case coupon.TypeFlat:
		if !c.Value.IsPositive() {
			return svcerrors.Validation("value", "flat value must be positive")
		}
	default:
		return svcerrors.Validation("type", "type must be percent or flat")
	}
	if c.MaxDiscount.IsNegative() || c.MinOrderAmount.IsNegative() {
		return svcerrors.Validation("max_discount", "amounts must not be negative")
	}
	if c.UsageLimit < 0 || c.PerUserLimit < 0 {
		return svcerrors.Validation("usage_limit", "limits must not be negative")
	}
	if c.StartsAt != nil && c.EndsAt != nil && !c.EndsAt.After(*c.StartsAt) {
		return svcerrors.Validation("ends_at", "ends_at must be after starts_at")
	}
	return nil
}

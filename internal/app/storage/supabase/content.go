package supabase

import (
	"context"

	"github.com/google/uuid"

	"github.com/patisserie-labs/storefront/internal/app/domain/banner"
	"github.com/patisserie-labs/storefront/internal/app/domain/coupon"
	"github.com/patisserie-labs/storefront/internal/app/domain/review"
	"github.com/patisserie-labs/storefront/internal/app/storage"
)

// --- CouponStore ------------------------------------------------------------

func (s *Store) CreateCoupon(ctx context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	return insertOne[coupon.Coupon](ctx, s.db.From("coupons"), c, "coupon", c.Code)
}

func (s *Store) UpdateCoupon(ctx context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	c.UpdatedAt = s.now()
	// used_count only moves through IncrementCouponUsage.
	row, err := toRow(c, "id", "created_at", "used_count")
	if err != nil {
		return coupon.Coupon{}, err
	}
	return updateOne[coupon.Coupon](ctx, s.db.From("coupons").Eq("id", c.ID), row, "coupon", c.ID)
}

func (s *Store) GetCoupon(ctx context.Context, id string) (coupon.Coupon, error) {
	return selectOne[coupon.Coupon](ctx, s.db.From("coupons").Select("*").Eq("id", id), "coupon", id)
}

// GetCouponByCode matches case-insensitively; codes are alphanumeric so the
// pattern carries no wildcards.
func (s *Store) GetCouponByCode(ctx context.Context, code string) (coupon.Coupon, error) {
	return selectOne[coupon.Coupon](ctx, s.db.From("coupons").Select("*").ILike("code", code), "coupon", code)
}

func (s *Store) ListCoupons(ctx context.Context) ([]coupon.Coupon, error) {
	return selectRows[coupon.Coupon](ctx, s.db.From("coupons").Select("*").Order("code", true))
}

func (s *Store) DeleteCoupon(ctx context.Context, id string) error {
	n, err := deleteRows(ctx, s.db.From("coupons").Eq("id", id))
	if err != nil {
		return translate(err, "coupon", id)
	}
	if n == 0 {
		return storage.NotFound("coupon", id)
	}
	return nil
}

func (s *Store) IncrementCouponUsage(ctx context.Context, id string) error {
	var used *int
	if err := s.rpc(ctx, "increment_coupon_usage", map[string]any{"p_coupon_id": id}, &used); err != nil {
		return translate(err, "coupon", id)
	}
	if used == nil {
		return storage.NotFound("coupon", id)
	}
	return nil
}

// --- BannerStore ------------------------------------------------------------

func (s *Store) CreateBanner(ctx context.Context, b banner.Banner) (banner.Banner, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := s.now()
	b.CreatedAt = now
	b.UpdatedAt = now
	return insertOne[banner.Banner](ctx, s.db.From("banners"), b, "banner", b.ID)
}

func (s *Store) UpdateBanner(ctx context.Context, b banner.Banner) (banner.Banner, error) {
	b.UpdatedAt = s.now()
	row, err := toRow(b, "id", "created_at")
	if err != nil {
		return banner.Banner{}, err
	}
	return updateOne[banner.Banner](ctx, s.db.From("banners").Eq("id", b.ID), row, "banner", b.ID)
}

func (s *Store) GetBanner(ctx context.Context, id string) (banner.Banner, error) {
	return selectOne[banner.Banner](ctx, s.db.From("banners").Select("*").Eq("id", id), "banner", id)
}

func (s *Store) ListBanners(ctx context.Context) ([]banner.Banner, error) {
	return selectRows[banner.Banner](ctx, s.db.From("banners").Select("*").Order("position", true).Order("title", true))
}

func (s *Store) DeleteBanner(ctx context.Context, id string) error {
	n, err := deleteRows(ctx, s.db.From("banners").Eq("id", id))
	if err != nil {
		return translate(err, "banner", id)
	}
	if n == 0 {
		return storage.NotFound("banner", id)
	}
	return nil
}

// --- ReviewStore ------------------------------------------------------------

func (s *Store) CreateReview(ctx context.Context, r review.Review) (review.Review, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := s.now()
	r.CreatedAt = now
	r.UpdatedAt = now
	return insertOne[review.Review](ctx, s.db.From("reviews"), r, "review", r.ProductID)
}

func (s *Store) UpdateReview(ctx context.Context, r review.Review) (review.Review, error) {
	r.UpdatedAt = s.now()
	row, err := toRow(r, "id", "created_at")
	if err != nil {
		return review.Review{}, err
	}
	return updateOne[review.Review](ctx, s.db.From("reviews").Eq("id", r.ID), row, "review", r.ID)
}

func (s *Store) GetReview(ctx context.Context, id string) (review.Review, error) {
	return selectOne[review.Review](ctx, s.db.From("reviews").Select("*").Eq("id", id), "review", id)
}

func (s *Store) ListReviews(ctx context.Context, f review.ListFilter) ([]review.Review, error) {
	q := s.db.From("reviews").Select("*")
	if f.ProductID != "" {
		q = q.Eq("product_id", f.ProductID)
	}
	if f.UserID != "" {
		q = q.Eq("user_id", f.UserID)
	}
	if f.Status != "" {
		q = q.Eq("status", f.Status)
	}
	return selectRows[review.Review](ctx, q.Order("created_at", false))
}

func (s *Store) DeleteReview(ctx context.Context, id string) error {
	n, err := deleteRows(ctx, s.db.From("reviews").Eq("id", id))
	if err != nil {
		return translate(err, "review", id)
	}
	if n == 0 {
		return storage.NotFound("review", id)
	}
	return nil
}

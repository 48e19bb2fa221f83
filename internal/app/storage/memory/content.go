package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/patisserie-labs/storefront/internal/app/domain/banner"
	"github.com/patisserie-labs/storefront/internal/app/domain/coupon"
	"github.com/patisserie-labs/storefront/internal/app/domain/order"
	"github.com/patisserie-labs/storefront/internal/app/domain/report"
	"github.com/patisserie-labs/storefront/internal/app/domain/review"
	"github.com/patisserie-labs/storefront/internal/app/storage"
)

// CouponStore implementation ---------------------------------------------------

func (s *Store) CreateCoupon(_ context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.couponCodeTakenLocked(c.Code, "") {
		return coupon.Coupon{}, storage.Conflict("coupon code %s already exists", c.Code)
	}
	if c.ID == "" {
		c.ID = newID()
	}
	now := s.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	c = cloneCoupon(c)
	s.coupons[c.ID] = c
	return cloneCoupon(c), nil
}

func (s *Store) UpdateCoupon(_ context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.coupons[c.ID]
	if !ok {
		return coupon.Coupon{}, storage.NotFound("coupon", c.ID)
	}
	if s.couponCodeTakenLocked(c.Code, c.ID) {
		return coupon.Coupon{}, storage.Conflict("coupon code %s already exists", c.Code)
	}
	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = s.now()
	c = cloneCoupon(c)
	s.coupons[c.ID] = c
	return cloneCoupon(c), nil
}

func (s *Store) GetCoupon(_ context.Context, id string) (coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.coupons[id]
	if !ok {
		return coupon.Coupon{}, storage.NotFound("coupon", id)
	}
	return cloneCoupon(c), nil
}

func (s *Store) GetCouponByCode(_ context.Context, code string) (coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.coupons {
		if strings.EqualFold(c.Code, code) {
			return cloneCoupon(c), nil
		}
	}
	return coupon.Coupon{}, storage.NotFound("coupon", code)
}

func (s *Store) ListCoupons(context.Context) ([]coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]coupon.Coupon, 0, len(s.coupons))
	for _, c := range s.coupons {
		out = append(out, cloneCoupon(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) DeleteCoupon(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.coupons[id]; !ok {
		return storage.NotFound("coupon", id)
	}
	delete(s.coupons, id)
	return nil
}

func (s *Store) IncrementCouponUsage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[id]
	if !ok {
		return storage.NotFound("coupon", id)
	}
	c.UsedCount++
	c.UpdatedAt = s.now()
	s.coupons[id] = c
	return nil
}

func (s *Store) couponCodeTakenLocked(code, exceptID string) bool {
	for id, c := range s.coupons {
		if strings.EqualFold(c.Code, code) && id != exceptID {
			return true
		}
	}
	return false
}

func cloneCoupon(c coupon.Coupon) coupon.Coupon {
	c.StartsAt = cloneTime(c.StartsAt)
	c.EndsAt = cloneTime(c.EndsAt)
	return c
}

// BannerStore implementation ---------------------------------------------------

func (s *Store) CreateBanner(_ context.Context, b banner.Banner) (banner.Banner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = newID()
	}
	now := s.now()
	b.CreatedAt = now
	b.UpdatedAt = now
	b = cloneBanner(b)
	s.banners[b.ID] = b
	return cloneBanner(b), nil
}

func (s *Store) UpdateBanner(_ context.Context, b banner.Banner) (banner.Banner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.banners[b.ID]
	if !ok {
		return banner.Banner{}, storage.NotFound("banner", b.ID)
	}
	b.CreatedAt = original.CreatedAt
	b.UpdatedAt = s.now()
	b = cloneBanner(b)
	s.banners[b.ID] = b
	return cloneBanner(b), nil
}

func (s *Store) GetBanner(_ context.Context, id string) (banner.Banner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.banners[id]
	if !ok {
		return banner.Banner{}, storage.NotFound("banner", id)
	}
	return cloneBanner(b), nil
}

func (s *Store) ListBanners(context.Context) ([]banner.Banner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]banner.Banner, 0, len(s.banners))
	for _, b := range s.banners {
		out = append(out, cloneBanner(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

func (s *Store) DeleteBanner(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.banners[id]; !ok {
		return storage.NotFound("banner", id)
	}
	delete(s.banners, id)
	return nil
}

func cloneBanner(b banner.Banner) banner.Banner {
	b.StartsAt = cloneTime(b.StartsAt)
	b.EndsAt = cloneTime(b.EndsAt)
	return b
}

// ReviewStore implementation ---------------------------------------------------

func (s *Store) CreateReview(_ context.Context, r review.Review) (review.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.reviews {
		if existing.ProductID == r.ProductID && existing.UserID == r.UserID {
			return review.Review{}, storage.Conflict("user %s already reviewed product %s", r.UserID, r.ProductID)
		}
	}
	if r.ID == "" {
		r.ID = newID()
	}
	now := s.now()
	r.CreatedAt = now
	r.UpdatedAt = now
	s.reviews[r.ID] = r
	return r, nil
}

func (s *Store) UpdateReview(_ context.Context, r review.Review) (review.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.reviews[r.ID]
	if !ok {
		return review.Review{}, storage.NotFound("review", r.ID)
	}
	r.CreatedAt = original.CreatedAt
	r.UpdatedAt = s.now()
	s.reviews[r.ID] = r
	return r, nil
}

func (s *Store) GetReview(_ context.Context, id string) (review.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reviews[id]
	if !ok {
		return review.Review{}, storage.NotFound("review", id)
	}
	return r, nil
}

func (s *Store) ListReviews(_ context.Context, f review.ListFilter) ([]review.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]review.Review, 0)
	for _, r := range s.reviews {
		if f.ProductID != "" && r.ProductID != f.ProductID {
			continue
		}
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteReview(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reviews[id]; !ok {
		return storage.NotFound("review", id)
	}
	delete(s.reviews, id)
	return nil
}

// ReportStore implementation ---------------------------------------------------

func (s *Store) SalesSummary(_ context.Context, since time.Time, topN int) (report.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := report.SalesSummary{
		Since:          since,
		Revenue:        decimal.Zero,
		OrdersByStatus: make(map[string]int),
	}
	byProduct := make(map[string]*report.ProductSales)
	paid := 0
	for _, o := range s.orders {
		if o.CreatedAt.Before(since) {
			continue
		}
		summary.OrderCount++
		summary.OrdersByStatus[string(o.Status)]++
		if o.Status == order.StatusCancelled {
			continue
		}
		paid++
		summary.Revenue = summary.Revenue.Add(o.Total)
		for _, item := range o.Items {
			ps := byProduct[item.ProductID]
			if ps == nil {
				ps = &report.ProductSales{ProductID: item.ProductID, Name: item.Name, Revenue: decimal.Zero}
				byProduct[item.ProductID] = ps
			}
			ps.Quantity += item.Quantity
			ps.Revenue = ps.Revenue.Add(item.LineTotal)
		}
	}
	if paid > 0 {
		summary.AverageOrderValue = summary.Revenue.Div(decimal.NewFromInt(int64(paid))).Round(2)
	}

	top := make([]report.ProductSales, 0, len(byProduct))
	for _, ps := range byProduct {
		top = append(top, *ps)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Quantity != top[j].Quantity {
			return top[i].Quantity > top[j].Quantity
		}
		return top[i].Name < top[j].Name
	})
	if topN > 0 && len(top) > topN {
		top = top[:topN]
	}
	summary.TopProducts = top
	return summary, nil
}

package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/patisserie-labs/storefront/internal/app/domain/banner"
	"github.com/patisserie-labs/storefront/internal/app/domain/cart"
	"github.com/patisserie-labs/storefront/internal/app/domain/catalog"
	"github.com/patisserie-labs/storefront/internal/app/domain/checkout"
	"github.com/patisserie-labs/storefront/internal/app/domain/coupon"
	"github.com/patisserie-labs/storefront/internal/app/domain/order"
	"github.com/patisserie-labs/storefront/internal/app/domain/pricing"
	"github.com/patisserie-labs/storefront/internal/app/domain/review"
	"github.com/patisserie-labs/storefront/internal/app/domain/user"
	"github.com/patisserie-labs/storefront/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu         sync.RWMutex
	users      map[string]user.User
	categories map[string]catalog.Category
	products   map[string]catalog.Product
	carts      map[string]cart.Cart // keyed by user ID
	cartItems  map[string]map[string]cart.Item
	favorites  map[string]map[string]catalog.Favorite
	coupons    map[string]coupon.Coupon
	orders     map[string]order.Order
	payments   map[string][]order.Payment
	sessions   map[string]checkout.Session
	banners    map[string]banner.Banner
	reviews    map[string]review.Review
	otps       map[string]user.OTP
	tax        *pricing.TaxSettings
	delivery   *pricing.DeliverySettings
	now        func() time.Time
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.CategoryStore = (*Store)(nil)
var _ storage.ProductStore = (*Store)(nil)
var _ storage.CartStore = (*Store)(nil)
var _ storage.FavoriteStore = (*Store)(nil)
var _ storage.CouponStore = (*Store)(nil)
var _ storage.OrderStore = (*Store)(nil)
var _ storage.CheckoutStore = (*Store)(nil)
var _ storage.PaymentStore = (*Store)(nil)
var _ storage.BannerStore = (*Store)(nil)
var _ storage.ReviewStore = (*Store)(nil)
var _ storage.SettingsStore = (*Store)(nil)
var _ storage.OTPStore = (*Store)(nil)
var _ storage.ReportStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:      make(map[string]user.User),
		categories: make(map[string]catalog.Category),
		products:   make(map[string]catalog.Product),
		carts:      make(map[string]cart.Cart),
		cartItems:  make(map[string]map[string]cart.Item),
		favorites:  make(map[string]map[string]catalog.Favorite),
		coupons:    make(map[string]coupon.Coupon),
		orders:     make(map[string]order.Order),
		payments:   make(map[string][]order.Payment),
		sessions:   make(map[string]checkout.Session),
		banners:    make(map[string]banner.Banner),
		reviews:    make(map[string]review.Review),
		otps:       make(map[string]user.OTP),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func newID() string { return uuid.NewString() }

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// UserStore implementation -----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(u.Email)
	for _, existing := range s.users {
		if strings.ToLower(existing.Email) == email {
			return user.User{}, storage.Conflict("user email %s already exists", u.Email)
		}
	}
	if u.ID == "" {
		u.ID = newID()
	}
	now := s.now()
	u.Email = email
	u.CreatedAt = now
	u.UpdatedAt = now
	u.DefaultAddress = cloneAddress(u.DefaultAddress)
	s.users[u.ID] = u
	return cloneUser(u), nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[u.ID]
	if !ok {
		return user.User{}, storage.NotFound("user", u.ID)
	}
	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = s.now()
	u.DefaultAddress = cloneAddress(u.DefaultAddress)
	s.users[u.ID] = u
	return cloneUser(u), nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.NotFound("user", id)
	}
	return cloneUser(u), nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return user.User{}, storage.NotFound("user", email)
}

func (s *Store) ListUsers(_ context.Context, offset, limit int) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, offset, limit), nil
}

// SettingsStore implementation -------------------------------------------------

func (s *Store) GetTaxSettings(context.Context) (pricing.TaxSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tax == nil {
		return pricing.TaxSettings{}, storage.NotFound("tax_settings", "default")
	}
	return *s.tax, nil
}

func (s *Store) SaveTaxSettings(_ context.Context, t pricing.TaxSettings) (pricing.TaxSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.UpdatedAt = s.now()
	s.tax = &t
	return t, nil
}

func (s *Store) GetDeliverySettings(context.Context) (pricing.DeliverySettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.delivery == nil {
		return pricing.DeliverySettings{}, storage.NotFound("delivery_settings", "default")
	}
	return cloneDelivery(*s.delivery), nil
}

func (s *Store) SaveDeliverySettings(_ context.Context, d pricing.DeliverySettings) (pricing.DeliverySettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d = cloneDelivery(d)
	d.UpdatedAt = s.now()
	s.delivery = &d
	return cloneDelivery(d), nil
}

// OTPStore implementation ------------------------------------------------------

func (s *Store) SaveOTP(_ context.Context, otp user.OTP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	otp.Email = strings.ToLower(otp.Email)
	if otp.CreatedAt.IsZero() {
		otp.CreatedAt = s.now()
	}
	s.otps[otp.Email] = otp
	return nil
}

func (s *Store) GetOTP(_ context.Context, email string) (user.OTP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	otp, ok := s.otps[strings.ToLower(email)]
	if !ok {
		return user.OTP{}, storage.NotFound("otp", email)
	}
	return otp, nil
}

func (s *Store) IncrementOTPAttempts(_ context.Context, email string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(email)
	otp, ok := s.otps[key]
	if !ok {
		return 0, storage.NotFound("otp", email)
	}
	otp.Attempts++
	s.otps[key] = otp
	return otp.Attempts, nil
}

func (s *Store) DeleteOTP(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.otps, strings.ToLower(email))
	return nil
}

// helpers ----------------------------------------------------------------------

func cloneUser(u user.User) user.User {
	u.DefaultAddress = cloneAddress(u.DefaultAddress)
	return u
}

func cloneAddress(a *user.Address) *user.Address {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

func cloneDelivery(d pricing.DeliverySettings) pricing.DeliverySettings {
	if d.ZoneMultipliers != nil {
		zones := make(map[string]decimal.Decimal, len(d.ZoneMultipliers))
		for k, v := range d.ZoneMultipliers {
			zones[k] = v
		}
		d.ZoneMultipliers = zones
	}
	return d
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

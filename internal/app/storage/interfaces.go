package storage

import (
	"context"
	"time"

	"github.com/patisserie-labs/storefront/internal/app/domain/banner"
	"github.com/patisserie-labs/storefront/internal/app/domain/cart"
	"github.com/patisserie-labs/storefront/internal/app/domain/catalog"
	"github.com/patisserie-labs/storefront/internal/app/domain/checkout"
	"github.com/patisserie-labs/storefront/internal/app/domain/coupon"
	"github.com/patisserie-labs/storefront/internal/app/domain/order"
	"github.com/patisserie-labs/storefront/internal/app/domain/pricing"
	"github.com/patisserie-labs/storefront/internal/app/domain/report"
	"github.com/patisserie-labs/storefront/internal/app/domain/review"
	"github.com/patisserie-labs/storefront/internal/app/domain/user"
)

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]user.User, error)
}

// CategoryStore persists product categories.
type CategoryStore interface {
	CreateCategory(ctx context.Context, c catalog.Category) (catalog.Category, error)
	UpdateCategory(ctx context.Context, c catalog.Category) (catalog.Category, error)
	GetCategory(ctx context.Context, id string) (catalog.Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (catalog.Category, error)
	ListCategories(ctx context.Context, includeInactive bool) ([]catalog.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

// ProductStore persists products.
type ProductStore interface {
	CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error)
	UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error)
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (catalog.Product, error)
	ListProducts(ctx context.Context, filter catalog.ProductFilter) ([]catalog.Product, int, error)
	DeleteProduct(ctx context.Context, id string) error
	// AdjustStock adds delta to the stock level and fails with ErrConflict
	// when the result would be negative.
	AdjustStock(ctx context.Context, productID string, delta int) error
	SetProductRating(ctx context.Context, productID string, rating float64, count int) error
}

// CartStore persists carts and their lines.
type CartStore interface {
	GetOrCreateCart(ctx context.Context, userID string) (cart.Cart, error)
	ListCartItems(ctx context.Context, cartID string) ([]cart.Item, error)
	// UpsertCartItem sets the line quantity, keyed by (cart, product).
	UpsertCartItem(ctx context.Context, item cart.Item) (cart.Item, error)
	DeleteCartItem(ctx context.Context, cartID, productID string) error
	ClearCart(ctx context.Context, cartID string) error
}

// FavoriteStore persists saved products.
type FavoriteStore interface {
	AddFavorite(ctx context.Context, fav catalog.Favorite) error
	RemoveFavorite(ctx context.Context, userID, productID string) error
	ListFavorites(ctx context.Context, userID string) ([]catalog.Favorite, error)
}

// CouponStore persists discount codes.
type CouponStore interface {
	CreateCoupon(ctx context.Context, c coupon.Coupon) (coupon.Coupon, error)
	UpdateCoupon(ctx context.Context, c coupon.Coupon) (coupon.Coupon, error)
	GetCoupon(ctx context.Context, id string) (coupon.Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (coupon.Coupon, error)
	ListCoupons(ctx context.Context) ([]coupon.Coupon, error)
	DeleteCoupon(ctx context.Context, id string) error
	IncrementCouponUsage(ctx context.Context, id string) error
}

// OrderStore persists orders and their lines.
type OrderStore interface {
	CreateOrder(ctx context.Context, o order.Order) (order.Order, error)
	GetOrder(ctx context.Context, id string) (order.Order, error)
	GetOrderByCheckoutSession(ctx context.Context, sessionID string) (order.Order, error)
	ListOrders(ctx context.Context, filter order.ListFilter) ([]order.Order, int, error)
	// UpdateOrderStatus moves the order from one status to another and fails
	// with ErrConflict when the stored status is no longer from.
	UpdateOrderStatus(ctx context.Context, id string, from, to order.Status) (order.Order, error)
	CountUserCouponOrders(ctx context.Context, userID, couponCode string) (int, error)
	// HasDeliveredProduct reports whether userID has a delivered order containing productID.
	HasDeliveredProduct(ctx context.Context, userID, productID string) (bool, error)
}

// CheckoutStore persists checkout sessions.
type CheckoutStore interface {
	CreateSession(ctx context.Context, s checkout.Session) (checkout.Session, error)
	UpdateSession(ctx context.Context, s checkout.Session) (checkout.Session, error)
	GetSession(ctx context.Context, id string) (checkout.Session, error)
	GetSessionByGatewayOrder(ctx context.Context, gatewayOrderID string) (checkout.Session, error)
	// ExpireSessions marks pending or failed sessions whose expiry is not
	// after now as expired and returns how many changed.
	ExpireSessions(ctx context.Context, now time.Time) (int, error)
}

// PaymentStore persists gateway payments.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p order.Payment) (order.Payment, error)
	ListPaymentsByOrder(ctx context.Context, orderID string) ([]order.Payment, error)
}

// BannerStore persists homepage banners.
type BannerStore interface {
	CreateBanner(ctx context.Context, b banner.Banner) (banner.Banner, error)
	UpdateBanner(ctx context.Context, b banner.Banner) (banner.Banner, error)
	GetBanner(ctx context.Context, id string) (banner.Banner, error)
	ListBanners(ctx context.Context) ([]banner.Banner, error)
	DeleteBanner(ctx context.Context, id string) error
}

// ReviewStore persists product reviews.
type ReviewStore interface {
	CreateReview(ctx context.Context, r review.Review) (review.Review, error)
	UpdateReview(ctx context.Context, r review.Review) (review.Review, error)
	GetReview(ctx context.Context, id string) (review.Review, error)
	ListReviews(ctx context.Context, filter review.ListFilter) ([]review.Review, error)
	DeleteReview(ctx context.Context, id string) error
}

// SettingsStore persists tax and delivery settings. Getters return
// ErrNotFound until settings are saved.
type SettingsStore interface {
	GetTaxSettings(ctx context.Context) (pricing.TaxSettings, error)
	SaveTaxSettings(ctx context.Context, s pricing.TaxSettings) (pricing.TaxSettings, error)
	GetDeliverySettings(ctx context.Context) (pricing.DeliverySettings, error)
	SaveDeliverySettings(ctx context.Context, s pricing.DeliverySettings) (pricing.DeliverySettings, error)
}

// OTPStore persists pending login codes keyed by e-mail.
type OTPStore interface {
	SaveOTP(ctx context.Context, otp user.OTP) error
	GetOTP(ctx context.Context, email string) (user.OTP, error)
	// IncrementOTPAttempts records a failed verification and returns the new count.
	IncrementOTPAttempts(ctx context.Context, email string) (int, error)
	DeleteOTP(ctx context.Context, email string) error
}

// ReportStore computes admin reports.
type ReportStore interface {
	SalesSummary(ctx context.Context, since time.Time, topN int) (report.SalesSummary, error)
}

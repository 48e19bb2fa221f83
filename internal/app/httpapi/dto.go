package httpapi

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/patisserie-labs/storefront/internal/app/domain/banner"
	"github.com/patisserie-labs/storefront/internal/app/domain/catalog"
	"github.com/patisserie-labs/storefront/internal/app/domain/coupon"
	"github.com/patisserie-labs/storefront/internal/app/domain/pricing"
	"github.com/patisserie-labs/storefront/internal/app/domain/user"
)

type otpRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type otpVerifyRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type oauthRequest struct {
	AccessToken string `json:"access_token" validate:"required"`
}

type addressRequest struct {
	Name       string  `json:"name" validate:"required,max=120"`
	Phone      string  `json:"phone" validate:"required,max=20"`
	Line1      string  `json:"line1" validate:"required,max=200"`
	Line2      string  `json:"line2" validate:"max=200"`
	City       string  `json:"city" validate:"required,max=80"`
	State      string  `json:"state" validate:"max=80"`
	PostalCode string  `json:"postal_code" validate:"required,max=12"`
	Zone       string  `json:"zone" validate:"required,max=40"`
	DistanceKm float64 `json:"distance_km" validate:"gte=0"`
}

func (a addressRequest) toAddress() user.Address {
	return user.Address{
		Name:       strings.TrimSpace(a.Name),
		Phone:      strings.TrimSpace(a.Phone),
		Line1:      strings.TrimSpace(a.Line1),
		Line2:      strings.TrimSpace(a.Line2),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Zone:       strings.TrimSpace(a.Zone),
		DistanceKm: a.DistanceKm,
	}
}

type profileRequest struct {
	Name           *string         `json:"name" validate:"omitempty,max=120"`
	Phone          *string         `json:"phone" validate:"omitempty,max=20"`
	DefaultAddress *addressRequest `json:"default_address" validate:"omitempty"`
}

type cartItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=20"`
}

type cartQuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1,max=20"`
}

type couponCheckRequest struct {
	Code string `json:"code" validate:"required,max=40"`
}

type destinationRequest struct {
	Zone       string  `json:"zone" validate:"required,max=40"`
	DistanceKm float64 `json:"distance_km" validate:"gte=0"`
}

type quoteRequest struct {
	CouponCode  string              `json:"coupon_code" validate:"max=40"`
	Destination *destinationRequest `json:"destination" validate:"omitempty"`
}

type checkoutRequest struct {
	CouponCode      string          `json:"coupon_code" validate:"max=40"`
	ShippingAddress *addressRequest `json:"shipping_address" validate:"required"`
	Notes           string          `json:"notes" validate:"max=500"`
}

type verifyRequest struct {
	GatewayOrderID   string `json:"razorpay_order_id" validate:"required"`
	GatewayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature        string `json:"razorpay_signature" validate:"required"`
}

type reviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// Admin payloads ----------------------------------------------------------------

type categoryRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Slug        string `json:"slug" validate:"max=140"`
	Description string `json:"description" validate:"max=2000"`
	ImageURL    string `json:"image_url" validate:"omitempty,url"`
	Position    int    `json:"position" validate:"gte=0"`
	Active      *bool  `json:"active"`
}

func (c categoryRequest) toCategory() catalog.Category {
	return catalog.Category{
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		ImageURL:    c.ImageURL,
		Position:    c.Position,
		Active:      boolOr(c.Active, true),
	}
}

type productRequest struct {
	CategoryID  string              `json:"category_id" validate:"required"`
	Name        string              `json:"name" validate:"required,max=160"`
	Slug        string              `json:"slug" validate:"max=180"`
	Description string              `json:"description" validate:"max=5000"`
	Price       decimal.Decimal     `json:"price"`
	SalePrice   decimal.NullDecimal `json:"sale_price"`
	Images      []string            `json:"images" validate:"max=10,dive,url"`
	Tags        []string            `json:"tags" validate:"max=20,dive,max=40"`
	Weight      string              `json:"weight" validate:"max=40"`
	Stock       int                 `json:"stock" validate:"gte=0"`
	Featured    bool                `json:"featured"`
	Active      *bool               `json:"active"`
}

func (p productRequest) toProduct() catalog.Product {
	return catalog.Product{
		CategoryID:  p.CategoryID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Price:       p.Price,
		SalePrice:   p.SalePrice,
		Images:      p.Images,
		Tags:        p.Tags,
		Weight:      p.Weight,
		Stock:       p.Stock,
		Featured:    p.Featured,
		Active:      boolOr(p.Active, true),
	}
}

type bannerRequest struct {
	Title    string     `json:"title" validate:"required,max=160"`
	Subtitle string     `json:"subtitle" validate:"max=300"`
	ImageURL string     `json:"image_url" validate:"required,url"`
	LinkURL  string     `json:"link_url" validate:"max=500"`
	Position int        `json:"position" validate:"gte=0"`
	Active   *bool      `json:"active"`
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
}

func (b bannerRequest) toBanner() banner.Banner {
	return banner.Banner{
		Title:    b.Title,
		Subtitle: b.Subtitle,
		ImageURL: b.ImageURL,
		LinkURL:  b.LinkURL,
		Position: b.Position,
		Active:   boolOr(b.Active, true),
		StartsAt: b.StartsAt,
		EndsAt:   b.EndsAt,
	}
}

type couponRequest struct {
	Code           string          `json:"code" validate:"required,max=40"`
	Description    string          `json:"description" validate:"max=300"`
	Type           string          `json:"type" validate:"required,oneof=percent flat"`
	Value          decimal.Decimal `json:"value"`
	MaxDiscount    decimal.Decimal `json:"max_discount"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
	UsageLimit     int             `json:"usage_limit" validate:"gte=0"`
	PerUserLimit   int             `json:"per_user_limit" validate:"gte=0"`
	StartsAt       *time.Time      `json:"starts_at"`
	EndsAt         *time.Time      `json:"ends_at"`
	Active         *bool           `json:"active"`
}

func (c couponRequest) toCoupon() coupon.Coupon {
	return coupon.Coupon{
		Code:           c.Code,
		Description:    c.Description,
		Type:           c.Type,
		Value:          c.Value,
		MaxDiscount:    c.MaxDiscount,
		MinOrderAmount: c.MinOrderAmount,
		UsageLimit:     c.UsageLimit,
		PerUserLimit:   c.PerUserLimit,
		StartsAt:       c.StartsAt,
		EndsAt:         c.EndsAt,
		Active:         boolOr(c.Active, true),
	}
}

type orderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed preparing out_for_delivery delivered cancelled"`
}

type moderateRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected pending"`
}

type taxRequest struct {
	GSTPercent decimal.Decimal `json:"gst_percent"`
}

type deliveryRequest struct {
	BaseFee           decimal.Decimal            `json:"base_fee"`
	PerKmRate         decimal.Decimal            `json:"per_km_rate"`
	IncludedKm        decimal.Decimal            `json:"included_km"`
	MaxDistanceKm     decimal.Decimal            `json:"max_distance_km"`
	FreeDeliveryAbove decimal.Decimal            `json:"free_delivery_above"`
	ZoneMultipliers   map[string]decimal.Decimal `json:"zone_multipliers" validate:"required,min=1"`
}

func (d deliveryRequest) toSettings() pricing.DeliverySettings {
	return pricing.DeliverySettings{
		BaseFee:           d.BaseFee,
		PerKmRate:         d.PerKmRate,
		IncludedKm:        d.IncludedKm,
		MaxDistanceKm:     d.MaxDistanceKm,
		FreeDeliveryAbove: d.FreeDeliveryAbove,
		ZoneMultipliers:   d.ZoneMultipliers,
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

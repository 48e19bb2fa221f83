package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxSettings holds the GST percentage applied to every order.
type TaxSettings struct {
	GSTPercent decimal.Decimal `json:"gst_percent"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// DeliverySettings parameterise the distance based delivery fee.
type DeliverySettings struct {
	BaseFee           decimal.Decimal            `json:"base_fee"`
	PerKmRate         decimal.Decimal            `json:"per_km_rate"`
	IncludedKm        decimal.Decimal            `json:"included_km"`
	MaxDistanceKm     decimal.Decimal            `json:"max_distance_km"`
	FreeDeliveryAbove decimal.Decimal            `json:"free_delivery_above"`
	ZoneMultipliers   map[string]decimal.Decimal `json:"zone_multipliers"`
	UpdatedAt         time.Time                  `json:"updated_at"`
}

// Quote is the priced breakdown of a cart.
type Quote struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	Taxable     decimal.Decimal `json:"taxable"`
	GSTPercent  decimal.Decimal `json:"gst_percent"`
	Tax         decimal.Decimal `json:"tax"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Total       decimal.Decimal `json:"total"`
	CouponCode  string          `json:"coupon_code,omitempty"`
	Zone        string          `json:"zone,omitempty"`
	DistanceKm  float64         `json:"distance_km,omitempty"`
}

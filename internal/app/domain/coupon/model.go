package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

// Discount types.
const (
	TypePercent = "percent"
	TypeFlat    = "flat"
)

// Coupon is a discount code.
type Coupon struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	Description    string          `json:"description"`
	Type           string          `json:"type"`
	Value          decimal.Decimal `json:"value"`
	MaxDiscount    decimal.Decimal `json:"max_discount"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
	// UsageLimit of zero means unlimited.
	UsageLimit   int        `json:"usage_limit"`
	UsedCount    int        `json:"used_count"`
	PerUserLimit int        `json:"per_user_limit"`
	StartsAt     *time.Time `json:"starts_at"`
	EndsAt       *time.Time `json:"ends_at"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/patisserie-labs/storefront/internal/app/domain/user"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusConfirmed, StatusPreparing, StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Order is a paid purchase.
type Order struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	Status            Status          `json:"status"`
	Items             []Item          `json:"items"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Discount          decimal.Decimal `json:"discount"`
	GSTPercent        decimal.Decimal `json:"gst_percent"`
	Tax               decimal.Decimal `json:"tax"`
	DeliveryFee       decimal.Decimal `json:"delivery_fee"`
	Total             decimal.Decimal `json:"total"`
	CouponCode        string          `json:"coupon_code,omitempty"`
	ShippingAddress   user.Address    `json:"shipping_address"`
	CheckoutSessionID string          `json:"checkout_session_id"`
	GatewayOrderID    string          `json:"gateway_order_id"`
	GatewayPaymentID  string          `json:"gateway_payment_id"`
	Notes             string          `json:"notes,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Item is an order line captured at purchase time.
type Item struct {
	ID        string          `json:"id,omitempty"`
	OrderID   string          `json:"order_id,omitempty"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// ListFilter narrows order listings.
type ListFilter struct {
	UserID string
	Status Status
	Offset int
	Limit  int
}

// Payment records a gateway payment for an order.
type Payment struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"order_id"`
	UserID           string          `json:"user_id"`
	GatewayOrderID   string          `json:"gateway_order_id"`
	GatewayPaymentID string          `json:"gateway_payment_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	Method           string          `json:"method"`
	CreatedAt        time.Time       `json:"created_at"`
}

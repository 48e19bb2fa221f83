package checkout

import (
	"time"

	"github.com/patisserie-labs/storefront/internal/app/domain/order"
	"github.com/patisserie-labs/storefront/internal/app/domain/pricing"
	"github.com/patisserie-labs/storefront/internal/app/domain/user"
)

// SessionTTL is how long a checkout session accepts payment.
const SessionTTL = 30 * time.Minute

// Status is the lifecycle state of a session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
	StatusFailed    Status = "failed"
)

// Session tracks a cart through payment.
type Session struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	CartID          string        `json:"cart_id"`
	Status          Status        `json:"status"`
	Lines           []order.Item  `json:"lines"`
	Quote           pricing.Quote `json:"quote"`
	ShippingAddress user.Address  `json:"shipping_address"`
	Notes           string        `json:"notes,omitempty"`
	GatewayOrderID  string        `json:"gateway_order_id"`
	OrderID         string        `json:"order_id,omitempty"`
	FailureReason   string        `json:"failure_reason,omitempty"`
	ExpiresAt       time.Time     `json:"expires_at"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Open reports whether the session still accepts a payment attempt.
// Failed sessions stay open so a retried payment can succeed.
func (s Session) Open() bool {
	return s.Status == StatusPending || s.Status == StatusFailed
}

// Expired reports whether an open session has run out of time at now.
func (s Session) Expired(now time.Time) bool {
	return s.Open() && !now.Before(s.ExpiresAt)
}

package review

import "time"

// Moderation states.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Review is a customer's rating of a product.
type Review struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"product_id"`
	UserID           string    `json:"user_id"`
	UserName         string    `json:"user_name"`
	Rating           int       `json:"rating"`
	Comment          string    `json:"comment"`
	Status           string    `json:"status"`
	VerifiedPurchase bool      `json:"verified_purchase"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ListFilter narrows review listings. Empty fields match everything.
type ListFilter struct {
	ProductID string
	UserID    string
	Status    string
}

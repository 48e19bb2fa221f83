package user

import "time"

// Roles recognised by the storefront.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Sign-in providers.
const (
	ProviderEmail  = "email"
	ProviderGoogle = "google"
)

// User is a storefront customer or administrator.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone"`
	Role           string    `json:"role"`
	Provider       string    `json:"provider"`
	DefaultAddress *Address  `json:"default_address,omitempty"`
	LastLoginAt    time.Time `json:"last_login_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Address is a delivery address. Zone and DistanceKm drive the delivery fee.
type Address struct {
	Name       string  `json:"name"`
	Phone      string  `json:"phone"`
	Line1      string  `json:"line1"`
	Line2      string  `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Zone       string  `json:"zone"`
	DistanceKm float64 `json:"distance_km"`
}

// OTP is a pending e-mail login code. Only the bcrypt hash is stored.
type OTP struct {
	Email     string    `json:"email"`
	CodeHash  string    `json:"code_hash"`
	Attempts  int       `json:"attempts"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

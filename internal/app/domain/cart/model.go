package cart

import "time"

// MaxQuantityPerItem caps the quantity of a single cart line.
const MaxQuantityPerItem = 20

// Cart belongs to exactly one user.
type Cart struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item is a cart line. (CartID, ProductID) is unique.
type Item struct {
	CartID    string    `json:"cart_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

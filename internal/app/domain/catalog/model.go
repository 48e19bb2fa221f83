package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups products on the storefront.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	Position    int       `json:"position"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Product is a sellable item.
type Product struct {
	ID          string              `json:"id"`
	CategoryID  string              `json:"category_id"`
	Name        string              `json:"name"`
	Slug        string              `json:"slug"`
	Description string              `json:"description"`
	Price       decimal.Decimal     `json:"price"`
	SalePrice   decimal.NullDecimal `json:"sale_price"`
	Images      []string            `json:"images"`
	Tags        []string            `json:"tags"`
	Weight      string              `json:"weight"`
	Stock       int                 `json:"stock"`
	Featured    bool                `json:"featured"`
	Active      bool                `json:"active"`
	Rating      float64             `json:"rating"`
	ReviewCount int                 `json:"review_count"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// UnitPrice is the price charged per unit: the sale price when it is set
// and lower than the list price.
func (p Product) UnitPrice() decimal.Decimal {
	if p.SalePrice.Valid && p.SalePrice.Decimal.IsPositive() && p.SalePrice.Decimal.LessThan(p.Price) {
		return p.SalePrice.Decimal
	}
	return p.Price
}

// Sort orders accepted by product listings.
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortRating    = "rating"
	SortName      = "name"
)

// ProductFilter narrows a product listing.
type ProductFilter struct {
	CategoryID      string
	Search          string
	MinPrice        *decimal.Decimal
	MaxPrice        *decimal.Decimal
	Featured        *bool
	InStock         bool
	IncludeInactive bool
	IDs             []string
	Sort            string
	Offset          int
	Limit           int
}

// ProductPage is one page of a listing.
type ProductPage struct {
	Products []Product `json:"products"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
}

// Favorite marks a product saved by a user.
type Favorite struct {
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	CreatedAt time.Time `json:"created_at"`
}

package report

import (
	"time"

	"github.com/shopspring/decimal"
)

// SalesSummary aggregates orders placed since a point in time.
// Cancelled orders are counted by status but excluded from revenue.
type SalesSummary struct {
	Since             time.Time       `json:"since"`
	OrderCount        int             `json:"order_count"`
	Revenue           decimal.Decimal `json:"revenue"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
	OrdersByStatus    map[string]int  `json:"orders_by_status"`
	TopProducts       []ProductSales  `json:"top_products"`
}

// ProductSales is the sales volume of one product.
type ProductSales struct {
	ProductID string          `json:"product_id" db:"product_id"`
	Name      string          `json:"name" db:"name"`
	Quantity  int             `json:"quantity" db:"quantity"`
	Revenue   decimal.Decimal `json:"revenue" db:"revenue"`
}

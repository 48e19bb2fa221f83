package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/patisserie-labs/storefront/internal/app/domain/report"
	"github.com/patisserie-labs/storefront/internal/app/storage"
)

// Reports computes admin reports with plain SQL.
type Reports struct {
	db *sqlx.DB
}

var _ storage.ReportStore = (*Reports)(nil)

// NewReports creates a report store using the provided database handle.
func NewReports(db *sqlx.DB) *Reports {
	return &Reports{db: db}
}

const totalsQuery = `
	SELECT count(*) AS order_count,
	       count(*) FILTER (WHERE status <> 'cancelled') AS paid_count,
	       coalesce(sum(total) FILTER (WHERE status <> 'cancelled'), 0) AS revenue
	  FROM orders
	 WHERE created_at >= $1`

const statusQuery = `
	SELECT status, count(*) AS n
	  FROM orders
	 WHERE created_at >= $1
	 GROUP BY status`

const topProductsQuery = `
	SELECT coalesce(i.product_id::text, '') AS product_id,
	       max(i.name) AS name,
	       sum(i.quantity)::int AS quantity,
	       sum(i.line_total) AS revenue
	  FROM order_items i
	  JOIN orders o ON o.id = i.order_id
	 WHERE o.created_at >= $1 AND o.status <> 'cancelled'
	 GROUP BY i.product_id
	 ORDER BY quantity DESC, name ASC
	 LIMIT $2`

// SalesSummary aggregates orders created since the given time. Cancelled
// orders count towards OrdersByStatus only.
func (r *Reports) SalesSummary(ctx context.Context, since time.Time, topN int) (report.SalesSummary, error) {
	var totals struct {
		OrderCount int             `db:"order_count"`
		PaidCount  int             `db:"paid_count"`
		Revenue    decimal.Decimal `db:"revenue"`
	}
	if err := r.db.GetContext(ctx, &totals, totalsQuery, since); err != nil {
		return report.SalesSummary{}, fmt.Errorf("sales totals: %w", err)
	}

	var statuses []struct {
		Status string `db:"status"`
		Count  int    `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &statuses, statusQuery, since); err != nil {
		return report.SalesSummary{}, fmt.Errorf("orders by status: %w", err)
	}

	limit := sql.NullInt64{Int64: int64(topN), Valid: topN > 0}
	top := []report.ProductSales{}
	if err := r.db.SelectContext(ctx, &top, topProductsQuery, since, limit); err != nil {
		return report.SalesSummary{}, fmt.Errorf("top products: %w", err)
	}

	summary := report.SalesSummary{
		Since:             since,
		OrderCount:        totals.OrderCount,
		Revenue:           totals.Revenue,
		AverageOrderValue: decimal.Zero,
		OrdersByStatus:    make(map[string]int, len(statuses)),
		TopProducts:       top,
	}
	for _, s := range statuses {
		summary.OrdersByStatus[s.Status] = s.Count
	}
	if totals.PaidCount > 0 {
		summary.AverageOrderValue = totals.Revenue.Div(decimal.NewFromInt(int64(totals.PaidCount))).Round(2)
	}
	return summary, nil
}

package postgres

import (
	"context"
	"errors"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

func TestMigrationsAreOrdered(t *testing.T) {
	migrations, err := Migrations()
	if err != nil {
		t.Fatalf("Migrations() error = %v", err)
	}
	if len(migrations) < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", len(migrations))
	}
	if !strings.HasSuffix(migrations[0].Name, "0001_schema.sql") {
		t.Fatalf("first migration = %s", migrations[0].Name)
	}
	for _, fn := range []string{"adjust_stock", "increment_coupon_usage", "increment_otp_attempts", "sales_summary"} {
		if !strings.Contains(migrations[1].SQL, "FUNCTION "+fn) {
			t.Errorf("functions migration missing %s", fn)
		}
	}
}

func TestApplyExecutesAllMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	migrations, _ := Migrations()
	for range migrations {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	if err := Apply(context.Background(), db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(".*").WillReturnError(errors.New("permission denied"))

	err = Apply(context.Background(), db)
	if err == nil || !strings.Contains(err.Error(), "0001_schema.sql") {
		t.Fatalf("Apply() error = %v, want failing migration named", err)
	}
}

func TestSalesSummary(t *testing.T) {
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer raw.Close()
	reports := NewReports(sqlx.NewDb(raw, "sqlmock"))
	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("AS paid_count")).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"order_count", "paid_count", "revenue"}).AddRow(4, 3, "3000.00"))
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY status")).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"status", "n"}).AddRow("delivered", 3).AddRow("cancelled", 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items i")).
		WithArgs(since, 2).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "name", "quantity", "revenue"}).
			AddRow("p-1", "Opera", 5, "2500.00").
			AddRow("p-2", "Eclair", 2, "500.00"))

	summary, err := reports.SalesSummary(context.Background(), since, 2)
	if err != nil {
		t.Fatalf("SalesSummary() error = %v", err)
	}
	if summary.OrderCount != 4 || !summary.Revenue.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("unexpected totals %+v", summary)
	}
	if !summary.AverageOrderValue.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("average = %s, want 1000", summary.AverageOrderValue)
	}
	if summary.OrdersByStatus["cancelled"] != 1 || summary.OrdersByStatus["delivered"] != 3 {
		t.Errorf("by status = %v", summary.OrdersByStatus)
	}
	if len(summary.TopProducts) != 2 || summary.TopProducts[0].Name != "Opera" || summary.TopProducts[0].Quantity != 5 {
		t.Errorf("top products = %+v", summary.TopProducts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSalesSummary_NoPaidOrders(t *testing.T) {
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer raw.Close()
	reports := NewReports(sqlx.NewDb(raw, "sqlmock"))

	mock.ExpectQuery("order_count").WillReturnRows(sqlmock.NewRows([]string{"order_count", "paid_count", "revenue"}).AddRow(0, 0, "0"))
	mock.ExpectQuery("GROUP BY status").WillReturnRows(sqlmock.NewRows([]string{"status", "n"}))
	mock.ExpectQuery("order_items").WillReturnRows(sqlmock.NewRows([]string{"product_id", "name", "quantity", "revenue"}))

	summary, err := reports.SalesSummary(context.Background(), time.Now(), 0)
	if err != nil {
		t.Fatalf("SalesSummary() error = %v", err)
	}
	if !summary.AverageOrderValue.IsZero() || summary.TopProducts == nil || summary.OrdersByStatus == nil {
		t.Fatalf("unexpected empty summary %+v", summary)
	}
}

func TestApplyIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	ctx := context.Background()
	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := Apply(ctx, db); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := Apply(ctx, db); err != nil {
		t.Fatalf("second apply must be a no-op: %v", err)
	}
	if _, err := NewReports(db).SalesSummary(ctx, time.Now().Add(-24*time.Hour), 5); err != nil {
		t.Fatalf("sales summary: %v", err)
	}
}

// Package supabase implements the storage interfaces over Supabase's
// PostgREST API. Multi-row invariants (stock, coupon usage, OTP attempts,
// reports) run as stored procedures created by the postgres migrations.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/patisserie-labs/storefront/internal/app/domain/pricing"
	"github.com/patisserie-labs/storefront/internal/app/domain/report"
	"github.com/patisserie-labs/storefront/internal/app/domain/user"
	"github.com/patisserie-labs/storefront/internal/app/storage"
	"github.com/patisserie-labs/storefront/supabase/client"
)

// Store implements the storage interfaces backed by Supabase.
type Store struct {
	db  *client.Client
	now func() time.Time
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.CategoryStore = (*Store)(nil)
var _ storage.ProductStore = (*Store)(nil)
var _ storage.CartStore = (*Store)(nil)
var _ storage.FavoriteStore = (*Store)(nil)
var _ storage.CouponStore = (*Store)(nil)
var _ storage.OrderStore = (*Store)(nil)
var _ storage.CheckoutStore = (*Store)(nil)
var _ storage.PaymentStore = (*Store)(nil)
var _ storage.BannerStore = (*Store)(nil)
var _ storage.ReviewStore = (*Store)(nil)
var _ storage.SettingsStore = (*Store)(nil)
var _ storage.OTPStore = (*Store)(nil)
var _ storage.ReportStore = (*Store)(nil)

// New creates a Store using the provided client.
func New(db *client.Client) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const settingsRowID = 1

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(u.Email)
	now := s.now()
	u.CreatedAt = now
	u.UpdatedAt = now
	return insertOne[user.User](ctx, s.db.From("users"), u, "user", u.Email)
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	u.Email = strings.ToLower(u.Email)
	u.UpdatedAt = s.now()
	row, err := toRow(u, "id", "created_at")
	if err != nil {
		return user.User{}, err
	}
	return updateOne[user.User](ctx, s.db.From("users").Eq("id", u.ID), row, "user", u.ID)
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	return selectOne[user.User](ctx, s.db.From("users").Select("*").Eq("id", id), "user", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	email = strings.ToLower(email)
	return selectOne[user.User](ctx, s.db.From("users").Select("*").Eq("email", email), "user", email)
}

func (s *Store) ListUsers(ctx context.Context, offset, limit int) ([]user.User, error) {
	q := s.db.From("users").Select("*").Order("created_at", false).Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return selectRows[user.User](ctx, q)
}

// --- SettingsStore ----------------------------------------------------------

func (s *Store) GetTaxSettings(ctx context.Context) (pricing.TaxSettings, error) {
	return selectOne[pricing.TaxSettings](ctx, s.db.From("tax_settings").Select("*").Eq("id", settingsRowID), "tax_settings", "default")
}

func (s *Store) SaveTaxSettings(ctx context.Context, t pricing.TaxSettings) (pricing.TaxSettings, error) {
	t.UpdatedAt = s.now()
	row, err := toRow(t)
	if err != nil {
		return pricing.TaxSettings{}, err
	}
	row["id"] = settingsRowID
	return upsertOne[pricing.TaxSettings](ctx, s.db.From("tax_settings"), row, "id", "tax_settings", "default")
}

func (s *Store) GetDeliverySettings(ctx context.Context) (pricing.DeliverySettings, error) {
	return selectOne[pricing.DeliverySettings](ctx, s.db.From("delivery_settings").Select("*").Eq("id", settingsRowID), "delivery_settings", "default")
}

func (s *Store) SaveDeliverySettings(ctx context.Context, d pricing.DeliverySettings) (pricing.DeliverySettings, error) {
	d.UpdatedAt = s.now()
	row, err := toRow(d)
	if err != nil {
		return pricing.DeliverySettings{}, err
	}
	row["id"] = settingsRowID
	return upsertOne[pricing.DeliverySettings](ctx, s.db.From("delivery_settings"), row, "id", "delivery_settings", "default")
}

// --- OTPStore ---------------------------------------------------------------

func (s *Store) SaveOTP(ctx context.Context, otp user.OTP) error {
	otp.Email = strings.ToLower(otp.Email)
	if otp.CreatedAt.IsZero() {
		otp.CreatedAt = s.now()
	}
	_, err := upsertOne[user.OTP](ctx, s.db.From("otp_codes"), otp, "email", "otp", otp.Email)
	return err
}

func (s *Store) GetOTP(ctx context.Context, email string) (user.OTP, error) {
	email = strings.ToLower(email)
	return selectOne[user.OTP](ctx, s.db.From("otp_codes").Select("*").Eq("email", email), "otp", email)
}

func (s *Store) IncrementOTPAttempts(ctx context.Context, email string) (int, error) {
	email = strings.ToLower(email)
	var attempts *int
	if err := s.rpc(ctx, "increment_otp_attempts", map[string]any{"p_email": email}, &attempts); err != nil {
		return 0, translate(err, "otp", email)
	}
	if attempts == nil {
		return 0, storage.NotFound("otp", email)
	}
	return *attempts, nil
}

func (s *Store) DeleteOTP(ctx context.Context, email string) error {
	_, err := deleteRows(ctx, s.db.From("otp_codes").Eq("email", strings.ToLower(email)))
	return translate(err, "otp", email)
}

// --- ReportStore ------------------------------------------------------------

func (s *Store) SalesSummary(ctx context.Context, since time.Time, topN int) (report.SalesSummary, error) {
	var summary report.SalesSummary
	params := map[string]any{"p_since": since.UTC().Format(time.RFC3339Nano), "p_top": topN}
	if err := s.rpc(ctx, "sales_summary", params, &summary); err != nil {
		return report.SalesSummary{}, fmt.Errorf("sales summary: %w", err)
	}
	summary.Since = since
	if summary.OrdersByStatus == nil {
		summary.OrdersByStatus = make(map[string]int)
	}
	if summary.TopProducts == nil {
		summary.TopProducts = []report.ProductSales{}
	}
	return summary, nil
}

// --- helpers ----------------------------------------------------------------

func check(resp *client.Response, err error) error {
	if err != nil {
		return err
	}
	return resp.Err()
}

// translate maps PostgREST errors onto the storage sentinels.
func translate(err error, entity, key string) error {
	switch {
	case err == nil:
		return nil
	case client.IsNotFound(err):
		return storage.NotFound(entity, key)
	case client.IsConflict(err):
		return storage.Conflict("%s %s: %v", entity, key, err)
	case client.IsForeignKeyViolation(err):
		return storage.Conflict("%s %s is still referenced: %v", entity, key, err)
	default:
		return fmt.Errorf("%s %s: %w", entity, key, err)
	}
}

func (s *Store) rpc(ctx context.Context, fn string, params any, out any) error {
	resp, err := s.db.RPC(ctx, fn, params)
	if err := check(resp, err); err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := resp.JSON(out); err != nil {
		return fmt.Errorf("decode %s: %w", fn, err)
	}
	return nil
}

func decode[T any](resp *client.Response) ([]T, error) {
	var rows []T
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

func selectRows[T any](ctx context.Context, q *client.QueryBuilder) ([]T, error) {
	resp, err := q.Execute(ctx)
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return decode[T](resp)
}

func selectPage[T any](ctx context.Context, q *client.QueryBuilder) ([]T, int, error) {
	resp, err := q.Count("exact").Execute(ctx)
	if err := check(resp, err); err != nil {
		return nil, 0, err
	}
	rows, err := decode[T](resp)
	if err != nil {
		return nil, 0, err
	}
	total := resp.Total()
	if total < 0 {
		total = len(rows)
	}
	return rows, total, nil
}

func selectOne[T any](ctx context.Context, q *client.QueryBuilder, entity, key string) (T, error) {
	var zero T
	rows, err := selectRows[T](ctx, q.Limit(1))
	if err != nil {
		return zero, translate(err, entity, key)
	}
	if len(rows) == 0 {
		return zero, storage.NotFound(entity, key)
	}
	return rows[0], nil
}

func insertOne[T any](ctx context.Context, q *client.QueryBuilder, row any, entity, key string) (T, error) {
	var zero T
	resp, err := q.ExecuteInsert(ctx, row)
	if err := check(resp, err); err != nil {
		return zero, translate(err, entity, key)
	}
	rows, err := decode[T](resp)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, fmt.Errorf("insert %s %s: no row returned", entity, key)
	}
	return rows[0], nil
}

func upsertOne[T any](ctx context.Context, q *client.QueryBuilder, row any, onConflict, entity, key string) (T, error) {
	var zero T
	resp, err := q.ExecuteUpsert(ctx, row, onConflict)
	if err := check(resp, err); err != nil {
		return zero, translate(err, entity, key)
	}
	rows, err := decode[T](resp)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, fmt.Errorf("upsert %s %s: no row returned", entity, key)
	}
	return rows[0], nil
}

func updateOne[T any](ctx context.Context, q *client.QueryBuilder, row any, entity, key string) (T, error) {
	var zero T
	resp, err := q.ExecuteUpdate(ctx, row)
	if err := check(resp, err); err != nil {
		return zero, translate(err, entity, key)
	}
	rows, err := decode[T](resp)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, storage.NotFound(entity, key)
	}
	return rows[0], nil
}

// deleteRows returns how many rows were removed.
func deleteRows(ctx context.Context, q *client.QueryBuilder) (int, error) {
	resp, err := q.ExecuteDelete(ctx)
	if err := check(resp, err); err != nil {
		return 0, err
	}
	rows, err := decode[json.RawMessage](resp)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// toRow converts a domain value into a column map, dropping omitted keys.
func toRow(v any, omit ...string) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal row: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	row := make(map[string]any)
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("marshal row: %w", err)
	}
	for _, key := range omit {
		delete(row, key)
	}
	return row, nil
}

// nullIfEmpty replaces empty string columns with NULL so optional foreign
// keys are accepted.
func nullIfEmpty(row map[string]any, keys ...string) {
	for _, key := range keys {
		if v, ok := row[key].(string); ok && v == "" {
			row[key] = nil
		}
	}
}

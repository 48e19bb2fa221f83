package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/patisserie-labs/storefront/internal/app/domain/cart"
	"github.com/patisserie-labs/storefront/internal/app/domain/checkout"
	"github.com/patisserie-labs/storefront/internal/app/domain/order"
	"github.com/patisserie-labs/storefront/internal/app/storage"
)

const orderColumns = "*,order_items(*)"

// orderRow is an orders row with its embedded order_items.
type orderRow struct {
	order.Order
	OrderItems []order.Item `json:"order_items"`
}

func (r orderRow) toOrder() order.Order {
	o := r.Order
	o.Items = r.OrderItems
	if o.Items == nil {
		o.Items = []order.Item{}
	}
	return o
}

// --- CartStore --------------------------------------------------------------

func (s *Store) GetOrCreateCart(ctx context.Context, userID string) (cart.Cart, error) {
	c, err := selectOne[cart.Cart](ctx, s.db.From("carts").Select("*").Eq("user_id", userID), "cart", userID)
	if !storage.IsNotFound(err) {
		return c, err
	}

	now := s.now()
	created, err := insertOne[cart.Cart](ctx, s.db.From("carts"), cart.Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}, "cart", userID)
	if storage.IsConflict(err) {
		// A concurrent request created it first.
		return selectOne[cart.Cart](ctx, s.db.From("carts").Select("*").Eq("user_id", userID), "cart", userID)
	}
	return created, err
}

func (s *Store) ListCartItems(ctx context.Context, cartID string) ([]cart.Item, error) {
	return selectRows[cart.Item](ctx, s.db.From("cart_items").Select("*").Eq("cart_id", cartID).
		Order("created_at", true).Order("product_id", true))
}

// UpsertCartItem writes the line keyed by (cart_id, product_id). created_at
// is left to the column default so repeated writes keep the original value.
func (s *Store) UpsertCartItem(ctx context.Context, item cart.Item) (cart.Item, error) {
	row := map[string]any{
		"cart_id":    item.CartID,
		"product_id": item.ProductID,
		"quantity":   item.Quantity,
		"updated_at": s.now(),
	}
	saved, err := upsertOne[cart.Item](ctx, s.db.From("cart_items"), row, "cart_id,product_id", "cart_item", item.ProductID)
	if storage.IsConflict(err) {
		return cart.Item{}, storage.NotFound("cart", item.CartID)
	}
	return saved, err
}

func (s *Store) DeleteCartItem(ctx context.Context, cartID, productID string) error {
	_, err := deleteRows(ctx, s.db.From("cart_items").Eq("cart_id", cartID).Eq("product_id", productID))
	return translate(err, "cart_item", productID)
}

func (s *Store) ClearCart(ctx context.Context, cartID string) error {
	_, err := deleteRows(ctx, s.db.From("cart_items").Eq("cart_id", cartID))
	return translate(err, "cart", cartID)
}

// --- OrderStore -------------------------------------------------------------

// CreateOrder inserts the order and then its lines; a failed line insert
// removes the order again. The unique checkout_session_id index turns a
// duplicate completion into ErrConflict.
func (s *Store) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := s.now()
	o.CreatedAt = now
	o.UpdatedAt = now

	row, err := toRow(o, "items")
	if err != nil {
		return order.Order{}, err
	}
	nullIfEmpty(row, "checkout_session_id", "coupon_code")
	created, err := insertOne[order.Order](ctx, s.db.From("orders"), row, "order", o.ID)
	if err != nil {
		return order.Order{}, err
	}

	items := make([]order.Item, len(o.Items))
	for i, item := range o.Items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.OrderID = o.ID
		items[i] = item
	}
	if len(items) > 0 {
		resp, err := s.db.From("order_items").ExecuteInsert(ctx, items)
		if err := check(resp, err); err != nil {
			if _, cleanupErr := deleteRows(ctx, s.db.From("orders").Eq("id", o.ID)); cleanupErr != nil {
				err = fmt.Errorf("%w (cleanup: %v)", err, cleanupErr)
			}
			return order.Order{}, translate(err, "order_items", o.ID)
		}
	}
	created.Items = items
	return created, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	row, err := selectOne[orderRow](ctx, s.db.From("orders").Select(orderColumns).Eq("id", id), "order", id)
	if err != nil {
		return order.Order{}, err
	}
	return row.toOrder(), nil
}

func (s *Store) GetOrderByCheckoutSession(ctx context.Context, sessionID string) (order.Order, error) {
	row, err := selectOne[orderRow](ctx, s.db.From("orders").Select(orderColumns).Eq("checkout_session_id", sessionID), "order", "session "+sessionID)
	if err != nil {
		return order.Order{}, err
	}
	return row.toOrder(), nil
}

func (s *Store) ListOrders(ctx context.Context, f order.ListFilter) ([]order.Order, int, error) {
	q := s.db.From("orders").Select(orderColumns)
	if f.UserID != "" {
		q = q.Eq("user_id", f.UserID)
	}
	if f.Status != "" {
		q = q.Eq("status", f.Status)
	}
	q = q.Order("created_at", false).Order("id", false).Offset(f.Offset)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	rows, total, err := selectPage[orderRow](ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	out := make([]order.Order, len(rows))
	for i, r := range rows {
		out[i] = r.toOrder()
	}
	return out, total, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from, to order.Status) (order.Order, error) {
	row, err := updateOne[orderRow](ctx, s.db.From("orders").Select(orderColumns).Eq("id", id).Eq("status", from),
		map[string]any{"status": to, "updated_at": s.now()}, "order", id)
	if storage.IsNotFound(err) {
		// No row matched: either the order is gone or its status moved on.
		current, getErr := s.GetOrder(ctx, id)
		if getErr != nil {
			return order.Order{}, getErr
		}
		return order.Order{}, storage.Conflict("order %s is %s, not %s", id, current.Status, from)
	}
	if err != nil {
		return order.Order{}, err
	}
	return row.toOrder(), nil
}

func (s *Store) CountUserCouponOrders(ctx context.Context, userID, couponCode string) (int, error) {
	q := s.db.From("orders").Select("id").
		Eq("user_id", userID).
		ILike("coupon_code", couponCode).
		Neq("status", order.StatusCancelled).
		Limit(1)
	_, total, err := selectPage[struct {
		ID string `json:"id"`
	}](ctx, q)
	if err != nil {
		return 0, fmt.Errorf("count coupon orders: %w", err)
	}
	return total, nil
}

func (s *Store) HasDeliveredProduct(ctx context.Context, userID, productID string) (bool, error) {
	q := s.db.From("order_items").Select("id,orders!inner(user_id,status)").
		Eq("product_id", productID).
		Eq("orders.user_id", userID).
		Eq("orders.status", order.StatusDelivered).
		Limit(1)
	rows, err := selectRows[struct {
		ID string `json:"id"`
	}](ctx, q)
	if err != nil {
		return false, fmt.Errorf("delivered product lookup: %w", err)
	}
	return len(rows) > 0, nil
}

// --- PaymentStore -----------------------------------------------------------

func (s *Store) CreatePayment(ctx context.Context, p order.Payment) (order.Payment, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = s.now()
	return insertOne[order.Payment](ctx, s.db.From("payments"), p, "payment", p.GatewayPaymentID)
}

func (s *Store) ListPaymentsByOrder(ctx context.Context, orderID string) ([]order.Payment, error) {
	return selectRows[order.Payment](ctx, s.db.From("payments").Select("*").Eq("order_id", orderID).Order("created_at", true))
}

// --- CheckoutStore ----------------------------------------------------------

func (s *Store) CreateSession(ctx context.Context, sess checkout.Session) (checkout.Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	now := s.now()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	row, err := toRow(sess)
	if err != nil {
		return checkout.Session{}, err
	}
	nullIfEmpty(row, "cart_id")
	return insertOne[checkout.Session](ctx, s.db.From("checkout_sessions"), row, "checkout_session", sess.ID)
}

func (s *Store) UpdateSession(ctx context.Context, sess checkout.Session) (checkout.Session, error) {
	sess.UpdatedAt = s.now()
	row, err := toRow(sess, "id", "created_at")
	if err != nil {
		return checkout.Session{}, err
	}
	nullIfEmpty(row, "cart_id")
	return updateOne[checkout.Session](ctx, s.db.From("checkout_sessions").Eq("id", sess.ID), row, "checkout_session", sess.ID)
}

func (s *Store) GetSession(ctx context.Context, id string) (checkout.Session, error) {
	return selectOne[checkout.Session](ctx, s.db.From("checkout_sessions").Select("*").Eq("id", id), "checkout_session", id)
}

func (s *Store) GetSessionByGatewayOrder(ctx context.Context, gatewayOrderID string) (checkout.Session, error) {
	return selectOne[checkout.Session](ctx, s.db.From("checkout_sessions").Select("*").Eq("gateway_order_id", gatewayOrderID),
		"checkout_session", "gateway order "+gatewayOrderID)
}

func (s *Store) ExpireSessions(ctx context.Context, now time.Time) (int, error) {
	q := s.db.From("checkout_sessions").Select("id").
		In("status", []string{string(checkout.StatusPending), string(checkout.StatusFailed)}).
		Lte("expires_at", now.UTC().Format(time.RFC3339Nano))
	resp, err := q.ExecuteUpdate(ctx, map[string]any{"status": checkout.StatusExpired, "updated_at": s.now()})
	if err := check(resp, err); err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}
	rows, err := decode[struct {
		ID string `json:"id"`
	}](resp)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/patisserie-labs/storefront/internal/app/domain/cart"
	"github.com/patisserie-labs/storefront/internal/app/domain/checkout"
	"github.com/patisserie-labs/storefront/internal/app/domain/order"
	"github.com/patisserie-labs/storefront/internal/app/storage"
)

// CartStore implementation -----------------------------------------------------

func (s *Store) GetOrCreateCart(_ context.Context, userID string) (cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.carts[userID]; ok {
		return c, nil
	}
	now := s.now()
	c := cart.Cart{ID: newID(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	s.carts[userID] = c
	s.cartItems[c.ID] = make(map[string]cart.Item)
	return c, nil
}

func (s *Store) ListCartItems(_ context.Context, cartID string) ([]cart.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.cartItems[cartID]
	out := make([]cart.Item, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

func (s *Store) UpsertCartItem(_ context.Context, item cart.Item) (cart.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, ok := s.cartItems[item.CartID]
	if !ok {
		return cart.Item{}, storage.NotFound("cart", item.CartID)
	}
	now := s.now()
	if existing, ok := items[item.ProductID]; ok {
		item.CreatedAt = existing.CreatedAt
	} else {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	items[item.ProductID] = item
	return item, nil
}

func (s *Store) DeleteCartItem(_ context.Context, cartID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cartItems[cartID], productID)
	return nil
}

func (s *Store) ClearCart(_ context.Context, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cartItems[cartID]; ok {
		s.cartItems[cartID] = make(map[string]cart.Item)
	}
	return nil
}

// OrderStore implementation ----------------------------------------------------

func (s *Store) CreateOrder(_ context.Context, o order.Order) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.CheckoutSessionID != "" {
		for _, existing := range s.orders {
			if existing.CheckoutSessionID == o.CheckoutSessionID {
				return order.Order{}, storage.Conflict("order for checkout session %s already exists", o.CheckoutSessionID)
			}
		}
	}
	if o.ID == "" {
		o.ID = newID()
	}
	now := s.now()
	o.CreatedAt = now
	o.UpdatedAt = now
	o.Items = cloneOrderItems(o.Items)
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
		if o.Items[i].ID == "" {
			o.Items[i].ID = newID()
		}
	}
	s.orders[o.ID] = o
	return cloneOrder(o), nil
}

func (s *Store) GetOrder(_ context.Context, id string) (order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, storage.NotFound("order", id)
	}
	return cloneOrder(o), nil
}

func (s *Store) GetOrderByCheckoutSession(_ context.Context, sessionID string) (order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.orders {
		if o.CheckoutSessionID == sessionID {
			return cloneOrder(o), nil
		}
	}
	return order.Order{}, storage.NotFound("order", "session "+sessionID)
}

func (s *Store) ListOrders(_ context.Context, f order.ListFilter) ([]order.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]order.Order, 0)
	for _, o := range s.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, f.Offset, f.Limit), len(out), nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, from, to order.Status) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, storage.NotFound("order", id)
	}
	if o.Status != from {
		return order.Order{}, storage.Conflict("order %s is %s, not %s", id, o.Status, from)
	}
	o.Status = to
	o.UpdatedAt = s.now()
	s.orders[id] = o
	return cloneOrder(o), nil
}

func (s *Store) CountUserCouponOrders(_ context.Context, userID, couponCode string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, o := range s.orders {
		if o.UserID == userID && strings.EqualFold(o.CouponCode, couponCode) && o.Status != order.StatusCancelled {
			count++
		}
	}
	return count, nil
}

func (s *Store) HasDeliveredProduct(_ context.Context, userID, productID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.orders {
		if o.UserID != userID || o.Status != order.StatusDelivered {
			continue
		}
		for _, item := range o.Items {
			if item.ProductID == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

// PaymentStore implementation --------------------------------------------------

func (s *Store) CreatePayment(_ context.Context, p order.Payment) (order.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.payments[p.OrderID] {
		if existing.GatewayPaymentID == p.GatewayPaymentID {
			return order.Payment{}, storage.Conflict("payment %s already recorded", p.GatewayPaymentID)
		}
	}
	if p.ID == "" {
		p.ID = newID()
	}
	p.CreatedAt = s.now()
	s.payments[p.OrderID] = append(s.payments[p.OrderID], p)
	return p, nil
}

func (s *Store) ListPaymentsByOrder(_ context.Context, orderID string) ([]order.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]order.Payment, len(s.payments[orderID]))
	copy(out, s.payments[orderID])
	return out, nil
}

// CheckoutStore implementation -------------------------------------------------

func (s *Store) CreateSession(_ context.Context, sess checkout.Session) (checkout.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = newID()
	} else if _, exists := s.sessions[sess.ID]; exists {
		return checkout.Session{}, storage.Conflict("checkout session %s already exists", sess.ID)
	}
	now := s.now()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	sess.Lines = cloneOrderItems(sess.Lines)
	s.sessions[sess.ID] = sess
	return cloneSession(sess), nil
}

func (s *Store) UpdateSession(_ context.Context, sess checkout.Session) (checkout.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.sessions[sess.ID]
	if !ok {
		return checkout.Session{}, storage.NotFound("checkout_session", sess.ID)
	}
	sess.CreatedAt = original.CreatedAt
	sess.UpdatedAt = s.now()
	sess.Lines = cloneOrderItems(sess.Lines)
	s.sessions[sess.ID] = sess
	return cloneSession(sess), nil
}

func (s *Store) GetSession(_ context.Context, id string) (checkout.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return checkout.Session{}, storage.NotFound("checkout_session", id)
	}
	return cloneSession(sess), nil
}

func (s *Store) GetSessionByGatewayOrder(_ context.Context, gatewayOrderID string) (checkout.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if sess.GatewayOrderID == gatewayOrderID {
			return cloneSession(sess), nil
		}
	}
	return checkout.Session{}, storage.NotFound("checkout_session", "gateway order "+gatewayOrderID)
}

func (s *Store) ExpireSessions(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			sess.Status = checkout.StatusExpired
			sess.UpdatedAt = s.now()
			s.sessions[id] = sess
			count++
		}
	}
	return count, nil
}

func cloneOrderItems(items []order.Item) []order.Item {
	if items == nil {
		return nil
	}
	out := make([]order.Item, len(items))
	copy(out, items)
	return out
}

func cloneOrder(o order.Order) order.Order {
	o.Items = cloneOrderItems(o.Items)
	return o
}

func cloneSession(sess checkout.Session) checkout.Session {
	sess.Lines = cloneOrderItems(sess.Lines)
	return sess
}

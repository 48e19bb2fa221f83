package orders

import (
	"context"
	"fmt"

	"github.com/patisserie-labs/storefront/internal/app/domain/order"
	"github.com/patisserie-labs/storefront/internal/app/events"
	"github.com/patisserie-labs/storefront/internal/app/storage"
	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// transitions lists the statuses reachable from each status.
var transitions = map[order.Status][]order.Status{
	order.StatusConfirmed:      {order.StatusPreparing, order.StatusCancelled},
	order.StatusPreparing:      {order.StatusOutForDelivery, order.StatusCancelled},
	order.StatusOutForDelivery: {order.StatusDelivered},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to order.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Page is one page of orders.
type Page struct {
	Orders []order.Order `json:"orders"`
	Total  int           `json:"total"`
	Page   int           `json:"page"`
	Limit  int           `json:"limit"`
}

// Service exposes order history to customers and fulfilment to admins.
type Service struct {
	store     storage.OrderStore
	products  storage.ProductStore
	payments  storage.PaymentStore
	publisher events.Publisher
	log       *logger.Logger
}

func New(store storage.OrderStore, products storage.ProductStore, payments storage.PaymentStore, publisher events.Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("orders")
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{store: store, products: products, payments: payments, publisher: publisher, log: log}
}

// List returns orders newest first. An empty userID lists every order.
func (s *Service) List(ctx context.Context, userID string, status order.Status, page, limit int) (Page, error) {
	if status != "" && !status.Valid() {
		return Page{}, svcerrors.Validation("status", fmt.Sprintf("unknown status %q", status))
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	items, total, err := s.store.ListOrders(ctx, order.ListFilter{
		UserID: userID,
		Status: status,
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return Page{}, err
	}
	return Page{Orders: items, Total: total, Page: page, Limit: limit}, nil
}

// Get returns an order for an admin.
func (s *Service) Get(ctx context.Context, id string) (order.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return order.Order{}, storage.ServiceError(err, "order", id)
	}
	return o, nil
}

// GetForUser returns an order owned by userID.
func (s *Service) GetForUser(ctx context.Context, userID, id string) (order.Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	if o.UserID != userID {
		return order.Order{}, svcerrors.Forbidden("order belongs to another user")
	}
	return o, nil
}

// Payments lists gateway payments recorded for an order.
func (s *Service) Payments(ctx context.Context, orderID string) ([]order.Payment, error) {
	if _, err := s.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.payments.ListPaymentsByOrder(ctx, orderID)
}

// Cancel lets a customer cancel an order that has not started preparation.
func (s *Service) Cancel(ctx context.Context, userID, id string) (order.Order, error) {
	o, err := s.GetForUser(ctx, userID, id)
	if err != nil {
		return order.Order{}, err
	}
	if o.Status != order.StatusConfirmed {
		return order.Order{}, svcerrors.Conflict(fmt.Sprintf("order cannot be cancelled once %s", o.Status))
	}
	return s.transition(ctx, o, order.StatusCancelled, "customer")
}

// UpdateStatus moves an order along the fulfilment workflow.
func (s *Service) UpdateStatus(ctx context.Context, id string, status order.Status) (order.Order, error) {
	if !status.Valid() {
		return order.Order{}, svcerrors.Validation("status", fmt.Sprintf("unknown status %q", status))
	}
	o, err := s.Get(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	return s.transition(ctx, o, status, "admin")
}

func (s *Service) transition(ctx context.Context, o order.Order, to order.Status, actor string) (order.Order, error) {
	from := o.Status
	if !CanTransition(from, to) {
		return order.Order{}, svcerrors.Conflict(fmt.Sprintf("cannot move order from %s to %s", from, to)).
			WithDetails("from", string(from)).
			WithDetails("to", string(to))
	}
	updated, err := s.store.UpdateOrderStatus(ctx, o.ID, from, to)
	if storage.IsConflict(err) {
		return order.Order{}, svcerrors.Conflict(fmt.Sprintf("order %s changed status concurrently; reload and retry", o.ID)).
			WithDetails("from", string(from)).
			WithDetails("to", string(to))
	}
	if err != nil {
		return order.Order{}, storage.ServiceError(err, "order", o.ID)
	}
	if to == order.StatusCancelled {
		s.restock(ctx, updated)
	}

	s.log.WithContext(ctx).
		WithField("order_id", o.ID).
		WithField("from", from).
		WithField("to", to).
		WithField("actor", actor).
		Info("order status changed")
	s.publisher.Publish(ctx, events.Event{
		Type: events.TypeOrderStatusChanged,
		Payload: map[string]any{
			"order_id": updated.ID,
			"user_id":  updated.UserID,
			"from":     string(from),
			"to":       string(to),
		},
	})
	return updated, nil
}

// restock returns cancelled quantities to inventory. Products deleted since
// the purchase are skipped.
func (s *Service) restock(ctx context.Context, o order.Order) {
	if s.products == nil {
		return
	}
	for _, item := range o.Items {
		if err := s.products.AdjustStock(ctx, item.ProductID, item.Quantity); err != nil && !storage.IsNotFound(err) {
			s.log.WithContext(ctx).WithError(err).
				WithField("order_id", o.ID).
				WithField("product_id", item.ProductID).
				Warn("restock after cancellation failed")
		}
	}
}

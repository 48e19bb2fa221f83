// Package checkout turns a cart into a paid order: it snapshots the cart
// into a session, opens a gateway order, verifies the payment and
// materialises the order.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domain "github.com/patisserie-labs/storefront/internal/app/domain/checkout"
	"github.com/patisserie-labs/storefront/internal/app/domain/order"
	domainpricing "github.com/patisserie-labs/storefront/internal/app/domain/pricing"
	"github.com/patisserie-labs/storefront/internal/app/domain/user"
	"github.com/patisserie-labs/storefront/internal/app/events"
	"github.com/patisserie-labs/storefront/internal/app/metrics"
	"github.com/patisserie-labs/storefront/internal/app/services/carts"
	"github.com/patisserie-labs/storefront/internal/app/services/coupons"
	"github.com/patisserie-labs/storefront/internal/app/services/pricing"
	"github.com/patisserie-labs/storefront/internal/app/storage"
	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
	"github.com/patisserie-labs/storefront/internal/mail"
	"github.com/patisserie-labs/storefront/internal/payment"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

// CartReader loads a priced cart.
type CartReader interface {
	Get(ctx context.Context, userID string) (carts.View, error)
}

// CouponValidator checks and redeems coupons.
type CouponValidator interface {
	Validate(ctx context.Context, code, userID string, subtotal decimal.Decimal) (coupons.Result, error)
	RecordUsage(ctx context.Context, code string) error
}

// Gateway is the payment gateway.
type Gateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (payment.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (payment.Payment, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) error
	VerifyWebhookSignature(body []byte, signature string) error
}

// Stores groups the persistence the checkout flow touches.
type Stores struct {
	Sessions storage.CheckoutStore
	Orders   storage.OrderStore
	Payments storage.PaymentStore
	Products storage.ProductStore
	Carts    storage.CartStore
	Users    storage.UserStore
}

// StartRequest opens a checkout session for the caller's cart.
type StartRequest struct {
	CouponCode      string
	ShippingAddress user.Address
	Notes           string
}

// Started is returned to the browser to launch the gateway widget.
type Started struct {
	Session  domain.Session `json:"session"`
	KeyID    string         `json:"key_id"`
	Amount   int64          `json:"amount"`
	Currency string         `json:"currency"`
}

// VerifyRequest carries what the gateway widget hands back after payment.
type VerifyRequest struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// Service runs checkout sessions.
type Service struct {
	stores    Stores
	cart      CartReader
	coupons   CouponValidator
	quoter    carts.Quoter
	gateway   Gateway
	mailer    mail.Mailer
	templates mail.Templates
	publisher events.Publisher
	currency  string
	ttl       time.Duration
	log       *logger.Logger
	now       func() time.Time

	// completeMu serialises completion so a browser verify and a webhook
	// for the same payment cannot both create an order.
	completeMu sync.Mutex
}

func New(stores Stores, cart CartReader, couponSvc CouponValidator, quoter carts.Quoter, gateway Gateway, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("checkout")
	}
	return &Service{
		stores:    stores,
		cart:      cart,
		coupons:   couponSvc,
		quoter:    quoter,
		gateway:   gateway,
		publisher: events.NopPublisher{},
		currency:  "INR",
		ttl:       domain.SessionTTL,
		log:       log,
		now:       time.Now,
	}
}

// WithMailer enables order confirmation e-mails.
func (s *Service) WithMailer(m mail.Mailer, templates mail.Templates) {
	s.mailer = m
	s.templates = templates
}

// WithPublisher sets the sink for order events.
func (s *Service) WithPublisher(p events.Publisher) {
	if p != nil {
		s.publisher = p
	}
}

// WithCurrency sets the ISO currency sent to the gateway.
func (s *Service) WithCurrency(currency string) {
	if currency != "" {
		s.currency = strings.ToUpper(currency)
	}
}

// Preview prices the caller's cart with an optional coupon and destination
// without opening a session.
func (s *Service) Preview(ctx context.Context, userID, couponCode string, dest *pricing.Destination) (domainpricing.Quote, error) {
	view, err := s.cart.Get(ctx, userID)
	if err != nil {
		return domainpricing.Quote{}, err
	}
	return s.price(ctx, userID, view, couponCode, dest)
}

func (s *Service) price(ctx context.Context, userID string, view carts.View, couponCode string, dest *pricing.Destination) (domainpricing.Quote, error) {
	lines := view.AvailableLines()
	priced := make([]pricing.Line, 0, len(lines))
	for _, l := range lines {
		priced = append(priced, pricing.Line{UnitPrice: l.UnitPrice, Quantity: l.Quantity})
	}
	subtotal := pricing.Subtotal(priced)

	discount := decimal.Zero
	code := coupons.NormalizeCode(couponCode)
	if code != "" {
		res, err := s.coupons.Validate(ctx, code, userID, subtotal)
		if err != nil {
			return domainpricing.Quote{}, err
		}
		discount = res.Discount
	}
	q, err := s.quoter.Quote(ctx, subtotal, discount, dest)
	if err != nil {
		return domainpricing.Quote{}, err
	}
	q.CouponCode = code
	return q, nil
}

// Start snapshots the caller's cart into a pending session and opens a
// gateway order for its total.
func (s *Service) Start(ctx context.Context, userID string, req StartRequest) (Started, error) {
	if err := validateAddress(req.ShippingAddress); err != nil {
		return Started{}, err
	}
	view, err := s.cart.Get(ctx, userID)
	if err != nil {
		return Started{}, err
	}
	if len(view.Lines) == 0 {
		return Started{}, svcerrors.BadRequest("cart is empty")
	}
	available := view.AvailableLines()
	if len(available) != len(view.Lines) {
		var ids []string
		for _, l := range view.Lines {
			if !l.Available {
				ids = append(ids, l.Product.ID)
			}
		}
		return Started{}, svcerrors.Conflict("some items in the cart are unavailable").WithDetails("product_ids", ids)
	}

	dest := &pricing.Destination{Zone: req.ShippingAddress.Zone, DistanceKm: req.ShippingAddress.DistanceKm}
	quote, err := s.price(ctx, userID, view, req.CouponCode, dest)
	if err != nil {
		return Started{}, err
	}
	amount := pricing.ToMinorUnits(quote.Total)
	if amount <= 0 {
		return Started{}, svcerrors.BadRequest("order total must be positive")
	}

	lines := make([]order.Item, 0, len(available))
	for _, l := range available {
		var image string
		if len(l.Product.Images) > 0 {
			image = l.Product.Images[0]
		}
		lines = append(lines, order.Item{
			ProductID: l.Product.ID,
			Name:      l.Product.Name,
			ImageURL:  image,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			LineTotal: l.LineTotal,
		})
	}

	now := s.now()
	sess := domain.Session{
		ID:              uuid.NewString(),
		UserID:          userID,
		CartID:          view.CartID,
		Status:          domain.StatusPending,
		Lines:           lines,
		Quote:           quote,
		ShippingAddress: req.ShippingAddress,
		Notes:           strings.TrimSpace(req.Notes),
		ExpiresAt:       now.Add(s.ttl),
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, amount, s.currency, sess.ID, map[string]string{
		"session_id": sess.ID,
		"user_id":    userID,
	})
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("session_id", sess.ID).Error("gateway order creation failed")
		return Started{}, svcerrors.Upstream("payment gateway", err)
	}
	sess.GatewayOrderID = gwOrder.ID

	created, err := s.stores.Sessions.CreateSession(ctx, sess)
	if err != nil {
		return Started{}, err
	}
	metrics.RecordCheckout("created", 1)
	s.log.WithContext(ctx).
		WithField("session_id", created.ID).
		WithField("gateway_order_id", created.GatewayOrderID).
		WithField("total", quote.Total.StringFixed(2)).
		Info("checkout session started")

	return Started{Session: created, KeyID: s.gateway.KeyID(), Amount: amount, Currency: s.currency}, nil
}

// Get returns one of the caller's sessions, expiring it if its time is up.
func (s *Service) Get(ctx context.Context, userID, id string) (domain.Session, error) {
	sess, err := s.owned(ctx, userID, id)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.Expired(s.now()) {
		return s.markExpired(ctx, sess)
	}
	return sess, nil
}

// Verify confirms a browser-reported payment and returns the resulting
// order. Verifying a completed session returns its order again.
func (s *Service) Verify(ctx context.Context, userID, id string, req VerifyRequest) (order.Order, error) {
	sess, err := s.owned(ctx, userID, id)
	if err != nil {
		return order.Order{}, err
	}
	if sess.Status == domain.StatusCompleted {
		return s.orderFor(ctx, sess)
	}
	if sess.Status == domain.StatusExpired || sess.Expired(s.now()) {
		if _, err := s.markExpired(ctx, sess); err != nil {
			return order.Order{}, err
		}
		metrics.RecordPaymentVerification("expired")
		return order.Order{}, svcerrors.Expired("checkout session has expired")
	}
	if req.GatewayOrderID != sess.GatewayOrderID {
		metrics.RecordPaymentVerification("order_mismatch")
		return order.Order{}, svcerrors.BadRequest("payment does not belong to this checkout")
	}
	if err := s.gateway.VerifyPaymentSignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature); err != nil {
		metrics.RecordPaymentVerification("bad_signature")
		s.log.LogSecurityEvent(ctx, "payment_signature_mismatch", map[string]interface{}{
			"session_id": sess.ID,
			"payment_id": req.GatewayPaymentID,
		})
		return order.Order{}, svcerrors.BadRequest("payment signature is invalid")
	}

	p, err := s.gateway.FetchPayment(ctx, req.GatewayPaymentID)
	if err != nil {
		return order.Order{}, svcerrors.Upstream("payment gateway", err)
	}
	if p.OrderID != "" && p.OrderID != sess.GatewayOrderID {
		metrics.RecordPaymentVerification("order_mismatch")
		return order.Order{}, svcerrors.BadRequest("payment does not belong to this checkout")
	}
	if !p.Paid() {
		metrics.RecordPaymentVerification("not_captured")
		return order.Order{}, svcerrors.BadRequest("payment has not been captured").WithDetails("payment_status", p.Status)
	}

	metrics.RecordPaymentVerification("ok")
	return s.complete(ctx, sess.ID, p)
}

var handledEvents = map[string]bool{
	payment.EventPaymentCaptured: true,
	payment.EventOrderPaid:       true,
	payment.EventPaymentFailed:   true,
}

// HandleWebhook applies a signed gateway webhook.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if err := s.gateway.VerifyWebhookSignature(body, signature); err != nil {
		s.log.LogSecurityEvent(ctx, "webhook_signature_mismatch", nil)
		return svcerrors.Unauthorized("invalid webhook signature")
	}
	evt, err := payment.ParseWebhook(body)
	if err != nil {
		return svcerrors.BadRequest(err.Error())
	}
	entry := s.log.WithContext(ctx).WithField("event", evt.Event).WithField("gateway_order_id", evt.Payment.OrderID)

	if !handledEvents[evt.Event] {
		entry.Debug("ignoring webhook event")
		return nil
	}
	if evt.Payment.OrderID == "" {
		return svcerrors.BadRequest("webhook payment has no order id")
	}

	sess, err := s.stores.Sessions.GetSessionByGatewayOrder(ctx, evt.Payment.OrderID)
	if storage.IsNotFound(err) {
		entry.Warn("webhook for unknown gateway order")
		return nil
	}
	if err != nil {
		return err
	}

	if evt.Event == payment.EventPaymentFailed {
		return s.fail(ctx, sess, evt.Payment.ErrorReason)
	}
	if evt.Payment.Status == "" {
		evt.Payment.Status = payment.StatusCaptured
	}
	_, err = s.complete(ctx, sess.ID, evt.Payment)
	return err
}

// ExpireStale marks overdue pending sessions as expired.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	n, err := s.stores.Sessions.ExpireSessions(ctx, s.now())
	if err != nil {
		return 0, err
	}
	metrics.RecordCheckout("expired", n)
	return n, nil
}

func (s *Service) owned(ctx context.Context, userID, id string) (domain.Session, error) {
	sess, err := s.stores.Sessions.GetSession(ctx, id)
	if err != nil {
		return domain.Session{}, storage.ServiceError(err, "checkout session", id)
	}
	if sess.UserID != userID {
		return domain.Session{}, svcerrors.Forbidden("checkout session belongs to another user")
	}
	return sess, nil
}

func (s *Service) markExpired(ctx context.Context, sess domain.Session) (domain.Session, error) {
	if sess.Status == domain.StatusExpired {
		return sess, nil
	}
	sess.Status = domain.StatusExpired
	updated, err := s.stores.Sessions.UpdateSession(ctx, sess)
	if err != nil {
		return domain.Session{}, err
	}
	metrics.RecordCheckout("expired", 1)
	return updated, nil
}

func (s *Service) fail(ctx context.Context, sess domain.Session, reason string) error {
	if sess.Status != domain.StatusPending {
		return nil
	}
	sess.Status = domain.StatusFailed
	sess.FailureReason = reason
	if _, err := s.stores.Sessions.UpdateSession(ctx, sess); err != nil {
		return err
	}
	metrics.RecordCheckout("failed", 1)
	s.log.WithContext(ctx).WithField("session_id", sess.ID).WithField("reason", reason).Warn("checkout payment failed")
	s.publisher.Publish(ctx, events.Event{
		Type:    events.TypeCheckoutFailed,
		Payload: map[string]any{"session_id": sess.ID, "user_id": sess.UserID, "reason": reason},
	})
	return nil
}

func (s *Service) orderFor(ctx context.Context, sess domain.Session) (order.Order, error) {
	if sess.OrderID != "" {
		o, err := s.stores.Orders.GetOrder(ctx, sess.OrderID)
		if err == nil {
			return o, nil
		}
		if !storage.IsNotFound(err) {
			return order.Order{}, err
		}
	}
	o, err := s.stores.Orders.GetOrderByCheckoutSession(ctx, sess.ID)
	if err != nil {
		return order.Order{}, storage.ServiceError(err, "order", sess.ID)
	}
	return o, nil
}

// complete turns a paid session into an order exactly once.
func (s *Service) complete(ctx context.Context, sessionID string, p payment.Payment) (order.Order, error) {
	s.completeMu.Lock()
	defer s.completeMu.Unlock()

	sess, err := s.stores.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return order.Order{}, storage.ServiceError(err, "checkout session", sessionID)
	}
	if sess.Status == domain.StatusCompleted {
		return s.orderFor(ctx, sess)
	}
	entry := s.log.WithContext(ctx).WithField("session_id", sess.ID).WithField("payment_id", p.ID)

	adjusted, err := s.reserveStock(ctx, sess.Lines)
	if err != nil {
		entry.WithError(err).Error("paid checkout could not reserve stock")
		_ = s.fail(ctx, sess, "out of stock")
		return order.Order{}, svcerrors.Conflict("an item sold out before payment completed; contact support for a refund")
	}

	created, err := s.stores.Orders.CreateOrder(ctx, order.Order{
		UserID:            sess.UserID,
		Status:            order.StatusConfirmed,
		Items:             sess.Lines,
		Subtotal:          sess.Quote.Subtotal,
		Discount:          sess.Quote.Discount,
		GSTPercent:        sess.Quote.GSTPercent,
		Tax:               sess.Quote.Tax,
		DeliveryFee:       sess.Quote.DeliveryFee,
		Total:             sess.Quote.Total,
		CouponCode:        sess.Quote.CouponCode,
		ShippingAddress:   sess.ShippingAddress,
		CheckoutSessionID: sess.ID,
		GatewayOrderID:    sess.GatewayOrderID,
		GatewayPaymentID:  p.ID,
		Notes:             sess.Notes,
	})
	if err != nil {
		s.releaseStock(ctx, adjusted)
		if storage.IsConflict(err) {
			return s.orderFor(ctx, sess)
		}
		return order.Order{}, err
	}

	if _, err := s.stores.Payments.CreatePayment(ctx, order.Payment{
		OrderID:          created.ID,
		UserID:           sess.UserID,
		GatewayOrderID:   sess.GatewayOrderID,
		GatewayPaymentID: p.ID,
		Amount:           sess.Quote.Total,
		Currency:         s.currency,
		Status:           p.Status,
		Method:           p.Method,
	}); err != nil && !storage.IsConflict(err) {
		entry.WithError(err).Error("record payment failed")
	}
	if sess.Quote.CouponCode != "" {
		if err := s.coupons.RecordUsage(ctx, sess.Quote.CouponCode); err != nil {
			entry.WithError(err).Warn("record coupon usage failed")
		}
	}
	if sess.CartID != "" {
		if err := s.stores.Carts.ClearCart(ctx, sess.CartID); err != nil {
			entry.WithError(err).Warn("clear cart failed")
		}
	}

	sess.Status = domain.StatusCompleted
	sess.OrderID = created.ID
	sess.FailureReason = ""
	if _, err := s.stores.Sessions.UpdateSession(ctx, sess); err != nil {
		return order.Order{}, err
	}

	metrics.RecordCheckout("completed", 1)
	metrics.RecordOrder(created.Total)
	entry.WithField("order_id", created.ID).WithField("total", created.Total.StringFixed(2)).Info("order placed")
	s.publisher.Publish(ctx, events.Event{
		Type: events.TypeOrderCreated,
		Payload: map[string]any{
			"order_id": created.ID,
			"user_id":  created.UserID,
			"total":    created.Total.StringFixed(2),
			"items":    len(created.Items),
		},
	})
	s.sendConfirmation(ctx, created)
	return created, nil
}

func (s *Service) reserveStock(ctx context.Context, lines []order.Item) ([]order.Item, error) {
	adjusted := make([]order.Item, 0, len(lines))
	for _, l := range lines {
		if err := s.stores.Products.AdjustStock(ctx, l.ProductID, -l.Quantity); err != nil {
			s.releaseStock(ctx, adjusted)
			return nil, fmt.Errorf("reserve %s: %w", l.ProductID, err)
		}
		adjusted = append(adjusted, l)
	}
	return adjusted, nil
}

func (s *Service) releaseStock(ctx context.Context, lines []order.Item) {
	for _, l := range lines {
		if err := s.stores.Products.AdjustStock(ctx, l.ProductID, l.Quantity); err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("product_id", l.ProductID).Error("release stock failed")
		}
	}
}

// sendConfirmation e-mails the receipt. Failures are logged only.
func (s *Service) sendConfirmation(ctx context.Context, o order.Order) {
	if s.mailer == nil || s.stores.Users == nil {
		return
	}
	u, err := s.stores.Users.GetUser(ctx, o.UserID)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("order_id", o.ID).Warn("confirmation e-mail skipped")
		return
	}
	name := u.Name
	if name == "" {
		name = o.ShippingAddress.Name
	}
	msg, err := s.templates.OrderConfirmation(u.Email, name, o)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	metrics.RecordMail("order_confirmation", err == nil)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("order_id", o.ID).Warn("confirmation e-mail failed")
	}
}

func validateAddress(a user.Address) error {
	required := []struct{ field, value string }{
		{"shipping_address.name", a.Name},
		{"shipping_address.phone", a.Phone},
		{"shipping_address.line1", a.Line1},
		{"shipping_address.city", a.City},
		{"shipping_address.postal_code", a.PostalCode},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return svcerrors.Validation(r.field, r.field+" is required")
		}
	}
	if a.DistanceKm < 0 {
		return svcerrors.Validation("shipping_address.distance_km", "distance must not be negative")
	}
	return nil
}

package carts

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/patisserie-labs/storefront/internal/app/domain/cart"
	"github.com/patisserie-labs/storefront/internal/app/domain/catalog"
	domainpricing "github.com/patisserie-labs/storefront/internal/app/domain/pricing"
	"github.com/patisserie-labs/storefront/internal/app/services/pricing"
	"github.com/patisserie-labs/storefront/internal/app/storage"
	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

// Quoter prices a subtotal.
type Quoter interface {
	Quote(ctx context.Context, subtotal, discount decimal.Decimal, dest *pricing.Destination) (domainpricing.Quote, error)
}

// Line is a cart item joined with its product.
type Line struct {
	Product   catalog.Product `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	// Available is false when the product was deactivated or sold out.
	Available bool `json:"available"`
}

// View is the priced contents of a cart.
type View struct {
	CartID    string              `json:"cart_id"`
	Lines     []Line              `json:"lines"`
	ItemCount int                 `json:"item_count"`
	Quote     domainpricing.Quote `json:"quote"`
}

// AvailableLines returns the lines that can be purchased.
func (v View) AvailableLines() []Line {
	out := make([]Line, 0, len(v.Lines))
	for _, l := range v.Lines {
		if l.Available {
			out = append(out, l)
		}
	}
	return out
}

// Service manages shopping carts.
type Service struct {
	carts    storage.CartStore
	products storage.ProductStore
	quoter   Quoter
	log      *logger.Logger
}

// New constructs a cart service.
func New(carts storage.CartStore, products storage.ProductStore, quoter Quoter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("carts")
	}
	return &Service{carts: carts, products: products, quoter: quoter, log: log}
}

// Get returns the caller's cart priced without delivery.
func (s *Service) Get(ctx context.Context, userID string) (View, error) {
	c, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, c)
}

// SetQuantity sets the quantity of a product. Repeating the call with the
// same quantity leaves the cart unchanged.
func (s *Service) SetQuantity(ctx context.Context, userID, productID string, quantity int) (View, error) {
	c, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return View{}, err
	}
	if err := s.setLine(ctx, c, productID, quantity); err != nil {
		return View{}, err
	}
	return s.view(ctx, c)
}

// Add increments the quantity of a product, creating the line if needed.
func (s *Service) Add(ctx context.Context, userID, productID string, quantity int) (View, error) {
	if quantity < 1 {
		return View{}, svcerrors.Validation("quantity", "quantity must be at least 1")
	}
	c, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return View{}, err
	}
	items, err := s.carts.ListCartItems(ctx, c.ID)
	if err != nil {
		return View{}, err
	}
	for _, item := range items {
		if item.ProductID == productID {
			quantity += item.Quantity
			break
		}
	}
	if err := s.setLine(ctx, c, productID, quantity); err != nil {
		return View{}, err
	}
	return s.view(ctx, c)
}

// Remove deletes a product from the cart. Removing an absent product is a no-op.
func (s *Service) Remove(ctx context.Context, userID, productID string) (View, error) {
	c, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return View{}, err
	}
	if err := s.carts.DeleteCartItem(ctx, c.ID, productID); err != nil {
		return View{}, err
	}
	s.log.WithContext(ctx).WithField("cart_id", c.ID).
		WithField("product_id", productID).
		Debug("cart item removed")
	return s.view(ctx, c)
}

// Clear empties the caller's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	c, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return err
	}
	return s.carts.ClearCart(ctx, c.ID)
}

func (s *Service) setLine(ctx context.Context, c cart.Cart, productID string, quantity int) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return svcerrors.Validation("product_id", "product_id is required")
	}
	if quantity < 1 || quantity > cart.MaxQuantityPerItem {
		return svcerrors.Validation("quantity", fmt.Sprintf("quantity must be between 1 and %d", cart.MaxQuantityPerItem))
	}
	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return storage.ServiceError(err, "product", productID)
	}
	if !p.Active {
		return svcerrors.BadRequest("product is not available").WithDetails("product_id", productID)
	}
	if quantity > p.Stock {
		return svcerrors.BadRequest(fmt.Sprintf("only %d left in stock", p.Stock)).
			WithDetails("product_id", productID).
			WithDetails("available", p.Stock)
	}
	if _, err := s.carts.UpsertCartItem(ctx, cart.Item{CartID: c.ID, ProductID: productID, Quantity: quantity}); err != nil {
		return err
	}
	s.log.WithContext(ctx).WithField("cart_id", c.ID).
		WithField("product_id", productID).
		WithField("quantity", quantity).
		Debug("cart item set")
	return nil
}

func (s *Service) view(ctx context.Context, c cart.Cart) (View, error) {
	items, err := s.carts.ListCartItems(ctx, c.ID)
	if err != nil {
		return View{}, err
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products := make(map[string]catalog.Product, len(ids))
	if len(ids) > 0 {
		found, _, err := s.products.ListProducts(ctx, catalog.ProductFilter{IDs: ids, IncludeInactive: true})
		if err != nil {
			return View{}, err
		}
		for _, p := range found {
			products[p.ID] = p
		}
	}

	v := View{CartID: c.ID, Lines: make([]Line, 0, len(items))}
	var priced []pricing.Line
	for _, item := range items {
		p, ok := products[item.ProductID]
		if !ok {
			continue
		}
		unit := p.UnitPrice()
		line := Line{
			Product:   p,
			Quantity:  item.Quantity,
			UnitPrice: unit,
			LineTotal: unit.Mul(decimal.NewFromInt(int64(item.Quantity))),
			Available: p.Active && p.Stock >= item.Quantity,
		}
		v.Lines = append(v.Lines, line)
		if line.Available {
			v.ItemCount += item.Quantity
			priced = append(priced, pricing.Line{UnitPrice: unit, Quantity: item.Quantity})
		}
	}

	if s.quoter != nil {
		q, err := s.quoter.Quote(ctx, pricing.Subtotal(priced), decimal.Zero, nil)
		if err != nil {
			return View{}, err
		}
		v.Quote = q
	}
	return v, nil
}

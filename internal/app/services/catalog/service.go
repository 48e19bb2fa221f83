package catalog

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/patisserie-labs/storefront/internal/app/domain/catalog"
	"github.com/patisserie-labs/storefront/internal/app/storage"
	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Service manages categories and products.
type Service struct {
	categories storage.CategoryStore
	products   storage.ProductStore
	log        *logger.Logger
}

// New constructs a catalog service.
func New(categories storage.CategoryStore, products storage.ProductStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("catalog")
	}
	return &Service{categories: categories, products: products, log: log}
}

// Categories -------------------------------------------------------------------

func (s *Service) ListCategories(ctx context.Context, includeInactive bool) ([]catalog.Category, error) {
	return s.categories.ListCategories(ctx, includeInactive)
}

// GetCategoryBySlug returns a category. Inactive categories are only
// visible when includeInactive is set.
func (s *Service) GetCategoryBySlug(ctx context.Context, slug string, includeInactive bool) (catalog.Category, error) {
	c, err := s.categories.GetCategoryBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return catalog.Category{}, storage.ServiceError(err, "category", slug)
	}
	if !c.Active && !includeInactive {
		return catalog.Category{}, svcerrors.NotFound("category", slug)
	}
	return c, nil
}

func (s *Service) GetCategory(ctx context.Context, id string) (catalog.Category, error) {
	c, err := s.categories.GetCategory(ctx, id)
	return c, storage.ServiceError(err, "category", id)
}

func (s *Service) CreateCategory(ctx context.Context, c catalog.Category) (catalog.Category, error) {
	if err := prepareCategory(&c); err != nil {
		return catalog.Category{}, err
	}
	created, err := s.categories.CreateCategory(ctx, c)
	if err != nil {
		return catalog.Category{}, storage.ServiceError(err, "category", c.Slug)
	}
	s.log.WithContext(ctx).WithField("category_id", created.ID).
		WithField("slug", created.Slug).
		Info("category created")
	return created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, c catalog.Category) (catalog.Category, error) {
	if _, err := s.categories.GetCategory(ctx, id); err != nil {
		return catalog.Category{}, storage.ServiceError(err, "category", id)
	}
	c.ID = id
	if err := prepareCategory(&c); err != nil {
		return catalog.Category{}, err
	}
	updated, err := s.categories.UpdateCategory(ctx, c)
	if err != nil {
		return catalog.Category{}, storage.ServiceError(err, "category", id)
	}
	s.log.WithContext(ctx).WithField("category_id", id).Info("category updated")
	return updated, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := s.categories.DeleteCategory(ctx, id); err != nil {
		return storage.ServiceError(err, "category", id)
	}
	s.log.WithContext(ctx).WithField("category_id", id).Info("category deleted")
	return nil
}

func prepareCategory(c *catalog.Category) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return svcerrors.Validation("name", "name is required")
	}
	c.Slug = Slugify(c.Slug)
	if c.Slug == "" {
		c.Slug = Slugify(c.Name)
	}
	if c.Slug == "" {
		return svcerrors.Validation("slug", "slug must contain letters or digits")
	}
	return nil
}

// Products ---------------------------------------------------------------------

// ProductQuery is a public listing request.
type ProductQuery struct {
	CategorySlug string
	CategoryID   string
	Search       string
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	Featured     *bool
	InStock      bool
	Sort         string
	Page         int
	Limit        int
	// IncludeInactive exposes hidden products (admin listings).
	IncludeInactive bool
}

// ListProducts returns one page of products matching q.
func (s *Service) ListProducts(ctx context.Context, q ProductQuery) (catalog.ProductPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultPageSize
	case q.Limit > MaxPageSize:
		q.Limit = MaxPageSize
	}
	switch q.Sort {
	case "":
		q.Sort = catalog.SortNewest
	case catalog.SortNewest, catalog.SortPriceAsc, catalog.SortPriceDesc, catalog.SortRating, catalog.SortName:
	default:
		return catalog.ProductPage{}, svcerrors.Validation("sort", "sort must be one of newest, price_asc, price_desc, rating, name")
	}
	if q.MinPrice != nil && q.MaxPrice != nil && q.MinPrice.GreaterThan(*q.MaxPrice) {
		return catalog.ProductPage{}, svcerrors.Validation("min_price", "min_price must not exceed max_price")
	}

	filter := catalog.ProductFilter{
		CategoryID:      q.CategoryID,
		Search:          strings.TrimSpace(q.Search),
		MinPrice:        q.MinPrice,
		MaxPrice:        q.MaxPrice,
		Featured:        q.Featured,
		InStock:         q.InStock,
		IncludeInactive: q.IncludeInactive,
		Sort:            q.Sort,
		Offset:          (q.Page - 1) * q.Limit,
		Limit:           q.Limit,
	}
	if q.CategorySlug != "" {
		c, err := s.GetCategoryBySlug(ctx, q.CategorySlug, q.IncludeInactive)
		if err != nil {
			return catalog.ProductPage{}, err
		}
		filter.CategoryID = c.ID
	}

	products, total, err := s.products.ListProducts(ctx, filter)
	if err != nil {
		return catalog.ProductPage{}, err
	}
	return catalog.ProductPage{Products: products, Total: total, Page: q.Page, Limit: q.Limit}, nil
}

// GetProduct looks a product up by slug, falling back to ID. Inactive
// products are hidden unless includeInactive is set.
func (s *Service) GetProduct(ctx context.Context, slugOrID string, includeInactive bool) (catalog.Product, error) {
	p, err := s.products.GetProductBySlug(ctx, slugOrID)
	if storage.IsNotFound(err) {
		p, err = s.products.GetProduct(ctx, slugOrID)
	}
	if err != nil {
		return catalog.Product{}, storage.ServiceError(err, "product", slugOrID)
	}
	if !p.Active && !includeInactive {
		return catalog.Product{}, svcerrors.NotFound("product", slugOrID)
	}
	return p, nil
}

// ProductsByID returns the products with the given IDs keyed by ID,
// including inactive ones.
func (s *Service) ProductsByID(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	out := make(map[string]catalog.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	products, _, err := s.products.ListProducts(ctx, catalog.ProductFilter{IDs: ids, IncludeInactive: true})
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (s *Service) CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if err := s.prepareProduct(ctx, &p); err != nil {
		return catalog.Product{}, err
	}
	p.Rating = 0
	p.ReviewCount = 0
	created, err := s.products.CreateProduct(ctx, p)
	if err != nil {
		return catalog.Product{}, storage.ServiceError(err, "product", p.Slug)
	}
	s.log.WithContext(ctx).WithField("product_id", created.ID).
		WithField("slug", created.Slug).
		WithField("price", created.Price.String()).
		Info("product created")
	return created, nil
}

// UpdateProduct replaces a product's editable fields. Rating aggregates are
// preserved.
func (s *Service) UpdateProduct(ctx context.Context, id string, p catalog.Product) (catalog.Product, error) {
	existing, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return catalog.Product{}, storage.ServiceError(err, "product", id)
	}
	p.ID = id
	if err := s.prepareProduct(ctx, &p); err != nil {
		return catalog.Product{}, err
	}
	p.Rating = existing.Rating
	p.ReviewCount = existing.ReviewCount
	updated, err := s.products.UpdateProduct(ctx, p)
	if err != nil {
		return catalog.Product{}, storage.ServiceError(err, "product", id)
	}
	s.log.WithContext(ctx).WithField("product_id", id).Info("product updated")
	return updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.products.DeleteProduct(ctx, id); err != nil {
		return storage.ServiceError(err, "product", id)
	}
	s.log.WithContext(ctx).WithField("product_id", id).Info("product deleted")
	return nil
}

func (s *Service) prepareProduct(ctx context.Context, p *catalog.Product) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return svcerrors.Validation("name", "name is required")
	}
	p.Slug = Slugify(p.Slug)
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	if p.Slug == "" {
		return svcerrors.Validation("slug", "slug must contain letters or digits")
	}
	if !p.Price.IsPositive() {
		return svcerrors.Validation("price", "price must be positive")
	}
	if p.SalePrice.Valid && p.SalePrice.Decimal.IsNegative() {
		return svcerrors.Validation("sale_price", "sale_price must not be negative")
	}
	if p.Stock < 0 {
		return svcerrors.Validation("stock", "stock must not be negative")
	}
	if p.CategoryID == "" {
		return svcerrors.Validation("category_id", "category_id is required")
	}
	if _, err := s.categories.GetCategory(ctx, p.CategoryID); err != nil {
		if storage.IsNotFound(err) {
			return svcerrors.Validation("category_id", "category does not exist")
		}
		return err
	}
	return nil
}

package supabase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/patisserie-labs/storefront/internal/app/domain/catalog"
	"github.com/patisserie-labs/storefront/internal/app/storage"
	"github.com/patisserie-labs/storefront/supabase/client"
)

// --- CategoryStore ----------------------------------------------------------

func (s *Store) CreateCategory(ctx context.Context, c catalog.Category) (catalog.Category, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	return insertOne[catalog.Category](ctx, s.db.From("categories"), c, "category", c.Slug)
}

func (s *Store) UpdateCategory(ctx context.Context, c catalog.Category) (catalog.Category, error) {
	c.UpdatedAt = s.now()
	row, err := toRow(c, "id", "created_at")
	if err != nil {
		return catalog.Category{}, err
	}
	return updateOne[catalog.Category](ctx, s.db.From("categories").Eq("id", c.ID), row, "category", c.ID)
}

func (s *Store) GetCategory(ctx context.Context, id string) (catalog.Category, error) {
	return selectOne[catalog.Category](ctx, s.db.From("categories").Select("*").Eq("id", id), "category", id)
}

func (s *Store) GetCategoryBySlug(ctx context.Context, slug string) (catalog.Category, error) {
	return selectOne[catalog.Category](ctx, s.db.From("categories").Select("*").Eq("slug", slug), "category", slug)
}

func (s *Store) ListCategories(ctx context.Context, includeInactive bool) ([]catalog.Category, error) {
	q := s.db.From("categories").Select("*")
	if !includeInactive {
		q = q.Eq("active", true)
	}
	return selectRows[catalog.Category](ctx, q.Order("position", true).Order("name", true))
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	n, err := deleteRows(ctx, s.db.From("categories").Eq("id", id))
	if err != nil {
		return translate(err, "category", id)
	}
	if n == 0 {
		return storage.NotFound("category", id)
	}
	return nil
}

// --- ProductStore -----------------------------------------------------------

func productRow(p catalog.Product, omit ...string) (map[string]any, error) {
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	row, err := toRow(p, omit...)
	if err != nil {
		return nil, err
	}
	nullIfEmpty(row, "category_id")
	return row, nil
}

func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	row, err := productRow(p)
	if err != nil {
		return catalog.Product{}, err
	}
	return insertOne[catalog.Product](ctx, s.db.From("products"), row, "product", p.Slug)
}

func (s *Store) UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	p.UpdatedAt = s.now()
	// rating and review_count are owned by SetProductRating.
	row, err := productRow(p, "id", "created_at", "rating", "review_count")
	if err != nil {
		return catalog.Product{}, err
	}
	return updateOne[catalog.Product](ctx, s.db.From("products").Eq("id", p.ID), row, "product", p.ID)
}

func (s *Store) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	return selectOne[catalog.Product](ctx, s.db.From("products").Select("*").Eq("id", id), "product", id)
}

func (s *Store) GetProductBySlug(ctx context.Context, slug string) (catalog.Product, error) {
	return selectOne[catalog.Product](ctx, s.db.From("products").Select("*").Eq("slug", slug), "product", slug)
}

func (s *Store) ListProducts(ctx context.Context, f catalog.ProductFilter) ([]catalog.Product, int, error) {
	q := s.db.From("products").Select("*")
	if !f.IncludeInactive {
		q = q.Eq("active", true)
	}
	if len(f.IDs) > 0 {
		q = q.In("id", f.IDs)
	}
	if f.CategoryID != "" {
		q = q.Eq("category_id", f.CategoryID)
	}
	if f.Featured != nil {
		q = q.Eq("featured", *f.Featured)
	}
	if f.InStock {
		q = q.Gt("stock", 0)
	}
	if f.MinPrice != nil {
		q = q.Gte("unit_price", f.MinPrice.String())
	}
	if f.MaxPrice != nil {
		q = q.Lte("unit_price", f.MaxPrice.String())
	}
	if term := sanitizeSearch(f.Search); term != "" {
		q = q.Or(fmt.Sprintf("name.ilike.*%s*,description.ilike.*%s*,tags.cs.{%s}", term, term, term))
	}
	switch f.Sort {
	case catalog.SortPriceAsc:
		q = q.Order("unit_price", true)
	case catalog.SortPriceDesc:
		q = q.Order("unit_price", false)
	case catalog.SortRating:
		q = q.Order("rating", false)
	case catalog.SortName:
	default:
		q = q.Order("created_at", false)
	}
	q = q.Order("name", true).Offset(f.Offset)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	products, total, err := selectPage[catalog.Product](ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, total, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	n, err := deleteRows(ctx, s.db.From("products").Eq("id", id))
	if err != nil {
		return translate(err, "product", id)
	}
	if n == 0 {
		return storage.NotFound("product", id)
	}
	return nil
}

// AdjustStock runs adjust_stock, which updates the row in a single statement
// and raises a check violation instead of going negative.
func (s *Store) AdjustStock(ctx context.Context, productID string, delta int) error {
	var stock *int
	err := s.rpc(ctx, "adjust_stock", map[string]any{"p_product_id": productID, "p_delta": delta}, &stock)
	if client.IsCheckViolation(err) {
		return storage.Conflict("insufficient stock for product %s", productID)
	}
	if err != nil {
		return translate(err, "product", productID)
	}
	if stock == nil {
		return storage.NotFound("product", productID)
	}
	return nil
}

func (s *Store) SetProductRating(ctx context.Context, productID string, rating float64, count int) error {
	_, err := updateOne[catalog.Product](ctx, s.db.From("products").Eq("id", productID),
		map[string]any{"rating": rating, "review_count": count}, "product", productID)
	return err
}

// sanitizeSearch strips characters that carry meaning in PostgREST filter
// expressions.
func sanitizeSearch(term string) string {
	term = strings.TrimSpace(term)
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', '(', ')', '*', '{', '}', '"', '\\', '.', ':':
			return -1
		}
		return r
	}, term)
}

// --- FavoriteStore ----------------------------------------------------------

func (s *Store) AddFavorite(ctx context.Context, fav catalog.Favorite) error {
	row := map[string]any{"user_id": fav.UserID, "product_id": fav.ProductID}
	resp, err := s.db.From("favorites").ExecuteUpsert(ctx, row, "user_id,product_id")
	return translate(check(resp, err), "favorite", fav.ProductID)
}

func (s *Store) RemoveFavorite(ctx context.Context, userID, productID string) error {
	_, err := deleteRows(ctx, s.db.From("favorites").Eq("user_id", userID).Eq("product_id", productID))
	return translate(err, "favorite", productID)
}

func (s *Store) ListFavorites(ctx context.Context, userID string) ([]catalog.Favorite, error) {
	return selectRows[catalog.Favorite](ctx, s.db.From("favorites").Select("*").Eq("user_id", userID).Order("created_at", false))
}

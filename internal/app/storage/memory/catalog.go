package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/patisserie-labs/storefront/internal/app/domain/catalog"
	"github.com/patisserie-labs/storefront/internal/app/storage"
)

// CategoryStore implementation -------------------------------------------------

func (s *Store) CreateCategory(_ context.Context, c catalog.Category) (catalog.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.categorySlugTakenLocked(c.Slug, "") {
		return catalog.Category{}, storage.Conflict("category slug %s already exists", c.Slug)
	}
	if c.ID == "" {
		c.ID = newID()
	}
	now := s.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCategory(_ context.Context, c catalog.Category) (catalog.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.categories[c.ID]
	if !ok {
		return catalog.Category{}, storage.NotFound("category", c.ID)
	}
	if s.categorySlugTakenLocked(c.Slug, c.ID) {
		return catalog.Category{}, storage.Conflict("category slug %s already exists", c.Slug)
	}
	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = s.now()
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (catalog.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[id]
	if !ok {
		return catalog.Category{}, storage.NotFound("category", id)
	}
	return c, nil
}

func (s *Store) GetCategoryBySlug(_ context.Context, slug string) (catalog.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.categories {
		if c.Slug == slug {
			return c, nil
		}
	}
	return catalog.Category{}, storage.NotFound("category", slug)
}

func (s *Store) ListCategories(_ context.Context, includeInactive bool) ([]catalog.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if !includeInactive && !c.Active {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return storage.NotFound("category", id)
	}
	for _, p := range s.products {
		if p.CategoryID == id {
			return storage.Conflict("category %s still has products", id)
		}
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) categorySlugTakenLocked(slug, exceptID string) bool {
	for id, c := range s.categories {
		if c.Slug == slug && id != exceptID {
			return true
		}
	}
	return false
}

// ProductStore implementation --------------------------------------------------

func (s *Store) CreateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.productSlugTakenLocked(p.Slug, "") {
		return catalog.Product{}, storage.Conflict("product slug %s already exists", p.Slug)
	}
	if p.ID == "" {
		p.ID = newID()
	}
	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	p = cloneProduct(p)
	s.products[p.ID] = p
	return cloneProduct(p), nil
}

func (s *Store) UpdateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.products[p.ID]
	if !ok {
		return catalog.Product{}, storage.NotFound("product", p.ID)
	}
	if s.productSlugTakenLocked(p.Slug, p.ID) {
		return catalog.Product{}, storage.Conflict("product slug %s already exists", p.Slug)
	}
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = s.now()
	p = cloneProduct(p)
	s.products[p.ID] = p
	return cloneProduct(p), nil
}

func (s *Store) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, storage.NotFound("product", id)
	}
	return cloneProduct(p), nil
}

func (s *Store) GetProductBySlug(_ context.Context, slug string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Slug == slug {
			return cloneProduct(p), nil
		}
	}
	return catalog.Product{}, storage.NotFound("product", slug)
}

func (s *Store) ListProducts(_ context.Context, f catalog.ProductFilter) ([]catalog.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids map[string]bool
	if len(f.IDs) > 0 {
		ids = make(map[string]bool, len(f.IDs))
		for _, id := range f.IDs {
			ids[id] = true
		}
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]catalog.Product, 0)
	for _, p := range s.products {
		if !f.IncludeInactive && !p.Active {
			continue
		}
		if ids != nil && !ids[p.ID] {
			continue
		}
		if f.CategoryID != "" && p.CategoryID != f.CategoryID {
			continue
		}
		if f.Featured != nil && p.Featured != *f.Featured {
			continue
		}
		if f.InStock && p.Stock <= 0 {
			continue
		}
		price := p.UnitPrice()
		if f.MinPrice != nil && price.LessThan(*f.MinPrice) {
			continue
		}
		if f.MaxPrice != nil && price.GreaterThan(*f.MaxPrice) {
			continue
		}
		if search != "" && !matchesSearch(p, search) {
			continue
		}
		out = append(out, cloneProduct(p))
	}

	sortProducts(out, f.Sort)
	return page(out, f.Offset, f.Limit), len(out), nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return storage.NotFound("product", id)
	}
	delete(s.products, id)
	for _, items := range s.cartItems {
		delete(items, id)
	}
	for _, favs := range s.favorites {
		delete(favs, id)
	}
	return nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return storage.NotFound("product", productID)
	}
	if p.Stock+delta < 0 {
		return storage.Conflict("insufficient stock for product %s", productID)
	}
	p.Stock += delta
	p.UpdatedAt = s.now()
	s.products[productID] = p
	return nil
}

func (s *Store) SetProductRating(_ context.Context, productID string, rating float64, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return storage.NotFound("product", productID)
	}
	p.Rating = rating
	p.ReviewCount = count
	s.products[productID] = p
	return nil
}

func (s *Store) productSlugTakenLocked(slug, exceptID string) bool {
	for id, p := range s.products {
		if p.Slug == slug && id != exceptID {
			return true
		}
	}
	return false
}

func matchesSearch(p catalog.Product, term string) bool {
	if strings.Contains(strings.ToLower(p.Name), term) || strings.Contains(strings.ToLower(p.Description), term) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.EqualFold(tag, term) {
			return true
		}
	}
	return false
}

func sortProducts(items []catalog.Product, order string) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch order {
		case catalog.SortPriceAsc:
			if !a.UnitPrice().Equal(b.UnitPrice()) {
				return a.UnitPrice().LessThan(b.UnitPrice())
			}
		case catalog.SortPriceDesc:
			if !a.UnitPrice().Equal(b.UnitPrice()) {
				return a.UnitPrice().GreaterThan(b.UnitPrice())
			}
		case catalog.SortRating:
			if a.Rating != b.Rating {
				return a.Rating > b.Rating
			}
		case catalog.SortName:
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		}
		return a.Name < b.Name
	})
}

// FavoriteStore implementation -------------------------------------------------

func (s *Store) AddFavorite(_ context.Context, fav catalog.Favorite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	favs := s.favorites[fav.UserID]
	if favs == nil {
		favs = make(map[string]catalog.Favorite)
		s.favorites[fav.UserID] = favs
	}
	if _, exists := favs[fav.ProductID]; exists {
		return nil
	}
	if fav.CreatedAt.IsZero() {
		fav.CreatedAt = s.now()
	}
	favs[fav.ProductID] = fav
	return nil
}

func (s *Store) RemoveFavorite(_ context.Context, userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.favorites[userID], productID)
	return nil
}

func (s *Store) ListFavorites(_ context.Context, userID string) ([]catalog.Favorite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Favorite, 0, len(s.favorites[userID]))
	for _, fav := range s.favorites[userID] {
		out = append(out, fav)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func cloneProduct(p catalog.Product) catalog.Product {
	p.Images = cloneStrings(p.Images)
	p.Tags = cloneStrings(p.Tags)
	return p
}

package favorites

import (
	"context"

	"github.com/patisserie-labs/storefront/internal/app/domain/catalog"
	"github.com/patisserie-labs/storefront/internal/app/storage"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

// Service manages users' saved products.
type Service struct {
	store    storage.FavoriteStore
	products storage.ProductStore
	log      *logger.Logger
}

func New(store storage.FavoriteStore, products storage.ProductStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("favorites")
	}
	return &Service{store: store, products: products, log: log}
}

// Add saves a product. Saving it twice is a no-op.
func (s *Service) Add(ctx context.Context, userID, productID string) error {
	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return storage.ServiceError(err, "product", productID)
	}
	if !p.Active {
		return storage.ServiceError(storage.ErrNotFound, "product", productID)
	}
	if err := s.store.AddFavorite(ctx, catalog.Favorite{UserID: userID, ProductID: productID}); err != nil {
		return err
	}
	s.log.WithContext(ctx).WithField("product_id", productID).Debug("favorite added")
	return nil
}

// Remove un-saves a product. Removing an absent favorite is a no-op.
func (s *Service) Remove(ctx context.Context, userID, productID string) error {
	return s.store.RemoveFavorite(ctx, userID, productID)
}

// List returns the saved products that still exist and are active, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]catalog.Product, error) {
	favs, err := s.store.ListFavorites(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(favs) == 0 {
		return []catalog.Product{}, nil
	}
	ids := make([]string, 0, len(favs))
	for _, f := range favs {
		ids = append(ids, f.ProductID)
	}
	found, _, err := s.products.ListProducts(ctx, catalog.ProductFilter{IDs: ids})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]catalog.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]catalog.Product, 0, len(found))
	for _, f := range favs {
		if p, ok := byID[f.ProductID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

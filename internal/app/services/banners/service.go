package banners

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/patisserie-labs/storefront/internal/app/domain/banner"
	"github.com/patisserie-labs/storefront/internal/app/storage"
	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

// Service manages homepage banners.
type Service struct {
	store storage.BannerStore
	log   *logger.Logger
	now   func() time.Time
}

func New(store storage.BannerStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("banners")
	}
	return &Service{store: store, log: log, now: time.Now}
}

// Visible returns the banners a shopper should see now, ordered by position.
func (s *Service) Visible(ctx context.Context) ([]banner.Banner, error) {
	all, err := s.store.ListBanners(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]banner.Banner, 0, len(all))
	for _, b := range all {
		if b.Visible(now) {
			out = append(out, b)
		}
	}
	sortByPosition(out)
	return out, nil
}

// List returns every banner for the admin panel.
func (s *Service) List(ctx context.Context) ([]banner.Banner, error) {
	all, err := s.store.ListBanners(ctx)
	if err != nil {
		return nil, err
	}
	sortByPosition(all)
	return all, nil
}

func (s *Service) Get(ctx context.Context, id string) (banner.Banner, error) {
	b, err := s.store.GetBanner(ctx, id)
	if err != nil {
		return banner.Banner{}, storage.ServiceError(err, "banner", id)
	}
	return b, nil
}

func (s *Service) Create(ctx context.Context, b banner.Banner) (banner.Banner, error) {
	if err := validate(&b); err != nil {
		return banner.Banner{}, err
	}
	b.ID = ""
	created, err := s.store.CreateBanner(ctx, b)
	if err != nil {
		return banner.Banner{}, err
	}
	s.log.WithContext(ctx).WithField("banner_id", created.ID).Info("banner created")
	return created, nil
}

func (s *Service) Update(ctx context.Context, b banner.Banner) (banner.Banner, error) {
	if _, err := s.Get(ctx, b.ID); err != nil {
		return banner.Banner{}, err
	}
	if err := validate(&b); err != nil {
		return banner.Banner{}, err
	}
	updated, err := s.store.UpdateBanner(ctx, b)
	if err != nil {
		return banner.Banner{}, storage.ServiceError(err, "banner", b.ID)
	}
	s.log.WithContext(ctx).WithField("banner_id", b.ID).Info("banner updated")
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteBanner(ctx, id); err != nil {
		return storage.ServiceError(err, "banner", id)
	}
	s.log.WithContext(ctx).WithField("banner_id", id).Info("banner deleted")
	return nil
}

func validate(b *banner.Banner) error {
	b.Title = strings.TrimSpace(b.Title)
	b.ImageURL = strings.TrimSpace(b.ImageURL)
	if b.Title == "" {
		return svcerrors.Validation("title", "title is required")
	}
	if b.ImageURL == "" {
		return svcerrors.Validation("image_url", "image_url is required")
	}
	if b.Position < 0 {
		return svcerrors.Validation("position", "position must not be negative")
	}
	if b.StartsAt != nil && b.EndsAt != nil && !b.EndsAt.After(*b.StartsAt) {
		return svcerrors.Validation("ends_at", "ends_at must be after starts_at")
	}
	return nil
}

func sortByPosition(list []banner.Banner) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Position != list[j].Position {
			return list[i].Position < list[j].Position
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}

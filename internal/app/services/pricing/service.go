package pricing

import (
	"context"

	"github.com/shopspring/decimal"

	domain "github.com/patisserie-labs/storefront/internal/app/domain/pricing"
	"github.com/patisserie-labs/storefront/internal/app/storage"
	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

// Service serves tax and delivery settings and prices carts. Settings saved
// by an admin override the defaults loaded from configuration.
type Service struct {
	store           storage.SettingsStore
	defaultTax      domain.TaxSettings
	defaultDelivery domain.DeliverySettings
	log             *logger.Logger
}

// New constructs a pricing service.
func New(store storage.SettingsStore, tax domain.TaxSettings, delivery domain.DeliverySettings, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("pricing")
	}
	return &Service{store: store, defaultTax: tax, defaultDelivery: delivery, log: log}
}

// TaxSettings returns the effective tax settings.
func (s *Service) TaxSettings(ctx context.Context) (domain.TaxSettings, error) {
	t, err := s.store.GetTaxSettings(ctx)
	if storage.IsNotFound(err) {
		return s.defaultTax, nil
	}
	return t, err
}

// DeliverySettings returns the effective delivery settings.
func (s *Service) DeliverySettings(ctx context.Context) (domain.DeliverySettings, error) {
	d, err := s.store.GetDeliverySettings(ctx)
	if storage.IsNotFound(err) {
		return s.defaultDelivery, nil
	}
	return d, err
}

// UpdateTaxSettings stores a new GST percentage (0..100).
func (s *Service) UpdateTaxSettings(ctx context.Context, gstPercent decimal.Decimal) (domain.TaxSettings, error) {
	if gstPercent.IsNegative() || gstPercent.GreaterThan(hundred) {
		return domain.TaxSettings{}, svcerrors.Validation("gst_percent", "gst_percent must be between 0 and 100")
	}
	saved, err := s.store.SaveTaxSettings(ctx, domain.TaxSettings{GSTPercent: gstPercent})
	if err != nil {
		return domain.TaxSettings{}, err
	}
	s.log.WithContext(ctx).WithField("gst_percent", gstPercent.String()).Info("tax settings updated")
	return saved, nil
}

// UpdateDeliverySettings validates and stores delivery settings.
func (s *Service) UpdateDeliverySettings(ctx context.Context, d domain.DeliverySettings) (domain.DeliverySettings, error) {
	if err := validateDelivery(d); err != nil {
		return domain.DeliverySettings{}, err
	}
	normalized := make(map[string]decimal.Decimal, len(d.ZoneMultipliers))
	for zone, m := range d.ZoneMultipliers {
		normalized[normalizeZone(zone)] = m
	}
	d.ZoneMultipliers = normalized

	saved, err := s.store.SaveDeliverySettings(ctx, d)
	if err != nil {
		return domain.DeliverySettings{}, err
	}
	s.log.WithContext(ctx).WithField("zones", len(d.ZoneMultipliers)).Info("delivery settings updated")
	return saved, nil
}

// Quote prices a cart. dest may be nil to skip delivery.
func (s *Service) Quote(ctx context.Context, subtotal, discount decimal.Decimal, dest *Destination) (domain.Quote, error) {
	tax, err := s.TaxSettings(ctx)
	if err != nil {
		return domain.Quote{}, err
	}
	delivery, err := s.DeliverySettings(ctx)
	if err != nil {
		return domain.Quote{}, err
	}
	return Calculate(tax, delivery, subtotal, discount, dest)
}

func validateDelivery(d domain.DeliverySettings) error {
	fields := map[string]decimal.Decimal{
		"base_fee":            d.BaseFee,
		"per_km_rate":         d.PerKmRate,
		"included_km":         d.IncludedKm,
		"max_distance_km":     d.MaxDistanceKm,
		"free_delivery_above": d.FreeDeliveryAbove,
	}
	for name, v := range fields {
		if v.IsNegative() {
			return svcerrors.Validation(name, name+" must not be negative")
		}
	}
	if len(d.ZoneMultipliers) == 0 {
		return svcerrors.Validation("zone_multipliers", "at least one zone is required")
	}
	for zone, m := range d.ZoneMultipliers {
		if normalizeZone(zone) == "" {
			return svcerrors.Validation("zone_multipliers", "zone names must not be empty")
		}
		if !m.IsPositive() {
			return svcerrors.Validation("zone_multipliers", "zone "+zone+" multiplier must be positive")
		}
	}
	return nil
}

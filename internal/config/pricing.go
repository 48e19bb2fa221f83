package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/patisserie-labs/storefront/internal/app/domain/pricing"
)

// PricingFile mirrors config/pricing.yaml.
type PricingFile struct {
	GSTPercent float64 `yaml:"gst_percent"`
	Delivery   struct {
		BaseFee           float64            `yaml:"base_fee"`
		PerKmRate         float64            `yaml:"per_km_rate"`
		IncludedKm        float64            `yaml:"included_km"`
		MaxDistanceKm     float64            `yaml:"max_distance_km"`
		FreeDeliveryAbove float64            `yaml:"free_delivery_above"`
		Zones             map[string]float64 `yaml:"zones"`
	} `yaml:"delivery"`
}

// Pricing is the resolved default pricing rules.
type Pricing struct {
	Tax      pricing.TaxSettings
	Delivery pricing.DeliverySettings
}

// LoadPricing loads config/pricing.yaml.
func LoadPricing() (*Pricing, error) {
	return LoadPricingFromPath(filepath.Join("config", "pricing.yaml"))
}

// LoadPricingFromPath parses and validates a pricing file.
func LoadPricingFromPath(path string) (*Pricing, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing config: %w", err)
	}

	var file PricingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse pricing config: %w", err)
	}

	if file.GSTPercent < 0 || file.GSTPercent > 100 {
		return nil, fmt.Errorf("gst_percent must be between 0 and 100, got %v", file.GSTPercent)
	}
	if len(file.Delivery.Zones) == 0 {
		return nil, errors.New("delivery.zones must define at least one zone")
	}
	for zone, m := range file.Delivery.Zones {
		if m <= 0 {
			return nil, fmt.Errorf("zone %s: multiplier must be positive", zone)
		}
	}

	zones := make(map[string]decimal.Decimal, len(file.Delivery.Zones))
	for zone, m := range file.Delivery.Zones {
		zones[zone] = decimal.NewFromFloat(m)
	}
	return &Pricing{
		Tax: pricing.TaxSettings{GSTPercent: decimal.NewFromFloat(file.GSTPercent)},
		Delivery: pricing.DeliverySettings{
			BaseFee:           decimal.NewFromFloat(file.Delivery.BaseFee),
			PerKmRate:         decimal.NewFromFloat(file.Delivery.PerKmRate),
			IncludedKm:        decimal.NewFromFloat(file.Delivery.IncludedKm),
			MaxDistanceKm:     decimal.NewFromFloat(file.Delivery.MaxDistanceKm),
			FreeDeliveryAbove: decimal.NewFromFloat(file.Delivery.FreeDeliveryAbove),
			ZoneMultipliers:   zones,
		},
	}, nil
}

// LoadPricingOrDefault returns DefaultPricing when the file is absent.
func LoadPricingOrDefault(path string) (*Pricing, error) {
	p, err := LoadPricingFromPath(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultPricing(), nil
	}
	return p, err
}

// DefaultPricing is 18% GST with a three zone delivery table.
func DefaultPricing() *Pricing {
	return &Pricing{
		Tax: pricing.TaxSettings{GSTPercent: decimal.NewFromInt(18)},
		Delivery: pricing.DeliverySettings{
			BaseFee:           decimal.NewFromInt(40),
			PerKmRate:         decimal.NewFromInt(8),
			IncludedKm:        decimal.NewFromInt(3),
			MaxDistanceKm:     decimal.NewFromInt(25),
			FreeDeliveryAbove: decimal.NewFromInt(1500),
			ZoneMultipliers: map[string]decimal.Decimal{
				"central":   decimal.NewFromInt(1),
				"suburban":  decimal.RequireFromString("1.25"),
				"outskirts": decimal.RequireFromString("1.5"),
			},
		},
	}
}

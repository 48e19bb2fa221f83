package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/patisserie-labs/storefront/internal/app/domain/pricing"
	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
)

var hundred = decimal.NewFromInt(100)

// Line is one priced cart line.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Destination describes where an order is delivered. A nil destination
// prices the cart without delivery.
type Destination struct {
	Zone       string
	DistanceKm float64
}

// Subtotal sums unit price times quantity.
func Subtotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total.Round(2)
}

// Tax returns taxable × gst / 100 rounded to two places.
func Tax(taxable, gstPercent decimal.Decimal) decimal.Decimal {
	return taxable.Mul(gstPercent).Div(hundred).Round(2)
}

// DeliveryFee computes (base + perKm × max(0, distance − included)) × zone
// multiplier. Orders whose taxable amount reaches FreeDeliveryAbove ship free.
func DeliveryFee(settings domain.DeliverySettings, taxable decimal.Decimal, dest Destination) (decimal.Decimal, error) {
	zone := normalizeZone(dest.Zone)
	multiplier, ok := settings.ZoneMultipliers[zone]
	if !ok {
		return decimal.Zero, svcerrors.Validation("zone", fmt.Sprintf("unknown delivery zone %q", dest.Zone))
	}
	if dest.DistanceKm < 0 {
		return decimal.Zero, svcerrors.Validation("distance_km", "distance must not be negative")
	}
	distance := decimal.NewFromFloat(dest.DistanceKm)
	if settings.MaxDistanceKm.IsPositive() && distance.GreaterThan(settings.MaxDistanceKm) {
		return decimal.Zero, svcerrors.Validation("distance_km",
			fmt.Sprintf("address is beyond the %s km delivery radius", settings.MaxDistanceKm.String()))
	}
	if settings.FreeDeliveryAbove.IsPositive() && taxable.GreaterThanOrEqual(settings.FreeDeliveryAbove) {
		return decimal.Zero, nil
	}

	extraKm := distance.Sub(settings.IncludedKm)
	if extraKm.IsNegative() {
		extraKm = decimal.Zero
	}
	fee := settings.BaseFee.Add(settings.PerKmRate.Mul(extraKm)).Mul(multiplier)
	return fee.Round(2), nil
}

// Calculate builds a full quote from a subtotal and a pre-validated discount.
func Calculate(tax domain.TaxSettings, delivery domain.DeliverySettings, subtotal, discount decimal.Decimal, dest *Destination) (domain.Quote, error) {
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	taxable := subtotal.Sub(discount)

	q := domain.Quote{
		Subtotal:    subtotal.Round(2),
		Discount:    discount.Round(2),
		Taxable:     taxable.Round(2),
		GSTPercent:  tax.GSTPercent,
		Tax:         Tax(taxable, tax.GSTPercent),
		DeliveryFee: decimal.Zero,
	}
	if dest != nil {
		fee, err := DeliveryFee(delivery, taxable, *dest)
		if err != nil {
			return domain.Quote{}, err
		}
		q.DeliveryFee = fee
		q.Zone = normalizeZone(dest.Zone)
		q.DistanceKm = dest.DistanceKm
	}
	q.Total = q.Taxable.Add(q.Tax).Add(q.DeliveryFee)
	return q, nil
}

// ToMinorUnits converts an amount to paise for the payment gateway.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func normalizeZone(zone string) string {
	return strings.ToLower(strings.TrimSpace(zone))
}

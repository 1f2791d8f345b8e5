// Package commission splits an order's payment among platform, business and
// driver, and provides the validated commission rates the split is based on.
package commission

import (
	"delivery_ledger/internal/domain"

	"github.com/shopspring/decimal"
)

// DefaultMarkup is the platform commission on the product base when no
// configuration has been saved yet.
var DefaultMarkup = decimal.RequireFromString("0.15")

// Input is what the order-completion workflow knows about an order.
// ProductBase and PlatformFee are optional precomputed values.
type Input struct {
	Total       int64
	DeliveryFee int64
	ProductBase *int64
	PlatformFee *int64
}

// Split is the result of Calculate. Platform+Business+Driver always equals Total.
type Split struct {
	Platform    int64 `json:"platform"`     // Platform fee
	Business    int64 `json:"business"`     // Business earnings
	Driver      int64 `json:"driver"`       // Driver earnings (the delivery fee)
	Total       int64 `json:"total"`        // Order total
	ProductBase int64 `json:"product_base"` // Product price before markup
}

// Calculate splits an order total. The business keeps the whole product base,
// the driver the whole delivery fee and the platform the markup on the base.
// The customer total already contains the markup, so a missing product base is
// backed out as (total - deliveryFee) / (1 + markup) and any rounding remainder
// lands in the business share.
func Calculate(in Input, markup decimal.Decimal) (Split, error) {
	const op = "commission.Calculate"

	if in.Total <= 0 {
		return Split{}, domain.E(domain.KindValidation, op, "total must be positive, got %d", in.Total)
	}
	if in.DeliveryFee < 0 {
		return Split{}, domain.E(domain.KindValidation, op, "delivery fee must not be negative, got %d", in.DeliveryFee)
	}
	if in.DeliveryFee > in.Total {
		return Split{}, domain.E(domain.KindValidation, op, "delivery fee %d exceeds total %d", in.DeliveryFee, in.Total)
	}
	if markup.IsNegative() {
		return Split{}, domain.E(domain.KindValidation, op, "markup must not be negative, got %s", markup)
	}

	goods := in.Total - in.DeliveryFee

	var base int64
	switch {
	case in.ProductBase != nil:
		if *in.ProductBase < 0 || *in.ProductBase > goods {
			return Split{}, domain.E(domain.KindValidation, op, "product base %d outside [0, %d]", *in.ProductBase, goods)
		}
		base = *in.ProductBase
	default:
		base = decimal.NewFromInt(goods).Div(decimal.NewFromInt(1).Add(markup)).Round(0).IntPart()
	}

	var platform int64
	if in.PlatformFee != nil {
		if *in.PlatformFee < 0 {
			return Split{}, domain.E(domain.KindValidation, op, "platform fee must not be negative, got %d", *in.PlatformFee)
		}
		platform = *in.PlatformFee
	} else {
		platform = decimal.NewFromInt(base).Mul(markup).Round(0).IntPart()
	}

	business := goods - platform
	if business < 0 {
		return Split{}, domain.E(domain.KindValidation, op, "platform fee %d exceeds goods amount %d", platform, goods)
	}

	return Split{
		Platform:    platform,
		Business:    business,
		Driver:      in.DeliveryFee,
		Total:       in.Total,
		ProductBase: base,
	}, nil
}

// DriverEarnings is the driver's pass-through share of a delivery fee.
func DriverEarnings(deliveryFee int64, driverRate decimal.Decimal) int64 {
	return decimal.NewFromInt(deliveryFee).Mul(driverRate).Round(0).IntPart()
}

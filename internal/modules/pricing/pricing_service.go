package pricing

import (
	"math"

	"parcel-dispatch/internal/models"
)

// All prices are in Kenyan Shillings (KES).
const (
	BaseFare   = 150.0
	PricePerKm = 50.0

	// Weight fees by tier. Boundaries are inclusive on the higher tier:
	// exactly 5kg is Medium, not Small.
	SmallFee  = 150.0  // < 5kg
	MediumFee = 300.0  // 5-20kg
	LargeFee  = 500.0  // 20-50kg
	XLargeFee = 1000.0 // >= 50kg

	MaxWeightKg = 100.0

	// Additive surcharge rates, applied once to the subtotal.
	FragileRate   = 0.15
	InsuranceRate = 0.10
	ExpressRate   = 0.25
	WeekendRate   = 0.20

	// Delivery time estimation.
	StandardSpeedKmh = 40.0
	ExpressSpeedKmh  = 60.0
	HandlingMinutes  = 15.0

	Currency = "KES"
)

// Weight tier names exposed in the breakdown.
const (
	TierSmall  = "SMALL"
	TierMedium = "MEDIUM"
	TierLarge  = "LARGE"
	TierXLarge = "XLARGE"
)

// Modifiers are the boolean order attributes that affect the price.
type Modifiers struct {
	Fragile           bool
	InsuranceRequired bool
	IsExpress         bool
	IsWeekend         bool
}

// WeightTier returns the tier name and fee for a package weight.
func WeightTier(weightKg float64) (string, float64) {
	switch {
	case weightKg < 5:
		return TierSmall, SmallFee
	case weightKg < 20:
		return TierMedium, MediumFee
	case weightKg < 50:
		return TierLarge, LargeFee
	default:
		return TierXLarge, XLargeFee
	}
}

// SurchargeRate sums the applicable surcharge rates. The stacking is
// additive: two modifiers together never compound.
func SurchargeRate(m Modifiers) float64 {
	rate := 0.0
	if m.Fragile {
		rate += FragileRate
	}
	if m.InsuranceRequired {
		rate += InsuranceRate
	}
	if m.IsExpress {
		rate += ExpressRate
	}
	if m.IsWeekend {
		rate += WeekendRate
	}
	return rate
}

// EstimateMinutes returns the delivery ETA for a distance, including a fixed
// pickup/drop-off handling buffer.
func EstimateMinutes(distanceKm float64, isExpress bool) float64 {
	speed := StandardSpeedKmh
	if isExpress {
		speed = ExpressSpeedKmh
	}
	return distanceKm/speed*60 + HandlingMinutes
}

// Estimate computes the full price breakdown for a delivery. It is pure and
// deterministic: no I/O, no clock reads, no randomness.
func Estimate(weightKg, distanceKm float64, m Modifiers) (*models.PriceBreakdown, error) {
	if weightKg <= 0 || distanceKm < 0 {
		return nil, models.ErrValidation
	}
	if weightKg > MaxWeightKg {
		return nil, models.ErrPackageTooLarge
	}

	tier, weightFee := WeightTier(weightKg)
	distanceFee := distanceKm * PricePerKm
	subtotal := BaseFare + distanceFee + weightFee

	rate := SurchargeRate(m)
	total := round2(subtotal * (1 + rate))

	return &models.PriceBreakdown{
		BaseFare:        BaseFare,
		DistanceFee:     round2(distanceFee),
		WeightFee:       weightFee,
		WeightTier:      tier,
		Subtotal:        round2(subtotal),
		SurchargeRate:   rate,
		SurchargeAmount: round2(total - subtotal),
		GrandTotal:      total,
		Currency:        Currency,
		EtaMinutes:      math.Round(EstimateMinutes(distanceKm, m.IsExpress)),
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

// DefaultFeePercent is the platform's share of every booking.
var DefaultFeePercent = decimal.RequireFromString("0.25")

var (
	ErrNonPositivePrice = errors.New("base price must be greater than zero")
	ErrInvalidFee       = errors.New("fee percent must be between 0 and 1")
)

type Breakdown struct {
	BasePrice      decimal.Decimal `json:"basePrice"`
	PlatformFee    decimal.Decimal `json:"platformFee"`
	TalentEarnings decimal.Decimal `json:"talentEarnings"`
}

// Compute splits basePrice into the platform fee and the talent's earnings.
// The fee is rounded to cents first and earnings are derived by subtraction, so
// PlatformFee + TalentEarnings always equals BasePrice.
func Compute(basePrice, feePercent decimal.Decimal) (Breakdown, error) {
	if !basePrice.IsPositive() {
		return Breakdown{}, ErrNonPositivePrice
	}
	if feePercent.IsNegative() || feePercent.GreaterThan(decimal.NewFromInt(1)) {
		return Breakdown{}, ErrInvalidFee
	}

	base := basePrice.Round(2)
	if !base.IsPositive() {
		return Breakdown{}, ErrNonPositivePrice
	}
	fee := base.Mul(feePercent).Round(2)
	return Breakdown{
		BasePrice:      base,
		PlatformFee:    fee,
		TalentEarnings: base.Sub(fee),
	}, nil
}

// ParseFeePercent reads a configured fee, falling back to DefaultFeePercent.
func ParseFeePercent(s string) decimal.Decimal {
	if s == "" {
		return DefaultFeePercent
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return DefaultFeePercent
	}
	return d
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

const (
	CurrencyUSD = "USD"
	CurrencyZIG = "ZIG"
)

// SupportedCurrencies is the fixed set a booking may be priced in.
var SupportedCurrencies = []string{CurrencyUSD, CurrencyZIG}

// SupportedGateways lists the payment providers a customer may choose.
var SupportedGateways = []string{"stripe", "paynow", "ecocash", "innbucks"}

func IsSupportedCurrency(c string) bool {
	for _, s := range SupportedCurrencies {
		if s == c {
			return true
		}
	}
	return false
}

func IsSupportedGateway(g string) bool {
	for _, s := range SupportedGateways {
		if s == g {
			return true
		}
	}
	return false
}

type Talent struct {
	bun.BaseModel `bun:"table:talents"`

	ID                  string          `bun:"id,pk" json:"id"`
	UserID              string          `bun:"user_id,unique,notnull" json:"userId"`
	DisplayName         string          `bun:"display_name,notnull" json:"displayName"`
	Category            string          `bun:"category,nullzero" json:"category,omitempty"`
	PriceUSD            decimal.Decimal `bun:"price_usd,type:numeric(12,2),notnull" json:"priceUsd"`
	PriceZIG            decimal.Decimal `bun:"price_zig,type:numeric(12,2),notnull" json:"priceZig"`
	ResponseTimeHours   int             `bun:"response_time_hours,notnull" json:"responseTimeHours"`
	IsVerified          bool            `bun:"is_verified,notnull" json:"isVerified"`
	IsAcceptingBookings bool            `bun:"is_accepting_bookings,notnull" json:"isAcceptingBookings"`
	CreatedAt           time.Time       `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt           time.Time       `bun:"updated_at,notnull" json:"updatedAt"`
}

// PriceFor returns the configured base price in currency, zero when none is set.
func (t Talent) PriceFor(currency string) decimal.Decimal {
	switch currency {
	case CurrencyUSD:
		return t.PriceUSD
	case CurrencyZIG:
		return t.PriceZIG
	default:
		return decimal.Zero
	}
}

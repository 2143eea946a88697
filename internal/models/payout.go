package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type PayoutStatus string

const (
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

type PayoutMethod string

const (
	PayoutBankTransfer PayoutMethod = "bank_transfer"
	PayoutMobileMoney  PayoutMethod = "mobile_money"
)

type Payout struct {
	bun.BaseModel `bun:"table:payouts"`

	ID               string          `bun:"id,pk" json:"id"`
	TalentID         string          `bun:"talent_id,notnull" json:"talentId"`
	Amount           decimal.Decimal `bun:"amount,type:numeric(12,2),notnull" json:"amount"`
	Currency         string          `bun:"currency,notnull" json:"currency"`
	Method           PayoutMethod    `bun:"method,notnull" json:"method"`
	AccountDetails   string          `bun:"account_details,notnull" json:"accountDetails"`
	Reference        string          `bun:"reference,unique,notnull" json:"reference"`
	Status           PayoutStatus    `bun:"status,notnull" json:"status"`
	EstimatedArrival time.Time       `bun:"estimated_arrival,notnull" json:"estimatedArrival"`
	CreatedAt        time.Time       `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt        time.Time       `bun:"updated_at,notnull" json:"updatedAt"`
}

type PayoutRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency" validate:"required,currency"`
	Method         PayoutMethod    `json:"method" validate:"required,payout_method"`
	AccountDetails string          `json:"accountDetails" validate:"required,max=256"`
}

// PayoutSummary is a talent's payout history with the balance left per currency.
type PayoutSummary struct {
	Payouts  []Payout  `json:"payouts"`
	Balances []Balance `json:"balances"`
}

// Balance is a talent's position in one currency.
type Balance struct {
	Currency  string          `json:"currency"`
	Earned    decimal.Decimal `json:"earned"`
	PaidOut   decimal.Decimal `json:"paidOut"`
	Available decimal.Decimal `json:"available"`
}

type PayoutEvent struct {
	Type      string          `json:"type"`
	PayoutID  string          `json:"payout_id"`
	TalentID  string          `json:"talent_id"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Method    PayoutMethod    `json:"method"`
	Timestamp time.Time       `json:"timestamp"`
}

package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"torashaout/internal/models"
)

// DB handles the admin reporting and talent moderation queries
type DB struct {
	bun *bun.DB
}

func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

type statusCount struct {
	Status string `bun:"status"`
	Count  int    `bun:"count"`
}

// CountBookingsByStatus returns how many bookings sit in each status
func (db *DB) CountBookingsByStatus(ctx context.Context) (map[models.BookingStatus]int, error) {
	var rows []statusCount
	err := db.bun.NewRaw("SELECT status, COUNT(*) AS count FROM bookings GROUP BY status").Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("count bookings: %w", err)
	}
	out := make(map[models.BookingStatus]int, len(rows))
	for _, r := range rows {
		out[models.BookingStatus(r.Status)] = r.Count
	}
	return out, nil
}

// CountPaymentsByStatus returns how many payments sit in each status
func (db *DB) CountPaymentsByStatus(ctx context.Context) (map[models.PaymentStatus]int, error) {
	var rows []statusCount
	err := db.bun.NewRaw("SELECT status, COUNT(*) AS count FROM payments GROUP BY status").Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("count payments: %w", err)
	}
	out := make(map[models.PaymentStatus]int, len(rows))
	for _, r := range rows {
		out[models.PaymentStatus(r.Status)] = r.Count
	}
	return out, nil
}

type CurrencyRevenue struct {
	Currency       string          `bun:"currency" json:"currency"`
	Bookings       int             `bun:"bookings" json:"bookings"`
	Gross          decimal.Decimal `bun:"gross" json:"gross"`
	PlatformFees   decimal.Decimal `bun:"fees" json:"platformFees"`
	TalentEarnings decimal.Decimal `bun:"earnings" json:"talentEarnings"`
}

// RevenueByCurrency totals paid bookings. Refunded and cancelled ones are left out.
func (db *DB) RevenueByCurrency(ctx context.Context) ([]CurrencyRevenue, error) {
	rows := []CurrencyRevenue{}
	err := db.bun.NewRaw(`
		SELECT
			currency,
			COUNT(*) AS bookings,
			COALESCE(SUM(amount_paid), 0) AS gross,
			COALESCE(SUM(platform_fee), 0) AS fees,
			COALESCE(SUM(talent_earnings), 0) AS earnings
		FROM bookings
		WHERE status IN (?)
		GROUP BY currency
		ORDER BY currency
	`, bun.In([]models.BookingStatus{
		models.BookingPaymentConfirmed,
		models.BookingInProgress,
		models.BookingCompleted,
	})).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("revenue by currency: %w", err)
	}
	return rows, nil
}

type CurrencyPayouts struct {
	Currency string          `bun:"currency" json:"currency"`
	Payouts  int             `bun:"payouts" json:"payouts"`
	Amount   decimal.Decimal `bun:"amount" json:"amount"`
}

// PayoutsByCurrency totals payouts that did not fail
func (db *DB) PayoutsByCurrency(ctx context.Context) ([]CurrencyPayouts, error) {
	rows := []CurrencyPayouts{}
	err := db.bun.NewRaw(`
		SELECT currency, COUNT(*) AS payouts, COALESCE(SUM(amount), 0) AS amount
		FROM payouts
		WHERE status <> ?
		GROUP BY currency
		ORDER BY currency
	`, models.PayoutFailed).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("payouts by currency: %w", err)
	}
	return rows, nil
}

type TalentCounts struct {
	Total     int `bun:"total" json:"total"`
	Verified  int `bun:"verified" json:"verified"`
	Accepting int `bun:"accepting" json:"accepting"`
}

func (db *DB) CountTalents(ctx context.Context) (TalentCounts, error) {
	var c TalentCounts
	err := db.bun.NewRaw(`
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN is_verified THEN 1 ELSE 0 END), 0) AS verified,
			COALESCE(SUM(CASE WHEN is_verified AND is_accepting_bookings THEN 1 ELSE 0 END), 0) AS accepting
		FROM talents
	`).Scan(ctx, &c)
	if err != nil {
		return c, fmt.Errorf("count talents: %w", err)
	}
	return c, nil
}

// SetTalentFlag writes one moderation flag and returns the updated talent, nil if
// no talent has id.
func (db *DB) SetTalentFlag(ctx context.Context, id, column string, value bool, at time.Time) (*models.Talent, error) {
	res, err := db.bun.NewUpdate().
		Model((*models.Talent)(nil)).
		Set("? = ?", bun.Ident(column), value).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update talent %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}

	var t models.Talent
	err = db.bun.NewSelect().Model(&t).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reload talent %s: %w", id, err)
	}
	return &t, nil
}

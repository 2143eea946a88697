package payout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"torashaout/internal/models"
)

// DB is the payout ledger. Balances are always derived from bookings and payouts,
// never stored.
type DB struct {
	Bun *bun.DB
}

func NewDB(db *bun.DB) *DB {
	return &DB{Bun: db}
}

type currencyTotal struct {
	Currency string          `bun:"currency"`
	Total    decimal.Decimal `bun:"total"`
}

func (d *DB) GetTalentByUserID(ctx context.Context, userID string) (*models.Talent, error) {
	var t models.Talent
	err := d.Bun.NewSelect().Model(&t).Where("user_id = ?", userID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get talent for user %s: %w", userID, err)
	}
	return &t, nil
}

// Earned sums talent_earnings of the talent's completed bookings per currency.
func (d *DB) Earned(ctx context.Context, talentID string) (map[string]decimal.Decimal, error) {
	var rows []currencyTotal
	err := d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		ColumnExpr("currency").
		ColumnExpr("COALESCE(SUM(talent_earnings), 0) AS total").
		Where("talent_id = ?", talentID).
		Where("status = ?", models.BookingCompleted).
		Group("currency").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("sum earnings for %s: %w", talentID, err)
	}
	return totals(rows), nil
}

// PaidOut sums every payout that has not failed per currency.
func (d *DB) PaidOut(ctx context.Context, talentID string) (map[string]decimal.Decimal, error) {
	var rows []currencyTotal
	err := d.Bun.NewSelect().
		Model((*models.Payout)(nil)).
		ColumnExpr("currency").
		ColumnExpr("COALESCE(SUM(amount), 0) AS total").
		Where("talent_id = ?", talentID).
		Where("status <> ?", models.PayoutFailed).
		Group("currency").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("sum payouts for %s: %w", talentID, err)
	}
	return totals(rows), nil
}

func totals(rows []currencyTotal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		out[r.Currency] = r.Total
	}
	return out
}

func (d *DB) InsertPayout(ctx context.Context, p *models.Payout) error {
	if _, err := d.Bun.NewInsert().Model(p).Exec(ctx); err != nil {
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

func (d *DB) ListPayouts(ctx context.Context, talentID string) ([]models.Payout, error) {
	payouts := []models.Payout{}
	err := d.Bun.NewSelect().
		Model(&payouts).
		Where("talent_id = ?", talentID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payouts for %s: %w", talentID, err)
	}
	return payouts, nil
}

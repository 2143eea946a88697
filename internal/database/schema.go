package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"torashaout/internal/models"
)

// OneCompletedPaymentIndex is the unique partial index that makes a second completed
// payment for a booking impossible at the store level.
const OneCompletedPaymentIndex = "payments_one_completed_per_booking"

// CreateSchema creates every table and index from the bun models. It is idempotent
// and works on both postgres and sqlite; production deployments use the SQL
// migrations instead.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{
		(*models.Talent)(nil),
		(*models.Booking)(nil),
		(*models.Payment)(nil),
		(*models.Payout)(nil),
		(*models.Notification)(nil),
	}
	for _, m := range tables {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}

	indexes := []*bun.CreateIndexQuery{
		db.NewCreateIndex().Model((*models.Payment)(nil)).
			Unique().
			Index(OneCompletedPaymentIndex).
			Column("booking_id").
			Where("status = 'completed'"),
		db.NewCreateIndex().Model((*models.Payment)(nil)).
			Index("payments_reference_idx").
			Column("reference"),
		db.NewCreateIndex().Model((*models.Booking)(nil)).
			Index("bookings_customer_idx").
			Column("customer_id", "created_at"),
		db.NewCreateIndex().Model((*models.Booking)(nil)).
			Index("bookings_talent_status_idx").
			Column("talent_id", "status"),
		db.NewCreateIndex().Model((*models.Payout)(nil)).
			Index("payouts_talent_idx").
			Column("talent_id", "currency"),
		db.NewCreateIndex().Model((*models.Notification)(nil)).
			Index("notifications_user_idx").
			Column("user_id", "created_at"),
	}
	for _, q := range indexes {
		if _, err := q.IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// DropSchema removes every table. Used by the migrate tool's reset mode.
func DropSchema(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{
		(*models.Notification)(nil),
		(*models.Payout)(nil),
		(*models.Payment)(nil),
		(*models.Booking)(nil),
		(*models.Talent)(nil),
	}
	for _, m := range tables {
		if _, err := db.NewDropTable().Model(m).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop table for %T: %w", m, err)
		}
	}
	return nil
}

package testdb

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"torashaout/internal/models"
	"torashaout/internal/pricing"
)

// SeedTalent inserts a verified talent accepting bookings at USD 100 with a 48
// hour response time. mods adjust it before the insert.
func SeedTalent(t testing.TB, db *bun.DB, mods ...func(*models.Talent)) *models.Talent {
	t.Helper()

	now := time.Now().UTC()
	talent := &models.Talent{
		ID:                  uuid.NewString(),
		UserID:              "talent-" + uuid.NewString()[:8],
		DisplayName:         "Jah Prayzah",
		Category:            "musician",
		PriceUSD:            decimal.NewFromInt(100),
		PriceZIG:            decimal.Zero,
		ResponseTimeHours:   48,
		IsVerified:          true,
		IsAcceptingBookings: true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	for _, m := range mods {
		m(talent)
	}

	if _, err := db.NewInsert().Model(talent).Exec(context.Background()); err != nil {
		t.Fatalf("Failed to seed talent: %v", err)
	}
	return talent
}

// SeedBooking inserts a USD booking for talent at its configured price, already in
// status. It bypasses the booking service so tests can start anywhere in the
// lifecycle.
func SeedBooking(t testing.TB, db *bun.DB, talent *models.Talent, customerID string, status models.BookingStatus) *models.Booking {
	t.Helper()

	split, err := pricing.Compute(talent.PriceFor(models.CurrencyUSD), pricing.DefaultFeePercent)
	if err != nil {
		t.Fatalf("Failed to price seeded booking: %v", err)
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	b := &models.Booking{
		ID:             id,
		BookingCode:    "TS-SEED-" + id[:8],
		CustomerID:     customerID,
		TalentID:       talent.ID,
		RecipientName:  "Rudo",
		Occasion:       "birthday",
		Instructions:   "Say hi",
		FromName:       "Tendai",
		FromEmail:      "tendai@example.com",
		Currency:       models.CurrencyUSD,
		PaymentGateway: "ecocash",
		AmountPaid:     split.BasePrice,
		PlatformFee:    split.PlatformFee,
		TalentEarnings: split.TalentEarnings,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
		DueDate:        now.Add(time.Duration(talent.ResponseTimeHours) * time.Hour),
	}
	if status == models.BookingCompleted {
		b.CompletedAt = &now
	}

	if _, err := db.NewInsert().Model(b).Exec(context.Background()); err != nil {
		t.Fatalf("Failed to seed booking: %v", err)
	}
	b.Talent = talent
	return b
}

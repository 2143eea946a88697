package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torashaout/internal/database"
	"torashaout/internal/database/testdb"
	"torashaout/internal/models"
)

func payment(id, bookingID string, status models.PaymentStatus) *models.Payment {
	now := time.Now()
	return &models.Payment{
		ID: id, BookingID: bookingID, CustomerID: "c-1", Gateway: "paynow",
		Reference: "PAY-" + id, Amount: decimal.NewFromInt(100), Currency: "USD",
		Status: status, CreatedAt: now, UpdatedAt: now,
	}
}

func TestSchema_OneCompletedPaymentPerBooking(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	_, err := db.NewInsert().Model(payment("p1", "b1", models.PaymentCompleted)).Exec(ctx)
	require.NoError(t, err)

	// failed and pending attempts are unrestricted
	_, err = db.NewInsert().Model(payment("p2", "b1", models.PaymentFailed)).Exec(ctx)
	require.NoError(t, err)
	_, err = db.NewInsert().Model(payment("p3", "b1", models.PaymentPending)).Exec(ctx)
	require.NoError(t, err)

	_, err = db.NewInsert().Model(payment("p4", "b1", models.PaymentCompleted)).Exec(ctx)
	assert.Error(t, err)

	// other bookings are unaffected
	_, err = db.NewInsert().Model(payment("p5", "b2", models.PaymentCompleted)).Exec(ctx)
	assert.NoError(t, err)
}

func TestSchema_Idempotent(t *testing.T) {
	db := testdb.New(t)
	assert.NoError(t, database.CreateSchema(context.Background(), db))
	assert.NoError(t, database.DropSchema(context.Background(), db))
	assert.NoError(t, database.CreateSchema(context.Background(), db))
}

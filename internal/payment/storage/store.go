package storage

import (
	"context"
	"time"

	"torashaout/internal/models"
)

type Store interface {
	// Payment operations
	InsertPayment(ctx context.Context, p *models.Payment) error
	GetPaymentByReference(ctx context.Context, gateway, reference string) (*models.Payment, error)
	ListPayments(ctx context.Context, f models.PaymentFilter) ([]models.Payment, error)
	ListPaymentsForBooking(ctx context.Context, bookingID string) ([]models.Payment, error)
	UpdateStatus(ctx context.Context, id string, from, to models.PaymentStatus, at time.Time) (bool, error)
	MarkRefundedForBooking(ctx context.Context, bookingID string, at time.Time) (int64, error)

	// Reconciliation
	FindStranded(ctx context.Context, limit int) ([]models.Payment, error)
	FindOrphaned(ctx context.Context, limit int) ([]models.Payment, error)
	FlagRefundRequired(ctx context.Context, id string, at time.Time) (bool, error)

	// Health and maintenance
	HealthCheck(ctx context.Context) error
}

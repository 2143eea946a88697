package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"torashaout/internal/apperrors"
	"torashaout/internal/database"
	"torashaout/internal/logger"
	"torashaout/internal/models"
)

// SQLStore keeps payments in the shared bun database. The unique partial index on
// completed payments is what makes a second completed payment for a booking fail.
type SQLStore struct {
	db  *bun.DB
	log *logger.Logger
}

func NewSQLStore(db *bun.DB, log *logger.Logger) *SQLStore {
	return &SQLStore{db: db, log: log}
}

// InsertPayment saves p. A second completed payment for the same booking comes
// back as apperrors.ErrAlreadyPaid.
func (s *SQLStore) InsertPayment(ctx context.Context, p *models.Payment) error {
	s.log.LogDatabase("INSERT", "payments", fmt.Sprintf("Saving %s payment %s for booking %s", p.Status, p.ID, p.BookingID))

	_, err := s.db.NewInsert().Model(p).Exec(ctx)
	if database.IsUniqueViolation(err) {
		s.log.LogDatabase("CONFLICT", "payments", fmt.Sprintf("Booking %s already has a completed payment", p.BookingID))
		return fmt.Errorf("insert payment %s: %w", p.ID, apperrors.ErrAlreadyPaid)
	}
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save payment %s: %s", p.ID, err.Error()))
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

// GetPaymentByReference finds the most recent payment a gateway reported under
// reference, nil if none.
func (s *SQLStore) GetPaymentByReference(ctx context.Context, gateway, reference string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.NewSelect().
		Model(&p).
		Where("gateway = ?", gateway).
		Where("reference = ?", reference).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment by reference: %w", err)
	}
	return &p, nil
}

func (s *SQLStore) ListPayments(ctx context.Context, f models.PaymentFilter) ([]models.Payment, error) {
	payments := []models.Payment{}
	q := s.db.NewSelect().Model(&payments).Order("created_at DESC")
	if f.CustomerID != "" {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	if f.BookingID != "" {
		q = q.Where("booking_id = ?", f.BookingID)
	}
	if f.Reference != "" {
		q = q.Where("reference = ?", f.Reference)
	}
	if f.RefundRequired {
		q = q.Where("refund_required_at IS NOT NULL")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

func (s *SQLStore) ListPaymentsForBooking(ctx context.Context, bookingID string) ([]models.Payment, error) {
	return s.ListPayments(ctx, models.PaymentFilter{BookingID: bookingID})
}

// UpdateStatus moves a payment from one status to another and reports whether it
// was still in from. Completing a payment on an already paid booking returns
// apperrors.ErrAlreadyPaid.
func (s *SQLStore) UpdateStatus(ctx context.Context, id string, from, to models.PaymentStatus, at time.Time) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if database.IsUniqueViolation(err) {
		return false, fmt.Errorf("complete payment %s: %w", id, apperrors.ErrAlreadyPaid)
	}
	if err != nil {
		return false, fmt.Errorf("failed to update payment %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update payment %s: %w", id, err)
	}
	return n == 1, nil
}

// MarkRefundedForBooking flags every completed or pending payment of a booking as
// refunded and returns how many rows changed.
func (s *SQLStore) MarkRefundedForBooking(ctx context.Context, bookingID string, at time.Time) (int64, error) {
	res, err := s.db.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", models.PaymentRefunded).
		Set("updated_at = ?", at).
		Where("booking_id = ?", bookingID).
		Where("status IN (?)", bun.In([]models.PaymentStatus{models.PaymentCompleted, models.PaymentPending})).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to refund payments of %s: %w", bookingID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to refund payments of %s: %w", bookingID, err)
	}
	s.log.LogDatabase("UPDATE", "payments", fmt.Sprintf("Marked %d payment(s) of booking %s refunded", n, bookingID))
	return n, nil
}

// FindStranded returns completed payments whose booking never left
// pending_payment, oldest first.
func (s *SQLStore) FindStranded(ctx context.Context, limit int) ([]models.Payment, error) {
	payments := []models.Payment{}
	q := s.db.NewSelect().
		Model(&payments).
		Join("JOIN bookings AS b ON b.id = payment.booking_id").
		Where("payment.status = ?", models.PaymentCompleted).
		Where("b.status = ?", models.BookingPendingPayment).
		Order("payment.created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to find stranded payments: %w", err)
	}
	return payments, nil
}

// FindOrphaned returns completed payments whose booking was cancelled or refunded
// before the payment confirmed it and that are not yet flagged, oldest first.
func (s *SQLStore) FindOrphaned(ctx context.Context, limit int) ([]models.Payment, error) {
	payments := []models.Payment{}
	q := s.db.NewSelect().
		Model(&payments).
		Join("JOIN bookings AS b ON b.id = payment.booking_id").
		Where("payment.status = ?", models.PaymentCompleted).
		Where("payment.refund_required_at IS NULL").
		Where("b.status IN (?)", bun.In(models.ClosedStatuses)).
		Order("payment.created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to find orphaned payments: %w", err)
	}
	return payments, nil
}

// FlagRefundRequired marks a completed payment for a manual refund. It reports
// false when the payment is not completed or was already flagged.
func (s *SQLStore) FlagRefundRequired(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("refund_required_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", models.PaymentCompleted).
		Where("refund_required_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to flag payment %s for refund: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to flag payment %s for refund: %w", id, err)
	}
	if n == 1 {
		s.log.LogDatabase("UPDATE", "payments", fmt.Sprintf("Flagged payment %s for refund", id))
	}
	return n == 1, nil
}

func (s *SQLStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"torashaout/internal/apperrors"
	"torashaout/internal/database"
	"torashaout/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

// ---------------- TALENTS ----------------

// GetTalentByID returns nil when no talent has id.
func (d *DB) GetTalentByID(ctx context.Context, id string) (*models.Talent, error) {
	var talent models.Talent
	err := d.Bun.NewSelect().Model(&talent).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get talent %s: %w", id, err)
	}
	return &talent, nil
}

// GetTalentByUserID finds the talent profile owned by an account, nil if none.
func (d *DB) GetTalentByUserID(ctx context.Context, userID string) (*models.Talent, error) {
	var talent models.Talent
	err := d.Bun.NewSelect().Model(&talent).Where("user_id = ?", userID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get talent for user %s: %w", userID, err)
	}
	return &talent, nil
}

// ---------------- BOOKINGS ----------------

// CreateBooking inserts b. A clash on booking_code comes back as
// apperrors.ErrBookingCodeTaken so the caller can retry with a new code.
func (d *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	_, err := d.Bun.NewInsert().Model(b).Exec(ctx)
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("insert booking %s: %w", b.BookingCode, apperrors.ErrBookingCodeTaken)
	}
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

// GetBookingByID loads a booking with its talent, nil when missing.
func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	return d.getBooking(ctx, "booking.id = ?", id)
}

// GetBookingByCodeOrID accepts either the shareable code or the internal id.
func (d *DB) GetBookingByCodeOrID(ctx context.Context, codeOrID string) (*models.Booking, error) {
	return d.getBooking(ctx, "booking.booking_code = ? OR booking.id = ?", codeOrID, codeOrID)
}

func (d *DB) getBooking(ctx context.Context, where string, args ...interface{}) (*models.Booking, error) {
	var b models.Booking
	err := d.Bun.NewSelect().
		Model(&b).
		Relation("Talent").
		Where(where, args...).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return &b, nil
}

func (d *DB) ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, error) {
	var bookings []models.Booking
	q := d.Bun.NewSelect().
		Model(&bookings).
		Relation("Talent").
		Order("booking.created_at DESC")
	if f.CustomerID != "" {
		q = q.Where("booking.customer_id = ?", f.CustomerID)
	}
	if f.TalentID != "" {
		q = q.Where("booking.talent_id = ?", f.TalentID)
	}
	if f.Status != "" {
		q = q.Where("booking.status = ?", f.Status)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// TransitionStatus applies u only if the booking is still in one of u.From. It
// reports false, with no change made, when the guard did not match.
func (d *DB) TransitionStatus(ctx context.Context, u models.StatusUpdate) (bool, error) {
	if len(u.From) == 0 {
		return false, errors.New("transition without source statuses")
	}

	q := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", u.To).
		Set("updated_at = ?", u.At).
		Where("id = ?", u.BookingID).
		Where("status IN (?)", bun.In(u.From))
	if u.To == models.BookingCompleted {
		q = q.Set("completed_at = COALESCE(completed_at, ?)", u.At)
	}
	if u.VideoURL != "" {
		q = q.Set("video_url = ?", u.VideoURL)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("transition booking %s to %s: %w", u.BookingID, u.To, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition booking %s: %w", u.BookingID, err)
	}
	return n == 1, nil
}

// SaveReview records the customer's feedback once, and only on a completed booking.
func (d *DB) SaveReview(ctx context.Context, bookingID string, rating int, review string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("customer_rating = ?", rating).
		Set("customer_review = ?", review).
		Set("updated_at = ?", at).
		Where("id = ?", bookingID).
		Where("status = ?", models.BookingCompleted).
		Where("customer_rating IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("save review for %s: %w", bookingID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save review for %s: %w", bookingID, err)
	}
	return n == 1, nil
}

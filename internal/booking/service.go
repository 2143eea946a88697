package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"torashaout/internal/apperrors"
	"torashaout/internal/logger"
	"torashaout/internal/models"
	"torashaout/internal/pricing"
	"torashaout/internal/utils"
	"torashaout/internal/validation"
)

type DBLayer interface {
	GetTalentByID(ctx context.Context, id string) (*models.Talent, error)
	GetTalentByUserID(ctx context.Context, userID string) (*models.Talent, error)
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	GetBookingByCodeOrID(ctx context.Context, codeOrID string) (*models.Booking, error)
	ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, error)
	TransitionStatus(ctx context.Context, u models.StatusUpdate) (bool, error)
	SaveReview(ctx context.Context, bookingID string, rating int, review string, at time.Time) (bool, error)
}

type PaymentReader interface {
	ListPaymentsForBooking(ctx context.Context, bookingID string) ([]models.Payment, error)
}

type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, event models.BookingEvent) error
}

type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

type Emitter interface {
	Emit(event models.BookingEvent)
}

type Options struct {
	FeePercent  decimal.Decimal
	Policy      Policy
	CodeRetries int
}

func DefaultOptions() Options {
	return Options{
		FeePercent:  pricing.DefaultFeePercent,
		Policy:      Policy{AllowCompletedRefunds: true},
		CodeRetries: 3,
	}
}

type BookingService struct {
	DB       DBLayer
	Payments PaymentReader
	Kafka    EventPublisher
	Notifier Notifier
	Emitter  Emitter
	Logger   *logger.Logger

	opts    Options
	now     func() time.Time
	newCode func() string
}

func NewBookingService(db DBLayer, payments PaymentReader, kafka EventPublisher, notifier Notifier, emitter Emitter, log *logger.Logger, opts Options) *BookingService {
	if opts.CodeRetries <= 0 {
		opts.CodeRetries = 3
	}
	return &BookingService{
		DB:       db,
		Payments: payments,
		Kafka:    kafka,
		Notifier: notifier,
		Emitter:  emitter,
		Logger:   log,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		newCode:  utils.GenerateBookingCode,
	}
}

// SetClock replaces the time source. Tests use it to pin timestamps.
func (s *BookingService) SetClock(now func() time.Time) {
	s.now = now
}

// SetCodeGenerator replaces the booking code source.
func (s *BookingService) SetCodeGenerator(gen func() string) {
	s.newCode = gen
}

func (s *BookingService) Policy() Policy {
	return s.opts.Policy
}

// ---------------- CREATE ----------------

func (s *BookingService) CreateBooking(ctx context.Context, caller models.Caller, req models.CreateBookingRequest) (*models.Booking, error) {
	if !caller.Authenticated() {
		return nil, apperrors.ErrUnauthenticated
	}
	if errs := ValidateBookingRequest(&req); len(errs) > 0 {
		return nil, apperrors.Validation(errs)
	}

	talent, err := s.DB.GetTalentByID(ctx, req.TalentID)
	if err != nil {
		return nil, apperrors.Internal("failed to load talent", err)
	}
	if talent == nil || !talent.IsVerified {
		return nil, apperrors.ErrTalentNotFound
	}
	if !talent.IsAcceptingBookings {
		return nil, apperrors.ErrTalentNotAccepting
	}

	breakdown, err := pricing.Compute(talent.PriceFor(req.Currency), s.opts.FeePercent)
	if err != nil {
		return nil, apperrors.ErrTalentNoPrice.WithMessage("Talent has no %s price configured", req.Currency)
	}

	now := s.now()
	b := &models.Booking{
		ID:                  utils.NewID(),
		CustomerID:          caller.UserID,
		TalentID:            talent.ID,
		RecipientName:       req.RecipientName,
		Occasion:            req.Occasion,
		Instructions:        req.Instructions,
		FromName:            req.FromName,
		FromEmail:           req.FromEmail,
		DeliveryPreferences: req.DeliveryPreferences,
		Currency:            req.Currency,
		PaymentGateway:      req.PaymentGateway,
		AmountPaid:          breakdown.BasePrice,
		PlatformFee:         breakdown.PlatformFee,
		TalentEarnings:      breakdown.TalentEarnings,
		Status:              models.BookingPendingPayment,
		CreatedAt:           now,
		UpdatedAt:           now,
		DueDate:             utils.DueDate(now, talent.ResponseTimeHours),
	}

	if err := s.insertWithFreshCode(ctx, b); err != nil {
		return nil, err
	}
	b.Talent = talent

	s.Logger.LogBooking("CREATE", b.ID, fmt.Sprintf("%s for talent %s, %s %s", b.BookingCode, talent.ID, b.AmountPaid.StringFixed(2), b.Currency))
	s.afterChange(ctx, "booking.created", *b)
	return b, nil
}

// insertWithFreshCode retries on booking code collisions; the unique constraint,
// not the generator, decides whether a code is free.
func (s *BookingService) insertWithFreshCode(ctx context.Context, b *models.Booking) error {
	for attempt := 1; attempt <= s.opts.CodeRetries; attempt++ {
		b.BookingCode = s.newCode()
		err := s.DB.CreateBooking(ctx, b)
		if err == nil {
			return nil
		}
		if !errors.Is(err, apperrors.ErrBookingCodeTaken) {
			return apperrors.Internal("failed to create booking", err)
		}
		s.Logger.Warn("BOOKING", fmt.Sprintf("booking code %s taken (attempt %d/%d)", b.BookingCode, attempt, s.opts.CodeRetries))
	}
	return apperrors.ErrBookingCodeTaken
}

// ---------------- READ ----------------

type ListFilter struct {
	Status   string
	AsTalent bool
	Limit    int
	Offset   int
}

// ListBookings returns the caller's bookings as customer, or as talent when asked.
func (s *BookingService) ListBookings(ctx context.Context, caller models.Caller, f ListFilter) ([]models.Booking, error) {
	if !caller.Authenticated() {
		return nil, apperrors.ErrUnauthenticated
	}

	filter := models.BookingFilter{Limit: f.Limit, Offset: f.Offset}
	if f.Status != "" {
		status, ok := models.ParseBookingStatus(f.Status)
		if !ok {
			return nil, apperrors.Validation([]string{fmt.Sprintf("Unknown booking status %q", f.Status)})
		}
		filter.Status = status
	}

	if f.AsTalent {
		talent, err := s.TalentFor(ctx, caller)
		if err != nil {
			return nil, err
		}
		filter.TalentID = talent.ID
	} else {
		filter.CustomerID = caller.UserID
	}

	bookings, err := s.DB.ListBookings(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal("failed to list bookings", err)
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	return bookings, nil
}

// TalentFor returns the talent profile of a caller with the talent role.
func (s *BookingService) TalentFor(ctx context.Context, caller models.Caller) (*models.Talent, error) {
	if !caller.Authenticated() {
		return nil, apperrors.ErrUnauthenticated
	}
	if caller.Role != models.RoleTalent {
		return nil, apperrors.ErrForbidden.WithMessage("Only talents can view bookings as talent")
	}
	talent, err := s.DB.GetTalentByUserID(ctx, caller.UserID)
	if err != nil {
		return nil, apperrors.Internal("failed to load talent", err)
	}
	if talent == nil {
		return nil, apperrors.ErrTalentProfileMissing
	}
	return talent, nil
}

// GetBooking returns the booking enriched for the caller: the talent and admins see
// the customer and payment records, the customer sees a payment timeline.
func (s *BookingService) GetBooking(ctx context.Context, caller models.Caller, codeOrID string) (*models.BookingView, error) {
	if !caller.Authenticated() {
		return nil, apperrors.ErrUnauthenticated
	}

	b, err := s.DB.GetBookingByCodeOrID(ctx, strings.TrimSpace(codeOrID))
	if err != nil {
		return nil, apperrors.Internal("failed to load booking", err)
	}
	if b == nil {
		return nil, apperrors.ErrBookingNotFound
	}

	isCustomer := b.CustomerID == caller.UserID
	privileged := caller.IsAdmin() || isTalentOf(caller, b)
	if !isCustomer && !privileged {
		return nil, apperrors.ErrForbidden.WithMessage("You do not have access to this booking")
	}

	payments, err := s.Payments.ListPaymentsForBooking(ctx, b.ID)
	if err != nil {
		return nil, apperrors.Internal("failed to load payments", err)
	}

	view := &models.BookingView{Booking: *b}
	if privileged {
		view.Customer = &models.CustomerInfo{ID: b.CustomerID, Name: b.FromName, Email: b.FromEmail}
		view.Payments = payments
		return view, nil
	}

	view.Timeline = make([]models.TimelineEntry, 0, len(payments))
	for _, p := range payments {
		view.Timeline = append(view.Timeline, models.TimelineEntry{
			Status:    p.Status,
			Amount:    p.Amount,
			Currency:  p.Currency,
			Gateway:   p.Gateway,
			CreatedAt: p.CreatedAt,
		})
	}
	return view, nil
}

// LoadBooking fetches a booking by id for other services, nil when missing.
func (s *BookingService) LoadBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.DB.GetBookingByID(ctx, id)
}

func isTalentOf(caller models.Caller, b *models.Booking) bool {
	return b.Talent != nil && b.Talent.UserID == caller.UserID
}

// ---------------- TRANSITIONS ----------------

// ApplyTransition moves a booking along the state machine. The guard and the write
// are one conditional update, so concurrent callers cannot both win; a refused
// transition changes nothing and reports the booking's current status.
func (s *BookingService) ApplyTransition(ctx context.Context, bookingID string, action Action) (*models.Booking, error) {
	return s.transition(ctx, bookingID, action, "")
}

// ConfirmPayment advances a booking from pending_payment to payment_confirmed.
func (s *BookingService) ConfirmPayment(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.transition(ctx, bookingID, ActionConfirmPayment, "")
}

func (s *BookingService) transition(ctx context.Context, bookingID string, action Action, videoURL string) (*models.Booking, error) {
	t, ok := s.opts.Policy.Transition(action)
	if !ok {
		return nil, apperrors.ErrUnsupportedAction.WithMessage("Unsupported action %q", action)
	}

	applied, err := s.DB.TransitionStatus(ctx, models.StatusUpdate{
		BookingID: bookingID,
		From:      t.From,
		To:        t.To,
		At:        s.now(),
		VideoURL:  videoURL,
	})
	if err != nil {
		return nil, apperrors.Internal("failed to update booking status", err)
	}

	b, err := s.DB.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, apperrors.Internal("failed to load booking", err)
	}
	if b == nil {
		return nil, apperrors.ErrBookingNotFound
	}
	if !applied {
		s.Logger.LogBooking("REJECT", bookingID, fmt.Sprintf("%s refused in status %s", action, b.Status))
		return nil, conflictError(action, b.Status)
	}

	s.Logger.LogBooking(strings.ToUpper(string(action)), bookingID, fmt.Sprintf("now %s", b.Status))
	s.afterChange(ctx, "booking."+string(t.To), *b)
	return b, nil
}

// StartBooking is the talent accepting a paid booking.
func (s *BookingService) StartBooking(ctx context.Context, caller models.Caller, bookingID string) (*models.Booking, error) {
	if _, err := s.requireTalentOwner(ctx, caller, bookingID); err != nil {
		return nil, err
	}
	return s.transition(ctx, bookingID, ActionStart, "")
}

// DeliverBooking attaches the recorded video and completes the booking.
func (s *BookingService) DeliverBooking(ctx context.Context, caller models.Caller, bookingID string, req models.DeliverBookingRequest) (*models.Booking, error) {
	req.VideoURL = strings.TrimSpace(req.VideoURL)
	if errs := validation.Struct(struct {
		VideoURL string `json:"videoUrl" validate:"required,url"`
	}{req.VideoURL}, validation.Messages{
		"videoUrl.required": "Video URL is required",
		"videoUrl.url":      "Video URL must be a valid URL",
	}); len(errs) > 0 {
		return nil, apperrors.Validation(errs)
	}
	if _, err := s.requireTalentOwner(ctx, caller, bookingID); err != nil {
		return nil, err
	}
	return s.transition(ctx, bookingID, ActionComplete, req.VideoURL)
}

// ReviewBooking stores the customer's rating once the booking is completed.
func (s *BookingService) ReviewBooking(ctx context.Context, caller models.Caller, bookingID string, req models.ReviewBookingRequest) (*models.Booking, error) {
	if !caller.Authenticated() {
		return nil, apperrors.ErrUnauthenticated
	}
	if errs := validation.Struct(req, validation.Messages{
		"rating.min": "Rating must be between 1 and 5",
		"rating.max": "Rating must be between 1 and 5",
	}); len(errs) > 0 {
		return nil, apperrors.Validation(errs)
	}

	b, err := s.DB.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, apperrors.Internal("failed to load booking", err)
	}
	if b == nil {
		return nil, apperrors.ErrBookingNotFound
	}
	if b.CustomerID != caller.UserID {
		return nil, apperrors.ErrForbidden.WithMessage("Only the customer can review this booking")
	}

	saved, err := s.DB.SaveReview(ctx, bookingID, req.Rating, strings.TrimSpace(req.Review), s.now())
	if err != nil {
		return nil, apperrors.Internal("failed to save review", err)
	}
	if !saved {
		if b.CustomerRating != nil {
			return nil, apperrors.ErrReviewNotAllowed.WithMessage("Booking has already been reviewed")
		}
		return nil, apperrors.ErrReviewNotAllowed.WithMessage("Only completed bookings can be reviewed (status: %s)", b.Status)
	}

	s.Logger.LogBooking("REVIEW", bookingID, fmt.Sprintf("rated %d", req.Rating))
	return s.DB.GetBookingByID(ctx, bookingID)
}

func (s *BookingService) requireTalentOwner(ctx context.Context, caller models.Caller, bookingID string) (*models.Booking, error) {
	if !caller.Authenticated() {
		return nil, apperrors.ErrUnauthenticated
	}
	b, err := s.DB.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, apperrors.Internal("failed to load booking", err)
	}
	if b == nil {
		return nil, apperrors.ErrBookingNotFound
	}
	if !isTalentOf(caller, b) {
		return nil, apperrors.ErrForbidden.WithMessage("Only the booked talent can do this")
	}
	return b, nil
}

// ---------------- SIDE EFFECTS ----------------

// afterChange runs the best-effort follow-ups of a committed change. Failures are
// logged; the booking change itself stands.
func (s *BookingService) afterChange(ctx context.Context, eventType string, b models.Booking) {
	event := models.NewBookingEvent(eventType, b)

	if s.Kafka != nil {
		if err := s.Kafka.PublishBookingEvent(ctx, event); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("publish %s for %s: %v", eventType, b.ID, err))
		}
	}
	if s.Emitter != nil {
		s.Emitter.Emit(event)
	}
	if s.Notifier != nil {
		for _, n := range notificationsFor(eventType, b, s.now()) {
			if err := s.Notifier.Notify(ctx, n); err != nil {
				s.Logger.Error("NOTIFY", fmt.Sprintf("notify %s about %s: %v", n.UserID, b.ID, err))
			}
		}
	}
}

func notificationsFor(eventType string, b models.Booking, now time.Time) []models.Notification {
	mk := func(userID, kind, title, msg string) models.Notification {
		return models.Notification{
			ID:        utils.NewID(),
			UserID:    userID,
			BookingID: b.ID,
			Type:      kind,
			Title:     title,
			Message:   msg,
			CreatedAt: now,
		}
	}

	var out []models.Notification
	talentUser := ""
	if b.Talent != nil {
		talentUser = b.Talent.UserID
	}

	if eventType == "booking.created" {
		if talentUser != "" {
			out = append(out, mk(talentUser, models.NotificationBookingCreated, "New booking request",
				fmt.Sprintf("%s requested a %s video for %s", b.FromName, b.Occasion, b.RecipientName)))
		}
		return out
	}

	out = append(out, mk(b.CustomerID, models.NotificationBookingStatus, "Booking update",
		fmt.Sprintf("Booking %s is now %s", b.BookingCode, strings.ReplaceAll(string(b.Status), "_", " "))))
	if talentUser != "" && (b.Status == models.BookingPaymentConfirmed || b.Status == models.BookingCancelled || b.Status == models.BookingRefunded) {
		out = append(out, mk(talentUser, models.NotificationBookingStatus, "Booking update",
			fmt.Sprintf("Booking %s is now %s", b.BookingCode, strings.ReplaceAll(string(b.Status), "_", " "))))
	}
	return out
}

package booking_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"torashaout/internal/apperrors"
	"torashaout/internal/booking"
	bookingdb "torashaout/internal/booking/db"
	"torashaout/internal/database/testdb"
	"torashaout/internal/logger"
	"torashaout/internal/models"
	"torashaout/internal/notification"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type stubPayments struct {
	byBooking map[string][]models.Payment
}

func (s *stubPayments) ListPaymentsForBooking(_ context.Context, bookingID string) ([]models.Payment, error) {
	return s.byBooking[bookingID], nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.BookingEvent
}

func (p *recordingPublisher) PublishBookingEvent(_ context.Context, e models.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	db       *bun.DB
	svc      *booking.BookingService
	talent   *models.Talent
	events   *recordingPublisher
	payments *stubPayments
	notes    *notification.Store
}

var fan = models.Caller{UserID: "fan-1", Role: models.RoleFan}

func newFixture(t *testing.T, opts booking.Options) *fixture {
	t.Helper()
	db := testdb.New(t)
	f := &fixture{
		db:       db,
		talent:   testdb.SeedTalent(t, db),
		events:   &recordingPublisher{},
		payments: &stubPayments{byBooking: map[string][]models.Payment{}},
		notes:    notification.NewStore(db),
	}
	f.svc = booking.NewBookingService(bookingdb.New(db), f.payments, f.events, f.notes, nil, logger.NewNop(), opts)
	f.svc.SetClock(func() time.Time { return fixedNow })
	return f
}

func (f *fixture) talentCaller() models.Caller {
	return models.Caller{UserID: f.talent.UserID, Role: models.RoleTalent}
}

func (f *fixture) request() models.CreateBookingRequest {
	return models.CreateBookingRequest{
		TalentID:       f.talent.ID,
		RecipientName:  "Rudo",
		Occasion:       "birthday",
		Instructions:   "Wish her a happy 30th",
		Currency:       "USD",
		PaymentGateway: "ecocash",
		FromName:       "Tendai",
		FromEmail:      "tendai@example.com",
	}
}

func (f *fixture) create(t *testing.T) *models.Booking {
	t.Helper()
	b, err := f.svc.CreateBooking(context.Background(), fan, f.request())
	require.NoError(t, err)
	return b
}

func (f *fixture) status(t *testing.T, id string) models.BookingStatus {
	t.Helper()
	b, err := bookingdb.New(f.db).GetBookingByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, b)
	return b.Status
}

// ---------------- CREATE ----------------

func TestCreateBooking_PricesAndSchedules(t *testing.T) {
	f := newFixture(t, booking.DefaultOptions())

	b := f.create(t)

	assert.Equal(t, models.BookingPendingPayment, b.Status)
	assert.True(t, b.AmountPaid.Equal(decimal.NewFromInt(100)))
	assert.True(t, b.PlatformFee.Equal(decimal.NewFromInt(25)))
	assert.True(t, b.TalentEarnings.Equal(decimal.NewFromInt(75)))
	assert.Equal(t, fixedNow.Add(48*time.Hour), b.DueDate)
	assert.Regexp(t, `^TS-[0-9A-Z]+-[0-9A-Z]{4}$`, b.BookingCode)
	assert.Equal(t, fan.UserID, b.CustomerID)

	stored, err := bookingdb.New(f.db).GetBookingByCodeOrID(context.Background(), b.BookingCode)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, b.ID, stored.ID)
	assert.True(t, stored.DueDate.Equal(b.DueDate))

	assert.Equal(t, []string{"booking.created"}, f.events.types())

	notes, err := f.notes.ListForUser(context.Background(), f.talent.UserID, true, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationBookingCreated, notes[0].Type)
}

func TestCreateBooking_RejectsInvalidRequest(t *testing.T) {
	f := newFixture(t, booking.DefaultOptions())

	req := f.request()
	req.RecipientName = "  "
	req.Currency = "GBP"

	_, err := f.svc.CreateBooking(context.Background(), fan, req)
	require.Error(t, err)

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)
	assert.Contains(t, appErr.Details, "Recipient name is required")
	assert.Len(t, appErr.Details, 2)
	assert.Empty(t, f.events.types())
}

func TestCreateBooking_RequiresCaller(t *testing.T) {
	f := newFixture(t, booking.DefaultOptions())
	_, err := f.svc.CreateBooking(context.Background(), models.Caller{}, f.request())
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

func TestCreateBooking_TalentChecks(t *testing.T) {
	f := newFixture(t, booking.DefaultOptions())

	unverified := testdb.SeedTalent(t, f.db, func(tl *models.Talent) { tl.IsVerified = false })
	paused := testdb.SeedTalent(t, f.db, func(tl *models.Talent) { tl.IsAcceptingBookings = false })

	tests := []struct {
		name    string
		mutate  func(*models.CreateBookingRequest)
		wantErr error
	}{
		{"unknown talent", func(r *models.CreateBookingRequest) { r.TalentID = "missing" }, apperrors.ErrTalentNotFound},
		{"unverified talent", func(r *models.CreateBookingRequest) { r.TalentID = unverified.ID }, apperrors.ErrTalentNotFound},
		{"not accepting", func(r *models.CreateBookingRequest) { r.TalentID = paused.ID }, apperrors.ErrTalentNotAccepting},
		{"no price in currency", func(r *models.CreateBookingRequest) { r.Currency = "ZIG" }, apperrors.ErrTalentNoPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request()
			tt.mutate(&req)
			_, err := f.svc.CreateBooking(context.Background(), fan, req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateBooking_RetriesCodeCollision(t *testing.T) {
	f := newFixture(t, booking.DefaultOptions())

	codes := []string{"TS-DUP-0001", "TS-DUP-0001", "TS-NEW-0002"}
	f.svc.SetCodeGenerator(func() string {
		c := codes[0]
		codes = codes[1:]
		return c
	})

	first := f.create(t)
	second := f.create(t)

	assert.Equal(t, "TS-DUP-0001", first.BookingCode)
	assert.Equal(t, "TS-NEW-0002", second.BookingCode)
	assert.Empty(t, codes)
}

func TestCreateBooking_GivesUpAfterRetries(t *testing.T) {
	opts := booking.DefaultOptions()
	opts.CodeRetries = 2
	f := newFixture(t, opts)

	calls := 0
	f.svc.SetCodeGenerator(func() string {
		calls++
		return "TS-SAME-0000"
	})

	f.create(t)
	calls = 0

	_, err := f.svc.CreateBooking(context.Background(), fan, f.request())
	assert.ErrorIs(t, err, apperrors.ErrBookingCodeTaken)
	assert.Equal(t, http.StatusConflict, apperrors.HTTPStatus(err))
	assert.Equal(t, 2, calls)
}

// ---------------- TRANSITIONS ----------------

func TestApplyTransition_HappyPath(t *testing.T) {
	f := newFixture(t, booking.DefaultOptions())
	ctx := context.Background()
	b := f.create(t)

	confirmed, err := f.svc.ConfirmPayment(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPaymentConfirmed, confirmed.Status)

	started, err := f.svc.StartBooking(ctx, f.talentCaller(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingInProgress, started.Status)

	done, err := f.svc.DeliverBooking(ctx, f.talentCaller(), b.ID, models.DeliverBookingRequest{VideoURL: "https://cdn.example.com/v/1.mp4"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingCompleted, done.Status)
	assert.Equal(t, "https://cdn.example.com/v/1.mp4", done.VideoURL)
	require.NotNil(t, done.CompletedAt)

	assert.Equal(t, []string{
		"booking.created",
		"booking.payment_confirmed",
		"booking.in_progress",
		"booking.completed",
	}, f.events.types())
}

func TestApplyTransition_IllegalLeavesStateUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		from    models.BookingStatus
		action  booking.Action
		wantErr error
		wantMsg string
	}{
		{"cancel refunded", models.BookingRefunded, booking.ActionCancel, apperrors.ErrInvalidTransition, "refunded"},
		{"refund unpaid", models.BookingPendingPayment, booking.ActionRefund, apperrors.ErrInvalidTransition, "pending_payment"},
		{"complete cancelled", models.BookingCancelled, booking.ActionComplete, apperrors.ErrInvalidTransition, "cancelled"},
		{"start unpaid", models.BookingPendingPayment, booking.ActionStart, apperrors.ErrInvalidTransition, "pending_payment"},
		{"cancel twice", models.BookingCancelled, booking.ActionCancel, apperrors.ErrInvalidTransition, "already cancelled"},
		{"confirm paid", models.BookingInProgress, booking.ActionConfirmPayment, apperrors.ErrAlreadyPaid, "in_progress"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, booking.DefaultOptions())
			b := testdb.SeedBooking(t, f.db, f.talent, fan.UserID, tt.from)

			_, err := f.svc.ApplyTransition(context.Background(), b.ID, tt.action)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))

			assert.Equal(t, tt.from, f.status(t, b.ID))
			assert.Empty(t, f.events.types())
		})
	}
}

func TestApplyTransition_CompletedRefundPolicy(t *testing.T) {
	t.Run("allowed", func(t *testing.T) {
		f := newFixture(t, booking.DefaultOptions())
		b := testdb.SeedBooking(t, f.db, f.talent, fan.UserID, models.BookingCompleted)

		got, err := f.svc.ApplyTransition(context.Background(), b.ID, booking.ActionRefund)
		require.NoError(t, err)
		assert.Equal(t, models.BookingRefunded, got.Status)
	})

	t.Run("disallowed", func(t *testing.T) {
		opts := booking.DefaultOptions()
		opts.Policy.AllowCompletedRefunds = false
		f := newFixture(t, opts)
		b := testdb.SeedBooking(t, f.db, f.talent, fan.UserID, models.BookingCompleted)

		_, err := f.svc.ApplyTransition(context.Background(), b.ID, booking.ActionRefund)
		assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
		assert.Equal(t, models.BookingCompleted, f.status(t, b.ID))
	})
}

func TestApplyTransition_UnknownBookingAndAction(t *testing.T) {
	f := newFixture(t, booking.DefaultOptions())

	_, err := f.svc.ApplyTransition(context.Background(), "missing", booking.ActionCancel)
	assert.ErrorIs(t, err, apperrors.ErrBookingNotFound)

	_, err = f.svc.ApplyTransition(context.Background(), "missing", booking.Action("archive"))
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedAction)
}

func TestConfirmPayment_ConcurrentCallersOneWinner(t *testing.T) {
	f := newFixture(t, booking.DefaultOptions())
	b := f.create(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ConfirmPayment(context.Background(), b.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrAlreadyPaid)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, models.BookingPaymentConfirmed, f.status(t, b.ID))
}

func TestStartBooking_OnlyBookedTalent(t *testing.T) {
	f := newFixture(t, booking.DefaultOptions())
	b := testdb.SeedBooking(t, f.db, f.talent, fan.UserID, models.BookingPaymentConfirmed)

	_, err := f.svc.StartBooking(context.Background(), fan, b.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	other := testdb.SeedTalent(t, f.db)
	_, err = f.svc.StartBooking(context.Background(), models.Caller{UserID: other.UserID, Role: models.RoleTalent}, b.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	assert.Equal(t, models.BookingPaymentConfirmed, f.status(t, b.ID))
}

func TestDeliverBooking_RequiresVideoURL(t *testing.T) {
	f := newFixture(t, booking.DefaultOptions())
	b := testdb.SeedBooking(t, f.db, f.talent, fan.UserID, models.BookingInProgress)

	_, err := f.svc.DeliverBooking(context.Background(), f.talentCaller(), b.ID, models.DeliverBookingRequest{VideoURL: " "})
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, []string{"Video URL is required"}, appErr.Details)

	_, err = f.svc.DeliverBooking(context.Background(), f.talentCaller(), b.ID, models.DeliverBookingRequest{VideoURL: "not a url"})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, []string{"Video URL must be a valid URL"}, appErr.Details)

	assert.Equal(t, models.BookingInProgress, f.status(t, b.ID))
}

// ---------------- REVIEWS ----------------

func TestReviewBooking(t *testing.T) {
	f := newFixture(t, booking.DefaultOptions())
	ctx := context.Background()
	open := testdb.SeedBooking(t, f.db, f.talent, fan.UserID, models.BookingInProgress)
	done := testdb.SeedBooking(t, f.db, f.talent, fan.UserID, models.BookingCompleted)

	_, err := f.svc.ReviewBooking(ctx, fan, open.ID, models.ReviewBookingRequest{Rating: 5})
	assert.ErrorIs(t, err, apperrors.ErrReviewNotAllowed)

	_, err = f.svc.ReviewBooking(ctx, fan, done.ID, models.ReviewBookingRequest{Rating: 6})
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, []string{"Rating must be between 1 and 5"}, appErr.Details)

	_, err = f.svc.ReviewBooking(ctx, models.Caller{UserID: "someone-else", Role: models.RoleFan}, done.ID, models.ReviewBookingRequest{Rating: 4})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	reviewed, err := f.svc.ReviewBooking(ctx, fan, done.ID, models.ReviewBookingRequest{Rating: 4, Review: " Loved it "})
	require.NoError(t, err)
	require.NotNil(t, reviewed.CustomerRating)
	assert.Equal(t, 4, *reviewed.CustomerRating)
	assert.Equal(t, "Loved it", reviewed.CustomerReview)

	_, err = f.svc.ReviewBooking(ctx, fan, done.ID, models.ReviewBookingRequest{Rating: 1})
	assert.ErrorIs(t, err, apperrors.ErrReviewNotAllowed)
	assert.Contains(t, err.Error(), "already been reviewed")
}

// ---------------- READS ----------------

func TestGetBooking_ViewDependsOnCaller(t *testing.T) {
	f := newFixture(t, booking.DefaultOptions())
	ctx := context.Background()
	b := f.create(t)
	f.payments.byBooking[b.ID] = []models.Payment{{
		ID: "pay-1", BookingID: b.ID, Gateway: "ecocash", Reference: "EC-1",
		Amount: decimal.NewFromInt(100), Currency: "USD", Status: models.PaymentCompleted, CreatedAt: fixedNow,
	}}

	customerView, err := f.svc.GetBooking(ctx, fan, b.BookingCode)
	require.NoError(t, err)
	assert.Nil(t, customerView.Customer)
	assert.Empty(t, customerView.Payments)
	require.Len(t, customerView.Timeline, 1)
	assert.Equal(t, models.PaymentCompleted, customerView.Timeline[0].Status)

	talentView, err := f.svc.GetBooking(ctx, f.talentCaller(), b.ID)
	require.NoError(t, err)
	require.NotNil(t, talentView.Customer)
	assert.Equal(t, "tendai@example.com", talentView.Customer.Email)
	assert.Len(t, talentView.Payments, 1)
	assert.Empty(t, talentView.Timeline)

	adminView, err := f.svc.GetBooking(ctx, models.Caller{UserID: "admin-1", Role: models.RoleAdmin}, b.ID)
	require.NoError(t, err)
	assert.NotNil(t, adminView.Customer)

	_, err = f.svc.GetBooking(ctx, models.Caller{UserID: "stranger", Role: models.RoleFan}, b.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.svc.GetBooking(ctx, fan, "TS-NOPE-0000")
	assert.ErrorIs(t, err, apperrors.ErrBookingNotFound)
}

func TestListBookings(t *testing.T) {
	f := newFixture(t, booking.DefaultOptions())
	ctx := context.Background()
	testdb.SeedBooking(t, f.db, f.talent, fan.UserID, models.BookingPendingPayment)
	testdb.SeedBooking(t, f.db, f.talent, fan.UserID, models.BookingCompleted)
	testdb.SeedBooking(t, f.db, f.talent, "fan-2", models.BookingCompleted)

	mine, err := f.svc.ListBookings(ctx, fan, booking.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	completed, err := f.svc.ListBookings(ctx, fan, booking.ListFilter{Status: "completed"})
	require.NoError(t, err)
	assert.Len(t, completed, 1)

	asTalent, err := f.svc.ListBookings(ctx, f.talentCaller(), booking.ListFilter{AsTalent: true})
	require.NoError(t, err)
	assert.Len(t, asTalent, 3)
	require.NotNil(t, asTalent[0].Talent)

	_, err = f.svc.ListBookings(ctx, fan, booking.ListFilter{AsTalent: true})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.svc.ListBookings(ctx, fan, booking.ListFilter{Status: "archived"})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	none, err := f.svc.ListBookings(ctx, models.Caller{UserID: "fan-3", Role: models.RoleFan}, booking.ListFilter{})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

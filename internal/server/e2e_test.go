package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"torashaout/internal/auth"
	"torashaout/internal/config"
	"torashaout/internal/database/testdb"
	"torashaout/internal/kafka"
	"torashaout/internal/locks"
	"torashaout/internal/logger"
	"torashaout/internal/models"
	"torashaout/internal/server"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Details []string        `json:"details"`
}

type harness struct {
	srv    *httptest.Server
	app    *server.App
	db     *bun.DB
	talent *models.Talent
	tokens *auth.HMACVerifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := config.Load()
	cfg.Booking.PlatformFeePercent = "0.25"
	cfg.Booking.AllowCompletedRefunds = true
	cfg.Telemetry.Enabled = false

	db := testdb.New(t)
	log := logger.NewNop()
	tokens := auth.NewHMACVerifier("e2e-secret", "torashaout")
	locker := locks.NewLocal()

	app := server.NewApp(server.Deps{
		Config:   cfg,
		DB:       db,
		Logger:   log,
		Verifier: tokens,
		Kafka:    kafka.NewDisabledProducer(log),
		Gate:     locker,
		Locker:   locker,
	})
	srv := httptest.NewServer(app.Router)
	t.Cleanup(srv.Close)

	return &harness{
		srv:    srv,
		app:    app,
		db:     db,
		talent: testdb.SeedTalent(t, db),
		tokens: tokens,
	}
}

func (h *harness) token(t *testing.T, caller models.Caller) string {
	t.Helper()
	tok, err := h.tokens.IssueToken(caller, time.Hour)
	require.NoError(t, err)
	return tok
}

// send performs a request without failing the test, so it is safe to call from
// worker goroutines.
func (h *harness) send(method, path string, caller *models.Caller, body interface{}) (int, envelope, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, envelope{}, err
		}
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	if err != nil {
		return 0, envelope{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		tok, err := h.tokens.IssueToken(*caller, time.Hour)
		if err != nil {
			return 0, envelope{}, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := h.srv.Client().Do(req)
	if err != nil {
		return 0, envelope{}, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return resp.StatusCode, envelope{}, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return resp.StatusCode, env, nil
}

func (h *harness) do(t *testing.T, method, path string, caller *models.Caller, body interface{}) (int, envelope) {
	t.Helper()
	status, env, err := h.send(method, path, caller, body)
	require.NoError(t, err)
	return status, env
}

func decode(t *testing.T, raw json.RawMessage, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, dst))
}

var (
	fan       = models.Caller{UserID: "fan-1", Role: models.RoleFan, Email: "tendai@example.com"}
	otherFan  = models.Caller{UserID: "fan-2", Role: models.RoleFan}
	adminUser = models.Caller{UserID: "admin-1", Role: models.RoleAdmin}
)

func (h *harness) bookingRequest() map[string]interface{} {
	return map[string]interface{}{
		"talentId":       h.talent.ID,
		"recipientName":  "Rudo",
		"occasion":       "birthday",
		"instructions":   "Wish her a happy 30th",
		"currency":       "USD",
		"paymentGateway": "ecocash",
		"fromName":       "Tendai",
		"fromEmail":      "tendai@example.com",
	}
}

func (h *harness) createBooking(t *testing.T) models.BookingSummary {
	t.Helper()
	status, env := h.do(t, http.MethodPost, "/bookings", &fan, h.bookingRequest())
	require.Equal(t, http.StatusCreated, status, env.Error)
	var summary models.BookingSummary
	decode(t, env.Data, &summary)
	return summary
}

func (h *harness) getBooking(t *testing.T, caller models.Caller, id string) models.Booking {
	t.Helper()
	status, env := h.do(t, http.MethodGet, "/bookings/"+id, &caller, nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	var view models.BookingView
	decode(t, env.Data, &view)
	return view.Booking
}

func payment(b models.BookingSummary, ref string) map[string]interface{} {
	return map[string]interface{}{
		"bookingId": b.ID,
		"method":    "ecocash",
		"amount":    b.Amount.StringFixed(2),
		"currency":  b.Currency,
		"reference": ref,
	}
}

func (h *harness) bookingRows(t *testing.T) int {
	t.Helper()
	n, err := h.db.NewSelect().Model((*models.Booking)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestCreateBooking_PricesAndAwaitsPayment(t *testing.T) {
	h := newHarness(t)

	b := h.createBooking(t)
	assert.Equal(t, "100.00", b.Amount.StringFixed(2))
	assert.Equal(t, "25.00", b.PlatformFee.StringFixed(2))
	assert.Equal(t, "75.00", b.TalentEarnings.StringFixed(2))
	assert.Equal(t, models.BookingPendingPayment, b.Status)
	assert.True(t, b.RequiresPayment)
	assert.Regexp(t, `^TS-`, b.BookingCode)

	got := h.getBooking(t, fan, b.BookingCode)
	assert.Equal(t, b.ID, got.ID)
}

func TestRecordPayment_ConfirmsOnceThenAlreadyPaid(t *testing.T) {
	h := newHarness(t)
	b := h.createBooking(t)

	status, env := h.do(t, http.MethodPost, "/payments", &fan, payment(b, "ECO-0001"))
	require.Equal(t, http.StatusCreated, status, env.Error)
	assert.Equal(t, "Payment recorded", env.Message)
	assert.Equal(t, models.BookingPaymentConfirmed, h.getBooking(t, fan, b.ID).Status)

	status, env = h.do(t, http.MethodPost, "/payments", &fan, payment(b, "ECO-0002"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, env.Success)
	assert.Contains(t, strings.ToLower(env.Error), "already paid")

	status, env = h.do(t, http.MethodGet, "/payments?bookingId="+b.ID, &fan, nil)
	require.Equal(t, http.StatusOK, status)
	var payments []models.Payment
	decode(t, env.Data, &payments)
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentCompleted, payments[0].Status)
}

func TestRecordPayment_ConcurrentRequestsOverHTTP(t *testing.T) {
	h := newHarness(t)
	b := h.createBooking(t)

	const n = 8
	codes := make([]int, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i], _, errs[i] = h.send(http.MethodPost, "/payments", &fan, payment(b, fmt.Sprintf("ECO-RACE-%d", i)))
		}(i)
	}
	wg.Wait()

	created := 0
	for i, c := range codes {
		require.NoError(t, errs[i])
		switch c {
		case http.StatusCreated:
			created++
		case http.StatusBadRequest, http.StatusConflict:
		default:
			t.Errorf("unexpected status %d", c)
		}
	}
	assert.Equal(t, 1, created)

	completed, err := h.db.NewSelect().Model((*models.Payment)(nil)).
		Where("booking_id = ?", b.ID).
		Where("status = ?", models.PaymentCompleted).
		Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
}

func TestAdminComplete_StampsCompletedAt(t *testing.T) {
	h := newHarness(t)
	b := h.createBooking(t)
	status, env := h.do(t, http.MethodPost, "/payments", &fan, payment(b, "ECO-0003"))
	require.Equal(t, http.StatusCreated, status, env.Error)

	callTime := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)
	h.app.Bookings.SetClock(func() time.Time { return callTime })

	status, env = h.do(t, http.MethodPost, "/admin/bookings/"+b.ID+"/complete", &adminUser, nil)
	require.Equal(t, http.StatusOK, status, env.Error)

	got := h.getBooking(t, fan, b.ID)
	assert.Equal(t, models.BookingCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, callTime.Equal(*got.CompletedAt), got.CompletedAt.String())
}

func TestAdminRefund_RejectsUnpaidBooking(t *testing.T) {
	h := newHarness(t)
	b := h.createBooking(t)

	status, env := h.do(t, http.MethodPost, "/admin/bookings/"+b.ID+"/refund", &adminUser, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Error, "not been paid")
	assert.Equal(t, models.BookingPendingPayment, h.getBooking(t, fan, b.ID).Status)
}

func TestCreateBooking_MissingRecipientIsRejected(t *testing.T) {
	h := newHarness(t)
	req := h.bookingRequest()
	delete(req, "recipientName")

	status, env := h.do(t, http.MethodPost, "/bookings", &fan, req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Details, "Recipient name is required")
	assert.Equal(t, 0, h.bookingRows(t))
}

func TestAccessControl(t *testing.T) {
	h := newHarness(t)
	b := h.createBooking(t)

	status, _ := h.do(t, http.MethodGet, "/bookings", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/bookings", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	status, _ = h.do(t, http.MethodGet, "/bookings/"+b.ID, &otherFan, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = h.do(t, http.MethodPost, "/payments", &otherFan, payment(b, "ECO-STEAL"))
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = h.do(t, http.MethodPost, "/admin/bookings/"+b.ID+"/cancel", &fan, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = h.do(t, http.MethodGet, "/admin/stats", &fan, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestFullLifecycleAndPayout(t *testing.T) {
	h := newHarness(t)
	talent := models.Caller{UserID: h.talent.UserID, Role: models.RoleTalent}
	b := h.createBooking(t)

	status, env := h.do(t, http.MethodPost, "/payments", &fan, payment(b, "ECO-0004"))
	require.Equal(t, http.StatusCreated, status, env.Error)

	status, env = h.do(t, http.MethodPost, "/bookings/"+b.ID+"/start", &talent, nil)
	require.Equal(t, http.StatusOK, status, env.Error)

	status, env = h.do(t, http.MethodPost, "/bookings/"+b.ID+"/deliver", &talent, map[string]string{"videoUrl": "https://cdn.example.com/v/1.mp4"})
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.Equal(t, models.BookingCompleted, h.getBooking(t, fan, b.ID).Status)

	status, env = h.do(t, http.MethodPost, "/bookings/"+b.ID+"/review", &fan, map[string]interface{}{"rating": 5, "review": "Amazing"})
	require.Equal(t, http.StatusOK, status, env.Error)

	payout := map[string]interface{}{
		"amount":         "75.00",
		"currency":       "USD",
		"method":         "mobile_money",
		"accountDetails": "EcoCash 0772000000",
	}
	status, env = h.do(t, http.MethodPost, "/payouts", &talent, payout)
	require.Equal(t, http.StatusCreated, status, env.Error)

	status, env = h.do(t, http.MethodPost, "/payouts", &talent, payout)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Error, "available balance")

	status, env = h.do(t, http.MethodGet, "/payouts", &talent, nil)
	require.Equal(t, http.StatusOK, status)
	var summary models.PayoutSummary
	decode(t, env.Data, &summary)
	assert.Len(t, summary.Payouts, 1)
	for _, bal := range summary.Balances {
		assert.True(t, bal.Available.Equal(decimal.Zero), "%s available %s", bal.Currency, bal.Available)
	}

	status, env = h.do(t, http.MethodGet, "/notifications", &fan, nil)
	require.Equal(t, http.StatusOK, status)
	var notes []models.Notification
	decode(t, env.Data, &notes)
	assert.NotEmpty(t, notes)

	status, env = h.do(t, http.MethodGet, "/admin/stats", &adminUser, nil)
	require.Equal(t, http.StatusOK, status)
	var stats struct {
		TotalBookings int `json:"totalBookings"`
	}
	decode(t, env.Data, &stats)
	assert.Equal(t, 1, stats.TotalBookings)
}

func TestHealthAndWebhookRoute(t *testing.T) {
	h := newHarness(t)

	status, env := h.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	resp, err := h.srv.Client().Post(h.srv.URL+"/webhooks/stripe", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
}

// readEvent reads one server-sent event and returns its name and data.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if name != "" || data != "" {
				return name, data
			}
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestTalentEventStream(t *testing.T) {
	h := newHarness(t)
	talent := models.Caller{UserID: h.talent.UserID, Role: models.RoleTalent}

	status, env := h.do(t, http.MethodGet, "/bookings/events", &fan, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.False(t, env.Success)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.srv.URL+"/bookings/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+h.token(t, talent))
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	events := bufio.NewReader(resp.Body)
	name, data := readEvent(t, events)
	assert.Equal(t, "connected", name)
	assert.Contains(t, data, h.talent.ID)

	b := h.createBooking(t)
	status, env = h.do(t, http.MethodPost, "/payments", &fan, payment(b, "ECO-STREAM"))
	require.Equal(t, http.StatusCreated, status, env.Error)

	// the talent hears about the new booking and then its payment
	var seen []models.BookingStatus
	for len(seen) < 2 {
		name, data = readEvent(t, events)
		require.Equal(t, "status", name)
		var event models.BookingEvent
		require.NoError(t, json.Unmarshal([]byte(data), &event))
		assert.Equal(t, b.ID, event.BookingID)
		assert.Equal(t, h.talent.ID, event.TalentID)
		seen = append(seen, event.Status)
	}
	assert.Equal(t, []models.BookingStatus{models.BookingPendingPayment, models.BookingPaymentConfirmed}, seen)
}

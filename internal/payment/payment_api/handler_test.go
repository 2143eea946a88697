package payment_api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"torashaout/internal/apperrors"
	"torashaout/internal/auth"
	"torashaout/internal/logger"
	"torashaout/internal/models"
	"torashaout/internal/payment"
	"torashaout/internal/payment/services"
	"torashaout/internal/utils"
)

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordPayment(ctx context.Context, caller models.Caller, req models.PaymentRequest) (*payment.RecordResult, error) {
	args := m.Called(caller, req)
	res, _ := args.Get(0).(*payment.RecordResult)
	return res, args.Error(1)
}

func (m *MockRecorder) ListPayments(ctx context.Context, caller models.Caller, f models.PaymentFilter) ([]models.Payment, error) {
	args := m.Called(caller, f)
	res, _ := args.Get(0).([]models.Payment)
	return res, args.Error(1)
}

func (m *MockRecorder) HandleGatewayCallback(ctx context.Context, cb models.GatewayCallback) (*payment.RecordResult, error) {
	args := m.Called(cb)
	res, _ := args.Get(0).(*payment.RecordResult)
	return res, args.Error(1)
}

type MockParser struct {
	mock.Mock
}

func (m *MockParser) ParseWebhook(payload []byte, signature string) (models.GatewayCallback, bool, error) {
	args := m.Called(string(payload), signature)
	return args.Get(0).(models.GatewayCallback), args.Bool(1), args.Error(2)
}

var fan = models.Caller{UserID: "fan-1", Role: models.RoleFan}

func postPayment(t *testing.T, h *Handler, body string) (*httptest.ResponseRecorder, utils.APIResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBufferString(body))
	req = req.WithContext(auth.WithCaller(req.Context(), fan))
	rr := httptest.NewRecorder()
	h.RecordPayment(rr, req)

	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return rr, resp
}

const paymentBody = `{"bookingId":"b-1","method":"ecocash","amount":"100.00","currency":"USD","reference":"EC-1"}`

func TestRecordPayment_Created(t *testing.T) {
	rec := new(MockRecorder)
	rec.On("RecordPayment", fan, mock.MatchedBy(func(r models.PaymentRequest) bool {
		return r.BookingID == "b-1" && r.Amount.Equal(decimal.NewFromInt(100))
	})).Return(&payment.RecordResult{Payment: models.Payment{ID: "p-1", Status: models.PaymentCompleted}}, nil)

	rr, resp := postPayment(t, NewHandler(rec, logger.NewNop()), paymentBody)
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "Payment recorded", resp.Message)
	rec.AssertExpectations(t)
}

func TestRecordPayment_ReconciliationPendingIsAccepted(t *testing.T) {
	rec := new(MockRecorder)
	rec.On("RecordPayment", fan, mock.Anything).
		Return(&payment.RecordResult{Payment: models.Payment{ID: "p-1", Status: models.PaymentCompleted}, ReconciliationPending: true}, nil)

	rr, resp := postPayment(t, NewHandler(rec, logger.NewNop()), paymentBody)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "Payment recorded, booking status pending reconciliation", resp.Message)
}

func TestRecordPayment_RefundRequiredIsAccepted(t *testing.T) {
	rec := new(MockRecorder)
	rec.On("RecordPayment", fan, mock.Anything).Return(&payment.RecordResult{
		Payment:               models.Payment{ID: "p-1", Status: models.PaymentCompleted},
		Booking:               &models.Booking{ID: "b-1", Status: models.BookingCancelled},
		ReconciliationPending: true,
		RefundRequired:        true,
	}, nil)

	rr, resp := postPayment(t, NewHandler(rec, logger.NewNop()), paymentBody)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "Payment recorded, booking is cancelled and the payment is flagged for refund", resp.Message)
}

func TestRecordPayment_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"already paid", apperrors.ErrAlreadyPaid, http.StatusBadRequest, "Booking is already paid"},
		{"in progress", apperrors.ErrPaymentInProgress, http.StatusConflict, "A payment for this booking is already being processed"},
		{"forbidden", apperrors.ErrForbidden, http.StatusForbidden, "You are not allowed to perform this action"},
		{"store down", apperrors.Internal("failed to record payment", errors.New("pq: connection reset")), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := new(MockRecorder)
			rec.On("RecordPayment", fan, mock.Anything).Return(nil, tt.err)

			rr, resp := postPayment(t, NewHandler(rec, logger.NewNop()), paymentBody)
			assert.Equal(t, tt.status, rr.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.msg, resp.Error)
		})
	}
}

func TestRecordPayment_MalformedBody(t *testing.T) {
	rec := new(MockRecorder)
	rr, resp := postPayment(t, NewHandler(rec, logger.NewNop()), `{"bookingId":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid request body", resp.Error)
	rec.AssertNotCalled(t, "RecordPayment", mock.Anything, mock.Anything)
}

func TestListPayments_PassesFilter(t *testing.T) {
	rec := new(MockRecorder)
	rec.On("ListPayments", fan, models.PaymentFilter{BookingID: "b-1", Reference: "EC-1", Limit: 50}).
		Return([]models.Payment{{ID: "p-1"}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/payments?bookingId=b-1&reference=EC-1", nil)
	req = req.WithContext(auth.WithCaller(req.Context(), fan))
	rr := httptest.NewRecorder()
	NewHandler(rec, logger.NewNop()).ListPayments(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	rec.AssertExpectations(t)
}

func TestListPayments_RefundRequiredFilter(t *testing.T) {
	admin := models.Caller{UserID: "admin-1", Role: models.RoleAdmin}
	rec := new(MockRecorder)
	rec.On("ListPayments", admin, models.PaymentFilter{RefundRequired: true, Limit: 50}).
		Return([]models.Payment{{ID: "p-1"}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/payments?refundRequired=true", nil)
	req = req.WithContext(auth.WithCaller(req.Context(), admin))
	rr := httptest.NewRecorder()
	NewHandler(rec, logger.NewNop()).ListPayments(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	rec.AssertExpectations(t)
}

func TestStripeWebhook(t *testing.T) {
	cb := models.GatewayCallback{Gateway: "stripe", Reference: "pi_1", Succeeded: true}

	tests := []struct {
		name      string
		parse     func(*MockParser)
		recorder  func(*MockRecorder)
		status    int
		wantError string
	}{
		{
			name: "bad signature",
			parse: func(p *MockParser) {
				p.On("ParseWebhook", "{}", "sig").Return(models.GatewayCallback{}, false, services.ErrWebhookSignature)
			},
			status: http.StatusBadRequest, wantError: "Invalid webhook signature",
		},
		{
			name:   "ignored event",
			parse:  func(p *MockParser) { p.On("ParseWebhook", "{}", "sig").Return(models.GatewayCallback{}, false, nil) },
			status: http.StatusOK,
		},
		{
			name:  "settled",
			parse: func(p *MockParser) { p.On("ParseWebhook", "{}", "sig").Return(cb, true, nil) },
			recorder: func(r *MockRecorder) {
				r.On("HandleGatewayCallback", cb).Return(&payment.RecordResult{Payment: models.Payment{ID: "p-1"}}, nil)
			},
			status: http.StatusOK,
		},
		{
			name:  "unknown intent",
			parse: func(p *MockParser) { p.On("ParseWebhook", "{}", "sig").Return(cb, true, nil) },
			recorder: func(r *MockRecorder) {
				r.On("HandleGatewayCallback", cb).Return(nil, apperrors.ErrPaymentNotFound)
			},
			status: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := new(MockParser)
			rec := new(MockRecorder)
			tt.parse(parser)
			if tt.recorder != nil {
				tt.recorder(rec)
			}

			req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBufferString("{}"))
			req.Header.Set("Stripe-Signature", "sig")
			rr := httptest.NewRecorder()
			NewStripeWebhookHandler(parser, rec, logger.NewNop()).ServeHTTP(rr, req)

			assert.Equal(t, tt.status, rr.Code)
			if tt.wantError != "" {
				var resp utils.APIResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantError, resp.Error)
			}
			rec.AssertExpectations(t)
		})
	}
}

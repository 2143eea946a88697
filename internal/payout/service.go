package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"torashaout/internal/apperrors"
	"torashaout/internal/locks"
	"torashaout/internal/logger"
	"torashaout/internal/models"
	"torashaout/internal/utils"
	"torashaout/internal/validation"
)

type DBLayer interface {
	GetTalentByUserID(ctx context.Context, userID string) (*models.Talent, error)
	Earned(ctx context.Context, talentID string) (map[string]decimal.Decimal, error)
	PaidOut(ctx context.Context, talentID string) (map[string]decimal.Decimal, error)
	InsertPayout(ctx context.Context, p *models.Payout) error
	ListPayouts(ctx context.Context, talentID string) ([]models.Payout, error)
}

type EventPublisher interface {
	PublishPayoutEvent(ctx context.Context, event models.PayoutEvent) error
}

type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

type Options struct {
	BankTransferETA time.Duration
	MobileMoneyETA  time.Duration
	LockTTL         time.Duration
}

func DefaultOptions() Options {
	return Options{
		BankTransferETA: 72 * time.Hour,
		MobileMoneyETA:  2 * time.Hour,
		LockTTL:         10 * time.Second,
	}
}

type PayoutService struct {
	DB       DBLayer
	Locker   locks.Locker
	Kafka    EventPublisher
	Notifier Notifier
	Logger   *logger.Logger

	opts Options
	now  func() time.Time
}

func NewPayoutService(db DBLayer, locker locks.Locker, kafka EventPublisher, notifier Notifier, log *logger.Logger, opts Options) *PayoutService {
	def := DefaultOptions()
	if opts.BankTransferETA <= 0 {
		opts.BankTransferETA = def.BankTransferETA
	}
	if opts.MobileMoneyETA <= 0 {
		opts.MobileMoneyETA = def.MobileMoneyETA
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = def.LockTTL
	}
	return &PayoutService{
		DB:       db,
		Locker:   locker,
		Kafka:    kafka,
		Notifier: notifier,
		Logger:   log,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *PayoutService) SetClock(now func() time.Time) {
	s.now = now
}

var payoutMessages = validation.Messages{
	"currency.required":       "Currency is required",
	"method.required":         "Payout method is required",
	"method.payout_method":    "Payout method must be one of bank_transfer, mobile_money",
	"accountDetails.required": "Account details are required",
	"accountDetails.max":      "Account details must be at most 256 characters",
}

func validatePayoutRequest(req *models.PayoutRequest) []string {
	validation.TrimStrings(req)
	errs := validation.Struct(req, payoutMessages)
	if !req.Amount.IsPositive() {
		errs = append(errs, "Amount must be greater than zero")
	} else if !req.Amount.Equal(req.Amount.Round(2)) {
		errs = append(errs, "Amount must have at most two decimal places")
	}
	return errs
}

func (s *PayoutService) talentFor(ctx context.Context, caller models.Caller) (*models.Talent, error) {
	if !caller.Authenticated() {
		return nil, apperrors.ErrUnauthenticated
	}
	if caller.Role != models.RoleTalent {
		return nil, apperrors.ErrForbidden.WithMessage("Only talents can request payouts")
	}
	t, err := s.DB.GetTalentByUserID(ctx, caller.UserID)
	if err != nil {
		return nil, apperrors.Internal("failed to load talent", err)
	}
	if t == nil {
		return nil, apperrors.ErrTalentProfileMissing
	}
	return t, nil
}

func (s *PayoutService) eta(m models.PayoutMethod, from time.Time) time.Time {
	if m == models.PayoutMobileMoney {
		return from.Add(s.opts.MobileMoneyETA)
	}
	return from.Add(s.opts.BankTransferETA)
}

// RequestPayout withdraws part of a talent's available balance. The balance check
// and the insert run under a per-talent mutex, so two requests cannot both spend
// the same earnings.
func (s *PayoutService) RequestPayout(ctx context.Context, caller models.Caller, req models.PayoutRequest) (*models.Payout, error) {
	t, err := s.talentFor(ctx, caller)
	if err != nil {
		return nil, err
	}
	if errs := validatePayoutRequest(&req); len(errs) > 0 {
		return nil, apperrors.Validation(errs)
	}

	release, err := s.Locker.TryLock(ctx, "payout:"+t.ID, s.opts.LockTTL)
	if errors.Is(err, locks.ErrBusy) {
		s.Logger.LogPayout("BUSY", t.ID, "another payout request holds the lock")
		return nil, apperrors.ErrPayoutBusy
	}
	if err != nil {
		return nil, apperrors.Internal("failed to acquire payout lock", err)
	}
	defer release()

	balances, err := s.balances(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	available := decimal.Zero
	for _, b := range balances {
		if b.Currency == req.Currency {
			available = b.Available
		}
	}
	if req.Amount.GreaterThan(available) {
		s.Logger.LogPayout("REJECT", t.ID, fmt.Sprintf("requested %s %s, available %s", req.Amount.StringFixed(2), req.Currency, available.StringFixed(2)))
		return nil, apperrors.ErrInsufficientFunds.WithMessage("Requested amount exceeds available balance of %s %s", available.StringFixed(2), req.Currency)
	}

	now := s.now()
	p := &models.Payout{
		ID:               utils.NewID(),
		TalentID:         t.ID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		Method:           req.Method,
		AccountDetails:   req.AccountDetails,
		Reference:        utils.GeneratePayoutReference(),
		Status:           models.PayoutProcessing,
		EstimatedArrival: s.eta(req.Method, now),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.DB.InsertPayout(ctx, p); err != nil {
		return nil, apperrors.Internal("failed to save payout", err)
	}
	s.Logger.LogPayout("REQUESTED", t.ID, fmt.Sprintf("%s %s %s via %s", p.Reference, p.Amount.StringFixed(2), p.Currency, p.Method))

	s.announce(ctx, t, *p)
	return p, nil
}

func (s *PayoutService) announce(ctx context.Context, t *models.Talent, p models.Payout) {
	if s.Kafka != nil {
		event := models.PayoutEvent{
			Type:      "payout.requested",
			PayoutID:  p.ID,
			TalentID:  p.TalentID,
			Reference: p.Reference,
			Amount:    p.Amount,
			Currency:  p.Currency,
			Method:    p.Method,
			Timestamp: p.CreatedAt,
		}
		if err := s.Kafka.PublishPayoutEvent(ctx, event); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("publish payout %s: %v", p.ID, err))
		}
	}
	if s.Notifier != nil {
		n := models.Notification{
			ID:        utils.NewID(),
			UserID:    t.UserID,
			Type:      models.NotificationPayout,
			Title:     "Payout requested",
			Message:   fmt.Sprintf("Your payout %s of %s %s is processing. Expected by %s.", p.Reference, p.Amount.StringFixed(2), p.Currency, p.EstimatedArrival.Format("2 Jan 2006 15:04 MST")),
			CreatedAt: p.CreatedAt,
		}
		if err := s.Notifier.Notify(ctx, n); err != nil {
			s.Logger.Error("NOTIFY", fmt.Sprintf("notify payout %s: %v", p.ID, err))
		}
	}
}

// ListPayouts returns the caller's payouts with the balance left per currency.
func (s *PayoutService) ListPayouts(ctx context.Context, caller models.Caller) (*models.PayoutSummary, error) {
	t, err := s.talentFor(ctx, caller)
	if err != nil {
		return nil, err
	}
	payouts, err := s.DB.ListPayouts(ctx, t.ID)
	if err != nil {
		return nil, apperrors.Internal("failed to list payouts", err)
	}
	balances, err := s.balances(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	return &models.PayoutSummary{Payouts: payouts, Balances: balances}, nil
}

// balances reports every supported currency, including ones with nothing earned.
func (s *PayoutService) balances(ctx context.Context, talentID string) ([]models.Balance, error) {
	earned, err := s.DB.Earned(ctx, talentID)
	if err != nil {
		return nil, apperrors.Internal("failed to compute earnings", err)
	}
	paid, err := s.DB.PaidOut(ctx, talentID)
	if err != nil {
		return nil, apperrors.Internal("failed to compute payouts", err)
	}

	out := make([]models.Balance, 0, len(models.SupportedCurrencies))
	for _, c := range models.SupportedCurrencies {
		e, p := earned[c], paid[c]
		out = append(out, models.Balance{
			Currency:  c,
			Earned:    e,
			PaidOut:   p,
			Available: e.Sub(p),
		})
	}
	return out, nil
}

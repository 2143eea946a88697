package admin

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"torashaout/internal/apperrors"
	"torashaout/internal/models"
)

type StatsStore interface {
	CountBookingsByStatus(ctx context.Context) (map[models.BookingStatus]int, error)
	CountPaymentsByStatus(ctx context.Context) (map[models.PaymentStatus]int, error)
	RevenueByCurrency(ctx context.Context) ([]CurrencyRevenue, error)
	PayoutsByCurrency(ctx context.Context) ([]CurrencyPayouts, error)
	CountTalents(ctx context.Context) (TalentCounts, error)
}

// PlatformStats is the admin dashboard summary.
type PlatformStats struct {
	TotalBookings    int                          `json:"totalBookings"`
	BookingsByStatus map[models.BookingStatus]int `json:"bookingsByStatus"`
	PaymentsByStatus map[models.PaymentStatus]int `json:"paymentsByStatus"`
	Revenue          []CurrencyRevenue            `json:"revenue"`
	Payouts          []CurrencyPayouts            `json:"payouts"`
	Talents          TalentCounts                 `json:"talents"`
	GeneratedAt      time.Time                    `json:"generatedAt"`
}

type StatsService struct {
	Store StatsStore
	now   func() time.Time
}

func NewStatsService(store StatsStore) *StatsService {
	return &StatsService{Store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Stats runs the aggregate queries concurrently.
func (s *StatsService) Stats(ctx context.Context, caller models.Caller) (*PlatformStats, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}

	out := &PlatformStats{GeneratedAt: s.now()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.BookingsByStatus, err = s.Store.CountBookingsByStatus(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.PaymentsByStatus, err = s.Store.CountPaymentsByStatus(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.Revenue, err = s.Store.RevenueByCurrency(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.Payouts, err = s.Store.PayoutsByCurrency(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.Talents, err = s.Store.CountTalents(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperrors.Internal("failed to compute stats", err)
	}

	for _, n := range out.BookingsByStatus {
		out.TotalBookings += n
	}
	return out, nil
}

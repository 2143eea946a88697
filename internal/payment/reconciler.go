package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"torashaout/internal/locks"
	"torashaout/internal/logger"
	"torashaout/internal/models"
)

const reconcilerLockName = "reconciler:stranded_payments"

// StrandedFinder lists completed payments whose booking is still unpaid, and the
// ones whose booking was closed before it could be confirmed.
type StrandedFinder interface {
	FindStranded(ctx context.Context, limit int) ([]models.Payment, error)
	FindOrphaned(ctx context.Context, limit int) ([]models.Payment, error)
	FlagRefundRequired(ctx context.Context, id string, at time.Time) (bool, error)
}

type BookingConfirmer interface {
	ConfirmPayment(ctx context.Context, id string) (*models.Booking, error)
}

// Reconciler advances bookings left in pending_payment after their payment was
// committed, and flags completed payments on cancelled or refunded bookings for a
// refund. Only one instance runs a pass at a time.
type Reconciler struct {
	Store     StrandedFinder
	Bookings  BookingConfirmer
	Locker    locks.Locker
	Logger    *logger.Logger
	BatchSize int
	LockTTL   time.Duration

	now func() time.Time
}

func NewReconciler(store StrandedFinder, bookings BookingConfirmer, locker locks.Locker, log *logger.Logger, batchSize int, lockTTL time.Duration) *Reconciler {
	if batchSize <= 0 {
		batchSize = 100
	}
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &Reconciler{
		Store:     store,
		Bookings:  bookings,
		Locker:    locker,
		Logger:    log,
		BatchSize: batchSize,
		LockTTL:   lockTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run makes one pass and returns how many bookings it advanced. A pass already
// running elsewhere makes this one a no-op.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	release, err := r.Locker.TryLock(ctx, reconcilerLockName, r.LockTTL)
	if errors.Is(err, locks.ErrBusy) {
		r.Logger.Debug("RECONCILE", "another instance is reconciling, skipping")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("acquire reconciler lock: %w", err)
	}
	defer release()

	stranded, err := r.Store.FindStranded(ctx, r.BatchSize)
	if err != nil {
		return 0, err
	}

	advanced := 0
	for _, p := range stranded {
		if _, err := r.Bookings.ConfirmPayment(ctx, p.BookingID); err != nil {
			r.Logger.LogReconciliation(p.BookingID, p.ID, fmt.Sprintf("still stranded: %v", err))
			continue
		}
		advanced++
		r.Logger.LogPayment("RECONCILED", p.BookingID, fmt.Sprintf("advanced after payment %s", p.ID))
	}
	if len(stranded) > 0 {
		r.Logger.LogProcess("RECONCILER", fmt.Sprintf("advanced %d of %d stranded booking(s)", advanced, len(stranded)))
	}

	if err := r.flagOrphaned(ctx); err != nil {
		return advanced, err
	}
	return advanced, nil
}

// flagOrphaned marks completed payments on closed bookings that no request flagged
// when it recorded them.
func (r *Reconciler) flagOrphaned(ctx context.Context) error {
	orphaned, err := r.Store.FindOrphaned(ctx, r.BatchSize)
	if err != nil {
		return err
	}
	for _, p := range orphaned {
		flagged, err := r.Store.FlagRefundRequired(ctx, p.ID, r.now())
		if err != nil {
			r.Logger.Error("RECONCILE", fmt.Sprintf("failed to flag payment %s for refund: %v", p.ID, err))
			continue
		}
		if flagged {
			r.Logger.LogReconciliation(p.BookingID, p.ID, "completed payment on a closed booking, refund required")
		}
	}
	return nil
}

// Start schedules Run on schedule until ctx is cancelled. The returned channel closes
// once the scheduler has stopped and any running pass has finished.
func (r *Reconciler) Start(ctx context.Context, schedule string) (<-chan struct{}, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		if _, err := r.Run(runCtx); err != nil {
			r.Logger.Error("RECONCILE", fmt.Sprintf("reconciliation pass failed: %v", err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule reconciler %q: %w", schedule, err)
	}

	c.Start()
	r.Logger.LogProcess("RECONCILER", fmt.Sprintf("scheduled %s", schedule))

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		close(done)
	}()
	return done, nil
}

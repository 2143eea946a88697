package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"torashaout/internal/models"
	"torashaout/internal/utils"
)

// Store persists in-app notifications. Delivery is a plain insert: no retries and
// no ordering beyond created_at.
type Store struct {
	Bun *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{Bun: db}
}

func (s *Store) Notify(ctx context.Context, n models.Notification) error {
	if n.ID == "" {
		n.ID = utils.NewID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if _, err := s.Bun.NewInsert().Model(&n).Exec(ctx); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *Store) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	var out []models.Notification
	q := s.Bun.NewSelect().
		Model(&out).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if out == nil {
		out = []models.Notification{}
	}
	return out, nil
}

// MarkRead flags one of the user's notifications as read. It reports false when
// the notification does not belong to the user.
func (s *Store) MarkRead(ctx context.Context, userID, id string) (bool, error) {
	res, err := s.Bun.NewUpdate().
		Model((*models.Notification)(nil)).
		Set("read = ?", true).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark notification %s read: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

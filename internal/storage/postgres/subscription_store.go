package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ctisec/ctihub/internal/intel"
)

const upsertSubscriptionSQL = `
INSERT INTO feed_subscriptions (owner, url, min_role, enabled, updated_at)
VALUES ($1, $2, $3, TRUE, now())
ON CONFLICT (owner, url) DO UPDATE SET
	min_role = EXCLUDED.min_role,
	enabled = TRUE,
	updated_at = now()`

const listEnabledSQL = `
SELECT id, owner, url, min_role, enabled, created_at, updated_at, last_crawled, last_status
FROM feed_subscriptions
WHERE enabled
ORDER BY id
LIMIT $1`

const setStatusSQL = `
UPDATE feed_subscriptions
SET last_crawled = $3, last_status = $4, updated_at = now()
WHERE owner = $1 AND url = $2`

const setEnabledSQL = `
UPDATE feed_subscriptions
SET enabled = $3, updated_at = now()
WHERE owner = $1 AND url = $2`

const deleteSubscriptionSQL = `DELETE FROM feed_subscriptions WHERE owner = $1 AND url = $2`

// SubscriptionStore manages user feed subscriptions.
type SubscriptionStore struct {
	db     querier
	logger *zap.Logger
}

// NewSubscriptionStore builds a SubscriptionStore on an existing pool.
func NewSubscriptionStore(db querier, logger *zap.Logger) *SubscriptionStore {
	return &SubscriptionStore{db: db, logger: logger.Named("subscription_store")}
}

// Upsert registers a subscription, re-enabling it when it already
// exists. Resubscribing is how users update the feed's minimum role.
func (s *SubscriptionStore) Upsert(ctx context.Context, sub intel.Subscription) error {
	if sub.Owner == "" || sub.URL == "" {
		return fmt.Errorf("subscription owner and url are required")
	}
	if _, err := s.db.Exec(ctx, upsertSubscriptionSQL, sub.Owner, sub.URL, string(sub.MinRole)); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// ListEnabled returns up to limit enabled subscriptions in id order.
func (s *SubscriptionStore) ListEnabled(ctx context.Context, limit int) ([]intel.Subscription, error) {
	rows, err := s.db.Query(ctx, listEnabledSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []intel.Subscription
	for rows.Next() {
		var (
			sub     intel.Subscription
			minRole string
		)
		if err := rows.Scan(&sub.ID, &sub.Owner, &sub.URL, &minRole, &sub.Enabled,
			&sub.CreatedAt, &sub.UpdatedAt, &sub.LastCrawled, &sub.LastStatus); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		sub.MinRole = intel.ParseRole(minRole)
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

// SetStatus records the outcome of a crawl attempt.
func (s *SubscriptionStore) SetStatus(ctx context.Context, owner, url string, crawledAt time.Time, status string) error {
	if _, err := s.db.Exec(ctx, setStatusSQL, owner, url, crawledAt, status); err != nil {
		return fmt.Errorf("set subscription status: %w", err)
	}
	return nil
}

// SetEnabled toggles a subscription without losing its history.
func (s *SubscriptionStore) SetEnabled(ctx context.Context, owner, url string, enabled bool) error {
	tag, err := s.db.Exec(ctx, setEnabledSQL, owner, url, enabled)
	if err != nil {
		return fmt.Errorf("set subscription enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes a subscription permanently.
func (s *SubscriptionStore) Delete(ctx context.Context, owner, url string) error {
	if _, err := s.db.Exec(ctx, deleteSubscriptionSQL, owner, url); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

package postgres

import (
	"context"

	"go.uber.org/zap"

	"github.com/ctisec/ctihub/internal/intel"
)

const upsertFeedItemSQL = `
INSERT INTO user_feed_items (owner, url, feed_url, title, content, ts, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (owner, url) DO UPDATE SET
	feed_url = EXCLUDED.feed_url,
	title = EXCLUDED.title,
	content = EXCLUDED.content,
	ts = EXCLUDED.ts,
	updated_at = now()
RETURNING (xmax = 0) AS inserted`

// FeedItemStore persists owner-scoped feed items.
type FeedItemStore struct {
	db     querier
	logger *zap.Logger
}

// NewFeedItemStore builds a FeedItemStore on an existing pool.
func NewFeedItemStore(db querier, logger *zap.Logger) *FeedItemStore {
	return &FeedItemStore{db: db, logger: logger.Named("feed_item_store")}
}

// BulkUpsert writes items keyed on (owner, url), skipping failures.
func (s *FeedItemStore) BulkUpsert(ctx context.Context, items []intel.FeedItem) (inserted, matched int, err error) {
	for _, item := range items {
		if item.Owner == "" || item.URL == "" {
			s.logger.Warn("skipping feed item without identity", zap.String("feed_url", item.FeedURL))
			continue
		}
		var wasInsert bool
		scanErr := s.db.QueryRow(ctx, upsertFeedItemSQL,
			item.Owner, item.URL, item.FeedURL, item.Title, item.Content, item.Timestamp,
		).Scan(&wasInsert)
		if scanErr != nil {
			if ctx.Err() != nil {
				return inserted, matched, ctx.Err()
			}
			s.logger.Warn("feed item upsert failed",
				zap.String("owner", item.Owner),
				zap.String("url", item.URL),
				zap.Error(scanErr))
			continue
		}
		if wasInsert {
			inserted++
		} else {
			matched++
		}
	}
	return inserted, matched, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// tryClaimSQL grants the claim when the key is free or its previous
// claim has expired. The conditional update makes losers scan no row.
const tryClaimSQL = `
INSERT INTO run_once_claims (key, claimed_at, expires_at)
VALUES ($1, now(), now() + $2)
ON CONFLICT (key) DO UPDATE SET
	claimed_at = now(),
	expires_at = now() + $2
WHERE run_once_claims.expires_at < now()
RETURNING key`

// OnceGuard elects a single process for a one-time action using a TTL
// claim row.
type OnceGuard struct {
	db     querier
	logger *zap.Logger
}

// NewOnceGuard builds an OnceGuard on an existing pool.
func NewOnceGuard(db querier, logger *zap.Logger) *OnceGuard {
	return &OnceGuard{db: db, logger: logger.Named("once_guard")}
}

// TryClaim atomically claims key for ttl. Exactly one caller wins until
// the claim expires.
func (g *OnceGuard) TryClaim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var got string
	err := g.db.QueryRow(ctx, tryClaimSQL, key, ttl).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim %q: %w", key, err)
	}
	g.logger.Debug("claim granted", zap.String("key", key), zap.Duration("ttl", ttl))
	return true, nil
}

package intel

import (
	"context"
	"time"
)

// Adapter fetches raw items from one external source. Implementations
// isolate per-item failures; a returned error means the whole source was
// unreachable for this run.
type Adapter interface {
	Name() string
	Source() Source
	Fetch(ctx context.Context) ([]RawItem, error)
}

// RecordStore persists canonical records idempotently.
type RecordStore interface {
	// BulkUpsert writes records keyed by SourceID. A failing record is
	// logged and skipped; counts are best effort.
	BulkUpsert(ctx context.Context, records []Record) (inserted, matched int, err error)
}

// SubscriptionStore manages user feed subscriptions, unique on (owner, url).
type SubscriptionStore interface {
	Upsert(ctx context.Context, sub Subscription) error
	ListEnabled(ctx context.Context, limit int) ([]Subscription, error)
	SetStatus(ctx context.Context, owner, url string, crawledAt time.Time, status string) error
	SetEnabled(ctx context.Context, owner, url string, enabled bool) error
	Delete(ctx context.Context, owner, url string) error
}

// FeedItemStore persists owner-scoped feed items, unique on (owner, url).
type FeedItemStore interface {
	BulkUpsert(ctx context.Context, items []FeedItem) (inserted, matched int, err error)
}

// Locker is a named cross-process mutex guarding the fetch phase.
// WithLock blocks with bounded retry until the lock is held, runs fn, and
// releases on every exit path.
type Locker interface {
	WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// OnceGuard is a TTL-backed claim used to elect a single process for a
// one-time action across concurrently starting workers.
type OnceGuard interface {
	// TryClaim atomically claims key for ttl. It returns true for exactly
	// one caller until the claim expires.
	TryClaim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Publisher pushes pipeline events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (injectable for testing).
type Clock interface {
	Now() time.Time
}

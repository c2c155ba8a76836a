package postgres

import (
	"context"
	"fmt"
)

// schema is applied at startup when db.ensure_schema is set. Statements
// are idempotent so concurrent workers can race through it safely.
const schema = `
CREATE TABLE IF NOT EXISTS intel_records (
	source_id     TEXT PRIMARY KEY,
	source        TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL DEFAULT '',
	ts            TIMESTAMPTZ NOT NULL,
	min_role      TEXT NOT NULL,
	allowed_roles TEXT[] NOT NULL,
	origin        TEXT NOT NULL DEFAULT '',
	cves          TEXT[],
	severity      JSONB,
	weaknesses    TEXT[],
	refs          TEXT[],
	listing_id    TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS intel_records_ts_idx ON intel_records (ts DESC);
CREATE INDEX IF NOT EXISTS intel_records_roles_ts_idx ON intel_records (allowed_roles, ts);

CREATE TABLE IF NOT EXISTS feed_subscriptions (
	id           BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	owner        TEXT NOT NULL,
	url          TEXT NOT NULL,
	min_role     TEXT NOT NULL DEFAULT 'public',
	enabled      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_crawled TIMESTAMPTZ,
	last_status  TEXT NOT NULL DEFAULT '',
	UNIQUE (owner, url)
);

CREATE TABLE IF NOT EXISTS user_feed_items (
	owner      TEXT NOT NULL,
	url        TEXT NOT NULL,
	feed_url   TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	ts         TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (owner, url)
);

CREATE TABLE IF NOT EXISTS run_once_claims (
	key        TEXT PRIMARY KEY,
	claimed_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the tables the service relies on.
func EnsureSchema(ctx context.Context, db querier) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// lockConn is the slice of a pooled connection the lock needs. Session
// advisory locks are tied to one connection, so the lock pins a
// connection for its whole critical section.
type lockConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Release()
}

// LockOptions bounds acquisition retries.
type LockOptions struct {
	Retry          time.Duration
	MaxRetry       time.Duration
	AcquireTimeout time.Duration
}

// AdvisoryLock is a named cross-process mutex on session advisory
// locks. If the holder's connection dies the server releases the lock,
// so a crashed worker never wedges the fetch phase.
type AdvisoryLock struct {
	acquire func(ctx context.Context) (lockConn, error)
	opts    LockOptions
	logger  *zap.Logger
}

// NewAdvisoryLock builds a lock on the shared pool.
func NewAdvisoryLock(pool *pgxpool.Pool, opts LockOptions, logger *zap.Logger) *AdvisoryLock {
	return &AdvisoryLock{
		acquire: func(ctx context.Context) (lockConn, error) {
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		opts:   opts,
		logger: logger.Named("advisory_lock"),
	}
}

// WithLock blocks with bounded backoff until the named lock is held,
// runs fn, and releases on every exit path.
func (l *AdvisoryLock) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if l.opts.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.AcquireTimeout)
		defer cancel()
	}

	retry := l.opts.Retry
	if retry <= 0 {
		retry = 250 * time.Millisecond
	}
	maxRetry := l.opts.MaxRetry
	if maxRetry < retry {
		maxRetry = retry
	}

	for {
		conn, err := l.acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire lock connection: %w", err)
		}

		var locked bool
		err = conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtextextended($1, 0))`, name).Scan(&locked)
		if err != nil {
			conn.Release()
			return fmt.Errorf("try advisory lock %q: %w", name, err)
		}
		if locked {
			return l.runLocked(ctx, conn, name, fn)
		}
		conn.Release()

		l.logger.Debug("lock busy, retrying", zap.String("name", name), zap.Duration("wait", retry))
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for lock %q: %w", name, ctx.Err())
		case <-time.After(retry):
		}
		retry *= 2
		if retry > maxRetry {
			retry = maxRetry
		}
	}
}

func (l *AdvisoryLock) runLocked(ctx context.Context, conn lockConn, name string, fn func(ctx context.Context) error) error {
	defer func() {
		// Unlock on a background context so cancellation of the guarded
		// work cannot leak the lock for the connection's lifetime.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, name); err != nil {
			l.logger.Warn("advisory unlock failed", zap.String("name", name), zap.Error(err))
		}
		conn.Release()
	}()
	return fn(ctx)
}

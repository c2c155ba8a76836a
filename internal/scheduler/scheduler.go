// Package scheduler triggers periodic fetch runs and the one-shot
// startup kickoff.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ctisec/ctihub/internal/intel"
)

// kickoffKey elects a single worker to run the initial fetch when a
// fleet starts at once.
const kickoffKey = "ctihub:kickoff"

// RunFunc is the work executed on every tick.
type RunFunc func(ctx context.Context) (intel.FetchReport, error)

// Scheduler drives fetch runs on a fixed interval.
type Scheduler struct {
	interval   time.Duration
	kickoffTTL time.Duration
	guard      intel.OnceGuard
	run        RunFunc
	logger     *zap.Logger
}

// New builds a Scheduler.
func New(interval, kickoffTTL time.Duration, guard intel.OnceGuard, run RunFunc, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		interval:   interval,
		kickoffTTL: kickoffTTL,
		guard:      guard,
		run:        run,
		logger:     logger.Named("scheduler"),
	}
}

// Run blocks until ctx is canceled. One worker across the fleet performs
// an immediate kickoff run; everyone then ticks on the interval, with
// the fetch lock serializing actual work.
func (s *Scheduler) Run(ctx context.Context) error {
	claimed, err := s.guard.TryClaim(ctx, kickoffKey, s.kickoffTTL)
	if err != nil {
		s.logger.Warn("kickoff claim failed", zap.Error(err))
	} else if claimed {
		s.logger.Info("kickoff claim granted, running initial fetch")
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	report, err := s.run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("scheduled fetch failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled fetch finished", zap.Int("new", report.New), zap.Int("total", report.Total))
}

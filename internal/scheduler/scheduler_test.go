package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/ctisec/ctihub/internal/intel"
)

type stubGuard struct {
	grant  bool
	keys   []string
	ttls   []time.Duration
	called atomic.Int32
}

func (g *stubGuard) TryClaim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.called.Add(1)
	g.keys = append(g.keys, key)
	g.ttls = append(g.ttls, ttl)
	return g.grant, nil
}

func TestSchedulerKickoffWhenClaimed(t *testing.T) {
	var runs atomic.Int32
	run := func(context.Context) (intel.FetchReport, error) {
		runs.Add(1)
		return intel.FetchReport{}, nil
	}
	guard := &stubGuard{grant: true}
	s := New(time.Hour, 5*time.Minute, guard, run, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, []string{"ctihub:kickoff"}, guard.keys)
	assert.Equal(t, []time.Duration{5 * time.Minute}, guard.ttls)
}

func TestSchedulerSkipsKickoffWhenNotClaimed(t *testing.T) {
	var runs atomic.Int32
	run := func(context.Context) (intel.FetchReport, error) {
		runs.Add(1)
		return intel.FetchReport{}, nil
	}
	s := New(time.Hour, 5*time.Minute, &stubGuard{grant: false}, run, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)
	assert.Equal(t, int32(0), runs.Load())
}

func TestSchedulerTicks(t *testing.T) {
	var runs atomic.Int32
	run := func(context.Context) (intel.FetchReport, error) {
		runs.Add(1)
		return intel.FetchReport{}, nil
	}
	s := New(10*time.Millisecond, time.Minute, &stubGuard{grant: false}, run, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)
	assert.GreaterOrEqual(t, runs.Load(), int32(2))
}

package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ctisec/ctihub/internal/intel"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func waitFor(t *testing.T, m *Manager, id string, want Status) *Task {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("task %s never reached status %s", id, want)
		case <-time.After(5 * time.Millisecond):
		}
		if task, ok := m.Get(id); ok && task.Status == want {
			return task
		}
	}
}

func newManager(runs map[string]RunFunc) *Manager {
	clock := fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewManager(runs, clock, 0, zap.NewNop())
}

func TestTaskLifecycle(t *testing.T) {
	m := newManager(map[string]RunFunc{
		OpFetchAndRecommend: func(context.Context) (intel.FetchReport, error) {
			return intel.FetchReport{New: 4, Total: 10}, nil
		},
	})

	task, err := m.Start(OpFetchAndRecommend)
	require.NoError(t, err)
	require.NotEmpty(t, task.ID)
	assert.Equal(t, OpFetchAndRecommend, task.Op)

	done := waitFor(t, m, task.ID, StatusDone)
	require.NotNil(t, done.Report)
	assert.Equal(t, 4, done.Report.New)
	assert.Equal(t, 10, done.Report.Total)
	require.NotNil(t, done.FinishedAt)
}

func TestTaskFailure(t *testing.T) {
	m := newManager(map[string]RunFunc{
		OpFetchAll: func(context.Context) (intel.FetchReport, error) {
			return intel.FetchReport{}, errors.New("lock wait aborted")
		},
	})

	task, err := m.Start(OpFetchAll)
	require.NoError(t, err)
	failed := waitFor(t, m, task.ID, StatusError)
	assert.Equal(t, "lock wait aborted", failed.Error)
	assert.Nil(t, failed.Report)
}

func TestTaskUnknownOp(t *testing.T) {
	m := newManager(map[string]RunFunc{})
	_, err := m.Start("reticulate_splines")
	assert.ErrorIs(t, err, ErrUnknownOp)
}

func TestTaskUnknownID(t *testing.T) {
	m := newManager(map[string]RunFunc{})
	_, ok := m.Get("no-such-task")
	assert.False(t, ok)
}

func TestTaskSnapshotIsolation(t *testing.T) {
	block := make(chan struct{})
	m := newManager(map[string]RunFunc{
		OpFetchAll: func(context.Context) (intel.FetchReport, error) {
			<-block
			return intel.FetchReport{New: 1}, nil
		},
	})

	task, err := m.Start(OpFetchAll)
	require.NoError(t, err)

	snap, ok := m.Get(task.ID)
	require.True(t, ok)
	snap.Status = StatusDone

	current, _ := m.Get(task.ID)
	assert.NotEqual(t, StatusDone, current.Status)

	close(block)
	waitFor(t, m, task.ID, StatusDone)
}

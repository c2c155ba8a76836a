// Package tasks tracks asynchronous fetch runs triggered over the API.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ctisec/ctihub/internal/intel"
)

// Status is the lifecycle state of one task.
type Status string

// Task lifecycle states.
const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Named operations the service registers.
const (
	OpFetchAll          = "fetch_all"
	OpFetchAndRecommend = "fetch_and_recommend"
)

// Task is one asynchronous fetch run.
type Task struct {
	ID         string             `json:"id"`
	Op         string             `json:"op"`
	Status     Status             `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Report     *intel.FetchReport `json:"report,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// RunFunc performs the actual work of a task.
type RunFunc func(ctx context.Context) (intel.FetchReport, error)

// ErrUnknownOp is returned when no operation is registered for a name.
var ErrUnknownOp = errors.New("tasks: unknown operation")

// Manager spawns named operations and keeps their state in memory. State
// does not survive restarts; callers polling a lost id get not-found and
// retry.
type Manager struct {
	mu      sync.RWMutex
	tasks   map[string]*Task
	runs    map[string]RunFunc
	clock   intel.Clock
	timeout time.Duration
	logger  *zap.Logger
}

// NewManager builds a Manager over the named operations. timeout bounds
// each task's execution, zero meaning no limit.
func NewManager(runs map[string]RunFunc, clock intel.Clock, timeout time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		tasks:   make(map[string]*Task),
		runs:    runs,
		clock:   clock,
		timeout: timeout,
		logger:  logger.Named("tasks"),
	}
}

// Start registers a new task for op and launches it in the background.
// The task runs detached from the caller's request context.
func (m *Manager) Start(op string) (*Task, error) {
	run, ok := m.runs[op]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, op)
	}
	task := &Task{
		ID:        uuid.NewString(),
		Op:        op,
		Status:    StatusPending,
		CreatedAt: m.clock.Now(),
	}
	m.mu.Lock()
	m.tasks[task.ID] = task
	m.mu.Unlock()

	go m.execute(task.ID, run)
	return m.snapshot(task.ID), nil
}

// Get returns a copy of the task, false when the id is unknown.
func (m *Manager) Get(id string) (*Task, bool) {
	t := m.snapshot(id)
	return t, t != nil
}

func (m *Manager) execute(id string, run RunFunc) {
	ctx := context.Background()
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	m.update(id, func(t *Task) { t.Status = StatusRunning })

	report, err := run(ctx)
	finished := m.clock.Now()
	if err != nil {
		m.logger.Warn("task failed", zap.String("task_id", id), zap.Error(err))
		m.update(id, func(t *Task) {
			t.Status = StatusError
			t.Error = err.Error()
			t.FinishedAt = &finished
		})
		return
	}
	m.update(id, func(t *Task) {
		t.Status = StatusDone
		t.Report = &report
		t.FinishedAt = &finished
	})
}

func (m *Manager) update(id string, fn func(t *Task)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok {
		fn(t)
	}
}

func (m *Manager) snapshot(id string) *Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

package scheduler

import (
	"context"
	"sync"
)

// Executor runs posted tasks one at a time on a single goroutine.
// The scheduler posts its flush task here.
type Executor interface {
	Post(task func())
}

// Loop is a goroutine-backed executor. Post is safe from any goroutine,
// including from inside a running task; Run must be called from exactly one
// goroutine.
type Loop struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{} // buffered, size 1; coalesces wakeups
}

// NewLoop creates an idle loop.
func NewLoop() *Loop {
	return &Loop{
		tasks:  make([]func(), 0, 8),
		signal: make(chan struct{}, 1),
	}
}

// Post queues a task. Tasks posted after Stop are dropped.
func (l *Loop) Post(task func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.tasks = append(l.tasks, task)

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *Loop) take() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.tasks) == 0 {
		return nil, false
	}
	task := l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	return task, true
}

// Run executes tasks until ctx is cancelled or Stop is called.
// Tasks already queued when Stop is called still run.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if task, ok := l.take(); ok {
			task()
			continue
		}

		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.signal:
			l.mu.Lock()
			done := l.closed && len(l.tasks) == 0
			l.mu.Unlock()
			if done {
				return nil
			}
		}
	}
}

// Stop makes Run return once the queued tasks are done.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	close(l.signal)
}

// ManualExecutor holds posted tasks until RunPending is called.
// It gives tests and the scenario harness full control over when flushes
// happen.
type ManualExecutor struct {
	mu    sync.Mutex
	tasks []func()
}

// NewManualExecutor creates an empty manual executor.
func NewManualExecutor() *ManualExecutor {
	return &ManualExecutor{}
}

// Post queues a task.
func (m *ManualExecutor) Post(task func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
}

// Pending returns the number of queued tasks.
func (m *ManualExecutor) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// RunPending runs queued tasks, including tasks they post, until none are
// left. It returns the number of tasks run.
func (m *ManualExecutor) RunPending() int {
	n := 0
	for {
		m.mu.Lock()
		if len(m.tasks) == 0 {
			m.mu.Unlock()
			return n
		}
		task := m.tasks[0]
		m.tasks = m.tasks[1:]
		m.mu.Unlock()

		task()
		n++
	}
}

package uiloop

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic scheduler for tests. Nothing runs until the test
// asks: Flush runs queued functions, RunTasks runs pending Go functions, and
// Advance moves a virtual clock and fires due timers.
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	queue  []func()
	tasks  []func(context.Context)
	timers []*manualTimer
	seq    int
}

type manualTimer struct {
	at        time.Duration
	seq       int
	fn        func()
	cancelled bool
}

// NewManual creates a Manual scheduler at virtual time zero.
func NewManual() *Manual {
	return &Manual{}
}

// Post queues fn.
func (m *Manual) Post(fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, fn)
	return true
}

// AfterFunc schedules fn at now+d on the virtual clock.
func (m *Manual) AfterFunc(d time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{at: m.now + d, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		t.cancelled = true
	}
}

// Go records fn. It runs on the next RunTasks.
func (m *Manual) Go(fn func(context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, fn)
}

// Flush runs queued functions, including ones they post, until the queue is
// empty.
func (m *Manual) Flush() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		fn := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		fn()
	}
}

// RunTasks runs every pending Go function synchronously, then flushes.
func (m *Manual) RunTasks() {
	m.mu.Lock()
	tasks := m.tasks
	m.tasks = nil
	m.mu.Unlock()

	for _, fn := range tasks {
		fn(context.Background())
	}
	m.Flush()
}

// PendingTasks returns the number of Go functions not yet run.
func (m *Manual) PendingTasks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Advance moves the virtual clock by d, posts every timer that came due in
// deadline order, and flushes.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += d
	var due, rest []*manualTimer
	for _, t := range m.timers {
		if t.at <= m.now {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	m.timers = rest
	sort.Slice(due, func(i, j int) bool {
		if due[i].at != due[j].at {
			return due[i].at < due[j].at
		}
		return due[i].seq < due[j].seq
	})
	for _, t := range due {
		t := t
		m.queue = append(m.queue, func() {
			m.mu.Lock()
			cancelled := t.cancelled
			m.mu.Unlock()
			if !cancelled {
				t.fn()
			}
		})
	}
	m.mu.Unlock()
	m.Flush()
}

// ActiveTimers returns the number of timers neither fired nor cancelled.
func (m *Manual) ActiveTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Call runs fn immediately. The test goroutine stands in for the loop.
func (m *Manual) Call(_ context.Context, fn func()) error {
	fn()
	return nil
}

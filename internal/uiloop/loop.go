// Package uiloop provides the single logical UI thread.
//
// Host events, user gestures, and overlay transitions all run as functions
// posted to one Loop and execute serially in arrival order. Blocking work
// (provider calls) runs on goroutines started with Go and marshals its result
// back with Post before touching any UI state.
package uiloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by Run when the loop was stopped before it started.
var ErrStopped = errors.New("uiloop: stopped")

// Loop serializes posted functions onto one goroutine.
type Loop struct {
	logger *slog.Logger

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped bool
	running bool

	taskCtx    context.Context
	taskCancel context.CancelFunc
	tasks      sync.WaitGroup
}

// New creates a loop. It does nothing until Run is called.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		logger:     logger.With("component", "uiloop"),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		taskCtx:    ctx,
		taskCancel: cancel,
	}
}

// Post queues fn to run on the loop. It never blocks and may be called from
// any goroutine, including the loop itself. It returns false once the loop
// has stopped.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// AfterFunc posts fn to the loop once d has elapsed. Calling the returned
// cancel function from the loop guarantees fn does not run, even if the
// timer already fired and fn is waiting in the queue.
func (l *Loop) AfterFunc(d time.Duration, fn func()) (cancel func()) {
	var cancelled atomic.Bool
	timer := time.AfterFunc(d, func() {
		l.Post(func() {
			if !cancelled.Load() {
				fn()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		timer.Stop()
	}
}

// Go runs fn on its own goroutine. ctx is cancelled when the loop stops.
func (l *Loop) Go(fn func(ctx context.Context)) {
	l.tasks.Add(1)
	go func() {
		defer l.tasks.Done()
		fn(l.taskCtx)
	}()
}

// Run processes posted functions until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrStopped
	}
	if l.running {
		l.mu.Unlock()
		return errors.New("uiloop: already running")
	}
	l.running = true
	l.mu.Unlock()

	l.logger.Debug("loop started")
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.done:
			l.logger.Debug("loop stopped")
			return nil
		case <-l.wake:
			l.drain()
		}
	}
}

// Stop ends Run and cancels the context passed to Go functions. Functions
// still queued are dropped.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.queue = nil
	l.mu.Unlock()

	l.taskCancel()
	close(l.done)
}

// Wait blocks until every goroutine started with Go has returned or the
// timeout elapses.
func (l *Loop) Wait(timeout time.Duration) error {
	ch := make(chan struct{})
	go func() {
		l.tasks.Wait()
		close(ch)
	}()
	select {
	case <-ch:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("uiloop: tasks still running after %s", timeout)
	}
}

// Call runs fn on the loop and waits for it to finish. It must not be called
// from the loop goroutine.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	ch := make(chan struct{})
	if !l.Post(func() {
		defer close(ch)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-ch:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 || l.stopped {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.run(fn)
	}
}

// run executes one function. A panicking handler is logged and the loop
// keeps going.
func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("posted function panicked", "panic", r)
		}
	}()
	fn()
}

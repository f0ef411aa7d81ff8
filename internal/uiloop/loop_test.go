package uiloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New(nil)
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(context.Background()) }()
	t.Cleanup(func() {
		l.Stop()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("loop did not stop")
		}
	})
	return l
}

func TestPostRunsInOrder(t *testing.T) {
	l := startLoop(t)

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Call(context.Background(), func() {}))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestPostFromLoopDoesNotDeadlock(t *testing.T) {
	l := startLoop(t)

	done := make(chan struct{})
	l.Post(func() {
		l.Post(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("nested post never ran")
	}
}

func TestPostAfterStop(t *testing.T) {
	l := New(nil)
	l.Stop()
	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Run(context.Background()), ErrStopped)
}

func TestAfterFuncFires(t *testing.T) {
	l := startLoop(t)

	fired := make(chan struct{})
	l.AfterFunc(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestAfterFuncCancelSuppressesQueuedCallback(t *testing.T) {
	l := startLoop(t)

	var mu sync.Mutex
	fired := false
	ready := make(chan struct{})
	var cancel func()

	// Hold the loop until the timer's callback has queued up behind us, then
	// cancel from the loop.
	l.Post(func() {
		<-ready
		time.Sleep(20 * time.Millisecond)
		cancel()
	})
	cancel = l.AfterFunc(time.Millisecond, func() {
		mu.Lock()
		fired = true
		mu.Unlock()
	})
	close(ready)

	time.Sleep(40 * time.Millisecond)
	require.NoError(t, l.Call(context.Background(), func() {}))

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, fired)
}

func TestGoContextCancelledOnStop(t *testing.T) {
	l := New(nil)
	go func() { _ = l.Run(context.Background()) }()

	started := make(chan struct{})
	l.Go(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started

	l.Stop()
	assert.NoError(t, l.Wait(2*time.Second))
}

func TestRunReturnsOnContextCancel(t *testing.T) {
	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return")
	}
	assert.False(t, l.Post(func() {}))
}

func TestPanicDoesNotKillLoop(t *testing.T) {
	l := startLoop(t)

	l.Post(func() { panic("boom") })
	ran := false
	require.NoError(t, l.Call(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestManualScheduler(t *testing.T) {
	m := NewManual()
	var got []string

	m.Post(func() { got = append(got, "a") })
	cancel := m.AfterFunc(time.Second, func() { got = append(got, "late") })
	m.AfterFunc(500*time.Millisecond, func() { got = append(got, "timer") })
	m.Go(func(context.Context) { m.Post(func() { got = append(got, "task") }) })

	m.Flush()
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 1, m.PendingTasks())

	m.RunTasks()
	assert.Equal(t, []string{"a", "task"}, got)

	m.Advance(500 * time.Millisecond)
	assert.Equal(t, []string{"a", "task", "timer"}, got)

	cancel()
	m.Advance(time.Second)
	assert.Equal(t, []string{"a", "task", "timer"}, got)
	assert.Equal(t, 0, m.ActiveTimers())
}

// Package health runs the diagnostic checks behind `textassistctl doctor`.
//
// Each check is independent and bounded by its own timeout. Checks run
// concurrently; results come back in registration order so output is stable.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status is the outcome of one check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Result is what a check reports.
type Result struct {
	Name     string
	Status   Status
	Message  string
	Critical bool
	Duration time.Duration
}

// Check inspects one component.
type Check func(ctx context.Context) Result

// Healthy is a helper for checks that pass.
func Healthy(format string, args ...any) Result {
	return Result{Status: StatusHealthy, Message: fmt.Sprintf(format, args...)}
}

// Degraded is a helper for checks that found a non-fatal problem.
func Degraded(format string, args ...any) Result {
	return Result{Status: StatusDegraded, Message: fmt.Sprintf(format, args...)}
}

// Unhealthy is a helper for checks that failed.
func Unhealthy(format string, args ...any) Result {
	return Result{Status: StatusUnhealthy, Message: fmt.Sprintf(format, args...)}
}

type component struct {
	name     string
	critical bool
	check    Check
}

// Checker holds the registered checks.
type Checker struct {
	timeout    time.Duration
	components []component
}

// NewChecker creates a checker whose checks time out after timeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{timeout: timeout}
}

// Register adds a check. A critical check failing makes the overall status
// unhealthy; a non-critical one only degrades it.
func (c *Checker) Register(name string, critical bool, check Check) {
	c.components = append(c.components, component{name: name, critical: critical, check: check})
}

// Run executes every check and returns results in registration order.
func (c *Checker) Run(ctx context.Context) []Result {
	results := make([]Result, len(c.components))
	var wg sync.WaitGroup
	for i, comp := range c.components {
		wg.Add(1)
		go func(i int, comp component) {
			defer wg.Done()
			results[i] = c.run(ctx, comp)
		}(i, comp)
	}
	wg.Wait()
	return results
}

func (c *Checker) run(ctx context.Context, comp component) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Unhealthy("check panicked: %v", r)
			}
		}()
		done <- comp.check(ctx)
	}()

	var res Result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = Unhealthy("check timed out: %v", ctx.Err())
	}
	res.Name = comp.name
	res.Critical = comp.critical
	res.Duration = time.Since(start)
	return res
}

// Overall aggregates results.
func Overall(results []Result) Status {
	status := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			if r.Critical {
				return StatusUnhealthy
			}
			status = StatusDegraded
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

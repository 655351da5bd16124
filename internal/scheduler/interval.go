// Package scheduler runs tasks on fixed intervals.
package scheduler

import (
	"context"
	"time"

	"unitrader/internal/logger"
)

// Task is one scheduled unit of work. Errors are logged, never fatal: a bad
// pass must not stop the loop.
type Task func(ctx context.Context) error

// Runner fires a task immediately and then on every interval tick until the
// context is cancelled.
type Runner struct {
	name     string
	interval time.Duration
	task     Task
}

func NewRunner(name string, interval time.Duration, task Task) *Runner {
	return &Runner{name: name, interval: interval, task: task}
}

func (r *Runner) Run(ctx context.Context) error {
	logger.Infof("scheduler: %s running every %s", r.name, r.interval)
	r.fire(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("scheduler: %s stopped", r.name)
			return ctx.Err()
		case <-ticker.C:
			r.fire(ctx)
		}
	}
}

func (r *Runner) fire(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorf("scheduler: %s panicked: %v", r.name, rec)
		}
	}()
	if err := r.task(ctx); err != nil {
		logger.Errorf("scheduler: %s failed: %v", r.name, err)
	}
}

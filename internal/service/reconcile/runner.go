// Package reconcile runs periodic jobs that settle transfers waiting on an
// external condition, or time them out.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

type Runner struct {
	jobs   []Job
	logger *slog.Logger
}

func NewRunner(logger *slog.Logger, jobs ...Job) *Runner {
	return &Runner{jobs: jobs, logger: logger}
}

// Start runs every job on its own ticker and blocks until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range r.jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.loop(ctx, job)
		}()
	}
	wg.Wait()
}

func (r *Runner) loop(ctx context.Context, job Job) {
	log := r.logger.With("job", job.Name())
	log.Info("reconciliation job started", "interval", job.Interval())

	ticker := time.NewTicker(job.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("reconciliation job stopped")
			return
		case <-ticker.C:
			start := time.Now()
			if err := job.Run(ctx); err != nil {
				log.Error("reconciliation run failed", "error", err)
				continue
			}
			log.Debug("reconciliation run finished", "duration_ms", time.Since(start).Milliseconds())
		}
	}
}

package scheduler

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"
)

// Job is a named unit of scheduled work. A job never runs twice
// concurrently: ticks arriving while a run is in flight are dropped, so
// a backlog of missed ticks coalesces into the single next run. The
// alert evaluator's per-device read-modify-write depends on this.
type Job struct {
	name    string
	run     func(ctx context.Context) error
	logger  *log.Logger
	running atomic.Bool
}

// NewJob constructs a job.
func NewJob(name string, run func(ctx context.Context) error, logger *log.Logger) (*Job, error) {
	if name == "" {
		return nil, errors.New("scheduler: empty job name")
	}
	if run == nil {
		return nil, errors.New("scheduler: nil job func")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Job{name: name, run: run, logger: logger}, nil
}

// Invoke runs the job unless a previous invocation is still in flight.
// It reports whether the job actually ran.
func (j *Job) Invoke(ctx context.Context) bool {
	if j == nil {
		return false
	}
	if !j.running.CompareAndSwap(false, true) {
		j.logger.Printf("scheduler: %s still running, tick skipped", j.name)
		return false
	}
	defer j.running.Store(false)
	if err := j.run(ctx); err != nil {
		j.logger.Printf("scheduler: %s failed: %v", j.name, err)
	}
	return true
}

// RunEvery invokes the job on a fixed interval until ctx is done. The
// first invocation happens after one interval, not immediately.
func RunEvery(ctx context.Context, interval time.Duration, job *Job) {
	if job == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job.Invoke(ctx)
		}
	}
}

// RunHourly invokes the job shortly after every top of the hour until
// ctx is done. The small offset keeps the previous hour's last readings
// out of a race with the aggregation window.
func RunHourly(ctx context.Context, job *Job) {
	runAtBoundaries(ctx, job, time.Hour, 5*time.Second, time.Now)
}

func runAtBoundaries(ctx context.Context, job *Job, period, offset time.Duration, now func() time.Time) {
	if job == nil || period <= 0 {
		return
	}
	for {
		current := now().UTC()
		next := current.Truncate(period).Add(period).Add(offset)
		timer := time.NewTimer(next.Sub(current))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			job.Invoke(ctx)
		}
	}
}

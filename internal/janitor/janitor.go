// Package janitor runs periodic housekeeping jobs on a cron schedule.
package janitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/printflow/portal/internal/logging"
)

// Job removes stale entries and returns how many it removed.
type Job struct {
	Name string
	Run  func() int
}

// Recorder receives per-run results. *metrics.Metrics satisfies it.
type Recorder interface {
	RecordJanitorRun(job string, removed int)
}

// Janitor schedules a fixed set of jobs.
type Janitor struct {
	cron     *cron.Cron
	jobs     []Job
	logger   *logging.Logger
	recorder Recorder

	mu      sync.Mutex
	started bool
}

// New creates a janitor that runs every job on spec, e.g. "@every 5m".
func New(spec string, logger *logging.Logger, recorder Recorder, jobs ...Job) (*Janitor, error) {
	if logger == nil {
		logger = logging.NewDiscard()
	}
	j := &Janitor{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		jobs:     jobs,
		logger:   logger,
		recorder: recorder,
	}
	if _, err := j.cron.AddFunc(spec, j.RunOnce); err != nil {
		return nil, fmt.Errorf("janitor schedule %q: %w", spec, err)
	}
	return j, nil
}

// RunOnce runs every job immediately.
func (j *Janitor) RunOnce() {
	for _, job := range j.jobs {
		removed := j.run(job)
		if j.recorder != nil {
			j.recorder.RecordJanitorRun(job.Name, removed)
		}
		if removed > 0 {
			j.logger.WithContext(context.Background()).
				WithField("job", job.Name).
				WithField("removed", removed).
				Info("Janitor removed stale entries")
		}
	}
}

func (j *Janitor) run(job Job) (removed int) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.WithContext(context.Background()).
				WithField("job", job.Name).
				WithField("panic", r).
				Error("Janitor job panicked")
			removed = 0
		}
	}()
	return job.Run()
}

// Start begins the schedule. It is a no-op when already started.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	j.started = true
	j.cron.Start()
}

// Stop halts the schedule and waits for a running pass to finish or ctx to
// expire.
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.started {
		j.mu.Unlock()
		return nil
	}
	j.started = false
	j.mu.Unlock()

	select {
	case <-j.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"lastsold-monitor/utils"
)

// Job is a unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on cron schedules. A run that is still going when its
// next tick fires is skipped rather than overlapped.
type Scheduler struct {
	cron   *cron.Cron
	logger *utils.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler whose specs carry a leading seconds field.
func New(logger *utils.Logger) *Scheduler {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	cronLog := cron.PrintfLogger(logger)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob registers job under schedule. Examples:
//   - "@every 60s"
//   - "0 0 * * * *" (top of every hour)
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.run(job)
	})
	if err != nil {
		return fmt.Errorf("scheduler: add %s (%q): %w", job.Name(), schedule, err)
	}
	s.logger.Info("[scheduler] Registered %s on %q", job.Name(), schedule)
	return nil
}

func (s *Scheduler) run(job Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	s.logger.Debug("[scheduler] Running %s", job.Name())
	if err := job.Run(ctx); err != nil {
		s.logger.Error("[scheduler] %s failed: %v", job.Name(), err)
		return
	}
	s.logger.Debug("[scheduler] %s completed", job.Name())
}

// Start begins firing scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("[scheduler] Started")
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, job Job) error {
	s.logger.Info("[scheduler] Running %s immediately", job.Name())
	return job.Run(ctx)
}

// Stop prevents new runs and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.logger.Info("[scheduler] Stopped")
}

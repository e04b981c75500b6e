package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lastsold-monitor/models"
	"lastsold-monitor/services"
	"lastsold-monitor/utils"
)

// CycleRunner runs one fetch/diff/notify cycle against a single target.
type CycleRunner interface {
	RunCycle(ctx context.Context, cycle models.Cycle, target string) (*services.CycleResult, error)
}

// PollerConfig bounds how hard the monitored site is hit per cycle.
type PollerConfig struct {
	MaxConcurrency int
	RateLimitMs    int
}

// PollSummary is the outcome of one polling cycle over every target.
type PollSummary struct {
	Cycle    models.Cycle
	Results  []*services.CycleResult
	Failures map[string]error
	Skipped  int
}

// NewSales counts records that passed dedup and filters across all targets.
func (s *PollSummary) NewSales() int {
	n := 0
	for _, r := range s.Results {
		n += len(r.NewRecords)
	}
	return n
}

// Poller runs a cycle for every target. A failing target is logged and
// never stops the others.
type Poller struct {
	runner  CycleRunner
	targets []string
	cfg     PollerConfig
	logger  *utils.Logger
	cycles  atomic.Int64
}

func NewPoller(runner CycleRunner, targets []string, cfg PollerConfig, logger *utils.Logger) *Poller {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	return &Poller{
		runner:  runner,
		targets: append([]string(nil), targets...),
		cfg:     cfg,
		logger:  logger,
	}
}

func (p *Poller) Name() string { return "poll-last-sold" }

// Run satisfies Job; per-target failures are joined into the returned error.
func (p *Poller) Run(ctx context.Context) error {
	summary := p.RunOnce(ctx)
	if len(summary.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(summary.Failures))
	for _, target := range p.targets {
		if err, ok := summary.Failures[target]; ok {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunOnce polls every target once. Each target's capture time is taken when
// its job starts, so rate-limit delays do not skew relative sale dates.
// Cancelling ctx stops targets that have not started yet; a started cycle
// runs to completion, bounded by its own fetch timeout.
func (p *Poller) RunOnce(ctx context.Context) *PollSummary {
	start := time.Now()
	cycle := models.Cycle{
		ID:        uuid.NewString(),
		Number:    int(p.cycles.Add(1)),
		StartedAt: start.UTC(),
	}
	summary := &PollSummary{Cycle: cycle, Failures: make(map[string]error)}
	log := p.logger.With("cycle", cycle.ID)
	log.Info("[poller] Cycle %d starting: %d targets", cycle.Number, len(p.targets))

	var mu sync.Mutex
	pool := utils.NewWorkerPool(p.cfg.MaxConcurrency, p.cfg.RateLimitMs)

	for _, target := range p.targets {
		target := target
		pool.Submit(func() {
			if ctx.Err() != nil {
				mu.Lock()
				summary.Skipped++
				mu.Unlock()
				return
			}

			c := cycle
			c.StartedAt = time.Now().UTC()
			res, err := p.runner.RunCycle(context.WithoutCancel(ctx), c, target)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failures[target] = err
				var cycleErr *services.CycleError
				if errors.As(err, &cycleErr) {
					log.Error("[poller] %s failed (%s): %v", target, cycleErr.Kind, cycleErr.Err)
				} else {
					log.Error("[poller] %s failed: %v", target, err)
				}
			}
			if res != nil {
				summary.Results = append(summary.Results, res)
			}
		})
	}
	pool.Wait()

	log.Info("[poller] Cycle %d done in %s: %d new sales, %d failed, %d skipped",
		cycle.Number, utils.Elapsed(start), summary.NewSales(), len(summary.Failures), summary.Skipped)
	return summary
}

// Targets returns the monitored URLs in configured order.
func (p *Poller) Targets() []string {
	return append([]string(nil), p.targets...)
}

func (s *PollSummary) String() string {
	return fmt.Sprintf("cycle %d: %d results, %d new, %d failed", s.Cycle.Number, len(s.Results), s.NewSales(), len(s.Failures))
}

package app

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowdeckio/api/internal/metrics"
	"github.com/flowdeckio/api/pkg/domain/execution"
	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/domain/workflow"
	"github.com/flowdeckio/api/pkg/logger"
)

// cronParser accepts standard 5-field expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCronExpression checks that a schedule expression parses.
func ValidateCronExpression(expr string) error {
	_, err := cronParser.Parse(expr)
	return err
}

// ExecutionScheduler periodically triggers workflows whose cron
// schedule is due.
type ExecutionScheduler struct {
	workflows workflow.Repository
	executor  *ExecutionService
	logger    *logger.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	nextRun map[shared.ID]time.Time
}

// ExecutionSchedulerConfig holds configuration for the scheduler.
type ExecutionSchedulerConfig struct {
	// CheckInterval is how often to look for due workflows (default: 1 minute)
	CheckInterval time.Duration
}

// NewExecutionScheduler creates a new ExecutionScheduler.
func NewExecutionScheduler(
	workflows workflow.Repository,
	executor *ExecutionService,
	cfg ExecutionSchedulerConfig,
	log *logger.Logger,
) *ExecutionScheduler {
	interval := cfg.CheckInterval
	if interval == 0 {
		interval = time.Minute
	}

	return &ExecutionScheduler{
		workflows: workflows,
		executor:  executor,
		logger:    log.With("component", "execution_scheduler"),
		interval:  interval,
		stopCh:    make(chan struct{}),
		nextRun:   make(map[shared.ID]time.Time),
	}
}

// Start starts the scheduler loop.
func (s *ExecutionScheduler) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("execution scheduler started", "interval", s.interval)
}

// Stop stops the scheduler gracefully.
func (s *ExecutionScheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("execution scheduler stopped")
}

func (s *ExecutionScheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.checkAndTrigger()

	for {
		select {
		case <-ticker.C:
			s.checkAndTrigger()
		case <-s.stopCh:
			return
		}
	}
}

func (s *ExecutionScheduler) checkAndTrigger() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	scheduled, err := s.workflows.ListScheduled(ctx)
	if err != nil {
		s.logger.Error("failed to list scheduled workflows", "error", err)
		return
	}

	now := time.Now()
	for _, wf := range scheduled {
		if !s.due(wf, now) {
			continue
		}
		s.trigger(wf)
	}

	s.prune(scheduled)
}

// due reports whether the workflow should fire now and advances its
// next-run marker. A workflow seen for the first time is armed for its
// next cron occurrence rather than fired immediately.
func (s *ExecutionScheduler) due(wf *workflow.Workflow, now time.Time) bool {
	schedule, err := cronParser.Parse(wf.Schedule)
	if err != nil {
		s.logger.Warn("invalid schedule expression, skipping",
			"workflow_id", wf.ID, "schedule", wf.Schedule)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, seen := s.nextRun[wf.ID]
	if !seen {
		s.nextRun[wf.ID] = schedule.Next(now)
		return false
	}
	if now.Before(next) {
		return false
	}
	s.nextRun[wf.ID] = schedule.Next(now)
	return true
}

func (s *ExecutionScheduler) trigger(wf *workflow.Workflow) {
	// Runs against the engine can be slow; detach from the scan cycle.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		_, err := s.executor.Execute(ctx, ExecuteRequest{
			WorkflowID: wf.ID,
			UserID:     wf.UserID,
			Trigger:    execution.TriggerSchedule,
		})
		switch {
		case err == nil:
			metrics.ScheduledRunsTotal.WithLabelValues("completed").Inc()
		case shared.IsAlreadyRunning(err):
			// The previous run is still going; the next tick retries.
			metrics.ScheduledRunsTotal.WithLabelValues("skipped").Inc()
			s.logger.Info("scheduled run skipped, workflow busy", "workflow_id", wf.ID)
		default:
			metrics.ScheduledRunsTotal.WithLabelValues("failed").Inc()
			s.logger.Error("scheduled run failed", "workflow_id", wf.ID, "error", err)
		}
	}()
}

// prune drops next-run markers for workflows that lost their schedule.
func (s *ExecutionScheduler) prune(current []*workflow.Workflow) {
	alive := make(map[shared.ID]struct{}, len(current))
	for _, wf := range current {
		alive[wf.ID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.nextRun {
		if _, ok := alive[id]; !ok {
			delete(s.nextRun, id)
		}
	}
}

package jobs

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/flowdeckio/api/pkg/logger"
)

// Periodic enqueues recurring maintenance tasks on a fixed interval.
type Periodic struct {
	scheduler *asynq.Scheduler
	logger    *logger.Logger
}

// NewPeriodic creates the periodic task scheduler. The stale-document
// recovery sweep runs every recoveryEvery.
func NewPeriodic(cfg ClientConfig, recoveryEvery time.Duration, log *logger.Logger) (*Periodic, error) {
	if recoveryEvery <= 0 {
		recoveryEvery = 5 * time.Minute
	}

	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		&asynq.SchedulerOpts{},
	)

	spec := fmt.Sprintf("@every %s", recoveryEvery)
	if _, err := scheduler.Register(spec, NewDocumentRecoverStaleTask()); err != nil {
		return nil, fmt.Errorf("failed to register stale recovery: %w", err)
	}

	return &Periodic{
		scheduler: scheduler,
		logger:    log.With("component", "periodic_jobs"),
	}, nil
}

// Start begins dispatching periodic tasks.
func (p *Periodic) Start() error {
	p.logger.Info("starting periodic job scheduler")
	return p.scheduler.Start()
}

// Stop shuts the scheduler down gracefully.
func (p *Periodic) Stop() {
	p.logger.Info("stopping periodic job scheduler")
	p.scheduler.Shutdown()
}

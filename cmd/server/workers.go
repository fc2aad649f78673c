package main

import (
	"github.com/flowdeckio/api/internal/config"
	"github.com/flowdeckio/api/internal/infra/jobs"
	"github.com/flowdeckio/api/pkg/logger"
)

// Workers holds all background processing components.
type Workers struct {
	worker    *jobs.Worker
	periodic  *jobs.Periodic
	scheduler interface {
		Start()
		Stop()
	}
}

// NewWorkers creates the asynq worker, the periodic task scheduler and
// the cron execution scheduler.
func NewWorkers(cfg *config.Config, services *Services, log *logger.Logger) (*Workers, error) {
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Concurrency:   cfg.Worker.Concurrency,
		Queues:        cfg.Worker.Queues,
	}, services.Document, log)
	if err != nil {
		return nil, err
	}

	periodic, err := jobs.NewPeriodic(jobs.ClientConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}, cfg.Ingestion.RecoveryEvery, log)
	if err != nil {
		return nil, err
	}

	return &Workers{
		worker:    worker,
		periodic:  periodic,
		scheduler: services.Scheduler,
	}, nil
}

// Start launches all background components.
func (w *Workers) Start(log *logger.Logger) error {
	if err := w.worker.Start(); err != nil {
		return err
	}
	log.Info("job worker started")

	if err := w.periodic.Start(); err != nil {
		w.worker.Stop()
		return err
	}
	log.Info("periodic scheduler started")

	w.scheduler.Start()
	log.Info("execution scheduler started")
	return nil
}

// Stop shuts down all background components in reverse start order.
func (w *Workers) Stop(log *logger.Logger) {
	w.scheduler.Stop()
	log.Info("execution scheduler stopped")

	w.periodic.Stop()
	log.Info("periodic scheduler stopped")

	w.worker.Stop()
	log.Info("job worker stopped")
}

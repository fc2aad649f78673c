package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowdeckio/api/internal/config"
	"github.com/flowdeckio/api/internal/infra/http"
	"github.com/flowdeckio/api/internal/infra/http/middleware"
	"github.com/flowdeckio/api/internal/infra/http/routes"
	"github.com/flowdeckio/api/internal/infra/ingest"
	"github.com/flowdeckio/api/internal/infra/jobs"
	"github.com/flowdeckio/api/internal/infra/objectstore"
	"github.com/flowdeckio/api/internal/infra/postgres"
	"github.com/flowdeckio/api/internal/infra/redis"
	"github.com/flowdeckio/api/pkg/logger"
	"github.com/flowdeckio/api/pkg/telemetry"
	"github.com/flowdeckio/api/pkg/validator"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log := logger.NewDefault()
		log.Error("failed to load configuration", "error", err)
		return 1
	}

	log := initLogger(cfg)
	log.Info("starting application", "app", cfg.App.Name, "env", cfg.App.Env)

	// ==========================================================================
	// Infrastructure
	// ==========================================================================
	db, err := postgres.New(&cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer closeWithLog(db, "database", log)
	log.Info("database connected")

	redisClient, err := redis.New(&cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return 1
	}
	defer closeWithLog(redisClient, "redis", log)
	log.Info("redis connected")

	tracer := telemetry.NoopTracer()
	if cfg.Telemetry.Enabled {
		provider, err := telemetry.NewProvider(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			log.Error("failed to initialize telemetry", "error", err)
			return 1
		}
		defer shutdownTelemetry(provider, log)
		tracer = provider.Tracer(cfg.Telemetry.ServiceName)
		log.Info("telemetry initialized", "service", cfg.Telemetry.ServiceName)
	}

	var uploads *objectstore.Store
	if cfg.Storage.Bucket != "" {
		uploads, err = objectstore.New(ctx, cfg.Storage)
		if err != nil {
			log.Error("failed to initialize object storage", "error", err)
			return 1
		}
		log.Info("object storage initialized", "bucket", cfg.Storage.Bucket)
	} else {
		log.Warn("object storage not configured, uploads disabled")
	}

	// ==========================================================================
	// Job Queue
	// ==========================================================================
	jobClient, err := jobs.NewClient(jobs.ClientConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}, log)
	if err != nil {
		log.Error("failed to initialize job client", "error", err)
		return 1
	}
	defer closeWithLog(jobClient, "job client", log)

	// ==========================================================================
	// Repositories & Services
	// ==========================================================================
	repos := NewRepositories(db)
	log.Info("repositories initialized")

	services, err := NewServices(&ServiceDeps{
		Config:      cfg,
		Log:         log,
		Repos:       repos,
		RedisClient: redisClient,
		JobClient:   jobClient,
		Uploads:     uploads,
		Processor:   ingest.NewProcessor(log),
		Tracer:      tracer,
	})
	if err != nil {
		log.Error("failed to initialize services", "error", err)
		return 1
	}
	log.Info("services initialized")

	// ==========================================================================
	// WebSocket Hub
	// ==========================================================================
	wsCtx, wsCancel := context.WithCancel(ctx)
	defer wsCancel()
	go services.WebSocketHub.Run(wsCtx)
	log.Info("websocket hub started")

	// ==========================================================================
	// HTTP Server
	// ==========================================================================
	v := validator.New()
	handlers := NewHandlers(&HandlerDeps{
		Config:      cfg,
		Log:         log,
		Validator:   v,
		DB:          db,
		RedisClient: redisClient,
		Uploads:     uploads,
		Services:    services,
	})

	auth := middleware.NewAuth(services.JWTGenerator, services.APIKey, log)

	server := http.NewServer(cfg, log)
	routes.Register(server.Router(), handlers, auth)

	// ==========================================================================
	// Workers
	// ==========================================================================
	workers, err := NewWorkers(cfg, services, log)
	if err != nil {
		log.Error("failed to initialize workers", "error", err)
		return 1
	}
	if err := workers.Start(log); err != nil {
		log.Error("failed to start workers", "error", err)
		return 1
	}

	// ==========================================================================
	// Start Server
	// ==========================================================================
	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", "error", err)
		}
	}()
	log.Info("application started", "http_addr", cfg.Server.Addr())

	// ==========================================================================
	// Graceful Shutdown
	// ==========================================================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	wsCancel()
	log.Info("websocket hub stopped")

	workers.Stop(log)

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return 1
	}

	log.Info("application stopped")
	return 0
}

func initLogger(cfg *config.Config) *logger.Logger {
	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	log.SetDefault()
	return log
}

type closer interface {
	Close() error
}

func closeWithLog(c closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}

type telemetryShutdowner interface {
	Shutdown(ctx context.Context) error
}

func shutdownTelemetry(p telemetryShutdowner, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		log.Error("failed to shutdown telemetry", "error", err)
	}
}

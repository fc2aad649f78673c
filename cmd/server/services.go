package main

import (
	"github.com/flowdeckio/api/internal/app"
	"github.com/flowdeckio/api/internal/config"
	"github.com/flowdeckio/api/internal/infra/engine"
	"github.com/flowdeckio/api/internal/infra/fetchers"
	"github.com/flowdeckio/api/internal/infra/jobs"
	"github.com/flowdeckio/api/internal/infra/objectstore"
	"github.com/flowdeckio/api/internal/infra/redis"
	"github.com/flowdeckio/api/internal/infra/websocket"
	"github.com/flowdeckio/api/pkg/crypto"
	"github.com/flowdeckio/api/pkg/domain/envvar"
	"github.com/flowdeckio/api/pkg/jwt"
	"github.com/flowdeckio/api/pkg/logger"
	"go.opentelemetry.io/otel/trace"
)

// Services holds all service instances.
type Services struct {
	Workflow  *app.WorkflowService
	Execution *app.ExecutionService
	EnvVar    *app.EnvVarService
	Document  *app.DocumentService
	APIKey    *app.APIKeyService

	Scheduler      *app.ExecutionScheduler
	BatchProcessor *app.BatchProcessor
	JWTGenerator   *jwt.Generator
	WebSocketHub   *websocket.Hub
}

// ServiceDeps bundles what service construction needs.
type ServiceDeps struct {
	Config      *config.Config
	Log         *logger.Logger
	Repos       *Repositories
	RedisClient *redis.Client
	JobClient   *jobs.Client
	Uploads     *objectstore.Store
	Processor   app.DocumentProcessor
	Tracer      trace.Tracer
}

// NewServices wires application services to their infrastructure.
func NewServices(deps *ServiceDeps) (*Services, error) {
	cfg := deps.Config
	log := deps.Log

	var encryptor crypto.Encryptor
	if cfg.Encryption.IsConfigured() {
		cipher, err := crypto.NewCipher(cfg.Encryption.Secret)
		if err != nil {
			return nil, err
		}
		encryptor = cipher
	} else {
		log.Warn("encryption secret not configured, storing environment variables in plaintext")
		encryptor = crypto.NewNoOpEncryptor()
	}
	resolver := envvar.NewResolver(encryptor)

	usageStore := redis.NewUsageStore(deps.RedisClient)
	checker := app.NewStoreUsageChecker(usageStore, cfg.Execution.DefaultUsageLimit)
	guard := app.NewAdmissionGuard(checker, log)

	hub := websocket.NewHub(log)

	engineClient := engine.NewClient(cfg.Execution.EngineURL, cfg.Execution.EngineTimeout, log)
	serializer := engine.NewSerializer()

	executionService := app.NewExecutionService(
		deps.Repos.Workflow,
		deps.Repos.Execution,
		deps.Repos.EnvVar,
		guard,
		resolver,
		serializer,
		engineClient,
		log,
		app.WithExecutionEvents(hub),
		app.WithExecutionUsageStore(usageStore),
		app.WithExecutionTracer(deps.Tracer),
	)

	var uploads fetchers.ObjectReader
	if deps.Uploads != nil {
		uploads = deps.Uploads
	}
	fetcher := fetchers.NewDispatcher(uploads, fetchers.Config{
		MaxFileSize: cfg.Ingestion.MaxFileSize,
		Timeout:     cfg.Ingestion.FetchTimeout,
	}, log)

	documentService := app.NewDocumentService(
		deps.Repos.Document,
		fetcher,
		deps.Processor,
		deps.JobClient,
		log,
		app.WithStaleAfter(cfg.Ingestion.StaleAfter),
	)

	scheduler := app.NewExecutionScheduler(
		deps.Repos.Workflow,
		executionService,
		app.ExecutionSchedulerConfig{},
		log,
	)

	batchProcessor := app.NewBatchProcessor(app.BatchOptions{
		BatchSize:        cfg.Execution.BatchSize,
		MaxConcurrent:    cfg.Execution.MaxConcurrent,
		InterBatchDelay:  cfg.Execution.InterBatchDelay,
		InterItemStagger: cfg.Execution.InterItemStagger,
	}, log)

	jwtGenerator := jwt.NewGenerator(jwt.TokenConfig{
		Secret:               cfg.Auth.JWTSecret,
		Issuer:               cfg.Auth.JWTIssuer,
		AccessTokenDuration:  cfg.Auth.AccessTokenDuration,
		RefreshTokenDuration: cfg.Auth.RefreshTokenDuration,
	})

	return &Services{
		Workflow:       app.NewWorkflowService(deps.Repos.Workflow, log),
		Execution:      executionService,
		EnvVar:         app.NewEnvVarService(deps.Repos.EnvVar, encryptor, log),
		Document:       documentService,
		APIKey:         app.NewAPIKeyService(deps.Repos.APIKey, log),
		Scheduler:      scheduler,
		BatchProcessor: batchProcessor,
		JWTGenerator:   jwtGenerator,
		WebSocketHub:   hub,
	}, nil
}

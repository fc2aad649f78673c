package main

import (
	"github.com/flowdeckio/api/internal/config"
	"github.com/flowdeckio/api/internal/infra/http/handler"
	"github.com/flowdeckio/api/internal/infra/http/routes"
	"github.com/flowdeckio/api/internal/infra/objectstore"
	"github.com/flowdeckio/api/internal/infra/postgres"
	"github.com/flowdeckio/api/internal/infra/redis"
	"github.com/flowdeckio/api/internal/infra/websocket"
	"github.com/flowdeckio/api/pkg/logger"
	"github.com/flowdeckio/api/pkg/validator"
)

// HandlerDeps bundles what handler construction needs.
type HandlerDeps struct {
	Config      *config.Config
	Log         *logger.Logger
	Validator   *validator.Validator
	DB          *postgres.DB
	RedisClient *redis.Client
	Uploads     *objectstore.Store
	Services    *Services
}

// NewHandlers creates all HTTP handlers.
func NewHandlers(deps *HandlerDeps) routes.Handlers {
	log := deps.Log
	v := deps.Validator
	svc := deps.Services

	var uploads handler.UploadStore
	if deps.Uploads != nil {
		uploads = deps.Uploads
	}

	return routes.Handlers{
		Health: handler.NewHealthHandler(
			handler.WithDatabase(deps.DB),
			handler.WithRedis(deps.RedisClient),
		),
		Workflow:  handler.NewWorkflowHandler(svc.Workflow, v, log),
		Execution: handler.NewExecutionHandler(svc.Execution, svc.BatchProcessor, v, log),
		EnvVar:    handler.NewEnvVarHandler(svc.EnvVar, v, log),
		Document:  handler.NewDocumentHandler(svc.Document, uploads, svc.BatchProcessor, v, log),
		APIKey:    handler.NewAPIKeyHandler(svc.APIKey, v, log),
		WebSocket: websocket.NewHandler(svc.WebSocketHub, svc.JWTGenerator, log),
	}
}

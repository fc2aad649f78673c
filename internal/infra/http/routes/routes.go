// Package routes registers all HTTP routes for the API. Routes are
// organized by domain for maintainability.
package routes

import (
	infrahttp "github.com/flowdeckio/api/internal/infra/http"
	"github.com/flowdeckio/api/internal/infra/http/handler"
	"github.com/flowdeckio/api/internal/infra/http/middleware"
	"github.com/flowdeckio/api/internal/infra/websocket"
)

// Middleware is an alias to the http package's Middleware type.
type Middleware = infrahttp.Middleware

// Router is an alias to the http package's Router interface.
type Router = infrahttp.Router

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health    *handler.HealthHandler
	Workflow  *handler.WorkflowHandler
	Execution *handler.ExecutionHandler
	EnvVar    *handler.EnvVarHandler
	Document  *handler.DocumentHandler
	APIKey    *handler.APIKeyHandler

	// WebSocket handler for real-time execution events.
	WebSocket *websocket.Handler
}

// Register registers all application routes. Route definitions stay in
// the infrastructure layer, not in main.
func Register(router Router, h Handlers, auth *middleware.Auth) {
	registerHealthRoutes(router, h.Health)

	authMiddleware := auth.Authenticate

	if h.WebSocket != nil {
		registerWebSocketRoutes(router, h.WebSocket)
	}
	if h.Workflow != nil {
		registerWorkflowRoutes(router, h.Workflow, h.Execution, authMiddleware)
	}
	if h.Execution != nil {
		registerExecutionRoutes(router, h.Execution, authMiddleware)
	}
	if h.EnvVar != nil {
		registerEnvVarRoutes(router, h.EnvVar, authMiddleware)
	}
	if h.Document != nil {
		registerDocumentRoutes(router, h.Document, authMiddleware)
	}
	if h.APIKey != nil {
		registerAPIKeyRoutes(router, h.APIKey, authMiddleware)
	}
}

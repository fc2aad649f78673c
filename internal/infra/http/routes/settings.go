package routes

import (
	"github.com/flowdeckio/api/internal/infra/http/handler"
)

// registerEnvVarRoutes registers environment-variable endpoints
// (protected). Values are write-only; reads return names.
func registerEnvVarRoutes(router Router, h *handler.EnvVarHandler, authMiddleware Middleware) {
	router.Group("/api/v1/environment", func(r Router) {
		r.GET("/", h.List)
		r.PUT("/", h.Upsert)
		r.DELETE("/", h.Delete)
	}, authMiddleware)
}

// registerAPIKeyRoutes registers API key management endpoints
// (protected).
func registerAPIKeyRoutes(router Router, h *handler.APIKeyHandler, authMiddleware Middleware) {
	router.Group("/api/v1/api-keys", func(r Router) {
		r.POST("/", h.Create)
		r.GET("/", h.List)
		r.DELETE("/{id}", h.Delete)
	}, authMiddleware)
}

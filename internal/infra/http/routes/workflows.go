package routes

import (
	"github.com/flowdeckio/api/internal/infra/http/handler"
)

// registerWorkflowRoutes registers workflow CRUD, deployment and
// per-workflow execution endpoints (protected).
func registerWorkflowRoutes(router Router, h *handler.WorkflowHandler, exec *handler.ExecutionHandler, authMiddleware Middleware) {
	router.Group("/api/v1/workflows", func(r Router) {
		r.POST("/", h.Create)
		r.GET("/", h.List)
		r.GET("/{id}", h.Get)
		r.DELETE("/{id}", h.Delete)

		r.PUT("/{id}/state", h.UpdateState)
		r.POST("/{id}/deploy", h.Deploy)
		r.POST("/{id}/undeploy", h.Undeploy)
		r.GET("/{id}/status", h.Status)
		r.PUT("/{id}/schedule", h.SetSchedule)

		if exec != nil {
			r.POST("/{id}/execute", exec.Execute)
			r.POST("/{id}/execute/batch", exec.ExecuteBatch)
			r.GET("/{id}/executions", exec.List)
		}
	}, authMiddleware)
}

// registerExecutionRoutes registers execution lookup endpoints
// (protected).
func registerExecutionRoutes(router Router, h *handler.ExecutionHandler, authMiddleware Middleware) {
	router.Group("/api/v1/executions", func(r Router) {
		r.GET("/{id}", h.Get)
	}, authMiddleware)
}

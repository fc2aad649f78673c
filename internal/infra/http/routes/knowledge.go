package routes

import (
	"github.com/flowdeckio/api/internal/infra/http/handler"
)

// registerDocumentRoutes registers knowledge-base document endpoints
// (protected).
func registerDocumentRoutes(router Router, h *handler.DocumentHandler, authMiddleware Middleware) {
	router.Group("/api/v1/knowledge", func(r Router) {
		r.POST("/{kbID}/documents", h.Create)
		r.POST("/{kbID}/documents/bulk", h.BulkCreate)
		r.GET("/{kbID}/documents", h.List)
		r.POST("/{kbID}/documents/upload-url", h.PresignUpload)
	}, authMiddleware)

	router.Group("/api/v1/documents", func(r Router) {
		r.GET("/{id}", h.Get)
		r.POST("/{id}/retry", h.Retry)
		r.DELETE("/{id}", h.Delete)
	}, authMiddleware)
}

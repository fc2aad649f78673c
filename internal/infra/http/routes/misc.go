package routes

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowdeckio/api/internal/infra/http/handler"
	"github.com/flowdeckio/api/internal/infra/websocket"
)

// registerHealthRoutes registers health check endpoints (public).
func registerHealthRoutes(router Router, h *handler.HealthHandler) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})
}

// registerWebSocketRoutes registers the real-time event endpoint.
// Authentication happens inside the handler: a session user from a
// prior middleware, or a short-lived stream token in the query string.
func registerWebSocketRoutes(router Router, h *websocket.Handler) {
	router.GET("/api/v1/ws", h.ServeWS)
}

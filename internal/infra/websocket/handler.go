package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/flowdeckio/api/internal/infra/http/middleware"
	"github.com/flowdeckio/api/pkg/apierror"
	"github.com/flowdeckio/api/pkg/jwt"
	"github.com/flowdeckio/api/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin is enforced by the CORS layer in front of this handler.
		return true
	},
}

// Handler handles WebSocket connections.
type Handler struct {
	hub    *Hub
	tokens *jwt.Generator
	logger *logger.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *Hub, tokens *jwt.Generator, log *logger.Logger) *Handler {
	return &Handler{
		hub:    hub,
		tokens: tokens,
		logger: log,
	}
}

// ServeWS handles WebSocket upgrade requests. Authentication comes
// either from the auth middleware or from a stream token in ?token=,
// which pins the connection to a single workflow.
// GET /api/v1/ws?token=xxx
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	workflowID := ""

	if userID == "" {
		token := r.URL.Query().Get("token")
		if token == "" {
			h.logger.Warn("websocket connection attempt without auth",
				"remote_addr", r.RemoteAddr,
			)
			apierror.Unauthorized("authentication required").WriteJSON(w)
			return
		}

		claims, err := h.tokens.ValidateStreamToken(token)
		if err != nil {
			apierror.Unauthorized("invalid stream token").WriteJSON(w)
			return
		}
		userID = claims.UserID
		workflowID = claims.WorkflowID
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed",
			"user_id", userID,
			"error", err,
		)
		return
	}

	client := NewClient(h.hub, conn, userID, workflowID, h.logger)
	h.hub.RegisterClient(client)

	h.logger.Info("websocket client connected",
		"client_id", client.ID,
		"user_id", userID,
		"remote_addr", r.RemoteAddr,
	)

	go client.WritePump()
	go client.ReadPump()
}

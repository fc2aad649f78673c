package websocket

import (
	"context"
	"sync"

	"github.com/flowdeckio/api/internal/app"
	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/logger"
)

const (
	// Max connections per user for rate limiting
	maxConnectionsPerUser = 10

	// Broadcast buffer size
	broadcastBufferSize = 256
)

// Hub maintains the set of active clients and broadcasts execution
// events to them. It implements app.EventPublisher.
type Hub struct {
	clients        map[*Client]bool
	userConnCounts map[string]int

	// Channel subscriptions: channel -> set of clients
	channels map[string]map[*Client]bool

	broadcast  chan *BroadcastMessage
	register   chan *Client
	unregister chan *Client

	logger      *logger.Logger
	authorizeFn AuthorizeFunc

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast to a channel.
type BroadcastMessage struct {
	Channel string
	Message *Message

	// UserID, when set, limits delivery to that user's clients.
	UserID string
}

// AuthorizeFunc checks if a client can subscribe to a channel.
type AuthorizeFunc func(client *Client, channel string) bool

// NewHub creates a new Hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		userConnCounts: make(map[string]int),
		channels:       make(map[string]map[*Client]bool),
		broadcast:      make(chan *BroadcastMessage, broadcastBufferSize),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		logger:         log,
		authorizeFn:    defaultAuthorize,
	}
}

// defaultAuthorize enforces channel access rules. Stream-token clients
// are pinned to the workflow the token was minted for.
func defaultAuthorize(client *Client, channel string) bool {
	channelType, id := ParseChannel(channel)

	switch channelType {
	case ChannelTypeExecution:
		if id == "" {
			return false
		}
		if client.WorkflowID != "" {
			return client.WorkflowID == id
		}
		return client.UserID != ""

	case ChannelTypeUser:
		return client.UserID == id

	default:
		return false
	}
}

// SetAuthorizeFunc sets a custom authorization function.
func (h *Hub) SetAuthorizeFunc(fn AuthorizeFunc) {
	h.authorizeFn = fn
}

// Run starts the hub's main loop.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("websocket hub started")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub stopping")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			if client.UserID != "" {
				count := h.userConnCounts[client.UserID]
				if count >= maxConnectionsPerUser {
					h.mu.Unlock()
					h.logger.Warn("connection limit exceeded",
						"user_id", client.UserID,
						"current", count,
						"max", maxConnectionsPerUser,
					)
					client.Close()
					continue
				}
				h.userConnCounts[client.UserID] = count + 1
			}
			h.clients[client] = true
			h.mu.Unlock()

			h.logger.Debug("client registered",
				"client_id", client.ID,
				"user_id", client.UserID,
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.removeClientFromAllChannels(client)
				if client.UserID != "" {
					if count := h.userConnCounts[client.UserID]; count > 0 {
						h.userConnCounts[client.UserID] = count - 1
						if h.userConnCounts[client.UserID] == 0 {
							delete(h.userConnCounts, client.UserID)
						}
					}
				}
			}
			h.mu.Unlock()

			h.logger.Debug("client unregistered",
				"client_id", client.ID,
				"user_id", client.UserID,
			)

		case msg := <-h.broadcast:
			h.broadcastToChannel(msg)
		}
	}
}

// RegisterClient registers a new client.
func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient unregisters a client.
func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// PublishExecutionEvent broadcasts an execution lifecycle event on the
// workflow's channel. Implements app.EventPublisher.
func (h *Hub) PublishExecutionEvent(workflowID shared.ID, event app.ExecutionEvent) {
	channel := MakeChannel(ChannelTypeExecution, workflowID.String())
	msg := NewMessage(MessageTypeEvent).
		WithChannel(channel).
		WithData(event)

	select {
	case h.broadcast <- &BroadcastMessage{Channel: channel, Message: msg}:
	default:
		h.logger.Warn("broadcast buffer full, dropping event",
			"channel", channel,
			"event", event.Type,
		)
	}
}

// Broadcast sends a message to all clients subscribed to a channel.
func (h *Hub) Broadcast(channel string, msg *Message, userID string) {
	h.broadcast <- &BroadcastMessage{
		Channel: channel,
		Message: msg,
		UserID:  userID,
	}
}

// subscribeToChannel adds a client to a channel (internal use).
func (h *Hub) subscribeToChannel(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*Client]bool)
	}
	h.channels[channel][client] = true
}

// unsubscribeFromChannel removes a client from a channel (internal use).
func (h *Hub) unsubscribeFromChannel(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.channels[channel]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}
}

func (h *Hub) authorizeSubscription(client *Client, channel string) bool {
	if h.authorizeFn == nil {
		return true
	}
	return h.authorizeFn(client, channel)
}

func (h *Hub) broadcastToChannel(msg *BroadcastMessage) {
	h.mu.RLock()
	clients, ok := h.channels[msg.Channel]
	if !ok || len(clients) == 0 {
		h.mu.RUnlock()
		return
	}

	// Copy client list to avoid holding lock during send.
	clientList := make([]*Client, 0, len(clients))
	for client := range clients {
		if msg.UserID != "" && client.UserID != msg.UserID {
			continue
		}
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	for _, client := range clientList {
		if err := client.SendMessage(msg.Message); err != nil {
			h.logger.Debug("failed to send message to client",
				"client_id", client.ID,
				"channel", msg.Channel,
				"error", err,
			)
		}
	}
}

func (h *Hub) removeClientFromAllChannels(client *Client) {
	for channel, clients := range h.channels {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
	h.channels = make(map[string]map[*Client]bool)
}

// Stats returns hub statistics.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	channelStats := make(map[string]int)
	for channel, clients := range h.channels {
		channelStats[channel] = len(clients)
	}

	return HubStats{
		TotalClients:   len(h.clients),
		TotalChannels:  len(h.channels),
		ChannelClients: channelStats,
	}
}

// HubStats contains hub statistics.
type HubStats struct {
	TotalClients   int            `json:"total_clients"`
	TotalChannels  int            `json:"total_channels"`
	ChannelClients map[string]int `json:"channel_clients"`
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"localbiz-chat/internal/auth"
	"localbiz-chat/internal/observability"
	ws "localbiz-chat/internal/websocket"
)

const connectTimeout = 5 * time.Second

// ConnectionPresence tracks a connection's group memberships over its lifetime.
type ConnectionPresence interface {
	ws.RoomPresence
	OnConnect(ctx context.Context, connID string)
}

// WebSocketHandler upgrades authenticated requests to chat connections.
type WebSocketHandler struct {
	hub      *ws.Hub
	presence ConnectionPresence
	sender   ws.MessageSender
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a handler that accepts upgrades from allowedOrigins.
// A "*" entry accepts any origin.
func NewWebSocketHandler(hub *ws.Hub, presence ConnectionPresence, sender ws.MessageSender, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		presence: presence,
		sender:   sender,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients do not send an origin.
			return true
		}
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

// HandleConnection handles WebSocket upgrade and connection
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.IdentityFromContext(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		observability.FromContext(r.Context()).Warn("websocket upgrade failed",
			slog.String("error", err.Error()))
		return
	}

	// The connection outlives the request, so keep its values but not its cancellation.
	ctx := context.WithoutCancel(r.Context())
	connID := uuid.NewString()

	client := ws.NewClient(ctx, connID, h.hub, conn, h.presence, h.sender)
	h.hub.Register(client)

	connectCtx, cancel := context.WithTimeout(observability.WithConnID(ctx, connID), connectTimeout)
	h.presence.OnConnect(connectCtx, connID)
	cancel()

	go client.WritePump()
	go client.ReadPump()
}

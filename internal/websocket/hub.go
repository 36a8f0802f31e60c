package websocket

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"localbiz-chat/internal/observability"
)

// ErrHubClosed is returned by Broadcast once the hub has shut down.
var ErrHubClosed = errors.New("websocket hub closed")

// MemberLister resolves a group to its connection ids.
type MemberLister interface {
	Members(ctx context.Context, group string) ([]string, error)
}

// delivery is a payload addressed to a set of connection ids. Ids that are
// not connected to this process are ignored.
type delivery struct {
	connIDs []string
	payload []byte
	kind    string
}

// Hub owns the connections local to this process and performs fan-out.
// Only the Run loop touches the clients map or closes a send channel.
type Hub struct {
	members MemberLister

	// Registered clients by connection id
	clients map[string]*Client

	deliver    chan *delivery
	register   chan *Client
	unregister chan *Client

	// Shutdown signal
	done chan struct{}
}

// NewHub creates a Hub that resolves group membership through members.
func NewHub(members MemberLister) *Hub {
	return &Hub{
		members:    members,
		clients:    make(map[string]*Client),
		deliver:    make(chan *delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case client := <-h.register:
			h.clients[client.id] = client
			observability.WebSocketConnectionsActive.Inc()
			client.logger.Info("client registered")

		case client := <-h.unregister:
			if h.clients[client.id] == client {
				h.removeClient(client)
				client.logger.Info("client unregistered")
			}

		case d := <-h.deliver:
			for _, connID := range d.connIDs {
				client, ok := h.clients[connID]
				if !ok {
					continue
				}
				select {
				case client.send <- d.payload:
					observability.WebSocketMessagesSent.WithLabelValues(d.kind).Inc()
				default:
					// Send buffer full; drop the client rather than stall the loop.
					h.removeClient(client)
					observability.WebSocketSlowClientsDropped.Inc()
					client.logger.Warn("dropping slow client")
				}
			}
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	delete(h.clients, client.id)
	close(client.send)
	observability.WebSocketConnectionsActive.Dec()
}

// shutdown performs graceful cleanup of all connections
func (h *Hub) shutdown() {
	close(h.done)

	for _, client := range h.clients {
		h.removeClient(client)
	}

	slog.Info("hub shutdown complete")
}

// Broadcast delivers payload to every local connection in group. It does not
// wait for clients to write; a client that cannot keep up is disconnected.
func (h *Hub) Broadcast(ctx context.Context, group string, payload []byte) error {
	connIDs, err := h.members.Members(ctx, group)
	if err != nil {
		return err
	}
	if len(connIDs) == 0 {
		return nil
	}
	return h.enqueue(ctx, &delivery{connIDs: connIDs, payload: payload, kind: groupKind(group)})
}

// SendTo delivers payload to a single local connection.
func (h *Hub) SendTo(ctx context.Context, connID string, payload []byte) error {
	return h.enqueue(ctx, &delivery{connIDs: []string{connID}, payload: payload, kind: "direct"})
}

func (h *Hub) enqueue(ctx context.Context, d *delivery) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.deliver <- d:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register registers a client with the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// groupKind is the metric label for a group key such as "room:42".
func groupKind(group string) string {
	kind, _, ok := strings.Cut(group, ":")
	if !ok {
		return "other"
	}
	return kind
}

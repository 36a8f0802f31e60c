package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"localbiz-chat/internal/domain"
	"localbiz-chat/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // Must be less than pongWait
	maxMessageSize = 32 * 1024
	sendBufferSize = 256

	// operationTimeout bounds each inbound frame's storage and registry work.
	operationTimeout = 5 * time.Second
)

// Client frame types.
const (
	TypeJoinRoom    = "join_room"
	TypeLeaveRoom   = "leave_room"
	TypeSendMessage = "send_message"
)

// Server frame types. Chat messages use domain.EnvelopeType.
const (
	TypeRoomJoined   = "room_joined"
	TypeRoomLeft     = "room_left"
	TypeNotification = "notification"
	TypeError        = "error"
)

// Conn is the subset of *websocket.Conn the client uses.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	Close() error
}

// RoomPresence is the group membership side of a connection.
type RoomPresence interface {
	OnDisconnect(ctx context.Context, connID string)
	JoinRoom(ctx context.Context, connID string, roomID int64) error
	LeaveRoom(ctx context.Context, connID string, roomID int64) error
}

// MessageSender persists and broadcasts chat messages.
type MessageSender interface {
	SendMessage(ctx context.Context, connID string, roomID int64, text string) (*domain.Envelope, error)
}

type Client struct {
	id       string
	hub      *Hub
	conn     Conn
	send     chan []byte
	presence RoomPresence
	sender   MessageSender
	logger   *slog.Logger
	writeMu  sync.Mutex
	closed   atomic.Bool

	// ctx carries the connection's identity claims and conn id.
	ctx       context.Context
	ctxCancel context.CancelFunc
}

// ClientMessage is an inbound frame.
type ClientMessage struct {
	Type   string `json:"type"`
	RoomID int64  `json:"roomId,omitempty"`
	Text   string `json:"text,omitempty"`
}

// ServerMessage is an outbound control frame.
type ServerMessage struct {
	Type    string          `json:"type"`
	RoomID  int64           `json:"roomId,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Message string          `json:"message,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewClient creates a client for conn. ctx must already carry the caller's
// identity; it is also the parent of every per-frame operation.
func NewClient(ctx context.Context, id string, hub *Hub, conn Conn, presence RoomPresence, sender MessageSender) *Client {
	ctx = observability.WithConnID(ctx, id)
	clientCtx, cancel := context.WithCancel(ctx)

	return &Client{
		id:        id,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		presence:  presence,
		sender:    sender,
		logger:    observability.FromContext(ctx),
		ctx:       clientCtx,
		ctxCancel: cancel,
	}
}

// NotificationFrame wraps an opaque payload for delivery to a user group.
func NotificationFrame(payload json.RawMessage) ([]byte, error) {
	return json.Marshal(ServerMessage{Type: TypeNotification, Payload: payload})
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// ReadPump reads frames until the connection fails, then releases every
// group membership the connection holds.
func (c *Client) ReadPump() {
	defer func() {
		c.ctxCancel()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), operationTimeout)
		c.presence.OnDisconnect(ctx, c.id)
		cancel()
		c.hub.Unregister(c)
		c.closeConnection()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("failed to set read deadline", slog.String("error", err.Error()))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("failed to set read deadline in pong handler",
				slog.String("error", err.Error()))
			return err
		}
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket error", slog.String("error", err.Error()))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.replyError(fmt.Errorf("%w: invalid frame", domain.ErrValidation))
			continue
		}

		c.handle(&msg)
	}
}

func (c *Client) handle(msg *ClientMessage) {
	ctx, cancel := context.WithTimeout(c.ctx, operationTimeout)
	defer cancel()

	switch msg.Type {
	case TypeJoinRoom, TypeLeaveRoom, TypeSendMessage:
		if msg.RoomID <= 0 {
			c.replyError(fmt.Errorf("%w: roomId is required", domain.ErrValidation))
			return
		}
	default:
		c.replyError(fmt.Errorf("%w: unknown frame type %q", domain.ErrValidation, msg.Type))
		return
	}

	switch msg.Type {
	case TypeJoinRoom:
		if err := c.presence.JoinRoom(ctx, c.id, msg.RoomID); err != nil {
			c.replyError(err)
			return
		}
		c.reply(ServerMessage{Type: TypeRoomJoined, RoomID: msg.RoomID})

	case TypeLeaveRoom:
		if err := c.presence.LeaveRoom(ctx, c.id, msg.RoomID); err != nil {
			c.replyError(err)
			return
		}
		c.reply(ServerMessage{Type: TypeRoomLeft, RoomID: msg.RoomID})

	case TypeSendMessage:
		// The envelope reaches this connection through the room broadcast.
		if _, err := c.sender.SendMessage(ctx, c.id, msg.RoomID, msg.Text); err != nil {
			c.replyError(err)
		}
	}
}

// replyError logs err and sends its kind to this connection only.
func (c *Client) replyError(err error) {
	kind := domain.Kind(err)
	level := slog.LevelWarn
	if kind == "storage_error" || kind == "internal" {
		level = slog.LevelError
	}
	c.logger.Log(c.ctx, level, "frame rejected",
		slog.String("kind", kind),
		slog.String("error", err.Error()))

	c.reply(ServerMessage{Type: TypeError, Kind: kind, Message: err.Error()})
}

func (c *Client) reply(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal server message", slog.String("error", err.Error()))
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, operationTimeout)
	defer cancel()
	if err := c.hub.SendTo(ctx, c.id, data); err != nil {
		c.logger.Warn("failed to queue reply", slog.String("error", err.Error()))
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				_ = c.writeMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeMessage writes a message to the WebSocket connection in a thread-safe manner
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return websocket.ErrCloseSent
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("failed to set write deadline", slog.String("error", err.Error()))
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// closeConnection safely closes the WebSocket connection
func (c *Client) closeConnection() {
	if c.closed.CompareAndSwap(false, true) {
		c.writeMu.Lock()
		c.conn.Close()
		c.writeMu.Unlock()
	}
}

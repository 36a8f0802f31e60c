package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localbiz-chat/internal/domain"
	"localbiz-chat/internal/presence"
	"localbiz-chat/internal/service"
	"localbiz-chat/internal/testutil"
)

// mockWebSocketConn provides a mock implementation of Conn for testing
type mockWebSocketConn struct {
	readMessages  chan []byte
	writeMessages chan []byte
	closed        bool
	mu            sync.Mutex
	hangUpOnce    sync.Once
}

func newMockWebSocketConn() *mockWebSocketConn {
	return &mockWebSocketConn{
		readMessages:  make(chan []byte, 16),
		writeMessages: make(chan []byte, 64),
	}
}

func (m *mockWebSocketConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// hangUp simulates the peer going away.
func (m *mockWebSocketConn) hangUp() {
	m.hangUpOnce.Do(func() { close(m.readMessages) })
}

func (m *mockWebSocketConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockWebSocketConn) SetReadDeadline(t time.Time) error {
	return nil
}

func (m *mockWebSocketConn) SetWriteDeadline(t time.Time) error {
	return nil
}

func (m *mockWebSocketConn) SetReadLimit(limit int64) {
}

func (m *mockWebSocketConn) SetPongHandler(h func(string) error) {
}

func (m *mockWebSocketConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-m.readMessages
	if !ok {
		return 0, nil, &websocket.CloseError{Code: websocket.CloseGoingAway}
	}
	return websocket.TextMessage, msg, nil
}

func (m *mockWebSocketConn) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return nil
	}
	m.writeMessages <- data
	return nil
}

func (m *mockWebSocketConn) frame(t *testing.T, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	m.readMessages <- data
}

func (m *mockWebSocketConn) next(t *testing.T) map[string]interface{} {
	t.Helper()
	select {
	case data := <-m.writeMessages:
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server frame")
		return nil
	}
}

func (m *mockWebSocketConn) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case data := <-m.writeMessages:
		t.Fatalf("unexpected server frame: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

type chatHarness struct {
	hub      *Hub
	manager  *presence.Manager
	registry *presence.MemoryRegistry
	store    *testutil.MockConversationStore
	chat     *service.ChatService
}

func newChatHarness(t *testing.T) *chatHarness {
	t.Helper()

	registry := presence.NewMemoryRegistry()
	h := &chatHarness{
		registry: registry,
		manager:  presence.NewManager(registry),
		store:    testutil.NewMockConversationStore(),
		hub:      startHub(t, registry),
	}
	owner := testutil.NewTestIdentity(testutil.WithIdentityID(99), testutil.WithRole(domain.RoleBusinessOwner))
	business := testutil.NewTestBusiness(owner.ID, testutil.WithBusinessID(5))
	h.store.AddRoom(&domain.ChatRoom{ID: 42, BusinessID: business.ID, UserID: 7})
	h.chat = service.NewChatService(h.store, testutil.NewMockBusinessRepository(business), h.manager, h.hub, nil)
	return h
}

// connect wires a client the way the websocket handler does and returns its conn.
func (h *chatHarness) connect(t *testing.T, identity domain.Identity, connID string) (*mockWebSocketConn, *Client) {
	t.Helper()

	conn := newMockWebSocketConn()
	ctx := testutil.ContextFor(identity)
	client := NewClient(ctx, connID, h.hub, conn, h.manager, h.chat)
	h.hub.Register(client)
	h.manager.OnConnect(ctx, connID)

	readDone := make(chan struct{})
	go client.WritePump()
	go func() {
		client.ReadPump()
		close(readDone)
	}()
	t.Cleanup(func() {
		conn.hangUp()
		<-readDone
	})
	return conn, client
}

func TestClient_JoinSendLeave(t *testing.T) {
	h := newChatHarness(t)
	customer := testutil.NewTestIdentity(testutil.WithIdentityID(7))
	conn, _ := h.connect(t, customer, "conn-a")

	conn.frame(t, ClientMessage{Type: TypeJoinRoom, RoomID: 42})
	joined := conn.next(t)
	assert.Equal(t, TypeRoomJoined, joined["type"])
	assert.Equal(t, float64(42), joined["roomId"])

	conn.frame(t, ClientMessage{Type: TypeSendMessage, RoomID: 42, Text: "Hi, are you open Sunday?"})
	env := conn.next(t)
	assert.Equal(t, domain.EnvelopeType, env["type"])
	assert.Equal(t, "Hi, are you open Sunday?", env["text"])
	assert.Equal(t, float64(7), env["senderId"])
	assert.Equal(t, customer.Name, env["senderName"])

	conn.frame(t, ClientMessage{Type: TypeLeaveRoom, RoomID: 42})
	left := conn.next(t)
	assert.Equal(t, TypeRoomLeft, left["type"])

	ok, err := h.registry.IsMember(context.Background(), "room:42", "conn-a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_RoomBroadcastDeliveredOncePerConnection(t *testing.T) {
	h := newChatHarness(t)
	customer := testutil.NewTestIdentity(testutil.WithIdentityID(7))
	owner := testutil.NewTestIdentity(testutil.WithIdentityID(99), testutil.WithRole(domain.RoleBusinessOwner))

	connA, _ := h.connect(t, customer, "conn-a")
	connB, _ := h.connect(t, owner, "conn-b")

	connA.frame(t, ClientMessage{Type: TypeJoinRoom, RoomID: 42})
	connA.next(t)
	connB.frame(t, ClientMessage{Type: TypeJoinRoom, RoomID: 42})
	connB.next(t)

	connA.frame(t, ClientMessage{Type: TypeSendMessage, RoomID: 42, Text: "Hi, are you open Sunday?"})

	for _, conn := range []*mockWebSocketConn{connA, connB} {
		env := conn.next(t)
		assert.Equal(t, domain.EnvelopeType, env["type"])
		assert.Equal(t, float64(42), env["roomId"])
		assert.Equal(t, "Hi, are you open Sunday?", env["text"])
		conn.expectSilence(t)
	}
	assert.Len(t, h.store.Messages, 1)
}

func TestClient_ErrorsGoOnlyToSender(t *testing.T) {
	h := newChatHarness(t)
	customer := testutil.NewTestIdentity(testutil.WithIdentityID(7))
	owner := testutil.NewTestIdentity(testutil.WithIdentityID(99))

	connA, _ := h.connect(t, customer, "conn-a")
	connB, _ := h.connect(t, owner, "conn-b")
	connA.frame(t, ClientMessage{Type: TypeJoinRoom, RoomID: 42})
	connA.next(t)
	connB.frame(t, ClientMessage{Type: TypeJoinRoom, RoomID: 42})
	connB.next(t)

	connA.frame(t, ClientMessage{Type: TypeSendMessage, RoomID: 42, Text: ""})

	reply := connA.next(t)
	assert.Equal(t, TypeError, reply["type"])
	assert.Equal(t, "validation_error", reply["kind"])
	connB.expectSilence(t)
	assert.Empty(t, h.store.Messages)
}

func TestClient_RejectedFrames(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind string
	}{
		{name: "invalid json", raw: `{not json`, kind: "validation_error"},
		{name: "unknown type", raw: `{"type":"typing","roomId":42}`, kind: "validation_error"},
		{name: "missing room", raw: `{"type":"join_room"}`, kind: "validation_error"},
		{name: "send before join", raw: `{"type":"send_message","roomId":42,"text":"hello"}`, kind: "unauthorized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newChatHarness(t)
			conn, _ := h.connect(t, testutil.NewTestIdentity(), "conn-a")

			conn.readMessages <- []byte(tt.raw)

			reply := conn.next(t)
			assert.Equal(t, TypeError, reply["type"])
			assert.Equal(t, tt.kind, reply["kind"])
		})
	}
}

func TestClient_DisconnectReleasesGroups(t *testing.T) {
	h := newChatHarness(t)
	customer := testutil.NewTestIdentity(testutil.WithIdentityID(7))
	conn, _ := h.connect(t, customer, "conn-a")

	conn.frame(t, ClientMessage{Type: TypeJoinRoom, RoomID: 42})
	conn.next(t)

	conn.hangUp()

	require.Eventually(t, func() bool {
		groups, err := h.registry.GroupsOf(context.Background(), "conn-a")
		return err == nil && len(groups) == 0
	}, time.Second, 10*time.Millisecond)
	require.Eventually(t, conn.isClosed, time.Second, 10*time.Millisecond)
}

func TestClient_CloseConnection_Idempotent(t *testing.T) {
	conn := newMockWebSocketConn()
	client := NewClient(context.Background(), "conn-a", NewHub(presence.NewMemoryRegistry()), conn, nil, nil)

	client.closeConnection()
	client.closeConnection()

	assert.True(t, conn.isClosed())
	assert.ErrorIs(t, client.writeMessage(websocket.TextMessage, []byte("late")), websocket.ErrCloseSent)
}

func TestNotificationFrame(t *testing.T) {
	frame, err := NotificationFrame(json.RawMessage(`{"kind":"booking"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"notification","payload":{"kind":"booking"}}`, string(frame))
}

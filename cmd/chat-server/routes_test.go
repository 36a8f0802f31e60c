package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localbiz-chat/api"
	"localbiz-chat/internal/auth"
	"localbiz-chat/internal/domain"
	"localbiz-chat/internal/handler"
	"localbiz-chat/internal/middleware"
	"localbiz-chat/internal/presence"
	"localbiz-chat/internal/service"
	"localbiz-chat/internal/testutil"
	ws "localbiz-chat/internal/websocket"
)

const routesTestSecret = "routes-test-secret-at-least-32-characters"

type stack struct {
	server   *httptest.Server
	verifier *auth.TokenVerifier
	store    *testutil.MockConversationStore
	events   *testutil.MockEventPublisher
	owner    domain.Identity
	customer domain.Identity
	business *domain.Business
}

// newStack wires the full HTTP surface over in-memory storage.
func newStack(t *testing.T) *stack {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := &stack{
		verifier: auth.NewTokenVerifier(routesTestSecret, "localbiz"),
		store:    testutil.NewMockConversationStore(),
		events:   &testutil.MockEventPublisher{},
	}
	s.owner = testutil.NewTestIdentity(testutil.WithRole(domain.RoleBusinessOwner))
	s.customer = testutil.NewTestIdentity()
	s.business = testutil.NewTestBusiness(s.owner.ID, testutil.WithProfileViews(40))
	businesses := testutil.NewMockBusinessRepository(s.business)

	registry := presence.NewMemoryRegistry()
	manager := presence.NewManager(registry)
	hub := ws.NewHub(registry)
	go hub.Run(ctx)

	chat := service.NewChatService(s.store, businesses, manager, hub, s.events)
	analyticsService := service.NewAnalyticsService(businesses,
		&testutil.MockReviewRepository{}, &testutil.MockAppointmentRepository{}, s.store)

	openapi, err := middleware.OpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig(api.OpenAPISpec))
	require.NoError(t, err)

	origins := []string{"*"}
	s.server = httptest.NewServer(newRouter(&routes{
		verifier:    s.verifier,
		origins:     origins,
		rateLimiter: middleware.NewRateLimiter(ctx, 100, 100),
		openapi:     openapi,
		chatrooms:   handler.NewChatroomHandler(chat),
		analytics:   handler.NewAnalyticsHandler(analyticsService),
		websocket:   handler.NewWebSocketHandler(hub, manager, chat, origins),
		ready:       handler.Ready(nil),
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *stack) token(t *testing.T, identity domain.Identity) string {
	t.Helper()
	token, err := s.verifier.Sign(identity, time.Hour)
	require.NoError(t, err)
	return token
}

func (s *stack) do(t *testing.T, method, path string, identity *domain.Identity) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.server.URL+path, nil)
	require.NoError(t, err)
	if identity != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(t, *identity))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRoutes_Operational(t *testing.T) {
	s := newStack(t)

	for _, path := range []string{"/health", "/health/ready", "/metrics"} {
		resp := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestRoutes_RequireToken(t *testing.T) {
	s := newStack(t)

	for _, path := range []string{"/api/v1/chatrooms", "/ws/chat"} {
		resp := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestRoutes_ConversationFlow(t *testing.T) {
	s := newStack(t)
	base := "/api/v1/businesses/" + itoa(s.business.ID)

	resp := s.do(t, http.MethodPost, base+"/conversations", &s.customer)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/v1/chatrooms", &s.customer)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, base+"/chatrooms", &s.owner)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, base+"/chatrooms", &s.customer)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRoutes_Analytics(t *testing.T) {
	s := newStack(t)
	path := "/api/v1/businesses/" + itoa(s.business.ID) + "/analytics?timeRange=7days"

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, path, &s.owner).StatusCode)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, path, &s.customer).StatusCode)
	assert.Equal(t, http.StatusNotFound,
		s.do(t, http.MethodGet, "/api/v1/businesses/999999/analytics", &s.owner).StatusCode)
	assert.Equal(t, http.StatusBadRequest,
		s.do(t, http.MethodGet, "/api/v1/businesses/"+itoa(s.business.ID)+"/analytics?timeRange=7%20days", &s.owner).StatusCode)
}

func TestRoutes_OpenAPIRejectsBadPathParams(t *testing.T) {
	s := newStack(t)

	resp := s.do(t, http.MethodGet, "/api/v1/chatrooms/abc/messages", &s.customer)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRoutes_WebSocketChat(t *testing.T) {
	s := newStack(t)
	room := s.store.AddRoom(&domain.ChatRoom{ID: 42, BusinessID: s.business.ID, UserID: s.customer.ID})

	wsURL := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws/chat?access_token=" +
		url.QueryEscape(s.token(t, s.customer))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() map[string]interface{} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var frame map[string]interface{}
		require.NoError(t, conn.ReadJSON(&frame))
		return frame
	}

	require.NoError(t, conn.WriteJSON(ws.ClientMessage{Type: ws.TypeJoinRoom, RoomID: room.ID}))
	assert.Equal(t, ws.TypeRoomJoined, read()["type"])

	require.NoError(t, conn.WriteJSON(ws.ClientMessage{Type: ws.TypeSendMessage, RoomID: room.ID, Text: "Hello!"}))
	frame := read()
	assert.Equal(t, domain.EnvelopeType, frame["type"])
	assert.Equal(t, "Hello!", frame["text"])

	require.Eventually(t, func() bool { return s.events.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp := s.do(t, http.MethodGet, "/api/v1/chatrooms/42/messages", &s.owner)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

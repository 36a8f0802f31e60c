package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localbiz-chat/internal/domain"
	"localbiz-chat/internal/presence"
	"localbiz-chat/internal/service"
	"localbiz-chat/internal/testutil"
)

type chatroomFixture struct {
	handler  *ChatroomHandler
	store    *testutil.MockConversationStore
	owner    domain.Identity
	customer domain.Identity
	business *domain.Business
	room     *domain.ChatRoom
}

func newChatroomFixture(t *testing.T) *chatroomFixture {
	t.Helper()

	f := &chatroomFixture{store: testutil.NewMockConversationStore()}
	f.owner = testutil.NewTestIdentity(testutil.WithRole(domain.RoleBusinessOwner))
	f.customer = testutil.NewTestIdentity()
	f.business = testutil.NewTestBusiness(f.owner.ID, testutil.WithBusinessID(5))
	f.room = f.store.AddRoom(&domain.ChatRoom{
		ID:         42,
		BusinessID: f.business.ID,
		UserID:     f.customer.ID,
		CreatedAt:  time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	})

	chat := service.NewChatService(
		f.store,
		testutil.NewMockBusinessRepository(f.business),
		presence.NewManager(presence.NewMemoryRegistry()),
		&testutil.RecordingBroadcaster{},
		nil,
	)
	f.handler = NewChatroomHandler(chat)
	return f
}

func TestChatroomHandler_StartConversation(t *testing.T) {
	f := newChatroomFixture(t)
	newcomer := testutil.NewTestIdentity()

	w := serve(t, http.MethodPost, "/businesses/{businessId}/conversations", "/businesses/5/conversations",
		f.handler.StartConversation, &newcomer)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	room := testutil.DecodeJSON[domain.ChatRoom](t, w)
	assert.Equal(t, int64(5), room.BusinessID)
	assert.Equal(t, newcomer.ID, room.UserID)

	// A second call returns the same room.
	again := serve(t, http.MethodPost, "/businesses/{businessId}/conversations", "/businesses/5/conversations",
		f.handler.StartConversation, &newcomer)
	assert.Equal(t, room.ID, testutil.DecodeJSON[domain.ChatRoom](t, again).ID)
}

func TestChatroomHandler_StartConversationErrors(t *testing.T) {
	f := newChatroomFixture(t)

	tests := []struct {
		name     string
		target   string
		identity *domain.Identity
		status   int
		kind     string
	}{
		{"no identity", "/businesses/5/conversations", nil, http.StatusUnauthorized, "unauthenticated"},
		{"bad id", "/businesses/abc/conversations", &f.customer, http.StatusBadRequest, "validation_error"},
		{"negative id", "/businesses/-3/conversations", &f.customer, http.StatusBadRequest, "validation_error"},
		{"unknown business", "/businesses/999/conversations", &f.customer, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, http.MethodPost, "/businesses/{businessId}/conversations", tt.target,
				f.handler.StartConversation, tt.identity)
			testutil.AssertErrorKind(t, w, tt.status, tt.kind)
		})
	}
}

func TestChatroomHandler_ListMine(t *testing.T) {
	f := newChatroomFixture(t)

	w := serve(t, http.MethodGet, "/chatrooms", "/chatrooms", f.handler.ListMine, &f.customer)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	rooms := testutil.DecodeJSON[[]domain.ChatRoom](t, w)
	require.Len(t, rooms, 1)
	assert.Equal(t, int64(42), rooms[0].ID)
}

func TestChatroomHandler_ListMineEmpty(t *testing.T) {
	f := newChatroomFixture(t)
	stranger := testutil.NewTestIdentity()

	w := serve(t, http.MethodGet, "/chatrooms", "/chatrooms", f.handler.ListMine, &stranger)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestChatroomHandler_ListForBusiness(t *testing.T) {
	f := newChatroomFixture(t)
	admin := testutil.NewTestIdentity(testutil.WithRole(domain.RoleAdmin))

	tests := []struct {
		name     string
		identity domain.Identity
		status   int
	}{
		{"owner", f.owner, http.StatusOK},
		{"admin", admin, http.StatusOK},
		{"customer", f.customer, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, http.MethodGet, "/businesses/{businessId}/chatrooms", "/businesses/5/chatrooms",
				f.handler.ListForBusiness, &tt.identity)

			if tt.status != http.StatusOK {
				testutil.AssertErrorKind(t, w, tt.status, "unauthorized")
				return
			}
			testutil.AssertStatusCode(t, w, http.StatusOK)
			assert.Len(t, testutil.DecodeJSON[[]domain.ChatRoom](t, w), 1)
		})
	}
}

func TestChatroomHandler_GetMessages(t *testing.T) {
	f := newChatroomFixture(t)
	ctx := context.Background()
	_, err := f.store.AppendMessage(ctx, 42, f.customer.ID, "Do you take walk-ins?")
	require.NoError(t, err)
	_, err = f.store.AppendMessage(ctx, 42, f.owner.ID, "Yes, until 5pm.")
	require.NoError(t, err)

	w := serve(t, http.MethodGet, "/chatrooms/{roomId}/messages", "/chatrooms/42/messages",
		f.handler.GetMessages, &f.owner)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	messages := testutil.DecodeJSON[[]domain.ChatMessage](t, w)
	require.Len(t, messages, 2)
	assert.Equal(t, "Do you take walk-ins?", messages[0].Text)
	assert.Equal(t, "Yes, until 5pm.", messages[1].Text)
}

func TestChatroomHandler_GetMessagesErrors(t *testing.T) {
	f := newChatroomFixture(t)
	stranger := testutil.NewTestIdentity()

	t.Run("stranger", func(t *testing.T) {
		w := serve(t, http.MethodGet, "/chatrooms/{roomId}/messages", "/chatrooms/42/messages",
			f.handler.GetMessages, &stranger)
		testutil.AssertErrorKind(t, w, http.StatusForbidden, "unauthorized")
	})

	t.Run("unknown room", func(t *testing.T) {
		w := serve(t, http.MethodGet, "/chatrooms/{roomId}/messages", "/chatrooms/404/messages",
			f.handler.GetMessages, &f.customer)
		testutil.AssertErrorKind(t, w, http.StatusNotFound, "not_found")
	})

	t.Run("storage failure", func(t *testing.T) {
		f.store.GetMessagesFunc = func(ctx context.Context, roomID int64) ([]*domain.ChatMessage, error) {
			return nil, errors.New("connection reset by peer")
		}
		defer func() { f.store.GetMessagesFunc = nil }()

		w := serve(t, http.MethodGet, "/chatrooms/{roomId}/messages", "/chatrooms/42/messages",
			f.handler.GetMessages, &f.customer)
		testutil.AssertErrorKind(t, w, http.StatusInternalServerError, "storage_error")
		assert.NotContains(t, w.Body.String(), "connection reset")
	})
}

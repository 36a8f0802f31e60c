package handler

import (
	"context"
	"net/http"

	"localbiz-chat/internal/domain"
)

// ConversationService is the chat core as seen by the HTTP API.
type ConversationService interface {
	StartConversation(ctx context.Context, businessID int64) (*domain.ChatRoom, error)
	History(ctx context.Context, roomID int64) ([]*domain.ChatMessage, error)
	RoomsForUser(ctx context.Context) ([]*domain.ChatRoom, error)
	RoomsForBusiness(ctx context.Context, businessID int64) ([]*domain.ChatRoom, error)
}

// ChatroomHandler handles conversation endpoints
type ChatroomHandler struct {
	chat ConversationService
}

// NewChatroomHandler creates a new chatroom handler
func NewChatroomHandler(chat ConversationService) *ChatroomHandler {
	return &ChatroomHandler{chat: chat}
}

// StartConversation returns the caller's room with a business, creating it
// on first contact.
func (h *ChatroomHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	businessID, err := pathID(r, "businessId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	room, err := h.chat.StartConversation(r.Context(), businessID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

// ListMine lists the rooms the caller takes part in as a customer.
func (h *ChatroomHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.chat.RoomsForUser(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, nonNil(rooms))
}

// ListForBusiness lists a business's rooms for its owner or an admin.
func (h *ChatroomHandler) ListForBusiness(w http.ResponseWriter, r *http.Request) {
	businessID, err := pathID(r, "businessId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	rooms, err := h.chat.RoomsForBusiness(r.Context(), businessID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, nonNil(rooms))
}

// GetMessages returns a room's history, oldest first.
func (h *ChatroomHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r, "roomId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	messages, err := h.chat.History(r.Context(), roomID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, nonNil(messages))
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

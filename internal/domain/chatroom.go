package domain

import (
	"context"
	"time"
)

// ChatRoom is a persistent conversation between one user and one business.
type ChatRoom struct {
	ID            int64      `json:"id"`
	BusinessID    int64      `json:"businessId"`
	UserID        int64      `json:"userId"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
}

// HasParticipant reports whether userID is the customer side of the room.
// Business-side access is checked against the business owner by the caller.
func (r *ChatRoom) HasParticipant(userID int64) bool {
	return r.UserID == userID
}

// ConversationStore persists chat rooms and their messages.
type ConversationStore interface {
	// CreateRoom returns the existing room for (businessID, userID) or creates one.
	CreateRoom(ctx context.Context, businessID, userID int64) (*ChatRoom, error)
	GetRoom(ctx context.Context, roomID int64) (*ChatRoom, error)
	GetRoomsForBusiness(ctx context.Context, businessID int64) ([]*ChatRoom, error)
	GetRoomsForUser(ctx context.Context, userID int64) ([]*ChatRoom, error)

	// AppendMessage stores a message and advances the room's last-message timestamp atomically.
	AppendMessage(ctx context.Context, roomID, senderID int64, text string) (*ChatMessage, error)
	GetMessages(ctx context.Context, roomID int64) ([]*ChatMessage, error)
	GetMessagesForBusiness(ctx context.Context, businessID int64) ([]*ChatMessage, error)
}

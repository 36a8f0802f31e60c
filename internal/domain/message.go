package domain

import (
	"time"
	"unicode/utf8"
)

// MaxMessageLength is the maximum message length in characters.
const MaxMessageLength = 4000

// ChatMessage is a stored message. Messages are append-only.
type ChatMessage struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"roomId"`
	SenderID  int64     `json:"senderId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// ValidateMessageText checks the message length bounds.
func ValidateMessageText(text string) error {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return ErrMessageEmpty
	}
	if n > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// Envelope is the wire payload pushed to room members when a message is sent.
type Envelope struct {
	Type        string    `json:"type"`
	ID          int64     `json:"id"`
	RoomID      int64     `json:"roomId"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"createdAt"`
	SenderID    int64     `json:"senderId"`
	SenderName  string    `json:"senderName"`
	SenderEmail string    `json:"senderEmail"`
}

// EnvelopeType is the event name of a chat message envelope.
const EnvelopeType = "message_received"

// MessageCreatedEvent is published on the notification transport after a message is stored.
type MessageCreatedEvent struct {
	MessageID  int64     `json:"messageId"`
	RoomID     int64     `json:"roomId"`
	BusinessID int64     `json:"businessId"`
	SenderID   int64     `json:"senderId"`
	SenderName string    `json:"senderName"`
	Preview    string    `json:"preview"`
	CreatedAt  time.Time `json:"createdAt"`
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"localbiz-chat/internal/auth"
	"localbiz-chat/internal/domain"
	"localbiz-chat/internal/observability"
)

const (
	eventPublishTimeout = 2 * time.Second
	previewLength       = 140
)

// Broadcaster delivers a payload to every connection in a group.
type Broadcaster interface {
	Broadcast(ctx context.Context, group string, payload []byte) error
}

// RoomMembership answers whether a connection has joined a room.
type RoomMembership interface {
	InRoom(ctx context.Context, connID string, roomID int64) (bool, error)
}

// EventPublisher forwards stored messages to downstream consumers.
type EventPublisher interface {
	PublishMessageCreated(ctx context.Context, event *domain.MessageCreatedEvent) error
}

type ChatService struct {
	store       domain.ConversationStore
	businesses  domain.BusinessRepository
	membership  RoomMembership
	broadcaster Broadcaster
	events      EventPublisher
}

// NewChatService wires the broadcast engine. events may be nil.
func NewChatService(
	store domain.ConversationStore,
	businesses domain.BusinessRepository,
	membership RoomMembership,
	broadcaster Broadcaster,
	events EventPublisher,
) *ChatService {
	return &ChatService{
		store:       store,
		businesses:  businesses,
		membership:  membership,
		broadcaster: broadcaster,
		events:      events,
	}
}

// SendMessage persists text in roomID and broadcasts the resulting envelope to
// the room group. Nothing is broadcast unless the message was stored first.
func (s *ChatService) SendMessage(ctx context.Context, connID string, roomID int64, text string) (*domain.Envelope, error) {
	env, err := s.sendMessage(ctx, connID, roomID, text)
	if err != nil {
		observability.ChatSendFailures.WithLabelValues(domain.Kind(err)).Inc()
		return nil, err
	}
	return env, nil
}

func (s *ChatService) sendMessage(ctx context.Context, connID string, roomID int64, text string) (*domain.Envelope, error) {
	identity, err := auth.IdentityFromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: send message requires an identity", domain.ErrUnauthorized)
	}

	if err := domain.ValidateMessageText(text); err != nil {
		return nil, err
	}

	joined, err := s.membership.InRoom(ctx, connID, roomID)
	if err != nil {
		return nil, err
	}
	if !joined {
		return nil, domain.ErrNotJoined
	}

	msg, err := s.store.AppendMessage(ctx, roomID, identity.ID, text)
	if err != nil {
		return nil, classifyStorage("append message", err)
	}
	observability.ChatMessagesPersisted.Inc()

	env := &domain.Envelope{
		Type:        domain.EnvelopeType,
		ID:          msg.ID,
		RoomID:      msg.RoomID,
		Text:        msg.Text,
		CreatedAt:   msg.CreatedAt,
		SenderID:    identity.ID,
		SenderName:  identity.Name,
		SenderEmail: identity.Email,
	}

	logger := observability.FromContext(ctx)

	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	// The message is durable at this point; a failed fan-out is recoverable
	// through history and must not turn into a send error.
	if err := s.broadcaster.Broadcast(ctx, domain.RoomGroup(roomID), payload); err != nil {
		logger.Error("failed to broadcast message",
			slog.Int64("room_id", roomID),
			slog.Int64("message_id", msg.ID),
			slog.String("error", err.Error()))
	}

	s.publishCreated(ctx, identity, msg)

	logger.Info("message sent",
		slog.Int64("room_id", roomID),
		slog.Int64("message_id", msg.ID))
	return env, nil
}

func (s *ChatService) publishCreated(ctx context.Context, identity *domain.Identity, msg *domain.ChatMessage) {
	if s.events == nil {
		return
	}

	event := &domain.MessageCreatedEvent{
		MessageID:  msg.ID,
		RoomID:     msg.RoomID,
		SenderID:   identity.ID,
		SenderName: identity.Name,
		Preview:    preview(msg.Text),
		CreatedAt:  msg.CreatedAt,
	}
	if room, err := s.store.GetRoom(ctx, msg.RoomID); err == nil {
		event.BusinessID = room.BusinessID
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	if err := s.events.PublishMessageCreated(pubCtx, event); err != nil {
		observability.FromContext(ctx).Warn("failed to publish message event",
			slog.Int64("message_id", msg.ID),
			slog.String("error", err.Error()))
	}
}

// StartConversation returns the caller's room with businessID, creating it on
// first contact.
func (s *ChatService) StartConversation(ctx context.Context, businessID int64) (*domain.ChatRoom, error) {
	identity, err := auth.IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := s.businesses.GetByID(ctx, businessID); err != nil {
		return nil, classifyStorage("get business", err)
	}

	room, err := s.store.CreateRoom(ctx, businessID, identity.ID)
	if err != nil {
		return nil, classifyStorage("create room", err)
	}
	return room, nil
}

// History returns a room's messages, oldest first. Only the customer
// participant, the business owner and admins may read it.
func (s *ChatService) History(ctx context.Context, roomID int64) ([]*domain.ChatMessage, error) {
	identity, err := auth.IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, classifyStorage("get room", err)
	}
	if err := s.authorizeRoom(ctx, identity, room); err != nil {
		return nil, err
	}

	messages, err := s.store.GetMessages(ctx, roomID)
	if err != nil {
		return nil, classifyStorage("get messages", err)
	}
	return messages, nil
}

func (s *ChatService) RoomsForUser(ctx context.Context) ([]*domain.ChatRoom, error) {
	identity, err := auth.IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rooms, err := s.store.GetRoomsForUser(ctx, identity.ID)
	if err != nil {
		return nil, classifyStorage("get rooms for user", err)
	}
	return rooms, nil
}

func (s *ChatService) RoomsForBusiness(ctx context.Context, businessID int64) ([]*domain.ChatRoom, error) {
	identity, err := auth.IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeBusiness(ctx, s.businesses, identity, businessID); err != nil {
		return nil, err
	}
	rooms, err := s.store.GetRoomsForBusiness(ctx, businessID)
	if err != nil {
		return nil, classifyStorage("get rooms for business", err)
	}
	return rooms, nil
}

// NotifyUser pushes payload to every open connection of userID.
func (s *ChatService) NotifyUser(ctx context.Context, userID int64, payload []byte) error {
	return s.broadcaster.Broadcast(ctx, domain.UserGroup(userID), payload)
}

func (s *ChatService) authorizeRoom(ctx context.Context, identity *domain.Identity, room *domain.ChatRoom) error {
	if identity.IsAdmin() || room.HasParticipant(identity.ID) {
		return nil
	}
	business, err := s.businesses.GetByID(ctx, room.BusinessID)
	if err != nil {
		return classifyStorage("get business", err)
	}
	if business.OwnerID != identity.ID {
		return domain.ErrNotParticipant
	}
	return nil
}

// authorizeBusiness loads the business and checks the caller owns it or is an admin.
func authorizeBusiness(ctx context.Context, repo domain.BusinessRepository, identity *domain.Identity, businessID int64) (*domain.Business, error) {
	business, err := repo.GetByID(ctx, businessID)
	if err != nil {
		return nil, classifyStorage("get business", err)
	}
	if !identity.IsAdmin() && business.OwnerID != identity.ID {
		return nil, domain.ErrNotBusinessOwner
	}
	return business, nil
}

// classifyStorage leaves typed domain errors alone and marks anything else as
// a storage failure.
func classifyStorage(op string, err error) error {
	if domain.Kind(err) != "internal" {
		return err
	}
	return domain.StorageError(op, err)
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength])
}

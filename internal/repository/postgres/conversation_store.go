package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"localbiz-chat/internal/domain"
)

const (
	roomColumns = `id, business_id, user_id, created_at, last_message_at`

	selectRoomByPairQuery = `
		SELECT ` + roomColumns + `
		FROM chat_rooms
		WHERE business_id = $1 AND user_id = $2
	`
	insertRoomQuery = `
		INSERT INTO chat_rooms (business_id, user_id)
		VALUES ($1, $2)
		RETURNING ` + roomColumns
	selectRoomQuery = `
		SELECT ` + roomColumns + `
		FROM chat_rooms
		WHERE id = $1
	`
	selectRoomsByBusinessQuery = `
		SELECT ` + roomColumns + `
		FROM chat_rooms
		WHERE business_id = $1
		ORDER BY COALESCE(last_message_at, created_at) DESC, id DESC
	`
	selectRoomsByUserQuery = `
		SELECT ` + roomColumns + `
		FROM chat_rooms
		WHERE user_id = $1
		ORDER BY COALESCE(last_message_at, created_at) DESC, id DESC
	`

	// Locks the room row so appends to one room are serialized and their
	// timestamps never go backwards.
	touchRoomQuery = `
		UPDATE chat_rooms
		SET last_message_at = GREATEST(COALESCE(last_message_at, '-infinity'::timestamptz), clock_timestamp())
		WHERE id = $1
		RETURNING last_message_at
	`
	insertMessageQuery = `
		INSERT INTO chat_messages (room_id, sender_id, text, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	selectMessagesByRoomQuery = `
		SELECT id, room_id, sender_id, text, created_at
		FROM chat_messages
		WHERE room_id = $1
		ORDER BY created_at, id
	`
	selectMessagesByBusinessQuery = `
		SELECT m.id, m.room_id, m.sender_id, m.text, m.created_at
		FROM chat_messages m
		JOIN chat_rooms r ON r.id = m.room_id
		WHERE r.business_id = $1
		ORDER BY m.created_at, m.id
	`
)

// ConversationStore implements domain.ConversationStore for PostgreSQL
type ConversationStore struct {
	db *sql.DB
	tx *TxManager
}

// NewConversationStore creates a new PostgreSQL conversation store
func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db, tx: NewTxManager(db)}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*domain.ChatRoom, error) {
	room := &domain.ChatRoom{}
	var last sql.NullTime
	if err := row.Scan(&room.ID, &room.BusinessID, &room.UserID, &room.CreatedAt, &last); err != nil {
		return nil, err
	}
	room.CreatedAt = room.CreatedAt.UTC()
	if last.Valid {
		t := last.Time.UTC()
		room.LastMessageAt = &t
	}
	return room, nil
}

// CreateRoom returns the room for the pair, creating it on first contact.
// A concurrent creator losing the unique-key race re-reads the winner's row.
// A business deleted since the caller looked it up reports ErrBusinessNotFound.
func (s *ConversationStore) CreateRoom(ctx context.Context, businessID, userID int64) (*domain.ChatRoom, error) {
	room, err := scanRoom(s.db.QueryRowContext(ctx, selectRoomByPairQuery, businessID, userID))
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, domain.StorageError("failed to look up chat room", err)
	}

	room, err = scanRoom(s.db.QueryRowContext(ctx, insertRoomQuery, businessID, userID))
	if err == nil {
		return room, nil
	}
	if IsForeignKeyViolation(err, chatRoomsBusinessFKey) {
		return nil, domain.ErrBusinessNotFound
	}
	if !IsUniqueViolation(err, chatRoomsBusinessUserKey) {
		return nil, domain.StorageError("failed to create chat room", err)
	}

	room, err = scanRoom(s.db.QueryRowContext(ctx, selectRoomByPairQuery, businessID, userID))
	if err != nil {
		return nil, domain.StorageError("failed to reload chat room", err)
	}
	return room, nil
}

// GetRoom retrieves a chat room by ID
func (s *ConversationStore) GetRoom(ctx context.Context, roomID int64) (*domain.ChatRoom, error) {
	room, err := scanRoom(s.db.QueryRowContext(ctx, selectRoomQuery, roomID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, domain.StorageError("failed to get chat room", err)
	}
	return room, nil
}

func (s *ConversationStore) GetRoomsForBusiness(ctx context.Context, businessID int64) ([]*domain.ChatRoom, error) {
	return s.queryRooms(ctx, selectRoomsByBusinessQuery, businessID)
}

func (s *ConversationStore) GetRoomsForUser(ctx context.Context, userID int64) ([]*domain.ChatRoom, error) {
	return s.queryRooms(ctx, selectRoomsByUserQuery, userID)
}

func (s *ConversationStore) queryRooms(ctx context.Context, query string, arg int64) ([]*domain.ChatRoom, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, domain.StorageError("failed to query chat rooms", err)
	}
	defer rows.Close()

	rooms := make([]*domain.ChatRoom, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, domain.StorageError("failed to scan chat room", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("error iterating chat rooms", err)
	}
	return rooms, nil
}

// AppendMessage stores the message and advances the room's last-message
// timestamp in one transaction.
func (s *ConversationStore) AppendMessage(ctx context.Context, roomID, senderID int64, text string) (*domain.ChatMessage, error) {
	msg := &domain.ChatMessage{
		RoomID:   roomID,
		SenderID: senderID,
		Text:     text,
	}

	err := s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		var createdAt time.Time
		if err := tx.QueryRowContext(ctx, touchRoomQuery, roomID).Scan(&createdAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrRoomNotFound
			}
			return err
		}
		msg.CreatedAt = createdAt.UTC()

		return tx.QueryRowContext(ctx, insertMessageQuery, roomID, senderID, text, msg.CreatedAt).Scan(&msg.ID)
	})
	if errors.Is(err, domain.ErrRoomNotFound) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, domain.StorageError("failed to append message", err)
	}
	return msg, nil
}

// GetMessages returns a room's messages oldest first
func (s *ConversationStore) GetMessages(ctx context.Context, roomID int64) ([]*domain.ChatMessage, error) {
	return s.queryMessages(ctx, selectMessagesByRoomQuery, roomID)
}

// GetMessagesForBusiness returns every message across the business's rooms
func (s *ConversationStore) GetMessagesForBusiness(ctx context.Context, businessID int64) ([]*domain.ChatMessage, error) {
	return s.queryMessages(ctx, selectMessagesByBusinessQuery, businessID)
}

func (s *ConversationStore) queryMessages(ctx context.Context, query string, arg int64) ([]*domain.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, domain.StorageError("failed to query messages", err)
	}
	defer rows.Close()

	messages := make([]*domain.ChatMessage, 0)
	for rows.Next() {
		msg := &domain.ChatMessage{}
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, domain.StorageError("failed to scan message", err)
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("error iterating messages", err)
	}
	return messages, nil
}

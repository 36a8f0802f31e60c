// Package testutil provides shared test doubles, fixtures and helpers for the
// localbiz-chat packages.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"localbiz-chat/internal/domain"
)

// MockConversationStore implements domain.ConversationStore in memory.
// Set a Func field to override a single method.
type MockConversationStore struct {
	mu sync.Mutex

	CreateRoomFunc    func(ctx context.Context, businessID, userID int64) (*domain.ChatRoom, error)
	GetRoomFunc       func(ctx context.Context, roomID int64) (*domain.ChatRoom, error)
	AppendMessageFunc func(ctx context.Context, roomID, senderID int64, text string) (*domain.ChatMessage, error)
	GetMessagesFunc   func(ctx context.Context, roomID int64) ([]*domain.ChatMessage, error)

	Rooms    map[int64]*domain.ChatRoom
	Messages []*domain.ChatMessage

	// AppendCalls counts AppendMessage invocations, successful or not.
	AppendCalls int

	nextRoomID    int64
	nextMessageID int64
}

func NewMockConversationStore() *MockConversationStore {
	return &MockConversationStore{Rooms: make(map[int64]*domain.ChatRoom)}
}

// AddRoom seeds a room and returns it.
func (m *MockConversationStore) AddRoom(room *domain.ChatRoom) *domain.ChatRoom {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Rooms == nil {
		m.Rooms = make(map[int64]*domain.ChatRoom)
	}
	if room.ID > m.nextRoomID {
		m.nextRoomID = room.ID
	}
	m.Rooms[room.ID] = room
	return room
}

func (m *MockConversationStore) CreateRoom(ctx context.Context, businessID, userID int64) (*domain.ChatRoom, error) {
	if m.CreateRoomFunc != nil {
		return m.CreateRoomFunc(ctx, businessID, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Rooms == nil {
		m.Rooms = make(map[int64]*domain.ChatRoom)
	}
	for _, r := range m.Rooms {
		if r.BusinessID == businessID && r.UserID == userID {
			return r, nil
		}
	}
	m.nextRoomID++
	room := &domain.ChatRoom{
		ID:         m.nextRoomID,
		BusinessID: businessID,
		UserID:     userID,
		CreatedAt:  time.Now().UTC(),
	}
	m.Rooms[room.ID] = room
	return room, nil
}

func (m *MockConversationStore) GetRoom(ctx context.Context, roomID int64) (*domain.ChatRoom, error) {
	if m.GetRoomFunc != nil {
		return m.GetRoomFunc(ctx, roomID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.Rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

func (m *MockConversationStore) GetRoomsForBusiness(ctx context.Context, businessID int64) ([]*domain.ChatRoom, error) {
	return m.filterRooms(func(r *domain.ChatRoom) bool { return r.BusinessID == businessID }), nil
}

func (m *MockConversationStore) GetRoomsForUser(ctx context.Context, userID int64) ([]*domain.ChatRoom, error) {
	return m.filterRooms(func(r *domain.ChatRoom) bool { return r.UserID == userID }), nil
}

func (m *MockConversationStore) filterRooms(keep func(*domain.ChatRoom) bool) []*domain.ChatRoom {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms := []*domain.ChatRoom{}
	for _, r := range m.Rooms {
		if keep(r) {
			rooms = append(rooms, r)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms
}

func (m *MockConversationStore) AppendMessage(ctx context.Context, roomID, senderID int64, text string) (*domain.ChatMessage, error) {
	m.mu.Lock()
	m.AppendCalls++
	m.mu.Unlock()

	if m.AppendMessageFunc != nil {
		return m.AppendMessageFunc(ctx, roomID, senderID, text)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.Rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}

	now := time.Now().UTC()
	if room.LastMessageAt != nil && now.Before(*room.LastMessageAt) {
		now = *room.LastMessageAt
	}
	room.LastMessageAt = &now

	m.nextMessageID++
	msg := &domain.ChatMessage{
		ID:        m.nextMessageID,
		RoomID:    roomID,
		SenderID:  senderID,
		Text:      text,
		CreatedAt: now,
	}
	m.Messages = append(m.Messages, msg)
	return msg, nil
}

func (m *MockConversationStore) GetMessages(ctx context.Context, roomID int64) ([]*domain.ChatMessage, error) {
	if m.GetMessagesFunc != nil {
		return m.GetMessagesFunc(ctx, roomID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Rooms[roomID]; !ok {
		return nil, domain.ErrRoomNotFound
	}
	messages := []*domain.ChatMessage{}
	for _, msg := range m.Messages {
		if msg.RoomID == roomID {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

func (m *MockConversationStore) GetMessagesForBusiness(ctx context.Context, businessID int64) ([]*domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	messages := []*domain.ChatMessage{}
	for _, msg := range m.Messages {
		if room, ok := m.Rooms[msg.RoomID]; ok && room.BusinessID == businessID {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

// MockBusinessRepository implements domain.BusinessRepository.
type MockBusinessRepository struct {
	mu          sync.RWMutex
	GetByIDFunc func(ctx context.Context, id int64) (*domain.Business, error)
	Businesses  map[int64]*domain.Business
}

func NewMockBusinessRepository(businesses ...*domain.Business) *MockBusinessRepository {
	m := &MockBusinessRepository{Businesses: make(map[int64]*domain.Business)}
	for _, b := range businesses {
		m.Businesses[b.ID] = b
	}
	return m
}

func (m *MockBusinessRepository) GetByID(ctx context.Context, id int64) (*domain.Business, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.Businesses[id]
	if !ok {
		return nil, domain.ErrBusinessNotFound
	}
	return b, nil
}

// MockReviewRepository implements domain.ReviewRepository.
type MockReviewRepository struct {
	GetByBusinessIDFunc func(ctx context.Context, businessID int64) ([]*domain.Review, error)
	Reviews             []*domain.Review
}

func (m *MockReviewRepository) GetByBusinessID(ctx context.Context, businessID int64) ([]*domain.Review, error) {
	if m.GetByBusinessIDFunc != nil {
		return m.GetByBusinessIDFunc(ctx, businessID)
	}
	reviews := []*domain.Review{}
	for _, r := range m.Reviews {
		if r.BusinessID == businessID {
			reviews = append(reviews, r)
		}
	}
	return reviews, nil
}

// MockAppointmentRepository implements domain.AppointmentRepository.
type MockAppointmentRepository struct {
	GetByBusinessIDFunc func(ctx context.Context, businessID int64) ([]*domain.Appointment, error)
	Appointments        []*domain.Appointment
}

func (m *MockAppointmentRepository) GetByBusinessID(ctx context.Context, businessID int64) ([]*domain.Appointment, error) {
	if m.GetByBusinessIDFunc != nil {
		return m.GetByBusinessIDFunc(ctx, businessID)
	}
	appointments := []*domain.Appointment{}
	for _, a := range m.Appointments {
		if a.BusinessID == businessID {
			appointments = append(appointments, a)
		}
	}
	return appointments, nil
}

// Delivery is one payload recorded by a RecordingBroadcaster.
type Delivery struct {
	Group   string
	Payload []byte
}

// RecordingBroadcaster captures broadcasts instead of delivering them.
type RecordingBroadcaster struct {
	mu         sync.Mutex
	Err        error
	deliveries []Delivery
}

func (b *RecordingBroadcaster) Broadcast(ctx context.Context, group string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliveries = append(b.deliveries, Delivery{Group: group, Payload: payload})
	return b.Err
}

func (b *RecordingBroadcaster) Deliveries() []Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Delivery, len(b.deliveries))
	copy(out, b.deliveries)
	return out
}

// MockEventPublisher records published message events.
type MockEventPublisher struct {
	mu     sync.Mutex
	Err    error
	Events []*domain.MessageCreatedEvent
}

func (p *MockEventPublisher) PublishMessageCreated(ctx context.Context, event *domain.MessageCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, event)
	return p.Err
}

func (p *MockEventPublisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Events)
}

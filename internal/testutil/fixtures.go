package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"localbiz-chat/internal/auth"
	"localbiz-chat/internal/domain"
)

// Counter for generating unique IDs. Generated IDs start above fixtureIDBase
// so tests can hand-pick small IDs without colliding.
var idCounter atomic.Int64

const fixtureIDBase = 1000

func nextID() int64 {
	return fixtureIDBase + idCounter.Add(1)
}

// NewTestIdentity creates a customer identity with sensible defaults.
func NewTestIdentity(opts ...func(*domain.Identity)) domain.Identity {
	id := nextID()
	identity := domain.Identity{
		ID:    id,
		Name:  fmt.Sprintf("Test User %d", id),
		Email: fmt.Sprintf("user%d@example.com", id),
		Role:  domain.RoleCustomer,
	}
	for _, opt := range opts {
		opt(&identity)
	}
	return identity
}

// WithIdentityID sets the subject id
func WithIdentityID(id int64) func(*domain.Identity) {
	return func(i *domain.Identity) {
		i.ID = id
	}
}

// WithRole sets the identity role
func WithRole(role string) func(*domain.Identity) {
	return func(i *domain.Identity) {
		i.Role = role
	}
}

// ContextFor returns a background context carrying identity.
func ContextFor(identity domain.Identity) context.Context {
	return auth.WithIdentity(context.Background(), identity)
}

// NewTestBusiness creates a business owned by ownerID.
func NewTestBusiness(ownerID int64, opts ...func(*domain.Business)) *domain.Business {
	id := nextID()
	b := &domain.Business{
		ID:           id,
		OwnerID:      ownerID,
		Name:         fmt.Sprintf("Test Business %d", id),
		ProfileViews: 100,
		CreatedAt:    time.Now().UTC().AddDate(-1, 0, 0),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithBusinessID sets the business ID
func WithBusinessID(id int64) func(*domain.Business) {
	return func(b *domain.Business) {
		b.ID = id
	}
}

// WithProfileViews sets the lifetime profile view count
func WithProfileViews(views int) func(*domain.Business) {
	return func(b *domain.Business) {
		b.ProfileViews = views
	}
}

// NewTestRoom creates a room between businessID and userID.
func NewTestRoom(businessID, userID int64) *domain.ChatRoom {
	return &domain.ChatRoom{
		ID:         nextID(),
		BusinessID: businessID,
		UserID:     userID,
		CreatedAt:  time.Now().UTC(),
	}
}

// NewTestAppointment creates a booking of service created at createdAt.
func NewTestAppointment(businessID int64, service string, createdAt time.Time) *domain.Appointment {
	return &domain.Appointment{
		ID:          nextID(),
		BusinessID:  businessID,
		UserID:      nextID(),
		ServiceName: service,
		Status:      "confirmed",
		ScheduledAt: createdAt.Add(48 * time.Hour),
		CreatedAt:   createdAt,
	}
}

// NewTestReview creates a review created at createdAt.
func NewTestReview(businessID int64, rating int, createdAt time.Time) *domain.Review {
	return &domain.Review{
		ID:         nextID(),
		BusinessID: businessID,
		UserID:     nextID(),
		Rating:     rating,
		CreatedAt:  createdAt,
	}
}

// DaysAgo returns the current UTC time minus n days.
func DaysAgo(n int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -n)
}

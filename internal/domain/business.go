package domain

import (
	"context"
	"time"
)

// Business is the subset of a directory listing the core reads.
type Business struct {
	ID           int64     `json:"id"`
	OwnerID      int64     `json:"ownerId"`
	Name         string    `json:"name"`
	ProfileViews int       `json:"profileViews"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Review is a customer review of a business.
type Review struct {
	ID         int64     `json:"id"`
	BusinessID int64     `json:"businessId"`
	UserID     int64     `json:"userId"`
	Rating     int       `json:"rating"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Appointment is a booking of one of the business's services.
type Appointment struct {
	ID          int64     `json:"id"`
	BusinessID  int64     `json:"businessId"`
	UserID      int64     `json:"userId"`
	ServiceName string    `json:"serviceName"`
	Status      string    `json:"status"`
	ScheduledAt time.Time `json:"scheduledAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

type BusinessRepository interface {
	GetByID(ctx context.Context, id int64) (*Business, error)
}

type ReviewRepository interface {
	GetByBusinessID(ctx context.Context, businessID int64) ([]*Review, error)
}

type AppointmentRepository interface {
	GetByBusinessID(ctx context.Context, businessID int64) ([]*Appointment, error)
}

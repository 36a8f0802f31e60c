package postgres

import (
	"context"
	"database/sql"
	"errors"

	"localbiz-chat/internal/domain"
)

const (
	selectBusinessQuery = `
		SELECT id, owner_id, name, profile_views, created_at
		FROM businesses
		WHERE id = $1
	`
	selectReviewsByBusinessQuery = `
		SELECT id, business_id, user_id, rating, created_at
		FROM reviews
		WHERE business_id = $1
		ORDER BY created_at, id
	`
	selectAppointmentsByBusinessQuery = `
		SELECT id, business_id, user_id, service_name, status, scheduled_at, created_at
		FROM appointments
		WHERE business_id = $1
		ORDER BY created_at, id
	`
)

// BusinessRepository implements domain.BusinessRepository for PostgreSQL
type BusinessRepository struct {
	db *sql.DB
}

func NewBusinessRepository(db *sql.DB) *BusinessRepository {
	return &BusinessRepository{db: db}
}

// GetByID retrieves a business by ID
func (r *BusinessRepository) GetByID(ctx context.Context, id int64) (*domain.Business, error) {
	b := &domain.Business{}
	err := r.db.QueryRowContext(ctx, selectBusinessQuery, id).Scan(
		&b.ID,
		&b.OwnerID,
		&b.Name,
		&b.ProfileViews,
		&b.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBusinessNotFound
	}
	if err != nil {
		return nil, domain.StorageError("failed to get business", err)
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

// ReviewRepository implements domain.ReviewRepository for PostgreSQL
type ReviewRepository struct {
	db *sql.DB
}

func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) GetByBusinessID(ctx context.Context, businessID int64) ([]*domain.Review, error) {
	rows, err := r.db.QueryContext(ctx, selectReviewsByBusinessQuery, businessID)
	if err != nil {
		return nil, domain.StorageError("failed to query reviews", err)
	}
	defer rows.Close()

	reviews := make([]*domain.Review, 0)
	for rows.Next() {
		rv := &domain.Review{}
		if err := rows.Scan(&rv.ID, &rv.BusinessID, &rv.UserID, &rv.Rating, &rv.CreatedAt); err != nil {
			return nil, domain.StorageError("failed to scan review", err)
		}
		rv.CreatedAt = rv.CreatedAt.UTC()
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("error iterating reviews", err)
	}
	return reviews, nil
}

// AppointmentRepository implements domain.AppointmentRepository for PostgreSQL
type AppointmentRepository struct {
	db *sql.DB
}

func NewAppointmentRepository(db *sql.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

func (r *AppointmentRepository) GetByBusinessID(ctx context.Context, businessID int64) ([]*domain.Appointment, error) {
	rows, err := r.db.QueryContext(ctx, selectAppointmentsByBusinessQuery, businessID)
	if err != nil {
		return nil, domain.StorageError("failed to query appointments", err)
	}
	defer rows.Close()

	appointments := make([]*domain.Appointment, 0)
	for rows.Next() {
		a := &domain.Appointment{}
		err := rows.Scan(
			&a.ID,
			&a.BusinessID,
			&a.UserID,
			&a.ServiceName,
			&a.Status,
			&a.ScheduledAt,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, domain.StorageError("failed to scan appointment", err)
		}
		a.ScheduledAt = a.ScheduledAt.UTC()
		a.CreatedAt = a.CreatedAt.UTC()
		appointments = append(appointments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("error iterating appointments", err)
	}
	return appointments, nil
}

package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"localbiz-chat/internal/analytics"
	"localbiz-chat/internal/auth"
	"localbiz-chat/internal/domain"
	"localbiz-chat/internal/observability"
)

// MessageSource lists every message across a business's rooms.
type MessageSource interface {
	GetMessagesForBusiness(ctx context.Context, businessID int64) ([]*domain.ChatMessage, error)
}

type AnalyticsService struct {
	businesses   domain.BusinessRepository
	reviews      domain.ReviewRepository
	appointments domain.AppointmentRepository
	messages     MessageSource
	now          func() time.Time
}

func NewAnalyticsService(
	businesses domain.BusinessRepository,
	reviews domain.ReviewRepository,
	appointments domain.AppointmentRepository,
	messages MessageSource,
) *AnalyticsService {
	return &AnalyticsService{
		businesses:   businesses,
		reviews:      reviews,
		appointments: appointments,
		messages:     messages,
		now:          time.Now,
	}
}

// ForViewer computes analytics for businessID on behalf of the identity in
// ctx, which must own the business or be an admin.
func (s *AnalyticsService) ForViewer(ctx context.Context, businessID int64, tr analytics.TimeRange) (*analytics.Summary, error) {
	identity, err := auth.IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	business, err := authorizeBusiness(ctx, s.businesses, identity, businessID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, business, tr)
}

// GetBusinessAnalytics computes analytics for businessID without an
// ownership check. Callers are trusted.
func (s *AnalyticsService) GetBusinessAnalytics(ctx context.Context, businessID int64, tr analytics.TimeRange) (*analytics.Summary, error) {
	business, err := s.businesses.GetByID(ctx, businessID)
	if err != nil {
		return nil, classifyStorage("get business", err)
	}
	return s.summarize(ctx, business, tr)
}

func (s *AnalyticsService) summarize(ctx context.Context, business *domain.Business, tr analytics.TimeRange) (*analytics.Summary, error) {
	start := time.Now()
	defer func() {
		observability.AnalyticsDuration.WithLabelValues(string(tr)).Observe(time.Since(start).Seconds())
	}()

	var (
		reviews      []*domain.Review
		appointments []*domain.Appointment
		messages     []*domain.ChatMessage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		reviews, err = s.reviews.GetByBusinessID(gctx, business.ID)
		return classifyStorage("get reviews", err)
	})
	g.Go(func() error {
		var err error
		appointments, err = s.appointments.GetByBusinessID(gctx, business.ID)
		return classifyStorage("get appointments", err)
	})
	g.Go(func() error {
		var err error
		messages, err = s.messages.GetMessagesForBusiness(gctx, business.ID)
		return classifyStorage("get messages", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	window := analytics.WindowFor(tr, s.now())

	reviews = analytics.Filter(window, reviews, func(r *domain.Review) time.Time { return r.CreatedAt })
	appointments = analytics.Filter(window, appointments, func(a *domain.Appointment) time.Time { return a.CreatedAt })
	messages = analytics.Filter(window, messages, func(m *domain.ChatMessage) time.Time { return m.CreatedAt })

	summary := &analytics.Summary{
		BusinessID:   business.ID,
		BusinessName: business.Name,
		TimeRange:    tr,
		Window:       window,
		Overview: analytics.Overview{
			ProfileViews: analytics.MetricFor(business.ProfileViews),
			Appointments: analytics.MetricFor(len(appointments)),
			Reviews:      analytics.MetricFor(len(reviews)),
			Messages:     analytics.MetricFor(len(messages)),
		},
		TopServices:    analytics.TopServices(appointments),
		Demographics:   analytics.Demographics(),
		TrafficSources: analytics.TrafficSources(),
	}

	observability.FromContext(ctx).Debug("analytics computed",
		slog.Int64("business_id", business.ID),
		slog.String("time_range", string(tr)),
		slog.Int("appointments", len(appointments)),
		slog.Int("reviews", len(reviews)),
		slog.Int("messages", len(messages)))
	return summary, nil
}

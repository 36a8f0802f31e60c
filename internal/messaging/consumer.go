package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"localbiz-chat/internal/domain"
	"localbiz-chat/internal/websocket"
)

const deliverTimeout = 5 * time.Second

var errMalformedNotification = errors.New("malformed notification")

// UserNotifier pushes a frame to every connection of a user.
type UserNotifier interface {
	NotifyUser(ctx context.Context, userID int64, payload []byte) error
}

// NotificationConsumer delivers notifications from the broker to user groups.
type NotificationConsumer struct {
	rmq      *RabbitMQ
	notifier UserNotifier
}

func NewNotificationConsumer(rmq *RabbitMQ, notifier UserNotifier) *NotificationConsumer {
	return &NotificationConsumer{
		rmq:      rmq,
		notifier: notifier,
	}
}

// Start consumes until ctx is cancelled or the broker closes the channel.
func (c *NotificationConsumer) Start(ctx context.Context) error {
	msgs, err := c.rmq.ConsumeNotifications()
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				slog.Info("stopping notification consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Warn("notification consumer channel closed")
					return
				}
				c.process(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *NotificationConsumer) process(ctx context.Context, msg amqp.Delivery) {
	if err := c.deliver(ctx, msg.Body); err != nil {
		level := slog.LevelError
		if errors.Is(err, errMalformedNotification) {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "dropping notification",
			slog.String("error", err.Error()),
			slog.Int("body_size", len(msg.Body)))
		// Notifications are best-effort; requeueing would spin while the
		// broadcaster is down.
		if err := msg.Nack(false, false); err != nil {
			slog.Error("failed to nack notification", slog.String("error", err.Error()))
		}
		return
	}
	if err := msg.Ack(false); err != nil {
		slog.Error("failed to ack notification", slog.String("error", err.Error()))
	}
}

// deliver decodes one notification body and pushes it to user:{userId}.
func (c *NotificationConsumer) deliver(ctx context.Context, body []byte) error {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return fmt.Errorf("%w: %w", errMalformedNotification, err)
	}
	if n.UserID <= 0 || len(n.Payload) == 0 {
		return fmt.Errorf("%w: userId and payload are required", errMalformedNotification)
	}

	frame, err := websocket.NotificationFrame(n.Payload)
	if err != nil {
		return fmt.Errorf("%w: %w", errMalformedNotification, err)
	}

	deliverCtx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()
	if err := c.notifier.NotifyUser(deliverCtx, n.UserID, frame); err != nil {
		return err
	}

	slog.Debug("notification delivered",
		slog.String("group", domain.UserGroup(n.UserID)))
	return nil
}

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"localbiz-chat/internal/domain"
)

const (
	EventsExchange        = "chat.events"
	NotificationsExchange = "chat.notifications"
	NotificationsQueue    = "chat.notifications.delivery"

	MessageCreatedRoutingKey = "chat.message.created"
)

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	// publishMu serializes publishes on the shared channel.
	publishMu sync.Mutex
}

// Notification is a push addressed to every connection of one user.
type Notification struct {
	UserID  int64           `json:"userId"`
	Payload json.RawMessage `json:"payload"`
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry dials with exponential backoff until maxElapsed has
// passed or ctx is cancelled.
func NewRabbitMQWithRetry(ctx context.Context, url string, maxElapsed time.Duration) (*RabbitMQ, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = maxElapsed

	var rmq *RabbitMQ
	operation := func() error {
		var err error
		rmq, err = NewRabbitMQ(url)
		return err
	}
	notify := func(err error, next time.Duration) {
		slog.Warn("rabbitmq not reachable, retrying",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", next))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, err
	}
	return rmq, nil
}

func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		EventsExchange, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	); err != nil {
		return fmt.Errorf("failed to declare events exchange: %w", err)
	}

	if err := r.channel.ExchangeDeclare(
		NotificationsExchange, // name
		"fanout",              // type
		true,                  // durable
		false,                 // auto-deleted
		false,                 // internal
		false,                 // no-wait
		nil,                   // arguments
	); err != nil {
		return fmt.Errorf("failed to declare notifications exchange: %w", err)
	}

	// One shared queue: each notification is consumed by a single process,
	// which fans it out through the broadcaster.
	if _, err := r.channel.QueueDeclare(
		NotificationsQueue, // name
		true,               // durable
		false,              // delete when unused
		false,              // exclusive
		false,              // no-wait
		nil,                // arguments
	); err != nil {
		return fmt.Errorf("failed to declare %s queue: %w", NotificationsQueue, err)
	}

	if err := r.channel.QueueBind(
		NotificationsQueue,    // queue name
		"",                    // routing key
		NotificationsExchange, // exchange
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind %s queue: %w", NotificationsQueue, err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

func (r *RabbitMQ) publish(ctx context.Context, exchange, key string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	return r.channel.PublishWithContext(
		ctx,
		exchange,
		key,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
}

// PublishMessageCreated announces a stored chat message on the events exchange.
func (r *RabbitMQ) PublishMessageCreated(ctx context.Context, event *domain.MessageCreatedEvent) error {
	if err := r.publish(ctx, EventsExchange, MessageCreatedRoutingKey, event); err != nil {
		return fmt.Errorf("failed to publish message event: %w", err)
	}

	slog.Debug("published message event",
		slog.Int64("message_id", event.MessageID),
		slog.Int64("room_id", event.RoomID))
	return nil
}

// PublishNotification queues a push for every connection of n.UserID.
func (r *RabbitMQ) PublishNotification(ctx context.Context, n *Notification) error {
	if err := r.publish(ctx, NotificationsExchange, "", n); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

func (r *RabbitMQ) ConsumeNotifications() (<-chan amqp.Delivery, error) {
	msgs, err := r.channel.Consume(
		NotificationsQueue,
		"",
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming notifications",
		slog.String("queue", NotificationsQueue))
	return msgs, nil
}

// Ping reports whether the broker connection is still open.
func (r *RabbitMQ) Ping(ctx context.Context) error {
	if r.IsClosed() {
		return fmt.Errorf("rabbitmq connection closed")
	}
	return nil
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

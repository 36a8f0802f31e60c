package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// BroadcastChannel is the Redis pub/sub channel shared by every process.
const BroadcastChannel = "chat:broadcast"

type backplaneMessage struct {
	Group   string          `json:"group"`
	Payload json.RawMessage `json:"payload"`
}

// RedisBackplane relays group broadcasts through Redis so that each process
// delivers them to its own local connections. It must be paired with a
// registry shared across processes.
type RedisBackplane struct {
	client redis.UniversalClient
	hub    *Hub
}

func NewRedisBackplane(client redis.UniversalClient, hub *Hub) *RedisBackplane {
	return &RedisBackplane{client: client, hub: hub}
}

// Broadcast publishes to every process, including this one. payload must be
// a JSON document.
func (b *RedisBackplane) Broadcast(ctx context.Context, group string, payload []byte) error {
	data, err := json.Marshal(backplaneMessage{Group: group, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode backplane message: %w", err)
	}
	if err := b.client.Publish(ctx, BroadcastChannel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", BroadcastChannel, err)
	}
	return nil
}

// Run subscribes to the broadcast channel and hands each message to the
// local hub until ctx is cancelled.
func (b *RedisBackplane) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, BroadcastChannel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before reporting ready.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", BroadcastChannel, err)
	}
	slog.Info("redis backplane subscribed", slog.String("channel", BroadcastChannel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var bm backplaneMessage
			if err := json.Unmarshal([]byte(msg.Payload), &bm); err != nil {
				slog.Warn("discarding malformed backplane message", slog.String("error", err.Error()))
				continue
			}
			if err := b.hub.Broadcast(ctx, bm.Group, bm.Payload); err != nil {
				slog.Error("failed to deliver backplane message",
					slog.String("group", bm.Group),
					slog.String("error", err.Error()))
			}
		}
	}
}

package presence

import (
	"context"
	"fmt"
	"log/slog"

	"localbiz-chat/internal/auth"
	"localbiz-chat/internal/domain"
	"localbiz-chat/internal/observability"
)

// Manager applies connection lifecycle events to a Registry.
type Manager struct {
	registry Registry
}

func NewManager(registry Registry) *Manager {
	return &Manager{registry: registry}
}

// Registry exposes the underlying registry to broadcasters.
func (m *Manager) Registry() Registry {
	return m.registry
}

// OnConnect adds the connection to its user group. A connection without a
// resolvable identity stays ungrouped; rejecting it is the transport's call.
func (m *Manager) OnConnect(ctx context.Context, connID string) {
	logger := observability.FromContext(ctx).With(slog.String("conn_id", connID))

	identity, err := auth.IdentityFromContext(ctx)
	if err != nil {
		logger.Warn("connection has no identity, skipping user group",
			slog.String("error", err.Error()))
		observability.PresenceOperations.WithLabelValues("connect", "skipped").Inc()
		return
	}

	group := domain.UserGroup(identity.ID)
	if err := m.registry.Add(ctx, group, connID); err != nil {
		logger.Error("failed to add connection to user group",
			slog.String("group", group),
			slog.String("error", err.Error()))
		observability.PresenceOperations.WithLabelValues("connect", "error").Inc()
		return
	}

	observability.PresenceOperations.WithLabelValues("connect", "ok").Inc()
	logger.Info("connection added to user group", slog.String("group", group))
}

// OnDisconnect removes the connection from its user group and from every room
// group it is still part of. Calling it for an unknown connection is a no-op.
func (m *Manager) OnDisconnect(ctx context.Context, connID string) {
	logger := observability.FromContext(ctx).With(slog.String("conn_id", connID))

	if identity, err := auth.IdentityFromContext(ctx); err == nil {
		group := domain.UserGroup(identity.ID)
		if err := m.registry.Remove(ctx, group, connID); err != nil {
			logger.Error("failed to remove connection from user group",
				slog.String("group", group),
				slog.String("error", err.Error()))
		}
	}

	groups, err := m.registry.GroupsOf(ctx, connID)
	if err != nil {
		logger.Error("failed to list connection groups", slog.String("error", err.Error()))
		observability.PresenceOperations.WithLabelValues("disconnect", "error").Inc()
		return
	}
	for _, group := range groups {
		if err := m.registry.Remove(ctx, group, connID); err != nil {
			logger.Error("failed to remove connection from group",
				slog.String("group", group),
				slog.String("error", err.Error()))
		}
	}

	observability.PresenceOperations.WithLabelValues("disconnect", "ok").Inc()
	logger.Info("connection removed from groups", slog.Int("groups", len(groups)))
}

// JoinRoom adds the connection to room:{roomID}. Any authenticated caller may
// join any room id; participation is not checked here.
func (m *Manager) JoinRoom(ctx context.Context, connID string, roomID int64) error {
	if _, err := auth.IdentityFromContext(ctx); err != nil {
		observability.PresenceOperations.WithLabelValues("join", "unauthorized").Inc()
		return fmt.Errorf("%w: join room requires an identity", domain.ErrUnauthorized)
	}

	group := domain.RoomGroup(roomID)
	if err := m.registry.Add(ctx, group, connID); err != nil {
		observability.PresenceOperations.WithLabelValues("join", "error").Inc()
		return domain.StorageError("join room", err)
	}

	observability.PresenceOperations.WithLabelValues("join", "ok").Inc()
	observability.FromContext(ctx).Debug("connection joined room",
		slog.String("conn_id", connID),
		slog.Int64("room_id", roomID))
	return nil
}

// LeaveRoom removes the connection from room:{roomID}. Idempotent.
func (m *Manager) LeaveRoom(ctx context.Context, connID string, roomID int64) error {
	if err := m.registry.Remove(ctx, domain.RoomGroup(roomID), connID); err != nil {
		observability.PresenceOperations.WithLabelValues("leave", "error").Inc()
		return domain.StorageError("leave room", err)
	}
	observability.PresenceOperations.WithLabelValues("leave", "ok").Inc()
	return nil
}

// InRoom reports whether the connection has joined room:{roomID}.
func (m *Manager) InRoom(ctx context.Context, connID string, roomID int64) (bool, error) {
	ok, err := m.registry.IsMember(ctx, domain.RoomGroup(roomID), connID)
	if err != nil {
		return false, domain.StorageError("check room membership", err)
	}
	return ok, nil
}

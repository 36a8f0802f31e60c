package presence

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const (
	groupKeyPrefix = "presence:group:"
	connKeyPrefix  = "presence:conn:"
)

// RedisRegistry stores memberships in Redis sets so that several processes
// share one view of every group. Each process still delivers only to its own
// connections.
type RedisRegistry struct {
	client redis.UniversalClient
}

func NewRedisRegistry(client redis.UniversalClient) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) Add(ctx context.Context, group, connID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, groupKeyPrefix+group, connID)
		pipe.SAdd(ctx, connKeyPrefix+connID, group)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add %s to %s: %w", connID, group, err)
	}
	return nil
}

func (r *RedisRegistry) Remove(ctx context.Context, group, connID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, groupKeyPrefix+group, connID)
		pipe.SRem(ctx, connKeyPrefix+connID, group)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s from %s: %w", connID, group, err)
	}
	return nil
}

func (r *RedisRegistry) Members(ctx context.Context, group string) ([]string, error) {
	members, err := r.client.SMembers(ctx, groupKeyPrefix+group).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list members of %s: %w", group, err)
	}
	sort.Strings(members)
	return members, nil
}

func (r *RedisRegistry) IsMember(ctx context.Context, group, connID string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, groupKeyPrefix+group, connID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check membership of %s in %s: %w", connID, group, err)
	}
	return ok, nil
}

func (r *RedisRegistry) GroupsOf(ctx context.Context, connID string) ([]string, error) {
	groups, err := r.client.SMembers(ctx, connKeyPrefix+connID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list groups of %s: %w", connID, err)
	}
	sort.Strings(groups)
	return groups, nil
}

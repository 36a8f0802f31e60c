// Package presence tracks which live connections belong to which broadcast groups.
package presence

import (
	"context"
	"sort"
	"sync"
)

// Registry maps live connection ids to group keys (user:{id}, room:{id}).
// Implementations must be safe for concurrent use; Add and Remove are idempotent.
type Registry interface {
	Add(ctx context.Context, group, connID string) error
	Remove(ctx context.Context, group, connID string) error
	Members(ctx context.Context, group string) ([]string, error)
	IsMember(ctx context.Context, group, connID string) (bool, error)
	GroupsOf(ctx context.Context, connID string) ([]string, error)
}

// MemoryRegistry is a process-local Registry.
type MemoryRegistry struct {
	mu     sync.RWMutex
	groups map[string]map[string]struct{}
	conns  map[string]map[string]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		groups: make(map[string]map[string]struct{}),
		conns:  make(map[string]map[string]struct{}),
	}
}

func (r *MemoryRegistry) Add(_ context.Context, group, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[group]
	if !ok {
		members = make(map[string]struct{})
		r.groups[group] = members
	}
	members[connID] = struct{}{}

	joined, ok := r.conns[connID]
	if !ok {
		joined = make(map[string]struct{})
		r.conns[connID] = joined
	}
	joined[group] = struct{}{}
	return nil
}

func (r *MemoryRegistry) Remove(_ context.Context, group, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.groups[group]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.groups, group)
		}
	}
	if joined, ok := r.conns[connID]; ok {
		delete(joined, group)
		if len(joined) == 0 {
			delete(r.conns, connID)
		}
	}
	return nil
}

func (r *MemoryRegistry) Members(_ context.Context, group string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedKeys(r.groups[group]), nil
}

func (r *MemoryRegistry) IsMember(_ context.Context, group, connID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.groups[group][connID]
	return ok, nil
}

func (r *MemoryRegistry) GroupsOf(_ context.Context, connID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedKeys(r.conns[connID]), nil
}

// GroupCount returns the number of non-empty groups.
func (r *MemoryRegistry) GroupCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

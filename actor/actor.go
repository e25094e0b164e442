// Package actor defines the actor resolution contract: turning role tags
// into sets of eligible users and validating user identifiers. The engine
// uses it to decide whether an optional step is skippable, who a task is
// assigned to, and whether an escalation target exists.
//
// Implementations typically front a directory or identity service. The
// StaticResolver is an in-memory implementation for tests and development.
package actor

import (
	"context"
	"sync"
)

// Resolver resolves approver selectors against the identity backend.
type Resolver interface {
	// ResolveRole returns the user IDs eligible for the given role tag
	// within a tenant. An empty slice (no error) means the role resolves
	// to no one.
	ResolveRole(ctx context.Context, tenantID, role string) ([]string, error)

	// UserActive reports whether the given user exists and is active.
	UserActive(ctx context.Context, userID string) (bool, error)
}

// StaticResolver is a fixed, in-memory Resolver. Safe for concurrent use.
type StaticResolver struct {
	mu    sync.RWMutex
	roles map[string][]string // key: tenantID + "/" + role
	users map[string]bool
}

// NewStaticResolver returns an empty StaticResolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{
		roles: make(map[string][]string),
		users: make(map[string]bool),
	}
}

// AddUser registers an active user.
func (r *StaticResolver) AddUser(userID string) *StaticResolver {
	r.mu.Lock()
	r.users[userID] = true
	r.mu.Unlock()
	return r
}

// DeactivateUser marks a user inactive without removing role memberships.
func (r *StaticResolver) DeactivateUser(userID string) *StaticResolver {
	r.mu.Lock()
	r.users[userID] = false
	r.mu.Unlock()
	return r
}

// Grant adds users to a role within a tenant, registering them as active.
func (r *StaticResolver) Grant(tenantID, role string, userIDs ...string) *StaticResolver {
	r.mu.Lock()
	key := tenantID + "/" + role
	r.roles[key] = append(r.roles[key], userIDs...)
	for _, u := range userIDs {
		if _, known := r.users[u]; !known {
			r.users[u] = true
		}
	}
	r.mu.Unlock()
	return r
}

// ResolveRole implements Resolver. Only active users are returned.
func (r *StaticResolver) ResolveRole(_ context.Context, tenantID, role string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.roles[tenantID+"/"+role]
	eligible := make([]string, 0, len(members))
	for _, u := range members {
		if r.users[u] {
			eligible = append(eligible, u)
		}
	}
	return eligible, nil
}

// UserActive implements Resolver.
func (r *StaticResolver) UserActive(_ context.Context, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.users[userID], nil
}

// Package memory provides a fully in-memory store backend. Safe for
// concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/approve"
	"github.com/xraph/approve/definition"
	"github.com/xraph/approve/event"
	"github.com/xraph/approve/id"
	"github.com/xraph/approve/instance"
	"github.com/xraph/approve/task"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ definition.Store = (*Store)(nil)
	_ instance.Store   = (*Store)(nil)
	_ task.Store       = (*Store)(nil)
	_ event.Store      = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	definitions map[string]*definition.Definition
	instances   map[string]*instance.Instance
	tasks       map[string]*task.Task
	events      map[string]*event.Event
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		definitions: make(map[string]*definition.Definition),
		instances:   make(map[string]*instance.Instance),
		tasks:       make(map[string]*task.Task),
		events:      make(map[string]*event.Event),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Definition Store
// ──────────────────────────────────────────────────

// CreateDefinition persists a new definition with its steps.
func (m *Store) CreateDefinition(_ context.Context, def *definition.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.definitions[def.ID.String()] = copyDefinition(def)
	return nil
}

// GetDefinition retrieves a definition by ID.
func (m *Store) GetDefinition(_ context.Context, defID id.DefinitionID) (*definition.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	def, ok := m.definitions[defID.String()]
	if !ok {
		return nil, approve.ErrDefinitionNotFound
	}
	return copyDefinition(def), nil
}

// UpdateDefinition persists changes to an existing definition.
func (m *Store) UpdateDefinition(_ context.Context, def *definition.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := def.ID.String()
	if _, ok := m.definitions[key]; !ok {
		return approve.ErrDefinitionNotFound
	}
	cp := copyDefinition(def)
	cp.UpdatedAt = time.Now().UTC()
	m.definitions[key] = cp
	return nil
}

// ListDefinitions returns definitions matching the given options,
// ordered by name then version ascending.
func (m *Store) ListDefinitions(_ context.Context, opts definition.ListOpts) ([]*definition.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*definition.Definition, 0, len(m.definitions))
	for _, def := range m.definitions {
		if opts.TenantID != "" && def.TenantID != opts.TenantID {
			continue
		}
		if opts.WorkflowType != "" && def.WorkflowType != opts.WorkflowType {
			continue
		}
		if opts.Name != "" && def.Name != opts.Name {
			continue
		}
		if opts.ActiveOnly && !def.Active {
			continue
		}
		result = append(result, copyDefinition(def))
	}

	sort.Slice(result, func(i, k int) bool {
		if result[i].Name != result[k].Name {
			return result[i].Name < result[k].Name
		}
		return result[i].Version < result[k].Version
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Instance Store
// ──────────────────────────────────────────────────

// CreateInstance persists a new instance, enforcing the
// single-running-instance invariant inside the store lock.
func (m *Store) CreateInstance(_ context.Context, inst *instance.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, other := range m.instances {
		if other.Status != instance.StatusRunning {
			continue
		}
		if other.DefinitionID.String() == inst.DefinitionID.String() &&
			other.EntityID == inst.EntityID &&
			other.EntityType == inst.EntityType {
			return approve.ErrDuplicateRunningInstance
		}
	}

	cp := *inst
	m.instances[inst.ID.String()] = &cp
	return nil
}

// GetInstance retrieves an instance by ID.
func (m *Store) GetInstance(_ context.Context, instID id.InstanceID) (*instance.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instances[instID.String()]
	if !ok {
		return nil, approve.ErrInstanceNotFound
	}
	cp := *inst
	return &cp, nil
}

// UpdateInstance persists changes to an existing instance.
func (m *Store) UpdateInstance(_ context.Context, inst *instance.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := inst.ID.String()
	if _, ok := m.instances[key]; !ok {
		return approve.ErrInstanceNotFound
	}
	cp := *inst
	cp.UpdatedAt = time.Now().UTC()
	m.instances[key] = &cp
	return nil
}

// SaveInstanceTx persists an instance together with updates to its tasks
// under one lock acquisition. Everything is validated before the first
// write, so the cascade is all-or-nothing.
func (m *Store) SaveInstanceTx(_ context.Context, inst *instance.Instance, tasks []*task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := inst.ID.String()
	if _, ok := m.instances[key]; !ok {
		return approve.ErrInstanceNotFound
	}
	for _, t := range tasks {
		if _, ok := m.tasks[t.ID.String()]; !ok {
			return approve.ErrTaskNotFound
		}
	}

	now := time.Now().UTC()
	cp := *inst
	cp.UpdatedAt = now
	m.instances[key] = &cp
	for _, t := range tasks {
		tc := *t
		tc.UpdatedAt = now
		m.tasks[t.ID.String()] = &tc
	}
	return nil
}

// ListInstances returns instances matching the given options, ordered by
// start time.
func (m *Store) ListInstances(_ context.Context, opts instance.ListOpts) ([]*instance.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*instance.Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		if opts.TenantID != "" && inst.TenantID != opts.TenantID {
			continue
		}
		if opts.Status != "" && inst.Status != opts.Status {
			continue
		}
		if opts.EntityID != "" && inst.EntityID != opts.EntityID {
			continue
		}
		if opts.EntityType != "" && inst.EntityType != opts.EntityType {
			continue
		}
		if !opts.DefinitionID.IsNil() && inst.DefinitionID.String() != opts.DefinitionID.String() {
			continue
		}
		cp := *inst
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].StartedAt.Before(result[k].StartedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Task Store
// ──────────────────────────────────────────────────

// CreateTask persists a new task.
func (m *Store) CreateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *t
	m.tasks[t.ID.String()] = &cp
	return nil
}

// GetTask retrieves a task by ID.
func (m *Store) GetTask(_ context.Context, taskID id.TaskID) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return nil, approve.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// UpdateTask persists changes to an existing task.
func (m *Store) UpdateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.ID.String()
	if _, ok := m.tasks[key]; !ok {
		return approve.ErrTaskNotFound
	}
	cp := *t
	cp.UpdatedAt = time.Now().UTC()
	m.tasks[key] = &cp
	return nil
}

// ListTasksByInstance returns every task owned by an instance, ordered by
// creation time.
func (m *Store) ListTasksByInstance(_ context.Context, instanceID id.InstanceID) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := instanceID.String()
	var result []*task.Task
	for _, t := range m.tasks {
		if t.InstanceID.String() != key {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// ListTasksByAssignee returns tasks assigned to a user.
func (m *Store) ListTasksByAssignee(_ context.Context, assignee string, opts task.ListOpts) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*task.Task
	for _, t := range m.tasks {
		if t.Assignee != assignee {
			continue
		}
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		if opts.TenantID != "" && t.TenantID != opts.TenantID {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// ListOpenTasksDueBefore returns open tasks whose due-date has elapsed at
// the given instant, ordered by due-date ascending.
func (m *Store) ListOpenTasksDueBefore(_ context.Context, at time.Time, limit int) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*task.Task
	for _, t := range m.tasks {
		if !t.Status.Open() {
			continue
		}
		if t.DueDate == nil || t.DueDate.After(at) {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].DueDate.Before(*result[k].DueDate)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// ──────────────────────────────────────────────────
// Event Store
// ──────────────────────────────────────────────────

// PublishEvent persists a new event.
func (m *Store) PublishEvent(_ context.Context, evt *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *evt
	m.events[evt.ID.String()] = &cp
	return nil
}

// SubscribeEvent waits for an unacked event matching the given name.
// Poll-based: loops with 10ms sleep until an event is available or timeout.
func (m *Store) SubscribeEvent(ctx context.Context, name string, timeout time.Duration) (*event.Event, error) {
	deadline := time.Now().Add(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if time.Now().After(deadline) {
			return nil, nil
		}

		m.mu.RLock()
		for _, evt := range m.events {
			if evt.Name == name && !evt.Acked {
				cp := *evt
				m.mu.RUnlock()
				return &cp, nil
			}
		}
		m.mu.RUnlock()

		// Brief sleep to avoid busy-waiting.
		time.Sleep(10 * time.Millisecond)
	}
}

// AckEvent acknowledges an event, marking it as consumed.
func (m *Store) AckEvent(_ context.Context, eventID id.EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	evt, ok := m.events[eventID.String()]
	if !ok {
		return approve.ErrEventNotFound
	}
	evt.Acked = true
	return nil
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// copyDefinition deep-copies a definition including its step slice.
func copyDefinition(def *definition.Definition) *definition.Definition {
	cp := *def
	cp.Steps = make([]definition.Step, len(def.Steps))
	copy(cp.Steps, def.Steps)
	return &cp
}

// paginate applies offset and limit to a sorted result slice.
func paginate[T any](result []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(result) {
			return nil
		}
		result = result[offset:]
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

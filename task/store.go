package task

import (
	"context"
	"time"

	"github.com/xraph/approve/id"
)

// ListOpts filters task listings.
type ListOpts struct {
	Status   Status
	TenantID string
	Limit    int
	Offset   int
}

// Store defines the persistence contract for tasks.
type Store interface {
	// CreateTask persists a new task.
	CreateTask(ctx context.Context, t *Task) error

	// GetTask retrieves a task by ID.
	GetTask(ctx context.Context, taskID id.TaskID) (*Task, error)

	// UpdateTask persists changes to an existing task.
	UpdateTask(ctx context.Context, t *Task) error

	// ListTasksByInstance returns every task owned by an instance,
	// ordered by creation time.
	ListTasksByInstance(ctx context.Context, instanceID id.InstanceID) ([]*Task, error)

	// ListTasksByAssignee returns tasks assigned to a user.
	ListTasksByAssignee(ctx context.Context, assignee string, opts ListOpts) ([]*Task, error)

	// ListOpenTasksDueBefore returns Pending and InProgress tasks whose
	// due-date is set and elapsed at the given instant. The escalation
	// scheduler drives its scan from this query.
	ListOpenTasksDueBefore(ctx context.Context, at time.Time, limit int) ([]*Task, error)
}

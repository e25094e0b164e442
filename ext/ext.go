// Package ext defines the extension system for Approve.
// Extensions are notified of lifecycle events (workflow started, task
// escalated, etc.) and can react to them — notifications, metrics,
// audit trails, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/approve/instance"
	"github.com/xraph/approve/task"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Workflow lifecycle hooks
// ──────────────────────────────────────────────────

// WorkflowStarted is called after a workflow instance is created and its
// first step's tasks are seeded.
type WorkflowStarted interface {
	OnWorkflowStarted(ctx context.Context, inst *instance.Instance) error
}

// WorkflowCompleted is called after every required step of an instance
// has been approved.
type WorkflowCompleted interface {
	OnWorkflowCompleted(ctx context.Context, inst *instance.Instance, elapsed time.Duration) error
}

// WorkflowCancelled is called after an instance is cancelled, whether by
// an explicit request or a rejected required step.
type WorkflowCancelled interface {
	OnWorkflowCancelled(ctx context.Context, inst *instance.Instance, reason string) error
}

// WorkflowFailed is called when an instance fails terminally, such as a
// required step whose approver cannot be resolved.
type WorkflowFailed interface {
	OnWorkflowFailed(ctx context.Context, inst *instance.Instance, reason string) error
}

// ──────────────────────────────────────────────────
// Task lifecycle hooks
// ──────────────────────────────────────────────────

// TaskCreated is called after a task is created for a step approver.
type TaskCreated interface {
	OnTaskCreated(ctx context.Context, t *task.Task) error
}

// TaskTransitioned is called after any task status change.
type TaskTransitioned interface {
	OnTaskTransitioned(ctx context.Context, t *task.Task, prev task.Status) error
}

// TaskEscalated is called after an expired task is reassigned to its
// escalation target.
type TaskEscalated interface {
	OnTaskEscalated(ctx context.Context, t *task.Task, previousAssignee string) error
}

// TaskOverdue is called after a task is marked overdue with no further
// escalation available.
type TaskOverdue interface {
	OnTaskOverdue(ctx context.Context, t *task.Task) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}

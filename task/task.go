package task

import (
	"time"

	"github.com/xraph/approve"
	"github.com/xraph/approve/id"
)

// Status represents the lifecycle status of a task.
type Status string

const (
	// StatusPending means the task is waiting for its assignee.
	StatusPending Status = "pending"
	// StatusInProgress means the assignee has explicitly started the task.
	StatusInProgress Status = "in_progress"
	// StatusCompleted means the task finished with an outcome.
	StatusCompleted Status = "completed"
	// StatusRejected means the assignee rejected the task.
	StatusRejected Status = "rejected"
	// StatusCancelled means the task was cancelled, usually by a cascade
	// from its instance.
	StatusCancelled Status = "cancelled"
	// StatusOverdue means the due-date elapsed with no escalation target
	// left. Overdue tasks remain actionable: they can still be completed
	// or rejected.
	StatusOverdue Status = "overdue"
)

// Terminal reports whether the status is a terminal outcome. Overdue is
// deliberately not terminal: it never blocks the instance and the task
// can still be acted on.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// Open reports whether the task still awaits an actor.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusInProgress
}

// Type categorizes what kind of work a task represents.
type Type string

const (
	TypeApproval     Type = "approval"
	TypeReview       Type = "review"
	TypeDataEntry    Type = "data_entry"
	TypeNotification Type = "notification"
	TypeSystemAction Type = "system_action"
	TypeManual       Type = "manual"
)

// Task is one assignable unit of work created from an approval step
// during an instance's execution. Tasks are never destroyed; they reach a
// terminal status and stay there for audit.
//
// A task stores only its parent instance's ID; lookups from task to
// instance go through the store, never through a live reference.
type Task struct {
	approve.Entity

	ID         id.TaskID     `json:"id"`
	InstanceID id.InstanceID `json:"instance_id"`
	StepID     id.StepID     `json:"step_id"`
	TenantID   string        `json:"tenant_id"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Type        Type   `json:"type"`
	Status      Status `json:"status"`

	Assignee   string `json:"assignee"`
	AssignedBy string `json:"assigned_by,omitempty"`
	Priority   int    `json:"priority"`

	DueDate     *time.Time `json:"due_date,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// EscalatedAt bounds escalation to at most one step: once set, a
	// second missed due-date resolves to Overdue instead of another
	// escalation.
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`

	Outcome         string `json:"outcome,omitempty"`
	CompletionNotes string `json:"completion_notes,omitempty"`
	FormData        []byte `json:"form_data,omitempty"`
}

// ClampPriority bounds a priority to the 1–5 range.
func ClampPriority(p int) int {
	if p < 1 {
		return 1
	}
	if p > 5 {
		return 5
	}
	return p
}

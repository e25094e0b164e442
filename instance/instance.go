package instance

import (
	"time"

	"github.com/xraph/approve"
	"github.com/xraph/approve/id"
)

// Status represents the lifecycle status of a workflow instance.
type Status string

const (
	// StatusRunning means the instance is executing approval steps.
	StatusRunning Status = "running"
	// StatusCompleted means every required step reached a successful
	// terminal outcome.
	StatusCompleted Status = "completed"
	// StatusCancelled means the instance was cancelled, either explicitly
	// or because a required step was rejected.
	StatusCancelled Status = "cancelled"
	// StatusSuspended means step advancement is blocked until Resume.
	// Open tasks stay open.
	StatusSuspended Status = "suspended"
	// StatusFailed means an unrecoverable step failure, e.g. a required
	// step whose approver selector resolves to no actor.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status is terminal. Once terminal, an
// instance is immutable.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Instance is one running (or terminated) execution of a definition
// version, bound to a business entity such as "Invoice:123".
//
// The instance owns its tasks; tasks hold only the instance ID back.
// Priority and due-date exist purely for external prioritization and do
// not affect engine transitions.
type Instance struct {
	approve.Entity

	ID           id.InstanceID   `json:"id"`
	DefinitionID id.DefinitionID `json:"definition_id"`
	TenantID     string          `json:"tenant_id"`
	EntityID     string          `json:"entity_id"`
	EntityType   string          `json:"entity_type"`
	Status       Status          `json:"status"`

	// CurrentStep is the order of the sequential step whose tasks are
	// outstanding. Zero means no sequential step has been activated.
	CurrentStep int `json:"current_step"`

	InitiatedBy string     `json:"initiated_by"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Priority int        `json:"priority"`
	DueDate  *time.Time `json:"due_date,omitempty"`

	// Context is an opaque blob carried for the caller; the engine never
	// inspects it.
	Context []byte `json:"context,omitempty"`

	// FailureReason is set when the instance ends Failed.
	FailureReason string `json:"failure_reason,omitempty"`
}

// EntityRef formats the bound business entity as "Type:ID".
func (i *Instance) EntityRef() string { return i.EntityType + ":" + i.EntityID }

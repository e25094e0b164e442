package event

import (
	"time"

	"github.com/xraph/approve/id"
)

// Engine event names. Notification and audit subsystems subscribe to
// these; the engine only produces them.
const (
	WorkflowStarted   = "workflow.started"
	WorkflowCompleted = "workflow.completed"
	WorkflowCancelled = "workflow.cancelled"
	WorkflowFailed    = "workflow.failed"
	TaskCreated       = "task.created"
	TaskTransitioned  = "task.transitioned"
	TaskEscalated     = "task.escalated"
	TaskOverdue       = "task.overdue"
)

// Event represents a named engine event published to the bus. Downstream
// consumers (notifications, audit) subscribe by name and acknowledge
// events once handled.
type Event struct {
	ID        id.EventID `json:"id"`
	Name      string     `json:"name"`
	Payload   []byte     `json:"payload,omitempty"`
	TenantID  string     `json:"tenant_id,omitempty"`
	Acked     bool       `json:"acked"`
	CreatedAt time.Time  `json:"created_at"`
}

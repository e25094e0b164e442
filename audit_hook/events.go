package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionWorkflowStarted   = "workflow.started"
	ActionWorkflowCompleted = "workflow.completed"
	ActionWorkflowCancelled = "workflow.cancelled"
	ActionWorkflowFailed    = "workflow.failed"
	ActionTaskCreated       = "task.created"
	ActionTaskTransitioned  = "task.transitioned"
	ActionTaskEscalated     = "task.escalated"
	ActionTaskOverdue       = "task.overdue"
)

// Audit event categories group related actions.
const (
	CategoryWorkflow = "approve.workflow"
	CategoryTask     = "approve.task"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceWorkflow = "workflow_instance"
	ResourceTask     = "task"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionWorkflowStarted,
		ActionWorkflowCompleted,
		ActionWorkflowCancelled,
		ActionWorkflowFailed,
		ActionTaskCreated,
		ActionTaskTransitioned,
		ActionTaskEscalated,
		ActionTaskOverdue,
	}
}

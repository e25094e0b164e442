package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/approve/ext"
	"github.com/xraph/approve/instance"
	"github.com/xraph/approve/task"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*Extension)(nil)
	_ ext.WorkflowStarted   = (*Extension)(nil)
	_ ext.WorkflowCompleted = (*Extension)(nil)
	_ ext.WorkflowCancelled = (*Extension)(nil)
	_ ext.WorkflowFailed    = (*Extension)(nil)
	_ ext.TaskCreated       = (*Extension)(nil)
	_ ext.TaskTransitioned  = (*Extension)(nil)
	_ ext.TaskEscalated     = (*Extension)(nil)
	_ ext.TaskOverdue       = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly — callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
// Callers provide a RecorderFunc adapter that bridges to their audit backend.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants (mirror chronicle/audit).
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants (mirror chronicle/audit).
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges Approve lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Workflow lifecycle hooks ────────────────────────

// OnWorkflowStarted implements ext.WorkflowStarted.
func (e *Extension) OnWorkflowStarted(ctx context.Context, inst *instance.Instance) error {
	return e.record(ctx, ActionWorkflowStarted, SeverityInfo, OutcomeSuccess,
		ResourceWorkflow, inst.ID.String(), CategoryWorkflow, nil,
		"definition_id", inst.DefinitionID.String(),
		"entity", inst.EntityRef(),
		"initiated_by", inst.InitiatedBy,
	)
}

// OnWorkflowCompleted implements ext.WorkflowCompleted.
func (e *Extension) OnWorkflowCompleted(ctx context.Context, inst *instance.Instance, elapsed time.Duration) error {
	return e.record(ctx, ActionWorkflowCompleted, SeverityInfo, OutcomeSuccess,
		ResourceWorkflow, inst.ID.String(), CategoryWorkflow, nil,
		"entity", inst.EntityRef(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnWorkflowCancelled implements ext.WorkflowCancelled.
func (e *Extension) OnWorkflowCancelled(ctx context.Context, inst *instance.Instance, reason string) error {
	return e.record(ctx, ActionWorkflowCancelled, SeverityWarning, OutcomeFailure,
		ResourceWorkflow, inst.ID.String(), CategoryWorkflow, nil,
		"entity", inst.EntityRef(),
		"reason", reason,
	)
}

// OnWorkflowFailed implements ext.WorkflowFailed.
func (e *Extension) OnWorkflowFailed(ctx context.Context, inst *instance.Instance, reason string) error {
	return e.record(ctx, ActionWorkflowFailed, SeverityCritical, OutcomeFailure,
		ResourceWorkflow, inst.ID.String(), CategoryWorkflow, nil,
		"entity", inst.EntityRef(),
		"reason", reason,
	)
}

// ── Task lifecycle hooks ────────────────────────────

// OnTaskCreated implements ext.TaskCreated.
func (e *Extension) OnTaskCreated(ctx context.Context, t *task.Task) error {
	return e.record(ctx, ActionTaskCreated, SeverityInfo, OutcomeSuccess,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"instance_id", t.InstanceID.String(),
		"assignee", t.Assignee,
		"title", t.Title,
	)
}

// OnTaskTransitioned implements ext.TaskTransitioned.
func (e *Extension) OnTaskTransitioned(ctx context.Context, t *task.Task, prev task.Status) error {
	return e.record(ctx, ActionTaskTransitioned, SeverityInfo, OutcomeSuccess,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"instance_id", t.InstanceID.String(),
		"from", string(prev),
		"to", string(t.Status),
		"assignee", t.Assignee,
	)
}

// OnTaskEscalated implements ext.TaskEscalated.
func (e *Extension) OnTaskEscalated(ctx context.Context, t *task.Task, previousAssignee string) error {
	return e.record(ctx, ActionTaskEscalated, SeverityWarning, OutcomeSuccess,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"instance_id", t.InstanceID.String(),
		"previous_assignee", previousAssignee,
		"assignee", t.Assignee,
	)
}

// OnTaskOverdue implements ext.TaskOverdue.
func (e *Extension) OnTaskOverdue(ctx context.Context, t *task.Task) error {
	return e.record(ctx, ActionTaskOverdue, SeverityWarning, OutcomeFailure,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"instance_id", t.InstanceID.String(),
		"assignee", t.Assignee,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}

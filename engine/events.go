package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/xraph/approve/event"
	"github.com/xraph/approve/ext"
	"github.com/xraph/approve/instance"
	"github.com/xraph/approve/task"
)

// busExtension bridges lifecycle hooks onto the event bus so external
// consumers (notification services, audit pipelines) can subscribe
// without registering an in-process extension.
type busExtension struct {
	bus    *event.Bus
	logger *slog.Logger
}

// Compile-time interface checks.
var (
	_ ext.Extension         = (*busExtension)(nil)
	_ ext.WorkflowStarted   = (*busExtension)(nil)
	_ ext.WorkflowCompleted = (*busExtension)(nil)
	_ ext.WorkflowCancelled = (*busExtension)(nil)
	_ ext.WorkflowFailed    = (*busExtension)(nil)
	_ ext.TaskCreated       = (*busExtension)(nil)
	_ ext.TaskTransitioned  = (*busExtension)(nil)
	_ ext.TaskEscalated     = (*busExtension)(nil)
	_ ext.TaskOverdue       = (*busExtension)(nil)
)

func (b *busExtension) Name() string { return "event-bus" }

// workflowPayload is the wire shape of workflow.* events.
type workflowPayload struct {
	InstanceID   string `json:"instance_id"`
	DefinitionID string `json:"definition_id"`
	TenantID     string `json:"tenant_id"`
	Entity       string `json:"entity"`
	InitiatedBy  string `json:"initiated_by,omitempty"`
	Reason       string `json:"reason,omitempty"`
	ElapsedMs    int64  `json:"elapsed_ms,omitempty"`
}

// taskPayload is the wire shape of task.* events.
type taskPayload struct {
	TaskID           string `json:"task_id"`
	InstanceID       string `json:"instance_id"`
	TenantID         string `json:"tenant_id"`
	Title            string `json:"title"`
	Status           string `json:"status"`
	PreviousStatus   string `json:"previous_status,omitempty"`
	Assignee         string `json:"assignee"`
	PreviousAssignee string `json:"previous_assignee,omitempty"`
}

func (b *busExtension) OnWorkflowStarted(ctx context.Context, inst *instance.Instance) error {
	return b.publish(ctx, event.WorkflowStarted, workflowPayload{
		InstanceID:   inst.ID.String(),
		DefinitionID: inst.DefinitionID.String(),
		TenantID:     inst.TenantID,
		Entity:       inst.EntityRef(),
		InitiatedBy:  inst.InitiatedBy,
	})
}

func (b *busExtension) OnWorkflowCompleted(ctx context.Context, inst *instance.Instance, elapsed time.Duration) error {
	return b.publish(ctx, event.WorkflowCompleted, workflowPayload{
		InstanceID:   inst.ID.String(),
		DefinitionID: inst.DefinitionID.String(),
		TenantID:     inst.TenantID,
		Entity:       inst.EntityRef(),
		ElapsedMs:    elapsed.Milliseconds(),
	})
}

func (b *busExtension) OnWorkflowCancelled(ctx context.Context, inst *instance.Instance, reason string) error {
	return b.publish(ctx, event.WorkflowCancelled, workflowPayload{
		InstanceID:   inst.ID.String(),
		DefinitionID: inst.DefinitionID.String(),
		TenantID:     inst.TenantID,
		Entity:       inst.EntityRef(),
		Reason:       reason,
	})
}

func (b *busExtension) OnWorkflowFailed(ctx context.Context, inst *instance.Instance, reason string) error {
	return b.publish(ctx, event.WorkflowFailed, workflowPayload{
		InstanceID:   inst.ID.String(),
		DefinitionID: inst.DefinitionID.String(),
		TenantID:     inst.TenantID,
		Entity:       inst.EntityRef(),
		Reason:       reason,
	})
}

func (b *busExtension) OnTaskCreated(ctx context.Context, t *task.Task) error {
	return b.publish(ctx, event.TaskCreated, taskPayload{
		TaskID:     t.ID.String(),
		InstanceID: t.InstanceID.String(),
		TenantID:   t.TenantID,
		Title:      t.Title,
		Status:     string(t.Status),
		Assignee:   t.Assignee,
	})
}

func (b *busExtension) OnTaskTransitioned(ctx context.Context, t *task.Task, prev task.Status) error {
	return b.publish(ctx, event.TaskTransitioned, taskPayload{
		TaskID:         t.ID.String(),
		InstanceID:     t.InstanceID.String(),
		TenantID:       t.TenantID,
		Title:          t.Title,
		Status:         string(t.Status),
		PreviousStatus: string(prev),
		Assignee:       t.Assignee,
	})
}

func (b *busExtension) OnTaskEscalated(ctx context.Context, t *task.Task, previousAssignee string) error {
	return b.publish(ctx, event.TaskEscalated, taskPayload{
		TaskID:           t.ID.String(),
		InstanceID:       t.InstanceID.String(),
		TenantID:         t.TenantID,
		Title:            t.Title,
		Status:           string(t.Status),
		Assignee:         t.Assignee,
		PreviousAssignee: previousAssignee,
	})
}

func (b *busExtension) OnTaskOverdue(ctx context.Context, t *task.Task) error {
	return b.publish(ctx, event.TaskOverdue, taskPayload{
		TaskID:     t.ID.String(),
		InstanceID: t.InstanceID.String(),
		TenantID:   t.TenantID,
		Title:      t.Title,
		Status:     string(t.Status),
		Assignee:   t.Assignee,
	})
}

func (b *busExtension) publish(ctx context.Context, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := b.bus.Publish(ctx, name, data); err != nil {
		// Returned errors are logged by the registry; the lifecycle
		// proceeds regardless.
		return err
	}
	return nil
}

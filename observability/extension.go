package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/approve/ext"
	"github.com/xraph/approve/instance"
	"github.com/xraph/approve/task"
)

// meterName is the instrumentation scope name for approve metrics.
const meterName = "github.com/xraph/approve"

// Compile-time interface checks.
var (
	_ ext.Extension         = (*MetricsExtension)(nil)
	_ ext.WorkflowStarted   = (*MetricsExtension)(nil)
	_ ext.WorkflowCompleted = (*MetricsExtension)(nil)
	_ ext.WorkflowCancelled = (*MetricsExtension)(nil)
	_ ext.WorkflowFailed    = (*MetricsExtension)(nil)
	_ ext.TaskCreated       = (*MetricsExtension)(nil)
	_ ext.TaskTransitioned  = (*MetricsExtension)(nil)
	_ ext.TaskEscalated     = (*MetricsExtension)(nil)
	_ ext.TaskOverdue       = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics through the OTel
// metric API. Register it as an Approve extension to automatically track
// workflow throughput, terminal outcomes, task volumes, and escalations.
// If no MeterProvider is configured, the instruments are noops.
type MetricsExtension struct {
	workflowStarted  metric.Int64Counter
	workflowDone     metric.Int64Counter
	workflowDuration metric.Float64Histogram
	taskCreated      metric.Int64Counter
	taskTransitioned metric.Int64Counter
	taskEscalated    metric.Int64Counter
	taskOverdue      metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. This variant allows injecting a specific MeterProvider for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// Instruments are created once here. On error the OTel API returns
	// noop instruments, so the extension degrades gracefully.
	m := &MetricsExtension{}

	m.workflowStarted, _ = meter.Int64Counter(
		"approve.workflow.started",
		metric.WithDescription("Total number of workflow instances started"),
		metric.WithUnit("{instance}"),
	)
	m.workflowDone, _ = meter.Int64Counter(
		"approve.workflow.finished",
		metric.WithDescription("Total number of workflow instances reaching a terminal status"),
		metric.WithUnit("{instance}"),
	)
	m.workflowDuration, _ = meter.Float64Histogram(
		"approve.workflow.duration",
		metric.WithDescription("Time from workflow start to completion in seconds"),
		metric.WithUnit("s"),
	)
	m.taskCreated, _ = meter.Int64Counter(
		"approve.task.created",
		metric.WithDescription("Total number of tasks created"),
		metric.WithUnit("{task}"),
	)
	m.taskTransitioned, _ = meter.Int64Counter(
		"approve.task.transitioned",
		metric.WithDescription("Total number of task status transitions"),
		metric.WithUnit("{transition}"),
	)
	m.taskEscalated, _ = meter.Int64Counter(
		"approve.task.escalated",
		metric.WithDescription("Total number of task escalations"),
		metric.WithUnit("{task}"),
	)
	m.taskOverdue, _ = meter.Int64Counter(
		"approve.task.overdue",
		metric.WithDescription("Total number of tasks marked overdue"),
		metric.WithUnit("{task}"),
	)
	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Workflow lifecycle hooks ────────────────────────

// OnWorkflowStarted implements ext.WorkflowStarted.
func (m *MetricsExtension) OnWorkflowStarted(ctx context.Context, inst *instance.Instance) error {
	m.workflowStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity_type", inst.EntityType),
	))
	return nil
}

// OnWorkflowCompleted implements ext.WorkflowCompleted.
func (m *MetricsExtension) OnWorkflowCompleted(ctx context.Context, inst *instance.Instance, elapsed time.Duration) error {
	attrs := metric.WithAttributes(
		attribute.String("entity_type", inst.EntityType),
		attribute.String("status", string(instance.StatusCompleted)),
	)
	m.workflowDone.Add(ctx, 1, attrs)
	m.workflowDuration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnWorkflowCancelled implements ext.WorkflowCancelled.
func (m *MetricsExtension) OnWorkflowCancelled(ctx context.Context, inst *instance.Instance, _ string) error {
	m.workflowDone.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity_type", inst.EntityType),
		attribute.String("status", string(instance.StatusCancelled)),
	))
	return nil
}

// OnWorkflowFailed implements ext.WorkflowFailed.
func (m *MetricsExtension) OnWorkflowFailed(ctx context.Context, inst *instance.Instance, _ string) error {
	m.workflowDone.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity_type", inst.EntityType),
		attribute.String("status", string(instance.StatusFailed)),
	))
	return nil
}

// ── Task lifecycle hooks ────────────────────────────

// OnTaskCreated implements ext.TaskCreated.
func (m *MetricsExtension) OnTaskCreated(ctx context.Context, t *task.Task) error {
	m.taskCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_type", string(t.Type)),
	))
	return nil
}

// OnTaskTransitioned implements ext.TaskTransitioned.
func (m *MetricsExtension) OnTaskTransitioned(ctx context.Context, t *task.Task, prev task.Status) error {
	m.taskTransitioned.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(prev)),
		attribute.String("to", string(t.Status)),
	))
	return nil
}

// OnTaskEscalated implements ext.TaskEscalated.
func (m *MetricsExtension) OnTaskEscalated(ctx context.Context, t *task.Task, _ string) error {
	m.taskEscalated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_type", string(t.Type)),
	))
	return nil
}

// OnTaskOverdue implements ext.TaskOverdue.
func (m *MetricsExtension) OnTaskOverdue(ctx context.Context, t *task.Task) error {
	m.taskOverdue.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_type", string(t.Type)),
	))
	return nil
}

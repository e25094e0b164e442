package observability_test

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/approve/id"
	"github.com/xraph/approve/instance"
	"github.com/xraph/approve/observability"
	"github.com/xraph/approve/task"
)

// harness pairs the extension with a manual reader so tests can collect
// and inspect the recorded instruments.
type harness struct {
	ext    *observability.MetricsExtension
	reader *sdkmetric.ManualReader
}

func newHarness() *harness {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return &harness{
		ext:    observability.NewMetricsExtensionWithMeter(provider.Meter("test")),
		reader: reader,
	}
}

// counterValue sums all data points of a named Int64 counter.
func (h *harness) counterValue(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: unexpected data type %T", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func newTestInstance() *instance.Instance {
	return &instance.Instance{
		ID:           id.NewInstanceID(),
		DefinitionID: id.NewDefinitionID(),
		TenantID:     "acme",
		EntityID:     "inv-1",
		EntityType:   "Invoice",
		Status:       instance.StatusRunning,
	}
}

func newTestTask() *task.Task {
	return &task.Task{
		ID:         id.NewTaskID(),
		InstanceID: id.NewInstanceID(),
		Type:       task.TypeApproval,
		Status:     task.StatusPending,
		Assignee:   "alice",
	}
}

func TestMetricsExtension_Name(t *testing.T) {
	h := newHarness()
	if h.ext.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", h.ext.Name())
	}
}

func TestMetricsExtension_WorkflowStarted(t *testing.T) {
	h := newHarness()
	if err := h.ext.OnWorkflowStarted(context.Background(), newTestInstance()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.counterValue(t, "approve.workflow.started"); got != 1 {
		t.Errorf("workflow.started: want 1, got %d", got)
	}
}

func TestMetricsExtension_WorkflowCompleted(t *testing.T) {
	h := newHarness()
	if err := h.ext.OnWorkflowCompleted(context.Background(), newTestInstance(), 90*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.counterValue(t, "approve.workflow.finished"); got != 1 {
		t.Errorf("workflow.finished: want 1, got %d", got)
	}
}

func TestMetricsExtension_WorkflowDuration(t *testing.T) {
	h := newHarness()
	if err := h.ext.OnWorkflowCompleted(context.Background(), newTestInstance(), 90*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "approve.workflow.duration" {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("duration: unexpected data type %T", m.Data)
			}
			for _, dp := range hist.DataPoints {
				found = true
				if dp.Sum != 90 {
					t.Errorf("duration sum: want 90s, got %v", dp.Sum)
				}
			}
		}
	}
	if !found {
		t.Error("workflow.duration histogram not recorded")
	}
}

func TestMetricsExtension_WorkflowTerminalOutcomes(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.ext.OnWorkflowCancelled(ctx, newTestInstance(), "reason"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.ext.OnWorkflowFailed(ctx, newTestInstance(), "reason"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.counterValue(t, "approve.workflow.finished"); got != 2 {
		t.Errorf("workflow.finished: want 2, got %d", got)
	}
}

func TestMetricsExtension_TaskCounters(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.ext.OnTaskCreated(ctx, newTestTask()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.ext.OnTaskTransitioned(ctx, newTestTask(), task.StatusPending); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.ext.OnTaskEscalated(ctx, newTestTask(), "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.ext.OnTaskOverdue(ctx, newTestTask()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, c := range []struct {
		name string
		want int64
	}{
		{"approve.task.created", 1},
		{"approve.task.transitioned", 1},
		{"approve.task.escalated", 1},
		{"approve.task.overdue", 1},
	} {
		if got := h.counterValue(t, c.name); got != c.want {
			t.Errorf("%s: want %d, got %d", c.name, c.want, got)
		}
	}
}

func TestMetricsExtension_GlobalMeterDegradesToNoop(t *testing.T) {
	// Without a configured MeterProvider the instruments are noops; the
	// hooks must still succeed.
	e := observability.NewMetricsExtension()
	if err := e.OnWorkflowStarted(context.Background(), newTestInstance()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnTaskCreated(context.Background(), newTestTask()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

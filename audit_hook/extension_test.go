package audithook_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	ah "github.com/xraph/approve/audit_hook"
	"github.com/xraph/approve/id"
	"github.com/xraph/approve/instance"
	"github.com/xraph/approve/task"
)

// mockRecorder records audit events in memory.
type mockRecorder struct {
	mu     sync.Mutex
	events []*ah.AuditEvent
	err    error
}

func (m *mockRecorder) Record(_ context.Context, event *ah.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockRecorder) last() *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockRecorder) findByAction(action string) *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.Action == action {
			return e
		}
	}
	return nil
}

func newTestInstance() *instance.Instance {
	return &instance.Instance{
		ID:           id.NewInstanceID(),
		DefinitionID: id.NewDefinitionID(),
		TenantID:     "acme",
		EntityID:     "inv-1",
		EntityType:   "Invoice",
		Status:       instance.StatusRunning,
		InitiatedBy:  "carol",
	}
}

func newTestTask() *task.Task {
	return &task.Task{
		ID:         id.NewTaskID(),
		InstanceID: id.NewInstanceID(),
		Title:      "Manager approval",
		Type:       task.TypeApproval,
		Status:     task.StatusPending,
		Assignee:   "alice",
	}
}

func TestExtension_Name(t *testing.T) {
	e := ah.New(&mockRecorder{})
	if e.Name() != "audit-hook" {
		t.Errorf("expected name %q, got %q", "audit-hook", e.Name())
	}
}

func TestExtension_OnWorkflowStarted(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	inst := newTestInstance()

	if err := e.OnWorkflowStarted(context.Background(), inst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evt := rec.last()
	if evt == nil {
		t.Fatal("no audit event recorded")
	}
	if evt.Action != ah.ActionWorkflowStarted {
		t.Errorf("action: want %q, got %q", ah.ActionWorkflowStarted, evt.Action)
	}
	if evt.Resource != ah.ResourceWorkflow {
		t.Errorf("resource: want %q, got %q", ah.ResourceWorkflow, evt.Resource)
	}
	if evt.Category != ah.CategoryWorkflow {
		t.Errorf("category: want %q, got %q", ah.CategoryWorkflow, evt.Category)
	}
	if evt.ResourceID != inst.ID.String() {
		t.Errorf("resource id: want %q, got %q", inst.ID, evt.ResourceID)
	}
	if evt.Severity != ah.SeverityInfo {
		t.Errorf("severity: want %q, got %q", ah.SeverityInfo, evt.Severity)
	}
	if evt.Outcome != ah.OutcomeSuccess {
		t.Errorf("outcome: want %q, got %q", ah.OutcomeSuccess, evt.Outcome)
	}
	if evt.Metadata["entity"] != "Invoice:inv-1" {
		t.Errorf("metadata entity: got %v", evt.Metadata["entity"])
	}
	if evt.Metadata["initiated_by"] != "carol" {
		t.Errorf("metadata initiated_by: got %v", evt.Metadata["initiated_by"])
	}
}

func TestExtension_OnWorkflowCompleted(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	if err := e.OnWorkflowCompleted(context.Background(), newTestInstance(), 90*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionWorkflowCompleted {
		t.Errorf("action: want %q, got %q", ah.ActionWorkflowCompleted, evt.Action)
	}
	if evt.Metadata["elapsed_ms"] != int64(90000) {
		t.Errorf("metadata elapsed_ms: got %v", evt.Metadata["elapsed_ms"])
	}
}

func TestExtension_OnWorkflowCancelled(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	if err := e.OnWorkflowCancelled(context.Background(), newTestInstance(), "no longer needed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evt := rec.last()
	if evt.Severity != ah.SeverityWarning {
		t.Errorf("severity: want %q, got %q", ah.SeverityWarning, evt.Severity)
	}
	if evt.Outcome != ah.OutcomeFailure {
		t.Errorf("outcome: want %q, got %q", ah.OutcomeFailure, evt.Outcome)
	}
	if evt.Metadata["reason"] != "no longer needed" {
		t.Errorf("metadata reason: got %v", evt.Metadata["reason"])
	}
}

func TestExtension_OnWorkflowFailed(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	if err := e.OnWorkflowFailed(context.Background(), newTestInstance(), "no approver"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionWorkflowFailed {
		t.Errorf("action: want %q, got %q", ah.ActionWorkflowFailed, evt.Action)
	}
	if evt.Severity != ah.SeverityCritical {
		t.Errorf("severity: want %q, got %q", ah.SeverityCritical, evt.Severity)
	}
}

func TestExtension_OnTaskCreated(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	tk := newTestTask()

	if err := e.OnTaskCreated(context.Background(), tk); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionTaskCreated {
		t.Errorf("action: want %q, got %q", ah.ActionTaskCreated, evt.Action)
	}
	if evt.Resource != ah.ResourceTask {
		t.Errorf("resource: want %q, got %q", ah.ResourceTask, evt.Resource)
	}
	if evt.Category != ah.CategoryTask {
		t.Errorf("category: want %q, got %q", ah.CategoryTask, evt.Category)
	}
	if evt.Metadata["assignee"] != "alice" {
		t.Errorf("metadata assignee: got %v", evt.Metadata["assignee"])
	}
}

func TestExtension_OnTaskTransitioned(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	tk := newTestTask()
	tk.Status = task.StatusCompleted

	if err := e.OnTaskTransitioned(context.Background(), tk, task.StatusInProgress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evt := rec.last()
	if evt.Metadata["from"] != "in_progress" {
		t.Errorf("metadata from: got %v", evt.Metadata["from"])
	}
	if evt.Metadata["to"] != "completed" {
		t.Errorf("metadata to: got %v", evt.Metadata["to"])
	}
}

func TestExtension_OnTaskEscalated(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	tk := newTestTask()
	tk.Assignee = "supervisor"

	if err := e.OnTaskEscalated(context.Background(), tk, "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evt := rec.last()
	if evt.Severity != ah.SeverityWarning {
		t.Errorf("severity: want %q, got %q", ah.SeverityWarning, evt.Severity)
	}
	if evt.Metadata["previous_assignee"] != "alice" {
		t.Errorf("metadata previous_assignee: got %v", evt.Metadata["previous_assignee"])
	}
	if evt.Metadata["assignee"] != "supervisor" {
		t.Errorf("metadata assignee: got %v", evt.Metadata["assignee"])
	}
}

func TestExtension_OnTaskOverdue(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	if err := e.OnTaskOverdue(context.Background(), newTestTask()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionTaskOverdue {
		t.Errorf("action: want %q, got %q", ah.ActionTaskOverdue, evt.Action)
	}
	if evt.Outcome != ah.OutcomeFailure {
		t.Errorf("outcome: want %q, got %q", ah.OutcomeFailure, evt.Outcome)
	}
}

func TestExtension_WithActionsFilters(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec, ah.WithActions(ah.ActionTaskEscalated))

	ctx := context.Background()
	if err := e.OnWorkflowStarted(ctx, newTestInstance()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnTaskEscalated(ctx, newTestTask(), "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.count() != 1 {
		t.Fatalf("events recorded: want 1, got %d", rec.count())
	}
	if rec.findByAction(ah.ActionTaskEscalated) == nil {
		t.Error("escalation event missing")
	}
	if rec.findByAction(ah.ActionWorkflowStarted) != nil {
		t.Error("filtered action was recorded")
	}
}

func TestExtension_RecorderFailureDoesNotPropagate(t *testing.T) {
	rec := &mockRecorder{err: errors.New("audit backend down")}
	e := ah.New(rec)

	if err := e.OnWorkflowStarted(context.Background(), newTestInstance()); err != nil {
		t.Errorf("recorder failure must not propagate, got %v", err)
	}
}

func TestAllActions(t *testing.T) {
	actions := ah.AllActions()
	if len(actions) != 8 {
		t.Fatalf("actions: want 8, got %d", len(actions))
	}
	seen := map[string]bool{}
	for _, a := range actions {
		seen[a] = true
	}
	if !seen[ah.ActionWorkflowStarted] || !seen[ah.ActionTaskOverdue] {
		t.Errorf("actions incomplete: %v", actions)
	}
}

func TestRecorderFunc(t *testing.T) {
	var got *ah.AuditEvent
	fn := ah.RecorderFunc(func(_ context.Context, event *ah.AuditEvent) error {
		got = event
		return nil
	})
	e := ah.New(fn)

	if err := e.OnTaskCreated(context.Background(), newTestTask()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.Action != ah.ActionTaskCreated {
		t.Errorf("RecorderFunc not invoked: %+v", got)
	}
}

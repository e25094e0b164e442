package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/approve"
	"github.com/xraph/approve/actor"
	"github.com/xraph/approve/clock"
	"github.com/xraph/approve/definition"
	"github.com/xraph/approve/engine"
	"github.com/xraph/approve/event"
	"github.com/xraph/approve/instance"
	"github.com/xraph/approve/store/memory"
	"github.com/xraph/approve/task"
)

// trackingExtension counts workflow lifecycle callbacks.
type trackingExtension struct {
	mu        sync.Mutex
	started   int
	completed int
}

func (e *trackingExtension) Name() string { return "tracking" }

func (e *trackingExtension) OnWorkflowStarted(context.Context, *instance.Instance) error {
	e.mu.Lock()
	e.started++
	e.mu.Unlock()
	return nil
}

func (e *trackingExtension) OnWorkflowCompleted(context.Context, *instance.Instance, time.Duration) error {
	e.mu.Lock()
	e.completed++
	e.mu.Unlock()
	return nil
}

func buildEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *actor.StaticResolver, *clock.Fake) {
	t.Helper()
	resolver := actor.NewStaticResolver()
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	o, err := approve.New(
		approve.WithStore(memory.New()),
		approve.WithResolver(resolver),
		approve.WithClock(clk),
	)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	eng, err := engine.Build(o, opts...)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return eng, resolver, clk
}

func approvalDefinition() *definition.Definition {
	return &definition.Definition{
		TenantID:     "acme",
		Name:         "invoice-approval",
		WorkflowType: "Invoice",
		Steps: []definition.Step{
			{Name: "Manager", Order: 1, Required: true, Approver: definition.ByRole("manager")},
		},
	}
}

func TestBuild_RequiresStore(t *testing.T) {
	o, err := approve.New()
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	if _, err := engine.Build(o); !errors.Is(err, approve.ErrNoStore) {
		t.Errorf("want ErrNoStore, got %v", err)
	}
}

func TestEngine_EndToEndApproval(t *testing.T) {
	eng, resolver, _ := buildEngine(t)
	resolver.Grant("acme", "manager", "alice")
	ctx := context.Background()

	defID, err := eng.RegisterDefinition(ctx, approvalDefinition())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := eng.ActivateDefinition(ctx, defID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	resolved, err := eng.ResolveDefinition(ctx, "acme", "Invoice")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ID.String() != defID.String() {
		t.Errorf("resolved: want %s, got %s", defID, resolved.ID)
	}

	inst, err := eng.StartWorkflow(ctx, defID, "inv-1", "Invoice", "carol", instance.CreateOpts{})
	if err != nil {
		t.Fatalf("start workflow: %v", err)
	}

	open, err := eng.ListTasksByAssignee(ctx, "alice", task.ListOpts{Status: task.StatusPending})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("alice's tasks: want 1, got %d", len(open))
	}

	if _, err := eng.StartTask(ctx, open[0].ID, "alice"); err != nil {
		t.Fatalf("start task: %v", err)
	}
	if _, err := eng.CompleteTask(ctx, open[0].ID, "approved", "ok", nil); err != nil {
		t.Fatalf("complete task: %v", err)
	}

	got, err := eng.GetInstance(ctx, inst.ID)
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if got.Status != instance.StatusCompleted {
		t.Errorf("instance status: want completed, got %q", got.Status)
	}
}

func TestEngine_PublishesLifecycleEvents(t *testing.T) {
	eng, resolver, _ := buildEngine(t)
	resolver.Grant("acme", "manager", "alice")
	ctx := context.Background()

	defID, err := eng.RegisterDefinition(ctx, approvalDefinition())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := eng.ActivateDefinition(ctx, defID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	inst, err := eng.StartWorkflow(ctx, defID, "inv-1", "Invoice", "carol", instance.CreateOpts{})
	if err != nil {
		t.Fatalf("start workflow: %v", err)
	}

	started, err := eng.EventBus().Subscribe(ctx, event.WorkflowStarted, time.Second)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if started == nil {
		t.Fatal("workflow.started event not published")
	}
	var payload struct {
		InstanceID string `json:"instance_id"`
		Entity     string `json:"entity"`
	}
	if err := json.Unmarshal(started.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.InstanceID != inst.ID.String() {
		t.Errorf("payload instance: want %s, got %s", inst.ID, payload.InstanceID)
	}
	if payload.Entity != "Invoice:inv-1" {
		t.Errorf("payload entity: got %q", payload.Entity)
	}

	created, err := eng.EventBus().Subscribe(ctx, event.TaskCreated, time.Second)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if created == nil {
		t.Fatal("task.created event not published")
	}
}

func TestEngine_CustomExtensionReceivesHooks(t *testing.T) {
	tracker := &trackingExtension{}
	eng, resolver, _ := buildEngine(t, engine.WithExtension(tracker))
	resolver.Grant("acme", "manager", "alice")
	ctx := context.Background()

	defID, err := eng.RegisterDefinition(ctx, approvalDefinition())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := eng.ActivateDefinition(ctx, defID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := eng.StartWorkflow(ctx, defID, "inv-1", "Invoice", "carol", instance.CreateOpts{}); err != nil {
		t.Fatalf("start workflow: %v", err)
	}

	tasks, err := eng.ListTasksByAssignee(ctx, "alice", task.ListOpts{})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if _, err := eng.CompleteTask(ctx, tasks[0].ID, "approved", "", nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	if tracker.started != 1 {
		t.Errorf("started callbacks: want 1, got %d", tracker.started)
	}
	if tracker.completed != 1 {
		t.Errorf("completed callbacks: want 1, got %d", tracker.completed)
	}
}

func TestEngine_SchedulerWiredWithConfig(t *testing.T) {
	resolver := actor.NewStaticResolver()
	resolver.Grant("acme", "manager", "alice")
	resolver.AddUser("supervisor")
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	o, err := approve.New(
		approve.WithStore(memory.New()),
		approve.WithResolver(resolver),
		approve.WithClock(clk),
		approve.WithScanInterval(time.Second),
		approve.WithDefaultStepTimeout(24*time.Hour),
	)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	eng, err := engine.Build(o)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ctx := context.Background()

	def := approvalDefinition()
	def.Steps[0].Escalation = definition.ByUser("supervisor")
	defID, err := eng.RegisterDefinition(ctx, def)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := eng.ActivateDefinition(ctx, defID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := eng.StartWorkflow(ctx, defID, "inv-1", "Invoice", "carol", instance.CreateOpts{}); err != nil {
		t.Fatalf("start workflow: %v", err)
	}

	// The default step timeout from the orchestrator config drives the
	// task due-date; one elapsed day later the scan escalates.
	clk.Advance(25 * time.Hour)
	acted, err := eng.Scheduler().ScanOnce(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if acted != 1 {
		t.Errorf("scan acted: want 1, got %d", acted)
	}

	escalated, err := eng.ListTasksByAssignee(ctx, "supervisor", task.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(escalated) != 1 {
		t.Errorf("supervisor tasks after escalation: want 1, got %d", len(escalated))
	}
}

func TestEngine_StartStop(t *testing.T) {
	eng, _, _ := buildEngine(t)
	ctx := context.Background()

	if err := eng.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestEngine_RejectTaskCancelsWorkflow(t *testing.T) {
	eng, resolver, _ := buildEngine(t)
	resolver.Grant("acme", "manager", "alice")
	ctx := context.Background()

	defID, err := eng.RegisterDefinition(ctx, approvalDefinition())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := eng.ActivateDefinition(ctx, defID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	inst, err := eng.StartWorkflow(ctx, defID, "inv-1", "Invoice", "carol", instance.CreateOpts{})
	if err != nil {
		t.Fatalf("start workflow: %v", err)
	}

	tasks, err := eng.ListTasksByAssignee(ctx, "alice", task.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := eng.RejectTask(ctx, tasks[0].ID, "rejected", "over budget"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	got, err := eng.GetInstance(ctx, inst.ID)
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if got.Status != instance.StatusCancelled {
		t.Errorf("instance status: want cancelled, got %q", got.Status)
	}

	evt, err := eng.EventBus().Subscribe(ctx, event.WorkflowCancelled, time.Second)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if evt == nil {
		t.Error("workflow.cancelled event not published")
	}
}

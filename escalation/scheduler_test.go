package escalation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xraph/approve/actor"
	"github.com/xraph/approve/clock"
	"github.com/xraph/approve/definition"
	"github.com/xraph/approve/escalation"
	"github.com/xraph/approve/id"
	"github.com/xraph/approve/instance"
	"github.com/xraph/approve/store/memory"
	"github.com/xraph/approve/task"
)

// recorder collects task lifecycle emissions from the wired manager.
type recorder struct {
	mu        sync.Mutex
	escalated int
	overdue   int
}

func (r *recorder) EmitTaskCreated(_ context.Context, _ *task.Task) {}
func (r *recorder) EmitTaskTransitioned(_ context.Context, _ *task.Task, _ task.Status) {
}

func (r *recorder) EmitTaskEscalated(_ context.Context, _ *task.Task, _ string) {
	r.mu.Lock()
	r.escalated++
	r.mu.Unlock()
}

func (r *recorder) EmitTaskOverdue(_ context.Context, _ *task.Task) {
	r.mu.Lock()
	r.overdue++
	r.mu.Unlock()
}

type fixture struct {
	store     *memory.Store
	resolver  *actor.StaticResolver
	engine    *instance.Engine
	manager   *task.Manager
	scheduler *escalation.Scheduler
	events    *recorder
	clk       *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		resolver: actor.NewStaticResolver(),
		events:   &recorder{},
		clk:      clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
	}
	f.engine = instance.NewEngine(f.store, f.store, f.store, f.resolver, nil, nil, nil, f.clk)
	f.manager = task.NewManager(f.store, f.engine.Locks(), f.engine.AdvanceOnTaskTransition, f.events, nil, f.clk)
	f.scheduler = escalation.NewScheduler(f.store, f.store, f.store, f.manager, f.resolver, f.clk, nil)
	return f
}

// startInstance registers an active one-step definition and starts an
// instance of it, returning the open task.
func (f *fixture) startInstance(t *testing.T, step definition.Step) *task.Task {
	t.Helper()
	def := &definition.Definition{
		ID:           id.NewDefinitionID(),
		TenantID:     "acme",
		Name:         "invoice-approval",
		WorkflowType: "Invoice",
		Version:      1,
		Active:       true,
		Steps:        []definition.Step{step},
	}
	def.Steps[0].ID = id.NewStepID()
	def.Steps[0].DefinitionID = def.ID
	if err := f.store.CreateDefinition(context.Background(), def); err != nil {
		t.Fatalf("create definition: %v", err)
	}

	inst, err := f.engine.CreateInstance(context.Background(), def.ID, "inv-1", "Invoice", "carol", instance.CreateOpts{})
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}

	tasks, err := f.store.ListTasksByInstance(context.Background(), inst.ID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("tasks: want 1, got %d", len(tasks))
	}
	return tasks[0]
}

func TestScheduler_EscalatesExpiredTask(t *testing.T) {
	f := newFixture(t)
	f.resolver.Grant("acme", "manager", "alice")
	f.resolver.AddUser("supervisor")

	tk := f.startInstance(t, definition.Step{
		Name:       "Manager",
		Order:      1,
		Required:   true,
		Approver:   definition.ByRole("manager"),
		Escalation: definition.ByUser("supervisor"),
		Timeout:    24 * time.Hour,
	})

	// Not yet due: the scan is a no-op.
	acted, err := f.scheduler.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if acted != 0 {
		t.Errorf("acted before due: want 0, got %d", acted)
	}

	f.clk.Advance(25 * time.Hour)
	acted, err = f.scheduler.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if acted != 1 {
		t.Fatalf("acted: want 1, got %d", acted)
	}

	got, err := f.store.GetTask(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Assignee != "supervisor" {
		t.Errorf("assignee: want %q, got %q", "supervisor", got.Assignee)
	}
	if got.Status != task.StatusPending {
		t.Errorf("status: want pending, got %q", got.Status)
	}
	if got.EscalatedAt == nil {
		t.Fatal("EscalatedAt not set")
	}
	wantDue := f.clk.Now().Add(24 * time.Hour)
	if got.DueDate == nil || !got.DueDate.Equal(wantDue) {
		t.Errorf("due date: want %v, got %v", wantDue, got.DueDate)
	}

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	if f.events.escalated != 1 {
		t.Errorf("escalated events: want 1, got %d", f.events.escalated)
	}
}

func TestScheduler_SecondMissGoesOverdue(t *testing.T) {
	f := newFixture(t)
	f.resolver.Grant("acme", "manager", "alice")
	f.resolver.AddUser("supervisor")

	tk := f.startInstance(t, definition.Step{
		Name:       "Manager",
		Order:      1,
		Required:   true,
		Approver:   definition.ByRole("manager"),
		Escalation: definition.ByUser("supervisor"),
		Timeout:    24 * time.Hour,
	})
	ctx := context.Background()

	f.clk.Advance(25 * time.Hour)
	if _, err := f.scheduler.ScanOnce(ctx); err != nil {
		t.Fatalf("first scan: %v", err)
	}

	// The supervisor misses the fresh due-date too.
	f.clk.Advance(25 * time.Hour)
	acted, err := f.scheduler.ScanOnce(ctx)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if acted != 1 {
		t.Fatalf("acted: want 1, got %d", acted)
	}

	got, err := f.store.GetTask(ctx, tk.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != task.StatusOverdue {
		t.Errorf("status: want overdue, got %q", got.Status)
	}
	if got.Assignee != "supervisor" {
		t.Errorf("assignee must keep escalation target, got %q", got.Assignee)
	}

	// Overdue never blocks: the task can still be completed, and the
	// instance finishes.
	if _, err := f.manager.Complete(ctx, tk.ID, "approved", "", nil); err != nil {
		t.Fatalf("complete overdue task: %v", err)
	}
	inst, err := f.store.GetInstance(ctx, tk.InstanceID)
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if inst.Status != instance.StatusCompleted {
		t.Errorf("instance status: want completed, got %q", inst.Status)
	}
}

func TestScheduler_NoEscalationTargetGoesStraightOverdue(t *testing.T) {
	f := newFixture(t)
	f.resolver.Grant("acme", "manager", "alice")

	tk := f.startInstance(t, definition.Step{
		Name:     "Manager",
		Order:    1,
		Required: true,
		Approver: definition.ByRole("manager"),
		Timeout:  24 * time.Hour,
	})

	f.clk.Advance(25 * time.Hour)
	acted, err := f.scheduler.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if acted != 1 {
		t.Fatalf("acted: want 1, got %d", acted)
	}

	got, err := f.store.GetTask(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != task.StatusOverdue {
		t.Errorf("status: want overdue, got %q", got.Status)
	}

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	if f.events.overdue != 1 {
		t.Errorf("overdue events: want 1, got %d", f.events.overdue)
	}
}

func TestScheduler_UnresolvableTargetExpiresTask(t *testing.T) {
	f := newFixture(t)
	f.resolver.Grant("acme", "manager", "alice")
	// The escalation role has no members, so escalation degrades to
	// Overdue instead of stalling.
	tk := f.startInstance(t, definition.Step{
		Name:       "Manager",
		Order:      1,
		Required:   true,
		Approver:   definition.ByRole("manager"),
		Escalation: definition.ByRole("supervisors"),
		Timeout:    24 * time.Hour,
	})

	f.clk.Advance(25 * time.Hour)
	if _, err := f.scheduler.ScanOnce(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}

	got, err := f.store.GetTask(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != task.StatusOverdue {
		t.Errorf("status: want overdue, got %q", got.Status)
	}
	if got.Assignee != "alice" {
		t.Errorf("assignee must stay unchanged, got %q", got.Assignee)
	}
}

func TestScheduler_SkipsSuspendedInstance(t *testing.T) {
	f := newFixture(t)
	f.resolver.Grant("acme", "manager", "alice")

	tk := f.startInstance(t, definition.Step{
		Name:     "Manager",
		Order:    1,
		Required: true,
		Approver: definition.ByRole("manager"),
		Timeout:  24 * time.Hour,
	})
	ctx := context.Background()

	if err := f.engine.Suspend(ctx, tk.InstanceID, "on hold"); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	f.clk.Advance(25 * time.Hour)
	acted, err := f.scheduler.ScanOnce(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if acted != 0 {
		t.Errorf("acted on suspended instance: want 0, got %d", acted)
	}

	got, err := f.store.GetTask(ctx, tk.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != task.StatusPending {
		t.Errorf("status: want pending, got %q", got.Status)
	}
}

func TestScheduler_RaceWithManualCompletion(t *testing.T) {
	f := newFixture(t)
	f.resolver.Grant("acme", "manager", "alice")
	f.resolver.AddUser("supervisor")

	tk := f.startInstance(t, definition.Step{
		Name:       "Manager",
		Order:      1,
		Required:   true,
		Approver:   definition.ByRole("manager"),
		Escalation: definition.ByUser("supervisor"),
		Timeout:    24 * time.Hour,
	})
	ctx := context.Background()

	// Alice completes the task inside the overdue window, before the
	// scan runs. The scan must treat the task as settled.
	f.clk.Advance(25 * time.Hour)
	if _, err := f.manager.Complete(ctx, tk.ID, "approved", "", nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	acted, err := f.scheduler.ScanOnce(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if acted != 0 {
		t.Errorf("acted: want 0, got %d", acted)
	}

	got, err := f.store.GetTask(ctx, tk.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != task.StatusCompleted {
		t.Errorf("status: want completed, got %q", got.Status)
	}
	if got.Outcome != "approved" {
		t.Errorf("outcome: want approved, got %q", got.Outcome)
	}
}

func TestScheduler_FreshDueDateUsesConfiguredDefaultTimeout(t *testing.T) {
	store := memory.New()
	resolver := actor.NewStaticResolver()
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	eng := instance.NewEngine(store, store, store, resolver, nil, nil, nil, clk,
		instance.WithDefaultStepTimeout(48*time.Hour))
	manager := task.NewManager(store, eng.Locks(), eng.AdvanceOnTaskTransition, nil, nil, clk)
	scheduler := escalation.NewScheduler(store, store, store, manager, resolver, clk, nil,
		escalation.WithDefaultStepTimeout(48*time.Hour))

	resolver.Grant("acme", "manager", "alice")
	resolver.AddUser("supervisor")

	// The step declares no timeout, so the task's due-date came from the
	// engine's configured default.
	def := &definition.Definition{
		ID:           id.NewDefinitionID(),
		TenantID:     "acme",
		Name:         "invoice-approval",
		WorkflowType: "Invoice",
		Version:      1,
		Active:       true,
		Steps: []definition.Step{{
			Name:       "Manager",
			Order:      1,
			Required:   true,
			Approver:   definition.ByRole("manager"),
			Escalation: definition.ByUser("supervisor"),
		}},
	}
	def.Steps[0].ID = id.NewStepID()
	def.Steps[0].DefinitionID = def.ID
	ctx := context.Background()
	if err := store.CreateDefinition(ctx, def); err != nil {
		t.Fatalf("create definition: %v", err)
	}
	inst, err := eng.CreateInstance(ctx, def.ID, "inv-1", "Invoice", "carol", instance.CreateOpts{})
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}

	clk.Advance(49 * time.Hour)
	acted, err := scheduler.ScanOnce(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if acted != 1 {
		t.Fatalf("acted: want 1, got %d", acted)
	}

	tasks, err := store.ListTasksByInstance(ctx, inst.ID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	got := tasks[0]
	if got.Assignee != "supervisor" {
		t.Errorf("assignee: want supervisor, got %q", got.Assignee)
	}
	// The escalation window matches the original one, not a shorter
	// built-in fallback.
	wantDue := clk.Now().Add(48 * time.Hour)
	if got.DueDate == nil || !got.DueDate.Equal(wantDue) {
		t.Errorf("due date: want %v, got %v", wantDue, got.DueDate)
	}
}

func TestParseSchedule(t *testing.T) {
	for _, expr := range []string{"*/5 * * * *", "@every 30s", "@hourly"} {
		if _, err := escalation.ParseSchedule(expr); err != nil {
			t.Errorf("ParseSchedule(%q): %v", expr, err)
		}
	}
	if _, err := escalation.ParseSchedule("not a schedule"); err == nil {
		t.Error("ParseSchedule must reject garbage")
	}
}

func TestWithSchedule_InvalidExpression(t *testing.T) {
	if _, err := escalation.WithSchedule("bogus"); err == nil {
		t.Error("WithSchedule must reject an invalid expression")
	}
}

package instance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xraph/approve"
	"github.com/xraph/approve/actor"
	"github.com/xraph/approve/clock"
	"github.com/xraph/approve/definition"
	"github.com/xraph/approve/id"
	"github.com/xraph/approve/task"
)

// Emitter emits instance lifecycle events. ext.Registry satisfies this
// interface.
type Emitter interface {
	EmitWorkflowStarted(ctx context.Context, inst *Instance)
	EmitWorkflowCompleted(ctx context.Context, inst *Instance, elapsed time.Duration)
	EmitWorkflowCancelled(ctx context.Context, inst *Instance, reason string)
	EmitWorkflowFailed(ctx context.Context, inst *Instance, reason string)
}

// CreateOpts carries the optional attributes of a new instance.
type CreateOpts struct {
	Priority int
	DueDate  *time.Time
	Context  []byte
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDefaultStepTimeout sets the due-date window for steps that do not
// declare their own timeout.
func WithDefaultStepTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.defaultTimeout = d }
}

// Engine owns the workflow instance lifecycle: creating instances from
// active definitions, turning approval steps into tasks, aggregating task
// outcomes into instance progression, and cascading terminal transitions
// to open tasks.
//
// Every mutation of an instance and its tasks runs under the instance's
// keyed mutex, so two tasks of the same instance completing concurrently
// cannot race to create duplicate next-step tasks.
type Engine struct {
	defs     definition.Store
	insts    Store
	tasks    task.Store
	resolver actor.Resolver

	emitter     Emitter
	taskEmitter task.Emitter
	locks       *KeyedMutex
	logger      *slog.Logger
	clk         clock.Clock

	defaultTimeout time.Duration
}

// NewEngine creates an instance engine.
func NewEngine(
	defs definition.Store,
	insts Store,
	tasks task.Store,
	resolver actor.Resolver,
	emitter Emitter,
	taskEmitter task.Emitter,
	logger *slog.Logger,
	clk clock.Clock,
	opts ...EngineOption,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.System()
	}
	e := &Engine{
		defs:           defs,
		insts:          insts,
		tasks:          tasks,
		resolver:       resolver,
		emitter:        emitter,
		taskEmitter:    taskEmitter,
		locks:          NewKeyedMutex(),
		logger:         logger,
		clk:            clk,
		defaultTimeout: 7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Locks returns the per-instance mutex shared with the task manager.
func (e *Engine) Locks() *KeyedMutex { return e.locks }

// CreateInstance starts a new instance of a definition, bound to a
// business entity, and instantiates the first wave of tasks: all parallel
// steps plus the first viable sequential step. Optional steps whose
// approver selector resolves to no actor are auto-skipped; a required
// step that resolves to no actor fails the instance.
//
// Fails with approve.ErrDuplicateRunningInstance if an instance is
// already Running for the same (definition, entity).
func (e *Engine) CreateInstance(ctx context.Context, defID id.DefinitionID, entityID, entityType, initiator string, opts CreateOpts) (*Instance, error) {
	def, err := e.defs.GetDefinition(ctx, defID)
	if err != nil {
		return nil, err
	}
	if !def.Active {
		return nil, fmt.Errorf("%w: definition %s version %d is inactive", approve.ErrNoActiveDefinition, def.Name, def.Version)
	}

	now := e.clk.Now()
	inst := &Instance{
		Entity:       approve.Entity{CreatedAt: now, UpdatedAt: now},
		ID:           id.NewInstanceID(),
		DefinitionID: def.ID,
		TenantID:     def.TenantID,
		EntityID:     entityID,
		EntityType:   entityType,
		Status:       StatusRunning,
		InitiatedBy:  initiator,
		StartedAt:    now,
		Priority:     task.ClampPriority(opts.Priority),
		DueDate:      opts.DueDate,
		Context:      opts.Context,
	}

	if err := e.insts.CreateInstance(ctx, inst); err != nil {
		return nil, err
	}

	e.logger.Info("workflow instance started",
		slog.String("instance_id", inst.ID.String()),
		slog.String("definition_id", def.ID.String()),
		slog.String("entity", inst.EntityRef()),
	)
	if e.emitter != nil {
		e.emitter.EmitWorkflowStarted(ctx, inst)
	}

	key := inst.ID.String()
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	if err := e.seed(ctx, inst, def); err != nil {
		// Seeding failed mid-way: fail the instance so the entity is not
		// stuck behind the duplicate-running guard.
		if ferr := e.markFailed(ctx, inst, fmt.Sprintf("task seeding failed: %v", err)); ferr != nil {
			e.logger.Error("mark instance failed after seed error",
				slog.String("instance_id", inst.ID.String()),
				slog.String("error", ferr.Error()),
			)
		}
		return nil, err
	}
	return inst, nil
}

// seed instantiates the first wave of tasks under the instance lock.
func (e *Engine) seed(ctx context.Context, inst *Instance, def *definition.Definition) error {
	for _, s := range sortedSteps(def) {
		if !s.Parallel {
			continue
		}
		created, err := e.createStepTasks(ctx, inst, s)
		if err != nil {
			return err
		}
		if created == 0 && s.Required {
			return e.markFailed(ctx, inst, fmt.Sprintf("required step %d resolves to no approver", s.Order))
		}
	}
	return e.activateNext(ctx, inst, def, 1)
}

// AdvanceOnTaskTransition re-evaluates the instance after a task
// transition. The task manager invokes it through the wired AdvanceFunc
// while holding the instance lock; it must not re-acquire the lock.
func (e *Engine) AdvanceOnTaskTransition(ctx context.Context, t *task.Task, _ task.Status) error {
	inst, err := e.insts.GetInstance(ctx, t.InstanceID)
	if err != nil {
		return err
	}
	// Suspended instances defer advancement until Resume; terminal
	// instances ignore late transitions (e.g. completing an Overdue
	// leftover).
	if inst.Status != StatusRunning {
		return nil
	}

	def, err := e.defs.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return err
	}

	if t.Status == task.StatusRejected {
		if step := def.StepByID(t.StepID); step != nil && step.Required {
			return e.cancelLocked(ctx, inst, "upstream step rejected")
		}
	}

	// Overdue is not terminal but can settle an optional step; no other
	// non-terminal transition unblocks progression.
	if !t.Status.Terminal() && t.Status != task.StatusOverdue {
		return nil
	}
	return e.evaluate(ctx, inst, def)
}

// evaluate decides the next move for a Running instance: wait, activate
// the next sequential step, fail, or complete.
func (e *Engine) evaluate(ctx context.Context, inst *Instance, def *definition.Definition) error {
	tasks, err := e.tasks.ListTasksByInstance(ctx, inst.ID)
	if err != nil {
		return err
	}

	if inst.CurrentStep > 0 {
		step := def.StepAt(inst.CurrentStep)
		stepTasks := tasksForOrder(def, tasks, inst.CurrentStep)
		if !stepSettled(step, stepTasks) {
			return nil // current step still outstanding
		}
		if step != nil && step.Required && !anyCompleted(stepTasks) {
			return e.markFailed(ctx, inst, fmt.Sprintf("required step %d ended without a completed task", inst.CurrentStep))
		}
		return e.activateNext(ctx, inst, def, inst.CurrentStep+1)
	}
	return e.tryComplete(ctx, inst, def)
}

// activateNext walks sequential steps from the given order, creating
// tasks for the first step with an eligible approver. Optional steps with
// nobody eligible are auto-skipped: counted as satisfied without a task.
// Exhausting the steps hands off to completion.
func (e *Engine) activateNext(ctx context.Context, inst *Instance, def *definition.Definition, fromOrder int) error {
	for order := fromOrder; order <= def.MaxOrder(); order++ {
		s := def.StepAt(order)
		if s == nil || s.Parallel {
			continue
		}

		created, err := e.createStepTasks(ctx, inst, *s)
		if err != nil {
			return err
		}
		if created == 0 {
			if s.Required {
				return e.markFailed(ctx, inst, fmt.Sprintf("required step %d resolves to no approver", s.Order))
			}
			e.logger.Info("optional step auto-skipped",
				slog.String("instance_id", inst.ID.String()),
				slog.Int("step_order", s.Order),
			)
			continue
		}

		inst.CurrentStep = order
		inst.Touch(e.clk.Now())
		return e.insts.UpdateInstance(ctx, inst)
	}
	return e.tryComplete(ctx, inst, def)
}

// tryComplete finishes the instance once no sequential steps remain and
// every required step is satisfied. Leftover open tasks from optional
// steps are cancelled as part of the same critical section.
func (e *Engine) tryComplete(ctx context.Context, inst *Instance, def *definition.Definition) error {
	tasks, err := e.tasks.ListTasksByInstance(ctx, inst.ID)
	if err != nil {
		return err
	}

	for i := range def.Steps {
		s := &def.Steps[i]
		if !s.Required {
			continue
		}
		stepTasks := tasksForOrder(def, tasks, s.Order)
		if !stepSettled(s, stepTasks) {
			return nil // a required step is still outstanding
		}
		if len(stepTasks) > 0 && !anyCompleted(stepTasks) {
			return e.markFailed(ctx, inst, fmt.Sprintf("required step %d ended without a completed task", s.Order))
		}
	}

	cancelled, previous, err := e.cancelOpenTasks(tasks, "workflow completed")
	if err != nil {
		return err
	}

	now := e.clk.Now()
	inst.Status = StatusCompleted
	inst.CompletedAt = &now
	inst.Touch(now)
	if err := e.insts.SaveInstanceTx(ctx, inst, cancelled); err != nil {
		return err
	}
	e.emitCancelled(ctx, cancelled, previous)

	e.logger.Info("workflow instance completed",
		slog.String("instance_id", inst.ID.String()),
		slog.String("entity", inst.EntityRef()),
	)
	if e.emitter != nil {
		e.emitter.EmitWorkflowCompleted(ctx, inst, now.Sub(inst.StartedAt))
	}
	return nil
}

// Cancel cancels a Running or Suspended instance and cascades Cancel to
// every open task within the same critical section: no observer sees the
// instance Cancelled while an owned task is still open.
func (e *Engine) Cancel(ctx context.Context, instID id.InstanceID, actorID, reason string) error {
	key := instID.String()
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	inst, err := e.insts.GetInstance(ctx, instID)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() {
		return &approve.TransitionError{
			Entity:    "instance",
			ID:        instID.String(),
			Current:   string(inst.Status),
			Attempted: "cancel",
		}
	}
	if reason == "" {
		reason = "workflow cancelled"
	}

	e.logger.Info("workflow instance cancelled",
		slog.String("instance_id", instID.String()),
		slog.String("actor", actorID),
		slog.String("reason", reason),
	)
	return e.cancelLocked(ctx, inst, reason)
}

// cancelLocked applies the cancel cascade; callers hold the instance lock.
func (e *Engine) cancelLocked(ctx context.Context, inst *Instance, reason string) error {
	tasks, err := e.tasks.ListTasksByInstance(ctx, inst.ID)
	if err != nil {
		return err
	}
	cancelled, previous, err := e.cancelOpenTasks(tasks, reason)
	if err != nil {
		return err
	}

	now := e.clk.Now()
	inst.Status = StatusCancelled
	inst.CompletedAt = &now
	inst.Touch(now)
	if err := e.insts.SaveInstanceTx(ctx, inst, cancelled); err != nil {
		return err
	}
	e.emitCancelled(ctx, cancelled, previous)

	if e.emitter != nil {
		e.emitter.EmitWorkflowCancelled(ctx, inst, reason)
	}
	return nil
}

// Suspend blocks step advancement. Open tasks stay open and may still be
// completed; their effects apply when the instance resumes.
func (e *Engine) Suspend(ctx context.Context, instID id.InstanceID, reason string) error {
	key := instID.String()
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	inst, err := e.insts.GetInstance(ctx, instID)
	if err != nil {
		return err
	}
	if inst.Status != StatusRunning {
		return &approve.TransitionError{
			Entity:    "instance",
			ID:        instID.String(),
			Current:   string(inst.Status),
			Attempted: "suspend",
		}
	}

	inst.Status = StatusSuspended
	inst.Touch(e.clk.Now())
	if err := e.insts.UpdateInstance(ctx, inst); err != nil {
		return err
	}

	e.logger.Info("workflow instance suspended",
		slog.String("instance_id", instID.String()),
		slog.String("reason", reason),
	)
	return nil
}

// Resume returns a Suspended instance to Running and immediately
// re-evaluates it, applying any task outcomes that arrived while
// suspended.
func (e *Engine) Resume(ctx context.Context, instID id.InstanceID) error {
	key := instID.String()
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	inst, err := e.insts.GetInstance(ctx, instID)
	if err != nil {
		return err
	}
	if inst.Status != StatusSuspended {
		return &approve.TransitionError{
			Entity:    "instance",
			ID:        instID.String(),
			Current:   string(inst.Status),
			Attempted: "resume",
		}
	}

	inst.Status = StatusRunning
	inst.Touch(e.clk.Now())
	if err := e.insts.UpdateInstance(ctx, inst); err != nil {
		return err
	}

	def, err := e.defs.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return err
	}
	return e.evaluate(ctx, inst, def)
}

// SetPriority updates the instance priority (clamped 1–5). Rejected once
// terminal.
func (e *Engine) SetPriority(ctx context.Context, instID id.InstanceID, priority int) error {
	return e.mutate(ctx, instID, "set priority", func(inst *Instance) {
		inst.Priority = task.ClampPriority(priority)
	})
}

// SetDueDate updates the instance-level due-date. It is independent of
// per-task due-dates and never affects engine transitions.
func (e *Engine) SetDueDate(ctx context.Context, instID id.InstanceID, due *time.Time) error {
	return e.mutate(ctx, instID, "set due date", func(inst *Instance) {
		inst.DueDate = due
	})
}

func (e *Engine) mutate(ctx context.Context, instID id.InstanceID, attempted string, fn func(*Instance)) error {
	key := instID.String()
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	inst, err := e.insts.GetInstance(ctx, instID)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() {
		return &approve.TransitionError{
			Entity:    "instance",
			ID:        instID.String(),
			Current:   string(inst.Status),
			Attempted: attempted,
		}
	}
	fn(inst)
	inst.Touch(e.clk.Now())
	return e.insts.UpdateInstance(ctx, inst)
}

// Get retrieves an instance by ID.
func (e *Engine) Get(ctx context.Context, instID id.InstanceID) (*Instance, error) {
	return e.insts.GetInstance(ctx, instID)
}

// List returns instances matching the given options.
func (e *Engine) List(ctx context.Context, opts ListOpts) ([]*Instance, error) {
	return e.insts.ListInstances(ctx, opts)
}

// Tasks returns every task owned by an instance.
func (e *Engine) Tasks(ctx context.Context, instID id.InstanceID) ([]*task.Task, error) {
	return e.tasks.ListTasksByInstance(ctx, instID)
}

// markFailed terminates the instance with an unrecoverable step failure,
// cancelling whatever tasks are still open.
func (e *Engine) markFailed(ctx context.Context, inst *Instance, reason string) error {
	tasks, err := e.tasks.ListTasksByInstance(ctx, inst.ID)
	if err != nil {
		return err
	}
	cancelled, previous, err := e.cancelOpenTasks(tasks, "workflow failed")
	if err != nil {
		return err
	}

	now := e.clk.Now()
	inst.Status = StatusFailed
	inst.FailureReason = reason
	inst.CompletedAt = &now
	inst.Touch(now)
	if err := e.insts.SaveInstanceTx(ctx, inst, cancelled); err != nil {
		return err
	}
	e.emitCancelled(ctx, cancelled, previous)

	e.logger.Warn("workflow instance failed",
		slog.String("instance_id", inst.ID.String()),
		slog.String("reason", reason),
	)
	if e.emitter != nil {
		e.emitter.EmitWorkflowFailed(ctx, inst, reason)
	}
	return nil
}

// cancelOpenTasks transitions every Pending, InProgress, or Overdue task
// to Cancelled without persisting, returning the updated tasks with their
// previous statuses. The caller saves them atomically with the instance
// and emits afterwards.
func (e *Engine) cancelOpenTasks(tasks []*task.Task, reason string) ([]*task.Task, []task.Status, error) {
	now := e.clk.Now()
	var (
		cancelled []*task.Task
		previous  []task.Status
	)
	for _, t := range tasks {
		if t.Status.Terminal() {
			continue
		}
		next, err := task.Next(*t, task.Transition{Kind: task.KindCancel, Reason: reason}, now)
		if err != nil {
			return nil, nil, err
		}
		cancelled = append(cancelled, &next)
		previous = append(previous, t.Status)
	}
	return cancelled, previous, nil
}

func (e *Engine) emitCancelled(ctx context.Context, cancelled []*task.Task, previous []task.Status) {
	if e.taskEmitter == nil {
		return
	}
	for i, t := range cancelled {
		e.taskEmitter.EmitTaskTransitioned(ctx, t, previous[i])
	}
}

// createStepTasks creates one task per eligible approver for a step and
// returns how many were created. Zero with a nil error means the selector
// resolved to nobody.
func (e *Engine) createStepTasks(ctx context.Context, inst *Instance, s definition.Step) (int, error) {
	approvers, err := s.Approver.Resolve(ctx, e.resolver, inst.TenantID)
	if err != nil {
		return 0, fmt.Errorf("resolve approver for step %d: %w", s.Order, err)
	}
	if len(approvers) == 0 {
		return 0, nil
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	now := e.clk.Now()
	due := now.Add(timeout)

	title := s.Name
	if title == "" {
		title = fmt.Sprintf("Approval step %d", s.Order)
	}

	for _, assignee := range approvers {
		t := &task.Task{
			Entity:      approve.Entity{CreatedAt: now, UpdatedAt: now},
			ID:          id.NewTaskID(),
			InstanceID:  inst.ID,
			StepID:      s.ID,
			TenantID:    inst.TenantID,
			Title:       title,
			Description: s.Description,
			Type:        task.TypeApproval,
			Status:      task.StatusPending,
			Assignee:    assignee,
			Priority:    inst.Priority,
			DueDate:     &due,
		}
		if err := e.tasks.CreateTask(ctx, t); err != nil {
			return 0, err
		}
		if e.taskEmitter != nil {
			e.taskEmitter.EmitTaskCreated(ctx, t)
		}
	}

	e.logger.Info("step tasks created",
		slog.String("instance_id", inst.ID.String()),
		slog.Int("step_order", s.Order),
		slog.Int("tasks", len(approvers)),
	)
	return len(approvers), nil
}

// sortedSteps returns the definition's steps ordered by step order.
func sortedSteps(def *definition.Definition) []definition.Step {
	steps := make([]definition.Step, len(def.Steps))
	copy(steps, def.Steps)
	sort.Slice(steps, func(i, k int) bool { return steps[i].Order < steps[k].Order })
	return steps
}

// tasksForOrder returns the tasks belonging to the step with the given
// order.
func tasksForOrder(def *definition.Definition, tasks []*task.Task, order int) []*task.Task {
	step := def.StepAt(order)
	if step == nil {
		return nil
	}
	var out []*task.Task
	for _, t := range tasks {
		if t.StepID.String() == step.ID.String() {
			out = append(out, t)
		}
	}
	return out
}

// stepSettled reports whether a step no longer gates progression: every
// task is terminal, or the only open tasks are Overdue on a step that is
// optional or already satisfied by a completed task. Overdue tasks stay
// actionable either way.
func stepSettled(s *definition.Step, stepTasks []*task.Task) bool {
	for _, t := range stepTasks {
		if t.Status.Terminal() {
			continue
		}
		if t.Status == task.StatusOverdue && (s == nil || !s.Required || anyCompleted(stepTasks)) {
			continue
		}
		return false
	}
	return true
}

func anyCompleted(tasks []*task.Task) bool {
	for _, t := range tasks {
		if t.Status == task.StatusCompleted {
			return true
		}
	}
	return false
}

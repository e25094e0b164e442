package engine

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/approve"
	"github.com/xraph/approve/definition"
	"github.com/xraph/approve/escalation"
	"github.com/xraph/approve/event"
	"github.com/xraph/approve/ext"
	"github.com/xraph/approve/id"
	"github.com/xraph/approve/instance"
	"github.com/xraph/approve/observability"
	"github.com/xraph/approve/task"
)

// Engine wraps an Orchestrator with typed subsystem access.
// Use Build() to create one from an Orchestrator.
type Engine struct {
	o          *approve.Orchestrator
	extensions *ext.Registry

	definitions *definition.Registry
	instances   *instance.Engine
	tasks       *task.Manager
	scheduler   *escalation.Scheduler
	eventBus    *event.Bus

	// pendingExts holds extensions registered via options before the
	// registry exists.
	pendingExts []ext.Extension

	// OpenTelemetry provider (optional; nil means use global).
	meterProvider metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.pendingExts = append(eng.pendingExts, e)
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine's
// observability extension. If not set, the global otel.GetMeterProvider()
// is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Orchestrator.
// The Orchestrator's store must implement every subsystem store.
func Build(o *approve.Orchestrator, opts ...Option) (*Engine, error) {
	logger := o.Logger()
	store := o.Store()
	clk := o.Clock()

	if store == nil {
		return nil, approve.ErrNoStore
	}

	ds, ok := store.(definition.Store)
	if !ok {
		return nil, fmt.Errorf("approve: store does not implement definition.Store")
	}
	is, ok := store.(instance.Store)
	if !ok {
		return nil, fmt.Errorf("approve: store does not implement instance.Store")
	}
	ts, ok := store.(task.Store)
	if !ok {
		return nil, fmt.Errorf("approve: store does not implement task.Store")
	}
	es, ok := store.(event.Store)
	if !ok {
		return nil, fmt.Errorf("approve: store does not implement event.Store")
	}

	eng := &Engine{
		o:          o,
		extensions: ext.NewRegistry(logger),
	}

	for _, opt := range opts {
		opt(eng)
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/xraph/approve/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// Bridge lifecycle events onto the event bus.
	eng.eventBus = event.NewBus(es)
	eng.extensions.Register(&busExtension{bus: eng.eventBus, logger: logger})

	// Caller extensions run after the built-ins.
	for _, e := range eng.pendingExts {
		eng.extensions.Register(e)
	}

	config := o.Config()

	// Definition registry.
	eng.definitions = definition.NewRegistry(ds, logger, clk)

	// Instance engine. The ext registry satisfies both emitter interfaces.
	eng.instances = instance.NewEngine(
		ds, is, ts,
		o.Resolver(),
		eng.extensions,
		eng.extensions,
		logger,
		clk,
		instance.WithDefaultStepTimeout(config.DefaultStepTimeout),
	)

	// Task manager, sharing the instance engine's keyed mutex so a task
	// transition and the resulting re-evaluation apply atomically.
	eng.tasks = task.NewManager(
		ts,
		eng.instances.Locks(),
		eng.instances.AdvanceOnTaskTransition,
		eng.extensions,
		logger,
		clk,
	)

	// Escalation scheduler.
	schedOpts := []escalation.Option{
		escalation.WithTickInterval(config.ScanInterval),
		escalation.WithDefaultStepTimeout(config.DefaultStepTimeout),
	}
	if config.ScanSchedule != "" {
		scheduleOpt, err := escalation.WithSchedule(config.ScanSchedule)
		if err != nil {
			return nil, fmt.Errorf("approve: invalid scan schedule %q: %w", config.ScanSchedule, err)
		}
		schedOpts = append(schedOpts, scheduleOpt)
	}
	eng.scheduler = escalation.NewScheduler(
		ts, is, ds,
		eng.tasks,
		o.Resolver(),
		clk,
		logger,
		schedOpts...,
	)

	// Wire back into the Orchestrator.
	o.SetScheduler(eng.scheduler)
	o.SetExtensions(eng.extensions)

	return eng, nil
}

// ──────────────────────────────────────────────────
// Definition operations
// ──────────────────────────────────────────────────

// RegisterDefinition validates and persists a new definition version.
func (eng *Engine) RegisterDefinition(ctx approve.Context, def *definition.Definition) (id.DefinitionID, error) {
	return eng.definitions.Register(ctx, def)
}

// NewDefinitionVersion derives the next version of a definition with a
// replacement step list. The new version starts inactive.
func (eng *Engine) NewDefinitionVersion(ctx approve.Context, defID id.DefinitionID, steps []definition.Step, createdBy string) (*definition.Definition, error) {
	return eng.definitions.NewVersion(ctx, defID, steps, createdBy)
}

// ActivateDefinition marks a definition version active.
func (eng *Engine) ActivateDefinition(ctx approve.Context, defID id.DefinitionID) error {
	return eng.definitions.Activate(ctx, defID)
}

// DeactivateDefinition marks a definition version inactive. Running
// instances bound to it are unaffected.
func (eng *Engine) DeactivateDefinition(ctx approve.Context, defID id.DefinitionID) error {
	return eng.definitions.Deactivate(ctx, defID)
}

// ResolveDefinition returns the highest active version for a tenant and
// workflow type.
func (eng *Engine) ResolveDefinition(ctx approve.Context, tenantID, workflowType string) (*definition.Definition, error) {
	return eng.definitions.Resolve(ctx, tenantID, workflowType)
}

// ──────────────────────────────────────────────────
// Instance operations
// ──────────────────────────────────────────────────

// StartWorkflow creates an instance of a definition bound to a business
// entity and seeds its first wave of tasks.
func (eng *Engine) StartWorkflow(ctx approve.Context, defID id.DefinitionID, entityID, entityType, initiator string, opts instance.CreateOpts) (*instance.Instance, error) {
	return eng.instances.CreateInstance(ctx, defID, entityID, entityType, initiator, opts)
}

// CancelWorkflow cancels a running or suspended instance and cascades the
// cancellation to its open tasks.
func (eng *Engine) CancelWorkflow(ctx approve.Context, instID id.InstanceID, actorID, reason string) error {
	return eng.instances.Cancel(ctx, instID, actorID, reason)
}

// SuspendWorkflow blocks step advancement for an instance until Resume.
func (eng *Engine) SuspendWorkflow(ctx approve.Context, instID id.InstanceID, reason string) error {
	return eng.instances.Suspend(ctx, instID, reason)
}

// ResumeWorkflow unblocks a suspended instance and re-evaluates its
// progression, catching up on task outcomes applied while suspended.
func (eng *Engine) ResumeWorkflow(ctx approve.Context, instID id.InstanceID) error {
	return eng.instances.Resume(ctx, instID)
}

// GetInstance retrieves an instance by ID.
func (eng *Engine) GetInstance(ctx approve.Context, instID id.InstanceID) (*instance.Instance, error) {
	return eng.instances.Get(ctx, instID)
}

// ──────────────────────────────────────────────────
// Task operations
// ──────────────────────────────────────────────────

// StartTask moves a Pending task to InProgress on behalf of its assignee.
func (eng *Engine) StartTask(ctx approve.Context, taskID id.TaskID, actorID string) (*task.Task, error) {
	return eng.tasks.Start(ctx, taskID, actorID)
}

// CompleteTask finishes a task with an outcome and advances its instance.
func (eng *Engine) CompleteTask(ctx approve.Context, taskID id.TaskID, outcome, notes string, formData []byte) (*task.Task, error) {
	return eng.tasks.Complete(ctx, taskID, outcome, notes, formData)
}

// RejectTask rejects a task; a rejected required step cancels the
// instance.
func (eng *Engine) RejectTask(ctx approve.Context, taskID id.TaskID, outcome, reason string) (*task.Task, error) {
	return eng.tasks.Reject(ctx, taskID, outcome, reason)
}

// ReassignTask hands a task to a new assignee.
func (eng *Engine) ReassignTask(ctx approve.Context, taskID id.TaskID, newAssignee, byActor, reason string) (*task.Task, error) {
	return eng.tasks.Reassign(ctx, taskID, newAssignee, byActor, reason)
}

// ListTasksByAssignee returns tasks assigned to a user.
func (eng *Engine) ListTasksByAssignee(ctx approve.Context, assignee string, opts task.ListOpts) ([]*task.Task, error) {
	return eng.tasks.ListByAssignee(ctx, assignee, opts)
}

// ──────────────────────────────────────────────────
// Lifecycle and accessors
// ──────────────────────────────────────────────────

// Start launches the escalation scheduler.
func (eng *Engine) Start(ctx approve.Context) error {
	return eng.o.Start(ctx)
}

// Stop gracefully shuts down the engine.
func (eng *Engine) Stop(ctx approve.Context) error {
	return eng.o.Stop(ctx)
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Definitions returns the definition registry.
func (eng *Engine) Definitions() *definition.Registry { return eng.definitions }

// Instances returns the instance engine.
func (eng *Engine) Instances() *instance.Engine { return eng.instances }

// Tasks returns the task manager.
func (eng *Engine) Tasks() *task.Manager { return eng.tasks }

// Scheduler returns the escalation scheduler.
func (eng *Engine) Scheduler() *escalation.Scheduler { return eng.scheduler }

// EventBus returns the event bus.
func (eng *Engine) EventBus() *event.Bus { return eng.eventBus }

// Orchestrator returns the underlying Orchestrator.
func (eng *Engine) Orchestrator() *approve.Orchestrator { return eng.o }

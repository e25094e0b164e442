package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/approve/instance"
	"github.com/xraph/approve/task"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type workflowStartedEntry struct {
	name string
	hook WorkflowStarted
}

type workflowCompletedEntry struct {
	name string
	hook WorkflowCompleted
}

type workflowCancelledEntry struct {
	name string
	hook WorkflowCancelled
}

type workflowFailedEntry struct {
	name string
	hook WorkflowFailed
}

type taskCreatedEntry struct {
	name string
	hook TaskCreated
}

type taskTransitionedEntry struct {
	name string
	hook TaskTransitioned
}

type taskEscalatedEntry struct {
	name string
	hook TaskEscalated
}

type taskOverdueEntry struct {
	name string
	hook TaskOverdue
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Registry satisfies both task.Emitter and instance.Emitter, making it
// the single fan-out point for engine lifecycle events.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	workflowStarted   []workflowStartedEntry
	workflowCompleted []workflowCompletedEntry
	workflowCancelled []workflowCancelledEntry
	workflowFailed    []workflowFailedEntry
	taskCreated       []taskCreatedEntry
	taskTransitioned  []taskTransitionedEntry
	taskEscalated     []taskEscalatedEntry
	taskOverdue       []taskOverdueEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(WorkflowStarted); ok {
		r.workflowStarted = append(r.workflowStarted, workflowStartedEntry{name, h})
	}
	if h, ok := e.(WorkflowCompleted); ok {
		r.workflowCompleted = append(r.workflowCompleted, workflowCompletedEntry{name, h})
	}
	if h, ok := e.(WorkflowCancelled); ok {
		r.workflowCancelled = append(r.workflowCancelled, workflowCancelledEntry{name, h})
	}
	if h, ok := e.(WorkflowFailed); ok {
		r.workflowFailed = append(r.workflowFailed, workflowFailedEntry{name, h})
	}
	if h, ok := e.(TaskCreated); ok {
		r.taskCreated = append(r.taskCreated, taskCreatedEntry{name, h})
	}
	if h, ok := e.(TaskTransitioned); ok {
		r.taskTransitioned = append(r.taskTransitioned, taskTransitionedEntry{name, h})
	}
	if h, ok := e.(TaskEscalated); ok {
		r.taskEscalated = append(r.taskEscalated, taskEscalatedEntry{name, h})
	}
	if h, ok := e.(TaskOverdue); ok {
		r.taskOverdue = append(r.taskOverdue, taskOverdueEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Workflow event emitters
// ──────────────────────────────────────────────────

// EmitWorkflowStarted notifies all extensions that implement WorkflowStarted.
func (r *Registry) EmitWorkflowStarted(ctx context.Context, inst *instance.Instance) {
	for _, e := range r.workflowStarted {
		if err := e.hook.OnWorkflowStarted(ctx, inst); err != nil {
			r.logHookError("OnWorkflowStarted", e.name, err)
		}
	}
}

// EmitWorkflowCompleted notifies all extensions that implement WorkflowCompleted.
func (r *Registry) EmitWorkflowCompleted(ctx context.Context, inst *instance.Instance, elapsed time.Duration) {
	for _, e := range r.workflowCompleted {
		if err := e.hook.OnWorkflowCompleted(ctx, inst, elapsed); err != nil {
			r.logHookError("OnWorkflowCompleted", e.name, err)
		}
	}
}

// EmitWorkflowCancelled notifies all extensions that implement WorkflowCancelled.
func (r *Registry) EmitWorkflowCancelled(ctx context.Context, inst *instance.Instance, reason string) {
	for _, e := range r.workflowCancelled {
		if err := e.hook.OnWorkflowCancelled(ctx, inst, reason); err != nil {
			r.logHookError("OnWorkflowCancelled", e.name, err)
		}
	}
}

// EmitWorkflowFailed notifies all extensions that implement WorkflowFailed.
func (r *Registry) EmitWorkflowFailed(ctx context.Context, inst *instance.Instance, reason string) {
	for _, e := range r.workflowFailed {
		if err := e.hook.OnWorkflowFailed(ctx, inst, reason); err != nil {
			r.logHookError("OnWorkflowFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Task event emitters
// ──────────────────────────────────────────────────

// EmitTaskCreated notifies all extensions that implement TaskCreated.
func (r *Registry) EmitTaskCreated(ctx context.Context, t *task.Task) {
	for _, e := range r.taskCreated {
		if err := e.hook.OnTaskCreated(ctx, t); err != nil {
			r.logHookError("OnTaskCreated", e.name, err)
		}
	}
}

// EmitTaskTransitioned notifies all extensions that implement TaskTransitioned.
func (r *Registry) EmitTaskTransitioned(ctx context.Context, t *task.Task, prev task.Status) {
	for _, e := range r.taskTransitioned {
		if err := e.hook.OnTaskTransitioned(ctx, t, prev); err != nil {
			r.logHookError("OnTaskTransitioned", e.name, err)
		}
	}
}

// EmitTaskEscalated notifies all extensions that implement TaskEscalated.
func (r *Registry) EmitTaskEscalated(ctx context.Context, t *task.Task, previousAssignee string) {
	for _, e := range r.taskEscalated {
		if err := e.hook.OnTaskEscalated(ctx, t, previousAssignee); err != nil {
			r.logHookError("OnTaskEscalated", e.name, err)
		}
	}
}

// EmitTaskOverdue notifies all extensions that implement TaskOverdue.
func (r *Registry) EmitTaskOverdue(ctx context.Context, t *task.Task) {
	for _, e := range r.taskOverdue {
		if err := e.hook.OnTaskOverdue(ctx, t); err != nil {
			r.logHookError("OnTaskOverdue", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the engine.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}

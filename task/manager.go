package task

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/approve"
	"github.com/xraph/approve/clock"
	"github.com/xraph/approve/id"
)

// AdvanceFunc is the callback the manager invokes after every successful
// transition, while still holding the per-instance lock. This breaks the
// import cycle: the instance engine provides the implementation
// (AdvanceOnTaskTransition).
type AdvanceFunc func(ctx context.Context, t *Task, prev Status) error

// Locker serializes work per instance. The instance engine's keyed mutex
// satisfies this interface; the same keys guard instance-level operations
// so a task transition and the resulting instance re-evaluation apply as
// one atomic unit.
type Locker interface {
	Lock(key string)
	Unlock(key string)
}

// Emitter emits task lifecycle events. ext.Registry satisfies this
// interface.
type Emitter interface {
	EmitTaskCreated(ctx context.Context, t *Task)
	EmitTaskTransitioned(ctx context.Context, t *Task, prev Status)
	EmitTaskEscalated(ctx context.Context, t *Task, previousAssignee string)
	EmitTaskOverdue(ctx context.Context, t *Task)
}

// Manager owns the task lifecycle. Every mutation goes through the status
// graph in Next; there is no direct field mutation path to a terminal
// status. All operations are idempotent-safe: repeating a call with the
// same input either succeeds as a no-op or fails with a typed error,
// never silently overwriting audit history.
type Manager struct {
	store   Store
	locks   Locker
	advance AdvanceFunc
	emitter Emitter
	logger  *slog.Logger
	clk     clock.Clock
}

// NewManager creates a task manager. The locker and advance callback are
// wired by the engine package; passing a nil advance is valid for tests
// that exercise the task lifecycle in isolation.
func NewManager(store Store, locks Locker, advance AdvanceFunc, emitter Emitter, logger *slog.Logger, clk clock.Clock) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Manager{
		store:   store,
		locks:   locks,
		advance: advance,
		emitter: emitter,
		logger:  logger,
		clk:     clk,
	}
}

// Start moves a Pending task to InProgress on behalf of its assignee.
func (m *Manager) Start(ctx context.Context, taskID id.TaskID, actorID string) (*Task, error) {
	return m.apply(ctx, taskID, Transition{Kind: KindStart, Actor: actorID})
}

// Complete finishes a task with an outcome. Allowed from Pending,
// InProgress, or Overdue — a task may be completed without an explicit
// start. Completing an already-Completed task is a no-op success only if
// the outcome matches; a different outcome fails with
// approve.ErrAlreadyCompleted.
func (m *Manager) Complete(ctx context.Context, taskID id.TaskID, outcome, notes string, formData []byte) (*Task, error) {
	return m.apply(ctx, taskID, Transition{
		Kind:     KindComplete,
		Outcome:  outcome,
		Notes:    notes,
		FormData: formData,
	})
}

// Reject rejects a task, recording the reason as completion notes.
// Same preconditions as Complete.
func (m *Manager) Reject(ctx context.Context, taskID id.TaskID, outcome, reason string) (*Task, error) {
	return m.apply(ctx, taskID, Transition{Kind: KindReject, Outcome: outcome, Reason: reason})
}

// Cancel cancels a task from any non-terminal status. Cancelling an
// already-Cancelled task is a no-op success; Completed and Rejected are
// immutable outcomes and fail.
func (m *Manager) Cancel(ctx context.Context, taskID id.TaskID, reason string) (*Task, error) {
	return m.apply(ctx, taskID, Transition{Kind: KindCancel, Reason: reason})
}

// Reassign hands a task to a new assignee. Disallowed once terminal. An
// InProgress task resets to Pending so the new assignee must explicitly
// start it.
func (m *Manager) Reassign(ctx context.Context, taskID id.TaskID, newAssignee, byActor, reason string) (*Task, error) {
	return m.apply(ctx, taskID, Transition{
		Kind:     KindReassign,
		Actor:    byActor,
		Assignee: newAssignee,
		Reason:   reason,
	})
}

// Escalate reassigns an open task to its escalation target with a fresh
// due-date. At most one escalation per task: a task that has already
// escalated fails with an invalid-transition error.
func (m *Manager) Escalate(ctx context.Context, taskID id.TaskID, target string, due time.Time) (*Task, error) {
	return m.apply(ctx, taskID, Transition{
		Kind:     KindEscalate,
		Assignee: target,
		DueDate:  &due,
	})
}

// MarkOverdue moves an open task to Overdue. The instance is not blocked;
// the task stays actionable.
func (m *Manager) MarkOverdue(ctx context.Context, taskID id.TaskID) (*Task, error) {
	return m.apply(ctx, taskID, Transition{Kind: KindMarkOverdue})
}

// Get retrieves a task by ID.
func (m *Manager) Get(ctx context.Context, taskID id.TaskID) (*Task, error) {
	return m.store.GetTask(ctx, taskID)
}

// ListByAssignee returns tasks assigned to a user.
func (m *Manager) ListByAssignee(ctx context.Context, assignee string, opts ListOpts) ([]*Task, error) {
	return m.store.ListTasksByAssignee(ctx, assignee, opts)
}

// apply runs one transition under the owning instance's lock: reload,
// check idempotency, apply the pure transition, persist, advance the
// instance, then emit.
func (m *Manager) apply(ctx context.Context, taskID id.TaskID, tr Transition) (*Task, error) {
	// First read only locates the owning instance for the lock key.
	located, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	key := located.InstanceID.String()
	if m.locks != nil {
		m.locks.Lock(key)
		defer m.locks.Unlock(key)
	}

	// Reload under the lock; a concurrent actor may have won the race.
	t, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if done, result, idemErr := m.checkIdempotent(t, tr); done {
		return result, idemErr
	}
	if tr.Kind == KindEscalate && t.EscalatedAt != nil {
		return nil, &approve.TransitionError{
			Entity:    "task",
			ID:        t.ID.String(),
			Current:   string(t.Status),
			Attempted: string(tr.Kind),
		}
	}

	prev := t.Status
	previousAssignee := t.Assignee

	next, err := Next(*t, tr, m.clk.Now())
	if err != nil {
		var te transitionError
		if errors.As(err, &te) {
			return nil, &approve.TransitionError{
				Entity:    "task",
				ID:        t.ID.String(),
				Current:   string(t.Status),
				Attempted: string(tr.Kind),
			}
		}
		return nil, err
	}

	if err := m.store.UpdateTask(ctx, &next); err != nil {
		return nil, err
	}

	if m.advance != nil {
		if err := m.advance(ctx, &next, prev); err != nil {
			return nil, err
		}
	}

	m.logger.Info("task transitioned",
		slog.String("task_id", next.ID.String()),
		slog.String("instance_id", next.InstanceID.String()),
		slog.String("from", string(prev)),
		slog.String("to", string(next.Status)),
	)

	if m.emitter != nil {
		m.emitter.EmitTaskTransitioned(ctx, &next, prev)
		switch tr.Kind {
		case KindEscalate:
			m.emitter.EmitTaskEscalated(ctx, &next, previousAssignee)
		case KindMarkOverdue:
			m.emitter.EmitTaskOverdue(ctx, &next)
		}
	}

	return &next, nil
}

// checkIdempotent short-circuits repeat calls that land on a task already
// in the requested terminal status.
func (m *Manager) checkIdempotent(t *Task, tr Transition) (bool, *Task, error) {
	switch tr.Kind {
	case KindComplete:
		if t.Status == StatusCompleted {
			if t.Outcome == tr.Outcome {
				return true, t, nil
			}
			return true, nil, approve.ErrAlreadyCompleted
		}
	case KindCancel:
		if t.Status == StatusCancelled {
			return true, t, nil
		}
	}
	return false, nil, nil
}

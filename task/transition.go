package task

import "time"

// Kind names a task state transition.
type Kind string

const (
	KindStart       Kind = "start"
	KindComplete    Kind = "complete"
	KindReject      Kind = "reject"
	KindCancel      Kind = "cancel"
	KindReassign    Kind = "reassign"
	KindEscalate    Kind = "escalate"
	KindMarkOverdue Kind = "mark_overdue"
)

// Transition is one requested state change. Which fields are read depends
// on Kind: Complete reads Outcome/Notes/FormData, Reject and Cancel read
// Reason, Reassign and Escalate read Assignee (and Escalate DueDate).
type Transition struct {
	Kind     Kind
	Actor    string
	Outcome  string
	Notes    string
	FormData []byte
	Assignee string
	Reason   string
	DueDate  *time.Time
}

// transitionErrorFunc builds the status/transition detail error. It lives
// behind a tiny indirection so this file depends only on the status
// graph, keeping Next pure and table-testable.
type transitionError struct {
	id        string
	current   Status
	attempted Kind
}

func (e transitionError) Error() string {
	return "task " + e.id + ": cannot " + string(e.attempted) + " in status " + string(e.current)
}

// Next applies tr to a copy of t at the given instant and returns the
// resulting task. It is pure: no I/O, no clock reads, no mutation of the
// input. An illegal transition returns a transitionError; the Manager
// wraps it into the caller-facing typed error.
//
// Status graph:
//
//	Pending --start--> InProgress
//	Pending/InProgress/Overdue --complete--> Completed
//	Pending/InProgress/Overdue --reject--> Rejected
//	Pending/InProgress/Overdue --cancel--> Cancelled
//	Pending/InProgress/Overdue --reassign--> Pending
//	Pending/InProgress --escalate--> Pending (new assignee, fresh due-date)
//	Pending/InProgress --mark_overdue--> Overdue
func Next(t Task, tr Transition, now time.Time) (Task, error) {
	fail := func() (Task, error) {
		return Task{}, transitionError{id: t.ID.String(), current: t.Status, attempted: tr.Kind}
	}

	switch tr.Kind {
	case KindStart:
		if t.Status != StatusPending {
			return fail()
		}
		t.Status = StatusInProgress
		t.StartedAt = &now

	case KindComplete:
		if t.Status.Terminal() {
			return fail()
		}
		t.Status = StatusCompleted
		t.CompletedAt = &now
		t.Outcome = tr.Outcome
		t.CompletionNotes = tr.Notes
		if tr.FormData != nil {
			t.FormData = tr.FormData
		}

	case KindReject:
		if t.Status.Terminal() {
			return fail()
		}
		t.Status = StatusRejected
		t.CompletedAt = &now
		t.Outcome = tr.Outcome
		t.CompletionNotes = tr.Reason

	case KindCancel:
		// Completed and Rejected are immutable outcomes.
		if t.Status == StatusCompleted || t.Status == StatusRejected || t.Status == StatusCancelled {
			return fail()
		}
		t.Status = StatusCancelled
		t.CompletedAt = &now
		t.CompletionNotes = tr.Reason

	case KindReassign:
		if t.Status.Terminal() {
			return fail()
		}
		t.Assignee = tr.Assignee
		t.AssignedBy = tr.Actor
		// The new assignee must explicitly start the task.
		t.Status = StatusPending
		t.StartedAt = nil

	case KindEscalate:
		if !t.Status.Open() {
			return fail()
		}
		t.Assignee = tr.Assignee
		t.AssignedBy = tr.Actor
		t.Status = StatusPending
		t.StartedAt = nil
		t.DueDate = tr.DueDate
		t.EscalatedAt = &now

	case KindMarkOverdue:
		if !t.Status.Open() {
			return fail()
		}
		t.Status = StatusOverdue

	default:
		return fail()
	}

	t.Touch(now)
	return t, nil
}

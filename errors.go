package approve

import (
	"errors"
	"fmt"
)

var (
	// Store errors.
	ErrNoStore         = errors.New("approve: no store configured")
	ErrStoreClosed     = errors.New("approve: store closed")
	ErrMigrationFailed = errors.New("approve: migration failed")

	// Not found errors.
	ErrDefinitionNotFound = errors.New("approve: workflow definition not found")
	ErrInstanceNotFound   = errors.New("approve: workflow instance not found")
	ErrTaskNotFound       = errors.New("approve: task not found")
	ErrEventNotFound      = errors.New("approve: event not found")

	// Registration errors.
	ErrInvalidDefinition  = errors.New("approve: invalid workflow definition")
	ErrNoActiveDefinition = errors.New("approve: no active definition for workflow type")

	// Instance errors.
	ErrDuplicateRunningInstance = errors.New("approve: a running instance already exists for this entity")

	// State errors.
	ErrInvalidTransition = errors.New("approve: invalid state transition")
	ErrAlreadyCompleted  = errors.New("approve: task already completed with a different outcome")

	// Escalation errors.
	ErrEscalationTargetUnresolved = errors.New("approve: escalation target resolves to no actor")
)

// TransitionError describes a rejected state transition with enough detail
// for a caller to render a precise message: which entity, its current
// status, and the transition that was attempted. It wraps
// ErrInvalidTransition, so errors.Is(err, ErrInvalidTransition) holds.
type TransitionError struct {
	Entity    string // "task" or "instance"
	ID        string
	Current   string
	Attempted string
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("approve: cannot %s %s %s in status %q", e.Attempted, e.Entity, e.ID, e.Current)
}

// Unwrap makes TransitionError match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

package definition

import (
	"fmt"
	"time"

	"github.com/xraph/approve"
	"github.com/xraph/approve/id"
)

// Definition is the immutable, versioned template for an approval process.
// An instance always binds to the specific version that was active at its
// creation time; later versions never retroactively alter running
// instances.
type Definition struct {
	approve.Entity

	ID           id.DefinitionID `json:"id"`
	TenantID     string          `json:"tenant_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	WorkflowType string          `json:"workflow_type"`
	Version      int             `json:"version"`
	Active       bool            `json:"active"`
	CreatedBy    string          `json:"created_by,omitempty"`
	Steps        []Step          `json:"steps"`
}

// Step is one ordered stage of a definition. Order values are unique and
// contiguous (starting at 1) within a definition. A step with
// Required=false may be skipped when its approver selector resolves to no
// eligible actor.
type Step struct {
	ID           id.StepID       `json:"id"`
	DefinitionID id.DefinitionID `json:"definition_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Order        int             `json:"order"`
	Required     bool            `json:"required"`

	// Parallel steps are instantiated at instance start instead of
	// waiting for their turn in the sequence.
	Parallel bool `json:"parallel,omitempty"`

	Approver Selector `json:"approver"`

	// Timeout is the due-date window for tasks created from this step.
	// Zero means the engine's default step timeout applies.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Escalation is the optional fallback assignee once the timeout
	// elapses. The zero Selector means no escalation: the task goes
	// straight to Overdue.
	Escalation Selector `json:"escalation,omitempty"`
}

// HasEscalation reports whether the step declares an escalation target.
func (s Step) HasEscalation() bool { return !s.Escalation.IsZero() }

// Validate checks the structural invariants of a definition: non-empty
// name and workflow type, unique and contiguous step order starting at 1,
// and exactly one approver selector per step. All violations wrap
// approve.ErrInvalidDefinition.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is empty", approve.ErrInvalidDefinition)
	}
	if d.WorkflowType == "" {
		return fmt.Errorf("%w: workflow type is empty", approve.ErrInvalidDefinition)
	}
	if d.Version < 1 {
		return fmt.Errorf("%w: version %d is not positive", approve.ErrInvalidDefinition, d.Version)
	}

	seen := make(map[int]struct{}, len(d.Steps))
	for _, s := range d.Steps {
		if _, dup := seen[s.Order]; dup {
			return fmt.Errorf("%w: step order %d duplicated", approve.ErrInvalidDefinition, s.Order)
		}
		seen[s.Order] = struct{}{}

		if err := s.Approver.validate(); err != nil {
			return fmt.Errorf("%w: step %d approver: %v", approve.ErrInvalidDefinition, s.Order, err)
		}
		if !s.Escalation.IsZero() {
			if err := s.Escalation.validate(); err != nil {
				return fmt.Errorf("%w: step %d escalation: %v", approve.ErrInvalidDefinition, s.Order, err)
			}
		}
		if s.Timeout < 0 {
			return fmt.Errorf("%w: step %d timeout is negative", approve.ErrInvalidDefinition, s.Order)
		}
	}

	// Contiguity: orders must be exactly 1..len(steps).
	for want := 1; want <= len(d.Steps); want++ {
		if _, ok := seen[want]; !ok {
			return fmt.Errorf("%w: step orders are not contiguous, missing %d", approve.ErrInvalidDefinition, want)
		}
	}

	return nil
}

// StepByID returns the step with the given ID, or nil.
func (d *Definition) StepByID(stepID id.StepID) *Step {
	for i := range d.Steps {
		if d.Steps[i].ID.String() == stepID.String() {
			return &d.Steps[i]
		}
	}
	return nil
}

// StepAt returns the step with the given order, or nil.
func (d *Definition) StepAt(order int) *Step {
	for i := range d.Steps {
		if d.Steps[i].Order == order {
			return &d.Steps[i]
		}
	}
	return nil
}

// MaxOrder returns the highest step order, 0 for an empty definition.
func (d *Definition) MaxOrder() int {
	max := 0
	for _, s := range d.Steps {
		if s.Order > max {
			max = s.Order
		}
	}
	return max
}

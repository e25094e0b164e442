package definition

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/approve"
)

// stepSpec is the persisted/transmitted JSON shape of one approval step.
// Timeouts travel as whole hours; durations finer than an hour round up
// so a configured timeout never shrinks across a round-trip.
type stepSpec struct {
	Name             string `json:"name,omitempty"`
	Description      string `json:"description,omitempty"`
	Order            int    `json:"order"`
	Required         bool   `json:"required"`
	Parallel         bool   `json:"parallel,omitempty"`
	ApproverRole     string `json:"approverRole,omitempty"`
	ApproverUserID   string `json:"approverUserId,omitempty"`
	TimeoutHours     int    `json:"timeoutHours,omitempty"`
	EscalationRole   string `json:"escalationRole,omitempty"`
	EscalationUserID string `json:"escalationUserId,omitempty"`
}

// MarshalSteps serializes steps to the persisted JSON array form.
func MarshalSteps(steps []Step) ([]byte, error) {
	specs := make([]stepSpec, len(steps))
	for i, s := range steps {
		spec := stepSpec{
			Name:        s.Name,
			Description: s.Description,
			Order:       s.Order,
			Required:    s.Required,
			Parallel:    s.Parallel,
		}
		switch s.Approver.Kind {
		case SelectByRole:
			spec.ApproverRole = s.Approver.Role
		case SelectByUser:
			spec.ApproverUserID = s.Approver.UserID
		}
		switch s.Escalation.Kind {
		case SelectByRole:
			spec.EscalationRole = s.Escalation.Role
		case SelectByUser:
			spec.EscalationUserID = s.Escalation.UserID
		}
		if s.Timeout > 0 {
			hours := int(s.Timeout / time.Hour)
			if s.Timeout%time.Hour != 0 {
				hours++
			}
			spec.TimeoutHours = hours
		}
		specs[i] = spec
	}
	return json.Marshal(specs)
}

// UnmarshalSteps parses the persisted JSON array form back into steps.
// The result carries no IDs; Registry.Register assigns them.
func UnmarshalSteps(data []byte) ([]Step, error) {
	var specs []stepSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("%w: %v", approve.ErrInvalidDefinition, err)
	}

	steps := make([]Step, len(specs))
	for i, spec := range specs {
		s := Step{
			Name:        spec.Name,
			Description: spec.Description,
			Order:       spec.Order,
			Required:    spec.Required,
			Parallel:    spec.Parallel,
			Timeout:     time.Duration(spec.TimeoutHours) * time.Hour,
		}
		switch {
		case spec.ApproverRole != "" && spec.ApproverUserID != "":
			return nil, fmt.Errorf("%w: step %d has both approverRole and approverUserId", approve.ErrInvalidDefinition, spec.Order)
		case spec.ApproverRole != "":
			s.Approver = ByRole(spec.ApproverRole)
		case spec.ApproverUserID != "":
			s.Approver = ByUser(spec.ApproverUserID)
		}
		switch {
		case spec.EscalationRole != "" && spec.EscalationUserID != "":
			return nil, fmt.Errorf("%w: step %d has both escalationRole and escalationUserId", approve.ErrInvalidDefinition, spec.Order)
		case spec.EscalationRole != "":
			s.Escalation = ByRole(spec.EscalationRole)
		case spec.EscalationUserID != "":
			s.Escalation = ByUser(spec.EscalationUserID)
		}
		steps[i] = s
	}
	return steps, nil
}

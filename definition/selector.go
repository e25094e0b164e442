package definition

import (
	"context"
	"errors"

	"github.com/xraph/approve/actor"
)

// SelectorKind discriminates the two approver selector variants.
type SelectorKind string

const (
	// SelectByRole targets every eligible member of a role.
	SelectByRole SelectorKind = "role"
	// SelectByUser targets one specific user.
	SelectByUser SelectorKind = "user"
)

// Selector identifies who a step targets: either a role tag resolved
// through the actor resolver, or one specific user. Exactly one variant
// is populated; the zero Selector means "nobody" and is only legal as an
// absent escalation target.
type Selector struct {
	Kind   SelectorKind `json:"kind,omitempty"`
	Role   string       `json:"role,omitempty"`
	UserID string       `json:"user_id,omitempty"`
}

// ByRole builds a role selector.
func ByRole(tag string) Selector {
	return Selector{Kind: SelectByRole, Role: tag}
}

// ByUser builds a specific-user selector.
func ByUser(userID string) Selector {
	return Selector{Kind: SelectByUser, UserID: userID}
}

// IsZero reports whether the selector is absent.
func (s Selector) IsZero() bool { return s.Kind == "" }

func (s Selector) validate() error {
	switch s.Kind {
	case SelectByRole:
		if s.Role == "" {
			return errors.New("role selector with empty role")
		}
		if s.UserID != "" {
			return errors.New("role selector must not carry a user id")
		}
	case SelectByUser:
		if s.UserID == "" {
			return errors.New("user selector with empty user id")
		}
		if s.Role != "" {
			return errors.New("user selector must not carry a role")
		}
	case "":
		return errors.New("selector is empty")
	default:
		return errors.New("unknown selector kind")
	}
	return nil
}

// Resolve returns the eligible user IDs this selector targets within a
// tenant. A specific-user selector resolves to that user only while the
// user is active. An empty result with a nil error means nobody is
// eligible.
func (s Selector) Resolve(ctx context.Context, r actor.Resolver, tenantID string) ([]string, error) {
	switch s.Kind {
	case SelectByRole:
		return r.ResolveRole(ctx, tenantID, s.Role)
	case SelectByUser:
		active, err := r.UserActive(ctx, s.UserID)
		if err != nil {
			return nil, err
		}
		if !active {
			return nil, nil
		}
		return []string{s.UserID}, nil
	default:
		return nil, nil
	}
}

package definition

import (
	"context"

	"github.com/xraph/approve/id"
)

// ListOpts filters definition listings.
type ListOpts struct {
	TenantID     string
	WorkflowType string
	Name         string
	ActiveOnly   bool
	Limit        int
	Offset       int
}

// Store defines the persistence contract for workflow definitions and
// their steps. Definitions are stored whole: a definition and its ordered
// steps are written and read as one unit.
type Store interface {
	// CreateDefinition persists a new definition with its steps.
	CreateDefinition(ctx context.Context, def *Definition) error

	// GetDefinition retrieves a definition (with steps) by ID.
	GetDefinition(ctx context.Context, defID id.DefinitionID) (*Definition, error)

	// UpdateDefinition persists changes to an existing definition.
	// Only the definition's own flags (Active) are expected to change;
	// steps of a registered version are immutable.
	UpdateDefinition(ctx context.Context, def *Definition) error

	// ListDefinitions returns definitions matching the given options,
	// ordered by name then version ascending.
	ListDefinitions(ctx context.Context, opts ListOpts) ([]*Definition, error)
}

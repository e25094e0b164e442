package instance

import (
	"context"

	"github.com/xraph/approve/id"
	"github.com/xraph/approve/task"
)

// ListOpts filters instance listings.
type ListOpts struct {
	TenantID     string
	Status       Status
	EntityID     string
	EntityType   string
	DefinitionID id.DefinitionID
	Limit        int
	Offset       int
}

// Store defines the persistence contract for workflow instances.
type Store interface {
	// CreateInstance persists a new instance. It enforces the
	// single-running-instance invariant: if a Running instance already
	// exists for the same (definition, entity id, entity type), it fails
	// with approve.ErrDuplicateRunningInstance.
	CreateInstance(ctx context.Context, inst *Instance) error

	// GetInstance retrieves an instance by ID.
	GetInstance(ctx context.Context, instID id.InstanceID) (*Instance, error)

	// UpdateInstance persists changes to an existing instance.
	UpdateInstance(ctx context.Context, inst *Instance) error

	// ListInstances returns instances matching the given options,
	// ordered by start time.
	ListInstances(ctx context.Context, opts ListOpts) ([]*Instance, error)

	// SaveInstanceTx persists the instance together with updates to the
	// given tasks as one atomic unit, so a terminal cascade is never
	// partially visible.
	SaveInstanceTx(ctx context.Context, inst *Instance, tasks []*task.Task) error
}

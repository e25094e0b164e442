package definition

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/approve"
	"github.com/xraph/approve/clock"
	"github.com/xraph/approve/id"
)

// Registry owns workflow definition versioning: registration, activation,
// and resolution of the active definition for a workflow type.
//
// The registry never mutates the steps of a registered version; new
// behavior is introduced by registering a new version (copy + increment).
type Registry struct {
	store  Store
	logger *slog.Logger
	clk    clock.Clock
}

// NewRegistry creates a definition registry.
func NewRegistry(store Store, logger *slog.Logger, clk clock.Clock) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Registry{store: store, logger: logger, clk: clk}
}

// Register validates and persists a new definition. Missing IDs are
// assigned, the version defaults to 1, and each step is bound to the
// definition. Returns the definition ID.
func (r *Registry) Register(ctx context.Context, def *Definition) (id.DefinitionID, error) {
	if def.Version == 0 {
		def.Version = 1
	}
	if err := def.Validate(); err != nil {
		return id.Nil, err
	}

	if def.ID.IsNil() {
		def.ID = id.NewDefinitionID()
	}
	for i := range def.Steps {
		if def.Steps[i].ID.IsNil() {
			def.Steps[i].ID = id.NewStepID()
		}
		def.Steps[i].DefinitionID = def.ID
	}

	now := r.clk.Now()
	def.CreatedAt = now
	def.UpdatedAt = now

	if err := r.store.CreateDefinition(ctx, def); err != nil {
		return id.Nil, fmt.Errorf("register definition %q: %w", def.Name, err)
	}

	r.logger.Info("workflow definition registered",
		slog.String("definition_id", def.ID.String()),
		slog.String("name", def.Name),
		slog.String("workflow_type", def.WorkflowType),
		slog.Int("version", def.Version),
		slog.Int("steps", len(def.Steps)),
	)

	return def.ID, nil
}

// NewVersion registers a copy of an existing definition with the next
// version number and the given steps. The new version is created
// inactive; the caller decides when to activate it. The source version
// is left untouched, so its live instances keep their bound behavior.
func (r *Registry) NewVersion(ctx context.Context, defID id.DefinitionID, steps []Step, createdBy string) (*Definition, error) {
	prev, err := r.store.GetDefinition(ctx, defID)
	if err != nil {
		return nil, err
	}

	next := &Definition{
		ID:           id.NewDefinitionID(),
		TenantID:     prev.TenantID,
		Name:         prev.Name,
		Description:  prev.Description,
		WorkflowType: prev.WorkflowType,
		Version:      prev.Version + 1,
		Active:       false,
		CreatedBy:    createdBy,
		Steps:        steps,
	}

	if _, err := r.Register(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Activate flips the definition's active flag on. Activating a new
// version does not deactivate other versions; single-active-version
// semantics per name are the caller's policy.
func (r *Registry) Activate(ctx context.Context, defID id.DefinitionID) error {
	return r.setActive(ctx, defID, true)
}

// Deactivate flips the definition's active flag off. Running instances
// bound to this version are unaffected.
func (r *Registry) Deactivate(ctx context.Context, defID id.DefinitionID) error {
	return r.setActive(ctx, defID, false)
}

func (r *Registry) setActive(ctx context.Context, defID id.DefinitionID, active bool) error {
	def, err := r.store.GetDefinition(ctx, defID)
	if err != nil {
		return err
	}
	if def.Active == active {
		return nil
	}
	def.Active = active
	def.Touch(r.clk.Now())
	if err := r.store.UpdateDefinition(ctx, def); err != nil {
		return fmt.Errorf("update definition %s: %w", defID, err)
	}

	r.logger.Info("workflow definition active flag changed",
		slog.String("definition_id", defID.String()),
		slog.Bool("active", active),
	)
	return nil
}

// Resolve returns the active definition for a workflow type within a
// tenant. When several versions are active, the highest version wins.
// Fails with approve.ErrNoActiveDefinition if none is active.
func (r *Registry) Resolve(ctx context.Context, tenantID, workflowType string) (*Definition, error) {
	defs, err := r.store.ListDefinitions(ctx, ListOpts{
		TenantID:     tenantID,
		WorkflowType: workflowType,
		ActiveOnly:   true,
	})
	if err != nil {
		return nil, err
	}

	var best *Definition
	for _, d := range defs {
		if best == nil || d.Version > best.Version {
			best = d
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %q", approve.ErrNoActiveDefinition, workflowType)
	}
	return best, nil
}

// Get retrieves a definition by ID.
func (r *Registry) Get(ctx context.Context, defID id.DefinitionID) (*Definition, error) {
	return r.store.GetDefinition(ctx, defID)
}

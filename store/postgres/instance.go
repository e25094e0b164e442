package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/approve"
	"github.com/xraph/approve/id"
	"github.com/xraph/approve/instance"
	"github.com/xraph/approve/task"
)

// CreateInstance persists a new instance. The partial unique index on
// running instances turns a concurrent duplicate into a unique violation,
// mapped to ErrDuplicateRunningInstance.
func (s *Store) CreateInstance(ctx context.Context, inst *instance.Instance) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO approve_instances (
			id, definition_id, tenant_id, entity_id, entity_type, status,
			current_step, initiated_by, started_at, completed_at,
			priority, due_date, context, failure_reason, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16
		)`,
		inst.ID.String(), inst.DefinitionID.String(), inst.TenantID,
		inst.EntityID, inst.EntityType, string(inst.Status),
		inst.CurrentStep, inst.InitiatedBy, inst.StartedAt, inst.CompletedAt,
		inst.Priority, inst.DueDate, inst.Context, inst.FailureReason,
		inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return approve.ErrDuplicateRunningInstance
		}
		return fmt.Errorf("approve/postgres: create instance: %w", err)
	}
	return nil
}

// GetInstance retrieves an instance by ID.
func (s *Store) GetInstance(ctx context.Context, instID id.InstanceID) (*instance.Instance, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, definition_id, tenant_id, entity_id, entity_type, status,
			current_step, initiated_by, started_at, completed_at,
			priority, due_date, context, failure_reason, created_at, updated_at
		FROM approve_instances
		WHERE id = $1`,
		instID.String(),
	)

	inst, err := scanInstance(row)
	if err != nil {
		if isNoRows(err) {
			return nil, approve.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("approve/postgres: get instance: %w", err)
	}
	return inst, nil
}

// UpdateInstance persists changes to an existing instance.
func (s *Store) UpdateInstance(ctx context.Context, inst *instance.Instance) error {
	return updateInstanceExec(ctx, s.pool, inst)
}

// SaveInstanceTx persists the instance and the given task updates in one
// transaction, so a terminal cascade is never partially visible.
func (s *Store) SaveInstanceTx(ctx context.Context, inst *instance.Instance, tasks []*task.Task) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("approve/postgres: save instance begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := updateInstanceExec(ctx, tx, inst); err != nil {
		return err
	}
	for _, t := range tasks {
		if err := updateTaskExec(ctx, tx, t); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("approve/postgres: save instance commit: %w", err)
	}
	return nil
}

func updateInstanceExec(ctx context.Context, x execer, inst *instance.Instance) error {
	tag, err := x.Exec(ctx, `
		UPDATE approve_instances SET
			status = $2, current_step = $3, completed_at = $4,
			priority = $5, due_date = $6, context = $7,
			failure_reason = $8, updated_at = $9
		WHERE id = $1`,
		inst.ID.String(), string(inst.Status), inst.CurrentStep, inst.CompletedAt,
		inst.Priority, inst.DueDate, inst.Context,
		inst.FailureReason, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("approve/postgres: update instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return approve.ErrInstanceNotFound
	}
	return nil
}

// ListInstances returns instances matching the given options, ordered by
// start time.
func (s *Store) ListInstances(ctx context.Context, opts instance.ListOpts) ([]*instance.Instance, error) {
	query := `
		SELECT id, definition_id, tenant_id, entity_id, entity_type, status,
			current_step, initiated_by, started_at, completed_at,
			priority, due_date, context, failure_reason, created_at, updated_at
		FROM approve_instances
		WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.TenantID != "" {
		query += fmt.Sprintf(" AND tenant_id = $%d", argIdx)
		args = append(args, opts.TenantID)
		argIdx++
	}
	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}
	if opts.EntityID != "" {
		query += fmt.Sprintf(" AND entity_id = $%d", argIdx)
		args = append(args, opts.EntityID)
		argIdx++
	}
	if opts.EntityType != "" {
		query += fmt.Sprintf(" AND entity_type = $%d", argIdx)
		args = append(args, opts.EntityType)
		argIdx++
	}
	if !opts.DefinitionID.IsNil() {
		query += fmt.Sprintf(" AND definition_id = $%d", argIdx)
		args = append(args, opts.DefinitionID.String())
		argIdx++
	}

	query += " ORDER BY started_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("approve/postgres: list instances: %w", err)
	}
	defer rows.Close()

	var instances []*instance.Instance
	for rows.Next() {
		inst, scanErr := scanInstance(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("approve/postgres: list instances scan: %w", scanErr)
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// scanInstance scans a single instance row.
func scanInstance(row pgx.Row) (*instance.Instance, error) {
	var (
		inst     instance.Instance
		idStr    string
		defIDStr string
	)
	err := row.Scan(
		&idStr, &defIDStr, &inst.TenantID, &inst.EntityID, &inst.EntityType,
		&inst.Status, &inst.CurrentStep, &inst.InitiatedBy,
		&inst.StartedAt, &inst.CompletedAt,
		&inst.Priority, &inst.DueDate, &inst.Context, &inst.FailureReason,
		&inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseInstanceID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("approve/postgres: parse instance id %q: %w", idStr, parseErr)
	}
	inst.ID = parsedID

	parsedDefID, parseErr := id.ParseDefinitionID(defIDStr)
	if parseErr != nil {
		return nil, fmt.Errorf("approve/postgres: parse definition id %q: %w", defIDStr, parseErr)
	}
	inst.DefinitionID = parsedDefID

	return &inst, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/approve"
	"github.com/xraph/approve/definition"
	"github.com/xraph/approve/id"
)

// CreateDefinition persists a new definition with its steps in one
// transaction.
func (s *Store) CreateDefinition(ctx context.Context, def *definition.Definition) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("approve/postgres: create definition begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, `
		INSERT INTO approve_definitions (
			id, tenant_id, name, description, workflow_type, version,
			active, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		def.ID.String(), def.TenantID, def.Name, def.Description,
		def.WorkflowType, def.Version, def.Active, def.CreatedBy,
		def.CreatedAt, def.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s v%d already registered",
				approve.ErrInvalidDefinition, def.Name, def.Version)
		}
		return fmt.Errorf("approve/postgres: create definition: %w", err)
	}

	for i := range def.Steps {
		if stepErr := insertStep(ctx, tx, &def.Steps[i]); stepErr != nil {
			return stepErr
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("approve/postgres: create definition commit: %w", err)
	}
	return nil
}

// GetDefinition retrieves a definition (with steps) by ID.
func (s *Store) GetDefinition(ctx context.Context, defID id.DefinitionID) (*definition.Definition, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, description, workflow_type, version,
			active, created_by, created_at, updated_at
		FROM approve_definitions
		WHERE id = $1`,
		defID.String(),
	)

	def, err := scanDefinition(row)
	if err != nil {
		if isNoRows(err) {
			return nil, approve.ErrDefinitionNotFound
		}
		return nil, fmt.Errorf("approve/postgres: get definition: %w", err)
	}

	if err := s.loadSteps(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

// UpdateDefinition persists changes to an existing definition. Steps of a
// registered version are immutable and are not touched here.
func (s *Store) UpdateDefinition(ctx context.Context, def *definition.Definition) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE approve_definitions SET
			name = $2, description = $3, active = $4, updated_at = $5
		WHERE id = $1`,
		def.ID.String(), def.Name, def.Description, def.Active, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("approve/postgres: update definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return approve.ErrDefinitionNotFound
	}
	return nil
}

// ListDefinitions returns definitions matching the given options, ordered
// by name then version ascending.
func (s *Store) ListDefinitions(ctx context.Context, opts definition.ListOpts) ([]*definition.Definition, error) {
	query := `
		SELECT id, tenant_id, name, description, workflow_type, version,
			active, created_by, created_at, updated_at
		FROM approve_definitions
		WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.TenantID != "" {
		query += fmt.Sprintf(" AND tenant_id = $%d", argIdx)
		args = append(args, opts.TenantID)
		argIdx++
	}
	if opts.WorkflowType != "" {
		query += fmt.Sprintf(" AND workflow_type = $%d", argIdx)
		args = append(args, opts.WorkflowType)
		argIdx++
	}
	if opts.Name != "" {
		query += fmt.Sprintf(" AND name = $%d", argIdx)
		args = append(args, opts.Name)
		argIdx++
	}
	if opts.ActiveOnly {
		query += " AND active"
	}

	query += " ORDER BY name ASC, version ASC"

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
		return nil, fmt.Errorf("approve/postgres: list definitions: %w", err)
	}
	defer rows.Close()

	var defs []*definition.Definition
	for rows.Next() {
		def, scanErr := scanDefinition(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("approve/postgres: list definitions scan: %w", scanErr)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("approve/postgres: list definitions rows: %w", err)
	}

	for _, def := range defs {
		if err := s.loadSteps(ctx, def); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

// insertStep writes one step row inside the create-definition transaction.
func insertStep(ctx context.Context, tx pgx.Tx, st *definition.Step) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO approve_steps (
			id, definition_id, name, description, step_order, required, parallel,
			approver_kind, approver_role, approver_user_id,
			timeout_ns, escalation_kind, escalation_role, escalation_user_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		st.ID.String(), st.DefinitionID.String(), st.Name, st.Description,
		st.Order, st.Required, st.Parallel,
		string(st.Approver.Kind), st.Approver.Role, st.Approver.UserID,
		st.Timeout.Nanoseconds(),
		string(st.Escalation.Kind), st.Escalation.Role, st.Escalation.UserID,
	)
	if err != nil {
		return fmt.Errorf("approve/postgres: create step %d: %w", st.Order, err)
	}
	return nil
}

// loadSteps populates def.Steps from the steps table, ordered by step
// order.
func (s *Store) loadSteps(ctx context.Context, def *definition.Definition) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, definition_id, name, description, step_order, required, parallel,
			approver_kind, approver_role, approver_user_id,
			timeout_ns, escalation_kind, escalation_role, escalation_user_id
		FROM approve_steps
		WHERE definition_id = $1
		ORDER BY step_order ASC`,
		def.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("approve/postgres: load steps: %w", err)
	}
	defer rows.Close()

	def.Steps = nil
	for rows.Next() {
		st, scanErr := scanStep(rows)
		if scanErr != nil {
			return fmt.Errorf("approve/postgres: load steps scan: %w", scanErr)
		}
		def.Steps = append(def.Steps, *st)
	}
	return rows.Err()
}

// scanDefinition scans a single definition row (without steps).
func scanDefinition(row pgx.Row) (*definition.Definition, error) {
	var (
		def   definition.Definition
		idStr string
	)
	err := row.Scan(
		&idStr, &def.TenantID, &def.Name, &def.Description,
		&def.WorkflowType, &def.Version, &def.Active, &def.CreatedBy,
		&def.CreatedAt, &def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseDefinitionID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("approve/postgres: parse definition id %q: %w", idStr, parseErr)
	}
	def.ID = parsedID

	return &def, nil
}

// scanStep scans a single step row.
func scanStep(row pgx.Row) (*definition.Step, error) {
	var (
		st        definition.Step
		idStr     string
		defIDStr  string
		timeoutNs int64
		appKind   string
		escKind   string
	)
	err := row.Scan(
		&idStr, &defIDStr, &st.Name, &st.Description,
		&st.Order, &st.Required, &st.Parallel,
		&appKind, &st.Approver.Role, &st.Approver.UserID,
		&timeoutNs, &escKind, &st.Escalation.Role, &st.Escalation.UserID,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseStepID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("approve/postgres: parse step id %q: %w", idStr, parseErr)
	}
	st.ID = parsedID

	parsedDefID, parseErr := id.ParseDefinitionID(defIDStr)
	if parseErr != nil {
		return nil, fmt.Errorf("approve/postgres: parse definition id %q: %w", defIDStr, parseErr)
	}
	st.DefinitionID = parsedDefID

	st.Timeout = time.Duration(timeoutNs)
	st.Approver.Kind = definition.SelectorKind(appKind)
	st.Escalation.Kind = definition.SelectorKind(escKind)

	return &st, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/approve"
	"github.com/xraph/approve/id"
	"github.com/xraph/approve/task"
)

// CreateTask persists a new task.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO approve_tasks (
			id, instance_id, step_id, tenant_id, title, description,
			type, status, assignee, assigned_by, priority,
			due_date, started_at, completed_at, escalated_at,
			outcome, completion_notes, form_data, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18, $19, $20
		)`,
		t.ID.String(), t.InstanceID.String(), t.StepID.String(), t.TenantID,
		t.Title, t.Description, string(t.Type), string(t.Status),
		t.Assignee, t.AssignedBy, t.Priority,
		t.DueDate, t.StartedAt, t.CompletedAt, t.EscalatedAt,
		t.Outcome, t.CompletionNotes, t.FormData, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("approve/postgres: create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	row := s.pool.QueryRow(ctx, taskSelect+` WHERE id = $1`, taskID.String())

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, approve.ErrTaskNotFound
		}
		return nil, fmt.Errorf("approve/postgres: get task: %w", err)
	}
	return t, nil
}

// UpdateTask persists changes to an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	return updateTaskExec(ctx, s.pool, t)
}

func updateTaskExec(ctx context.Context, x execer, t *task.Task) error {
	tag, err := x.Exec(ctx, `
		UPDATE approve_tasks SET
			status = $2, assignee = $3, assigned_by = $4, priority = $5,
			due_date = $6, started_at = $7, completed_at = $8, escalated_at = $9,
			outcome = $10, completion_notes = $11, form_data = $12,
			updated_at = $13
		WHERE id = $1`,
		t.ID.String(), string(t.Status), t.Assignee, t.AssignedBy, t.Priority,
		t.DueDate, t.StartedAt, t.CompletedAt, t.EscalatedAt,
		t.Outcome, t.CompletionNotes, t.FormData,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("approve/postgres: update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return approve.ErrTaskNotFound
	}
	return nil
}

// ListTasksByInstance returns every task owned by an instance, ordered by
// creation time.
func (s *Store) ListTasksByInstance(ctx context.Context, instanceID id.InstanceID) ([]*task.Task, error) {
	rows, err := s.pool.Query(ctx,
		taskSelect+` WHERE instance_id = $1 ORDER BY created_at ASC`,
		instanceID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("approve/postgres: list tasks by instance: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// ListTasksByAssignee returns tasks assigned to a user.
func (s *Store) ListTasksByAssignee(ctx context.Context, assignee string, opts task.ListOpts) ([]*task.Task, error) {
	query := taskSelect + ` WHERE assignee = $1`
	args := []interface{}{assignee}
	argIdx := 2

	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}
	if opts.TenantID != "" {
		query += fmt.Sprintf(" AND tenant_id = $%d", argIdx)
		args = append(args, opts.TenantID)
		argIdx++
	}

	query += " ORDER BY created_at ASC"

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
		return nil, fmt.Errorf("approve/postgres: list tasks by assignee: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// ListOpenTasksDueBefore returns open tasks whose due-date has elapsed at
// the given instant, ordered by due-date ascending.
func (s *Store) ListOpenTasksDueBefore(ctx context.Context, at time.Time, limit int) ([]*task.Task, error) {
	query := taskSelect + `
		WHERE status IN ('pending', 'in_progress')
		  AND due_date IS NOT NULL
		  AND due_date <= $1
		ORDER BY due_date ASC`
	args := []interface{}{at}

	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("approve/postgres: list open tasks due: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// taskSelect is the shared column list for task queries.
const taskSelect = `
	SELECT id, instance_id, step_id, tenant_id, title, description,
		type, status, assignee, assigned_by, priority,
		due_date, started_at, completed_at, escalated_at,
		outcome, completion_notes, form_data, created_at, updated_at
	FROM approve_tasks`

// scanTask scans a single task row.
func scanTask(row pgx.Row) (*task.Task, error) {
	var (
		t         task.Task
		idStr     string
		instIDStr string
		stepIDStr string
	)
	err := row.Scan(
		&idStr, &instIDStr, &stepIDStr, &t.TenantID, &t.Title, &t.Description,
		&t.Type, &t.Status, &t.Assignee, &t.AssignedBy, &t.Priority,
		&t.DueDate, &t.StartedAt, &t.CompletedAt, &t.EscalatedAt,
		&t.Outcome, &t.CompletionNotes, &t.FormData, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseTaskID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("approve/postgres: parse task id %q: %w", idStr, parseErr)
	}
	t.ID = parsedID

	parsedInstID, parseErr := id.ParseInstanceID(instIDStr)
	if parseErr != nil {
		return nil, fmt.Errorf("approve/postgres: parse instance id %q: %w", instIDStr, parseErr)
	}
	t.InstanceID = parsedInstID

	parsedStepID, parseErr := id.ParseStepID(stepIDStr)
	if parseErr != nil {
		return nil, fmt.Errorf("approve/postgres: parse step id %q: %w", stepIDStr, parseErr)
	}
	t.StepID = parsedStepID

	return &t, nil
}

// collectTasks drains a task query result.
func collectTasks(rows pgx.Rows) ([]*task.Task, error) {
	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("approve/postgres: scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

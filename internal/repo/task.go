package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/model"
)

// TaskRepo is a tenant-scoped repository for the Task aggregate (spec §3,
// §4.10). Watchers and Tags persist as Postgres arrays and are converted
// to/from the in-memory set representation at the boundary.
type TaskRepo struct {
	pool *pgxpool.Pool
}

const taskColumns = `id, tenant_id, project_id, title, description, status, priority,
	assigned_to_user_id, created_by_user_id, watchers, tags, due_date,
	estimated_hours, actual_hours, blocked_reason, version, is_deleted, created_at, updated_at`

func scanTask(row rowScanner) (*model.Task, error) {
	var t model.Task
	var watchers []uuid.UUID
	var tagStrs []string
	if err := row.Scan(&t.ID, &t.TenantID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.AssignedToUserID, &t.CreatedByUserID, &watchers, &tagStrs, &t.DueDate,
		&t.EstimatedHours, &t.ActualHours, &t.BlockedReason, &t.Version, &t.IsDeleted, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	t.Watchers = map[uuid.UUID]bool{}
	for _, w := range watchers {
		t.Watchers[w] = true
	}
	t.Tags = map[string]bool{}
	for _, tag := range tagStrs {
		t.Tags[tag] = true
	}
	return &t, nil
}

func toSlice(set map[uuid.UUID]bool) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func toStrSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// GetByID loads a non-deleted task scoped to the caller's bound tenant.
func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	row := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND tenant_id = $2 AND is_deleted = false`, id, tenantID)
	t, err := scanTask(row)
	if err != nil {
		if err == ErrNotFound {
			return nil, apperr.NotFound("task not found")
		}
		return nil, apperr.Internal(err)
	}
	return t, nil
}

// Create inserts a new task at version 1.
func (r *TaskRepo) Create(ctx context.Context, t *model.Task) error {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return err
	}
	_, err = connFor(ctx, r.pool).Exec(ctx,
		`INSERT INTO tasks (id, tenant_id, project_id, title, description, status, priority,
			assigned_to_user_id, created_by_user_id, watchers, tags, due_date,
			estimated_hours, actual_hours, blocked_reason, version, is_deleted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		t.ID, tenantID, t.ProjectID, t.Title, t.Description, t.Status, t.Priority,
		t.AssignedToUserID, t.CreatedByUserID, toSlice(t.Watchers), toStrSlice(t.Tags), t.DueDate,
		t.EstimatedHours, t.ActualHours, t.BlockedReason, t.Version, t.IsDeleted, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Update persists a full task row, enforcing optimistic concurrency: the
// WHERE clause requires version to still equal expectedVersion, and the
// stored version is bumped by one (spec §3's "version (monotonic;
// optimistic concurrency)" invariant, exercised by the task-update
// conflict scenario in spec §8).
func (r *TaskRepo) Update(ctx context.Context, t *model.Task, expectedVersion int) error {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return err
	}
	tag, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE tasks SET title = $1, description = $2, status = $3, priority = $4,
			assigned_to_user_id = $5, watchers = $6, tags = $7, due_date = $8,
			estimated_hours = $9, actual_hours = $10, blocked_reason = $11,
			version = version + 1, updated_at = now()
		 WHERE id = $12 AND tenant_id = $13 AND version = $14 AND is_deleted = false`,
		t.Title, t.Description, t.Status, t.Priority, t.AssignedToUserID,
		toSlice(t.Watchers), toStrSlice(t.Tags), t.DueDate, t.EstimatedHours, t.ActualHours, t.BlockedReason,
		t.ID, tenantID, expectedVersion)
	if err != nil {
		return apperr.Internal(err)
	}
	if tag.RowsAffected() == 0 {
		exists, existsErr := r.exists(ctx, t.ID, tenantID)
		if existsErr != nil {
			return apperr.Internal(existsErr)
		}
		if !exists {
			return apperr.NotFound("task not found")
		}
		return apperr.Conflict("task was modified by another request")
	}
	return nil
}

func (r *TaskRepo) exists(ctx context.Context, id uuid.UUID, tenantID string) (bool, error) {
	var exists bool
	err := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1 AND tenant_id = $2 AND is_deleted = false)`,
		id, tenantID).Scan(&exists)
	return exists, err
}

// SoftDelete marks a task deleted without removing its row (spec §3's
// is_deleted flag, and §9's append-only audit posture).
func (r *TaskRepo) SoftDelete(ctx context.Context, id uuid.UUID, expectedVersion int) error {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return err
	}
	tag, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE tasks SET is_deleted = true, version = version + 1, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND version = $3 AND is_deleted = false`,
		id, tenantID, expectedVersion)
	if err != nil {
		return apperr.Internal(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("task was modified by another request")
	}
	return nil
}

// TaskFilter narrows the GET /tasks listing (spec §6). A zero value of any
// field means "no filter on this dimension"; Limit/Offset are always
// applied, clamped by the caller.
type TaskFilter struct {
	Status         model.TaskStatus
	Priority       model.TaskPriority
	ProjectID      *uuid.UUID
	AssignedToUser *uuid.UUID
	Limit          int
	Offset         int
}

// List returns tasks in the caller's bound tenant matching filter, newest
// first, plus the total matching count for pagination metadata.
func (r *TaskRepo) List(ctx context.Context, filter TaskFilter) ([]*model.Task, int, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, 0, err
	}

	where := []string{"tenant_id = $1", "is_deleted = false"}
	args := []any{tenantID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(filter.Status))
	}
	if filter.Priority != "" {
		where = append(where, "priority = "+arg(filter.Priority))
	}
	if filter.ProjectID != nil {
		where = append(where, "project_id = "+arg(*filter.ProjectID))
	}
	if filter.AssignedToUser != nil {
		where = append(where, "assigned_to_user_id = "+arg(*filter.AssignedToUser))
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT count(*) FROM tasks WHERE `+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Internal(err)
	}

	limitArg := arg(filter.Limit)
	offsetArg := arg(filter.Offset)
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE `+whereClause+
			` ORDER BY created_at DESC LIMIT `+limitArg+` OFFSET `+offsetArg, args...)
	if err != nil {
		return nil, 0, apperr.Internal(err)
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, apperr.Internal(err)
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// CountByStatus powers the single-tenant task statistics supplement
// (SPEC_FULL.md's folded-in audit/statistics endpoint).
func (r *TaskRepo) CountByStatus(ctx context.Context) (map[model.TaskStatus]int, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT status, count(*) FROM tasks WHERE tenant_id = $1 AND is_deleted = false GROUP BY status`, tenantID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	counts := map[model.TaskStatus]int{}
	for rows.Next() {
		var status model.TaskStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apperr.Internal(err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

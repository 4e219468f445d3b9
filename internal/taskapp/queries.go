package taskapp

import (
	"context"

	"github.com/google/uuid"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/authz"
	"github.com/oranofz/taskmanagement/internal/mediator"
	"github.com/oranofz/taskmanagement/internal/model"
	"github.com/oranofz/taskmanagement/internal/reqctx"
	"github.com/oranofz/taskmanagement/internal/repo"
)

// GetTaskQuery is GET /tasks/{id}. Modeled as a query (spec §4.9: queries
// skip transaction/outbox); the resource gate still applies, enforced
// inside the handler once the aggregate is loaded.
type GetTaskQuery struct {
	TaskID uuid.UUID
}

func (q GetTaskQuery) Validate() error {
	if q.TaskID == uuid.Nil {
		return apperr.Validation("task id is required")
	}
	return nil
}

// AuthorizeGet is the role/permission gate for GetTaskQuery.
func AuthorizeGet(ctx context.Context, _ mediator.Message) error {
	return authz.RequireAll(ctx, nil, "tasks.read")
}

// Get loads a single task, applying the resource gate.
func (h *Handlers) Get(ctx context.Context, msg mediator.Message) (any, error) {
	q := msg.(GetTaskQuery)
	t, err := h.Tasks.GetByID(ctx, q.TaskID)
	if err != nil {
		return nil, err
	}
	if err := authorizeAccess(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// TaskListResult is GET /tasks's response shape: a page of tasks plus the
// total matching count for pagination metadata.
type TaskListResult struct {
	Tasks []*model.Task
	Total int
}

// ListTasksQuery is GET /tasks. No per-resource gate is applied here: the
// permission gate alone governs visibility of the tenant's full task
// list (see DESIGN.md's Open Question decision on list-vs-read scope);
// individual-task reads still apply the resource gate via GetTaskQuery.
type ListTasksQuery struct {
	Status         model.TaskStatus
	Priority       model.TaskPriority
	ProjectID      *uuid.UUID
	AssignedToUser *uuid.UUID
	Limit          int
	Offset         int
}

func (q ListTasksQuery) Validate() error {
	if q.Limit < 0 || q.Offset < 0 {
		return apperr.Validation("limit and offset must be non-negative")
	}
	return nil
}

// AuthorizeList is the role/permission gate for ListTasksQuery.
func AuthorizeList(ctx context.Context, _ mediator.Message) error {
	return authz.RequireAll(ctx, nil, "tasks.read")
}

// List returns a filtered, paginated page of the tenant's tasks.
func (h *Handlers) List(ctx context.Context, msg mediator.Message) (any, error) {
	q := msg.(ListTasksQuery)
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	tasks, total, err := h.Tasks.List(ctx, repo.TaskFilter{
		Status:         q.Status,
		Priority:       q.Priority,
		ProjectID:      q.ProjectID,
		AssignedToUser: q.AssignedToUser,
		Limit:          limit,
		Offset:         q.Offset,
	})
	if err != nil {
		return nil, err
	}
	return &TaskListResult{Tasks: tasks, Total: total}, nil
}

// StatisticsQuery is GET /tasks/reports/statistics, SPEC_FULL.md's
// supplemented reporting endpoint.
type StatisticsQuery struct{}

func (q StatisticsQuery) Validate() error { return nil }

// AuthorizeStatistics is the role/permission gate for StatisticsQuery.
func AuthorizeStatistics(ctx context.Context, _ mediator.Message) error {
	return authz.RequireAll(ctx, nil, "tasks.read")
}

// StatisticsResult is StatisticsQuery's response: a per-status count
// breakdown for every caller, plus, for a TENANT_ADMIN or SYSTEM_ADMIN
// caller, the tenant's most recent audit log entries (SPEC_FULL.md's
// supplemented single-tenant audit read path, kept inside this endpoint
// rather than a new top-level route).
type StatisticsResult struct {
	ByStatus    map[model.TaskStatus]int
	RecentAudit []*model.AuditLogEntry
}

// recentAuditLimit bounds the companion audit query's page size.
const recentAuditLimit = 20

// Statistics returns a per-status count breakdown for the caller's
// bound tenant, with an admin-only audit trail companion.
func (h *Handlers) Statistics(ctx context.Context, _ mediator.Message) (any, error) {
	counts, err := h.Tasks.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	result := &StatisticsResult{ByStatus: counts}

	rc := reqctx.FromContext(ctx)
	if h.Audit != nil && (rc.HasRole("TENANT_ADMIN") || rc.HasRole("SYSTEM_ADMIN")) {
		entries, err := h.Audit.ListRecent(ctx, recentAuditLimit)
		if err != nil {
			return nil, err
		}
		result.RecentAudit = entries
	}
	return result, nil
}

// Register binds every Task command/query to m, matching the dispatch
// shape the mediator expects (spec §4.9).
func Register(m *mediator.Mediator, h *Handlers) {
	m.RegisterCommand(CreateTaskCommand{}, AuthorizeCreate, h.Create)
	m.RegisterCommand(UpdateTaskCommand{}, AuthorizeUpdate, h.Update)
	m.RegisterCommand(AssignTaskCommand{}, AuthorizeAssign, h.Assign)
	m.RegisterCommand(ChangeStatusCommand{}, AuthorizeChangeStatus, h.ChangeStatus)
	m.RegisterCommand(DeleteTaskCommand{}, AuthorizeDelete, h.Delete)
	m.RegisterCommand(AddCommentCommand{}, AuthorizeComment, h.AddComment)

	m.RegisterQuery(GetTaskQuery{}, AuthorizeGet, h.Get)
	m.RegisterQuery(ListTasksQuery{}, AuthorizeList, h.List)
	m.RegisterQuery(StatisticsQuery{}, AuthorizeStatistics, h.Statistics)
}

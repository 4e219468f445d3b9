// Package taskapp implements the Task Handlers and Task Aggregate of spec
// §4.10: Create/Update/Assign/ChangeStatus/Delete/Comment, each a
// mediator command routed through validation, the role/permission gates
// (enforced by the mediator's Authorizer before the handler runs) and the
// resource gate (enforced inside the handler, once the aggregate is
// loaded, per spec §9's "opaque value with a narrow set of
// state-transition operations that return (new_state, events[])" design
// note). No pack repo names a task-aggregate state machine, so the
// transition table itself is grounded on spec §4.10 directly; the
// handler-struct-with-repo-deps shape follows
// erauner12-toolbridge-api/internal/service/syncservice's task service.
package taskapp

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/authz"
	"github.com/oranofz/taskmanagement/internal/events"
	"github.com/oranofz/taskmanagement/internal/mediator"
	"github.com/oranofz/taskmanagement/internal/model"
	"github.com/oranofz/taskmanagement/internal/reqctx"
	"github.com/oranofz/taskmanagement/internal/repo"
)

// TaskStore is the persistence surface taskapp needs from
// internal/repo.TaskRepo, narrowed to an interface for testability.
type TaskStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Task, error)
	Create(ctx context.Context, t *model.Task) error
	Update(ctx context.Context, t *model.Task, expectedVersion int) error
	SoftDelete(ctx context.Context, id uuid.UUID, expectedVersion int) error
	List(ctx context.Context, filter repo.TaskFilter) ([]*model.Task, int, error)
	CountByStatus(ctx context.Context) (map[model.TaskStatus]int, error)
}

// CommentStore is the persistence surface for the append-only Comment
// child entity (spec §3).
type CommentStore interface {
	Create(ctx context.Context, c *model.Comment) error
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*model.Comment, error)
}

// AuditStore is the read surface for SPEC_FULL.md's single-tenant audit
// companion on StatisticsQuery. Writes happen out of band, via an outbox
// subscriber (internal/repo.AuditLogRepo.Subscriber), not through this
// interface.
type AuditStore interface {
	ListRecent(ctx context.Context, limit int) ([]*model.AuditLogEntry, error)
}

// Handlers bundles every Task command/query handler's dependencies. Audit
// is optional: a nil value simply omits the recent-audit companion from
// StatisticsQuery's response.
type Handlers struct {
	Tasks    TaskStore
	Comments CommentStore
	Audit    AuditStore
}

// authorizeAccess applies the Task resource gate of spec §4.7 and, on
// denial, maps it to NOT_FOUND rather than FORBIDDEN — spec §7: "Cross-
// tenant access attempts ... always surface as NOT_FOUND to prevent
// existence oracles", generalized here to any resource-gate denial so a
// caller can never distinguish "doesn't exist" from "exists but isn't
// yours".
func authorizeAccess(ctx context.Context, t *model.Task) error {
	rc := reqctx.FromContext(ctx)
	if rc == nil || rc.UserID == nil {
		return apperr.Unauthenticated("no authenticated request context")
	}
	res := authz.TaskResource{
		AssignedToUserID: t.AssignedToUserID,
		CreatedByUserID:  t.CreatedByUserID,
		// ProjectDepartmentID is left nil: spec §3's data model does not
		// define a Project aggregate carrying a department id, so the
		// resource gate's department clause (spec §4.7) is implemented but
		// never satisfied until a Projects module exists — see DESIGN.md.
		ProjectDepartmentID: nil,
	}
	if err := authz.RequireTaskAccess(rc, *rc.UserID, nil, res); err != nil {
		return apperr.NotFound("task not found")
	}
	return nil
}

// --- Create ---------------------------------------------------------------

// CreateTaskCommand is POST /tasks's payload.
type CreateTaskCommand struct {
	TenantID        uuid.UUID
	ProjectID       uuid.UUID
	Title           string
	Description     string
	Priority        model.TaskPriority
	AssignedToUser  *uuid.UUID
	DueDate         *time.Time
	EstimatedHours  *float64
	Tags            []string
	Watchers        []uuid.UUID
	CreatedByUserID uuid.UUID
}

func (c CreateTaskCommand) Validate() error {
	if c.Title == "" {
		return apperr.Validation("title is required")
	}
	if c.ProjectID == uuid.Nil {
		return apperr.Validation("project_id is required")
	}
	if c.Priority == "" {
		c.Priority = model.PriorityMedium
	}
	return nil
}

// AuthorizeCreate is the role/permission gate for CreateTaskCommand,
// registered with the mediator.
func AuthorizeCreate(ctx context.Context, _ mediator.Message) error {
	return authz.RequireAll(ctx, nil, "tasks.create")
}

// Create inserts a new Task at version 1, status TODO, and emits
// TaskCreated (spec §4.3).
func (h *Handlers) Create(ctx context.Context, _ mediator.Tx, msg mediator.Message) (any, []events.Event, error) {
	cmd := msg.(CreateTaskCommand)
	priority := cmd.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}

	now := time.Now()
	t := &model.Task{
		ID:               uuid.New(),
		TenantID:         cmd.TenantID,
		ProjectID:        cmd.ProjectID,
		Title:            cmd.Title,
		Description:      cmd.Description,
		Status:           model.StatusTodo,
		Priority:         priority,
		AssignedToUserID: cmd.AssignedToUser,
		CreatedByUserID:  cmd.CreatedByUserID,
		Watchers:         toUUIDSet(cmd.Watchers),
		Tags:             toStrSet(cmd.Tags),
		DueDate:          cmd.DueDate,
		EstimatedHours:   cmd.EstimatedHours,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := h.Tasks.Create(ctx, t); err != nil {
		return nil, nil, err
	}

	evt := events.Event{
		ID:          uuid.New(),
		Type:        events.EventTaskCreated,
		AggregateID: t.ID,
		TenantID:    t.TenantID,
		Payload:     map[string]any{"title": t.Title, "project_id": t.ProjectID.String(), "actor_user_id": cmd.CreatedByUserID.String()},
		Version:     1,
		OccurredAt:  now,
	}
	return t, []events.Event{evt}, nil
}

// --- Update ----------------------------------------------------------------

// UpdateTaskCommand is PUT /tasks/{id}'s payload. ExpectedVersion enforces
// the optimistic-concurrency invariant of spec §3/§8 scenario 6.
type UpdateTaskCommand struct {
	TaskID          uuid.UUID
	ExpectedVersion int
	Title           string
	Description     string
	Priority        model.TaskPriority
	AssignedToUser  *uuid.UUID
	DueDate         *time.Time
	EstimatedHours  *float64
	ActualHours     *float64
	Tags            []string
	Watchers        []uuid.UUID
}

func (c UpdateTaskCommand) Validate() error {
	if c.TaskID == uuid.Nil {
		return apperr.Validation("task id is required")
	}
	if c.Title == "" {
		return apperr.Validation("title is required")
	}
	return nil
}

// AuthorizeUpdate is the role/permission gate for UpdateTaskCommand.
func AuthorizeUpdate(ctx context.Context, _ mediator.Message) error {
	return authz.RequireAll(ctx, nil, "tasks.update")
}

// Update mutates a Task's editable fields under optimistic concurrency and
// emits TaskUpdated. The resource gate runs here, once the aggregate is
// loaded, per spec §9's design note.
func (h *Handlers) Update(ctx context.Context, _ mediator.Tx, msg mediator.Message) (any, []events.Event, error) {
	cmd := msg.(UpdateTaskCommand)

	t, err := h.Tasks.GetByID(ctx, cmd.TaskID)
	if err != nil {
		return nil, nil, err
	}
	if err := authorizeAccess(ctx, t); err != nil {
		return nil, nil, err
	}

	t.Title = cmd.Title
	t.Description = cmd.Description
	if cmd.Priority != "" {
		t.Priority = cmd.Priority
	}
	t.AssignedToUserID = cmd.AssignedToUser
	t.DueDate = cmd.DueDate
	t.EstimatedHours = cmd.EstimatedHours
	t.ActualHours = cmd.ActualHours
	if cmd.Tags != nil {
		t.Tags = toStrSet(cmd.Tags)
	}
	if cmd.Watchers != nil {
		t.Watchers = toUUIDSet(cmd.Watchers)
	}

	if err := h.Tasks.Update(ctx, t, cmd.ExpectedVersion); err != nil {
		return nil, nil, err
	}
	t.Version = cmd.ExpectedVersion + 1

	evt := events.Event{
		ID:          uuid.New(),
		Type:        events.EventTaskUpdated,
		AggregateID: t.ID,
		TenantID:    t.TenantID,
		Payload:     map[string]any{"version": t.Version, "actor_user_id": actorUserID(ctx)},
		Version:     t.Version,
		OccurredAt:  time.Now(),
	}
	return t, []events.Event{evt}, nil
}

// --- Assign ------------------------------------------------------------

// AssignTaskCommand is PATCH /tasks/{id}/assign's payload.
type AssignTaskCommand struct {
	TaskID          uuid.UUID
	ExpectedVersion int
	AssignedToUser  uuid.UUID
}

func (c AssignTaskCommand) Validate() error {
	if c.TaskID == uuid.Nil || c.AssignedToUser == uuid.Nil {
		return apperr.Validation("task id and assigned_to_user_id are required")
	}
	return nil
}

// AuthorizeAssign is the role/permission gate for AssignTaskCommand.
func AuthorizeAssign(ctx context.Context, _ mediator.Message) error {
	return authz.RequireAll(ctx, nil, "tasks.assign")
}

// Assign sets assigned_to_user_id and emits TaskAssigned.
func (h *Handlers) Assign(ctx context.Context, _ mediator.Tx, msg mediator.Message) (any, []events.Event, error) {
	cmd := msg.(AssignTaskCommand)

	t, err := h.Tasks.GetByID(ctx, cmd.TaskID)
	if err != nil {
		return nil, nil, err
	}
	if err := authorizeAccess(ctx, t); err != nil {
		return nil, nil, err
	}

	previous := t.AssignedToUserID
	t.AssignedToUserID = &cmd.AssignedToUser

	if err := h.Tasks.Update(ctx, t, cmd.ExpectedVersion); err != nil {
		return nil, nil, err
	}
	t.Version = cmd.ExpectedVersion + 1

	payload := map[string]any{"assigned_to_user_id": cmd.AssignedToUser.String(), "actor_user_id": actorUserID(ctx)}
	if previous != nil {
		payload["previous_assigned_to_user_id"] = previous.String()
	}
	evt := events.Event{
		ID:          uuid.New(),
		Type:        events.EventTaskAssigned,
		AggregateID: t.ID,
		TenantID:    t.TenantID,
		Payload:     payload,
		Version:     t.Version,
		OccurredAt:  time.Now(),
	}
	return t, []events.Event{evt}, nil
}

// --- ChangeStatus --------------------------------------------------------

// ChangeStatusCommand is PATCH /tasks/{id}/status's payload.
type ChangeStatusCommand struct {
	TaskID          uuid.UUID
	ExpectedVersion int
	To              model.TaskStatus
	Reason          string
	CallerIsAdmin   bool
}

func (c ChangeStatusCommand) Validate() error {
	if c.TaskID == uuid.Nil {
		return apperr.Validation("task id is required")
	}
	switch c.To {
	case model.StatusTodo, model.StatusInProgress, model.StatusInReview,
		model.StatusBlocked, model.StatusDone, model.StatusCancelled:
	default:
		return apperr.Validation("status is not a recognized value")
	}
	return nil
}

// AuthorizeChangeStatus is the role/permission gate for
// ChangeStatusCommand.
func AuthorizeChangeStatus(ctx context.Context, _ mediator.Message) error {
	return authz.RequireAll(ctx, nil, "tasks.update")
}

// ChangeStatus applies the state-transition table of spec §4.10,
// rejecting illegal transitions with InvalidTransition and enforcing the
// per-status structural invariants of spec §3 (BLOCKED needs a reason,
// IN_REVIEW needs an assignee) before persisting.
func (h *Handlers) ChangeStatus(ctx context.Context, _ mediator.Tx, msg mediator.Message) (any, []events.Event, error) {
	cmd := msg.(ChangeStatusCommand)

	t, err := h.Tasks.GetByID(ctx, cmd.TaskID)
	if err != nil {
		return nil, nil, err
	}
	if err := authorizeAccess(ctx, t); err != nil {
		return nil, nil, err
	}

	rc := reqctx.FromContext(ctx)
	isAdmin := rc.HasRole("TENANT_ADMIN") || rc.HasRole("SYSTEM_ADMIN")

	if !model.CanTransition(t.Status, cmd.To, isAdmin) {
		return nil, nil, apperr.InvalidTransition(
			"cannot move task from " + string(t.Status) + " to " + string(cmd.To))
	}

	blockedReason := t.BlockedReason
	if cmd.To == model.StatusBlocked {
		blockedReason = cmd.Reason
	}
	if err := model.ValidateForStatus(cmd.To, blockedReason, t.AssignedToUserID); err != nil {
		return nil, nil, apperr.Validation(err.Error())
	}

	from := t.Status
	t.Status = cmd.To
	t.BlockedReason = blockedReason

	if err := h.Tasks.Update(ctx, t, cmd.ExpectedVersion); err != nil {
		return nil, nil, err
	}
	t.Version = cmd.ExpectedVersion + 1

	evt := events.Event{
		ID:          uuid.New(),
		Type:        events.EventTaskStatusChanged,
		AggregateID: t.ID,
		TenantID:    t.TenantID,
		Payload:     map[string]any{"from": string(from), "to": string(cmd.To), "reason": cmd.Reason, "actor_user_id": actorUserID(ctx)},
		Version:     t.Version,
		OccurredAt:  time.Now(),
	}
	return t, []events.Event{evt}, nil
}

// --- Delete ------------------------------------------------------------

// DeleteTaskCommand is DELETE /tasks/{id}'s payload.
type DeleteTaskCommand struct {
	TaskID          uuid.UUID
	ExpectedVersion int
}

func (c DeleteTaskCommand) Validate() error {
	if c.TaskID == uuid.Nil {
		return apperr.Validation("task id is required")
	}
	return nil
}

// AuthorizeDelete is the role/permission gate for DeleteTaskCommand.
func AuthorizeDelete(ctx context.Context, _ mediator.Message) error {
	return authz.RequireAll(ctx, nil, "tasks.delete")
}

// Delete soft-deletes a Task and emits TaskDeleted (spec §3/§4.10).
func (h *Handlers) Delete(ctx context.Context, _ mediator.Tx, msg mediator.Message) (any, []events.Event, error) {
	cmd := msg.(DeleteTaskCommand)

	t, err := h.Tasks.GetByID(ctx, cmd.TaskID)
	if err != nil {
		return nil, nil, err
	}
	if err := authorizeAccess(ctx, t); err != nil {
		return nil, nil, err
	}

	if err := h.Tasks.SoftDelete(ctx, cmd.TaskID, cmd.ExpectedVersion); err != nil {
		return nil, nil, err
	}

	evt := events.Event{
		ID:          uuid.New(),
		Type:        events.EventTaskDeleted,
		AggregateID: t.ID,
		TenantID:    t.TenantID,
		Payload:     map[string]any{"actor_user_id": actorUserID(ctx)},
		Version:     cmd.ExpectedVersion + 1,
		OccurredAt:  time.Now(),
	}
	return nil, []events.Event{evt}, nil
}

// --- Comment -------------------------------------------------------------

// AddCommentCommand is POST /tasks/{id}/comments's payload.
type AddCommentCommand struct {
	TaskID  uuid.UUID
	UserID  uuid.UUID
	Content string
}

func (c AddCommentCommand) Validate() error {
	if c.TaskID == uuid.Nil || c.Content == "" {
		return apperr.Validation("task id and content are required")
	}
	return nil
}

// AuthorizeComment is the role/permission gate for AddCommentCommand.
func AuthorizeComment(ctx context.Context, _ mediator.Message) error {
	return authz.RequireAll(ctx, nil, "tasks.read")
}

// AddComment appends a Comment to a Task and emits TaskCommentAdded.
func (h *Handlers) AddComment(ctx context.Context, _ mediator.Tx, msg mediator.Message) (any, []events.Event, error) {
	cmd := msg.(AddCommentCommand)

	t, err := h.Tasks.GetByID(ctx, cmd.TaskID)
	if err != nil {
		return nil, nil, err
	}
	if err := authorizeAccess(ctx, t); err != nil {
		return nil, nil, err
	}

	c := &model.Comment{
		ID:        uuid.New(),
		TenantID:  t.TenantID,
		TaskID:    t.ID,
		UserID:    cmd.UserID,
		Content:   cmd.Content,
		CreatedAt: time.Now(),
	}
	if err := h.Comments.Create(ctx, c); err != nil {
		return nil, nil, err
	}

	evt := events.Event{
		ID:          uuid.New(),
		Type:        events.EventTaskCommentAdded,
		AggregateID: t.ID,
		TenantID:    t.TenantID,
		Payload:     map[string]any{"comment_id": c.ID.String(), "actor_user_id": actorUserID(ctx)},
		Version:     t.Version,
		OccurredAt:  c.CreatedAt,
	}
	return c, []events.Event{evt}, nil
}

// actorUserID returns the bound caller's user id as a string, or "" if
// the context carries none, for embedding in an event's payload so the
// audit-log subscriber (internal/repo.AuditLogRepo.Subscriber) can
// attribute the mutation to an actor.
func actorUserID(ctx context.Context) string {
	rc := reqctx.FromContext(ctx)
	if rc == nil || rc.UserID == nil {
		return ""
	}
	return rc.UserID.String()
}

func toUUIDSet(ids []uuid.UUID) map[uuid.UUID]bool {
	set := map[uuid.UUID]bool{}
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func toStrSet(strs []string) map[string]bool {
	set := map[string]bool{}
	for _, s := range strs {
		set[s] = true
	}
	return set
}

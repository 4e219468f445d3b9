package taskapp

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/model"
	"github.com/oranofz/taskmanagement/internal/reqctx"
	"github.com/oranofz/taskmanagement/internal/repo"
)

type fakeTaskStore struct {
	tasks map[uuid.UUID]*model.Task
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: map[uuid.UUID]*model.Task{}}
}

func (f *fakeTaskStore) GetByID(_ context.Context, id uuid.UUID) (*model.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, apperr.NotFound("task not found")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTaskStore) Create(_ context.Context, t *model.Task) error {
	cp := *t
	f.tasks[t.ID] = &cp
	return nil
}

func (f *fakeTaskStore) Update(_ context.Context, t *model.Task, expectedVersion int) error {
	existing, ok := f.tasks[t.ID]
	if !ok {
		return apperr.NotFound("task not found")
	}
	if existing.Version != expectedVersion {
		return apperr.Conflict("task was modified concurrently")
	}
	cp := *t
	cp.Version = expectedVersion + 1
	f.tasks[t.ID] = &cp
	return nil
}

func (f *fakeTaskStore) SoftDelete(_ context.Context, id uuid.UUID, expectedVersion int) error {
	existing, ok := f.tasks[id]
	if !ok {
		return apperr.NotFound("task not found")
	}
	if existing.Version != expectedVersion {
		return apperr.Conflict("task was modified concurrently")
	}
	existing.IsDeleted = true
	return nil
}

func (f *fakeTaskStore) List(_ context.Context, _ repo.TaskFilter) ([]*model.Task, int, error) {
	return nil, 0, errors.New("not implemented in this fake")
}

func (f *fakeTaskStore) CountByStatus(_ context.Context) (map[model.TaskStatus]int, error) {
	counts := map[model.TaskStatus]int{}
	for _, t := range f.tasks {
		counts[t.Status]++
	}
	return counts, nil
}

type fakeCommentStore struct {
	comments []*model.Comment
}

func (f *fakeCommentStore) Create(_ context.Context, c *model.Comment) error {
	f.comments = append(f.comments, c)
	return nil
}

func (f *fakeCommentStore) ListByTask(_ context.Context, taskID uuid.UUID) ([]*model.Comment, error) {
	var out []*model.Comment
	for _, c := range f.comments {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	return out, nil
}

func ctxWithUser(userID uuid.UUID, roles ...string) context.Context {
	rc := &reqctx.RequestContext{
		UserID:      &userID,
		Roles:       roles,
		Permissions: map[string]bool{"tasks.read": true, "tasks.create": true, "tasks.update": true, "tasks.assign": true},
	}
	return reqctx.WithRequestContext(context.Background(), rc)
}

func TestHandlersCreate(t *testing.T) {
	h := &Handlers{Tasks: newFakeTaskStore(), Comments: &fakeCommentStore{}}
	creator := uuid.New()
	ctx := ctxWithUser(creator)

	cmd := CreateTaskCommand{
		TenantID:        uuid.New(),
		ProjectID:       uuid.New(),
		Title:           "write onboarding doc",
		CreatedByUserID: creator,
	}
	result, evts, err := h.Create(ctx, nil, cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	task := result.(*model.Task)
	if task.Status != model.StatusTodo {
		t.Errorf("expected new task status TODO, got %s", task.Status)
	}
	if task.Priority != model.PriorityMedium {
		t.Errorf("expected default priority MEDIUM, got %s", task.Priority)
	}
	if task.Version != 1 {
		t.Errorf("expected version 1, got %d", task.Version)
	}
	if len(evts) != 1 || evts[0].Type != "TaskCreated" {
		t.Errorf("expected exactly one TaskCreated event, got %v", evts)
	}
}

func TestHandlersChangeStatusRejectsIllegalTransition(t *testing.T) {
	store := newFakeTaskStore()
	owner := uuid.New()
	taskID := uuid.New()
	store.tasks[taskID] = &model.Task{
		ID: taskID, Status: model.StatusTodo, Version: 1,
		CreatedByUserID: owner, AssignedToUserID: &owner,
	}
	h := &Handlers{Tasks: store, Comments: &fakeCommentStore{}}
	ctx := ctxWithUser(owner)

	_, _, err := h.ChangeStatus(ctx, nil, ChangeStatusCommand{
		TaskID: taskID, ExpectedVersion: 1, To: model.StatusDone,
	})
	ae, ok := apperr.As(err)
	if !ok || ae.Code != apperr.CodeInvalidTransition {
		t.Fatalf("expected InvalidTransition, got %v", err)
	}
}

func TestHandlersChangeStatusToBlockedRequiresReason(t *testing.T) {
	store := newFakeTaskStore()
	owner := uuid.New()
	taskID := uuid.New()
	store.tasks[taskID] = &model.Task{
		ID: taskID, Status: model.StatusInProgress, Version: 1,
		CreatedByUserID: owner, AssignedToUserID: &owner,
	}
	h := &Handlers{Tasks: store, Comments: &fakeCommentStore{}}
	ctx := ctxWithUser(owner)

	_, _, err := h.ChangeStatus(ctx, nil, ChangeStatusCommand{
		TaskID: taskID, ExpectedVersion: 1, To: model.StatusBlocked,
	})
	if err == nil {
		t.Fatal("expected an error for BLOCKED with no reason")
	}

	_, evts, err := h.ChangeStatus(ctx, nil, ChangeStatusCommand{
		TaskID: taskID, ExpectedVersion: 1, To: model.StatusBlocked, Reason: "waiting on legal",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(evts) != 1 {
		t.Errorf("expected one TaskStatusChanged event, got %d", len(evts))
	}
}

func TestHandlersChangeStatusAdminCancel(t *testing.T) {
	store := newFakeTaskStore()
	owner := uuid.New()
	admin := uuid.New()
	taskID := uuid.New()
	store.tasks[taskID] = &model.Task{
		ID: taskID, Status: model.StatusInProgress, Version: 1,
		CreatedByUserID: owner, AssignedToUserID: &owner,
	}
	h := &Handlers{Tasks: store, Comments: &fakeCommentStore{}}

	// A non-admin assignee cannot cancel.
	ctxOwner := ctxWithUser(owner)
	_, _, err := h.ChangeStatus(ctxOwner, nil, ChangeStatusCommand{
		TaskID: taskID, ExpectedVersion: 1, To: model.StatusCancelled, CallerIsAdmin: false,
	})
	if err == nil {
		t.Fatal("expected non-admin cancel to be rejected")
	}

	// A caller holding TENANT_ADMIN can cancel.
	ctxAdmin := ctxWithUser(admin, "TENANT_ADMIN")
	_, _, err = h.ChangeStatus(ctxAdmin, nil, ChangeStatusCommand{
		TaskID: taskID, ExpectedVersion: 1, To: model.StatusCancelled,
	})
	if err != nil {
		t.Fatalf("expected admin cancel to succeed: %v", err)
	}
}

func TestHandlersUpdateOptimisticConcurrency(t *testing.T) {
	store := newFakeTaskStore()
	owner := uuid.New()
	taskID := uuid.New()
	store.tasks[taskID] = &model.Task{
		ID: taskID, Status: model.StatusTodo, Version: 3,
		CreatedByUserID: owner, AssignedToUserID: &owner, Title: "old title",
	}
	h := &Handlers{Tasks: store, Comments: &fakeCommentStore{}}
	ctx := ctxWithUser(owner)

	_, _, err := h.Update(ctx, nil, UpdateTaskCommand{
		TaskID: taskID, ExpectedVersion: 2, Title: "new title",
	})
	ae, ok := apperr.As(err)
	if !ok || ae.Code != apperr.CodeConflict {
		t.Fatalf("expected a conflict on stale ExpectedVersion, got %v", err)
	}
}

func TestHandlersAccessDeniedSurfacesAsNotFound(t *testing.T) {
	store := newFakeTaskStore()
	owner := uuid.New()
	stranger := uuid.New()
	taskID := uuid.New()
	store.tasks[taskID] = &model.Task{
		ID: taskID, Status: model.StatusTodo, Version: 1,
		CreatedByUserID: owner, AssignedToUserID: &owner,
	}
	h := &Handlers{Tasks: store, Comments: &fakeCommentStore{}}
	ctx := ctxWithUser(stranger)

	_, _, err := h.Update(ctx, nil, UpdateTaskCommand{
		TaskID: taskID, ExpectedVersion: 1, Title: "hijacked",
	})
	ae, ok := apperr.As(err)
	if !ok || ae.Code != apperr.CodeNotFound {
		t.Fatalf("expected a resource-gate denial to surface as NOT_FOUND, got %v", err)
	}
}

func TestHandlersDeleteRequiresAdminPermission(t *testing.T) {
	rc := &reqctx.RequestContext{
		UserID:      func() *uuid.UUID { id := uuid.New(); return &id }(),
		Roles:       []string{"MEMBER"},
		Permissions: map[string]bool{"tasks.read": true, "tasks.update": true},
	}
	ctx := reqctx.WithRequestContext(context.Background(), rc)

	if err := AuthorizeDelete(ctx, DeleteTaskCommand{}); err == nil {
		t.Fatal("expected a plain MEMBER to be denied tasks.delete")
	}

	rc.Permissions["tasks.*"] = true
	if err := AuthorizeDelete(ctx, DeleteTaskCommand{}); err != nil {
		t.Errorf("expected tasks.* wildcard to satisfy tasks.delete: %v", err)
	}
}

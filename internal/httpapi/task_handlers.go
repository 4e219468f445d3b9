package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/model"
	"github.com/oranofz/taskmanagement/internal/reqctx"
	"github.com/oranofz/taskmanagement/internal/taskapp"
)

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.Validation(name + " is not a valid UUID")
	}
	return id, nil
}

func currentUserID(r *http.Request) (uuid.UUID, error) {
	rc := reqctx.FromContext(r.Context())
	if rc == nil || rc.UserID == nil {
		return uuid.Nil, unauthenticatedNoBearer()
	}
	return *rc.UserID, nil
}

func taskDTO(t *model.Task) map[string]any {
	dto := map[string]any{
		"id":                 t.ID,
		"tenant_id":          t.TenantID,
		"project_id":         t.ProjectID,
		"title":              t.Title,
		"description":        t.Description,
		"status":             t.Status,
		"priority":           t.Priority,
		"assigned_to_user_id": t.AssignedToUserID,
		"created_by_user_id": t.CreatedByUserID,
		"due_date":           t.DueDate,
		"estimated_hours":    t.EstimatedHours,
		"actual_hours":       t.ActualHours,
		"blocked_reason":     t.BlockedReason,
		"version":            t.Version,
		"created_at":         t.CreatedAt,
		"updated_at":         t.UpdatedAt,
	}
	tags := make([]string, 0, len(t.Tags))
	for tag := range t.Tags {
		tags = append(tags, tag)
	}
	dto["tags"] = tags
	watchers := make([]uuid.UUID, 0, len(t.Watchers))
	for w := range t.Watchers {
		watchers = append(watchers, w)
	}
	dto["watchers"] = watchers
	return dto
}

type createTaskRequest struct {
	ProjectID      uuid.UUID          `json:"project_id"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	Priority       model.TaskPriority `json:"priority"`
	AssignedToUser *uuid.UUID         `json:"assigned_to_user_id"`
	DueDate        *string            `json:"due_date"`
	EstimatedHours *float64           `json:"estimated_hours"`
	Tags           []string           `json:"tags"`
	Watchers       []uuid.UUID        `json:"watchers"`
}

// CreateTask handles POST /tasks (spec §6).
func (s *Server) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	rc := reqctx.FromContext(r.Context())

	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppErr(w, r, err)
		return
	}

	dueDate, err := parseOptionalRFC3339(req.DueDate)
	if err != nil {
		writeAppErr(w, r, err)
		return
	}

	cmd := taskapp.CreateTaskCommand{
		TenantID:        rc.TenantID,
		ProjectID:       req.ProjectID,
		Title:           req.Title,
		Description:     req.Description,
		Priority:        req.Priority,
		AssignedToUser:  req.AssignedToUser,
		DueDate:         dueDate,
		EstimatedHours:  req.EstimatedHours,
		Tags:            req.Tags,
		Watchers:        req.Watchers,
		CreatedByUserID: userID,
	}
	result, err := s.Mediator.Dispatch(r.Context(), cmd)
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, taskDTO(result.(*model.Task)))
}

// GetTask handles GET /tasks/{id}.
func (s *Server) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	result, err := s.Mediator.Dispatch(r.Context(), taskapp.GetTaskQuery{TaskID: id})
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, taskDTO(result.(*model.Task)))
}

// ListTasks handles GET /tasks (spec §6's filter/pagination surface).
func (s *Server) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	listQuery := taskapp.ListTasksQuery{
		Status:   model.TaskStatus(q.Get("status")),
		Priority: model.TaskPriority(q.Get("priority")),
		Limit:    parseIntDefault(q.Get("limit"), 20),
		Offset:   parseIntDefault(q.Get("offset"), 0),
	}
	if pid := q.Get("project_id"); pid != "" {
		if id, err := uuid.Parse(pid); err == nil {
			listQuery.ProjectID = &id
		}
	}
	if aid := q.Get("assigned_to_user_id"); aid != "" {
		if id, err := uuid.Parse(aid); err == nil {
			listQuery.AssignedToUser = &id
		}
	}

	result, err := s.Mediator.Dispatch(r.Context(), listQuery)
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	page := result.(*taskapp.TaskListResult)
	dtos := make([]map[string]any, 0, len(page.Tasks))
	for _, t := range page.Tasks {
		dtos = append(dtos, taskDTO(t))
	}
	writeData(w, r, http.StatusOK, map[string]any{
		"tasks": dtos,
		"total": page.Total,
		"limit": listQuery.Limit,
		"offset": listQuery.Offset,
	})
}

type updateTaskRequest struct {
	ExpectedVersion int                `json:"expected_version"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Priority        model.TaskPriority `json:"priority"`
	AssignedToUser  *uuid.UUID         `json:"assigned_to_user_id"`
	DueDate         *string            `json:"due_date"`
	EstimatedHours  *float64           `json:"estimated_hours"`
	ActualHours     *float64           `json:"actual_hours"`
	Tags            []string           `json:"tags"`
	Watchers        []uuid.UUID        `json:"watchers"`
}

// UpdateTask handles PUT /tasks/{id}.
func (s *Server) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	var req updateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppErr(w, r, err)
		return
	}
	dueDate, err := parseOptionalRFC3339(req.DueDate)
	if err != nil {
		writeAppErr(w, r, err)
		return
	}

	result, err := s.Mediator.Dispatch(r.Context(), taskapp.UpdateTaskCommand{
		TaskID:          id,
		ExpectedVersion: req.ExpectedVersion,
		Title:           req.Title,
		Description:     req.Description,
		Priority:        req.Priority,
		AssignedToUser:  req.AssignedToUser,
		DueDate:         dueDate,
		EstimatedHours:  req.EstimatedHours,
		ActualHours:     req.ActualHours,
		Tags:            req.Tags,
		Watchers:        req.Watchers,
	})
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, taskDTO(result.(*model.Task)))
}

// DeleteTask handles DELETE /tasks/{id}.
func (s *Server) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	version := parseIntDefault(r.URL.Query().Get("expected_version"), 0)

	if _, err := s.Mediator.Dispatch(r.Context(), taskapp.DeleteTaskCommand{
		TaskID:          id,
		ExpectedVersion: version,
	}); err != nil {
		writeAppErr(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{"deleted": true})
}

type assignTaskRequest struct {
	ExpectedVersion int       `json:"expected_version"`
	AssignedToUser  uuid.UUID `json:"assigned_to_user_id"`
}

// AssignTask handles PATCH /tasks/{id}/assign.
func (s *Server) AssignTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	var req assignTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppErr(w, r, err)
		return
	}

	result, err := s.Mediator.Dispatch(r.Context(), taskapp.AssignTaskCommand{
		TaskID:          id,
		ExpectedVersion: req.ExpectedVersion,
		AssignedToUser:  req.AssignedToUser,
	})
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, taskDTO(result.(*model.Task)))
}

type changeStatusRequest struct {
	ExpectedVersion int              `json:"expected_version"`
	Status          model.TaskStatus `json:"status"`
	Reason          string           `json:"reason"`
}

// ChangeTaskStatus handles PATCH /tasks/{id}/status.
func (s *Server) ChangeTaskStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	var req changeStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppErr(w, r, err)
		return
	}

	rc := reqctx.FromContext(r.Context())
	result, err := s.Mediator.Dispatch(r.Context(), taskapp.ChangeStatusCommand{
		TaskID:          id,
		ExpectedVersion: req.ExpectedVersion,
		To:              req.Status,
		Reason:          req.Reason,
		CallerIsAdmin:   rc.HasRole("TENANT_ADMIN") || rc.HasRole("SYSTEM_ADMIN"),
	})
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, taskDTO(result.(*model.Task)))
}

type addCommentRequest struct {
	Content string `json:"content"`
}

// AddTaskComment handles POST /tasks/{id}/comments.
func (s *Server) AddTaskComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	userID, err := currentUserID(r)
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	var req addCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppErr(w, r, err)
		return
	}

	result, err := s.Mediator.Dispatch(r.Context(), taskapp.AddCommentCommand{
		TaskID:  id,
		UserID:  userID,
		Content: req.Content,
	})
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	c := result.(*model.Comment)
	writeData(w, r, http.StatusCreated, map[string]any{
		"id":         c.ID,
		"task_id":    c.TaskID,
		"user_id":    c.UserID,
		"content":    c.Content,
		"created_at": c.CreatedAt,
	})
}

// TaskStatistics handles GET /tasks/reports/statistics.
func (s *Server) TaskStatistics(w http.ResponseWriter, r *http.Request) {
	result, err := s.Mediator.Dispatch(r.Context(), taskapp.StatisticsQuery{})
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	stats := result.(*taskapp.StatisticsResult)
	byStatus := make(map[string]int, len(stats.ByStatus))
	for status, n := range stats.ByStatus {
		byStatus[string(status)] = n
	}
	body := map[string]any{"by_status": byStatus}
	if stats.RecentAudit != nil {
		audit := make([]map[string]any, 0, len(stats.RecentAudit))
		for _, e := range stats.RecentAudit {
			audit = append(audit, map[string]any{
				"id":             e.ID,
				"actor_user_id":  e.ActorUserID,
				"action":         e.Action,
				"target_type":    e.TargetType,
				"target_id":      e.TargetID,
				"changes":        e.Changes,
				"created_at":     e.CreatedAt,
			})
		}
		body["recent_audit"] = audit
	}
	writeData(w, r, http.StatusOK, body)
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

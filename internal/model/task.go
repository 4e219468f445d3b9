package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is one of the six states of the Task state machine (spec §4.10).
type TaskStatus string

const (
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusInReview   TaskStatus = "IN_REVIEW"
	StatusBlocked    TaskStatus = "BLOCKED"
	StatusDone       TaskStatus = "DONE"
	StatusCancelled  TaskStatus = "CANCELLED"
)

// TaskPriority is Task.priority.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "LOW"
	PriorityMedium   TaskPriority = "MEDIUM"
	PriorityHigh     TaskPriority = "HIGH"
	PriorityCritical TaskPriority = "CRITICAL"
)

// allowedTransitions encodes the state-machine table of spec §4.10.
// adminOnly transitions (to CANCELLED) are gated separately in
// CanTransition since they depend on the caller's role, not just state.
var allowedTransitions = map[TaskStatus]map[TaskStatus]bool{
	StatusTodo:       {StatusInProgress: true},
	StatusInProgress: {StatusInReview: true, StatusBlocked: true},
	StatusInReview:   {StatusInProgress: true, StatusDone: true},
	StatusBlocked:    {StatusTodo: true, StatusInProgress: true},
	StatusDone:       {},
	StatusCancelled:  {},
}

// adminCancellableFrom lists the states from which a task may move to
// CANCELLED, only when the caller is TENANT_ADMIN or SYSTEM_ADMIN
// (spec §4.10's "(admin)" annotations): every non-terminal state.
var adminCancellableFrom = map[TaskStatus]bool{
	StatusTodo:       true,
	StatusInProgress: true,
	StatusInReview:   true,
	StatusBlocked:    true,
}

// CanTransition reports whether moving from `from` to `to` is legal for a
// caller who either is, or is not, an administrator.
func CanTransition(from, to TaskStatus, callerIsAdmin bool) bool {
	if from == to {
		return false
	}
	if to == StatusCancelled {
		return callerIsAdmin && adminCancellableFrom[from]
	}
	return allowedTransitions[from][to]
}

// Task is the Task aggregate root (spec §3, §4.10).
type Task struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	ProjectID         uuid.UUID
	Title             string
	Description       string
	Status            TaskStatus
	Priority          TaskPriority
	AssignedToUserID  *uuid.UUID
	CreatedByUserID   uuid.UUID
	Watchers          map[uuid.UUID]bool
	Tags              map[string]bool
	DueDate           *time.Time
	EstimatedHours     *float64
	ActualHours        *float64
	BlockedReason      string
	Version           int
	IsDeleted         bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ValidateForStatus enforces the per-status structural invariants of
// spec §3: BLOCKED requires a reason, IN_REVIEW requires an assignee.
func ValidateForStatus(status TaskStatus, blockedReason string, assignedTo *uuid.UUID) error {
	switch status {
	case StatusBlocked:
		if blockedReason == "" {
			return errTaskValidation("blocked_reason is required when status is BLOCKED")
		}
	case StatusInReview:
		if assignedTo == nil {
			return errTaskValidation("assigned_to_user_id is required when status is IN_REVIEW")
		}
	}
	return nil
}

type taskValidationError string

func (e taskValidationError) Error() string { return string(e) }

func errTaskValidation(msg string) error { return taskValidationError(msg) }

package model

import (
	"testing"

	"github.com/google/uuid"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name          string
		from          TaskStatus
		to            TaskStatus
		callerIsAdmin bool
		want          bool
	}{
		{"todo to in_progress", StatusTodo, StatusInProgress, false, true},
		{"todo to done is illegal", StatusTodo, StatusDone, false, false},
		{"in_review back to in_progress", StatusInReview, StatusInProgress, false, true},
		{"in_review to done", StatusInReview, StatusDone, false, true},
		{"blocked to todo", StatusBlocked, StatusTodo, false, true},
		{"done is terminal", StatusDone, StatusInProgress, false, false},
		{"same state never transitions", StatusTodo, StatusTodo, true, false},
		{"non-admin cannot cancel", StatusInProgress, StatusCancelled, false, false},
		{"admin can cancel from in_progress", StatusInProgress, StatusCancelled, true, true},
		{"admin cannot cancel from done", StatusDone, StatusCancelled, true, false},
		{"admin cannot un-cancel", StatusCancelled, StatusTodo, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to, tt.callerIsAdmin); got != tt.want {
				t.Errorf("CanTransition(%s, %s, admin=%v) = %v, want %v",
					tt.from, tt.to, tt.callerIsAdmin, got, tt.want)
			}
		})
	}
}

func TestValidateForStatus(t *testing.T) {
	user := uuid.New()

	t.Run("blocked requires a reason", func(t *testing.T) {
		if err := ValidateForStatus(StatusBlocked, "", nil); err == nil {
			t.Fatal("expected an error for BLOCKED with no reason")
		}
		if err := ValidateForStatus(StatusBlocked, "waiting on vendor", nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("in_review requires an assignee", func(t *testing.T) {
		if err := ValidateForStatus(StatusInReview, "", nil); err == nil {
			t.Fatal("expected an error for IN_REVIEW with no assignee")
		}
		if err := ValidateForStatus(StatusInReview, "", &user); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("other statuses have no structural requirement", func(t *testing.T) {
		if err := ValidateForStatus(StatusTodo, "", nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if err := ValidateForStatus(StatusDone, "", nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

package taskapp

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/oranofz/taskmanagement/internal/model"
)

type fakeAuditStore struct {
	entries []*model.AuditLogEntry
	calls   int
}

func (f *fakeAuditStore) ListRecent(_ context.Context, limit int) ([]*model.AuditLogEntry, error) {
	f.calls++
	if limit < len(f.entries) {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func TestStatisticsOmitsAuditForNonAdmin(t *testing.T) {
	store := newFakeTaskStore()
	audit := &fakeAuditStore{entries: []*model.AuditLogEntry{{ID: uuid.New()}}}
	h := &Handlers{Tasks: store, Comments: &fakeCommentStore{}, Audit: audit}

	ctx := ctxWithUser(uuid.New(), "MEMBER")
	result, err := h.Statistics(ctx, StatisticsQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats := result.(*StatisticsResult)
	if stats.RecentAudit != nil {
		t.Errorf("expected a non-admin caller to get no audit companion, got %v", stats.RecentAudit)
	}
	if audit.calls != 0 {
		t.Errorf("expected ListRecent to be skipped entirely for a non-admin caller")
	}
}

func TestStatisticsIncludesAuditForAdmin(t *testing.T) {
	store := newFakeTaskStore()
	entry := &model.AuditLogEntry{ID: uuid.New(), Action: "TaskCreated"}
	audit := &fakeAuditStore{entries: []*model.AuditLogEntry{entry}}
	h := &Handlers{Tasks: store, Comments: &fakeCommentStore{}, Audit: audit}

	ctx := ctxWithUser(uuid.New(), "TENANT_ADMIN")
	result, err := h.Statistics(ctx, StatisticsQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats := result.(*StatisticsResult)
	if len(stats.RecentAudit) != 1 || stats.RecentAudit[0].Action != "TaskCreated" {
		t.Fatalf("expected the admin caller to receive the recent audit entry, got %v", stats.RecentAudit)
	}
}

func TestStatisticsWithNilAuditStoreNeverPanics(t *testing.T) {
	store := newFakeTaskStore()
	h := &Handlers{Tasks: store, Comments: &fakeCommentStore{}}

	ctx := ctxWithUser(uuid.New(), "TENANT_ADMIN")
	result, err := h.Statistics(ctx, StatisticsQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats := result.(*StatisticsResult)
	if stats.RecentAudit != nil {
		t.Errorf("expected a nil Audit store to omit the companion entirely")
	}
}

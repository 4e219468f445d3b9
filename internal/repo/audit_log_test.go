package repo

import (
	"testing"

	"github.com/oranofz/taskmanagement/internal/events"
)

func TestAuditTargetType(t *testing.T) {
	tests := []struct {
		eventType events.EventType
		want      string
	}{
		{events.EventTaskCreated, "Task"},
		{events.EventTaskStatusChanged, "Task"},
		{events.EventTenantCreated, "Tenant"},
		{events.EventTenantSettingsUpdated, "Tenant"},
		{events.EventUserRegistered, "User"},
		{events.EventPasswordChanged, "User"},
		{events.EventMFAEnabled, "User"},
		{events.EventSecurityAlert, "Security"},
	}
	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			if got := auditTargetType(tt.eventType); got != tt.want {
				t.Errorf("auditTargetType(%s) = %q, want %q", tt.eventType, got, tt.want)
			}
		})
	}
}

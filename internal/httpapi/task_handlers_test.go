package httpapi

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func TestParseIntDefault(t *testing.T) {
	tests := []struct {
		raw  string
		def  int
		want int
	}{
		{"", 20, 20},
		{"5", 20, 5},
		{"not-a-number", 20, 20},
		{"0", 20, 0},
	}
	for _, tt := range tests {
		if got := parseIntDefault(tt.raw, tt.def); got != tt.want {
			t.Errorf("parseIntDefault(%q, %d) = %d, want %d", tt.raw, tt.def, got, tt.want)
		}
	}
}

func TestPathUUID(t *testing.T) {
	id := uuid.New()
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id.String())
	req := httptest.NewRequest("GET", "/tasks/"+id.String(), nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	got, err := pathUUID(req, "id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != id {
		t.Errorf("pathUUID() = %v, want %v", got, id)
	}
}

func TestPathUUIDInvalid(t *testing.T) {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "not-a-uuid")
	req := httptest.NewRequest("GET", "/tasks/not-a-uuid", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	if _, err := pathUUID(req, "id"); err == nil {
		t.Fatal("expected an error for a malformed path uuid")
	}
}

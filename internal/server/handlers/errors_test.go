package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/maruel/eduapi/internal/publish"
	"github.com/maruel/eduapi/internal/server/dto"
	"github.com/maruel/eduapi/internal/storage/content"
)

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   dto.ErrorCode
	}{
		{"readiness", &publish.ReadinessError{Lessons: map[string]any{"non_field": []string{"Add at least 1 lesson"}}}, http.StatusBadRequest, dto.ErrorCodePublishNotReady},
		{"permission", fmt.Errorf("%w: review to ready", publish.ErrPermissionDenied), http.StatusForbidden, dto.ErrorCodeForbidden},
		{"structural", fmt.Errorf("%w: published to review", publish.ErrStructurallyForbidden), http.StatusBadRequest, dto.ErrorCodeInvalidTransition},
		{"state", fmt.Errorf("project x is review: %w", content.ErrInvalidState), http.StatusConflict, dto.ErrorCodeInvalidState},
		{"not found", fmt.Errorf("project x: %w", content.ErrNotFound), http.StatusNotFound, dto.ErrorCodeNotFound},
		{"locked", content.ErrEditLocked, http.StatusLocked, dto.ErrorCodeLocked},
		{"field", fmt.Errorf("%w: publishDate", content.ErrFieldNotWritable), http.StatusBadRequest, dto.ErrorCodeFieldNotWritable},
		{"order", content.ErrInvalidOrder, http.StatusBadRequest, dto.ErrorCodeInvalidOrder},
		{"unknown", errors.New("disk full"), http.StatusInternalServerError, dto.ErrorCodeInternal},
		{"passthrough", dto.Forbidden("staff only"), http.StatusForbidden, dto.ErrorCodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ews dto.ErrorWithStatus
			if !errors.As(ToAPIError(tt.err), &ews) {
				t.Fatalf("ToAPIError(%v) has no status", tt.err)
			}
			if ews.StatusCode() != tt.status {
				t.Errorf("got status %d, want %d", ews.StatusCode(), tt.status)
			}
			if ews.Code() != tt.code {
				t.Errorf("got code %s, want %s", ews.Code(), tt.code)
			}
		})
	}
	if ToAPIError(nil) != nil {
		t.Error("ToAPIError(nil) must be nil")
	}
	t.Run("readiness details", func(t *testing.T) {
		var ews dto.ErrorWithStatus
		errors.As(ToAPIError(&publish.ReadinessError{Lessons: map[string]any{}}), &ews)
		if _, ok := ews.Details()["lessons"]; !ok {
			t.Errorf("got details %v, want lessons", ews.Details())
		}
		if got, want := ews.Error(), "cannot leave edit mode: project is not ready to be published"; got != want {
			t.Errorf("got message %q, want %q", got, want)
		}
	})
	t.Run("wrapped", func(t *testing.T) {
		err := ToAPIError(fmt.Errorf("draft: %w", content.ErrInvalidState))
		if !errors.Is(err, content.ErrInvalidState) {
			t.Error("the domain error must stay reachable")
		}
	})
}

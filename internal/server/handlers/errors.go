// Maps domain errors to API errors.

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/maruel/eduapi/internal/publish"
	"github.com/maruel/eduapi/internal/server/dto"
	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/eduapi/internal/storage/identity"
)

// ToAPIError converts an error returned by the content, draft or publish
// layers into an error carrying an HTTP status. Errors that already carry a
// status are returned unchanged and unknown errors become 500.
func ToAPIError(err error) error {
	if err == nil {
		return nil
	}
	var ews dto.ErrorWithStatus
	if errors.As(err, &ews) {
		return err
	}
	var re *publish.ReadinessError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &re):
		return dto.NotReady("cannot leave edit mode", re.Details()).Wrap(err)
	case errors.Is(err, publish.ErrPermissionDenied):
		return dto.Forbidden("forbidden").Wrap(err)
	case errors.Is(err, publish.ErrStructurallyForbidden):
		return dto.InvalidTransition("invalid transition").Wrap(err)
	case errors.Is(err, content.ErrEditLocked):
		return dto.Locked("locked").Wrap(err)
	case errors.Is(err, content.ErrInvalidState):
		return dto.InvalidState("invalid state").Wrap(err)
	case errors.Is(err, content.ErrNotFound), identity.IsNotFound(err):
		return dto.NotFound("resource").Wrap(err)
	case errors.Is(err, content.ErrFieldNotWritable):
		return dto.NewAPIError(http.StatusBadRequest, dto.ErrorCodeFieldNotWritable, "invalid patch").Wrap(err)
	case errors.Is(err, content.ErrInvalidOrder):
		return dto.NewAPIError(http.StatusBadRequest, dto.ErrorCodeInvalidOrder, "lessonsIds").Wrap(err)
	case content.IsValidation(err):
		return dto.BadRequest("validation failed").Wrap(err)
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return dto.InvalidField("body", "malformed value").Wrap(err)
	default:
		return dto.InternalWithError("internal error", err)
	}
}

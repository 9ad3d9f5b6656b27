package content

import "errors"

var (
	// ErrNotFound is returned when a project, lesson, step or draft does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when the current publish mode forbids the operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrEditLocked is returned when another collaborator holds the edit lock.
	ErrEditLocked = errors.New("this project is currently being edited by another collaborator")
	// ErrInvalidOrder is returned when a reorder request is not a permutation of the current children.
	ErrInvalidOrder = errors.New("this field is only for changing lessons order, not to add/remove lessons; all lessons of the project must be in the list")
	// ErrFieldNotWritable is returned when a patch names a field outside the writable set.
	ErrFieldNotWritable = errors.New("field is not writable")

	errIDRequired          = errors.New("id is required")
	errOwnerRequired       = errors.New("owner_id is required")
	errParentRequired      = errors.New("parent id is required")
	errTitleRequired       = errors.New("title is required")
	errTitleTooLong        = errors.New("title must be at most 120 characters")
	errApplicationRequired = errors.New("application is required")
	errUnknownApplication  = errors.New("unknown application")
	errNegativeDuration    = errors.New("duration must be non-negative")
	errInvalidPublishMode  = errors.New("invalid publish mode")
	errDraftLink           = errors.New("is_draft and draft_origin_id must be set together")
)

// IsValidation reports whether err means an entity failed validation, e.g.
// an empty title or an unknown application.
func IsValidation(err error) bool {
	for _, e := range []error{errTitleRequired, errTitleTooLong, errApplicationRequired, errUnknownApplication, errNegativeDuration, errInvalidPublishMode} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

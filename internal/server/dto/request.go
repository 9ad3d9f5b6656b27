package dto

import (
	"encoding/json"
	"time"

	"github.com/maruel/ksid"
)

// Patch is a partial update keyed by camelCase API field names. Nested
// sections such as teacherInfo take an object.
type Patch map[string]json.RawMessage

// --- Health ---

// HealthRequest is a request to check server health.
type HealthRequest struct{}

// Validate is a no-op for HealthRequest.
func (r *HealthRequest) Validate() error {
	return nil
}

// --- Projects ---

// CreateProjectRequest is a request to create a project in edit mode.
type CreateProjectRequest struct {
	Title string `json:"title"`
}

// Validate validates the create project request fields.
func (r *CreateProjectRequest) Validate() error {
	if r.Title == "" {
		return MissingField("title")
	}
	return nil
}

// GetProjectRequest is a request to get a project tree.
type GetProjectRequest struct {
	ID ksid.ID `path:"id"`
	// Embed set to "draft" adds the draft view when one exists.
	Embed string `query:"embed"`
}

// Validate validates the get project request fields.
func (r *GetProjectRequest) Validate() error {
	if r.ID.IsZero() {
		return MissingField("id")
	}
	if r.Embed != "" && r.Embed != "draft" {
		return InvalidField("embed", "only draft is supported")
	}
	return nil
}

// PatchProjectRequest is a partial update of a project.
//
// The body mixes content fields with three workflow keys that are extracted
// by Validate: publishMode, minPublishDate and lessonsIds.
type PatchProjectRequest struct {
	ID ksid.ID `path:"id"`

	// Content holds the remaining content fields.
	Content Patch
	// PublishMode is the requested mode, if any.
	PublishMode PublishMode
	// SetMinPublishDate is true when minPublishDate was present; a nil
	// MinPublishDate clears it.
	SetMinPublishDate bool
	MinPublishDate    *time.Time
	// LessonsIDs is the new lesson order, if any.
	LessonsIDs []ksid.ID

	raw Patch
}

// UnmarshalJSON captures the whole body.
func (r *PatchProjectRequest) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &r.raw)
}

// Validate validates the patch and splits the workflow keys from content.
func (r *PatchProjectRequest) Validate() error {
	if r.ID.IsZero() {
		return MissingField("id")
	}
	r.Content = Patch{}
	for k, v := range r.raw {
		switch k {
		case "publishMode":
			if err := json.Unmarshal(v, &r.PublishMode); err != nil || !r.PublishMode.Valid() {
				return InvalidField("publishMode", "must be one of edit, review, ready, published")
			}
		case "minPublishDate":
			r.SetMinPublishDate = true
			if err := json.Unmarshal(v, &r.MinPublishDate); err != nil {
				return InvalidField("minPublishDate", "must be an RFC 3339 date or null")
			}
		case "lessonsIds":
			if err := json.Unmarshal(v, &r.LessonsIDs); err != nil {
				return InvalidField("lessonsIds", "must be a list of lesson IDs")
			}
			if r.LessonsIDs == nil {
				r.LessonsIDs = []ksid.ID{}
			}
		default:
			r.Content[k] = v
		}
	}
	if len(r.raw) == 0 {
		return BadRequest("empty patch")
	}
	return nil
}

// BeginEditRequest is a request to take the edit lock.
type BeginEditRequest struct {
	ID ksid.ID `path:"id"`
	// ForceEditFrom takes over the lock from this user. Zero forces
	// regardless of the holder.
	ForceEditFrom *ksid.ID `json:"forceEditFrom,omitempty"`
}

// Validate validates the begin edit request fields.
func (r *BeginEditRequest) Validate() error {
	if r.ID.IsZero() {
		return MissingField("id")
	}
	return nil
}

// EndEditRequest is a request to release the edit lock.
type EndEditRequest struct {
	ID ksid.ID `path:"id"`
}

// Validate validates the end edit request fields.
func (r *EndEditRequest) Validate() error {
	if r.ID.IsZero() {
		return MissingField("id")
	}
	return nil
}

// --- Lessons and Steps ---

// AddLessonRequest is a request to append a lesson to a project.
type AddLessonRequest struct {
	ProjectID       ksid.ID        `path:"id" json:"-"`
	Title           string         `json:"title"`
	Duration        int            `json:"duration"`
	Application     string         `json:"application"`
	ApplicationBlob map[string]any `json:"applicationBlob,omitempty"`
}

// Validate validates the add lesson request fields.
func (r *AddLessonRequest) Validate() error {
	if r.ProjectID.IsZero() {
		return MissingField("id")
	}
	if r.Title == "" {
		return MissingField("title")
	}
	if r.Application == "" {
		return MissingField("application")
	}
	if r.Duration < 0 {
		return InvalidField("duration", "must be non-negative")
	}
	return nil
}

// PatchLessonRequest is a partial update of a lesson, live or draft.
type PatchLessonRequest struct {
	ProjectID ksid.ID `path:"id"`
	LessonID  ksid.ID `path:"lessonID"`
	Fields    Patch
}

// UnmarshalJSON captures the whole body.
func (r *PatchLessonRequest) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &r.Fields)
}

// Validate validates the patch lesson request fields.
func (r *PatchLessonRequest) Validate() error {
	if r.ProjectID.IsZero() {
		return MissingField("id")
	}
	if r.LessonID.IsZero() {
		return MissingField("lessonID")
	}
	if len(r.Fields) == 0 {
		return BadRequest("empty patch")
	}
	return nil
}

// DeleteLessonRequest is a request to delete a lesson.
type DeleteLessonRequest struct {
	ProjectID ksid.ID `path:"id"`
	LessonID  ksid.ID `path:"lessonID"`
}

// Validate validates the delete lesson request fields.
func (r *DeleteLessonRequest) Validate() error {
	if r.ProjectID.IsZero() {
		return MissingField("id")
	}
	if r.LessonID.IsZero() {
		return MissingField("lessonID")
	}
	return nil
}

// AddStepRequest is a request to append a step to a lesson.
type AddStepRequest struct {
	ProjectID    ksid.ID       `path:"id" json:"-"`
	LessonID     ksid.ID       `path:"lessonID" json:"-"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Image        string        `json:"image,omitempty"`
	Instructions []Instruction `json:"instructions,omitempty"`
}

// Validate validates the add step request fields.
func (r *AddStepRequest) Validate() error {
	if r.ProjectID.IsZero() {
		return MissingField("id")
	}
	if r.LessonID.IsZero() {
		return MissingField("lessonID")
	}
	if r.Title == "" {
		return MissingField("title")
	}
	return nil
}

// PatchStepRequest is a partial update of a step, live or draft.
type PatchStepRequest struct {
	ProjectID ksid.ID `path:"id"`
	LessonID  ksid.ID `path:"lessonID"`
	StepID    ksid.ID `path:"stepID"`
	Fields    Patch
}

// UnmarshalJSON captures the whole body.
func (r *PatchStepRequest) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &r.Fields)
}

// Validate validates the patch step request fields.
func (r *PatchStepRequest) Validate() error {
	if r.ProjectID.IsZero() {
		return MissingField("id")
	}
	if r.LessonID.IsZero() {
		return MissingField("lessonID")
	}
	if r.StepID.IsZero() {
		return MissingField("stepID")
	}
	if len(r.Fields) == 0 {
		return BadRequest("empty patch")
	}
	return nil
}

// --- Drafts ---

// GetDraftRequest is a request for the draft or origin view of a project.
type GetDraftRequest struct {
	ID ksid.ID `path:"id"`
}

// Validate validates the get draft request fields.
func (r *GetDraftRequest) Validate() error {
	if r.ID.IsZero() {
		return MissingField("id")
	}
	return nil
}

// PatchDraftRequest gets or creates the draft of a project, then patches it.
type PatchDraftRequest struct {
	ID     ksid.ID `path:"id"`
	Fields Patch
}

// UnmarshalJSON captures the whole body.
func (r *PatchDraftRequest) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &r.Fields)
}

// Validate validates the patch draft request fields. An empty body only
// ensures the draft exists.
func (r *PatchDraftRequest) Validate() error {
	if r.ID.IsZero() {
		return MissingField("id")
	}
	return nil
}

// DiscardDraftRequest is a request to delete the draft of a project.
type DiscardDraftRequest struct {
	ID ksid.ID `path:"id"`
}

// Validate validates the discard draft request fields.
func (r *DiscardDraftRequest) Validate() error {
	if r.ID.IsZero() {
		return MissingField("id")
	}
	return nil
}

// ChangeDraftModeRequest is a request to move the draft of a project to
// another publish mode.
type ChangeDraftModeRequest struct {
	ID          ksid.ID     `path:"id" json:"-"`
	PublishMode PublishMode `json:"publishMode"`
}

// Validate validates the change draft mode request fields.
func (r *ChangeDraftModeRequest) Validate() error {
	if r.ID.IsZero() {
		return MissingField("id")
	}
	if r.PublishMode == "" {
		return MissingField("publishMode")
	}
	if !r.PublishMode.Valid() {
		return InvalidField("publishMode", "must be one of edit, review, ready, published")
	}
	return nil
}

// --- Review ---

// ListReviewRequest is a request for the projects waiting in review.
type ListReviewRequest struct {
	Limit int `query:"limit"`
}

// Validate validates the list review request fields.
func (r *ListReviewRequest) Validate() error {
	if r.Limit < 0 {
		return InvalidField("limit", "must be non-negative")
	}
	return nil
}

// --- Notifications ---

// ListNotificationsRequest is a request to list the caller's notifications.
type ListNotificationsRequest struct {
	Limit      int  `query:"limit"`
	Offset     int  `query:"offset"`
	UnreadOnly bool `query:"unread"`
}

// Validate validates the list notifications request fields.
func (r *ListNotificationsRequest) Validate() error {
	if r.Limit < 0 || r.Offset < 0 {
		return BadRequest("limit and offset must be non-negative")
	}
	return nil
}

// MarkNotificationReadRequest is a request to mark a notification as read.
type MarkNotificationReadRequest struct {
	ID ksid.ID `path:"id"`
}

// Validate validates the mark notification read request fields.
func (r *MarkNotificationReadRequest) Validate() error {
	if r.ID.IsZero() {
		return MissingField("id")
	}
	return nil
}

// MarkAllNotificationsReadRequest is a request to mark every notification as read.
type MarkAllNotificationsReadRequest struct{}

// Validate is a no-op.
func (r *MarkAllNotificationsReadRequest) Validate() error {
	return nil
}

// DeleteNotificationRequest is a request to delete a notification.
type DeleteNotificationRequest struct {
	ID ksid.ID `path:"id"`
}

// Validate validates the delete notification request fields.
func (r *DeleteNotificationRequest) Validate() error {
	if r.ID.IsZero() {
		return MissingField("id")
	}
	return nil
}

// GetNotificationPrefsRequest is a request for the caller's channel preferences.
type GetNotificationPrefsRequest struct{}

// Validate is a no-op.
func (r *GetNotificationPrefsRequest) Validate() error {
	return nil
}

// UpdateNotificationPrefsRequest replaces the caller's channel overrides.
type UpdateNotificationPrefsRequest struct {
	Overrides map[string]ChannelSetDTO `json:"overrides"`
}

// Validate validates the update notification prefs request fields.
func (r *UpdateNotificationPrefsRequest) Validate() error {
	return nil
}

// GetVAPIDKeyRequest is a request for the web push public key.
type GetVAPIDKeyRequest struct{}

// Validate is a no-op.
func (r *GetVAPIDKeyRequest) Validate() error {
	return nil
}

// PushSubscribeRequest registers a browser push subscription.
type PushSubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// Validate validates the push subscribe request fields.
func (r *PushSubscribeRequest) Validate() error {
	if r.Endpoint == "" {
		return MissingField("endpoint")
	}
	if r.P256dh == "" {
		return MissingField("p256dh")
	}
	if r.Auth == "" {
		return MissingField("auth")
	}
	return nil
}

// PushUnsubscribeRequest removes a browser push subscription.
type PushUnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// Validate validates the push unsubscribe request fields.
func (r *PushUnsubscribeRequest) Validate() error {
	if r.Endpoint == "" {
		return MissingField("endpoint")
	}
	return nil
}

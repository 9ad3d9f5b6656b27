// Defines shared data types for the API.

package dto

import (
	"encoding/json"

	"github.com/maruel/eduapi/internal/storage"
	"github.com/maruel/ksid"
)

// Time is a type alias for storage.Time, serialized as unix seconds.
type Time = storage.Time

// PublishMode is the publication state of a project or its draft.
type PublishMode string

// Publish modes.
const (
	PublishModeEdit      PublishMode = "edit"
	PublishModeReview    PublishMode = "review"
	PublishModeReady     PublishMode = "ready"
	PublishModePublished PublishMode = "published"
)

// Valid reports whether m is a known mode.
func (m PublishMode) Valid() bool {
	switch m {
	case PublishModeEdit, PublishModeReview, PublishModeReady, PublishModePublished:
		return true
	default:
		return false
	}
}

// --- Content Types ---

// ProjectDTO is the API representation of a project or of its draft.
type ProjectDTO struct {
	ID             ksid.ID     `json:"id" jsonschema:"description=Unique project identifier"`
	OwnerID        ksid.ID     `json:"ownerId" jsonschema:"description=Author of the project"`
	IsDraft        bool        `json:"isDraft,omitempty" jsonschema:"description=True for the draft of a published project"`
	DraftOriginID  ksid.ID     `json:"draftOriginId,omitempty" jsonschema:"description=Published project the draft belongs to"`
	PublishMode    PublishMode `json:"publishMode" jsonschema:"description=Publication state (edit/review/ready/published)"`
	PublishDate    *Time       `json:"publishDate,omitempty" jsonschema:"description=When the project was published"`
	MinPublishDate *Time       `json:"minPublishDate,omitempty" jsonschema:"description=Earliest automatic publication time"`
	CurrentEditor  ksid.ID     `json:"currentEditor,omitempty" jsonschema:"description=Holder of the edit lock"`

	Title       string      `json:"title"`
	Description string      `json:"description"`
	BannerImage string      `json:"bannerImage"`
	CardImage   string      `json:"cardImage"`
	Duration    int         `json:"duration"`
	Age         string      `json:"age"`
	Difficulty  string      `json:"difficulty"`
	License     string      `json:"license"`
	Language    string      `json:"language"`
	Tags        string      `json:"tags"`
	TeacherInfo TeacherInfo `json:"teacherInfo"`

	LessonsIDs []ksid.ID   `json:"lessonsIds"`
	Lessons    []LessonDTO `json:"lessons"`
	Created    Time        `json:"created"`
	Updated    Time        `json:"updated"`
}

// TeacherInfo groups the teacher-facing project fields.
type TeacherInfo struct {
	NGSS                []string      `json:"ngss"`
	CCSS                []string      `json:"ccss"`
	Prerequisites       string        `json:"prerequisites"`
	Tips                string        `json:"tips"`
	AdditionalResources string        `json:"additionalResources"`
	TeachersFiles       []TeacherFile `json:"teachersFiles"`
	SkillsAcquired      []string      `json:"skillsAcquired"`
	LearningObjectives  []string      `json:"learningObjectives"`
	Grades              []string      `json:"grades"`
	Subject             []string      `json:"subject"`
	Technology          []string      `json:"technology"`
	FourCS              FourCS        `json:"fourCS"`
}

// FourCS holds the creativity, critical thinking, communication and
// collaboration notes.
type FourCS struct {
	Creativity    string `json:"creativity"`
	Critical      string `json:"critical"`
	Communication string `json:"communication"`
	Collaboration string `json:"collaboration"`
}

// TeacherFile is a downloadable file for teachers.
type TeacherFile struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Time int64  `json:"time"`
}

// LessonDTO is the API representation of a lesson.
type LessonDTO struct {
	ID              ksid.ID        `json:"id"`
	ProjectID       ksid.ID        `json:"projectId"`
	Order           int            `json:"order"`
	Title           string         `json:"title"`
	Duration        int            `json:"duration"`
	Application     string         `json:"application"`
	ApplicationBlob map[string]any `json:"applicationBlob"`
	IsDraft         bool           `json:"isDraft,omitempty"`
	DraftOriginID   ksid.ID        `json:"draftOriginId,omitempty"`
	StepsIDs        []ksid.ID      `json:"stepsIds"`
	Steps           []StepDTO      `json:"steps"`
	Created         Time           `json:"created"`
	Updated         Time           `json:"updated"`
}

// StepDTO is the API representation of a step.
type StepDTO struct {
	ID              ksid.ID        `json:"id"`
	LessonID        ksid.ID        `json:"lessonId"`
	Order           int            `json:"order"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Image           string         `json:"image"`
	Instructions    []Instruction  `json:"instructions"`
	ApplicationBlob map[string]any `json:"applicationBlob,omitempty"`
	IsDraft         bool           `json:"isDraft,omitempty"`
	DraftOriginID   ksid.ID        `json:"draftOriginId,omitempty"`
	Created         Time           `json:"created"`
	Updated         Time           `json:"updated"`
}

// Instruction is one item of a step's instruction list.
type Instruction struct {
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
	Hint        string `json:"hint,omitempty"`
}

// DraftView pairs one side of a project with its draft.
//
// From the draft, Self is the draft and Diff holds the published values of
// the fields that changed. From the origin, Self is the published project
// and Diff holds the same published values.
type DraftView struct {
	ID      ksid.ID        `json:"id"`
	Self    *ProjectDTO    `json:"self"`
	Diff    map[string]any `json:"diff"`
	Summary *DraftSummary  `json:"summary,omitempty"`
	Created Time           `json:"created"`
	Updated Time           `json:"updated"`
}

// DraftSummary lists the changed fields of a draft, per entity.
type DraftSummary struct {
	ID         ksid.ID         `json:"id"`
	Title      string          `json:"title"`
	DiffFields []string        `json:"diffFields"`
	Lessons    []LessonSummary `json:"lessons"`
}

// LessonSummary lists the changed fields of a lesson and of its steps.
type LessonSummary struct {
	ID         ksid.ID       `json:"id"`
	Title      string        `json:"title"`
	DiffFields []string      `json:"diffFields"`
	Steps      []StepSummary `json:"steps"`
}

// StepSummary lists the changed fields of a step.
type StepSummary struct {
	ID         ksid.ID  `json:"id"`
	Title      string   `json:"title"`
	DiffFields []string `json:"diffFields"`
}

// --- Notification Types ---

// NotificationDTO is the API representation of a notification.
type NotificationDTO struct {
	ID        ksid.ID         `json:"id" jsonschema:"description=Unique notification identifier"`
	Type      string          `json:"type" jsonschema:"description=Notification type (project_publish_mode_change_by_target, review_summary)"`
	Title     string          `json:"title" jsonschema:"description=Project title"`
	Body      string          `json:"body,omitempty" jsonschema:"description=Human-readable description"`
	ProjectID ksid.ID         `json:"projectId,omitempty" jsonschema:"description=Related project"`
	ActorID   ksid.ID         `json:"actorId,omitempty" jsonschema:"description=User who triggered the notification"`
	ActorName string          `json:"actorName,omitempty" jsonschema:"description=Display name of actor"`
	Data      json.RawMessage `json:"data,omitempty" jsonschema:"description=Modes, dates and draft change summary"`
	Read      bool            `json:"read" jsonschema:"description=Whether the notification has been read"`
	Created   Time            `json:"created" jsonschema:"description=Creation timestamp"`
}

// ChannelSetDTO indicates which delivery channels are enabled.
type ChannelSetDTO struct {
	Email bool `json:"email" jsonschema:"description=Email delivery enabled"`
	Web   bool `json:"web" jsonschema:"description=Web push delivery enabled"`
}

// NotificationPrefsDTO holds user notification preferences.
type NotificationPrefsDTO struct {
	Defaults  map[string]ChannelSetDTO `json:"defaults" jsonschema:"description=Default channels per notification type"`
	Overrides map[string]ChannelSetDTO `json:"overrides" jsonschema:"description=User overrides per notification type"`
}

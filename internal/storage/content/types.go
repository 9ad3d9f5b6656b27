package content

import (
	"fmt"
	"slices"

	"github.com/maruel/eduapi/internal/storage"
	"github.com/maruel/ksid"
)

// Kind identifies the level of an entity in a project tree.
type Kind int

const (
	// KindProject is the root of a tree.
	KindProject Kind = iota + 1
	// KindLesson is a child of a project.
	KindLesson
	// KindStep is a child of a lesson.
	KindStep
)

func (k Kind) String() string {
	switch k {
	case KindProject:
		return "project"
	case KindLesson:
		return "lesson"
	case KindStep:
		return "step"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// PublishMode is the publication state of a project.
type PublishMode string

const (
	// ModeEdit is the initial mode; content fields are writable.
	ModeEdit PublishMode = "edit"
	// ModeReview waits for a reviewer.
	ModeReview PublishMode = "review"
	// ModeReady is approved and waits for its minimum publish date.
	ModeReady PublishMode = "ready"
	// ModePublished is live.
	ModePublished PublishMode = "published"
)

// Valid reports whether m is one of the four modes.
func (m PublishMode) Valid() bool {
	switch m {
	case ModeEdit, ModeReview, ModeReady, ModePublished:
		return true
	default:
		return false
	}
}

// Label returns the human readable name used in notifications.
func (m PublishMode) Label() string {
	switch m {
	case ModeEdit:
		return "In Edit"
	case ModeReview:
		return "In Review"
	case ModeReady:
		return "Ready For Publish"
	case ModePublished:
		return "Published"
	default:
		return string(m)
	}
}

// ParsePublishMode validates s.
func ParsePublishMode(s string) (PublishMode, error) {
	m := PublishMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", errInvalidPublishMode, s)
	}
	return m, nil
}

// TeacherFile is a downloadable file attached to a project for teachers.
type TeacherFile struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Time int64  `json:"time"`
}

// Instruction is one item of a step's instruction list.
type Instruction struct {
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
	Hint        string `json:"hint,omitempty"`
}

// Project is the root of a content tree, either live (origin) or a shadow draft.
type Project struct {
	ID             ksid.ID       `json:"id" jsonschema:"description=Unique project identifier"`
	OwnerID        ksid.ID       `json:"owner_id" jsonschema:"description=Author of the project"`
	IsDraft        bool          `json:"is_draft" jsonschema:"description=True for shadow drafts"`
	DraftOriginID  ksid.ID       `json:"draft_origin_id,omitempty" jsonschema:"description=Origin project of a shadow draft"`
	PublishMode    PublishMode   `json:"publish_mode" jsonschema:"description=Publication state (edit/review/ready/published)"`
	PublishDate    *storage.Time `json:"publish_date,omitempty" jsonschema:"description=Set when the project reached published"`
	MinPublishDate *storage.Time `json:"min_publish_date,omitempty" jsonschema:"description=Earliest automatic publication time"`
	CurrentEditor  ksid.ID       `json:"current_editor,omitempty" jsonschema:"description=Holder of the advisory edit lock"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	BannerImage string `json:"banner_image,omitempty"`
	CardImage   string `json:"card_image,omitempty"`
	Duration    int    `json:"duration" jsonschema:"description=Expected duration in minutes"`
	Age         string `json:"age,omitempty"`
	Difficulty  string `json:"difficulty,omitempty"`
	License     string `json:"license,omitempty"`
	Language    string `json:"language,omitempty"`
	Tags        string `json:"tags,omitempty" jsonschema:"description=Comma separated tags"`

	TeachersFiles              []TeacherFile `json:"teachers_files_list,omitempty"`
	NGSS                       []string      `json:"ngss,omitempty"`
	CCSS                       []string      `json:"ccss,omitempty"`
	Prerequisites              string        `json:"prerequisites,omitempty"`
	TeacherTips                string        `json:"teacher_tips,omitempty"`
	FourCSCreativity           string        `json:"four_cs_creativity,omitempty"`
	FourCSCritical             string        `json:"four_cs_critical,omitempty"`
	FourCSCommunication        string        `json:"four_cs_communication,omitempty"`
	FourCSCollaboration        string        `json:"four_cs_collaboration,omitempty"`
	TeacherAdditionalResources string        `json:"teacher_additional_resources,omitempty"`
	SkillsAcquired             []string      `json:"skills_acquired,omitempty"`
	LearningObjectives         []string      `json:"learning_objectives,omitempty"`
	GradesRange                []string      `json:"grades_range,omitempty"`
	Subject                    []string      `json:"subject,omitempty"`
	Technology                 []string      `json:"technology,omitempty"`

	Created storage.Time `json:"created"`
	Updated storage.Time `json:"updated"`
}

// Clone returns a deep copy.
func (p *Project) Clone() *Project {
	c := *p
	c.PublishDate = cloneTime(p.PublishDate)
	c.MinPublishDate = cloneTime(p.MinPublishDate)
	c.TeachersFiles = slices.Clone(p.TeachersFiles)
	c.NGSS = slices.Clone(p.NGSS)
	c.CCSS = slices.Clone(p.CCSS)
	c.SkillsAcquired = slices.Clone(p.SkillsAcquired)
	c.LearningObjectives = slices.Clone(p.LearningObjectives)
	c.GradesRange = slices.Clone(p.GradesRange)
	c.Subject = slices.Clone(p.Subject)
	c.Technology = slices.Clone(p.Technology)
	return &c
}

// GetID returns the project's ID.
func (p *Project) GetID() ksid.ID {
	return p.ID
}

// Validate checks required fields and draft linkage.
func (p *Project) Validate() error {
	if p.ID.IsZero() {
		return errIDRequired
	}
	if p.OwnerID.IsZero() {
		return errOwnerRequired
	}
	if p.Title == "" {
		return errTitleRequired
	}
	if len(p.Title) > maxTitleLen {
		return errTitleTooLong
	}
	if !p.PublishMode.Valid() {
		return fmt.Errorf("%w: %q", errInvalidPublishMode, p.PublishMode)
	}
	if p.Duration < 0 {
		return errNegativeDuration
	}
	return validateDraftLink(p.IsDraft, p.DraftOriginID)
}

// Lesson belongs to a project and holds an ordered list of steps.
type Lesson struct {
	ID              ksid.ID        `json:"id" jsonschema:"description=Unique lesson identifier"`
	ProjectID       ksid.ID        `json:"project_id" jsonschema:"description=Parent project"`
	Order           int            `json:"order" jsonschema:"description=Position in the project"`
	Title           string         `json:"title"`
	Duration        int            `json:"duration" jsonschema:"description=Expected duration in minutes"`
	Application     string         `json:"application" jsonschema:"description=Application the lesson takes place in"`
	ApplicationBlob map[string]any `json:"application_blob,omitempty" jsonschema:"description=Application specific data"`
	IsDraft         bool           `json:"is_draft"`
	DraftOriginID   ksid.ID        `json:"draft_origin_id,omitempty"`
	Created         storage.Time   `json:"created"`
	Updated         storage.Time   `json:"updated"`
}

// Clone returns a deep copy.
func (l *Lesson) Clone() *Lesson {
	c := *l
	c.ApplicationBlob = cloneBlob(l.ApplicationBlob)
	return &c
}

// GetID returns the lesson's ID.
func (l *Lesson) GetID() ksid.ID {
	return l.ID
}

// Validate checks required fields and draft linkage.
func (l *Lesson) Validate() error {
	if l.ID.IsZero() {
		return errIDRequired
	}
	if l.ProjectID.IsZero() {
		return errParentRequired
	}
	if l.Title == "" {
		return errTitleRequired
	}
	if len(l.Title) > maxTitleLen {
		return errTitleTooLong
	}
	if l.Application == "" {
		return errApplicationRequired
	}
	if l.Duration < 0 {
		return errNegativeDuration
	}
	return validateDraftLink(l.IsDraft, l.DraftOriginID)
}

// Step is a single lesson step.
type Step struct {
	ID               ksid.ID        `json:"id" jsonschema:"description=Unique step identifier"`
	LessonID         ksid.ID        `json:"lesson_id" jsonschema:"description=Parent lesson"`
	Order            int            `json:"order" jsonschema:"description=Position in the lesson"`
	Title            string         `json:"title"`
	Description      string         `json:"description,omitempty"`
	Image            string         `json:"image,omitempty"`
	InstructionsList []Instruction  `json:"instructions_list,omitempty"`
	ApplicationBlob  map[string]any `json:"application_blob,omitempty"`
	IsDraft          bool           `json:"is_draft"`
	DraftOriginID    ksid.ID        `json:"draft_origin_id,omitempty"`
	Created          storage.Time   `json:"created"`
	Updated          storage.Time   `json:"updated"`
}

// Clone returns a deep copy.
func (s *Step) Clone() *Step {
	c := *s
	c.InstructionsList = slices.Clone(s.InstructionsList)
	c.ApplicationBlob = cloneBlob(s.ApplicationBlob)
	return &c
}

// GetID returns the step's ID.
func (s *Step) GetID() ksid.ID {
	return s.ID
}

// Validate checks required fields and draft linkage.
func (s *Step) Validate() error {
	if s.ID.IsZero() {
		return errIDRequired
	}
	if s.LessonID.IsZero() {
		return errParentRequired
	}
	if s.Title == "" {
		return errTitleRequired
	}
	if len(s.Title) > maxTitleLen {
		return errTitleTooLong
	}
	return validateDraftLink(s.IsDraft, s.DraftOriginID)
}

const maxTitleLen = 120

func validateDraftLink(isDraft bool, origin ksid.ID) error {
	if isDraft == origin.IsZero() {
		return errDraftLink
	}
	return nil
}

func cloneTime(t *storage.Time) *storage.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// cloneBlob deep copies a decoded JSON object.
func cloneBlob(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = cloneJSONValue(v)
	}
	return c
}

func cloneJSONValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneBlob(x)
	case []any:
		c := make([]any, len(x))
		for i, e := range x {
			c[i] = cloneJSONValue(e)
		}
		return c
	default:
		return v
	}
}

// Validates that a project tree can leave edit mode.

package publish

import (
	"github.com/maruel/eduapi/internal/storage/content"
)

// Readiness error messages.
const (
	msgNoLessons        = "Add at least 1 lesson"
	msgFieldRequired    = "This field is required before publishing"
	msgStepsRequired    = "Lesson must have steps before publishing"
	readinessNonField   = "non_field"
	readinessLessonsKey = "lessons"
)

// ReadinessError lists why a project cannot be submitted.
//
// Lessons maps "non_field" to project-wide messages, or a lesson ID to a map
// of API key to messages.
type ReadinessError struct {
	Lessons map[string]any
}

func (e *ReadinessError) Error() string {
	return "project is not ready to be published"
}

// Details returns the error map as sent to API clients.
func (e *ReadinessError) Details() map[string]any {
	return map[string]any{readinessLessonsKey: e.Lessons}
}

// CheckReadiness verifies that every lesson is complete: at least one lesson,
// a positive duration, the blob key its application requires and steps
// unless the application is stepless.
func CheckReadiness(t *content.Tree, apps *content.Apps) error {
	if len(t.Lessons) == 0 {
		return &ReadinessError{Lessons: map[string]any{readinessNonField: []string{msgNoLessons}}}
	}
	errs := map[string]any{}
	for _, lt := range t.Lessons {
		if le := checkLesson(lt, apps); len(le) != 0 {
			errs[lt.Lesson.ID.String()] = le
		}
	}
	if len(errs) != 0 {
		return &ReadinessError{Lessons: errs}
	}
	return nil
}

func checkLesson(lt *content.LessonTree, apps *content.Apps) map[string][]string {
	l := lt.Lesson
	out := map[string][]string{}
	if l.Duration <= 0 {
		out["duration"] = []string{msgFieldRequired}
	}
	if app, ok := apps.Get(l.Application); ok && app.RequiredBlobKey != "" && isEmpty(l.ApplicationBlob[app.RequiredBlobKey]) {
		out["applicationBlob"] = []string{app.RequiredBlobMessage}
	}
	if !apps.IsStepless(l.Application) && len(lt.Steps) == 0 {
		out["stepsIds"] = []string{msgStepsRequired}
	}
	return out
}

func isEmpty(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	default:
		return false
	}
}

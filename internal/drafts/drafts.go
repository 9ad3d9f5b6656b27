// Package drafts maintains shadow copies of published projects.
//
// A shadow (draft) is a parallel tree of rows with IsDraft set, each pointing
// back to its origin entity. Edits to a published project accumulate on the
// shadow, are compared to the origin by the diff functions and are copied
// back by Apply.
package drafts

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/maruel/eduapi/internal/jsonldb"
	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/ksid"
)

// Store manages shadow trees on top of the content store.
type Store struct {
	content *content.Store
}

// New returns a draft store backed by cs.
func New(cs *content.Store) *Store {
	return &Store{content: cs}
}

// Content returns the underlying content store.
func (s *Store) Content() *content.Store {
	return s.content
}

// Get returns the shadow tree of an origin project, or ErrNotFound.
func (s *Store) Get(originID ksid.ID) (*content.Tree, error) {
	shadow, err := s.content.DraftOf(originID)
	if err != nil {
		return nil, err
	}
	return s.content.Tree(shadow.ID)
}

// GetOrCreate returns the shadow tree of a published origin project, creating
// it when absent. created reports whether this call made it.
//
// Creation copies the whole tree in one transaction. When two callers race,
// the unique index on DraftOriginID fails the second commit and that caller
// returns the winner's shadow.
func (s *Store) GetOrCreate(originID ksid.ID) (t *content.Tree, created bool, err error) {
	if t, err := s.Get(originID); err == nil {
		return t, false, nil
	}
	var shadowID ksid.ID
	err = s.update(func(tx *content.Tx) error {
		shadow, c, err := ensureProject(tx, originID)
		if err != nil {
			return err
		}
		shadowID, created = shadow.ID, c
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	t, err = s.content.Tree(shadowID)
	return t, created, err
}

// GetOrCreateLesson returns the shadow of an origin lesson with its steps.
//
// A lesson added to the origin after the draft was made gets its shadow
// under the existing draft project. Without a draft project, the whole tree
// is created.
func (s *Store) GetOrCreateLesson(originLessonID ksid.ID) (lt *content.LessonTree, created bool, err error) {
	if l, err := s.content.LessonDraftOf(originLessonID); err == nil {
		lt, err := s.content.LessonTree(l.ID)
		return lt, false, err
	}
	var shadowID ksid.ID
	err = s.update(func(tx *content.Tx) error {
		l, c, err := ensureLesson(tx, originLessonID)
		if err != nil {
			return err
		}
		shadowID, created = l.ID, c
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	lt, err = s.content.LessonTree(shadowID)
	return lt, created, err
}

// Discard deletes the shadow tree of an origin project. It is a no-op when
// there is none.
func (s *Store) Discard(originID ksid.ID) error {
	if !s.content.HasDraft(originID) {
		return nil
	}
	return s.content.Update(func(tx *content.Tx) error {
		if shadow := tx.DraftOf(originID); shadow != nil {
			tx.DeleteTree(shadow.ID)
		}
		return nil
	})
}

// Update writes patch on the shadow project, creating the draft on first
// write. Data fields are only writable while the draft is in edit mode;
// currentEditor is accepted in any mode.
func (s *Store) Update(originID ksid.ID, patch map[string]json.RawMessage) (*content.Project, error) {
	var out *content.Project
	err := s.update(func(tx *content.Tx) error {
		shadow, _, err := ensureProject(tx, originID)
		if err != nil {
			return err
		}
		data := maps.Clone(patch)
		if raw, ok := data[metaCurrentEditor]; ok {
			if err := json.Unmarshal(raw, &shadow.CurrentEditor); err != nil {
				return fmt.Errorf("%s: %w", metaCurrentEditor, err)
			}
			delete(data, metaCurrentEditor)
		}
		if len(data) != 0 {
			if err := checkDraftWritable(shadow); err != nil {
				return err
			}
			if err := content.ProjectSchema.Patch(shadow, data); err != nil {
				return err
			}
		}
		out, err = tx.SaveProject(shadow)
		return err
	})
	return out, err
}

// UpdateLesson writes patch on the shadow of an origin lesson.
func (s *Store) UpdateLesson(originLessonID ksid.ID, patch map[string]json.RawMessage) (*content.Lesson, error) {
	var out *content.Lesson
	err := s.update(func(tx *content.Tx) error {
		l, _, err := ensureLesson(tx, originLessonID)
		if err != nil {
			return err
		}
		p, err := tx.Project(l.ProjectID)
		if err != nil {
			return err
		}
		if err := checkDraftWritable(p); err != nil {
			return err
		}
		if err := content.LessonSchema.Patch(l, patch); err != nil {
			return err
		}
		out, err = tx.SaveLesson(l)
		return err
	})
	return out, err
}

// UpdateStep writes patch on the shadow of an origin step.
func (s *Store) UpdateStep(originStepID ksid.ID, patch map[string]json.RawMessage) (*content.Step, error) {
	var out *content.Step
	err := s.update(func(tx *content.Tx) error {
		st, err := ensureStep(tx, originStepID)
		if err != nil {
			return err
		}
		l, err := tx.Lesson(st.LessonID)
		if err != nil {
			return err
		}
		p, err := tx.Project(l.ProjectID)
		if err != nil {
			return err
		}
		if err := checkDraftWritable(p); err != nil {
			return err
		}
		if err := content.StepSchema.Patch(st, patch); err != nil {
			return err
		}
		out, err = tx.SaveStep(st)
		return err
	})
	return out, err
}

// metaCurrentEditor is the API key of the only meta field writable through a
// draft patch. publishMode goes through the publish state machine.
const metaCurrentEditor = "currentEditor"

// update runs fn in a transaction, retrying once when a concurrent caller
// created the same shadow first.
func (s *Store) update(fn func(tx *content.Tx) error) error {
	err := s.content.Update(fn)
	if errors.Is(err, jsonldb.ErrDuplicateKey) {
		err = s.content.Update(fn)
	}
	return err
}

func checkDraftWritable(shadow *content.Project) error {
	if shadow.PublishMode != content.ModeEdit {
		return fmt.Errorf("draft of project %s is %s: %w", shadow.DraftOriginID, shadow.PublishMode, content.ErrInvalidState)
	}
	return nil
}

// ensureProject returns the staged shadow of originID, creating the full
// shadow tree when absent.
func ensureProject(tx *content.Tx, originID ksid.ID) (*content.Project, bool, error) {
	if shadow := tx.DraftOf(originID); shadow != nil {
		return shadow, false, nil
	}
	origin, err := tx.Project(originID)
	if err != nil {
		return nil, false, err
	}
	if origin.IsDraft {
		return nil, false, fmt.Errorf("project %s is a draft: %w", originID, content.ErrInvalidState)
	}
	if origin.PublishMode != content.ModePublished {
		return nil, false, fmt.Errorf("it is not allowed to create a draft for a project in %s mode: %w", origin.PublishMode, content.ErrInvalidState)
	}
	shadow := origin.Clone()
	shadow.ID = ksid.NewID()
	shadow.IsDraft = true
	shadow.DraftOriginID = origin.ID
	shadow.PublishMode = content.ModeEdit
	shadow.PublishDate = nil
	shadow.MinPublishDate = nil
	shadow.CurrentEditor = 0
	shadow.Created = tx.Now
	shadow.Updated = tx.Now
	if err := tx.PutProject(shadow); err != nil {
		return nil, false, err
	}
	for _, l := range tx.LessonsOf(originID) {
		if _, err := copyLesson(tx, shadow.ID, l); err != nil {
			return nil, false, err
		}
	}
	return shadow, true, nil
}

// ensureLesson returns the staged shadow of an origin lesson, creating it
// (and the draft project if needed).
func ensureLesson(tx *content.Tx, originLessonID ksid.ID) (*content.Lesson, bool, error) {
	if l := tx.LessonDraftOf(originLessonID); l != nil {
		return l, false, nil
	}
	origin, err := tx.Lesson(originLessonID)
	if err != nil {
		return nil, false, err
	}
	if origin.IsDraft {
		return nil, false, fmt.Errorf("lesson %s is a draft: %w", originLessonID, content.ErrInvalidState)
	}
	shadowProject, created, err := ensureProject(tx, origin.ProjectID)
	if err != nil {
		return nil, false, err
	}
	if created {
		// The full tree copy includes this lesson.
		return tx.LessonDraftOf(originLessonID), true, nil
	}
	l, err := copyLesson(tx, shadowProject.ID, origin)
	return l, true, err
}

// ensureStep returns the staged shadow of an origin step, creating it (and
// its ancestors if needed).
func ensureStep(tx *content.Tx, originStepID ksid.ID) (*content.Step, error) {
	if st := tx.StepDraftOf(originStepID); st != nil {
		return st, nil
	}
	origin, err := tx.Step(originStepID)
	if err != nil {
		return nil, err
	}
	if origin.IsDraft {
		return nil, fmt.Errorf("step %s is a draft: %w", originStepID, content.ErrInvalidState)
	}
	l, created, err := ensureLesson(tx, origin.LessonID)
	if err != nil {
		return nil, err
	}
	if created {
		return tx.StepDraftOf(originStepID), nil
	}
	return copyStep(tx, l.ID, origin)
}

func copyLesson(tx *content.Tx, shadowProjectID ksid.ID, origin *content.Lesson) (*content.Lesson, error) {
	l := origin.Clone()
	l.ID = ksid.NewID()
	l.ProjectID = shadowProjectID
	l.IsDraft = true
	l.DraftOriginID = origin.ID
	l.Created = tx.Now
	l.Updated = tx.Now
	if err := tx.PutLesson(l); err != nil {
		return nil, err
	}
	for _, st := range tx.StepsOf(origin.ID) {
		if _, err := copyStep(tx, l.ID, st); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func copyStep(tx *content.Tx, shadowLessonID ksid.ID, origin *content.Step) (*content.Step, error) {
	st := origin.Clone()
	st.ID = ksid.NewID()
	st.LessonID = shadowLessonID
	st.IsDraft = true
	st.DraftOriginID = origin.ID
	st.Created = tx.Now
	st.Updated = tx.Now
	if err := tx.PutStep(st); err != nil {
		return nil, err
	}
	return st, nil
}

// Persists project trees and exposes transactional access to them.

package content

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/maruel/eduapi/internal/jsonldb"
	"github.com/maruel/eduapi/internal/storage"
	"github.com/maruel/ksid"
)

// Store holds the projects, lessons and steps tables.
//
// Origins and shadow drafts live in the same tables and are told apart by
// IsDraft. A unique index on DraftOriginID guarantees at most one shadow per
// origin entity.
type Store struct {
	db   *jsonldb.DB
	apps *Apps

	projects *jsonldb.Table[*Project]
	lessons  *jsonldb.Table[*Lesson]
	steps    *jsonldb.Table[*Step]

	projectDrafts    *jsonldb.UniqueIndex[ksid.ID, *Project]
	lessonDrafts     *jsonldb.UniqueIndex[ksid.ID, *Lesson]
	stepDrafts       *jsonldb.UniqueIndex[ksid.ID, *Step]
	projectsByMode   *jsonldb.Index[PublishMode, *Project]
	lessonsByProject *jsonldb.Index[ksid.ID, *Lesson]
	stepsByLesson    *jsonldb.Index[ksid.ID, *Step]
}

// OpenStore loads the content tables from db.
func OpenStore(db *jsonldb.DB, apps *Apps) (*Store, error) {
	projects, err := jsonldb.NewTable[*Project](db.Path("projects.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	lessons, err := jsonldb.NewTable[*Lesson](db.Path("lessons.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to load lessons: %w", err)
	}
	steps, err := jsonldb.NewTable[*Step](db.Path("steps.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}
	return &Store{
		db:               db,
		apps:             apps,
		projects:         projects,
		lessons:          lessons,
		steps:            steps,
		projectDrafts:    jsonldb.NewUniqueIndex(projects, func(p *Project) ksid.ID { return p.DraftOriginID }),
		lessonDrafts:     jsonldb.NewUniqueIndex(lessons, func(l *Lesson) ksid.ID { return l.DraftOriginID }),
		stepDrafts:       jsonldb.NewUniqueIndex(steps, func(s *Step) ksid.ID { return s.DraftOriginID }),
		projectsByMode:   jsonldb.NewIndex(projects, func(p *Project) PublishMode { return p.PublishMode }),
		lessonsByProject: jsonldb.NewIndex(lessons, func(l *Lesson) ksid.ID { return l.ProjectID }),
		stepsByLesson:    jsonldb.NewIndex(steps, func(s *Step) ksid.ID { return s.LessonID }),
	}, nil
}

// Apps returns the application catalogue.
func (s *Store) Apps() *Apps {
	return s.apps
}

// GetProject returns the project or ErrNotFound.
func (s *Store) GetProject(id ksid.ID) (*Project, error) {
	if p := s.projects.Get(id); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
}

// GetLesson returns the lesson or ErrNotFound.
func (s *Store) GetLesson(id ksid.ID) (*Lesson, error) {
	if l := s.lessons.Get(id); l != nil {
		return l, nil
	}
	return nil, fmt.Errorf("lesson %s: %w", id, ErrNotFound)
}

// GetStep returns the step or ErrNotFound.
func (s *Store) GetStep(id ksid.ID) (*Step, error) {
	if st := s.steps.Get(id); st != nil {
		return st, nil
	}
	return nil, fmt.Errorf("step %s: %w", id, ErrNotFound)
}

// Tree returns the project with its lessons and steps.
func (s *Store) Tree(projectID ksid.ID) (*Tree, error) {
	p, err := s.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	t := &Tree{Project: p}
	lessons := slices.Collect(s.lessonsByProject.Iter(projectID))
	sortLessons(lessons)
	for _, l := range lessons {
		t.Lessons = append(t.Lessons, s.lessonTree(l))
	}
	return t, nil
}

// LessonTree returns the lesson with its steps.
func (s *Store) LessonTree(lessonID ksid.ID) (*LessonTree, error) {
	l, err := s.GetLesson(lessonID)
	if err != nil {
		return nil, err
	}
	return s.lessonTree(l), nil
}

func (s *Store) lessonTree(l *Lesson) *LessonTree {
	steps := slices.Collect(s.stepsByLesson.Iter(l.ID))
	sortSteps(steps)
	return &LessonTree{Lesson: l, Steps: steps}
}

// DraftOf returns the shadow of an origin project or ErrNotFound.
func (s *Store) DraftOf(originID ksid.ID) (*Project, error) {
	if p := s.projectDrafts.Get(originID); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("draft of project %s: %w", originID, ErrNotFound)
}

// HasDraft reports whether the origin project has a shadow.
func (s *Store) HasDraft(originID ksid.ID) bool {
	_, ok := s.projectDrafts.Lookup(originID)
	return ok
}

// LessonDraftOf returns the shadow of an origin lesson or ErrNotFound.
func (s *Store) LessonDraftOf(originID ksid.ID) (*Lesson, error) {
	if l := s.lessonDrafts.Get(originID); l != nil {
		return l, nil
	}
	return nil, fmt.Errorf("draft of lesson %s: %w", originID, ErrNotFound)
}

// StepDraftOf returns the shadow of an origin step or ErrNotFound.
func (s *Store) StepDraftOf(originID ksid.ID) (*Step, error) {
	if st := s.stepDrafts.Get(originID); st != nil {
		return st, nil
	}
	return nil, fmt.Errorf("draft of step %s: %w", originID, ErrNotFound)
}

// DraftOrigin returns the origin of a shadow project.
func (s *Store) DraftOrigin(shadow *Project) (*Project, error) {
	if !shadow.IsDraft {
		return nil, fmt.Errorf("project %s is not a draft: %w", shadow.ID, ErrInvalidState)
	}
	return s.GetProject(shadow.DraftOriginID)
}

// ProjectsInMode returns the origin projects in the given mode.
func (s *Store) ProjectsInMode(mode PublishMode) []*Project {
	var out []*Project
	for p := range s.projectsByMode.Iter(mode) {
		if !p.IsDraft {
			out = append(out, p)
		}
	}
	return out
}

// DraftsInMode returns the shadow projects in the given mode.
func (s *Store) DraftsInMode(mode PublishMode) []*Project {
	var out []*Project
	for p := range s.projectsByMode.Iter(mode) {
		if p.IsDraft {
			out = append(out, p)
		}
	}
	return out
}

// Update runs fn in a transaction over the three tables.
func (s *Store) Update(fn func(tx *Tx) error) error {
	return s.db.Update(func(t *jsonldb.Tx) error {
		tx := &Tx{
			s:        s,
			Now:      storage.Now(),
			Projects: jsonldb.Stage(t, s.projects),
			Lessons:  jsonldb.Stage(t, s.lessons),
			Steps:    jsonldb.Stage(t, s.steps),
			children: make(map[ksid.ID][]ksid.ID),
			drafts:   make(map[ksid.ID]ksid.ID),
		}
		return fn(tx)
	})
}

// CreateProject creates an origin project in edit mode.
func (s *Store) CreateProject(owner ksid.ID, title string) (*Project, error) {
	var p *Project
	err := s.Update(func(tx *Tx) error {
		p = &Project{
			ID:          ksid.NewID(),
			OwnerID:     owner,
			PublishMode: ModeEdit,
			Title:       title,
			Created:     tx.Now,
			Updated:     tx.Now,
		}
		return tx.PutProject(p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PatchProject applies an API patch to the content fields of an origin project.
func (s *Store) PatchProject(id, actor ksid.ID, patch map[string]json.RawMessage) (*Project, error) {
	var out *Project
	err := s.Update(func(tx *Tx) error {
		var err error
		out, err = tx.PatchProject(id, actor, patch)
		return err
	})
	return out, err
}

// PatchProject is Store.PatchProject within tx.
func (tx *Tx) PatchProject(id, actor ksid.ID, patch map[string]json.RawMessage) (*Project, error) {
	p, err := tx.Project(id)
	if err != nil {
		return nil, err
	}
	if err := checkWritable(p, actor); err != nil {
		return nil, err
	}
	if err := ProjectSchema.Patch(p, patch); err != nil {
		return nil, err
	}
	return tx.SaveProject(p)
}

// NewLesson holds the fields of a lesson to create.
type NewLesson struct {
	Title           string
	Duration        int
	Application     string
	ApplicationBlob map[string]any
}

// AddLesson appends a lesson to an origin project.
func (s *Store) AddLesson(projectID, actor ksid.ID, in NewLesson) (*Lesson, error) {
	if err := s.apps.validate(in.Application); err != nil {
		return nil, err
	}
	var l *Lesson
	err := s.Update(func(tx *Tx) error {
		p, err := tx.Project(projectID)
		if err != nil {
			return err
		}
		if err := checkWritable(p, actor); err != nil {
			return err
		}
		l = &Lesson{
			ID:              ksid.NewID(),
			ProjectID:       projectID,
			Order:           len(tx.LessonsOf(projectID)),
			Title:           in.Title,
			Duration:        in.Duration,
			Application:     in.Application,
			ApplicationBlob: cloneBlob(in.ApplicationBlob),
			Created:         tx.Now,
			Updated:         tx.Now,
		}
		if err := tx.PutLesson(l); err != nil {
			return err
		}
		_, err = tx.SaveProject(p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// PatchLesson applies an API patch to an origin lesson. Besides the
// draft-applicable fields it accepts application and applicationBlob.
func (s *Store) PatchLesson(lessonID, actor ksid.ID, patch map[string]json.RawMessage) (*Lesson, error) {
	var out *Lesson
	err := s.Update(func(tx *Tx) error {
		l, err := tx.Lesson(lessonID)
		if err != nil {
			return err
		}
		p, err := tx.Project(l.ProjectID)
		if err != nil {
			return err
		}
		if err := checkWritable(p, actor); err != nil {
			return err
		}
		rest := maps.Clone(patch)
		if raw, ok := rest["application"]; ok {
			if err := json.Unmarshal(raw, &l.Application); err != nil {
				return fmt.Errorf("application: %w", err)
			}
			if err := s.apps.validate(l.Application); err != nil {
				return err
			}
			delete(rest, "application")
		}
		if raw, ok := rest["applicationBlob"]; ok {
			l.ApplicationBlob = nil
			if err := json.Unmarshal(raw, &l.ApplicationBlob); err != nil {
				return fmt.Errorf("applicationBlob: %w", err)
			}
			delete(rest, "applicationBlob")
		}
		if err := LessonSchema.Patch(l, rest); err != nil {
			return err
		}
		out, err = tx.SaveLesson(l)
		return err
	})
	return out, err
}

// DeleteLesson removes an origin lesson and its steps, then renumbers the
// remaining lessons.
func (s *Store) DeleteLesson(lessonID, actor ksid.ID) error {
	return s.Update(func(tx *Tx) error {
		l, err := tx.Lesson(lessonID)
		if err != nil {
			return err
		}
		p, err := tx.Project(l.ProjectID)
		if err != nil {
			return err
		}
		if err := checkWritable(p, actor); err != nil {
			return err
		}
		tx.DeleteLesson(lessonID)
		for i, other := range tx.LessonsOf(p.ID) {
			if other.Order != i {
				other.Order = i
				if _, err := tx.SaveLesson(other); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// NewStep holds the fields of a step to create.
type NewStep struct {
	Title        string
	Description  string
	Image        string
	Instructions []Instruction
}

// AddStep appends a step to an origin lesson.
func (s *Store) AddStep(lessonID, actor ksid.ID, in NewStep) (*Step, error) {
	var st *Step
	err := s.Update(func(tx *Tx) error {
		l, err := tx.Lesson(lessonID)
		if err != nil {
			return err
		}
		p, err := tx.Project(l.ProjectID)
		if err != nil {
			return err
		}
		if err := checkWritable(p, actor); err != nil {
			return err
		}
		st = &Step{
			ID:               ksid.NewID(),
			LessonID:         lessonID,
			Order:            len(tx.StepsOf(lessonID)),
			Title:            in.Title,
			Description:      in.Description,
			Image:            in.Image,
			InstructionsList: slices.Clone(in.Instructions),
			Created:          tx.Now,
			Updated:          tx.Now,
		}
		return tx.PutStep(st)
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// PatchStep applies an API patch to an origin step.
func (s *Store) PatchStep(stepID, actor ksid.ID, patch map[string]json.RawMessage) (*Step, error) {
	var out *Step
	err := s.Update(func(tx *Tx) error {
		st, err := tx.Step(stepID)
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
		if err := checkWritable(p, actor); err != nil {
			return err
		}
		rest := maps.Clone(patch)
		if raw, ok := rest["applicationBlob"]; ok {
			st.ApplicationBlob = nil
			if err := json.Unmarshal(raw, &st.ApplicationBlob); err != nil {
				return fmt.Errorf("applicationBlob: %w", err)
			}
			delete(rest, "applicationBlob")
		}
		if err := StepSchema.Patch(st, rest); err != nil {
			return err
		}
		out, err = tx.SaveStep(st)
		return err
	})
	return out, err
}

// ReorderLessons rewrites the lesson order of a project. ids must list every
// lesson of the project exactly once.
func (s *Store) ReorderLessons(projectID, actor ksid.ID, ids []ksid.ID) ([]*Lesson, error) {
	var out []*Lesson
	err := s.Update(func(tx *Tx) error {
		var err error
		out, err = tx.ReorderLessons(projectID, actor, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReorderLessons is Store.ReorderLessons within tx.
func (tx *Tx) ReorderLessons(projectID, actor ksid.ID, ids []ksid.ID) ([]*Lesson, error) {
	p, err := tx.Project(projectID)
	if err != nil {
		return nil, err
	}
	if err := checkWritable(p, actor); err != nil {
		return nil, err
	}
	lessons := tx.LessonsOf(projectID)
	if !isPermutation(lessons, ids) {
		return nil, ErrInvalidOrder
	}
	out := make([]*Lesson, 0, len(ids))
	for i, id := range ids {
		l := lessons[slices.IndexFunc(lessons, func(l *Lesson) bool { return l.ID == id })]
		if l.Order == i {
			out = append(out, l)
			continue
		}
		l.Order = i
		saved, err := tx.SaveLesson(l)
		if err != nil {
			return nil, err
		}
		out = append(out, saved)
	}
	return out, nil
}

func isPermutation(lessons []*Lesson, ids []ksid.ID) bool {
	if len(lessons) != len(ids) {
		return false
	}
	seen := make(map[ksid.ID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
	}
	for _, l := range lessons {
		if _, ok := seen[l.ID]; !ok {
			return false
		}
	}
	return true
}

// checkWritable verifies that the content of an origin project can be
// changed by actor.
func checkWritable(p *Project, actor ksid.ID) error {
	if p.IsDraft {
		return fmt.Errorf("project %s is a draft: %w", p.ID, ErrInvalidState)
	}
	if p.PublishMode != ModeEdit {
		return fmt.Errorf("project %s is %s: %w", p.ID, p.PublishMode, ErrInvalidState)
	}
	if p.IsEditLocked(actor, nil) {
		return ErrEditLocked
	}
	return nil
}

// Tx is a transaction over the content tables.
//
// Secondary indexes only reflect committed rows, so Tx tracks the rows it
// appends to answer child and draft lookups consistently.
type Tx struct {
	s *Store
	// Now is the timestamp applied to rows written by this transaction.
	Now storage.Time

	Projects *jsonldb.TableTx[*Project]
	Lessons  *jsonldb.TableTx[*Lesson]
	Steps    *jsonldb.TableTx[*Step]

	children map[ksid.ID][]ksid.ID // parent -> children appended in this tx
	drafts   map[ksid.ID]ksid.ID   // origin -> shadow appended in this tx
}

// Apps returns the application catalogue.
func (tx *Tx) Apps() *Apps {
	return tx.s.apps
}

// Project returns a copy of the staged project.
func (tx *Tx) Project(id ksid.ID) (*Project, error) {
	if p := tx.Projects.Get(id); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
}

// Lesson returns a copy of the staged lesson.
func (tx *Tx) Lesson(id ksid.ID) (*Lesson, error) {
	if l := tx.Lessons.Get(id); l != nil {
		return l, nil
	}
	return nil, fmt.Errorf("lesson %s: %w", id, ErrNotFound)
}

// Step returns a copy of the staged step.
func (tx *Tx) Step(id ksid.ID) (*Step, error) {
	if st := tx.Steps.Get(id); st != nil {
		return st, nil
	}
	return nil, fmt.Errorf("step %s: %w", id, ErrNotFound)
}

// LessonsOf returns the staged lessons of a project in order.
func (tx *Tx) LessonsOf(projectID ksid.ID) []*Lesson {
	var out []*Lesson
	for _, id := range tx.childIDs(projectID, tx.s.lessonsByProject.IDs(projectID)) {
		if l := tx.Lessons.Get(id); l != nil && l.ProjectID == projectID {
			out = append(out, l)
		}
	}
	sortLessons(out)
	return out
}

// StepsOf returns the staged steps of a lesson in order.
func (tx *Tx) StepsOf(lessonID ksid.ID) []*Step {
	var out []*Step
	for _, id := range tx.childIDs(lessonID, tx.s.stepsByLesson.IDs(lessonID)) {
		if st := tx.Steps.Get(id); st != nil && st.LessonID == lessonID {
			out = append(out, st)
		}
	}
	sortSteps(out)
	return out
}

func (tx *Tx) childIDs(parent ksid.ID, committed []ksid.ID) []ksid.ID {
	added := tx.children[parent]
	if len(added) == 0 {
		return committed
	}
	return append(committed, added...)
}

// Tree returns the staged tree of a project.
func (tx *Tx) Tree(projectID ksid.ID) (*Tree, error) {
	p, err := tx.Project(projectID)
	if err != nil {
		return nil, err
	}
	t := &Tree{Project: p}
	for _, l := range tx.LessonsOf(projectID) {
		t.Lessons = append(t.Lessons, &LessonTree{Lesson: l, Steps: tx.StepsOf(l.ID)})
	}
	return t, nil
}

// DraftOf returns the staged shadow of an origin project, or nil.
func (tx *Tx) DraftOf(originID ksid.ID) *Project {
	id, ok := tx.lookupDraft(originID, tx.s.projectDrafts.Lookup)
	if !ok {
		return nil
	}
	return tx.Projects.Get(id)
}

// LessonDraftOf returns the staged shadow of an origin lesson, or nil.
func (tx *Tx) LessonDraftOf(originID ksid.ID) *Lesson {
	id, ok := tx.lookupDraft(originID, tx.s.lessonDrafts.Lookup)
	if !ok {
		return nil
	}
	return tx.Lessons.Get(id)
}

// StepDraftOf returns the staged shadow of an origin step, or nil.
func (tx *Tx) StepDraftOf(originID ksid.ID) *Step {
	id, ok := tx.lookupDraft(originID, tx.s.stepDrafts.Lookup)
	if !ok {
		return nil
	}
	return tx.Steps.Get(id)
}

func (tx *Tx) lookupDraft(originID ksid.ID, committed func(ksid.ID) (ksid.ID, bool)) (ksid.ID, bool) {
	if id, ok := tx.drafts[originID]; ok {
		return id, true
	}
	return committed(originID)
}

// PutProject appends a new project.
func (tx *Tx) PutProject(p *Project) error {
	if err := tx.Projects.Append(p); err != nil {
		return err
	}
	tx.track(0, p.DraftOriginID, p.ID)
	return nil
}

// PutLesson appends a new lesson.
func (tx *Tx) PutLesson(l *Lesson) error {
	if !l.IsDraft {
		if err := tx.s.apps.validate(l.Application); err != nil {
			return err
		}
	}
	if err := tx.Lessons.Append(l); err != nil {
		return err
	}
	tx.track(l.ProjectID, l.DraftOriginID, l.ID)
	return nil
}

// PutStep appends a new step.
func (tx *Tx) PutStep(st *Step) error {
	if err := tx.Steps.Append(st); err != nil {
		return err
	}
	tx.track(st.LessonID, st.DraftOriginID, st.ID)
	return nil
}

func (tx *Tx) track(parent, origin, id ksid.ID) {
	if !parent.IsZero() {
		tx.children[parent] = append(tx.children[parent], id)
	}
	if !origin.IsZero() {
		tx.drafts[origin] = id
	}
}

// SaveProject replaces the staged row with p and bumps Updated.
func (tx *Tx) SaveProject(p *Project) (*Project, error) {
	return tx.Projects.Modify(p.ID, func(row *Project) error {
		*row = *p.Clone()
		row.Updated = tx.Now
		return nil
	})
}

// SaveLesson replaces the staged row with l and bumps Updated.
func (tx *Tx) SaveLesson(l *Lesson) (*Lesson, error) {
	return tx.Lessons.Modify(l.ID, func(row *Lesson) error {
		*row = *l.Clone()
		row.Updated = tx.Now
		return nil
	})
}

// SaveStep replaces the staged row with st and bumps Updated.
func (tx *Tx) SaveStep(st *Step) (*Step, error) {
	return tx.Steps.Modify(st.ID, func(row *Step) error {
		*row = *st.Clone()
		row.Updated = tx.Now
		return nil
	})
}

// DeleteLesson removes a lesson and its steps.
func (tx *Tx) DeleteLesson(id ksid.ID) {
	for _, st := range tx.StepsOf(id) {
		tx.Steps.Delete(st.ID)
	}
	tx.Lessons.Delete(id)
}

// DeleteTree removes a project, its lessons and their steps.
func (tx *Tx) DeleteTree(projectID ksid.ID) {
	for _, l := range tx.LessonsOf(projectID) {
		tx.DeleteLesson(l.ID)
	}
	tx.Projects.Delete(projectID)
}

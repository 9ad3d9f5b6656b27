// Compares shadow trees with their origins.

package drafts

import (
	"fmt"

	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/ksid"
)

// Diff returns the origin's values of the draft-applicable fields that differ
// between origin and shadow, keyed by API key.
func Diff(origin, shadow content.Node) map[string]any {
	return content.DiffNode(origin, shadow)
}

// ShadowValues returns the same keys as Diff with the shadow's values, i.e.
// what Apply would write.
func ShadowValues(origin, shadow content.Node) map[string]any {
	return content.ShadowValuesNode(origin, shadow)
}

// DiffFields returns the storage names of the differing fields.
func DiffFields(origin, shadow content.Node) []string {
	return content.DiffFieldsNode(origin, shadow)
}

// Pair is an origin project and its shadow.
type Pair struct {
	Origin *content.Project
	Shadow *content.Project
}

// Diff returns the origin-side diff of the pair.
func (p *Pair) Diff() map[string]any {
	return content.ProjectSchema.Diff(p.Origin, p.Shadow)
}

// ShadowValues returns the shadow-side values of the differing fields.
func (p *Pair) ShadowValues() map[string]any {
	return content.ProjectSchema.ShadowValues(p.Origin, p.Shadow)
}

// OriginPair resolves the shadow of an origin project.
func (s *Store) OriginPair(originID ksid.ID) (*Pair, error) {
	origin, err := s.content.GetProject(originID)
	if err != nil {
		return nil, err
	}
	shadow, err := s.content.DraftOf(originID)
	if err != nil {
		return nil, err
	}
	return &Pair{Origin: origin, Shadow: shadow}, nil
}

// DraftPair resolves the origin of a shadow project.
func (s *Store) DraftPair(draftID ksid.ID) (*Pair, error) {
	shadow, err := s.content.GetProject(draftID)
	if err != nil {
		return nil, err
	}
	origin, err := s.content.DraftOrigin(shadow)
	if err != nil {
		return nil, err
	}
	return &Pair{Origin: origin, Shadow: shadow}, nil
}

// OriginDiff returns the project diff starting from the origin ID.
func (s *Store) OriginDiff(originID ksid.ID) (map[string]any, error) {
	p, err := s.OriginPair(originID)
	if err != nil {
		return nil, err
	}
	return p.Diff(), nil
}

// DraftDiff returns the project diff starting from the shadow ID.
func (s *Store) DraftDiff(draftID ksid.ID) (map[string]any, error) {
	p, err := s.DraftPair(draftID)
	if err != nil {
		return nil, err
	}
	return p.Diff(), nil
}

// Summary lists the changed fields of a shadow tree, per entity.
//
// Lessons and steps only appear when they have a shadow whose origin still
// exists. IDs are origin IDs and titles are the shadow's.
type Summary struct {
	ID         ksid.ID         `json:"id"`
	Title      string          `json:"title"`
	DiffFields []string        `json:"diffFields"`
	Lessons    []LessonSummary `json:"lessons"`
}

// LessonSummary is the Summary of one lesson.
type LessonSummary struct {
	ID         ksid.ID       `json:"id"`
	Title      string        `json:"title"`
	DiffFields []string      `json:"diffFields"`
	Steps      []StepSummary `json:"steps"`
}

// StepSummary is the Summary of one step.
type StepSummary struct {
	ID         ksid.ID  `json:"id"`
	Title      string   `json:"title"`
	DiffFields []string `json:"diffFields"`
}

// Empty reports whether nothing differs.
func (s *Summary) Empty() bool {
	if len(s.DiffFields) != 0 {
		return false
	}
	for _, l := range s.Lessons {
		if len(l.DiffFields) != 0 {
			return false
		}
		for _, st := range l.Steps {
			if len(st.DiffFields) != 0 {
				return false
			}
		}
	}
	return true
}

// Summary computes the change summary of an origin project's draft.
func (s *Store) Summary(originID ksid.ID) (*Summary, error) {
	origin, err := s.content.GetProject(originID)
	if err != nil {
		return nil, err
	}
	shadow, err := s.Get(originID)
	if err != nil {
		return nil, err
	}
	return summarize(origin, shadow, s.content.GetLesson, s.content.GetStep), nil
}

// SummaryTx is Summary over the staged state of tx.
func SummaryTx(tx *content.Tx, originID ksid.ID) (*Summary, error) {
	shadow := tx.DraftOf(originID)
	if shadow == nil {
		return nil, fmt.Errorf("draft of project %s: %w", originID, content.ErrNotFound)
	}
	origin, err := tx.Project(originID)
	if err != nil {
		return nil, err
	}
	st, err := tx.Tree(shadow.ID)
	if err != nil {
		return nil, err
	}
	return summarize(origin, st, tx.Lesson, tx.Step), nil
}

func summarize(origin *content.Project, shadow *content.Tree, lesson func(ksid.ID) (*content.Lesson, error), step func(ksid.ID) (*content.Step, error)) *Summary {
	out := &Summary{
		ID:         origin.ID,
		Title:      shadow.Project.Title,
		DiffFields: nonNil(content.ProjectSchema.DiffFields(origin, shadow.Project)),
		Lessons:    []LessonSummary{},
	}
	for _, sl := range shadow.Lessons {
		ol, err := lesson(sl.Lesson.DraftOriginID)
		if err != nil {
			// The origin lesson was deleted after the draft was made.
			continue
		}
		ls := LessonSummary{
			ID:         ol.ID,
			Title:      sl.Lesson.Title,
			DiffFields: nonNil(content.LessonSchema.DiffFields(ol, sl.Lesson)),
			Steps:      []StepSummary{},
		}
		for _, ss := range sl.Steps {
			orig, err := step(ss.DraftOriginID)
			if err != nil {
				continue
			}
			ls.Steps = append(ls.Steps, StepSummary{
				ID:         orig.ID,
				Title:      ss.Title,
				DiffFields: nonNil(content.StepSchema.DiffFields(orig, ss)),
			})
		}
		out.Lessons = append(out.Lessons, ls)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

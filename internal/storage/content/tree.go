package content

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/maruel/ksid"
)

// Tree is a project with its ordered lessons and their ordered steps.
type Tree struct {
	Project *Project
	Lessons []*LessonTree
}

// LessonTree is a lesson with its ordered steps.
type LessonTree struct {
	Lesson *Lesson
	Steps  []*Step
}

// Lesson returns the lesson subtree with the given ID, or nil.
func (t *Tree) Lesson(id ksid.ID) *LessonTree {
	for _, l := range t.Lessons {
		if l.Lesson.ID == id {
			return l
		}
	}
	return nil
}

// LessonIDs returns the lesson IDs in order.
func (t *Tree) LessonIDs() []ksid.ID {
	ids := make([]ksid.ID, len(t.Lessons))
	for i, l := range t.Lessons {
		ids[i] = l.Lesson.ID
	}
	return ids
}

// Root returns the tree as a Node.
func (t *Tree) Root() Node {
	return ProjectNode(t.Project, t.Lessons)
}

// StepIDs returns the step IDs in order.
func (l *LessonTree) StepIDs() []ksid.ID {
	ids := make([]ksid.ID, len(l.Steps))
	for i, s := range l.Steps {
		ids[i] = s.ID
	}
	return ids
}

// Node is a reference to one entity of a tree along with its children.
//
// Exactly one of the entity pointers is set, as selected by Kind.
type Node struct {
	kind     Kind
	project  *Project
	lesson   *Lesson
	step     *Step
	children []Node
}

// ProjectNode wraps p and its lessons.
func ProjectNode(p *Project, lessons []*LessonTree) Node {
	n := Node{kind: KindProject, project: p, children: make([]Node, len(lessons))}
	for i, l := range lessons {
		n.children[i] = LessonNode(l.Lesson, l.Steps)
	}
	return n
}

// LessonNode wraps l and its steps.
func LessonNode(l *Lesson, steps []*Step) Node {
	n := Node{kind: KindLesson, lesson: l, children: make([]Node, len(steps))}
	for i, s := range steps {
		n.children[i] = StepNode(s)
	}
	return n
}

// StepNode wraps s.
func StepNode(s *Step) Node {
	return Node{kind: KindStep, step: s}
}

// Kind returns the entity type.
func (n Node) Kind() Kind {
	return n.kind
}

// Project returns the wrapped project, or nil.
func (n Node) Project() *Project {
	return n.project
}

// Lesson returns the wrapped lesson, or nil.
func (n Node) Lesson() *Lesson {
	return n.lesson
}

// Step returns the wrapped step, or nil.
func (n Node) Step() *Step {
	return n.step
}

// Children returns lessons of a project, steps of a lesson and nothing for a
// step.
func (n Node) Children() []Node {
	return n.children
}

// ID returns the entity ID.
func (n Node) ID() ksid.ID {
	switch n.kind {
	case KindProject:
		return n.project.ID
	case KindLesson:
		return n.lesson.ID
	case KindStep:
		return n.step.ID
	default:
		panic(fmt.Sprintf("invalid node %s", n.kind))
	}
}

// OriginID returns the origin of a shadow entity, or zero for an origin.
func (n Node) OriginID() ksid.ID {
	switch n.kind {
	case KindProject:
		return n.project.DraftOriginID
	case KindLesson:
		return n.lesson.DraftOriginID
	case KindStep:
		return n.step.DraftOriginID
	default:
		panic(fmt.Sprintf("invalid node %s", n.kind))
	}
}

// Title returns the entity title.
func (n Node) Title() string {
	switch n.kind {
	case KindProject:
		return n.project.Title
	case KindLesson:
		return n.lesson.Title
	case KindStep:
		return n.step.Title
	default:
		panic(fmt.Sprintf("invalid node %s", n.kind))
	}
}

// DiffNode returns the schema diff between two nodes of the same kind.
func DiffNode(origin, shadow Node) map[string]any {
	mustSameKind(origin, shadow)
	switch origin.kind {
	case KindProject:
		return ProjectSchema.Diff(origin.project, shadow.project)
	case KindLesson:
		return LessonSchema.Diff(origin.lesson, shadow.lesson)
	case KindStep:
		return StepSchema.Diff(origin.step, shadow.step)
	default:
		panic(fmt.Sprintf("invalid node %s", origin.kind))
	}
}

// ShadowValuesNode is DiffNode with the shadow's values.
func ShadowValuesNode(origin, shadow Node) map[string]any {
	mustSameKind(origin, shadow)
	switch origin.kind {
	case KindProject:
		return ProjectSchema.ShadowValues(origin.project, shadow.project)
	case KindLesson:
		return LessonSchema.ShadowValues(origin.lesson, shadow.lesson)
	case KindStep:
		return StepSchema.ShadowValues(origin.step, shadow.step)
	default:
		panic(fmt.Sprintf("invalid node %s", origin.kind))
	}
}

// DiffFieldsNode returns the storage names of the fields that differ.
func DiffFieldsNode(origin, shadow Node) []string {
	mustSameKind(origin, shadow)
	switch origin.kind {
	case KindProject:
		return ProjectSchema.DiffFields(origin.project, shadow.project)
	case KindLesson:
		return LessonSchema.DiffFields(origin.lesson, shadow.lesson)
	case KindStep:
		return StepSchema.DiffFields(origin.step, shadow.step)
	default:
		panic(fmt.Sprintf("invalid node %s", origin.kind))
	}
}

// CopyNode copies the draft-applicable fields of src into dst and reports
// whether dst changed.
func CopyNode(dst, src Node) bool {
	mustSameKind(dst, src)
	switch dst.kind {
	case KindProject:
		return ProjectSchema.Copy(dst.project, src.project)
	case KindLesson:
		return LessonSchema.Copy(dst.lesson, src.lesson)
	case KindStep:
		return StepSchema.Copy(dst.step, src.step)
	default:
		panic(fmt.Sprintf("invalid node %s", dst.kind))
	}
}

func mustSameKind(a, b Node) {
	if a.kind != b.kind {
		panic(fmt.Sprintf("node kind mismatch: %s != %s", a.kind, b.kind))
	}
}

func sortLessons(lessons []*Lesson) {
	slices.SortFunc(lessons, func(a, b *Lesson) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func sortSteps(steps []*Step) {
	slices.SortFunc(steps, func(a, b *Step) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

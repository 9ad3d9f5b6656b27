// Copies shadow trees back onto their origins.

package drafts

import (
	"errors"
	"fmt"

	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/ksid"
)

// Apply copies the draft-applicable fields of every shadow entity onto its
// origin, then deletes the shadow tree. It runs in one transaction: on error
// nothing changes and the shadow stays intact.
//
// Returns the updated origin tree, or ErrNotFound when there is no shadow.
func (s *Store) Apply(originID ksid.ID) (*content.Tree, error) {
	var out *content.Tree
	err := s.content.Update(func(tx *content.Tx) error {
		var err error
		out, err = ApplyTx(tx, originID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyTx is Apply within an existing transaction.
func ApplyTx(tx *content.Tx, originID ksid.ID) (*content.Tree, error) {
	shadow := tx.DraftOf(originID)
	if shadow == nil {
		return nil, fmt.Errorf("draft of project %s: %w", originID, content.ErrNotFound)
	}
	st, err := tx.Tree(shadow.ID)
	if err != nil {
		return nil, err
	}
	if err := walk(st.Root(), func(n content.Node) error {
		return applyNode(tx, n)
	}); err != nil {
		return nil, err
	}
	tx.DeleteTree(shadow.ID)
	return tx.Tree(originID)
}

// applyNode copies one shadow entity onto its origin. Rows are only written
// when a field changed. Shadows whose origin was deleted are skipped.
func applyNode(tx *content.Tx, n content.Node) error {
	switch n.Kind() {
	case content.KindProject:
		o, err := tx.Project(n.OriginID())
		if err != nil {
			return err
		}
		if content.CopyNode(content.ProjectNode(o, nil), n) {
			_, err = tx.SaveProject(o)
		}
		return err
	case content.KindLesson:
		o, err := tx.Lesson(n.OriginID())
		if errors.Is(err, content.ErrNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		if content.CopyNode(content.LessonNode(o, nil), n) {
			_, err = tx.SaveLesson(o)
		}
		return err
	case content.KindStep:
		o, err := tx.Step(n.OriginID())
		if errors.Is(err, content.ErrNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		if content.CopyNode(content.StepNode(o), n) {
			_, err = tx.SaveStep(o)
		}
		return err
	default:
		panic(fmt.Sprintf("invalid node %s", n.Kind()))
	}
}

// walk calls fn on n and its descendants, parents first.
func walk(n content.Node, fn func(content.Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.Children() {
		if err := walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

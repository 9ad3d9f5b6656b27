package content

import (
	"fmt"

	"github.com/maruel/ksid"
)

// IsEditLocked reports whether another collaborator holds the edit lock.
//
// forceFrom, when set to the current holder or to zero, lets user take over
// the lock.
func (p *Project) IsEditLocked(user ksid.ID, forceFrom *ksid.ID) bool {
	if p.CurrentEditor.IsZero() || p.CurrentEditor == user {
		return false
	}
	if forceFrom == nil {
		return true
	}
	return *forceFrom != p.CurrentEditor && !forceFrom.IsZero()
}

// BeginEdit takes the edit lock on an origin project in edit mode.
func (s *Store) BeginEdit(projectID, user ksid.ID, forceFrom *ksid.ID) (*Project, error) {
	var out *Project
	err := s.Update(func(tx *Tx) error {
		p, err := tx.Project(projectID)
		if err != nil {
			return err
		}
		if p.PublishMode != ModeEdit {
			return fmt.Errorf("it is not allowed to edit lock the project when it is not in edit mode: %w", ErrInvalidState)
		}
		if p.IsEditLocked(user, forceFrom) {
			return ErrEditLocked
		}
		if p.CurrentEditor == user {
			out = p
			return nil
		}
		p.CurrentEditor = user
		out, err = tx.SaveProject(p)
		return err
	})
	return out, err
}

// EndEdit releases the edit lock if user holds it.
func (s *Store) EndEdit(projectID, user ksid.ID) error {
	return s.Update(func(tx *Tx) error {
		p, err := tx.Project(projectID)
		if err != nil {
			return err
		}
		if p.CurrentEditor != user {
			return nil
		}
		p.CurrentEditor = 0
		_, err = tx.SaveProject(p)
		return err
	})
}

// Evaluates what a user may do on a project.

package identity

import (
	"slices"

	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/ksid"
)

// Permissions computes capabilities from the users table.
//
// A draft project carries the owner of its origin, so the same predicates
// apply to origins and shadows.
type Permissions struct {
	users *UserService
}

// NewPermissions returns the capability predicates backed by users.
func NewPermissions(users *UserService) *Permissions {
	return &Permissions{users: users}
}

// IsEditor reports whether user may edit the project content: superusers, the
// owner and the owner's delegates and guardians.
func (p *Permissions) IsEditor(project *content.Project, user ksid.ID) bool {
	if user.IsZero() {
		return false
	}
	if user == project.OwnerID {
		return true
	}
	if u, err := p.users.Get(user); err == nil && u.Superuser {
		return true
	}
	owner, err := p.users.Get(project.OwnerID)
	if err != nil {
		return false
	}
	return slices.Contains(owner.Delegates, user) || slices.Contains(owner.Guardians, user)
}

// CanEdit reports whether user may edit the project now.
func (p *Permissions) CanEdit(project *content.Project, user ksid.ID) bool {
	return project.PublishMode == content.ModeEdit && p.IsEditor(project, user)
}

// CanPublish reports whether user may move the project forward from review
// or ready.
func (p *Permissions) CanPublish(project *content.Project, user ksid.ID) bool {
	if project.PublishMode != content.ModeReview && project.PublishMode != content.ModeReady {
		return false
	}
	u, err := p.users.Get(user)
	return err == nil && u.IsStaff()
}

// CanReedit reports whether user may send the project back to edit.
func (p *Permissions) CanReedit(project *content.Project, user ksid.ID) bool {
	return p.CanPublish(project, user)
}

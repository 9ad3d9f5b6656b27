// Checks project visibility and editor rights for handlers.

package handlers

import (
	"github.com/maruel/eduapi/internal/server/dto"
	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/eduapi/internal/storage/identity"
	"github.com/maruel/ksid"
)

// canView reports whether user may read p. Published projects are readable
// by every authenticated user; the rest only by editors and staff.
func canView(perms *identity.Permissions, p *content.Project, user *identity.User) bool {
	if p.PublishMode == content.ModePublished && !p.IsDraft {
		return true
	}
	return user.IsStaff() || perms.IsEditor(p, user.ID)
}

// canViewDraft reports whether user may read the draft of origin.
func canViewDraft(perms *identity.Permissions, origin *content.Project, user *identity.User) bool {
	return user.IsStaff() || perms.IsEditor(origin, user.ID)
}

func requireEditor(perms *identity.Permissions, p *content.Project, user *identity.User) error {
	if !perms.IsEditor(p, user.ID) {
		return dto.Forbidden("only the author and delegates may edit this project")
	}
	return nil
}

// originProject returns the origin project id, hiding drafts and projects
// user cannot see behind not found.
func originProject(svc *Services, id ksid.ID, user *identity.User) (*content.Project, error) {
	p, err := svc.Content.GetProject(id)
	if err != nil {
		return nil, ToAPIError(err)
	}
	if p.IsDraft || !canView(svc.Perms, p, user) {
		return nil, dto.NotFound("project")
	}
	return p, nil
}

// originLesson returns the origin lesson lessonID of project projectID.
func originLesson(svc *Services, projectID, lessonID ksid.ID) (*content.Lesson, error) {
	l, err := svc.Content.GetLesson(lessonID)
	if err != nil {
		return nil, ToAPIError(err)
	}
	if l.IsDraft || l.ProjectID != projectID {
		return nil, dto.NotFound("lesson")
	}
	return l, nil
}

// originStep returns the origin step stepID of lesson lessonID.
func originStep(svc *Services, lessonID, stepID ksid.ID) (*content.Step, error) {
	st, err := svc.Content.GetStep(stepID)
	if err != nil {
		return nil, ToAPIError(err)
	}
	if st.IsDraft || st.LessonID != lessonID {
		return nil, dto.NotFound("step")
	}
	return st, nil
}

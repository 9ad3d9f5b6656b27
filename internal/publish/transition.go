// Package publish implements the publication workflow of projects.
//
// A project moves through edit, review, ready and published. Resolve decides
// whether an actor may request a mode, CheckReadiness validates the content
// and Settle computes the resulting mode from the minimum publication date.
package publish

import (
	"errors"
	"fmt"

	"github.com/maruel/eduapi/internal/storage"
	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/ksid"
)

var (
	// ErrPermissionDenied is returned when the transition exists but the
	// actor lacks the capability for it.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrStructurallyForbidden is returned when no rule allows moving between
	// the two modes.
	ErrStructurallyForbidden = errors.New("transition is not allowed")
)

// Capabilities are the permission predicates the workflow relies on.
type Capabilities interface {
	IsEditor(p *content.Project, user ksid.ID) bool
	CanEdit(p *content.Project, user ksid.ID) bool
	CanPublish(p *content.Project, user ksid.ID) bool
	CanReedit(p *content.Project, user ksid.ID) bool
}

// Resolve checks a requested mode change and returns the mode to settle
// toward. A request for published is resolved to ready; Settle decides
// whether it goes further. Requesting the current mode returns it unchanged.
// From edit only published may be requested; ready is never a direct target
// there, and ready only goes back to edit.
func Resolve(p *content.Project, actor ksid.ID, target content.PublishMode, caps Capabilities) (content.PublishMode, error) {
	cur := p.PublishMode
	if target == cur {
		return cur, nil
	}
	switch target {
	case content.ModeEdit:
		if cur != content.ModeReview && cur != content.ModeReady {
			return "", forbidden(cur, target)
		}
		if !caps.CanReedit(p, actor) {
			return "", denied(cur, target)
		}
		return content.ModeEdit, nil
	case content.ModeReview:
		if cur != content.ModeEdit {
			return "", forbidden(cur, target)
		}
		if !caps.CanEdit(p, actor) {
			return "", denied(cur, target)
		}
		return content.ModeReview, nil
	case content.ModeReady, content.ModePublished:
		switch cur {
		case content.ModeEdit:
			if target != content.ModePublished {
				return "", forbidden(cur, target)
			}
			if !caps.CanEdit(p, actor) {
				return "", denied(cur, target)
			}
			// The actor must also be allowed to publish once the project
			// reaches review.
			sim := p.Clone()
			sim.PublishMode = content.ModeReview
			if !caps.CanPublish(sim, actor) {
				return "", denied(cur, target)
			}
		case content.ModeReview:
			if !caps.CanPublish(p, actor) {
				return "", denied(cur, target)
			}
		default:
			return "", forbidden(cur, target)
		}
		return content.ModeReady, nil
	default:
		return "", forbidden(cur, target)
	}
}

// Settle sets p to target and promotes ready to published once the minimum
// publication date has passed. Leaving edit releases the edit lock.
func Settle(p *content.Project, target content.PublishMode, now storage.Time) {
	old := p.PublishMode
	if target == content.ModeReady && (p.MinPublishDate == nil || !p.MinPublishDate.After(now)) {
		p.PublishMode = content.ModePublished
		p.PublishDate = &now
	} else {
		p.PublishMode = target
		p.PublishDate = nil
	}
	if old == content.ModeEdit && p.PublishMode != content.ModeEdit {
		p.CurrentEditor = 0
	}
}

func forbidden(from, to content.PublishMode) error {
	return fmt.Errorf("%w: from %s to %s", ErrStructurallyForbidden, from, to)
}

func denied(from, to content.PublishMode) error {
	return fmt.Errorf("%w: changing publish mode from %s to %s", ErrPermissionDenied, from, to)
}

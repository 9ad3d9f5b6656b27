// Handles draft API endpoints of published projects.

package handlers

import (
	"context"
	"log/slog"

	"github.com/maruel/eduapi/internal/server/dto"
	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/eduapi/internal/storage/identity"
	"github.com/maruel/ksid"
)

// DraftHandler handles draft requests.
type DraftHandler struct {
	Svc *Services
}

// GetDraft returns the draft-facing view: the draft tree and the published
// values of the fields it changed.
func (h *DraftHandler) GetDraft(ctx context.Context, user *identity.User, req *dto.GetDraftRequest) (*dto.DraftView, error) {
	if _, err := h.draftOrigin(req.ID, user, false); err != nil {
		return nil, err
	}
	return draftView(h.Svc, req.ID)
}

// GetOrigin returns the origin-facing view: the published tree and the
// published values of the fields its draft changed.
func (h *DraftHandler) GetOrigin(ctx context.Context, user *identity.User, req *dto.GetDraftRequest) (*dto.DraftView, error) {
	p, err := h.draftOrigin(req.ID, user, false)
	if err != nil {
		return nil, err
	}
	diff, err := h.Svc.Drafts.OriginDiff(p.ID)
	if err != nil {
		return nil, ToAPIError(err)
	}
	t, err := h.Svc.Content.Tree(p.ID)
	if err != nil {
		return nil, ToAPIError(err)
	}
	return &dto.DraftView{
		ID:      p.ID,
		Self:    treeToDTO(t),
		Diff:    diff,
		Created: p.Created,
		Updated: p.Updated,
	}, nil
}

// PatchDraft creates the draft of a published project if needed and writes
// the patch on it.
func (h *DraftHandler) PatchDraft(ctx context.Context, user *identity.User, req *dto.PatchDraftRequest) (*dto.DraftView, error) {
	p, err := h.draftOrigin(req.ID, user, true)
	if err != nil {
		return nil, err
	}
	_, created, err := h.Svc.Drafts.GetOrCreate(p.ID)
	if err != nil {
		return nil, ToAPIError(err)
	}
	if created {
		slog.InfoContext(ctx, "Draft created", "project", p.ID, "actor", user.ID)
	}
	if len(req.Fields) != 0 {
		if _, err := h.Svc.Drafts.Update(p.ID, req.Fields); err != nil {
			return nil, ToAPIError(err)
		}
	}
	return draftView(h.Svc, p.ID)
}

// DiscardDraft deletes the draft of a project.
func (h *DraftHandler) DiscardDraft(ctx context.Context, user *identity.User, req *dto.DiscardDraftRequest) (*dto.DiscardDraftResponse, error) {
	p, err := h.draftOrigin(req.ID, user, true)
	if err != nil {
		return nil, err
	}
	if err := h.Svc.Drafts.Discard(p.ID); err != nil {
		return nil, ToAPIError(err)
	}
	slog.InfoContext(ctx, "Draft discarded", "project", p.ID, "actor", user.ID)
	return &dto.OkResponse{Ok: true}, nil
}

// PatchLessonDraft writes a patch on the draft of a lesson.
func (h *DraftHandler) PatchLessonDraft(ctx context.Context, user *identity.User, req *dto.PatchLessonRequest) (*dto.LessonDTO, error) {
	p, err := h.draftOrigin(req.ProjectID, user, true)
	if err != nil {
		return nil, err
	}
	if _, err := originLesson(h.Svc, p.ID, req.LessonID); err != nil {
		return nil, err
	}
	if _, _, err := h.Svc.Drafts.GetOrCreateLesson(req.LessonID); err != nil {
		return nil, ToAPIError(err)
	}
	l, err := h.Svc.Drafts.UpdateLesson(req.LessonID, req.Fields)
	if err != nil {
		return nil, ToAPIError(err)
	}
	return lessonToDTO(l), nil
}

// PatchStepDraft writes a patch on the draft of a step.
func (h *DraftHandler) PatchStepDraft(ctx context.Context, user *identity.User, req *dto.PatchStepRequest) (*dto.StepDTO, error) {
	p, err := h.draftOrigin(req.ProjectID, user, true)
	if err != nil {
		return nil, err
	}
	if _, err := originLesson(h.Svc, p.ID, req.LessonID); err != nil {
		return nil, err
	}
	if _, err := originStep(h.Svc, req.LessonID, req.StepID); err != nil {
		return nil, err
	}
	st, err := h.Svc.Drafts.UpdateStep(req.StepID, req.Fields)
	if err != nil {
		return nil, ToAPIError(err)
	}
	return stepToDTO(st), nil
}

// ChangeDraftMode moves the draft to another publish mode. Reaching
// published applies the draft and the response holds no draft anymore.
func (h *DraftHandler) ChangeDraftMode(ctx context.Context, user *identity.User, req *dto.ChangeDraftModeRequest) (*dto.GetProjectResponse, error) {
	p, err := h.draftOrigin(req.ID, user, false)
	if err != nil {
		return nil, err
	}
	tr, err := h.Svc.Machine.ChangeDraftMode(ctx, p.ID, user.ID, content.PublishMode(req.PublishMode))
	if err != nil {
		return nil, ToAPIError(err)
	}
	if tr.Changed() {
		slog.InfoContext(ctx, "Draft mode changed", "project", p.ID, "from", tr.OldMode, "to", tr.NewMode, "applied", tr.Applied, "actor", user.ID)
	}
	t, err := h.Svc.Content.Tree(p.ID)
	if err != nil {
		return nil, ToAPIError(err)
	}
	resp := &dto.GetProjectResponse{ProjectDTO: *treeToDTO(t)}
	if !tr.Applied && h.Svc.Content.HasDraft(p.ID) {
		if resp.Draft, err = draftView(h.Svc, p.ID); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// draftOrigin returns the origin project id when user may read its draft,
// or edit it when write is set.
func (h *DraftHandler) draftOrigin(id ksid.ID, user *identity.User, write bool) (*content.Project, error) {
	p, err := originProject(h.Svc, id, user)
	if err != nil {
		return nil, err
	}
	if write {
		if err := requireEditor(h.Svc.Perms, p, user); err != nil {
			return nil, err
		}
	} else if !canViewDraft(h.Svc.Perms, p, user) {
		return nil, dto.NotFound("draft")
	}
	return p, nil
}

// draftView builds the draft-facing view of the draft of originID.
func draftView(svc *Services, originID ksid.ID) (*dto.DraftView, error) {
	t, err := svc.Drafts.Get(originID)
	if err != nil {
		return nil, ToAPIError(err)
	}
	diff, err := svc.Drafts.DraftDiff(t.Project.ID)
	if err != nil {
		return nil, ToAPIError(err)
	}
	sum, err := svc.Drafts.Summary(originID)
	if err != nil {
		return nil, ToAPIError(err)
	}
	return &dto.DraftView{
		ID:      t.Project.ID,
		Self:    treeToDTO(t),
		Diff:    diff,
		Summary: summaryToDTO(sum),
		Created: t.Project.Created,
		Updated: t.Project.Updated,
	}, nil
}

// Handles project, lesson and step API endpoints.

package handlers

import (
	"context"
	"log/slog"

	"github.com/maruel/eduapi/internal/publish"
	"github.com/maruel/eduapi/internal/server/dto"
	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/eduapi/internal/storage/identity"
)

// ProjectHandler handles project requests.
type ProjectHandler struct {
	Svc *Services
}

// CreateProject creates a project in edit mode owned by the caller.
func (h *ProjectHandler) CreateProject(ctx context.Context, user *identity.User, req *dto.CreateProjectRequest) (*dto.ProjectDTO, error) {
	p, err := h.Svc.Content.CreateProject(user.ID, req.Title)
	if err != nil {
		return nil, ToAPIError(err)
	}
	slog.InfoContext(ctx, "Project created", "project", p.ID, "owner", user.ID)
	return projectToDTO(p), nil
}

// GetProject returns a project tree, with its draft view when requested.
func (h *ProjectHandler) GetProject(ctx context.Context, user *identity.User, req *dto.GetProjectRequest) (*dto.GetProjectResponse, error) {
	p, err := originProject(h.Svc, req.ID, user)
	if err != nil {
		return nil, err
	}
	t, err := h.Svc.Content.Tree(p.ID)
	if err != nil {
		return nil, ToAPIError(err)
	}
	resp := &dto.GetProjectResponse{ProjectDTO: *treeToDTO(t)}
	if req.Embed == "draft" && h.Svc.Content.HasDraft(p.ID) && canViewDraft(h.Svc.Perms, p, user) {
		if resp.Draft, err = draftView(h.Svc, p.ID); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// PatchProject updates a project in one transaction. Content fields are
// written first, then the lesson order, the minimum publish date and finally
// the publish mode. Any failure leaves the project untouched.
func (h *ProjectHandler) PatchProject(ctx context.Context, user *identity.User, req *dto.PatchProjectRequest) (*dto.ProjectDTO, error) {
	p, err := originProject(h.Svc, req.ID, user)
	if err != nil {
		return nil, err
	}
	if len(req.Content) != 0 || req.LessonsIDs != nil {
		if err := requireEditor(h.Svc.Perms, p, user); err != nil {
			return nil, err
		}
	}
	var t *content.Tree
	var tr *publish.Transition
	err = h.Svc.Machine.Update(ctx, user.ID, func(b *publish.Batch) error {
		if len(req.Content) != 0 {
			if _, err := b.Tx.PatchProject(p.ID, user.ID, req.Content); err != nil {
				return err
			}
		}
		if req.LessonsIDs != nil {
			if _, err := b.Tx.ReorderLessons(p.ID, user.ID, req.LessonsIDs); err != nil {
				return err
			}
		}
		if req.SetMinPublishDate {
			if _, err := b.SetMinPublishDate(p.ID, req.MinPublishDate); err != nil {
				return err
			}
		}
		if req.PublishMode != "" {
			var err error
			if tr, err = b.ChangeMode(p.ID, content.PublishMode(req.PublishMode)); err != nil {
				return err
			}
		}
		var err error
		t, err = b.Tx.Tree(p.ID)
		return err
	})
	if err != nil {
		return nil, ToAPIError(err)
	}
	if tr != nil && tr.Changed() {
		slog.InfoContext(ctx, "Project mode changed", "project", p.ID, "from", tr.OldMode, "to", tr.NewMode, "actor", user.ID)
	}
	return treeToDTO(t), nil
}

// BeginEdit takes the edit lock of a project.
func (h *ProjectHandler) BeginEdit(ctx context.Context, user *identity.User, req *dto.BeginEditRequest) (*dto.ProjectDTO, error) {
	p, err := originProject(h.Svc, req.ID, user)
	if err != nil {
		return nil, err
	}
	if err := requireEditor(h.Svc.Perms, p, user); err != nil {
		return nil, err
	}
	prev := p.CurrentEditor
	if p, err = h.Svc.Content.BeginEdit(p.ID, user.ID, req.ForceEditFrom); err != nil {
		return nil, ToAPIError(err)
	}
	if !prev.IsZero() && prev != user.ID {
		slog.InfoContext(ctx, "Edit lock taken over", "project", p.ID, "from", prev, "to", user.ID)
	}
	return projectToDTO(p), nil
}

// EndEdit releases the edit lock of a project if the caller holds it.
func (h *ProjectHandler) EndEdit(ctx context.Context, user *identity.User, req *dto.EndEditRequest) (*dto.EndEditResponse, error) {
	p, err := originProject(h.Svc, req.ID, user)
	if err != nil {
		return nil, err
	}
	if err := h.Svc.Content.EndEdit(p.ID, user.ID); err != nil {
		return nil, ToAPIError(err)
	}
	return &dto.OkResponse{Ok: true}, nil
}

// AddLesson appends a lesson to a project.
func (h *ProjectHandler) AddLesson(ctx context.Context, user *identity.User, req *dto.AddLessonRequest) (*dto.LessonDTO, error) {
	p, err := originProject(h.Svc, req.ProjectID, user)
	if err != nil {
		return nil, err
	}
	if err := requireEditor(h.Svc.Perms, p, user); err != nil {
		return nil, err
	}
	l, err := h.Svc.Content.AddLesson(p.ID, user.ID, content.NewLesson{
		Title:           req.Title,
		Duration:        req.Duration,
		Application:     req.Application,
		ApplicationBlob: req.ApplicationBlob,
	})
	if err != nil {
		return nil, ToAPIError(err)
	}
	return lessonToDTO(l), nil
}

// PatchLesson updates a lesson of a project in edit mode.
func (h *ProjectHandler) PatchLesson(ctx context.Context, user *identity.User, req *dto.PatchLessonRequest) (*dto.LessonDTO, error) {
	p, err := originProject(h.Svc, req.ProjectID, user)
	if err != nil {
		return nil, err
	}
	if err := requireEditor(h.Svc.Perms, p, user); err != nil {
		return nil, err
	}
	if _, err := originLesson(h.Svc, p.ID, req.LessonID); err != nil {
		return nil, err
	}
	l, err := h.Svc.Content.PatchLesson(req.LessonID, user.ID, req.Fields)
	if err != nil {
		return nil, ToAPIError(err)
	}
	return lessonToDTO(l), nil
}

// DeleteLesson deletes a lesson and its steps.
func (h *ProjectHandler) DeleteLesson(ctx context.Context, user *identity.User, req *dto.DeleteLessonRequest) (*dto.DeleteLessonResponse, error) {
	p, err := originProject(h.Svc, req.ProjectID, user)
	if err != nil {
		return nil, err
	}
	if err := requireEditor(h.Svc.Perms, p, user); err != nil {
		return nil, err
	}
	if _, err := originLesson(h.Svc, p.ID, req.LessonID); err != nil {
		return nil, err
	}
	if err := h.Svc.Content.DeleteLesson(req.LessonID, user.ID); err != nil {
		return nil, ToAPIError(err)
	}
	return &dto.OkResponse{Ok: true}, nil
}

// AddStep appends a step to a lesson.
func (h *ProjectHandler) AddStep(ctx context.Context, user *identity.User, req *dto.AddStepRequest) (*dto.StepDTO, error) {
	p, err := originProject(h.Svc, req.ProjectID, user)
	if err != nil {
		return nil, err
	}
	if err := requireEditor(h.Svc.Perms, p, user); err != nil {
		return nil, err
	}
	if _, err := originLesson(h.Svc, p.ID, req.LessonID); err != nil {
		return nil, err
	}
	st, err := h.Svc.Content.AddStep(req.LessonID, user.ID, content.NewStep{
		Title:        req.Title,
		Description:  req.Description,
		Image:        req.Image,
		Instructions: instructionsFromDTO(req.Instructions),
	})
	if err != nil {
		return nil, ToAPIError(err)
	}
	return stepToDTO(st), nil
}

// PatchStep updates a step of a project in edit mode.
func (h *ProjectHandler) PatchStep(ctx context.Context, user *identity.User, req *dto.PatchStepRequest) (*dto.StepDTO, error) {
	p, err := originProject(h.Svc, req.ProjectID, user)
	if err != nil {
		return nil, err
	}
	if err := requireEditor(h.Svc.Perms, p, user); err != nil {
		return nil, err
	}
	if _, err := originLesson(h.Svc, p.ID, req.LessonID); err != nil {
		return nil, err
	}
	if _, err := originStep(h.Svc, req.LessonID, req.StepID); err != nil {
		return nil, err
	}
	st, err := h.Svc.Content.PatchStep(req.StepID, user.ID, req.Fields)
	if err != nil {
		return nil, ToAPIError(err)
	}
	return stepToDTO(st), nil
}

// ListReview returns the projects waiting for review. Staff only.
func (h *ProjectHandler) ListReview(ctx context.Context, user *identity.User, req *dto.ListReviewRequest) (*dto.ListReviewResponse, error) {
	if !user.IsStaff() {
		return nil, dto.Forbidden("staff only")
	}
	limit := req.Limit
	if limit == 0 {
		limit = 20
	}
	q := h.Svc.Machine.InReview(limit)
	out := &dto.ListReviewResponse{Total: q.Total, Projects: make([]dto.ProjectDTO, len(q.Last))}
	for i, p := range q.Last {
		out.Projects[i] = *projectToDTO(p)
	}
	return out, nil
}

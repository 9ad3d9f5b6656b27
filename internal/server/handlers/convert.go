// Converts content entities to API types.

package handlers

import (
	"slices"

	"github.com/maruel/eduapi/internal/drafts"
	"github.com/maruel/eduapi/internal/server/dto"
	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/eduapi/internal/storage/identity"
	"github.com/maruel/ksid"
)

func projectToDTO(p *content.Project) *dto.ProjectDTO {
	files := make([]dto.TeacherFile, len(p.TeachersFiles))
	for i, f := range p.TeachersFiles {
		files[i] = dto.TeacherFile{URL: f.URL, Name: f.Name, Size: f.Size, Time: f.Time}
	}
	return &dto.ProjectDTO{
		ID:             p.ID,
		OwnerID:        p.OwnerID,
		IsDraft:        p.IsDraft,
		DraftOriginID:  p.DraftOriginID,
		PublishMode:    dto.PublishMode(p.PublishMode),
		PublishDate:    p.PublishDate,
		MinPublishDate: p.MinPublishDate,
		CurrentEditor:  p.CurrentEditor,
		Title:          p.Title,
		Description:    p.Description,
		BannerImage:    p.BannerImage,
		CardImage:      p.CardImage,
		Duration:       p.Duration,
		Age:            p.Age,
		Difficulty:     p.Difficulty,
		License:        p.License,
		Language:       p.Language,
		Tags:           p.Tags,
		TeacherInfo: dto.TeacherInfo{
			NGSS:                nonNil(p.NGSS),
			CCSS:                nonNil(p.CCSS),
			Prerequisites:       p.Prerequisites,
			Tips:                p.TeacherTips,
			AdditionalResources: p.TeacherAdditionalResources,
			TeachersFiles:       files,
			SkillsAcquired:      nonNil(p.SkillsAcquired),
			LearningObjectives:  nonNil(p.LearningObjectives),
			Grades:              nonNil(p.GradesRange),
			Subject:             nonNil(p.Subject),
			Technology:          nonNil(p.Technology),
			FourCS: dto.FourCS{
				Creativity:    p.FourCSCreativity,
				Critical:      p.FourCSCritical,
				Communication: p.FourCSCommunication,
				Collaboration: p.FourCSCollaboration,
			},
		},
		LessonsIDs: []ksid.ID{},
		Lessons:    []dto.LessonDTO{},
		Created:    p.Created,
		Updated:    p.Updated,
	}
}

func treeToDTO(t *content.Tree) *dto.ProjectDTO {
	out := projectToDTO(t.Project)
	out.LessonsIDs = t.LessonIDs()
	out.Lessons = make([]dto.LessonDTO, len(t.Lessons))
	for i, lt := range t.Lessons {
		out.Lessons[i] = *lessonTreeToDTO(lt)
	}
	return out
}

func lessonToDTO(l *content.Lesson) *dto.LessonDTO {
	return &dto.LessonDTO{
		ID:              l.ID,
		ProjectID:       l.ProjectID,
		Order:           l.Order,
		Title:           l.Title,
		Duration:        l.Duration,
		Application:     l.Application,
		ApplicationBlob: l.ApplicationBlob,
		IsDraft:         l.IsDraft,
		DraftOriginID:   l.DraftOriginID,
		StepsIDs:        []ksid.ID{},
		Steps:           []dto.StepDTO{},
		Created:         l.Created,
		Updated:         l.Updated,
	}
}

func lessonTreeToDTO(lt *content.LessonTree) *dto.LessonDTO {
	out := lessonToDTO(lt.Lesson)
	out.StepsIDs = lt.StepIDs()
	out.Steps = make([]dto.StepDTO, len(lt.Steps))
	for i, st := range lt.Steps {
		out.Steps[i] = *stepToDTO(st)
	}
	return out
}

func stepToDTO(s *content.Step) *dto.StepDTO {
	instr := make([]dto.Instruction, len(s.InstructionsList))
	for i, in := range s.InstructionsList {
		instr[i] = dto.Instruction{Description: in.Description, Image: in.Image, Hint: in.Hint}
	}
	return &dto.StepDTO{
		ID:              s.ID,
		LessonID:        s.LessonID,
		Order:           s.Order,
		Title:           s.Title,
		Description:     s.Description,
		Image:           s.Image,
		Instructions:    instr,
		ApplicationBlob: s.ApplicationBlob,
		IsDraft:         s.IsDraft,
		DraftOriginID:   s.DraftOriginID,
		Created:         s.Created,
		Updated:         s.Updated,
	}
}

func instructionsFromDTO(in []dto.Instruction) []content.Instruction {
	out := make([]content.Instruction, len(in))
	for i, v := range in {
		out[i] = content.Instruction{Description: v.Description, Image: v.Image, Hint: v.Hint}
	}
	return out
}

func summaryToDTO(s *drafts.Summary) *dto.DraftSummary {
	if s == nil {
		return nil
	}
	out := &dto.DraftSummary{
		ID:         s.ID,
		Title:      s.Title,
		DiffFields: s.DiffFields,
		Lessons:    make([]dto.LessonSummary, len(s.Lessons)),
	}
	for i, l := range s.Lessons {
		ls := dto.LessonSummary{ID: l.ID, Title: l.Title, DiffFields: l.DiffFields, Steps: make([]dto.StepSummary, len(l.Steps))}
		for j, st := range l.Steps {
			ls.Steps[j] = dto.StepSummary{ID: st.ID, Title: st.Title, DiffFields: st.DiffFields}
		}
		out.Lessons[i] = ls
	}
	return out
}

func notificationToDTO(n *identity.Notification, userSvc *identity.UserService) dto.NotificationDTO {
	d := dto.NotificationDTO{
		ID:        n.ID,
		Type:      string(n.Type),
		Title:     n.Title,
		Body:      n.Body,
		ProjectID: n.ProjectID,
		ActorID:   n.ActorID,
		Data:      n.Data,
		Read:      n.Read,
		Created:   n.Created,
	}
	if !n.ActorID.IsZero() {
		if actor, err := userSvc.Get(n.ActorID); err == nil {
			d.ActorName = actor.Name
		}
	}
	return d
}

func notificationPrefsToDTO(prefs *identity.NotificationPreferences) *dto.NotificationPrefsDTO {
	defaults := make(map[string]dto.ChannelSetDTO, len(identity.AllNotificationTypes()))
	for _, t := range identity.AllNotificationTypes() {
		cs := identity.DefaultChannels(t)
		defaults[string(t)] = dto.ChannelSetDTO{Email: cs.Email, Web: cs.Web}
	}
	overrides := make(map[string]dto.ChannelSetDTO, len(prefs.Overrides))
	for k, v := range prefs.Overrides {
		overrides[string(k)] = dto.ChannelSetDTO{Email: v.Email, Web: v.Web}
	}
	return &dto.NotificationPrefsDTO{
		Defaults:  defaults,
		Overrides: overrides,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}

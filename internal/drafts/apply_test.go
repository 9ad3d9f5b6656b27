package drafts

import (
	"errors"
	"reflect"
	"testing"

	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/ksid"
)

func TestApply(t *testing.T) {
	owner := ksid.NewID()

	t.Run("CopiesAndDeletes", func(t *testing.T) {
		s := newTestStore(t)
		origin := seedPublished(t, s, owner, 2, 2)
		if _, err := s.Update(origin.Project.ID, rawPatch(t, `{"title":"Circuits 102","teacherInfo":{"ngss":["MS-PS2-3"]}}`)); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if _, err := s.UpdateLesson(origin.Lessons[0].Lesson.ID, rawPatch(t, `{"duration":90}`)); err != nil {
			t.Fatalf("UpdateLesson failed: %v", err)
		}
		if _, err := s.UpdateStep(origin.Lessons[0].Steps[1].ID, rawPatch(t, `{"description":"Solder it"}`)); err != nil {
			t.Fatalf("UpdateStep failed: %v", err)
		}
		shadow, err := s.Get(origin.Project.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		got, err := s.Apply(origin.Project.ID)
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if got.Project.Title != "Circuits 102" || !reflect.DeepEqual(got.Project.NGSS, []string{"MS-PS2-3"}) {
			t.Errorf("project not applied: %+v", got.Project)
		}
		if got.Project.PublishMode != content.ModePublished {
			t.Errorf("meta fields must not be applied: mode = %s", got.Project.PublishMode)
		}
		if got.Project.IsDraft {
			t.Error("origin became a draft")
		}
		if got.Lessons[0].Lesson.Duration != 90 {
			t.Errorf("lesson duration = %d, want 90", got.Lessons[0].Lesson.Duration)
		}
		if got.Lessons[0].Steps[1].Description != "Solder it" {
			t.Errorf("step description = %q", got.Lessons[0].Steps[1].Description)
		}
		// Untouched rows are not rewritten.
		if !reflect.DeepEqual(got.Lessons[1], origin.Lessons[1]) {
			t.Error("unchanged lesson was rewritten")
		}
		if got.Lessons[0].Steps[0].Updated != origin.Lessons[0].Steps[0].Updated {
			t.Error("unchanged step was rewritten")
		}

		if s.Content().HasDraft(origin.Project.ID) {
			t.Error("shadow project should be deleted")
		}
		if _, err := s.Content().GetProject(shadow.Project.ID); !errors.Is(err, content.ErrNotFound) {
			t.Error("shadow row should be deleted")
		}
		for _, l := range shadow.Lessons {
			if _, err := s.Content().GetLesson(l.Lesson.ID); !errors.Is(err, content.ErrNotFound) {
				t.Errorf("shadow lesson %v survived", l.Lesson.ID)
			}
			for _, st := range l.Steps {
				if _, err := s.Content().GetStep(st.ID); !errors.Is(err, content.ErrNotFound) {
					t.Errorf("shadow step %v survived", st.ID)
				}
			}
		}

		if _, err := s.Apply(origin.Project.ID); !errors.Is(err, content.ErrNotFound) {
			t.Errorf("second Apply: got %v, want ErrNotFound", err)
		}
	})

	t.Run("NoDraft", func(t *testing.T) {
		s := newTestStore(t)
		origin := seedPublished(t, s, owner, 1, 1)
		if _, err := s.Apply(origin.Project.ID); !errors.Is(err, content.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("SkipsOrphans", func(t *testing.T) {
		s := newTestStore(t)
		origin := seedPublished(t, s, owner, 2, 1)
		if _, err := s.UpdateLesson(origin.Lessons[0].Lesson.ID, rawPatch(t, `{"title":"Gone"}`)); err != nil {
			t.Fatalf("UpdateLesson failed: %v", err)
		}
		if _, err := s.UpdateLesson(origin.Lessons[1].Lesson.ID, rawPatch(t, `{"title":"Kept"}`)); err != nil {
			t.Fatalf("UpdateLesson failed: %v", err)
		}
		setMode(t, s, origin.Project.ID, content.ModeEdit)
		if err := s.Content().DeleteLesson(origin.Lessons[0].Lesson.ID, owner); err != nil {
			t.Fatalf("DeleteLesson failed: %v", err)
		}
		setMode(t, s, origin.Project.ID, content.ModePublished)

		sum, err := s.Summary(origin.Project.ID)
		if err != nil {
			t.Fatalf("Summary failed: %v", err)
		}
		if len(sum.Lessons) != 1 || sum.Lessons[0].Title != "Kept" {
			t.Errorf("orphan lessons must not be summarized: %+v", sum.Lessons)
		}

		got, err := s.Apply(origin.Project.ID)
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if len(got.Lessons) != 1 || got.Lessons[0].Lesson.Title != "Kept" {
			t.Errorf("got lessons %+v", got.LessonIDs())
		}
		if s.Content().HasDraft(origin.Project.ID) {
			t.Error("shadow should be deleted even with orphans")
		}
	})

	t.Run("ApplyTxRollsBack", func(t *testing.T) {
		s := newTestStore(t)
		origin := seedPublished(t, s, owner, 1, 1)
		if _, err := s.Update(origin.Project.ID, rawPatch(t, `{"title":"New"}`)); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		errBoom := errors.New("boom")
		err := s.Content().Update(func(tx *content.Tx) error {
			if _, err := ApplyTx(tx, origin.Project.ID); err != nil {
				return err
			}
			return errBoom
		})
		if !errors.Is(err, errBoom) {
			t.Fatalf("got %v, want boom", err)
		}
		p, err := s.Content().GetProject(origin.Project.ID)
		if err != nil {
			t.Fatalf("GetProject failed: %v", err)
		}
		if p.Title != "Circuits 101" {
			t.Errorf("origin title = %q after rollback", p.Title)
		}
		if _, err := s.Get(origin.Project.ID); err != nil {
			t.Errorf("shadow should survive rollback: %v", err)
		}
	})
}

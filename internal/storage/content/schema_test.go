package content

import (
	"encoding/json"
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/maruel/ksid"
)

func TestProjectSchemaDiff(t *testing.T) {
	origin := &Project{ID: ksid.NewID(), Title: "A", Description: "X"}
	shadow := origin.Clone()
	shadow.Description = "Y"

	t.Run("Sparse", func(t *testing.T) {
		got := ProjectSchema.Diff(origin, shadow)
		want := map[string]any{"description": "X"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
		if got := ProjectSchema.ShadowValues(origin, shadow); !reflect.DeepEqual(got, map[string]any{"description": "Y"}) {
			t.Errorf("ShadowValues = %v", got)
		}
		if got := ProjectSchema.DiffFields(origin, shadow); !slices.Equal(got, []string{"description"}) {
			t.Errorf("DiffFields = %v", got)
		}
	})

	t.Run("MetaIgnored", func(t *testing.T) {
		s := origin.Clone()
		s.PublishMode = ModeReview
		s.CurrentEditor = ksid.NewID()
		s.IsDraft = true
		s.DraftOriginID = origin.ID
		if got := ProjectSchema.Diff(origin, s); len(got) != 0 {
			t.Errorf("got %v, want empty diff", got)
		}
		if !ProjectSchema.Equal(origin, s) {
			t.Error("Equal should ignore meta fields")
		}
	})

	t.Run("NestedSections", func(t *testing.T) {
		o := origin.Clone()
		o.NGSS = []string{"a"}
		o.FourCSCritical = "old"
		o.FourCSCreativity = "same"
		s := o.Clone()
		s.FourCSCritical = "new"
		got := ProjectSchema.Diff(o, s)
		want := map[string]any{
			"teacherInfo": map[string]any{
				"fourCS": map[string]any{"critical": "old"},
			},
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
		s.NGSS = []string{"a", "b"}
		got = ProjectSchema.Diff(o, s)
		info := got["teacherInfo"].(map[string]any)
		if !reflect.DeepEqual(info["ngss"], []string{"a"}) {
			t.Errorf("ngss = %v, want origin value", info["ngss"])
		}
	})

	t.Run("NilEqualsEmpty", func(t *testing.T) {
		o := origin.Clone()
		s := origin.Clone()
		o.Subject = nil
		s.Subject = []string{}
		if got := ProjectSchema.Diff(o, s); len(got) != 0 {
			t.Errorf("got %v, want empty diff", got)
		}
	})
}

func TestSchemaCopy(t *testing.T) {
	origin := &Project{ID: ksid.NewID(), Title: "A", Tags: "x", NGSS: []string{"a"}, PublishMode: ModePublished}
	shadow := origin.Clone()
	shadow.Title = "B"
	shadow.NGSS = []string{"b"}
	shadow.PublishMode = ModeEdit

	dst := origin.Clone()
	if !ProjectSchema.Copy(dst, shadow) {
		t.Fatal("Copy reported no change")
	}
	if dst.Title != "B" || !slices.Equal(dst.NGSS, []string{"b"}) {
		t.Errorf("got %+v", dst)
	}
	if dst.PublishMode != ModePublished {
		t.Error("Copy must not touch meta fields")
	}
	shadow.NGSS[0] = "mutated"
	if dst.NGSS[0] != "b" {
		t.Error("Copy must not alias slices")
	}
	if ProjectSchema.Copy(dst, dst.Clone()) {
		t.Error("Copy of identical values reported a change")
	}
}

func TestSchemaPatch(t *testing.T) {
	t.Run("Step", func(t *testing.T) {
		st := &Step{Title: "a"}
		patch := map[string]json.RawMessage{
			"title":        json.RawMessage(`"b"`),
			"instructions": json.RawMessage(`[{"description":"Wire the LED","hint":"Mind polarity"}]`),
		}
		if err := StepSchema.Patch(st, patch); err != nil {
			t.Fatalf("Patch failed: %v", err)
		}
		if st.Title != "b" || len(st.InstructionsList) != 1 || st.InstructionsList[0].Hint != "Mind polarity" {
			t.Errorf("got %+v", st)
		}
	})

	t.Run("NotWritable", func(t *testing.T) {
		l := &Lesson{}
		for _, key := range []string{"projectId", "order", "isDraft"} {
			err := LessonSchema.Patch(l, map[string]json.RawMessage{key: json.RawMessage(`1`)})
			if !errors.Is(err, ErrFieldNotWritable) {
				t.Errorf("%s: got %v, want ErrFieldNotWritable", key, err)
			}
		}
		p := &Project{}
		err := ProjectSchema.Patch(p, map[string]json.RawMessage{"teacherInfo": json.RawMessage(`{"bogus":1}`)})
		if !errors.Is(err, ErrFieldNotWritable) {
			t.Errorf("got %v, want ErrFieldNotWritable", err)
		}
	})

	t.Run("BadType", func(t *testing.T) {
		p := &Project{}
		if err := ProjectSchema.Patch(p, map[string]json.RawMessage{"duration": json.RawMessage(`"long"`)}); err == nil {
			t.Error("Patch should reject a string duration")
		}
	})
}

func TestFieldNames(t *testing.T) {
	names := ProjectSchema.FieldNames()
	for _, want := range []string{"title", "tags", "ngss", "four_cs_collaboration", "teachers_files_list"} {
		if !slices.Contains(names, want) {
			t.Errorf("missing %q in %v", want, names)
		}
	}
	for _, meta := range ProjectSchema.MetaFields {
		if slices.Contains(names, meta) {
			t.Errorf("meta field %q is draft-applicable", meta)
		}
	}
	if got := LessonSchema.FieldNames(); !slices.Equal(got, []string{"title", "duration"}) {
		t.Errorf("lesson fields = %v", got)
	}
}

func TestNodeDispatch(t *testing.T) {
	o := &Step{ID: ksid.NewID(), Title: "a", Image: "x.png"}
	s := o.Clone()
	s.ID = ksid.NewID()
	s.IsDraft = true
	s.DraftOriginID = o.ID
	s.Image = "y.png"

	on, sn := StepNode(o), StepNode(s)
	if sn.OriginID() != o.ID || on.OriginID() != 0 {
		t.Errorf("OriginID wrong: %s, %s", sn.OriginID(), on.OriginID())
	}
	if got := DiffNode(on, sn); !reflect.DeepEqual(got, map[string]any{"image": "x.png"}) {
		t.Errorf("DiffNode = %v", got)
	}
	if got := DiffFieldsNode(on, sn); !slices.Equal(got, []string{"image"}) {
		t.Errorf("DiffFieldsNode = %v", got)
	}
	if !CopyNode(on, sn) || o.Image != "y.png" {
		t.Errorf("CopyNode did not copy: %+v", o)
	}

	defer func() {
		if recover() == nil {
			t.Error("mixing kinds should panic")
		}
	}()
	DiffNode(on, LessonNode(&Lesson{}, nil))
}

func TestValidate(t *testing.T) {
	id := ksid.NewID()
	cases := []struct {
		name string
		p    Project
		ok   bool
	}{
		{"Valid", Project{ID: id, OwnerID: id, Title: "t", PublishMode: ModeEdit}, true},
		{"NoTitle", Project{ID: id, OwnerID: id, PublishMode: ModeEdit}, false},
		{"BadMode", Project{ID: id, OwnerID: id, Title: "t", PublishMode: "draft"}, false},
		{"DraftWithoutOrigin", Project{ID: id, OwnerID: id, Title: "t", PublishMode: ModeEdit, IsDraft: true}, false},
		{"OriginWithLink", Project{ID: id, OwnerID: id, Title: "t", PublishMode: ModeEdit, DraftOriginID: id}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := c.p.Validate(); (err == nil) != c.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, c.ok)
			}
		})
	}
}

func TestPublishMode(t *testing.T) {
	if _, err := ParsePublishMode("published"); err != nil {
		t.Errorf("ParsePublishMode failed: %v", err)
	}
	if _, err := ParsePublishMode("archived"); err == nil {
		t.Error("ParsePublishMode should reject unknown modes")
	}
	if got := ModeReady.Label(); got != "Ready For Publish" {
		t.Errorf("got %q", got)
	}
}

func TestCloneBlob(t *testing.T) {
	l := &Lesson{ApplicationBlob: map[string]any{"nested": map[string]any{"k": []any{"v"}}}}
	c := l.Clone()
	c.ApplicationBlob["nested"].(map[string]any)["k"].([]any)[0] = "changed"
	if l.ApplicationBlob["nested"].(map[string]any)["k"].([]any)[0] != "v" {
		t.Error("Clone shares the application blob")
	}
}

// Declares which columns of each entity are draft-applicable and how they map
// to API keys.

package content

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
)

// Field is one draft-applicable column of E.
type Field[E any] struct {
	// Name is the storage column name.
	Name string
	// APIKey is the camelCase key used in diffs and patches.
	APIKey string

	get   func(e *E) any
	copy  func(dst, src *E)
	equal func(a, b *E) bool
	set   func(e *E, raw json.RawMessage) error
}

// Get returns the field value of e.
func (f *Field[E]) Get(e *E) any {
	return f.get(e)
}

// Equal reports whether a and b hold the same value for this field.
func (f *Field[E]) Equal(a, b *E) bool {
	return f.equal(a, b)
}

func fieldOf[E, V any](name, apiKey string, ptr func(e *E) *V) Field[E] {
	return Field[E]{
		Name:   name,
		APIKey: apiKey,
		get: func(e *E) any {
			return cloneValue(*ptr(e))
		},
		copy: func(dst, src *E) {
			*ptr(dst) = cloneValue(*ptr(src))
		},
		equal: func(a, b *E) bool {
			return valuesEqual(*ptr(a), *ptr(b))
		},
		set: func(e *E, raw json.RawMessage) error {
			var v V
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("%s: %w", apiKey, err)
			}
			*ptr(e) = v
			return nil
		},
	}
}

// Section groups fields under a nested API key.
type Section[E any] struct {
	APIKey   string
	Fields   []Field[E]
	Sections []Section[E]
}

// Schema classifies the columns of an entity type.
//
// Fields and Sections are the draft-applicable data: they are diffed, copied
// on apply and writable through patches. MetaFields may differ on a draft but
// are never diffed nor applied. CreateFields are only set when a shadow is
// created.
type Schema[E any] struct {
	Kind         Kind
	Fields       []Field[E]
	Sections     []Section[E]
	MetaFields   []string
	CreateFields []string
}

// AllFields returns the draft-applicable fields, sections flattened.
func (s *Schema[E]) AllFields() []Field[E] {
	out := slices.Clone(s.Fields)
	var walk func(secs []Section[E])
	walk = func(secs []Section[E]) {
		for _, sec := range secs {
			out = append(out, sec.Fields...)
			walk(sec.Sections)
		}
	}
	walk(s.Sections)
	return out
}

// FieldNames returns the storage names of the draft-applicable fields.
func (s *Schema[E]) FieldNames() []string {
	all := s.AllFields()
	names := make([]string, len(all))
	for i := range all {
		names[i] = all[i].Name
	}
	return names
}

// Diff returns origin's values for every draft-applicable field that differs
// between origin and shadow, keyed by API key. Sections only appear when one
// of their fields differs.
func (s *Schema[E]) Diff(origin, shadow *E) map[string]any {
	return diffFields(s.Fields, s.Sections, origin, shadow, origin)
}

// ShadowValues is Diff with the shadow's values.
func (s *Schema[E]) ShadowValues(origin, shadow *E) map[string]any {
	return diffFields(s.Fields, s.Sections, origin, shadow, shadow)
}

// DiffFields returns the storage names of the differing fields.
func (s *Schema[E]) DiffFields(origin, shadow *E) []string {
	var out []string
	for _, f := range s.AllFields() {
		if !f.equal(origin, shadow) {
			out = append(out, f.Name)
		}
	}
	return out
}

// Equal reports whether a and b agree on every draft-applicable field.
func (s *Schema[E]) Equal(a, b *E) bool {
	for _, f := range s.AllFields() {
		if !f.equal(a, b) {
			return false
		}
	}
	return true
}

// Copy copies the draft-applicable fields of src into dst and reports whether
// dst changed.
func (s *Schema[E]) Copy(dst, src *E) bool {
	changed := false
	for _, f := range s.AllFields() {
		if !f.equal(dst, src) {
			f.copy(dst, src)
			changed = true
		}
	}
	return changed
}

// Patch decodes patch into e. Keys are API keys; sections take a nested
// object. A key outside the draft-applicable set fails with
// ErrFieldNotWritable and leaves e partially updated.
func (s *Schema[E]) Patch(e *E, patch map[string]json.RawMessage) error {
	return patchFields(s.Fields, s.Sections, e, patch, "")
}

func diffFields[E any](fields []Field[E], sections []Section[E], origin, shadow, pick *E) map[string]any {
	out := map[string]any{}
	for i := range fields {
		if !fields[i].equal(origin, shadow) {
			out[fields[i].APIKey] = fields[i].get(pick)
		}
	}
	for _, sec := range sections {
		if sub := diffFields(sec.Fields, sec.Sections, origin, shadow, pick); len(sub) != 0 {
			out[sec.APIKey] = sub
		}
	}
	return out
}

func patchFields[E any](fields []Field[E], sections []Section[E], e *E, patch map[string]json.RawMessage, prefix string) error {
	for key, raw := range patch {
		if i := slices.IndexFunc(fields, func(f Field[E]) bool { return f.APIKey == key }); i >= 0 {
			if err := fields[i].set(e, raw); err != nil {
				return err
			}
			continue
		}
		if i := slices.IndexFunc(sections, func(s Section[E]) bool { return s.APIKey == key }); i >= 0 {
			var sub map[string]json.RawMessage
			if err := json.Unmarshal(raw, &sub); err != nil {
				return fmt.Errorf("%s%s: %w", prefix, key, err)
			}
			if err := patchFields(sections[i].Fields, sections[i].Sections, e, sub, prefix+key+"."); err != nil {
				return err
			}
			continue
		}
		return fmt.Errorf("%w: %s%s", ErrFieldNotWritable, prefix, key)
	}
	return nil
}

// valuesEqual compares decoded values; a nil slice or map equals an empty one.
func valuesEqual(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == vb.Kind() && (va.Kind() == reflect.Slice || va.Kind() == reflect.Map) && va.Len() == 0 && vb.Len() == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func cloneValue[V any](v V) V {
	if m, ok := any(v).(map[string]any); ok {
		return any(cloneBlob(m)).(V)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && !rv.IsNil() {
		c := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(c, rv)
		return c.Interface().(V)
	}
	return v
}

// ProjectSchema classifies Project columns.
var ProjectSchema = Schema[Project]{
	Kind: KindProject,
	Fields: []Field[Project]{
		fieldOf("title", "title", func(p *Project) *string { return &p.Title }),
		fieldOf("description", "description", func(p *Project) *string { return &p.Description }),
		fieldOf("banner_image", "bannerImage", func(p *Project) *string { return &p.BannerImage }),
		fieldOf("card_image", "cardImage", func(p *Project) *string { return &p.CardImage }),
		fieldOf("duration", "duration", func(p *Project) *int { return &p.Duration }),
		fieldOf("age", "age", func(p *Project) *string { return &p.Age }),
		fieldOf("difficulty", "difficulty", func(p *Project) *string { return &p.Difficulty }),
		fieldOf("license", "license", func(p *Project) *string { return &p.License }),
		fieldOf("language", "language", func(p *Project) *string { return &p.Language }),
		fieldOf("tags", "tags", func(p *Project) *string { return &p.Tags }),
	},
	Sections: []Section[Project]{
		{
			APIKey: "teacherInfo",
			Fields: []Field[Project]{
				fieldOf("ngss", "ngss", func(p *Project) *[]string { return &p.NGSS }),
				fieldOf("ccss", "ccss", func(p *Project) *[]string { return &p.CCSS }),
				fieldOf("prerequisites", "prerequisites", func(p *Project) *string { return &p.Prerequisites }),
				fieldOf("teacher_tips", "tips", func(p *Project) *string { return &p.TeacherTips }),
				fieldOf("teacher_additional_resources", "additionalResources", func(p *Project) *string { return &p.TeacherAdditionalResources }),
				fieldOf("teachers_files_list", "teachersFiles", func(p *Project) *[]TeacherFile { return &p.TeachersFiles }),
				fieldOf("skills_acquired", "skillsAcquired", func(p *Project) *[]string { return &p.SkillsAcquired }),
				fieldOf("learning_objectives", "learningObjectives", func(p *Project) *[]string { return &p.LearningObjectives }),
				fieldOf("grades_range", "grades", func(p *Project) *[]string { return &p.GradesRange }),
				fieldOf("subject", "subject", func(p *Project) *[]string { return &p.Subject }),
				fieldOf("technology", "technology", func(p *Project) *[]string { return &p.Technology }),
			},
			Sections: []Section[Project]{
				{
					APIKey: "fourCS",
					Fields: []Field[Project]{
						fieldOf("four_cs_creativity", "creativity", func(p *Project) *string { return &p.FourCSCreativity }),
						fieldOf("four_cs_critical", "critical", func(p *Project) *string { return &p.FourCSCritical }),
						fieldOf("four_cs_communication", "communication", func(p *Project) *string { return &p.FourCSCommunication }),
						fieldOf("four_cs_collaboration", "collaboration", func(p *Project) *string { return &p.FourCSCollaboration }),
					},
				},
			},
		},
	},
	MetaFields: []string{"publish_mode", "current_editor"},
}

// LessonSchema classifies Lesson columns.
var LessonSchema = Schema[Lesson]{
	Kind: KindLesson,
	Fields: []Field[Lesson]{
		fieldOf("title", "title", func(l *Lesson) *string { return &l.Title }),
		fieldOf("duration", "duration", func(l *Lesson) *int { return &l.Duration }),
	},
	CreateFields: []string{"project_id"},
}

// StepSchema classifies Step columns.
var StepSchema = Schema[Step]{
	Kind: KindStep,
	Fields: []Field[Step]{
		fieldOf("title", "title", func(s *Step) *string { return &s.Title }),
		fieldOf("description", "description", func(s *Step) *string { return &s.Description }),
		fieldOf("image", "image", func(s *Step) *string { return &s.Image }),
		fieldOf("instructions_list", "instructions", func(s *Step) *[]Instruction { return &s.InstructionsList }),
	},
	CreateFields: []string{"lesson_id"},
}

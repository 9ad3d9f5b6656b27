// Applies mode changes to projects and their drafts.

package publish

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/maruel/eduapi/internal/drafts"
	"github.com/maruel/eduapi/internal/storage"
	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/ksid"
)

// Transition is the outcome of a mode change request.
type Transition struct {
	// Project is the project after the change. For an applied draft it is
	// the last state of the deleted shadow.
	Project *content.Project
	OldMode content.PublishMode
	NewMode content.PublishMode
	// Tree is the origin tree after a draft was applied.
	Tree *content.Tree
	// Applied is set when a draft reached published and was applied.
	Applied bool
}

// Changed reports whether the mode changed.
func (t *Transition) Changed() bool {
	return t.OldMode != t.NewMode
}

// Machine runs publish mode transitions against the content store.
type Machine struct {
	drafts *drafts.Store
	caps   Capabilities
	pub    Publisher
}

// NewMachine returns a state machine. pub may be nil.
func NewMachine(d *drafts.Store, caps Capabilities, pub Publisher) *Machine {
	if pub == nil {
		pub = Discard
	}
	return &Machine{drafts: d, caps: caps, pub: pub}
}

// Batch stages mode changes inside one content transaction. Events are
// published by Machine.Update once the transaction commits.
type Batch struct {
	// Tx is the underlying transaction, for content writes that must commit
	// together with the mode changes.
	Tx *content.Tx

	m       *Machine
	actor   ksid.ID
	pending []pendingEvent
}

type pendingEvent struct {
	tr  *Transition
	sum *drafts.Summary
}

// Update runs fn in a single content transaction on behalf of actor. If fn
// returns an error nothing is written and no event is published.
func (m *Machine) Update(ctx context.Context, actor ksid.ID, fn func(b *Batch) error) error {
	var b *Batch
	err := m.drafts.Content().Update(func(tx *content.Tx) error {
		b = &Batch{Tx: tx, m: m, actor: actor}
		return fn(b)
	})
	if err != nil {
		return err
	}
	for _, pe := range b.pending {
		m.emit(ctx, pe.tr, actor, ReasonRequested, pe.sum)
	}
	return nil
}

// ChangeMode moves an origin project to target.
func (m *Machine) ChangeMode(ctx context.Context, projectID, actor ksid.ID, target content.PublishMode) (*Transition, error) {
	var tr *Transition
	err := m.Update(ctx, actor, func(b *Batch) error {
		var err error
		tr, err = b.ChangeMode(projectID, target)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// ChangeDraftMode moves the draft of an origin project to target. Reaching
// published applies the draft onto the origin and deletes it.
func (m *Machine) ChangeDraftMode(ctx context.Context, originID, actor ksid.ID, target content.PublishMode) (*Transition, error) {
	var tr *Transition
	err := m.Update(ctx, actor, func(b *Batch) error {
		var err error
		tr, err = b.ChangeDraftMode(originID, target)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// SetMinPublishDate sets or clears the earliest publication time. A ready
// project whose date has passed is published right away.
func (m *Machine) SetMinPublishDate(ctx context.Context, projectID, actor ksid.ID, t *time.Time) (*Transition, error) {
	var tr *Transition
	err := m.Update(ctx, actor, func(b *Batch) error {
		var err error
		tr, err = b.SetMinPublishDate(projectID, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// ChangeMode stages the move of an origin project to target.
func (b *Batch) ChangeMode(projectID ksid.ID, target content.PublishMode) (*Transition, error) {
	p, err := b.Tx.Project(projectID)
	if err != nil {
		return nil, err
	}
	if p.IsDraft {
		return nil, fmt.Errorf("project %s is a draft: %w", projectID, content.ErrInvalidState)
	}
	tr, err := b.m.transition(b.Tx, p, b.actor, target)
	if err != nil || !tr.Changed() {
		return tr, err
	}
	if tr.Project, err = b.Tx.SaveProject(p); err != nil {
		return nil, err
	}
	b.record(tr, nil)
	return tr, nil
}

// ChangeDraftMode stages the move of the draft of originID to target.
func (b *Batch) ChangeDraftMode(originID ksid.ID, target content.PublishMode) (*Transition, error) {
	shadow := b.Tx.DraftOf(originID)
	if shadow == nil {
		return nil, fmt.Errorf("draft of project %s: %w", originID, content.ErrNotFound)
	}
	tr, err := b.m.transition(b.Tx, shadow, b.actor, target)
	if err != nil || !tr.Changed() {
		return tr, err
	}
	sum, err := drafts.SummaryTx(b.Tx, originID)
	if err != nil {
		return nil, err
	}
	if err := commitDraft(b.Tx, shadow, tr); err != nil {
		return nil, err
	}
	b.record(tr, sum)
	return tr, nil
}

// SetMinPublishDate stages the new earliest publication time of a project or
// draft.
func (b *Batch) SetMinPublishDate(projectID ksid.ID, t *time.Time) (*Transition, error) {
	p, err := b.Tx.Project(projectID)
	if err != nil {
		return nil, err
	}
	switch p.PublishMode {
	case content.ModeEdit, content.ModeReview, content.ModeReady:
	default:
		return nil, fmt.Errorf("%w: min publish date of a %s project", ErrStructurallyForbidden, p.PublishMode)
	}
	if !b.m.caps.IsEditor(p, b.actor) && !b.m.caps.CanReedit(p, b.actor) {
		return nil, fmt.Errorf("%w: setting the min publish date", ErrPermissionDenied)
	}
	tr := &Transition{OldMode: p.PublishMode}
	p.MinPublishDate = storage.TimePtr(t)
	if p.PublishMode == content.ModeReady {
		Settle(p, content.ModeReady, b.Tx.Now)
	}
	tr.NewMode = p.PublishMode
	var sum *drafts.Summary
	if p.IsDraft {
		if tr.Changed() {
			if sum, err = drafts.SummaryTx(b.Tx, p.DraftOriginID); err != nil {
				return nil, err
			}
		}
		if err := commitDraft(b.Tx, p, tr); err != nil {
			return nil, err
		}
	} else if tr.Project, err = b.Tx.SaveProject(p); err != nil {
		return nil, err
	}
	b.record(tr, sum)
	return tr, nil
}

func (b *Batch) record(tr *Transition, sum *drafts.Summary) {
	if tr.Changed() {
		b.pending = append(b.pending, pendingEvent{tr: tr, sum: sum})
	}
}

// PublishDue publishes every ready project and draft whose minimum
// publication date has passed. It returns how many were published.
func (m *Machine) PublishDue(ctx context.Context) (int, error) {
	cs := m.drafts.Content()
	now := storage.Now()
	var due []ksid.ID
	for _, p := range append(cs.ProjectsInMode(content.ModeReady), cs.DraftsInMode(content.ModeReady)...) {
		if p.MinPublishDate != nil && !p.MinPublishDate.After(now) {
			due = append(due, p.ID)
		}
	}
	n := 0
	for _, id := range due {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		tr, sum, err := m.publishDue(id)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to publish ready project", "project", id, "err", err)
			continue
		}
		if tr == nil {
			continue
		}
		n++
		m.emit(ctx, tr, 0, ReasonScheduled, sum)
	}
	if n != 0 {
		slog.InfoContext(ctx, "Published ready projects", "count", n)
	}
	return n, nil
}

func (m *Machine) publishDue(id ksid.ID) (*Transition, *drafts.Summary, error) {
	var tr *Transition
	var sum *drafts.Summary
	err := m.drafts.Content().Update(func(tx *content.Tx) error {
		p, err := tx.Project(id)
		if err != nil {
			return err
		}
		// Re-check under the transaction: someone may have moved it.
		if p.PublishMode != content.ModeReady || p.MinPublishDate == nil || p.MinPublishDate.After(tx.Now) {
			return nil
		}
		tr = &Transition{OldMode: p.PublishMode}
		Settle(p, content.ModeReady, tx.Now)
		tr.NewMode = p.PublishMode
		if p.IsDraft {
			if sum, err = drafts.SummaryTx(tx, p.DraftOriginID); err != nil {
				return err
			}
			return commitDraft(tx, p, tr)
		}
		tr.Project, err = tx.SaveProject(p)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return tr, sum, nil
}

// ReviewQueue is the list of origin projects waiting in review.
type ReviewQueue struct {
	Total int
	// Last holds the most recently updated projects, newest first.
	Last []*content.Project
}

// InReview returns the projects in review with the limit most recent ones.
func (m *Machine) InReview(limit int) *ReviewQueue {
	projects := m.drafts.Content().ProjectsInMode(content.ModeReview)
	slices.SortFunc(projects, func(a, b *content.Project) int {
		if c := cmp.Compare(b.Updated, a.Updated); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	q := &ReviewQueue{Total: len(projects), Last: projects}
	if limit > 0 && len(q.Last) > limit {
		q.Last = q.Last[:limit]
	}
	return q
}

// transition resolves and settles p in memory. The caller persists it.
func (m *Machine) transition(tx *content.Tx, p *content.Project, actor ksid.ID, target content.PublishMode) (*Transition, error) {
	tr := &Transition{Project: p, OldMode: p.PublishMode, NewMode: p.PublishMode}
	resolved, err := Resolve(p, actor, target, m.caps)
	if err != nil {
		return nil, err
	}
	if resolved == p.PublishMode {
		return tr, nil
	}
	if resolved != content.ModeEdit {
		t, err := tx.Tree(p.ID)
		if err != nil {
			return nil, err
		}
		if err := CheckReadiness(t, tx.Apps()); err != nil {
			return nil, err
		}
	}
	Settle(p, resolved, tx.Now)
	tr.NewMode = p.PublishMode
	return tr, nil
}

// commitDraft saves the shadow, or applies it when it reached published.
func commitDraft(tx *content.Tx, shadow *content.Project, tr *Transition) error {
	if shadow.PublishMode != content.ModePublished {
		var err error
		tr.Project, err = tx.SaveProject(shadow)
		return err
	}
	t, err := drafts.ApplyTx(tx, shadow.DraftOriginID)
	if err != nil {
		return err
	}
	tr.Project = shadow
	tr.Tree = t
	tr.Applied = true
	return nil
}

func (m *Machine) emit(ctx context.Context, tr *Transition, actor ksid.ID, reason Reason, sum *drafts.Summary) {
	p := tr.Project
	ev := &Event{
		ProjectID:      p.ID,
		OwnerID:        p.OwnerID,
		Title:          p.Title,
		Draft:          p.IsDraft,
		Applied:        tr.Applied,
		OldMode:        tr.OldMode,
		NewMode:        tr.NewMode,
		ActorID:        actor,
		Reason:         reason,
		PublishDate:    p.PublishDate,
		MinPublishDate: p.MinPublishDate,
		DraftDiff:      sum,
	}
	if p.IsDraft {
		ev.ProjectID = p.DraftOriginID
	}
	m.pub.Publish(ctx, ev)
}

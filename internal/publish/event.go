package publish

import (
	"context"

	"github.com/maruel/eduapi/internal/drafts"
	"github.com/maruel/eduapi/internal/storage"
	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/ksid"
)

// Reason tells why a mode changed.
type Reason string

const (
	// ReasonRequested is a mode change requested by a user.
	ReasonRequested Reason = "requested"
	// ReasonScheduled is a ready project published by the sweep.
	ReasonScheduled Reason = "scheduled"
)

// Event describes a publish mode change that already happened.
type Event struct {
	// ProjectID is always the origin project.
	ProjectID ksid.ID
	OwnerID   ksid.ID
	Title     string
	// Draft is set when the draft of the project changed mode.
	Draft bool
	// Applied is set when a draft reached published and was applied.
	Applied        bool
	OldMode        content.PublishMode
	NewMode        content.PublishMode
	ActorID        ksid.ID
	Reason         Reason
	PublishDate    *storage.Time
	MinPublishDate *storage.Time
	// DraftDiff is the change summary computed before the draft was applied.
	DraftDiff *drafts.Summary
}

// Publisher receives mode change events after they are committed.
//
// Publish must not block; delivery failures never undo the change.
type Publisher interface {
	Publish(ctx context.Context, ev *Event)
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, *Event) {}

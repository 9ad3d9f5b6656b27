package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/maruel/eduapi/internal/drafts"
	"github.com/maruel/eduapi/internal/publish"
	"github.com/maruel/eduapi/internal/storage"
	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/ksid"
)

// Describe returns the human readable text of a mode change.
func Describe(ev *publish.Event) string {
	if ev.Reason == publish.ReasonScheduled && !ev.Draft {
		at := ev.MinPublishDate
		if at == nil {
			at = ev.PublishDate
		}
		when := ""
		if at != nil {
			when = at.AsTime().UTC().Format("2006-01-02 15:04")
		}
		return fmt.Sprintf("Project \"%s\" published because publication date has arrived - %s.", ev.Title, when)
	}
	if ev.Draft {
		s := fmt.Sprintf("The changes to project \"%s\" have moved from \"%s\" to \"%s\".", ev.Title, ev.OldMode.Label(), ev.NewMode.Label())
		if ev.Applied {
			s += " The changes have been applied and are now live."
		}
		return s
	}
	return fmt.Sprintf("Project \"%s\" has moved from \"%s\" to \"%s\".", ev.Title, ev.OldMode.Label(), ev.NewMode.Label())
}

// eventData is the structured payload stored with in-app notifications.
type eventData struct {
	ProjectID      ksid.ID             `json:"projectId"`
	Draft          bool                `json:"draft,omitempty"`
	Applied        bool                `json:"applied,omitempty"`
	OldMode        content.PublishMode `json:"oldMode"`
	NewMode        content.PublishMode `json:"newMode"`
	Reason         publish.Reason      `json:"reason"`
	PublishDate    *storage.Time       `json:"publishDate,omitempty"`
	MinPublishDate *storage.Time       `json:"minPublishDate,omitempty"`
	DraftDiff      *drafts.Summary     `json:"draftDiff,omitempty"`
}

func marshalEvent(ev *publish.Event) (json.RawMessage, error) {
	return json.Marshal(&eventData{
		ProjectID:      ev.ProjectID,
		Draft:          ev.Draft,
		Applied:        ev.Applied,
		OldMode:        ev.OldMode,
		NewMode:        ev.NewMode,
		Reason:         ev.Reason,
		PublishDate:    ev.PublishDate,
		MinPublishDate: ev.MinPublishDate,
		DraftDiff:      ev.DraftDiff,
	})
}

// ProjectURL returns the frontend URL of a project.
func ProjectURL(baseURL string, id ksid.ID) string {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL + "app/project/" + id.String() + "/"
}

// Provides localized email templates.

package email

import (
	"fmt"
	"strings"
)

// Locale represents a supported language code.
type Locale string

// Supported locales for email templates.
const (
	LocaleEN Locale = "en"
	LocaleFR Locale = "fr"
	LocaleDE Locale = "de"
	LocaleES Locale = "es"
)

// DefaultLocale is used when no locale is specified or the locale is unsupported.
const DefaultLocale = LocaleEN

// ParseLocale converts a string to a Locale, returning DefaultLocale if unsupported.
func ParseLocale(s string) Locale {
	switch Locale(s) {
	case LocaleEN, LocaleFR, LocaleDE, LocaleES:
		return Locale(s)
	default:
		return DefaultLocale
	}
}

// emailTemplates holds localized email content.
type emailTemplates struct {
	// Publish mode change of a project or its draft.
	ModeChangeSubject string
	ModeChangeBody    string

	// Periodic list of projects waiting for review.
	ReviewSummarySubject string
	ReviewSummaryBody    string
	ReviewSummaryItem    string
	ReviewSummaryNoDate  string
}

var templates = map[Locale]*emailTemplates{
	LocaleEN: {
		ModeChangeSubject: "Project \"%s\" changed status",
		ModeChangeBody: `Hi %s,

%s

Open the project:

%s

- The eduapi Team
`,
		ReviewSummarySubject: "%d projects waiting for review",
		ReviewSummaryBody: `Hi,

%d projects are waiting for review. The most recently updated:

%s
- The eduapi Team
`,
		ReviewSummaryItem:   "- \"%s\" by %s, updated %s, publish on %s\n  %s\n",
		ReviewSummaryNoDate: "approval",
	},
	LocaleFR: {
		ModeChangeSubject: "Le projet « %s » a changé de statut",
		ModeChangeBody: `Bonjour %s,

%s

Ouvrir le projet :

%s

- L'équipe eduapi
`,
		ReviewSummarySubject: "%d projets en attente de relecture",
		ReviewSummaryBody: `Bonjour,

%d projets sont en attente de relecture. Les plus récemment modifiés :

%s
- L'équipe eduapi
`,
		ReviewSummaryItem:   "- « %s » par %s, modifié le %s, publication le %s\n  %s\n",
		ReviewSummaryNoDate: "approbation",
	},
	LocaleDE: {
		ModeChangeSubject: "Status des Projekts \"%s\" geändert",
		ModeChangeBody: `Hallo %s,

%s

Projekt öffnen:

%s

- Das eduapi-Team
`,
		ReviewSummarySubject: "%d Projekte warten auf Prüfung",
		ReviewSummaryBody: `Hallo,

%d Projekte warten auf Prüfung. Die zuletzt geänderten:

%s
- Das eduapi-Team
`,
		ReviewSummaryItem:   "- \"%s\" von %s, geändert %s, Veröffentlichung %s\n  %s\n",
		ReviewSummaryNoDate: "nach Freigabe",
	},
	LocaleES: {
		ModeChangeSubject: "El proyecto \"%s\" cambió de estado",
		ModeChangeBody: `Hola %s,

%s

Abrir el proyecto:

%s

- El equipo de eduapi
`,
		ReviewSummarySubject: "%d proyectos esperando revisión",
		ReviewSummaryBody: `Hola,

%d proyectos están esperando revisión. Los modificados más recientemente:

%s
- El equipo de eduapi
`,
		ReviewSummaryItem:   "- \"%s\" de %s, modificado %s, publicación %s\n  %s\n",
		ReviewSummaryNoDate: "tras aprobación",
	},
}

// getTemplates returns templates for the given locale, falling back to English.
func getTemplates(locale Locale) *emailTemplates {
	if t, ok := templates[locale]; ok {
		return t
	}
	return templates[DefaultLocale]
}

// ModeChangeEmail returns localized subject and body for a publish mode
// change. description is the notification text.
func ModeChangeEmail(locale Locale, name, title, description, projectURL string) (subject, body string) {
	t := getTemplates(locale)
	return fmt.Sprintf(t.ModeChangeSubject, title),
		fmt.Sprintf(t.ModeChangeBody, name, description, projectURL)
}

// ReviewItem is one project of the review summary.
type ReviewItem struct {
	Title   string
	Author  string
	Updated string
	// PublishOn is empty when the project has no minimum publication date.
	PublishOn string
	URL       string
}

// ReviewSummaryEmail returns localized subject and body for the staff
// summary of projects in review.
func ReviewSummaryEmail(locale Locale, total int, items []ReviewItem) (subject, body string) {
	t := getTemplates(locale)
	var sb strings.Builder
	for _, it := range items {
		on := it.PublishOn
		if on == "" {
			on = t.ReviewSummaryNoDate
		}
		fmt.Fprintf(&sb, t.ReviewSummaryItem, it.Title, it.Author, it.Updated, on, it.URL)
	}
	return fmt.Sprintf(t.ReviewSummarySubject, total),
		fmt.Sprintf(t.ReviewSummaryBody, total, sb.String())
}

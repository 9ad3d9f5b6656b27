package email

import (
	"strings"
	"testing"
)

func TestParseLocale(t *testing.T) {
	for in, want := range map[string]Locale{"fr": LocaleFR, "es": LocaleES, "": LocaleEN, "jp": LocaleEN} {
		if got := ParseLocale(in); got != want {
			t.Errorf("ParseLocale(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestModeChangeEmail(t *testing.T) {
	desc := `Project "Robots" has moved from "In Edit" to "In Review".`
	for _, l := range []Locale{LocaleEN, LocaleFR, LocaleDE, LocaleES} {
		t.Run(string(l), func(t *testing.T) {
			subject, body := ModeChangeEmail(l, "Ada", "Robots", desc, "https://example.com/app/project/1/")
			if !strings.Contains(subject, "Robots") {
				t.Errorf("subject %q lacks the title", subject)
			}
			for _, s := range []string{"Ada", desc, "https://example.com/app/project/1/"} {
				if !strings.Contains(body, s) {
					t.Errorf("body lacks %q:\n%s", s, body)
				}
			}
			if strings.Contains(body, "%!") {
				t.Errorf("bad format verbs:\n%s", body)
			}
		})
	}
}

func TestReviewSummaryEmail(t *testing.T) {
	items := []ReviewItem{
		{Title: "Robots", Author: "Ada", Updated: "2026-01-02 10:00:00 UTC", PublishOn: "2026-02-01 09:00 UTC", URL: "https://x/1"},
		{Title: "Bridges", Author: "Grace", Updated: "2026-01-01 10:00:00 UTC", URL: "https://x/2"},
	}
	subject, body := ReviewSummaryEmail(LocaleEN, 7, items)
	if subject != "7 projects waiting for review" {
		t.Errorf("subject = %q", subject)
	}
	for _, s := range []string{`"Robots" by Ada`, "publish on 2026-02-01 09:00 UTC", "publish on approval", "https://x/2"} {
		if !strings.Contains(body, s) {
			t.Errorf("body lacks %q:\n%s", s, body)
		}
	}
}

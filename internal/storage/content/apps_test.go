package content

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestApps(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		a := DefaultApps()
		want := []string{"video", "123dcircuits", "tinkercad", "standalone", "instructables", "lagoa"}
		if got := a.Names(); !slices.Equal(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
		if !a.IsStepless("video") || !a.IsStepless("instructables") || a.IsStepless("tinkercad") {
			t.Error("stepless set is wrong")
		}
		app, ok := a.Get("123dcircuits")
		if !ok || app.RequiredBlobKey != "startCircuitId" {
			t.Errorf("got %+v", app)
		}
		if a.IsStepless("unknown") {
			t.Error("unknown app is stepless")
		}
	})

	t.Run("LoadOverride", func(t *testing.T) {
		dir := t.TempDir()
		a, err := LoadApps(dir)
		if err != nil {
			t.Fatalf("LoadApps failed: %v", err)
		}
		if len(a.All()) != 6 {
			t.Errorf("got %d apps, want 6", len(a.All()))
		}
		data := "apps:\n  - name: scratch\n    display_name: Scratch\n    enabled: true\n    stepless: true\n"
		if err := os.WriteFile(filepath.Join(dir, "lesson_apps.yaml"), []byte(data), 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		a, err = LoadApps(dir)
		if err != nil {
			t.Fatalf("LoadApps failed: %v", err)
		}
		if got := a.Names(); !slices.Equal(got, []string{"scratch"}) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		cases := map[string]string{
			"Empty":     "apps: []\n",
			"NoName":    "apps:\n  - display_name: X\n",
			"Duplicate": "apps:\n  - name: a\n  - name: a\n",
			"BlobNoMsg": "apps:\n  - name: a\n    required_blob_key: k\n",
			"NotYAML":   "apps: [",
		}
		for name, data := range cases {
			t.Run(name, func(t *testing.T) {
				if _, err := ParseApps([]byte(data)); err == nil {
					t.Error("ParseApps should fail")
				}
			})
		}
	})
}

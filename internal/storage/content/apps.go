// Loads the catalogue of lesson application types.

package content

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed lesson_apps.yaml
var defaultAppsYAML []byte

// App describes a lesson application type.
type App struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	// Enabled controls whether new lessons may use this type.
	Enabled bool `yaml:"enabled"`
	// Stepless lessons do not need steps before publishing.
	Stepless bool `yaml:"stepless"`
	// RequiredBlobKey names the application_blob entry that must be non-empty
	// before publishing.
	RequiredBlobKey     string `yaml:"required_blob_key"`
	RequiredBlobMessage string `yaml:"required_blob_message"`
}

// Apps is an immutable application catalogue.
type Apps struct {
	list   []App
	byName map[string]int
}

// ParseApps decodes a YAML catalogue.
func ParseApps(data []byte) (*Apps, error) {
	var doc struct {
		Apps []App `yaml:"apps"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse lesson apps: %w", err)
	}
	if len(doc.Apps) == 0 {
		return nil, errors.New("lesson apps catalogue is empty")
	}
	a := &Apps{list: doc.Apps, byName: make(map[string]int, len(doc.Apps))}
	for i, app := range doc.Apps {
		if app.Name == "" {
			return nil, fmt.Errorf("lesson app #%d has no name", i)
		}
		if _, ok := a.byName[app.Name]; ok {
			return nil, fmt.Errorf("duplicate lesson app %q", app.Name)
		}
		if app.RequiredBlobKey != "" && app.RequiredBlobMessage == "" {
			return nil, fmt.Errorf("lesson app %q: required_blob_message is required with required_blob_key", app.Name)
		}
		a.byName[app.Name] = i
	}
	return a, nil
}

// DefaultApps returns the built-in catalogue.
func DefaultApps() *Apps {
	a, err := ParseApps(defaultAppsYAML)
	if err != nil {
		panic(err)
	}
	return a
}

// LoadApps reads dataDir/lesson_apps.yaml, falling back to the built-in
// catalogue when the file does not exist.
func LoadApps(dataDir string) (*Apps, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, "lesson_apps.yaml")) //nolint:gosec // G304: path is constructed from dataDir
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultApps(), nil
		}
		return nil, fmt.Errorf("failed to read lesson_apps.yaml: %w", err)
	}
	return ParseApps(data)
}

// Get returns the application named name.
func (a *Apps) Get(name string) (App, bool) {
	i, ok := a.byName[name]
	if !ok {
		return App{}, false
	}
	return a.list[i], true
}

// IsStepless reports whether lessons of this type need no steps.
func (a *Apps) IsStepless(name string) bool {
	app, ok := a.Get(name)
	return ok && app.Stepless
}

// All returns the catalogue in display order.
func (a *Apps) All() []App {
	out := make([]App, len(a.list))
	copy(out, a.list)
	return out
}

// Names returns the application names in display order.
func (a *Apps) Names() []string {
	names := make([]string, len(a.list))
	for i, app := range a.list {
		names[i] = app.Name
	}
	return names
}

func (a *Apps) validate(name string) error {
	app, ok := a.Get(name)
	if !ok || !app.Enabled {
		return fmt.Errorf("%w: %q", errUnknownApplication, name)
	}
	return nil
}

// Package buildspec loads and validates the project descriptors consumed by the
// packaging pipelines.
//
// A Buildozer project is described by a buildozer.spec INI file, while a Qt for
// Python project carries an androiddeployqt JSON descriptor. Both loaders keep
// validation separate from parsing so that preflight checks can report every
// problem before any packaging tool runs.
package buildspec

import (
	"errors"
	"fmt"
	"os"

	"github.com/ubuntu/decorate"
	"gopkg.in/ini.v1"
)

// ErrSpecNotFound is returned when the project descriptor file does not exist.
var ErrSpecNotFound = errors.New("project descriptor not found")

// Buildozer holds the fields read from a buildozer.spec project descriptor.
type Buildozer struct {
	Title        string
	Package      string
	Domain       string
	SourceDir    string
	Version      string
	Requirements string

	// Path is the location the descriptor was loaded from.
	Path string
}

// LoadBuildozer reads the buildozer.spec file at path.
func LoadBuildozer(path string) (b Buildozer, err error) {
	defer decorate.OnError(&err, "could not load %s", path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Buildozer{}, ErrSpecNotFound
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return Buildozer{}, err
	}

	app := cfg.Section("app")
	return Buildozer{
		Title:        app.Key("title").String(),
		Package:      app.Key("package.name").String(),
		Domain:       app.Key("package.domain").String(),
		SourceDir:    app.Key("source.dir").String(),
		Version:      app.Key("version").String(),
		Requirements: app.Key("requirements").String(),

		Path: path,
	}, nil
}

// Validate checks that the descriptor carries every field the Buildozer
// pipeline needs, reporting all missing fields at once.
func (b Buildozer) Validate() error {
	var errs error

	required := []struct {
		name  string
		value string
	}{
		{"app.title", b.Title},
		{"app.package.name", b.Package},
		{"app.package.domain", b.Domain},
		{"app.source.dir", b.SourceDir},
		{"app.version", b.Version},
	}
	for _, r := range required {
		if r.value == "" {
			errs = errors.Join(errs, fmt.Errorf("missing required key %s", r.name))
		}
	}

	if errs != nil {
		return fmt.Errorf("invalid buildozer spec %s: %w", b.Path, errs)
	}
	return nil
}

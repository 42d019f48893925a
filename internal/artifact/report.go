package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/droidforge/droidforge/internal/constants"
	"github.com/droidforge/droidforge/internal/fileutils"
)

var (
	// ErrInvalidReportExt is returned when a report file has an invalid extension.
	ErrInvalidReportExt = errors.New("invalid report file extension")

	// ErrInvalidReportName is returned when a report file has an invalid name that can't be parsed.
	ErrInvalidReportName = errors.New("invalid report file name")
)

// Report describes one pipeline run.
type Report struct {
	RunID      string       `json:"runId"`
	Pipeline   string       `json:"pipeline"`
	StartedAt  time.Time    `json:"startedAt"`
	DurationMS int64        `json:"durationMs"`
	ExitCode   int          `json:"exitCode"`
	CacheHit   bool         `json:"cacheHit"`
	Steps      []StepResult `json:"steps"`
	Artifacts  []Artifact   `json:"artifacts"`
	Error      string       `json:"error,omitempty"`
}

// StepResult records the outcome of one pipeline step.
type StepResult struct {
	Name       string `json:"name"`
	DurationMS int64  `json:"durationMs"`
	ExitCode   int    `json:"exitCode"`
	Error      string `json:"error,omitempty"`
}

// File is a handle to a run report on disk, named <unix timestamp>.json.
type File struct {
	Path      string // Path is the path to the report file.
	Name      string // Name is the name of the report file, including extension.
	TimeStamp int64  // TimeStamp is the timestamp of the report.

	stash stash
}

// stash holds a report's previous location and data for movement undo.
type stash struct {
	Path string
	Data []byte
}

// NewFile creates a File handle from a path.
// It does not touch the file system or validate that the file exists.
func NewFile(path string) (File, error) {
	if filepath.Ext(path) != constants.ReportExtension {
		return File{}, ErrInvalidReportExt
	}

	base := filepath.Base(path)
	ts, err := strconv.ParseInt(strings.TrimSuffix(base, filepath.Ext(base)), 10, 64)
	if err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrInvalidReportName, err)
	}

	return File{Path: path, Name: base, TimeStamp: ts}, nil
}

// ReadJSON reads the JSON data from the report file.
func (f File) ReadJSON() ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %v", err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid JSON data in report file")
	}

	return data, nil
}

// ArtifactsDir is the sibling directory holding the run's packaged binaries.
// The directory may not exist for runs which failed before packaging.
func (f File) ArtifactsDir() string {
	return strings.TrimSuffix(f.Path, filepath.Ext(f.Path))
}

// MarkAsProcessed moves the report and its artifacts directory to dest, and
// writes data to the moved report. The original report is removed.
//
// The new handle is returned, and the original data is stashed for use with
// UndoProcessed. Calling MarkAsProcessed multiple times on the same report
// overwrites the stashed data.
func (f File) MarkAsProcessed(dest string, data []byte) (File, error) {
	origData, err := f.ReadJSON()
	if err != nil {
		return File{}, fmt.Errorf("failed to read original report: %v", err)
	}

	moved := File{Path: filepath.Join(dest, f.Name), Name: f.Name, TimeStamp: f.TimeStamp,
		stash: stash{Path: f.Path, Data: origData}}

	if err := fileutils.AtomicWrite(moved.Path, data); err != nil {
		return File{}, fmt.Errorf("failed to write report: %v", err)
	}

	if err := os.Remove(f.Path); err != nil {
		return File{}, fmt.Errorf("failed to remove report: %v", err)
	}

	if err := moveDirIfExists(f.ArtifactsDir(), moved.ArtifactsDir()); err != nil {
		return File{}, fmt.Errorf("failed to move artifacts: %v", err)
	}

	return moved, nil
}

// UndoProcessed moves the report and its artifacts directory back to the
// original location, restoring the original data.
func (f File) UndoProcessed() (File, error) {
	if f.stash.Path == "" {
		return File{}, errors.New("no stashed data to restore")
	}

	if err := fileutils.AtomicWrite(f.stash.Path, f.stash.Data); err != nil {
		return File{}, fmt.Errorf("failed to write report: %v", err)
	}

	if err := os.Remove(f.Path); err != nil {
		return File{}, fmt.Errorf("failed to remove report: %v", err)
	}

	restored := File{Path: f.stash.Path, Name: f.Name, TimeStamp: f.TimeStamp}
	if err := moveDirIfExists(f.ArtifactsDir(), restored.ArtifactsDir()); err != nil {
		return File{}, fmt.Errorf("failed to move artifacts: %v", err)
	}

	return restored, nil
}

// GetAll returns handles for all reports in a given directory.
// It does not traverse subdirectories.
func GetAll(dir string) ([]File, error) {
	files := make([]File, 0)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path: %v", err)
		}

		if d.IsDir() && path != dir {
			return filepath.SkipDir
		}
		if d.IsDir() {
			return nil
		}

		f, err := NewFile(path)
		if errors.Is(err, ErrInvalidReportExt) || errors.Is(err, ErrInvalidReportName) {
			slog.Info("Skipping non-report file", "file", d.Name(), "error", err)
			return nil
		} else if err != nil {
			return fmt.Errorf("failed to create report handle: %v", err)
		}

		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

func moveDirIfExists(src, dst string) error {
	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}

	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

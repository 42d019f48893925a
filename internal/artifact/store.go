package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/droidforge/droidforge/internal/constants"
	"github.com/droidforge/droidforge/internal/fileutils"
	"github.com/ubuntu/decorate"
)

// Store lays out collected runs on disk.
type Store struct {
	root string
}

// NewStore returns a store rooted at root.
func NewStore(root string) Store {
	return Store{root: root}
}

// Collected is the directory holding runs waiting for upload.
func (s Store) Collected(pipeline string) string {
	return filepath.Join(s.root, pipeline, "collected")
}

// Uploaded is the directory holding runs already uploaded.
func (s Store) Uploaded(pipeline string) string {
	return filepath.Join(s.root, pipeline, "uploaded")
}

// RunDir is the directory artifacts of a run starting at startedAt are
// collected into, sibling to the report file SaveReport writes.
func (s Store) RunDir(pipeline string, startedAt time.Time) string {
	return filepath.Join(s.Collected(pipeline), strconv.FormatInt(startedAt.Unix(), 10))
}

// SaveReport persists r under the pipeline's collected directory and returns
// a handle to the written file.
func (s Store) SaveReport(r Report) (f File, err error) {
	defer decorate.OnError(&err, "could not save report for %s", r.Pipeline)

	if r.Pipeline == "" {
		return File{}, fmt.Errorf("report carries no pipeline name")
	}

	dir := s.Collected(r.Pipeline)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return File{}, err
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return File{}, err
	}

	path := filepath.Join(dir, strconv.FormatInt(r.StartedAt.Unix(), 10)+constants.ReportExtension)
	if err := fileutils.AtomicWrite(path, data); err != nil {
		return File{}, err
	}

	return NewFile(path)
}

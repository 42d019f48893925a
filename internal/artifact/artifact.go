// Package artifact collects the files a pipeline run produced and persists
// the run reports which describe them.
//
// Collected runs live under a per-pipeline directory pair: collected/ holds
// runs waiting for upload and uploaded/ holds runs already sent. A run is one
// report file named after the run's start timestamp plus a sibling directory
// with the packaged binaries.
package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/droidforge/droidforge/internal/fileutils"
	"github.com/ubuntu/decorate"
)

// Artifact describes one collected file.
type Artifact struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Collect copies the files matching patterns under dir into dstDir and
// returns their descriptions sorted by name.
//
// It returns an error when fewer than minCount or more than maxCount files
// match. A maxCount of zero or less means unbounded. Patterns follow
// filepath.Glob syntax and are relative to dir.
func Collect(dir string, patterns []string, minCount, maxCount int, dstDir string) (artifacts []Artifact, err error) {
	defer decorate.OnError(&err, "could not collect artifacts from %s", dir)

	seen := make(map[string]struct{})
	var matches []string
	for _, pattern := range patterns {
		m, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid artifact pattern %q: %w", pattern, err)
		}
		for _, path := range m {
			if _, ok := seen[path]; ok {
				continue
			}
			seen[path] = struct{}{}
			matches = append(matches, path)
		}
	}
	sort.Strings(matches)

	if len(matches) < minCount {
		return nil, fmt.Errorf("expected at least %d file(s) matching %v, found %d", minCount, patterns, len(matches))
	}
	if maxCount > 0 && len(matches) > maxCount {
		return nil, fmt.Errorf("expected at most %d file(s) matching %v, found %d: %v", maxCount, patterns, len(matches), matches)
	}

	if err := os.MkdirAll(dstDir, 0750); err != nil {
		return nil, err
	}

	for _, path := range matches {
		a, err := copyArtifact(path, dstDir)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}

	return artifacts, nil
}

func copyArtifact(path, dstDir string) (Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	if !info.Mode().IsRegular() {
		return Artifact{}, fmt.Errorf("%s is not a regular file", path)
	}

	src, err := os.Open(path)
	if err != nil {
		return Artifact{}, err
	}
	defer src.Close()

	dstPath := filepath.Join(dstDir, filepath.Base(path))
	dst, err := os.Create(dstPath)
	if err != nil {
		return Artifact{}, err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return Artifact{}, fmt.Errorf("could not copy %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		return Artifact{}, err
	}

	hash, err := fileutils.Sha256File(dstPath)
	if err != nil {
		return Artifact{}, err
	}

	return Artifact{
		Name:   filepath.Base(path),
		Size:   info.Size(),
		SHA256: hash,
	}, nil
}

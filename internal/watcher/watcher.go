// Package watcher reports new commits landing on a branch of a local git
// repository, so watch mode can trigger a packaging run per push.
package watcher

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const packedRefsFile = "packed-refs"

// Watcher emits the new head revision when the watched branch moves.
type Watcher struct {
	projectDir string
	branch     string

	debounce time.Duration
}

type options struct {
	debounce time.Duration
}

// Options represents an optional function to override Watcher default values.
type Options func(*options)

// New returns a Watcher for the given branch of the repository at projectDir.
func New(projectDir, branch string, args ...Options) *Watcher {
	opts := options{
		debounce: 2 * time.Second,
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Watcher{
		projectDir: projectDir,
		branch:     branch,
		debounce:   opts.debounce,
	}
}

// Watch starts watching the repository for branch movements.
//
// It returns a channel of new head revisions and another for unrecoverable
// watcher errors. Updates arriving in quick succession are coalesced, and
// only the latest revision is reported.
func (w *Watcher) Watch(ctx context.Context) (revisions <-chan string, errors <-chan error, err error) {
	gitDir := filepath.Join(w.projectDir, ".git")
	if info, err := os.Stat(gitDir); err != nil || !info.IsDir() {
		return nil, nil, fmt.Errorf("%s is not a git repository", w.projectDir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %v", err)
	}

	// The branch ref file is replaced on update, so watch its directory.
	// packed-refs lives at the top of the git dir.
	if err := watcher.Add(gitDir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to add directory %s to watcher: %v", gitDir, err)
	}
	headsDir := filepath.Join(gitDir, "refs", "heads")
	if info, err := os.Stat(headsDir); err == nil && info.IsDir() {
		if err := watcher.Add(headsDir); err != nil {
			watcher.Close()
			return nil, nil, fmt.Errorf("failed to add directory %s to watcher: %v", headsDir, err)
		}
	}

	lastRev, err := w.head()
	if err != nil {
		slog.Warn("Could not resolve current head, reporting the first update as new", "branch", w.branch, "error", err)
	}

	slog.Info("Watching repository", "dir", w.projectDir, "branch", w.branch)
	revisionsCh := make(chan string, 1)
	errorsCh := make(chan error, 1)

	debounceTimer := time.NewTimer(w.debounce)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}

	go func() {
		defer close(revisionsCh)
		defer close(errorsCh)
		defer watcher.Close()
		defer debounceTimer.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("Repository watcher stopped")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					errorsCh <- fmt.Errorf("watcher events channel closed unexpectedly")
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if base := filepath.Base(event.Name); base != w.branch && base != packedRefsFile {
					continue
				}

				if !debounceTimer.Stop() {
					select {
					case <-debounceTimer.C:
					default:
					}
				}
				debounceTimer.Reset(w.debounce)

			case <-debounceTimer.C:
				rev, err := w.head()
				if err != nil {
					slog.Warn("Could not resolve head after update", "branch", w.branch, "error", err)
					continue
				}
				if rev == "" || rev == lastRev {
					continue
				}
				lastRev = rev

				slog.Debug("Branch moved", "branch", w.branch, "revision", rev)
				select {
				case revisionsCh <- rev:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					errorsCh <- fmt.Errorf("watcher errors channel closed unexpectedly")
					return
				}
				slog.Warn("Watcher error", "error", err)
			}
		}
	}()

	return revisionsCh, errorsCh, nil
}

// head resolves the branch to a revision, preferring the loose ref and
// falling back to packed-refs.
func (w *Watcher) head() (string, error) {
	refPath := filepath.Join(w.projectDir, ".git", "refs", "heads", w.branch)
	data, err := os.ReadFile(refPath)
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read branch ref: %v", err)
	}

	return w.packedHead()
}

func (w *Watcher) packedHead() (string, error) {
	f, err := os.Open(filepath.Join(w.projectDir, ".git", packedRefsFile))
	if os.IsNotExist(err) {
		// Unborn branch: nothing to report yet.
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read packed refs: %v", err)
	}
	defer f.Close()

	want := "refs/heads/" + w.branch
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "^") {
			continue
		}
		rev, ref, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		if ref == want {
			return rev, nil
		}
	}

	return "", scanner.Err()
}

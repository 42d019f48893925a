package uploader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/droidforge/droidforge/internal/artifact"
)

// UploadAll concurrently uploads the runs of all the provided pipelines.
//
// If retry is true, failed sends are retried with a backoff period.
func (m Manager) UploadAll(pipelines []string, force, retry bool) error {
	var uploadError error
	mu := &sync.Mutex{}
	var wg sync.WaitGroup
	for _, pipeline := range pipelines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if retry {
				err = m.BackoffUpload(pipeline, force)
			} else {
				err = m.Upload(pipeline, force)
			}

			if err != nil {
				errMsg := fmt.Errorf("failed to upload runs for pipeline %s: %v", pipeline, err)
				mu.Lock()
				defer mu.Unlock()
				uploadError = errors.Join(uploadError, errMsg)
			}
		}()
	}
	wg.Wait()

	return uploadError
}

// Upload uploads the collected runs of a pipeline to the configured server.
//
// It will only upload runs that are mature enough, and have not been uploaded before.
// If force is true, maturity and duplicate checks will be skipped.
func (m Manager) Upload(pipeline string, force bool) error {
	slog.Debug("Uploading runs", "pipeline", pipeline)

	if pipeline == "" {
		return errors.New("pipeline cannot be an empty string")
	}

	collectedDir := m.store.Collected(pipeline)
	uploadedDir := m.store.Uploaded(pipeline)
	if err := makeDirs(collectedDir, uploadedDir); err != nil {
		return err
	}

	runs, err := artifact.GetAll(collectedDir)
	if err != nil {
		return fmt.Errorf("failed to get runs: %v", err)
	}

	url, err := m.getURL(pipeline)
	if err != nil {
		return fmt.Errorf("failed to get URL: %v", err)
	}

	mu := &sync.Mutex{}
	var uploadError error
	var wg sync.WaitGroup
	for _, r := range runs {
		wg.Add(1)
		go func(r artifact.File) {
			defer wg.Done()
			err := m.upload(r, uploadedDir, url, force)
			if errors.Is(err, ErrRunNotMature) {
				slog.Debug("Skipped run upload, not mature enough", "file", r.Name, "pipeline", pipeline)
			} else if err != nil {
				slog.Warn("Failed to upload run", "file", r.Name, "pipeline", pipeline, "error", err)
				mu.Lock()
				defer mu.Unlock()
				uploadError = errors.Join(uploadError, fmt.Errorf("%s upload failed for run %s: %w", pipeline, r.Name, err))
			}
		}(r)
	}
	wg.Wait()

	return uploadError
}

// BackoffUpload behaves like Upload, but if there are any send errors, it will retry the upload after a backoff period.
// The backoff period is an exponential backoff with full jitter, capped at the configured maximum retry period.
// If the maximum number of attempts is reached, it stops retrying and returns the last error.
func (m Manager) BackoffUpload(pipeline string, force bool) (err error) {
	slog.Debug("Uploading runs with backoff", "pipeline", pipeline)

	attempts := 0
	for {
		err = m.Upload(pipeline, force)
		if !errors.Is(err, ErrSendFailure) {
			break
		}

		exp := min(m.baseRetryPeriod*(1<<attempts), m.maxRetryPeriod)
		wait := time.Duration(rand.Int63n(int64(max(exp, 1)))) // #nosec:G404 We don't need cryptographic randomness.

		attempts++
		if attempts > m.maxAttempts {
			slog.Warn("Maximum upload attempts reached, giving up", "attempts", attempts)
			break
		}
		slog.Warn("Failed to send runs, retrying upload after backoff period", "seconds", wait.Seconds(), "error", err)
		time.Sleep(wait)
	}

	return err
}

// upload uploads an individual run to the server. It returns an error if the run
// is not mature enough to be uploaded, or if the upload fails.
// It also moves the run to the uploaded directory after a successful upload.
func (m Manager) upload(r artifact.File, uploadedDir, url string, force bool) error {
	slog.Debug("Uploading run", "file", r.Name, "force", force)

	if m.timeProvider.Now().Add(-m.minAge).Before(time.Unix(r.TimeStamp, 0)) && !force {
		return ErrRunNotMature
	}

	// Check for duplicate runs.
	_, err := os.Stat(filepath.Join(uploadedDir, r.Name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to check if run has already been uploaded: %v", err)
	}
	if err == nil && !force {
		return fmt.Errorf("run has already been uploaded")
	}

	data, err := r.ReadJSON()
	if err != nil {
		return fmt.Errorf("failed to read report: %v", err)
	}
	slog.Debug("Uploading", "payload", data)

	if m.dryRun {
		slog.Debug("Dry run, skipping upload")
		return nil
	}

	// Move the run first to avoid the situation where it is sent, but not marked as sent.
	r, err = r.MarkAsProcessed(uploadedDir, data)
	if err != nil {
		return fmt.Errorf("failed to mark run as uploaded: %v", err)
	}
	if err := m.send(r, url, data); err != nil {
		if _, undoErr := r.UndoProcessed(); undoErr != nil {
			return fmt.Errorf("failed to send run: %v, and failed to restore it: %v", err, undoErr)
		}
		return fmt.Errorf("failed to send run: %w", err)
	}

	return nil
}

// send posts the run report, then each packaged file from the run's artifacts directory.
func (m Manager) send(r artifact.File, url string, data []byte) error {
	if err := m.post(url, "application/json", bytes.NewBuffer(data)); err != nil {
		return err
	}

	if m.reportsOnly {
		return nil
	}

	entries, err := os.ReadDir(r.ArtifactsDir())
	if os.IsNotExist(err) {
		// Runs which failed before packaging have no artifacts.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list run artifacts: %v", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := m.sendArtifact(r, url, entry.Name()); err != nil {
			return fmt.Errorf("artifact %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func (m Manager) sendArtifact(r artifact.File, baseURL, name string) error {
	f, err := os.Open(filepath.Join(r.ArtifactsDir(), name))
	if err != nil {
		return fmt.Errorf("failed to open artifact: %v", err)
	}
	defer f.Close()

	target := baseURL + "/artifact/" + strconv.FormatInt(r.TimeStamp, 10) + "/" + url.PathEscape(name)
	return m.post(target, "application/octet-stream", f)
}

func (m Manager) post(url, contentType string, body io.Reader) error {
	slog.Debug("Sending data to server", "url", url)
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)

	client := &http.Client{Timeout: m.responseTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Join(ErrSendFailure, fmt.Errorf("failed to send HTTP request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return errors.Join(ErrSendFailure, fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	return nil
}

func (m Manager) getURL(pipeline string) (string, error) {
	u, err := url.Parse(m.baseServerURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse base server URL %s: %v", m.baseServerURL, err)
	}
	u.Path = path.Join(u.Path, "upload", pipeline)
	return u.String(), nil
}

// makeDirs creates the directories for the collected and uploaded runs if they don't already exist.
func makeDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %v", dir, err)
		}
	}
	return nil
}

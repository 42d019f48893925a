package handlers

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/droidforge/droidforge/internal/constants"
	"github.com/droidforge/droidforge/internal/fileutils"
	"github.com/google/uuid"
)

// apkMagic is the ZIP archive signature every packaged APK starts with.
var apkMagic = []byte("PK")

// Artifact is a handler for uploading build artifacts tied to a previously reported run.
type Artifact struct {
	config        ConfigProvider
	artifactsDir  string
	maxUploadSize int64
}

// NewArtifact creates a new Artifact handler which stores artifacts under artifactsDir.
func NewArtifact(cfg ConfigProvider, artifactsDir string, maxUploadSize int64) *Artifact {
	return &Artifact{
		config:        cfg,
		artifactsDir:  artifactsDir,
		maxUploadSize: maxUploadSize,
	}
}

// ServeHTTP handles incoming HTTP requests for artifact uploads.
//
// Artifacts are stored under <artifactsDir>/<pipeline>/<run>/<name>, where run
// is the Unix timestamp of the reported run.
func (h *Artifact) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New().String()
	pipeline, ok := cleanPathElem(r.PathValue("pipeline"))
	if !ok {
		http.Error(w, "Invalid pipeline name in URL", http.StatusForbidden)
		return
	}

	slog.Info("Artifact upload request recv'd", "req_id", reqID, "pipeline", pipeline)

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.config.IsAllowed(pipeline) {
		http.Error(w, "Invalid pipeline name in URL", http.StatusForbidden)
		slog.Error("Pipeline is not in the allow list", "req_id", reqID, "pipeline", pipeline)
		return
	}

	run := r.PathValue("run")
	if _, err := strconv.ParseInt(run, 10, 64); err != nil {
		http.Error(w, "Invalid run identifier in URL", http.StatusBadRequest)
		slog.Error("Run identifier is not a timestamp", "req_id", reqID, "pipeline", pipeline, "run", run)
		return
	}

	name, ok := cleanPathElem(r.PathValue("name"))
	if !ok {
		http.Error(w, "Invalid artifact name in URL", http.StatusBadRequest)
		slog.Error("Invalid artifact name", "req_id", reqID, "pipeline", pipeline)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		slog.Error("Error reading the artifact", "req_id", reqID, "pipeline", pipeline, "name", name, "err", err)
		return
	}
	if len(data) == 0 {
		http.Error(w, "Empty artifact", http.StatusBadRequest)
		slog.Error("Empty artifact uploaded", "req_id", reqID, "pipeline", pipeline, "name", name)
		return
	}
	if strings.EqualFold(filepath.Ext(name), constants.ArtifactExtension) && !bytes.HasPrefix(data, apkMagic) {
		http.Error(w, "Artifact is not a valid APK", http.StatusBadRequest)
		slog.Error("Artifact does not look like an APK", "req_id", reqID, "pipeline", pipeline, "name", name)
		return
	}

	targetDir := filepath.Join(h.artifactsDir, pipeline, run)
	if err := os.MkdirAll(targetDir, 0750); err != nil {
		http.Error(w, "Error creating directory", http.StatusInternalServerError)
		slog.Error("Error creating directory", "req_id", reqID, "pipeline", pipeline, "target", targetDir, "err", err)
		return
	}

	targetPath := filepath.Join(targetDir, name)
	if err := fileutils.AtomicWrite(targetPath, data); err != nil {
		http.Error(w, "Error saving file", http.StatusInternalServerError)
		slog.Error("Error saving file", "req_id", reqID, "pipeline", pipeline, "target", targetPath, "err", err)
		return
	}

	slog.Info("Artifact successfully uploaded", "req_id", reqID, "pipeline", pipeline, "target", targetPath)
	w.WriteHeader(http.StatusAccepted)
}

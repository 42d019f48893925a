package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/droidforge/droidforge/internal/fileutils"
	"github.com/google/uuid"
)

// Upload is a handler for uploading JSON build reports.
type Upload struct {
	config        ConfigProvider
	reportsDir    string
	maxUploadSize int64
}

// NewUpload creates a new Upload handler which stores reports under reportsDir.
func NewUpload(cfg ConfigProvider, reportsDir string, maxUploadSize int64) *Upload {
	return &Upload{
		config:        cfg,
		reportsDir:    reportsDir,
		maxUploadSize: maxUploadSize,
	}
}

// ServeHTTP handles incoming HTTP requests for JSON build report uploads.
func (h *Upload) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New().String()
	pipeline, ok := cleanPathElem(r.PathValue("pipeline"))
	if !ok {
		http.Error(w, "Invalid pipeline name in URL", http.StatusForbidden)
		return
	}

	slog.Info("Report upload request recv'd", "req_id", reqID, "pipeline", pipeline)

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.config.IsAllowed(pipeline) {
		http.Error(w, "Invalid pipeline name in URL", http.StatusForbidden)
		slog.Error("Pipeline is not in the allow list", "req_id", reqID, "pipeline", pipeline)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	jsonData, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		slog.Error("Error reading the report", "req_id", reqID, "pipeline", pipeline, "err", err)
		return
	}
	if !json.Valid(jsonData) {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		slog.Error("Invalid JSON in uploaded report", "req_id", reqID, "pipeline", pipeline)
		return
	}

	targetDir := filepath.Join(h.reportsDir, pipeline)
	if err := os.MkdirAll(targetDir, 0750); err != nil {
		http.Error(w, "Error creating directory", http.StatusInternalServerError)
		slog.Error("Error creating directory", "req_id", reqID, "pipeline", pipeline, "target", targetDir, "err", err)
		return
	}

	safeFilename := fmt.Sprintf("%s.json", reqID)
	targetPath := filepath.Join(targetDir, safeFilename)

	if err := fileutils.AtomicWrite(targetPath, jsonData); err != nil {
		http.Error(w, "Error saving file", http.StatusInternalServerError)
		slog.Error("Error saving file", "req_id", reqID, "pipeline", pipeline, "target", targetPath, "err", err)
		return
	}

	slog.Info("Report successfully uploaded", "req_id", reqID, "pipeline", pipeline, "target", targetPath)
	w.WriteHeader(http.StatusAccepted)
}

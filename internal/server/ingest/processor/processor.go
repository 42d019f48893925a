// Package processor provides the functionality to process received build report files.
// It includes functions to validate, read, and process reports, as well as upload them
// to a PostgreSQL database.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/droidforge/droidforge/internal/server/ingest/models"
	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrDatabaseErrors is returned when significant database errors occur during processing.
// It indicates more than a set threshold of report upload attempts have failed due to database issues.
var ErrDatabaseErrors = errors.New("database errors during processing surpassed threshold")

var (
	errNoValidData      = errors.New("report file has no valid data")
	errInvalidRunID     = errors.New("report run ID is not a valid UUID")
	errPipelineMismatch = errors.New("report pipeline does not match its directory")
	errUnexpectedFields = errors.New("file contains unexpected fields")
	errUploadFailed     = errors.New("failed to upload report to PostgreSQL database")
)

type database interface {
	UploadBuild(ctx context.Context, id, pipeline string, report *models.BuildReport) error
	UploadInvalid(ctx context.Context, id, pipeline, rawReport string) error
}

// Processor is responsible for processing build reports.
type Processor struct {
	reportsDir string
	db         database

	filesProcessed  *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	backlogFiles    *prometheus.GaugeVec
	backlogBytes    *prometheus.GaugeVec
	errorsTotal     *prometheus.CounterVec
}

// New creates a new Processor instance and registers its metrics with the provided registerer.
func New(reportsDir string, db database, reg prometheus.Registerer) (*Processor, error) {
	if reportsDir == "" {
		return nil, fmt.Errorf("reportsDir must be set")
	}

	if err := os.MkdirAll(reportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create reportsDir: %v", err)
	}

	p := &Processor{
		reportsDir: reportsDir,
		db:         db,

		filesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_processor_files_processed_total",
			Help: "Total number of report files processed, partitioned by pipeline and result.",
		}, []string{"pipeline", "result"}),
		processDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "ingest_processor_process_duration_seconds",
			Help: "Time spent in a single processing pass, partitioned by pipeline.",
		}, []string{"pipeline"}),
		backlogFiles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ingest_processor_backlog_files",
			Help: "Number of report files still waiting to be processed, partitioned by pipeline.",
		}, []string{"pipeline"}),
		backlogBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ingest_processor_backlog_bytes",
			Help: "Total size in bytes of report files still waiting to be processed, partitioned by pipeline.",
		}, []string{"pipeline"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_processor_errors_total",
			Help: "Total number of processing errors, partitioned by pipeline.",
		}, []string{"pipeline"}),
	}

	for _, c := range []prometheus.Collector{
		p.filesProcessed,
		p.processDuration,
		p.backlogFiles,
		p.backlogBytes,
		p.errorsTotal,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register processor metrics: %v", err)
		}
	}

	return p, nil
}

// Process processes all JSON report files for a pipeline, looking within the `reportsDir/pipeline` directory.
// It reads each file, decodes the JSON data into a BuildReport,
// and uploads the report to a PostgreSQL database.
// After processing, it removes the file from the filesystem.
//
// It returns an error if a catastrophic failure occurs, or if the number of failed uploads exceeds a threshold.
func (p Processor) Process(ctx context.Context, pipeline string) (err error) {
	const minimumSuccessRate = 0.85

	start := time.Now()
	defer func() {
		p.processDuration.WithLabelValues(pipeline).Observe(time.Since(start).Seconds())
		p.updateBacklog(pipeline)
	}()

	dir := filepath.Join(p.reportsDir, pipeline)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %q: %v", dir, err)
	}

	files, err := getJSONFiles(dir)
	if err != nil {
		p.errorsTotal.WithLabelValues(pipeline).Inc()
		return fmt.Errorf("failed to get JSON files: %v", err)
	}

	var (
		attemptCount = 0
		failureCount = 0
	)
	defer func() {
		// Check if over threshold of uploads failed
		if attemptCount > 0 && float64(failureCount)/float64(attemptCount) > (1-minimumSuccessRate) {
			err = errors.Join(ErrDatabaseErrors, err)
		}
	}()
	for _, file := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		reportID := getReportID(file)
		procErr := p.processAndUpload(ctx, file, reportID, pipeline)

		if procErr == nil || errors.Is(procErr, errUnexpectedFields) || errors.Is(procErr, errUploadFailed) {
			attemptCount++
		}

		if errors.Is(procErr, errUploadFailed) {
			failureCount++
			p.filesProcessed.WithLabelValues(pipeline, "failed").Inc()
			p.errorsTotal.WithLabelValues(pipeline).Inc()
			continue // If upload fails, skip postProcessing
		}

		switch {
		case procErr == nil:
			p.filesProcessed.WithLabelValues(pipeline, "processed").Inc()
		case errors.Is(procErr, errUnexpectedFields):
			p.filesProcessed.WithLabelValues(pipeline, "partial").Inc()
		default:
			p.filesProcessed.WithLabelValues(pipeline, "invalid").Inc()
		}

		if procErr != nil {
			// Keep a raw copy of anything that did not decode cleanly.
			uploadAttempted, err := p.uploadInvalid(ctx, file, reportID, pipeline)
			if err != nil {
				slog.Warn("Failed to upload invalid report", "file", file, "err", err)
			}
			if uploadAttempted {
				attemptCount++
				if err != nil {
					failureCount++
					p.errorsTotal.WithLabelValues(pipeline).Inc()
				}
			}
		}

		if err := os.Remove(file); err != nil {
			slog.Warn("Failed to remove file after processing", "file", file, "err", err)
			p.errorsTotal.WithLabelValues(pipeline).Inc()
		}

		slog.Info("Finished processing file", "file", file)
	}

	return nil
}

// processAndUpload processes a file, validates the report, and uploads it to the database.
//
// If upload fails, it returns errUploadFailed.
// If any error other than errUnexpectedFields or errUploadFailed is returned, upload was not attempted.
func (p Processor) processAndUpload(ctx context.Context, file, reportID, pipeline string) error {
	report, err := processFile(file)
	if err != nil {
		slog.Warn("Failed to process file", "file", file, "err", err)
		return err
	}
	validationErr := validateReport(pipeline, report)
	switch {
	case errors.Is(validationErr, errUnexpectedFields):
		slog.Warn("Failed to fully process file", "file", file, "err", validationErr)
		fallthrough
	case validationErr == nil:
		if err := p.db.UploadBuild(ctx, reportID, pipeline, report); err != nil {
			slog.Warn("Failed to upload report to PostgreSQL", "file", file, "err", err)
			return errors.Join(errUploadFailed, err)
		}
		slog.Info("Successfully processed and uploaded report", "file", file)
		return validationErr
	default:
		slog.Warn("File processed with errors, skipping upload", "file", file, "err", validationErr)
		return validationErr
	}
}

func validateReport(pipeline string, data *models.BuildReport) error {
	// Check if everything we expect (other than extras) is empty
	if data.RunID == "" &&
		data.Pipeline == "" &&
		data.StartedAt.IsZero() &&
		data.DurationMS == 0 &&
		data.Steps == nil &&
		data.Artifacts == nil &&
		data.Error == "" {
		return errNoValidData
	}

	if err := uuid.Validate(data.RunID); err != nil {
		return errors.Join(errInvalidRunID, err)
	}

	// The directory a report was received into is authoritative.
	if data.Pipeline != "" && data.Pipeline != pipeline {
		return errors.Join(errPipelineMismatch, fmt.Errorf("report claims pipeline %q", data.Pipeline))
	}

	// Check no extra data
	if data.Extras != nil {
		return errors.Join(errUnexpectedFields, fmt.Errorf("unexpected Extras field"))
	}

	for _, step := range data.Steps {
		if step.Extras != nil {
			return errors.Join(errUnexpectedFields, fmt.Errorf("unexpected Extras field in step %q", step.Name))
		}
	}

	for _, artifact := range data.Artifacts {
		if artifact.Extras != nil {
			return errors.Join(errUnexpectedFields, fmt.Errorf("unexpected Extras field in artifact %q", artifact.Name))
		}
	}

	return nil
}

func getJSONFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.Type().IsRegular() && filepath.Ext(path) == ".json" {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// getReportID extracts the report ID from the file path.
// If the file name does not contain a valid UUID, it logs a warning and generates a new UUID.
func getReportID(file string) string {
	reportID := filepath.Base(file)
	reportID = strings.TrimSuffix(reportID, filepath.Ext(reportID))

	if err := uuid.Validate(reportID); err != nil {
		reportID = uuid.NewString()
		slog.Warn("Report has invalid UUID, generating a new one", "file", file, "UUID", reportID, "err", err)
	}

	return reportID
}

// processFile reads a JSON file and decodes it into a BuildReport.
// It returns an error if the file is invalid or does not match the expected structure.
func processFile(file string) (*models.BuildReport, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	var jsonData map[string]any
	if err = json.Unmarshal(data, &jsonData); err != nil {
		return nil, errors.Join(errors.New("json file is invalid and could not be parsed"), err)
	}

	report := &models.BuildReport{}
	decoder, err := mapstructure.NewDecoder(getDecoderConfig(report))
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %v", err)
	}

	if err = decoder.Decode(jsonData); err != nil {
		return nil, errors.Join(errors.New("file data does not match expected model structure"), err)
	}

	return report, nil
}

// uploadInvalid reads the invalid file and uploads its content to the database as a string.
// It skips empty files or files that contain only whitespace, returning nil in those cases.
//
// If an upload was attempted, even if it failed, it returns true. Otherwise, it returns false.
func (p Processor) uploadInvalid(ctx context.Context, file, id, pipeline string) (bool, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return false, fmt.Errorf("failed to re-read invalid file %q: %v", file, err)
	}

	if len(data) == 0 || strings.TrimSpace(string(data)) == "" {
		slog.Info("Skipping upload of empty invalid file", "file", file)
		return false, nil // Skip empty files
	}

	var jsonFile = make(map[string]any)
	if err := json.Unmarshal(data, &jsonFile); err == nil {
		if len(jsonFile) == 0 {
			slog.Info("Skipping upload of empty JSON file", "file", file)
			return false, nil // Skip empty JSON files
		}
	}

	if err := p.db.UploadInvalid(ctx, id, pipeline, string(data)); err != nil {
		return true, errors.Join(errUploadFailed, err)
	}
	return true, nil
}

// updateBacklog refreshes the backlog gauges with what is still on disk for a pipeline.
func (p Processor) updateBacklog(pipeline string) {
	files, err := getJSONFiles(filepath.Join(p.reportsDir, pipeline))
	if err != nil {
		slog.Warn("Failed to measure report backlog", "pipeline", pipeline, "err", err)
		return
	}

	var bytes int64
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		bytes += info.Size()
	}

	p.backlogFiles.WithLabelValues(pipeline).Set(float64(len(files)))
	p.backlogBytes.WithLabelValues(pipeline).Set(float64(bytes))
}

func getDecoderConfig(target any) *mapstructure.DecoderConfig {
	return &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			// RFC 3339 timestamps arrive as strings on the wire.
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true,
		Result:           target,
	}
}

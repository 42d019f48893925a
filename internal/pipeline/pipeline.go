// Package pipeline sequences the packaging steps which turn a project
// directory into an Android package.
//
// A pipeline is a linear list of named steps executed fail-fast: the first
// step error aborts the run. Every run, aborted or not, ends with a build
// report persisted to the artifact store, so operators can inspect what
// happened and the uploader can ship the outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/droidforge/droidforge/internal/artifact"
	"github.com/droidforge/droidforge/internal/cmdutils"
	"github.com/google/uuid"
)

// buildLogName is the file the combined tool output of a run is captured to,
// stored alongside the run's artifacts.
const buildLogName = "build.log"

// Step is one named unit of a pipeline.
type Step struct {
	Name string
	Run  func(ctx context.Context, r *Run) error
}

// Definition is a named, ordered step list the runner can execute.
type Definition interface {
	Name() string
	Steps() []Step
}

// Run carries the mutable state of one pipeline execution, threaded through
// the steps.
type Run struct {
	ID         string
	Pipeline   string
	ProjectDir string
	StartedAt  time.Time

	// Log receives the combined output of every packaging tool.
	Log io.Writer

	// Env holds extra environment variables handed to the packaging tools,
	// threaded from step to step.
	Env []string

	// ArtifactsDir is where collected artifacts are copied, sibling to the
	// run report.
	ArtifactsDir string

	CacheHit  bool
	Artifacts []artifact.Artifact
}

type timeProvider interface {
	Now() time.Time
}

type realTimeProvider struct{}

func (realTimeProvider) Now() time.Time {
	return time.Now()
}

type options struct {
	env          []string
	timeProvider timeProvider
}

// Options is the function signature used to tweak the runner.
type Options func(*options)

// WithEnv sets extra KEY=VALUE environment variables handed to the packaging
// tools of every run.
func WithEnv(env []string) Options {
	return func(o *options) {
		o.env = env
	}
}

// Runner executes pipelines and persists their reports.
type Runner struct {
	store artifact.Store
	opts  options
}

// NewRunner returns a runner persisting run reports in store.
func NewRunner(store artifact.Store, args ...Options) Runner {
	opts := options{
		timeProvider: realTimeProvider{},
	}
	for _, opt := range args {
		opt(&opts)
	}

	return Runner{store: store, opts: opts}
}

// Run executes def against projectDir, streaming tool output to out.
func (r Runner) Run(ctx context.Context, def Definition, projectDir string, out io.Writer) (artifact.Report, error) {
	return r.Execute(ctx, def.Name(), projectDir, out, def.Steps())
}

// Execute runs steps in order against projectDir as pipeline name.
//
// The first step error aborts the run. The build report is written even for
// aborted runs; the report and the step error are both returned.
func (r Runner) Execute(ctx context.Context, name, projectDir string, out io.Writer, steps []Step) (artifact.Report, error) {
	started := r.opts.timeProvider.Now()
	run := &Run{
		ID:           uuid.NewString(),
		Pipeline:     name,
		ProjectDir:   projectDir,
		StartedAt:    started,
		Env:          r.opts.env,
		ArtifactsDir: r.store.RunDir(name, started),
	}

	if out == nil {
		out = io.Discard
	}
	run.Log = out
	if logFile, err := openBuildLog(run.ArtifactsDir); err != nil {
		slog.Warn("Build log not captured", "dir", run.ArtifactsDir, "error", err)
	} else {
		defer logFile.Close()
		run.Log = io.MultiWriter(out, logFile)
	}

	slog.Info("Starting pipeline run", "pipeline", name, "run", run.ID, "project", projectDir)

	report := artifact.Report{
		RunID:     run.ID,
		Pipeline:  name,
		StartedAt: started,
	}

	var failed error
	if info, err := os.Stat(projectDir); err != nil {
		failed = fmt.Errorf("project directory %s is not accessible: %w", projectDir, err)
	} else if !info.IsDir() {
		failed = fmt.Errorf("project path %s is not a directory", projectDir)
	}

	for _, step := range steps {
		if failed != nil {
			break
		}
		if err := ctx.Err(); err != nil {
			failed = err
			break
		}

		slog.Info("Running step", "pipeline", name, "run", run.ID, "step", step.Name)
		fmt.Fprintf(run.Log, "=== %s\n", step.Name)

		stepStart := r.opts.timeProvider.Now()
		err := step.Run(ctx, run)
		result := artifact.StepResult{
			Name:       step.Name,
			DurationMS: r.opts.timeProvider.Now().Sub(stepStart).Milliseconds(),
			ExitCode:   cmdutils.ExitCode(err),
		}
		if err != nil {
			result.Error = err.Error()
			failed = fmt.Errorf("step %q: %w", step.Name, err)
		}
		report.Steps = append(report.Steps, result)
	}

	report.DurationMS = r.opts.timeProvider.Now().Sub(started).Milliseconds()
	report.CacheHit = run.CacheHit
	report.Artifacts = run.Artifacts
	report.ExitCode = cmdutils.ExitCode(failed)
	if failed != nil {
		report.Error = failed.Error()
		fmt.Fprintf(run.Log, "FAILED: %v\n", failed)
		slog.Error("Pipeline run failed", "pipeline", name, "run", run.ID, "error", failed)
	} else {
		slog.Info("Pipeline run succeeded", "pipeline", name, "run", run.ID,
			"duration_ms", report.DurationMS, "artifacts", len(report.Artifacts))
	}

	if _, err := r.store.SaveReport(report); err != nil {
		return report, errors.Join(failed, err)
	}

	return report, failed
}

// openBuildLog creates the capture file tool output is teed to, stored with
// the run's artifacts.
func openBuildLog(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	return os.Create(filepath.Join(dir, buildLogName))
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

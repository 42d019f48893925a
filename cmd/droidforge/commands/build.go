package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/droidforge/droidforge/internal/artifact"
	"github.com/droidforge/droidforge/internal/cache"
	"github.com/droidforge/droidforge/internal/constants"
	"github.com/droidforge/droidforge/internal/pipeline"
	"github.com/droidforge/droidforge/internal/provision"
	"github.com/droidforge/droidforge/internal/toolchain"
	"github.com/spf13/cobra"
)

func installBuildCmd(app *App) {
	buildCmd := &cobra.Command{
		Use:   "build <pipeline>",
		Short: "Run a packaging pipeline against a project",
		Long: `Run a packaging pipeline against a project directory.

The project descriptor is validated before any tooling runs, and missing pinned tools are provisioned on the way. Packaged artifacts are collected next to the run report. Unless --skip-upload is given, the finished run is uploaded to the artifact service.`,
		ValidArgs: pipelineArgNames(),
		Args:      pipelineArgs(),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return checkEnvEntries(app)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := pipelineName(args[0])
			if err != nil {
				return err
			}
			app.config.Build.Pipeline = name

			slog.Info("Running build command", "pipeline", name)
			return app.buildRun(cmd.Context())
		},
	}

	installPipelineFlags(buildCmd, app)
	buildCmd.Flags().BoolVarP(&app.config.Build.DryRun, "dry-run", "d", false, "list the steps the pipeline would run without executing them")

	app.cmd.AddCommand(buildCmd)
}

// installPipelineFlags registers the flags shared by the commands which
// execute a pipeline.
func installPipelineFlags(cmd *cobra.Command, app *App) {
	cmd.Flags().StringVarP(&app.config.Build.ProjectDir, "project-dir", "p", ".", "project directory to build")
	cmd.Flags().BoolVar(&app.config.Build.SkipUpload, "skip-upload", false, "do not upload finished runs to the artifact service")
	cmd.Flags().StringVar(&app.config.Build.SdkRoot, "sdk-root", "", "Android SDK root, resolved from ANDROID_SDK_ROOT or ANDROID_HOME when unset")
	cmd.Flags().StringVar(&app.config.Build.QtRoot, "qt-root", filepath.Join(constants.GetDefaultCachePath(), "qt"), "directory Qt releases are installed under")
	cmd.Flags().StringArrayVarP(&app.config.Build.Env, "env", "e", nil, "extra KEY=VALUE environment variables handed to the packaging tools")

	err := cmd.MarkFlagDirname("project-dir")
	if err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark project-dir flag as directory: %v", err))
	}
}

// checkEnvEntries rejects extra environment entries without a key value
// separator before the pipeline starts.
func checkEnvEntries(app *App) error {
	for _, kv := range app.config.Build.Env {
		if !strings.Contains(kv, "=") {
			app.cmd.SilenceUsage = false
			return fmt.Errorf("env entries must be KEY=VALUE, got %q", kv)
		}
	}
	return nil
}

// buildRun assembles the requested pipeline and executes it.
func (a *App) buildRun(ctx context.Context) error {
	b := a.config.Build

	def, err := a.pipelineDefinition(b.Pipeline)
	if err != nil {
		return err
	}

	if b.DryRun {
		for _, step := range def.Steps() {
			fmt.Println(step.Name)
		}
		return nil
	}

	store := artifact.NewStore(a.config.artifactsDir)
	runner := a.newRunner(store, pipeline.WithEnv(b.Env))
	report, err := runner.Run(ctx, def, b.ProjectDir, os.Stdout)
	if err != nil {
		return err
	}
	slog.Info("Build finished", "pipeline", report.Pipeline, "run", report.RunID, "artifacts", len(report.Artifacts))

	if b.SkipUpload {
		slog.Debug("Upload skipped", "pipeline", b.Pipeline)
		return nil
	}

	u := a.newUploader(store, 0, false, a.uploaderOptions()...)
	if err := u.Upload(b.Pipeline, false); err != nil {
		return fmt.Errorf("build succeeded but the run could not be uploaded: %w", err)
	}
	return nil
}

// pipelineDefinition assembles the step list and tooling for the named
// pipeline.
func (a *App) pipelineDefinition(name string) (pipeline.Definition, error) {
	pins, err := toolchain.LoadPins(filepath.Join(a.config.Build.ProjectDir, constants.ToolchainsFileName))
	if err != nil {
		return nil, err
	}

	switch name {
	case constants.PipelineBuildozer:
		cacheStore, err := cache.New(a.config.cacheDir)
		if err != nil {
			return nil, err
		}
		return pipeline.NewBuildozer(cacheStore, provision.New(toolchain.Locations{})), nil

	case constants.PipelineQtDeploy:
		sdkRoot, err := toolchain.ResolveSDKRoot(a.config.Build.SdkRoot)
		if err != nil {
			return nil, err
		}
		locations := toolchain.NewLocations(sdkRoot, a.config.Build.QtRoot, pins)
		return pipeline.NewQtDeploy(locations, toolchain.NewDetector(pins), provision.New(locations)), nil
	}

	return nil, fmt.Errorf("unknown pipeline %q", name)
}

package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/droidforge/droidforge/internal/buildspec"
	"github.com/droidforge/droidforge/internal/constants"
	"github.com/spf13/cobra"
)

func installValidateCmd(app *App) {
	validateCmd := &cobra.Command{
		Use:   "validate <pipeline>",
		Short: "Check a project's packaging inputs without building",
		Long: `Check that the project carries a well formed descriptor for the given pipeline.

Nothing is built and no tooling is provisioned. The command exits non-zero when the descriptor is missing or malformed.`,
		ValidArgs: pipelineArgNames(),
		Args:      pipelineArgs(),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := pipelineName(args[0])
			if err != nil {
				return err
			}
			app.config.Build.Pipeline = name

			slog.Info("Running validate command", "pipeline", name)
			return app.validateRun()
		},
	}

	validateCmd.Flags().StringVarP(&app.config.Build.ProjectDir, "project-dir", "p", ".", "project directory to validate")

	err := validateCmd.MarkFlagDirname("project-dir")
	if err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark project-dir flag as directory: %v", err))
	}

	app.cmd.AddCommand(validateCmd)
}

// validateRun loads and validates the project descriptor of the configured
// pipeline.
func (a App) validateRun() error {
	projectDir := a.config.Build.ProjectDir

	switch a.config.Build.Pipeline {
	case constants.PipelineBuildozer:
		spec, err := buildspec.LoadBuildozer(filepath.Join(projectDir, constants.BuildozerSpecFile))
		if err != nil {
			return err
		}
		if err := spec.Validate(); err != nil {
			return err
		}
		fmt.Printf("%s: valid\n", constants.BuildozerSpecFile)

	case constants.PipelineQtDeploy:
		desc, err := buildspec.LoadQtDeploy(filepath.Join(projectDir, constants.QtDeployDescriptorFile))
		if err != nil {
			return err
		}
		if err := desc.Validate(); err != nil {
			return err
		}
		if _, err := os.Stat(filepath.Join(projectDir, "data", "icon.png")); err != nil {
			slog.Warn("Project ships no icon, the stock Android icon will be used", "project", projectDir)
		}
		fmt.Printf("%s: valid\n", constants.QtDeployDescriptorFile)
	}

	return nil
}

package commands

import (
	"log/slog"

	"github.com/droidforge/droidforge/internal/artifact"
	"github.com/droidforge/droidforge/internal/constants"
	"github.com/spf13/cobra"
)

func installUploadCmd(app *App) {
	uploadCmd := &cobra.Command{
		Use:       "upload [pipelines](optional arguments)",
		Short:     "Upload finished runs to the droidforge artifact service",
		Long:      "Upload finished runs to the droidforge artifact service. If no pipelines are provided, runs of all known pipelines at the configured artifacts directory will be uploaded.",
		ValidArgs: pipelineArgNames(),
		Args: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if _, err := pipelineName(arg); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Persist viper config if no args passed
			if len(args) > 0 {
				app.config.Upload.Pipelines = args
			}

			slog.Info("Running upload command")
			return app.uploadRun()
		},
	}

	uploadCmd.Flags().Uint32Var(&app.config.Upload.MinAge, "min-age", constants.DefaultMinAge, "the minimum age (in seconds) of a run report before the uploader will attempt to upload it")
	uploadCmd.Flags().BoolVarP(&app.config.Upload.Force, "force", "f", false, "force an upload, ignoring min age and clashes between the collected run and a run in the uploaded folder, replacing the clashing uploaded run if it exists")
	uploadCmd.Flags().BoolVarP(&app.config.Upload.DryRun, "dry-run", "d", false, "go through the motions of doing an upload, but do not communicate with the server, send the payload, or modify local files")
	uploadCmd.Flags().BoolVarP(&app.config.Upload.Retry, "retry", "r", false, "enable a limited number of retries for failed uploads")
	uploadCmd.Flags().BoolVar(&app.config.Upload.ReportsOnly, "reports-only", false, "upload run reports only, leaving artifact payloads out")

	app.cmd.AddCommand(uploadCmd)
}

func (a *App) uploadRun() error {
	uConfig := a.config.Upload

	pipelines := make([]string, 0, len(constants.Pipelines))
	seen := make(map[string]bool)
	for _, arg := range uConfig.Pipelines {
		name, err := pipelineName(arg)
		if err != nil {
			return err
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		pipelines = append(pipelines, name)
	}
	if len(pipelines) == 0 {
		pipelines = constants.Pipelines
	}

	store := artifact.NewStore(a.config.artifactsDir)
	u := a.newUploader(store, uint(uConfig.MinAge), uConfig.DryRun, a.uploaderOptions()...)
	return u.UploadAll(pipelines, uConfig.Force, uConfig.Retry)
}
